package listing

import "fmt"

// ManageWhitelist records whether asset may back new listings. Existing
// listings are unaffected.
func (e *Engine) ManageWhitelist(caller [20]byte, asset [20]byte, whitelisted bool) (*WhitelistEntry, error) {
	var result *WhitelistEntry
	err := e.execute("whitelist_manage", func(c *opContext) error {
		if _, err := c.requireAuthority(caller); err != nil {
			return err
		}
		entry := &WhitelistEntry{Asset: asset, IsWhitelisted: whitelisted, UpdatedAt: c.now}
		if err := c.txn.KVPut(whitelistKey(asset), newStoredWhitelistEntry(entry)); err != nil {
			return err
		}
		c.emit(newWhitelistEvent(entry))
		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkEligible applies the whitelist gate to asset. The entry is looked up
// only while the whitelist is enabled.
func (c *opContext) checkEligible(cfg *PlatformConfig, asset [20]byte) error {
	if !cfg.WhitelistEnabled {
		return nil
	}
	entry, err := c.loadWhitelist(asset)
	if err != nil {
		return err
	}
	if entry == nil || !entry.IsWhitelisted {
		return fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, hexAddr(asset))
	}
	return nil
}
