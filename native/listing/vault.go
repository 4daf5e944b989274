package listing

import (
	"errors"
	"fmt"

	"escrowswap/native/bank"
)

func (c *opContext) loadVault(key [32]byte) (*Vault, error) {
	var stored storedVault
	ok, err := c.txn.KVGet(vaultKey(key), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: vault missing", ErrVaultBalanceMismatch)
	}
	return &Vault{Listing: stored.Listing, Asset: stored.Asset, Balance: stored.Balance}, nil
}

func (c *opContext) storeVault(v *Vault) error {
	return c.txn.KVPut(vaultKey(v.Listing), &storedVault{Listing: v.Listing, Asset: v.Asset, Balance: v.Balance})
}

// openVault moves amount of the listing's source asset from the maker into a
// fresh vault paired with the listing.
func (c *opContext) openVault(l *Listing, amount uint64) (*Vault, error) {
	if err := c.bank.Debit(l.Maker, l.SourceAsset, amount); err != nil {
		if errors.Is(err, bank.ErrInsufficientBalance) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientMakerBalance, err)
		}
		return nil, err
	}
	vault := &Vault{Listing: l.Key, Asset: l.SourceAsset, Balance: amount}
	if err := c.storeVault(vault); err != nil {
		return nil, err
	}
	return vault, nil
}

// checkVault verifies that the vault holds exactly the listing's unfilled
// source amount.
func (c *opContext) checkVault(l *Listing) (*Vault, error) {
	vault, err := c.loadVault(l.Key)
	if err != nil {
		return nil, err
	}
	if vault.Asset != l.SourceAsset || vault.Balance != l.AmountSourceRemaining {
		return nil, fmt.Errorf("%w: vault holds %d, listing expects %d", ErrVaultBalanceMismatch, vault.Balance, l.AmountSourceRemaining)
	}
	return vault, nil
}

// releaseVault debits amount from the vault and credits recipient.
func (c *opContext) releaseVault(v *Vault, amount uint64, recipient [20]byte) error {
	remaining, err := checkedSub(v.Balance, amount)
	if err != nil {
		return fmt.Errorf("%w: release %d from %d", ErrVaultBalanceMismatch, amount, v.Balance)
	}
	if err := c.bank.Credit(recipient, v.Asset, amount); err != nil {
		return err
	}
	v.Balance = remaining
	return c.storeVault(v)
}

// closeVault reclaims the vault record. The balance must already be zero.
func (c *opContext) closeVault(v *Vault) error {
	if v.Balance != 0 {
		return fmt.Errorf("%w: closing vault with balance %d", ErrVaultBalanceMismatch, v.Balance)
	}
	return c.txn.KVDelete(vaultKey(v.Listing))
}
