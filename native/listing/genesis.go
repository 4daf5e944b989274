package listing

import "fmt"

var genesisMarkerKey = []byte("listing/genesis/applied")

// Allocation seeds an owner's holding of an asset.
type Allocation struct {
	Owner  [20]byte
	Asset  [20]byte
	Amount uint64
}

type storedGenesisMarker struct {
	AppliedAt   uint64
	Allocations uint64
}

// ApplyGenesis credits the allocations exactly once per store. It reports
// false when a previous run already applied them.
func (e *Engine) ApplyGenesis(allocations []Allocation) (bool, error) {
	applied := false
	err := e.execute("genesis_apply", func(c *opContext) error {
		ok, err := c.txn.KVGet(genesisMarkerKey, nil)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		for _, alloc := range allocations {
			if alloc.Owner == ([20]byte{}) || alloc.Asset == ([20]byte{}) {
				return fmt.Errorf("%w: genesis allocation needs owner and asset", ErrInvalidAmount)
			}
			if err := c.bank.Credit(alloc.Owner, alloc.Asset, alloc.Amount); err != nil {
				return err
			}
		}
		applied = true
		return c.txn.KVPut(genesisMarkerKey, &storedGenesisMarker{
			AppliedAt:   toUnix(c.now),
			Allocations: uint64(len(allocations)),
		})
	})
	return applied, err
}
