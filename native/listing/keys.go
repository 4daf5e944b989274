package listing

import (
	"encoding/binary"
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	platformConfigKey   = []byte("listing/platform/config")
	platformStatsKey    = []byte("listing/platform/stats")
	whitelistPrefix     = []byte("listing/whitelist/")
	profilePrefix       = []byte("listing/profile/")
	listingRecordPrefix = []byte("listing/record/")
	makerIndexPrefix    = []byte("listing/maker/")
	vaultPrefix         = []byte("listing/vault/")
)

// DeriveKey returns the deterministic listing key for a maker-scoped id:
// keccak256("listing" || maker || bigEndian(id)).
func DeriveKey(maker [20]byte, id uint64) [32]byte {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], id)
	hash := ethcrypto.Keccak256([]byte("listing"), maker[:], idBytes[:])
	var key [32]byte
	copy(key[:], hash)
	return key
}

func withHex(prefix []byte, parts ...[]byte) []byte {
	key := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			key = append(key, '/')
		}
		key = append(key, hex.EncodeToString(part)...)
	}
	return key
}

func whitelistKey(asset [20]byte) []byte { return withHex(whitelistPrefix, asset[:]) }

func profileKey(owner [20]byte) []byte { return withHex(profilePrefix, owner[:]) }

func listingRecordKey(key [32]byte) []byte { return withHex(listingRecordPrefix, key[:]) }

func makerIndexKey(maker [20]byte, key [32]byte) []byte {
	return withHex(makerIndexPrefix, maker[:], key[:])
}

func makerIndexScan(maker [20]byte) []byte {
	return append(withHex(makerIndexPrefix, maker[:]), '/')
}

func vaultKey(key [32]byte) []byte { return withHex(vaultPrefix, key[:]) }
