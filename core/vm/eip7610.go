package vm

// eip7610.go implements EIP-7610: Revert creation in case of non-empty
// storage. CREATE/CREATE2 collision checks reject deployment to addresses
// that have non-empty storage in addition to the pre-existing checks for
// non-zero nonce and non-empty code.

import (
	"github.com/eth2028/eth2028/core/types"
)

// CommonStorageSlots is the set of well-known storage slots probed by
// HasNonEmptyStorage. Slot 0 is the most commonly used slot in Solidity
// (first declared state variable); slots 1-9 cover additional low-index
// variables and common proxy layouts.
var CommonStorageSlots = []types.Hash{
	types.BytesToHash([]byte{0}),
	types.BytesToHash([]byte{1}),
	types.BytesToHash([]byte{2}),
	types.BytesToHash([]byte{3}),
	types.BytesToHash([]byte{4}),
	types.BytesToHash([]byte{5}),
	types.BytesToHash([]byte{6}),
	types.BytesToHash([]byte{7}),
	types.BytesToHash([]byte{8}),
	types.BytesToHash([]byte{9}),
}

// HasNonEmptyStorage probes a set of common storage slots and returns true
// if any of them contain a non-zero value. A full implementation would
// consult the storage trie root directly; probing covers the common case of
// a freshly-created account.
func HasNonEmptyStorage(stateDB StateDB, addr types.Address) bool {
	var zeroHash types.Hash
	for _, slot := range CommonStorageSlots {
		if stateDB.GetState(addr, slot) != zeroHash {
			return true
		}
	}
	return false
}
