package account

import (
	"math/big"

	"github.com/eth2028/eth2028/core/types"
)

// Backend is the host-account read surface OverlayState (component E)
// falls through to (see overlay.Backend, which this interface satisfies
// structurally), plus the extra context fields (program id, operator,
// chain id, block info, zero-copy external account access) spec §4.F
// requires but the interpreter itself never reads directly.
type Backend interface {
	ProgramID() Pubkey
	Operator() types.Address
	ChainID() uint64
	DefaultChainID() uint64
	BlockNumber() uint64
	BlockTimestamp() uint64
	BlockHash(number uint64) types.Hash

	Balance(addr types.Address) *big.Int
	Nonce(addr types.Address) uint64
	Code(addr types.Address) []byte
	CodeSize(addr types.Address) int
	CodeHash(addr types.Address) types.Hash
	Generation(addr types.Address) uint32
	Storage(addr types.Address, index types.Hash) types.Hash

	// CloneSolanaAccount returns a copy of the raw bytes of an arbitrary
	// host account (not necessarily an EthereumAccount), for
	// host-extension precompiles that need to read e.g. an SPL token
	// account directly.
	CloneSolanaAccount(key Pubkey) ([]byte, error)

	// MapSolanaAccount gives f a zero-copy view of an arbitrary host
	// account's bytes. On-chain, this borrows the account's real backing
	// buffer; the emulator backend just hands f a byte slice over its own
	// copy, since there is no shared memory to avoid copying from.
	MapSolanaAccount(key Pubkey, f func([]byte)) error
}

// Mutator is the write side of a host-account backend: the set of
// operations component K's apply pipeline performs when replaying a
// finished action log onto host accounts. A read-only Backend (an
// arbitrary snapshot view) need not implement it; Emulator and OnChain
// both do.
type Mutator interface {
	SetBalance(addr types.Address, balance *big.Int)
	SetNonce(addr types.Address, nonce uint64)
	DeployCode(addr types.Address, code []byte) error
	SetStorageSlot(addr types.Address, index types.Hash, value types.Hash) error
	IncrementGeneration(addr types.Address)
	ClearAccountData(addr types.Address)
	CreateIfNotExists(addr types.Address)
}

// RevisionSource exposes the per-account host revision counter the
// revision guard (component J) compares against a StateAccount's recorded
// map on restore.
type RevisionSource interface {
	Revision(key Pubkey) uint32
}
