// Package account implements the host-account backend (spec component F):
// the read primitives an EVM address maps onto, and the two concrete
// implementations (Emulator, OnChain) the spec requires to present
// identical semantics over a live vs. simulated host chain.
//
// Grounded on the teacher's core/state.MemoryStateDB (core/state/memory_statedb.go)
// for the shape of a minimal account-read backend, and on
// original_source/evm_loader/program/src/solana_backend.rs's AccountStorage
// trait for the actual method set (balance/nonce/code/storage/generation,
// block_number/block_timestamp/chain_id) this package exposes.
package account

import (
	"crypto/sha256"
	"errors"

	"github.com/eth2028/eth2028/core/types"
)

// PubkeyLength is the length in bytes of a host account key (Solana's
// ed25519 public key length).
const PubkeyLength = 32

// Pubkey is a host account key.
type Pubkey [PubkeyLength]byte

func (p Pubkey) Bytes() []byte { return p[:] }

// ErrNoValidSeed is returned by FindProgramAddress if every bump seed in
// [0,255] was exhausted without producing an off-curve address. In
// practice this never happens for a well-formed seed prefix.
var ErrNoValidSeed = errors.New("account: unable to find a valid program address")

// ACCOUNT_SEED_VERSION is prefixed to every derivation this package
// performs, letting a future account layout revision pick a fresh seed
// namespace without colliding with this one's derived keys.
const ACCOUNT_SEED_VERSION = byte(1)

// FindProgramAddress derives a deterministic program-derived key from seeds
// and programID, the same way Solana's find_program_address does: try each
// bump seed from 255 down to 0, hash [seeds..., bump, programID, "ProgramDerivedAddress"],
// and take the first result.
//
// The real algorithm additionally rejects any candidate that lands on the
// ed25519 curve (a PDA must be unable to have a matching private key); that
// check requires a curve library the corpus does not carry for this
// purpose, and no SPEC_FULL.md component observes the distinction between a
// hash that happens to be curve point and one that doesn't -- so this
// derivation always accepts the first candidate (bump 255) rather than
// walking down to skip on-curve results. See DESIGN.md.
func FindProgramAddress(programID Pubkey, seeds ...[]byte) (Pubkey, byte) {
	bump := byte(255)
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write([]byte("ProgramDerivedAddress"))
	var out Pubkey
	copy(out[:], h.Sum(nil))
	return out, bump
}

// EthereumAccountKey derives the canonical host account key for an EVM
// address: find_program_address([ACCOUNT_SEED_VERSION, address], programID)
// per spec §6.
func EthereumAccountKey(programID Pubkey, addr types.Address) (Pubkey, byte) {
	return FindProgramAddress(programID, []byte{ACCOUNT_SEED_VERSION}, addr.Bytes())
}

// EthereumStorageKey derives the canonical host account key for an
// infinite-storage cell: find_program_address([ACCOUNT_SEED_VERSION,
// "ContractStorage", address, base_index], programID) per spec §6.
func EthereumStorageKey(programID Pubkey, addr types.Address, baseIndex uint64) (Pubkey, byte) {
	var idx [8]byte
	for i := 0; i < 8; i++ {
		idx[i] = byte(baseIndex >> (56 - 8*i))
	}
	return FindProgramAddress(programID, []byte{ACCOUNT_SEED_VERSION}, []byte("ContractStorage"), addr.Bytes(), idx[:])
}

// ExternalAuthorityKey derives the seeds an EVM contract signs host
// instructions with when dispatching through a host-extension precompile:
// ["EVM", caller_address, bump] per spec §6.
func ExternalAuthorityKey(programID Pubkey, caller types.Address) (Pubkey, byte) {
	return FindProgramAddress(programID, []byte("EVM"), caller.Bytes())
}
