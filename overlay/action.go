// Package overlay implements the execution-time state view (spec component
// E): an append-only log of actions layered read-through over a host
// account backend, plus the snapshot/commit/revert stack the interpreter
// relies on for CALL/CREATE sub-frames.
//
// Grounded on the teacher's core/state journal (core/state/journal.go):
// both record a linear, appendable sequence of reversible changes and use
// saved log lengths (not deep copies) as snapshot markers. The difference
// is shape, not technique -- the teacher's journal stores typed revert
// closures over a concrete MemoryStateDB; OverlayState stores the actions
// themselves, because the action log is also the payload apply (component
// K) replays onto host accounts once a transaction finishes.
package overlay

import (
	"math/big"

	"github.com/eth2028/eth2028/core/types"
)

// ActionKind tags the variant carried by an Action, mirroring the teacher's
// CallFrameType enum pattern (core/vm/call_frame.go) for a closed set of
// cases dispatched by a single tag byte rather than a type switch over
// interfaces.
type ActionKind uint8

const (
	ActionNeonTransfer ActionKind = iota
	ActionNeonWithdraw
	ActionEvmSetStorage
	ActionEvmIncrementNonce
	ActionEvmSetCode
	ActionEvmSelfDestruct
	ActionExternalInstruction
)

func (k ActionKind) String() string {
	switch k {
	case ActionNeonTransfer:
		return "NeonTransfer"
	case ActionNeonWithdraw:
		return "NeonWithdraw"
	case ActionEvmSetStorage:
		return "EvmSetStorage"
	case ActionEvmIncrementNonce:
		return "EvmIncrementNonce"
	case ActionEvmSetCode:
		return "EvmSetCode"
	case ActionEvmSelfDestruct:
		return "EvmSelfDestruct"
	case ActionExternalInstruction:
		return "ExternalInstruction"
	default:
		return "Unknown"
	}
}

// AccountMeta describes one account reference passed to a host instruction,
// mirroring Solana's AccountMeta (pubkey + is_signer/is_writable).
type AccountMeta struct {
	PublicKey  [32]byte
	IsSigner   bool
	IsWritable bool
}

// Action is the tagged union of every state mutation the overlay can
// record. Only the fields relevant to Kind are populated; this mirrors a
// Rust enum's per-variant payload using a flat struct instead, the same
// compromise the teacher makes for PendingFork/CallFrameType rather than
// introducing per-variant interface types for a closed, small set of cases.
type Action struct {
	Kind ActionKind

	// NeonTransfer, NeonWithdraw
	Source types.Address
	Target types.Address
	Value  *big.Int

	// EvmSetStorage, EvmIncrementNonce, EvmSetCode, EvmSelfDestruct
	Address types.Address
	Index   types.Hash
	Storage types.Hash
	Code    []byte

	// ExternalInstruction
	ProgramID   [32]byte
	Accounts    []AccountMeta
	Data        []byte
	SignerSeeds [][]byte
	Fee         uint64
}
