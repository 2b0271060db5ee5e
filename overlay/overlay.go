package overlay

import (
	"errors"
	"math/big"

	"github.com/eth2028/eth2028/core/types"
)

// ErrOutOfFund is returned by Transfer when the overlay-computed source
// balance is less than the requested value.
var ErrOutOfFund = errors.New("overlay: source account has insufficient balance")

// Backend is the read-only host-account view OverlayState falls through to
// once its own action log has nothing newer to say about an address. It is
// satisfied structurally by account.Emulator and account.OnChain (component
// F) -- defined here, on the consumer side, so this package never imports
// account and the two can be adapted independently.
type Backend interface {
	Balance(addr types.Address) *big.Int
	Nonce(addr types.Address) uint64
	Code(addr types.Address) []byte
	CodeSize(addr types.Address) int
	CodeHash(addr types.Address) types.Hash
	Generation(addr types.Address) uint32
	Storage(addr types.Address, index types.Hash) types.Hash
}

// snapshot is a saved log length plus the static-context flag enter pushed,
// so revert can restore both the log and the static-depth counter.
type snapshot struct {
	logLen   int
	isStatic bool
}

// OverlayState is the read-through, append-only action log that stands in
// for a mutable StateDB during one transaction's execution (spec component
// E). Reads scan the log newest-first and fall through to Backend; the
// snapshot stack records log lengths rather than copies of prior state,
// making enter O(1) and revert O(k) in the number of actions undone --
// grounded on the teacher's core/state/journal.go, whose snapshot() /
// revertToSnapshot() do the same thing over typed revert closures.
type OverlayState struct {
	backend Backend
	log     []Action

	snapshots   []snapshot
	staticDepth int

	transientStorage map[transientKey]types.Hash
	refund           uint64
	destructed       map[types.Address]bool

	touched   map[types.Address]bool
	logs      []*types.Log
	warmAddrs map[types.Address]bool
	warmSlots map[accessListKey]bool
}

type transientKey struct {
	addr types.Address
	key  types.Hash
}

// New creates an OverlayState with an empty action log over backend.
func New(backend Backend) *OverlayState {
	return &OverlayState{
		backend:          backend,
		transientStorage: make(map[transientKey]types.Hash),
		destructed:       make(map[types.Address]bool),
	}
}

// Log returns the full action log recorded so far, oldest first. Component
// K consumes this once the driver finishes stepping the transaction.
func (o *OverlayState) Log() []Action {
	return o.log
}

// Enter pushes a snapshot (the current log length) and, if isStatic, marks
// every frame nested beneath this point as read-only until the matching
// Commit or Revert. Mirrors the teacher's journal.snapshot() plus the call
// frame stack's IsStatic propagation (core/vm/call_frame.go).
func (o *OverlayState) Enter(isStatic bool) {
	o.snapshots = append(o.snapshots, snapshot{logLen: len(o.log), isStatic: isStatic})
	if isStatic {
		o.staticDepth++
	}
}

// Commit pops the most recent snapshot and retains every action recorded
// since it was taken.
func (o *OverlayState) Commit() {
	n := len(o.snapshots)
	if n == 0 {
		return
	}
	s := o.snapshots[n-1]
	o.snapshots = o.snapshots[:n-1]
	if s.isStatic {
		o.staticDepth--
	}
}

// Revert pops the most recent snapshot and truncates the log back to the
// length it recorded, discarding every action taken since. Reverting a
// snapshot nested inside another still-open snapshot is cumulative: the
// outer snapshot's own saved length is unaffected and a later Revert on it
// would discard this one's surviving prefix too.
func (o *OverlayState) Revert() {
	n := len(o.snapshots)
	if n == 0 {
		return
	}
	s := o.snapshots[n-1]
	o.snapshots = o.snapshots[:n-1]
	if s.isStatic {
		o.staticDepth--
	}
	o.log = o.log[:s.logLen]
}

// IsStatic reports whether any currently-open snapshot entered a read-only
// context.
func (o *OverlayState) IsStatic() bool {
	return o.staticDepth > 0
}

// destroyedBefore reports whether an EvmSelfDestruct for addr appears in the
// log at or after index i, scanning from the newest entry backward. It is
// the shared "has this address been wiped since backend time" check used by
// Nonce/Code/CodeSize/CodeHash/Storage.
func (o *OverlayState) destroyedSince(addr types.Address, i int) bool {
	for ; i >= 0; i-- {
		a := o.log[i]
		if a.Kind == ActionEvmSelfDestruct && a.Address == addr {
			return true
		}
	}
	return false
}

// Balance returns backend.Balance(addr) adjusted by every NeonTransfer and
// NeonWithdraw action touching addr recorded so far. Order doesn't matter
// for a pure sum of deltas.
func (o *OverlayState) Balance(addr types.Address) *big.Int {
	balance := new(big.Int).Set(o.backend.Balance(addr))
	for _, a := range o.log {
		switch a.Kind {
		case ActionNeonTransfer:
			if a.Target == addr {
				balance.Add(balance, a.Value)
			}
			if a.Source == addr {
				balance.Sub(balance, a.Value)
			}
		case ActionNeonWithdraw:
			if a.Source == addr {
				balance.Sub(balance, a.Value)
			}
		}
	}
	return balance
}

// Nonce returns backend.Nonce(addr) plus every EvmIncrementNonce recorded
// since the most recent EvmSelfDestruct for addr (selfdestruct resets the
// nonce to zero going forward).
func (o *OverlayState) Nonce(addr types.Address) uint64 {
	var incr uint64
	for i := len(o.log) - 1; i >= 0; i-- {
		a := o.log[i]
		if a.Kind == ActionEvmSelfDestruct && a.Address == addr {
			return incr
		}
		if a.Kind == ActionEvmIncrementNonce && a.Address == addr {
			incr++
		}
	}
	return o.backend.Nonce(addr) + incr
}

// Code returns the most recently set code for addr, falling through to the
// backend if never set in this log; a selfdestruct since the last set (or
// since backend time) makes it read as empty.
func (o *OverlayState) Code(addr types.Address) []byte {
	for i := len(o.log) - 1; i >= 0; i-- {
		a := o.log[i]
		if a.Kind == ActionEvmSelfDestruct && a.Address == addr {
			return nil
		}
		if a.Kind == ActionEvmSetCode && a.Address == addr {
			return a.Code
		}
	}
	return o.backend.Code(addr)
}

// CodeSize is len(Code(addr)).
func (o *OverlayState) CodeSize(addr types.Address) int {
	return len(o.Code(addr))
}

// CodeHash hashes Code(addr); an account with no code hashes to the empty
// code hash, matching types.EmptyCodeHash.
func (o *OverlayState) CodeHash(addr types.Address, hash func([]byte) types.Hash) types.Hash {
	code := o.Code(addr)
	if len(code) == 0 {
		return types.EmptyCodeHash
	}
	return hash(code)
}

// Storage returns the newest EvmSetStorage value recorded for (addr, key),
// falling through to the backend; a selfdestruct since the last write (or
// since backend time) makes every slot read as zero.
func (o *OverlayState) Storage(addr types.Address, key types.Hash) types.Hash {
	for i := len(o.log) - 1; i >= 0; i-- {
		a := o.log[i]
		if a.Kind == ActionEvmSelfDestruct && a.Address == addr {
			return types.Hash{}
		}
		if a.Kind == ActionEvmSetStorage && a.Address == addr && a.Index == key {
			return a.Storage
		}
	}
	return o.backend.Storage(addr, key)
}

// HasSelfDestructed reports whether addr has an EvmSelfDestruct recorded
// anywhere in the log.
func (o *OverlayState) HasSelfDestructed(addr types.Address) bool {
	if o.destructed[addr] {
		return true
	}
	return o.destroyedSince(addr, len(o.log)-1)
}

// Transfer records a NeonTransfer from source to target. A zero value or a
// self-transfer is a no-op (the teacher's own CallValueTransfer -- see
// core/vm/contract_call.go -- short-circuits identically before touching the
// StateDB). Returns ErrOutOfFund if the overlay-computed source balance is
// less than value.
func (o *OverlayState) Transfer(source, target types.Address, value *big.Int) error {
	if value == nil || value.Sign() == 0 || source == target {
		return nil
	}
	if o.Balance(source).Cmp(value) < 0 {
		return ErrOutOfFund
	}
	o.log = append(o.log, Action{
		Kind:   ActionNeonTransfer,
		Source: source,
		Target: target,
		Value:  new(big.Int).Set(value),
	})
	return nil
}

// Withdraw records a NeonWithdraw from source (value leaves the overlay
// entirely, e.g. gas payment to a receiver tracked outside the action log).
func (o *OverlayState) Withdraw(source types.Address, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return nil
	}
	if o.Balance(source).Cmp(value) < 0 {
		return ErrOutOfFund
	}
	o.log = append(o.log, Action{Kind: ActionNeonWithdraw, Source: source, Value: new(big.Int).Set(value)})
	return nil
}

// SetStorage records an EvmSetStorage action.
func (o *OverlayState) SetStorage(addr types.Address, key, value types.Hash) {
	o.log = append(o.log, Action{Kind: ActionEvmSetStorage, Address: addr, Index: key, Storage: value})
}

// IncrementNonce records an EvmIncrementNonce action.
func (o *OverlayState) IncrementNonce(addr types.Address) {
	o.log = append(o.log, Action{Kind: ActionEvmIncrementNonce, Address: addr})
}

// SelfDestruct records an EvmSelfDestruct action. Subsequent reads of addr's
// nonce, code and storage return zero/empty until a later Set*/Increment
// action for addr is recorded.
func (o *OverlayState) SelfDestruct(addr types.Address) {
	o.destructed[addr] = true
	o.log = append(o.log, Action{Kind: ActionEvmSelfDestruct, Address: addr})
}

// ExternalInstruction records a host cross-program invocation request.
func (o *OverlayState) ExternalInstruction(programID [32]byte, accounts []AccountMeta, data []byte, signerSeeds [][]byte, fee uint64) {
	o.log = append(o.log, Action{
		Kind:        ActionExternalInstruction,
		ProgramID:   programID,
		Accounts:    accounts,
		Data:        data,
		SignerSeeds: signerSeeds,
		Fee:         fee,
	})
}

// GetTransientState and SetTransientState implement EIP-1153 transient
// storage, which lives only for the lifetime of one top-level transaction
// and is never part of the replayed action log.
func (o *OverlayState) GetTransientState(addr types.Address, key types.Hash) types.Hash {
	return o.transientStorage[transientKey{addr, key}]
}

func (o *OverlayState) SetTransientState(addr types.Address, key, value types.Hash) {
	o.transientStorage[transientKey{addr, key}] = value
}

func (o *OverlayState) ClearTransientStorage() {
	o.transientStorage = make(map[transientKey]types.Hash)
}

func (o *OverlayState) AddRefund(gas uint64) { o.refund += gas }

func (o *OverlayState) SubRefund(gas uint64) {
	if gas > o.refund {
		o.refund = 0
		return
	}
	o.refund -= gas
}

func (o *OverlayState) GetRefund() uint64 { return o.refund }
