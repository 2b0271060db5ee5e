package overlay

import (
	"math/big"

	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/crypto"
)

// statedb.go adapts OverlayState to core/vm.StateDB so the kept interpreter
// (core/vm/interpreter.go, machine.go, instructions.go) can run directly
// against the overlay/host-account model instead of the teacher's
// MemoryStateDB, without any change to the interpreter's own code -- it
// only ever talks to the StateDB interface. The extra bookkeeping here
// (touched-account set, access lists, logs, refund counter) exists solely
// to satisfy that interface; it is not part of the action log component K
// replays, since none of it is a host account mutation.

type accessListKey struct {
	addr types.Address
	slot types.Hash
}

// CreateAccount marks addr as touched. The overlay has no notion of an
// account object to allocate -- existence is derived from backend state
// plus logged actions -- so this only affects Exist/Empty bookkeeping.
func (o *OverlayState) CreateAccount(addr types.Address) {
	o.touch(addr)
}

func (o *OverlayState) touch(addr types.Address) {
	if o.touched == nil {
		o.touched = make(map[types.Address]bool)
	}
	o.touched[addr] = true
}

// GetBalance implements vm.StateDB.
func (o *OverlayState) GetBalance(addr types.Address) *big.Int { return o.Balance(addr) }

// AddBalance implements vm.StateDB as an unpaired mint: a NeonTransfer with
// no debited source. moveValue (core/vm/eip7708.go) prefers OverlayState's
// Transfer method when both legs of a move are known together (the normal
// CALL/CREATE/SELFDESTRUCT value-transfer path); AddBalance/SubBalance
// remain here only as the StateDB interface's fallback for callers that
// don't know both sides at once.
func (o *OverlayState) AddBalance(addr types.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	o.touch(addr)
	o.log = append(o.log, Action{Kind: ActionNeonTransfer, Target: addr, Value: new(big.Int).Set(amount)})
}

// SubBalance implements vm.StateDB as an unpaired burn (NeonWithdraw).
func (o *OverlayState) SubBalance(addr types.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	o.touch(addr)
	o.log = append(o.log, Action{Kind: ActionNeonWithdraw, Source: addr, Value: new(big.Int).Set(amount)})
}

// GetNonce implements vm.StateDB.
func (o *OverlayState) GetNonce(addr types.Address) uint64 { return o.Nonce(addr) }

// SetNonce implements vm.StateDB by recording however many EvmIncrementNonce
// actions are needed to move from the current overlay nonce to nonce (it
// never decreases in practice -- SetNonce(1) after CreateAccount for a new
// contract, per EIP-161 -- but is defined for any forward delta).
func (o *OverlayState) SetNonce(addr types.Address, nonce uint64) {
	current := o.Nonce(addr)
	o.touch(addr)
	for current < nonce {
		o.IncrementNonce(addr)
		current++
	}
}

// GetCode implements vm.StateDB.
func (o *OverlayState) GetCode(addr types.Address) []byte { return o.Code(addr) }

// SetCode implements vm.StateDB, recording an EvmSetCode action.
func (o *OverlayState) SetCode(addr types.Address, code []byte) {
	o.touch(addr)
	o.log = append(o.log, Action{Kind: ActionEvmSetCode, Address: addr, Code: append([]byte(nil), code...)})
}

// GetCodeHash implements vm.StateDB.
func (o *OverlayState) GetCodeHash(addr types.Address) types.Hash {
	return o.CodeHash(addr, func(code []byte) types.Hash { return crypto.Keccak256Hash(code) })
}

// GetCodeSize implements vm.StateDB.
func (o *OverlayState) GetCodeSize(addr types.Address) int { return o.CodeSize(addr) }

// GetState implements vm.StateDB.
func (o *OverlayState) GetState(addr types.Address, key types.Hash) types.Hash {
	return o.Storage(addr, key)
}

// SetState implements vm.StateDB.
func (o *OverlayState) SetState(addr types.Address, key, value types.Hash) {
	o.touch(addr)
	o.SetStorage(addr, key, value)
}

// GetCommittedState implements vm.StateDB by returning the backend's value,
// ignoring anything recorded in this transaction's action log -- matching
// "committed" meaning "as of the start of the transaction".
func (o *OverlayState) GetCommittedState(addr types.Address, key types.Hash) types.Hash {
	return o.backend.Storage(addr, key)
}

// Exist reports whether addr has ever been touched, or has non-zero
// balance/nonce/code in the backend.
func (o *OverlayState) Exist(addr types.Address) bool {
	if o.touched[addr] {
		return true
	}
	return o.GetBalance(addr).Sign() != 0 || o.GetNonce(addr) != 0 || o.GetCodeSize(addr) != 0
}

// Empty implements the EIP-161 definition: zero balance, zero nonce, no
// code.
func (o *OverlayState) Empty(addr types.Address) bool {
	return o.GetBalance(addr).Sign() == 0 && o.GetNonce(addr) == 0 && o.GetCodeSize(addr) == 0
}

// Snapshot implements vm.StateDB by pushing a non-static Enter and
// returning the new snapshot stack depth as the id.
func (o *OverlayState) Snapshot() int {
	o.Enter(false)
	return len(o.snapshots)
}

// RevertToSnapshot unwinds the snapshot stack and the action log back to
// the state recorded when Snapshot returned id, discarding every snapshot
// taken since (they are no longer valid revert targets), matching the
// teacher's journal.revertToSnapshot.
func (o *OverlayState) RevertToSnapshot(id int) {
	if id < 0 || id > len(o.snapshots) {
		return
	}
	target := o.snapshots[id-1]
	for len(o.snapshots) > id-1 {
		n := len(o.snapshots) - 1
		s := o.snapshots[n]
		o.snapshots = o.snapshots[:n]
		if s.isStatic {
			o.staticDepth--
		}
	}
	o.log = o.log[:target.logLen]
}

// AddLog implements vm.StateDB.
func (o *OverlayState) AddLog(log *types.Log) {
	o.logs = append(o.logs, log)
}

// Logs returns every log recorded during this transaction.
func (o *OverlayState) Logs() []*types.Log { return o.logs }

// AddAddressToAccessList implements EIP-2929 warm-address tracking.
func (o *OverlayState) AddAddressToAccessList(addr types.Address) {
	if o.warmAddrs == nil {
		o.warmAddrs = make(map[types.Address]bool)
	}
	o.warmAddrs[addr] = true
}

// AddSlotToAccessList implements EIP-2929 warm-slot tracking.
func (o *OverlayState) AddSlotToAccessList(addr types.Address, slot types.Hash) {
	o.AddAddressToAccessList(addr)
	if o.warmSlots == nil {
		o.warmSlots = make(map[accessListKey]bool)
	}
	o.warmSlots[accessListKey{addr, slot}] = true
}

// AddressInAccessList implements vm.StateDB.
func (o *OverlayState) AddressInAccessList(addr types.Address) bool {
	return o.warmAddrs[addr]
}

// SlotInAccessList implements vm.StateDB.
func (o *OverlayState) SlotInAccessList(addr types.Address, slot types.Hash) (bool, bool) {
	return o.warmAddrs[addr], o.warmSlots[accessListKey{addr, slot}]
}
