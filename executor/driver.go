// Package executor steps a transaction's EVM call stack to completion using
// core/vm's explicit Machine frames instead of native recursion.
//
// EVM.Call/CallCode/DelegateCall/StaticCall/Create/Create2 recurse through
// Go's own call stack. That is fine for ordinary contract-to-contract calls,
// but a contract running as an EVM program hosted inside another chain can
// reach a host-extension precompile (SPL token transfers, Metaplex calls,
// and similar dispatches implemented by the host, not by EVM bytecode) whose
// result depends on a real cross-program invocation performed by the host
// runtime. That invocation does not necessarily complete within the current
// instruction, so the whole in-flight call chain -- however many frames deep
// -- has to be parkable and resumable without unwinding a Go call stack.
// Driver walks core/vm.Machine frames by hand so that parking is just
// "stop looping and hand the frame stack to the caller".
package executor

import (
	"errors"

	"github.com/eth2028/eth2028/core/vm"
)

// ErrAwaitingHostDispatch is returned by Run when the call stack has
// suspended on a host-extension precompile. The caller should persist the
// Driver (see the holder/overlay packages) and call ResumeHost once the
// host-side dispatch result is known.
var ErrAwaitingHostDispatch = errors.New("executor: call stack awaiting host dispatch")

// ErrNoPendingHost is returned by ResumeHost when the Driver is not
// currently parked on a host dispatch.
var ErrNoPendingHost = errors.New("executor: no pending host dispatch to resume")

// Outcome is the final result of driving a call stack to completion.
type Outcome struct {
	ReturnData []byte
	GasLeft    uint64
	Err        error
}

// pendingHost records the frame and fork a host-extension dispatch
// suspended on, so ResumeHost can apply the eventual result to exactly the
// right caller.
type pendingHost struct {
	frame *vm.Machine
	fork  *vm.PendingFork
}

// Driver owns the explicit call-frame stack for one top-level message call
// and steps it without ever recursing natively into the EVM for CALL/CREATE.
type Driver struct {
	evm     *vm.EVM
	current *vm.Machine
	host    *pendingHost

	// IsHostExtension reports whether addr is a host-extension precompile
	// whose result requires suspending the whole call stack. Left nil, the
	// Driver never suspends: every fork either resolves immediately
	// (precompiles, empty accounts) or steps a child frame to completion.
	IsHostExtension func(addr [20]byte) bool
}

// NewDriver creates a Driver for a fresh top-level call and puts evm into
// driven mode for the lifetime of this transaction. contract and input
// describe the entry-point call (for a contract creation, pass the init
// code as contract.Code with input nil).
func NewDriver(evm *vm.EVM, contract *vm.Contract, input []byte) *Driver {
	evm.Driven = true
	return &Driver{evm: evm, current: vm.NewRootMachine(contract, input)}
}

// Run steps the call stack to completion. A transaction that never touches
// a host-extension precompile runs straight through to an Outcome. One that
// does returns ErrAwaitingHostDispatch; the caller supplies the dispatch
// result later via ResumeHost.
func (d *Driver) Run() (*Outcome, error) {
	for {
		fork, _ := d.evm.Step(d.current)

		if fork == nil {
			// d.current halted: success, revert, or a hard error (available
			// as d.current.Err, and handled inside FinishFrame).
			ret, gasLeft, addr, ferr := d.evm.FinishFrame(d.current)
			parent := d.current.Parent
			if parent == nil {
				return &Outcome{ReturnData: ret, GasLeft: gasLeft, Err: ferr}, nil
			}
			d.evm.ApplyCallResult(parent, d.current.Kind, d.current.RetOffset(), d.current.RetSize(), ret, gasLeft, addr, ferr)
			d.current = parent
			continue
		}

		if d.IsHostExtension != nil && isCallKind(fork.Kind) && d.IsHostExtension(fork.Target) {
			d.host = &pendingHost{frame: d.current, fork: fork}
			return nil, ErrAwaitingHostDispatch
		}

		child, ret, gasLeft, perr := d.evm.PrepareFrame(d.current, fork)
		if child == nil {
			// Resolved without a new frame: precompile dispatch, call to an
			// empty account, EIP-158 no-op, depth limit, failed balance check.
			d.evm.ApplyCallResult(d.current, fork.Kind, fork.RetOffset, fork.RetSize, ret, gasLeft, [20]byte{}, perr)
			continue
		}
		d.current = child
	}
}

// ResumeHost supplies the result of a host-extension dispatch that Run
// suspended on, then continues stepping the call stack from there.
func (d *Driver) ResumeHost(ret []byte, gasLeft uint64, err error) (*Outcome, error) {
	if d.host == nil {
		return nil, ErrNoPendingHost
	}
	frame, fork := d.host.frame, d.host.fork
	d.host = nil
	d.evm.ApplyCallResult(frame, fork.Kind, fork.RetOffset, fork.RetSize, ret, gasLeft, [20]byte{}, err)
	d.current = frame
	return d.Run()
}

// Suspended reports whether the Driver is currently parked on a host
// dispatch.
func (d *Driver) Suspended() bool { return d.host != nil }

func isCallKind(k vm.CallFrameType) bool {
	switch k {
	case vm.FrameCall, vm.FrameCallCode, vm.FrameDelegateCall, vm.FrameStaticCall:
		return true
	default:
		return false
	}
}
