package vm

// machine.go gives the EVM call stack an explicit, heap-resident
// representation instead of Go's own call stack.
//
// EVM.Call/CallCode/DelegateCall/StaticCall/Create/Create2 recurse natively:
// each one calls evm.Run, which for a nested CALL/CREATE opcode calls one of
// those methods again. That recursion is bounded (MaxCallDepth) and is the
// simplest thing that works, but it cannot be paused. A contract that
// reaches a host-extension precompile may need the surrounding chain to
// perform an actual cross-program dispatch before the precompile's result is
// known, and that dispatch does not necessarily resolve within the same
// instruction. There is no way to suspend a live Go call stack mid-recursion
// and come back to it in a later instruction.
//
// Machine and Driver solve this by giving every call-stack frame a Parent
// pointer and its own saved pc/stack/memory, so a whole chain of pending
// calls can be parked (e.g. in the holder/overlay layer) and resumed later
// without unwinding anything. EVM.Driven opts a transaction into this path;
// CALL/CREATE-family opcodes check it and, instead of recursing, hand a
// PendingFork to the Driver.
import (
	"errors"
	"math/big"

	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/crypto"
)

// PendingFork describes the CALL/CREATE-family operation that a suspended
// frame wants scheduled as a child. It is populated by the opCall family in
// instructions.go when evm.Driven is true, and consumed by PrepareFrame.
// Kind reuses call_frame.go's CallFrameType rather than introducing a second
// CALL/CREATE enum.
type PendingFork struct {
	Kind      CallFrameType
	Target    types.Address
	Value     *big.Int
	Input     []byte // call args, or init code for the CREATE family
	Gas       uint64
	Salt      *big.Int // CREATE2 only
	RetOffset uint64
	RetSize   uint64
}

// Machine is one frame of an explicit EVM call stack.
type Machine struct {
	Parent *Machine

	Kind     CallFrameType
	Contract *Contract
	pc       uint64
	stack    *Stack
	mem      *Memory

	caller       types.Address
	target       types.Address // callee for CALL family, new contract address for CREATE family
	value        *big.Int
	snapshot     int
	prevReadOnly bool
	retOffset    uint64
	retSize      uint64
	createGas    uint64 // CREATE family: gas retained by the 63/64 rule, not forwarded to init code

	Halted bool
	Ret    []byte
	Err    error
}

// RetOffset and RetSize report where a finished CALL-family frame's caller
// wants its return data copied, so a Driver can apply the result with
// ApplyCallResult without reaching into Machine's unexported fields.
func (m *Machine) RetOffset() uint64 { return m.retOffset }
func (m *Machine) RetSize() uint64   { return m.retSize }

// Depth returns the number of ancestors this frame has (the root frame is 0).
func (m *Machine) Depth() int {
	d := 0
	for p := m.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// NewRootMachine builds the top-level frame for a transaction or top-level
// message call.
func NewRootMachine(contract *Contract, input []byte) *Machine {
	contract.Input = input
	return &Machine{
		Kind:     FrameCall,
		Contract: contract,
		stack:    NewStack(),
		mem:      NewMemory(),
	}
}

// requestFork stashes a PendingFork on the EVM and returns the sentinel
// error that unwinds RunAt back to whoever is stepping this frame, without
// touching pc (the CALL/CREATE opcode is re-entered, not skipped, the first
// time this frame resumes -- ApplyCallResult advances pc once the fork's
// result is known).
func (evm *EVM) requestFork(f *PendingFork) ([]byte, error) {
	evm.pendingFork = f
	return nil, ErrFrameSuspended
}

// Step runs m until it halts or forks. On a fork, the caller (normally a
// Driver) is expected to build the child frame with PrepareFrame, push it,
// and come back to m later via another Step once the child has finished.
func (evm *EVM) Step(m *Machine) (fork *PendingFork, err error) {
	evm.depth = m.Depth()
	ret, runErr := evm.RunAt(m.Contract, &m.pc, m.stack, m.mem)
	if errors.Is(runErr, ErrFrameSuspended) {
		f := evm.pendingFork
		evm.pendingFork = nil
		return f, nil
	}
	m.Halted = true
	m.Ret = ret
	m.Err = runErr
	return nil, runErr
}

// PrepareFrame resolves a PendingFork raised by parent into either a child
// Machine ready to Step, or an immediate outcome that never needed a new
// frame at all (precompile dispatch, call to an empty account, EIP-158
// no-op, depth limit, failed balance check). Exactly one return value is
// non-nil.
//
// This mirrors EVM.Call/CallCode/DelegateCall/StaticCall/create precisely;
// the two paths (native recursion vs. explicit frame) must stay in lockstep
// since a transaction may use either depending on whether it ever touches a
// host-extension precompile.
func (evm *EVM) PrepareFrame(parent *Machine, fork *PendingFork) (child *Machine, ret []byte, gasLeft uint64, err error) {
	if parent.Depth()+1 > evm.Config.MaxCallDepth {
		return nil, nil, fork.Gas, ErrMaxCallDepthExceeded
	}

	switch fork.Kind {
	case FrameCall:
		return evm.prepareCall(parent, fork)
	case FrameCallCode:
		return evm.prepareCallCode(parent, fork)
	case FrameDelegateCall:
		return evm.prepareDelegateCall(parent, fork)
	case FrameStaticCall:
		return evm.prepareStaticCall(parent, fork)
	case FrameCreate, FrameCreate2:
		return evm.prepareCreate(parent, fork)
	default:
		return nil, nil, fork.Gas, ErrInvalidOpCode
	}
}

func (evm *EVM) prepareCall(parent *Machine, fork *PendingFork) (*Machine, []byte, uint64, error) {
	caller := parent.Contract.Address
	transfersValue := IsValueTransfer(fork.Value)

	if transfersValue && evm.StateDB != nil {
		if evm.StateDB.GetBalance(caller).Cmp(fork.Value) < 0 {
			return nil, nil, fork.Gas, errors.New("insufficient balance for transfer")
		}
	}
	if evm.StateDB == nil {
		return nil, nil, fork.Gas, errors.New("no state database")
	}

	snapshot := evm.StateDB.Snapshot()
	p, isPrecompile := evm.precompile(fork.Target)

	if !evm.StateDB.Exist(fork.Target) {
		if !isPrecompile && evm.forkRules.IsEIP158 && !transfersValue {
			return nil, nil, fork.Gas, nil
		}
		evm.StateDB.CreateAccount(fork.Target)
	}

	if transfersValue {
		if evm.readOnly {
			return nil, nil, fork.Gas, ErrWriteProtection
		}
		if err := moveValue(evm.StateDB, caller, fork.Target, fork.Value); err != nil {
			return nil, nil, fork.Gas, err
		}
		if evm.forkRules.IsEIP7708 && caller != fork.Target {
			EmitTransferLog(evm.StateDB, caller, fork.Target, fork.Value)
		}
	}

	if isPrecompile {
		out, left, perr := runPrecompile(p, fork.Input, fork.Gas)
		if perr != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
		}
		return nil, out, left, perr
	}

	code := evm.StateDB.GetCode(fork.Target)
	if len(code) == 0 {
		return nil, nil, fork.Gas, nil
	}

	contract := NewContract(caller, fork.Target, fork.Value, fork.Gas)
	contract.Code = code
	contract.CodeHash = evm.StateDB.GetCodeHash(fork.Target)
	contract.Input = fork.Input

	return &Machine{
		Parent: parent, Kind: FrameCall, Contract: contract,
		stack: NewStack(), mem: NewMemory(),
		caller: caller, target: fork.Target, value: fork.Value,
		snapshot: snapshot, retOffset: fork.RetOffset, retSize: fork.RetSize,
	}, nil, 0, nil
}

func (evm *EVM) prepareCallCode(parent *Machine, fork *PendingFork) (*Machine, []byte, uint64, error) {
	caller := parent.Contract.Address

	if p, ok := evm.precompile(fork.Target); ok {
		out, left, perr := runPrecompile(p, fork.Input, fork.Gas)
		return nil, out, left, perr
	}
	if evm.StateDB == nil {
		return nil, nil, fork.Gas, errors.New("no state database")
	}
	snapshot := evm.StateDB.Snapshot()

	code := evm.StateDB.GetCode(fork.Target)
	if len(code) == 0 {
		return nil, nil, fork.Gas, nil
	}

	// CALLCODE executes the callee's code in the caller's own context.
	contract := NewContract(caller, caller, fork.Value, fork.Gas)
	contract.Code = code
	contract.CodeHash = evm.StateDB.GetCodeHash(fork.Target)
	contract.Input = fork.Input

	return &Machine{
		Parent: parent, Kind: FrameCallCode, Contract: contract,
		stack: NewStack(), mem: NewMemory(),
		caller: caller, target: fork.Target, value: fork.Value,
		snapshot: snapshot, retOffset: fork.RetOffset, retSize: fork.RetSize,
	}, nil, 0, nil
}

func (evm *EVM) prepareDelegateCall(parent *Machine, fork *PendingFork) (*Machine, []byte, uint64, error) {
	caller := parent.Contract.CallerAddress

	if p, ok := evm.precompile(fork.Target); ok {
		out, left, perr := runPrecompile(p, fork.Input, fork.Gas)
		return nil, out, left, perr
	}
	if evm.StateDB == nil {
		return nil, nil, fork.Gas, errors.New("no state database")
	}
	snapshot := evm.StateDB.Snapshot()

	code := evm.StateDB.GetCode(fork.Target)
	if len(code) == 0 {
		return nil, nil, fork.Gas, nil
	}

	// DELEGATECALL preserves the original caller and value; storage
	// operations land on the caller's own account.
	contract := NewContract(caller, caller, nil, fork.Gas)
	contract.Code = code
	contract.CodeHash = evm.StateDB.GetCodeHash(fork.Target)
	contract.Input = fork.Input

	return &Machine{
		Parent: parent, Kind: FrameDelegateCall, Contract: contract,
		stack: NewStack(), mem: NewMemory(),
		caller: caller, target: fork.Target,
		snapshot: snapshot, retOffset: fork.RetOffset, retSize: fork.RetSize,
	}, nil, 0, nil
}

func (evm *EVM) prepareStaticCall(parent *Machine, fork *PendingFork) (*Machine, []byte, uint64, error) {
	caller := parent.Contract.Address

	if evm.StateDB == nil {
		return nil, nil, fork.Gas, errors.New("no state database")
	}
	snapshot := evm.StateDB.Snapshot()

	if p, ok := evm.precompile(fork.Target); ok {
		out, left, perr := runPrecompile(p, fork.Input, fork.Gas)
		if perr != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
		}
		return nil, out, left, perr
	}

	code := evm.StateDB.GetCode(fork.Target)
	if len(code) == 0 {
		return nil, nil, fork.Gas, nil
	}

	contract := NewContract(caller, fork.Target, new(big.Int), fork.Gas)
	contract.Code = code
	contract.CodeHash = evm.StateDB.GetCodeHash(fork.Target)
	contract.Input = fork.Input

	prevReadOnly := evm.readOnly
	evm.readOnly = true

	return &Machine{
		Parent: parent, Kind: FrameStaticCall, Contract: contract,
		stack: NewStack(), mem: NewMemory(),
		caller: caller, target: fork.Target,
		snapshot: snapshot, prevReadOnly: prevReadOnly,
		retOffset: fork.RetOffset, retSize: fork.RetSize,
	}, nil, 0, nil
}

func (evm *EVM) prepareCreate(parent *Machine, fork *PendingFork) (*Machine, []byte, uint64, error) {
	caller := parent.Contract.Address
	if evm.readOnly {
		return nil, nil, fork.Gas, ErrWriteProtection
	}
	if evm.StateDB == nil {
		return nil, nil, fork.Gas, errors.New("no state database")
	}

	var contractAddr types.Address
	if fork.Kind == FrameCreate {
		nonce := evm.StateDB.GetNonce(caller)
		evm.StateDB.SetNonce(caller, nonce+1)
		contractAddr = createAddress(caller, nonce)
	} else {
		initCodeHash := crypto.Keccak256(fork.Input)
		contractAddr = create2Address(caller, fork.Salt, initCodeHash)
	}

	maxInit := MaxInitCodeSizeForFork(evm.forkRules)
	if len(fork.Input) > maxInit {
		return nil, nil, fork.Gas, ErrMaxInitCodeSizeExceeded
	}

	contractHash := evm.StateDB.GetCodeHash(contractAddr)
	if evm.StateDB.GetNonce(contractAddr) != 0 ||
		(contractHash != (types.Hash{}) && contractHash != types.EmptyCodeHash) {
		return nil, nil, 0, errors.New("contract address collision")
	}

	evm.StateDB.AddAddressToAccessList(contractAddr)
	snapshot := evm.StateDB.Snapshot()

	if !evm.StateDB.Exist(contractAddr) {
		evm.StateDB.CreateAccount(contractAddr)
	}
	evm.StateDB.SetNonce(contractAddr, 1)

	value := fork.Value
	if value != nil && value.Sign() > 0 {
		if evm.StateDB.GetBalance(caller).Cmp(value) < 0 {
			return nil, nil, fork.Gas, errors.New("insufficient balance for transfer")
		}
		if err := moveValue(evm.StateDB, caller, contractAddr, value); err != nil {
			return nil, nil, fork.Gas, err
		}
		if evm.forkRules.IsEIP7708 {
			EmitTransferLog(evm.StateDB, caller, contractAddr, value)
		}
	}

	// EIP-150: retain 1/64 of the forwarded gas, give the rest to init code.
	retained := fork.Gas / CallGasFraction
	initGas := fork.Gas - retained

	contract := NewContract(caller, contractAddr, value, initGas)
	contract.Code = fork.Input

	return &Machine{
		Parent: parent, Kind: fork.Kind, Contract: contract,
		stack: NewStack(), mem: NewMemory(),
		caller: caller, target: contractAddr, value: value,
		snapshot: snapshot, createGas: retained,
	}, nil, 0, nil
}

// FinishFrame applies the revert/gas-left rules for a halted frame, exactly
// as EVM.Call/CallCode/DelegateCall/StaticCall/create do after their
// recursive evm.Run returns, and (for STATICCALL) restores the read-only
// flag the frame was entered with.
func (evm *EVM) FinishFrame(m *Machine) (ret []byte, gasLeft uint64, newAddr types.Address, err error) {
	if m.Kind == FrameStaticCall {
		evm.readOnly = m.prevReadOnly
	}

	if m.Kind == FrameCreate || m.Kind == FrameCreate2 {
		return evm.finishCreate(m)
	}

	gasLeft = m.Contract.Gas
	if m.Err != nil && !errors.Is(m.Err, ErrExecutionReverted) {
		evm.StateDB.RevertToSnapshot(m.snapshot)
		gasLeft = 0
	} else if errors.Is(m.Err, ErrExecutionReverted) {
		evm.StateDB.RevertToSnapshot(m.snapshot)
	}
	return m.Ret, gasLeft, types.Address{}, m.Err
}

func (evm *EVM) finishCreate(m *Machine) ([]byte, uint64, types.Address, error) {
	gas := m.createGas

	if m.Err != nil {
		evm.StateDB.RevertToSnapshot(m.snapshot)
		if !errors.Is(m.Err, ErrExecutionReverted) {
			return m.Ret, gas, types.Address{}, m.Err
		}
		gas += m.Contract.Gas
		return m.Ret, gas, types.Address{}, m.Err
	}

	gas += m.Contract.Gas
	ret := m.Ret
	if len(ret) > 0 {
		maxCode := MaxCodeSizeForFork(evm.forkRules)
		if len(ret) > maxCode {
			evm.StateDB.RevertToSnapshot(m.snapshot)
			return nil, 0, types.Address{}, errors.New("max code size exceeded")
		}
		depositCost := uint64(len(ret)) * CreateDataGas
		if gas < depositCost {
			evm.StateDB.RevertToSnapshot(m.snapshot)
			return nil, 0, types.Address{}, ErrOutOfGas
		}
		gas -= depositCost
		evm.StateDB.SetCode(m.target, ret)
	}
	return ret, gas, m.target, nil
}

// ApplyCallResult pushes a finished CALL/CREATE outcome onto the parent
// frame's stack and memory exactly as the opCall/opCreate family does after
// a synchronous evm.Call/evm.Create returns, then advances the parent past
// the CALL/CREATE opcode so the next Step resumes on the following
// instruction. kind/retOffset/retSize come from whichever PendingFork
// produced this outcome (read off the child Machine once it has run, or off
// the fork itself when PrepareFrame resolved it without creating a child).
func (evm *EVM) ApplyCallResult(parent *Machine, kind CallFrameType, retOffset, retSize uint64, ret []byte, gasLeft uint64, newAddr types.Address, err error) {
	parent.Contract.Gas += gasLeft
	evm.returnData = ret

	switch kind {
	case FrameCreate, FrameCreate2:
		if err != nil {
			parent.stack.Push(new(big.Int))
		} else {
			parent.stack.Push(new(big.Int).SetBytes(newAddr[:]))
		}
	default:
		CopyReturnData(parent.mem, retOffset, retSize, ret)
		if err != nil {
			parent.stack.Push(new(big.Int))
		} else {
			parent.stack.Push(big.NewInt(1))
		}
	}
	parent.pc++
}
