// Package hostchain implements the host-extension precompile tier (spec
// §4.D's second routing tier, §6's seed convention): fixed addresses that,
// instead of running EVM bytecode, parse an ABI-style call and enqueue a
// host cross-program invocation as an ExternalInstruction action.
//
// Grounded on original_source/evm_loader/program/src/executor/precompile_extension/
// spl_token.rs and metaplex.rs for the selector tables and argument layout;
// per spec §1's non-goals the actual SPL Token / Metaplex instruction
// construction is out of scope, so that step is an injected Builder this
// package calls into rather than something it does itself.
package hostchain

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/eth2028/eth2028/account"
	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/overlay"
)

var (
	ErrUnknownSelector    = errors.New("hostchain: unknown precompile selector")
	ErrShortInput         = errors.New("hostchain: input shorter than its selector's argument layout")
	ErrValueNotZero       = errors.New("hostchain: a host-extension call must carry zero value")
	ErrStaticViolation    = errors.New("hostchain: mutating call made from a static context")
	ErrCallcodeDisallowed = errors.New("hostchain: callcode into a host-extension precompile is not allowed")
)

// Selector is the 4-byte ABI selector at the front of a host-extension
// call's input, matching Solidity's standard function-selector layout.
type Selector [4]byte

// Call describes one dispatched host-extension invocation after its
// fixed-width calldata fields have been decoded, handed to the injected
// Builder so it can construct the real host instruction.
type Call struct {
	Selector Selector
	Caller   types.Address
	Args     []account.Pubkey
	Amounts  []uint64
	Extra    byte // e.g. decimals for initializeMint
	HasExtra bool
	Raw      []byte // calldata past the selector, verbatim, for selectors whose layout isn't fixed-width pubkeys/amounts (e.g. Metaplex's createMetadata strings)
}

// Builder constructs the real host instruction for a parsed Call -- the
// SPL Token / Metaplex business logic spec's non-goals put out of scope.
// A production deployment supplies one; this package only ever calls it,
// never assumes a particular wire format for the result.
type Builder interface {
	Build(call Call) (programID [32]byte, accounts []overlay.AccountMeta, data []byte, fee uint64, err error)
}

// entry is one selector's argument layout plus its read-only status
// (spec's is_static check -- mutating selectors reject a static call).
type entry struct {
	argPubkeys  int  // number of consecutive 32-byte pubkey args
	argAmounts  int  // number of trailing 8-byte (uint64) args after the pubkeys
	hasDecimals bool // one extra trailing byte (initializeMint's decimals)
	readOnly    bool
}

// Table is one precompile address's full selector table.
type Table map[Selector]entry

// SplTokenAddress is the fixed precompile address the SPL token dispatch
// tier lives at, matching the original's PRECOMPILE_ERC20_WRAPPER-style
// convention of a well-known high address.
var SplTokenAddress = types.HexToAddress("0xff00000000000000000000000000000000000004")

// SplTokenTable is the selector table spl_token.rs dispatches on. Each
// entry names how many leading 32-byte pubkey args and trailing 8-byte
// amount args the call carries, so Dispatch can decode calldata generically
// without per-selector parsing code.
var SplTokenTable = Table{
	{0xb1, 0x1e, 0xcc, 0x50}: {argPubkeys: 1, hasDecimals: true},              // initializeMint(seed, decimals)
	{0xc3, 0xf3, 0xf2, 0xf2}: {argPubkeys: 3, hasDecimals: true},              // initializeMint(seed, decimals, mint_authority, freeze_authority)
	{0xda, 0xa1, 0x2c, 0x5c}: {argPubkeys: 2},                                 // initializeAccount(seed, mint)
	{0xfc, 0x86, 0xb7, 0x17}: {argPubkeys: 3},                                 // initializeAccount(seed, mint, owner)
	{0x57, 0x82, 0xa0, 0x43}: {argPubkeys: 1},                                 // closeAccount(account)
	{0xa9, 0xc1, 0x58, 0x06}: {argPubkeys: 2, argAmounts: 1},                  // approve(source, target, amount)
	{0xb7, 0x5c, 0x7d, 0xc6}: {argPubkeys: 1},                                 // revoke(source)
	{0x78, 0x42, 0x3b, 0xcf}: {argPubkeys: 2, argAmounts: 1},                  // transfer(source, target, amount)
	{0xa9, 0x05, 0x74, 0x01}: {argPubkeys: 1, argAmounts: 1},                  // mintTo(account, amount)
	{0xe3, 0x41, 0x08, 0x55}: {argPubkeys: 1, argAmounts: 1},                  // burn(account, amount)
	{0xec, 0x13, 0xcc, 0x7b}: {argPubkeys: 1},                                 // freeze(account)
	{0xc2, 0x59, 0xdd, 0xfe}: {argPubkeys: 1},                                 // thaw(account)
	{0x38, 0xa6, 0x99, 0xa4}: {argPubkeys: 1, readOnly: true},                 // exists(account)
	{0xeb, 0x7d, 0xa7, 0x8c}: {argPubkeys: 1, readOnly: true},                 // findAccount(account)
	{0xd1, 0xde, 0x50, 0x11}: {argPubkeys: 1, readOnly: true},                 // getAccount(account)
	{0xa2, 0xce, 0x9c, 0x1f}: {argPubkeys: 1, readOnly: true},                 // getMint(account)
}

// Registry maps a precompile address to its Table and Builder.
type Registry struct {
	entries map[types.Address]registeredTable
}

type registeredTable struct {
	table   Table
	builder Builder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[types.Address]registeredTable)}
}

// Register binds a precompile address to its selector table and builder.
func (r *Registry) Register(addr types.Address, table Table, builder Builder) {
	r.entries[addr] = registeredTable{table: table, builder: builder}
}

// IsHostExtension reports whether addr is a registered host-extension
// precompile. This is the function executor.Driver.IsHostExtension is
// wired to once hostchain is constructed.
func (r *Registry) IsHostExtension(addr types.Address) bool {
	_, ok := r.entries[addr]
	return ok
}

// Dispatch parses input's selector against addr's table, decodes its
// fixed-width arguments, asks the registered Builder to construct the
// real host instruction, and enqueues it as an ExternalInstruction action
// on state, signed by the caller's derived external authority
// (["EVM", caller, bump], spec §6, account.ExternalAuthorityKey).
//
// Mirrors spl_token.rs's own top-of-function checks: value must be zero,
// callcode (contract == caller, i.e. DELEGATECALL-as-CALL) is disallowed,
// and a delegatecall is only permitted from the top-level contract frame
// -- callDepth is the interpreter's current call depth, contract/caller
// the frame's own addresses.
func Dispatch(programID account.Pubkey, state *overlay.OverlayState, registry *Registry, addr, contract, caller types.Address, value *big.Int, input []byte, callDepth int, isStatic bool) error {
	if value != nil && value.Sign() != 0 {
		return ErrValueNotZero
	}
	if contract == caller {
		return ErrCallcodeDisallowed
	}
	if contract != addr && callDepth != 1 {
		return errors.New("hostchain: delegatecall is only allowed in the top-level contract")
	}
	if len(input) < 4 {
		return ErrShortInput
	}

	reg, ok := registry.entries[addr]
	if !ok {
		return ErrUnknownSelector
	}
	var sel Selector
	copy(sel[:], input[:4])
	e, ok := reg.table[sel]
	if !ok {
		return ErrUnknownSelector
	}
	if isStatic && !e.readOnly {
		return ErrStaticViolation
	}

	call, err := decodeCall(sel, caller, input[4:], e)
	if err != nil {
		return err
	}

	hostProgramID, accounts, data, fee, err := reg.builder.Build(call)
	if err != nil {
		return err
	}

	_, bump := account.ExternalAuthorityKey(programID, caller)
	seeds := [][]byte{[]byte("EVM"), caller.Bytes(), {bump}}
	state.ExternalInstruction(hostProgramID, accounts, data, seeds, fee)
	return nil
}

func decodeCall(sel Selector, caller types.Address, args []byte, e entry) (Call, error) {
	need := e.argPubkeys*32 + e.argAmounts*8
	if e.hasDecimals {
		need += 32 // decimals is read from a full word like the original's read_u8
	}
	if len(args) < need {
		return Call{}, ErrShortInput
	}

	call := Call{Selector: sel, Caller: caller, Raw: args}
	off := 0
	for i := 0; i < e.argPubkeys; i++ {
		var pk account.Pubkey
		copy(pk[:], args[off:off+32])
		call.Args = append(call.Args, pk)
		off += 32
	}
	if e.hasDecimals {
		call.Extra = args[off+31]
		call.HasExtra = true
		off += 32
	}
	for i := 0; i < e.argAmounts; i++ {
		call.Amounts = append(call.Amounts, binary.BigEndian.Uint64(args[off+24:off+32]))
		off += 32
	}
	return call, nil
}
