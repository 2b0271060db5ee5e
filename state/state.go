// Package state implements component I: the iterative-persistence account
// that carries one multi-step EVM transaction's progress across separate
// host instructions. A transaction too large to run in a single instruction
// suspends mid-execution; this package is where its frame stack, action
// log, gas accounting and revision bookkeeping live between steps.
//
// Grounded on original_source/evm_loader/program/src/account/state.rs's
// Data/Header/StateAccount: a [tag][version][header][heap] byte layout
// where the header stores relative offsets into a bump-allocated heap
// rather than a self-describing encoding, so resuming a step never pays
// for a full deserialization pass. This package keeps that shape -- Heap is
// a plain watermark bump allocator, Header stores byte-range offsets, and
// StateAccount.Encode/Decode round-trip the whole thing through a single
// buffer rather than building a tree of Go values up front.
package state

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/eth2028/eth2028/account"
	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/overlay"
	"github.com/eth2028/eth2028/rlp"
)

// Status reports whether Restore found every pre-declared account still at
// the revision recorded the last time this StateAccount observed it.
type Status int

const (
	StatusOK Status = iota
	StatusRevisionChanged
)

func (s Status) String() string {
	if s == StatusRevisionChanged {
		return "RevisionChanged"
	}
	return "Ok"
}

var (
	ErrInvalidTag   = errors.New("state: account has the wrong tag for this operation")
	ErrShortAccount = errors.New("state: account buffer too short to hold a header")
)

// Heap is a bump allocator over one growable byte buffer: every
// allocation is appended at the current watermark and returned by its
// (offset, length); nothing is ever freed individually, since a
// StateAccount's whole heap is rebuilt from scratch each time New
// constructs one. Mirrors linked_list_allocator::Heap as state.rs's
// init_heap/alloc_executor_state/alloc_evm use it, minus the free-list
// machinery this program never exercises.
type Heap struct {
	buf []byte
}

// NewHeap creates an empty heap with capacity pre-reserved.
func NewHeap(capacity int) *Heap {
	return &Heap{buf: make([]byte, 0, capacity)}
}

// Alloc appends data to the heap and returns the (offset, length) region
// it now occupies.
func (h *Heap) Alloc(data []byte) (offset, length int) {
	offset = len(h.buf)
	h.buf = append(h.buf, data...)
	return offset, len(data)
}

// Slice projects a previously allocated region back out of the heap --
// the Go stand-in for state.rs's ManuallyDrop<T> projection: instead of
// decoding a structure into a fresh Go value, callers that only need the
// raw bytes (e.g. to forward into a host instruction verbatim) can take
// this slice directly.
func (h *Heap) Slice(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(h.buf) {
		return nil, errors.New("state: heap region out of bounds")
	}
	return h.buf[offset : offset+length], nil
}

func (h *Heap) Bytes() []byte { return h.buf }

// Region is a late-bound (account key, byte range) reference into a host
// account's own storage. It is never resolved to a pointer ahead of time:
// a host account's backing buffer can move between instruction
// invocations (e.g. after a resize), so every read re-resolves through
// Backend at the moment it's needed, per spec §4.I.
type Region struct {
	Key    account.Pubkey
	Offset int
	Length int
}

// Resolve re-reads the byte range this Region names from backend.
func (r Region) Resolve(backend account.Backend) ([]byte, error) {
	data, err := backend.CloneSolanaAccount(r.Key)
	if err != nil {
		return nil, err
	}
	if r.Offset < 0 || r.Length < 0 || r.Offset+r.Length > len(data) {
		return nil, errors.New("state: region out of bounds")
	}
	return data[r.Offset : r.Offset+r.Length], nil
}

// Header stores the relative byte offsets of the three blocks a
// StateAccount persists in its heap: the suspended interpreter frame
// stack, the overlay action log, and the fixed Data record. All three are
// opaque byte ranges from the Heap's point of view; only StateAccount
// knows how to interpret them.
type Header struct {
	FrameStackOffset int
	FrameStackLength int
	OverlayOffset    int
	OverlayLength    int
	DataOffset       int
	DataLength       int
}

const headerEncodedLen = 6 * 8

func (h Header) encode() []byte {
	buf := make([]byte, headerEncodedLen)
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.FrameStackOffset))
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.FrameStackLength))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.OverlayOffset))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.OverlayLength))
	binary.BigEndian.PutUint64(buf[32:40], uint64(h.DataOffset))
	binary.BigEndian.PutUint64(buf[40:48], uint64(h.DataLength))
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerEncodedLen {
		return Header{}, ErrShortAccount
	}
	return Header{
		FrameStackOffset: int(binary.BigEndian.Uint64(buf[0:8])),
		FrameStackLength: int(binary.BigEndian.Uint64(buf[8:16])),
		OverlayOffset:    int(binary.BigEndian.Uint64(buf[16:24])),
		OverlayLength:    int(binary.BigEndian.Uint64(buf[24:32])),
		DataOffset:       int(binary.BigEndian.Uint64(buf[32:40])),
		DataLength:       int(binary.BigEndian.Uint64(buf[40:48])),
	}, nil
}

// revisionEntry is Data.Revisions's wire shape: rlp has no native map
// encoding, so the TreeMap<Pubkey,u32> state.rs carries is flattened to a
// slice of pairs for the encoded form and rebuilt into a map on decode.
type revisionEntry struct {
	Key      account.Pubkey
	Revision uint32
}

// rlpData is Data's wire shape.
type rlpData struct {
	Owner     account.Pubkey
	Origin    types.Address
	GasLimit  *big.Int
	GasPrice  *big.Int
	ChainID   uint64
	HasChainID bool
	GasUsed   *big.Int
	Revisions []revisionEntry
}

// Data is the fixed, persisted core of a StateAccount: owner, the gas
// triple needed to resume accounting, the caller address, the per-account
// revision map the guard compares against on Restore, and gas used so
// far. Mirrors state.rs's Data struct; Transaction is narrowed to the gas
// fields this program actually needs across steps rather than the whole
// RLP transaction (the original transaction bytes live in the Holder
// account the state was created from, per spec's Holder lifecycle).
type Data struct {
	Owner     account.Pubkey
	Origin    types.Address
	GasLimit  *big.Int
	GasPrice  *big.Int
	ChainID   *uint64
	GasUsed   *big.Int
	Revisions map[account.Pubkey]uint32
}

func (d *Data) encode() []byte {
	w := rlpData{
		Owner:     d.Owner,
		Origin:    d.Origin,
		GasLimit:  d.GasLimit,
		GasPrice:  d.GasPrice,
		GasUsed:   d.GasUsed,
		Revisions: make([]revisionEntry, 0, len(d.Revisions)),
	}
	if d.ChainID != nil {
		w.HasChainID = true
		w.ChainID = *d.ChainID
	}
	for k, v := range d.Revisions {
		w.Revisions = append(w.Revisions, revisionEntry{Key: k, Revision: v})
	}
	buf, err := rlp.EncodeToBytes(&w)
	if err != nil {
		panic("state: Data encode: " + err.Error())
	}
	return buf
}

func decodeData(buf []byte) (*Data, error) {
	var w rlpData
	if err := rlp.DecodeBytes(buf, &w); err != nil {
		return nil, err
	}
	d := &Data{
		Owner:     w.Owner,
		Origin:    w.Origin,
		GasLimit:  w.GasLimit,
		GasPrice:  w.GasPrice,
		GasUsed:   w.GasUsed,
		Revisions: make(map[account.Pubkey]uint32, len(w.Revisions)),
	}
	if w.HasChainID {
		chainID := w.ChainID
		d.ChainID = &chainID
	}
	for _, e := range w.Revisions {
		d.Revisions[e.Key] = e.Revision
	}
	return d, nil
}

// chainID resolves the gas-accounting chain id: the transaction's own, or
// defaultChainID if it never specified one, per state.rs's
// trx.chain_id().unwrap_or_else(|| backend.default_chain_id()).
func (d *Data) chainID(defaultChainID uint64) uint64 {
	if d.ChainID != nil {
		return *d.ChainID
	}
	return defaultChainID
}

// StateAccount is the in-process view of one host state account: its
// Data block plus the raw bytes of its suspended frame stack and overlay
// action log, which only the driver (component L) and overlay package
// know how to interpret.
type StateAccount struct {
	Key    account.Pubkey
	Header Header
	Data   *Data

	FrameStack []byte
	OverlayLog []byte
}

// New creates a fresh StateAccount for a transaction about to begin
// iterative execution, seeding its revision map from every account in
// revisionSource at the keys it is told to watch -- mirroring state.rs's
// New, which snapshots the revision of every account in the instruction's
// AccountsDB at creation time.
func New(key account.Pubkey, owner account.Pubkey, origin types.Address, gasLimit, gasPrice *big.Int, chainID *uint64, watch []account.Pubkey, revisions account.RevisionSource) *StateAccount {
	d := &Data{
		Owner:     owner,
		Origin:    origin,
		GasLimit:  new(big.Int).Set(gasLimit),
		GasPrice:  new(big.Int).Set(gasPrice),
		GasUsed:   new(big.Int),
		Revisions: make(map[account.Pubkey]uint32, len(watch)),
	}
	if chainID != nil {
		cp := *chainID
		d.ChainID = &cp
	}
	for _, k := range watch {
		d.Revisions[k] = revisions.Revision(k)
	}
	return &StateAccount{Key: key, Data: d}
}

// Restore decodes a previously persisted StateAccount and compares every
// watched account's current host revision against the one recorded at the
// last step. Any mismatch bumps the stored revision and reports
// StatusRevisionChanged, telling the driver (component L) to discard its
// resumed frame stack and restart the transaction from the beginning --
// mirroring state.rs's restore.
func Restore(key account.Pubkey, encoded []byte, revisions account.RevisionSource) (*StateAccount, Status, error) {
	s, err := Decode(key, encoded)
	if err != nil {
		return nil, StatusOK, err
	}

	status := StatusOK
	for watched, storedRev := range s.Data.Revisions {
		currentRev := revisions.Revision(watched)
		if currentRev != storedRev {
			status = StatusRevisionChanged
			s.Data.Revisions[watched] = currentRev
		}
	}
	return s, status, nil
}

// Accounts returns every host account key this StateAccount's revision
// guard is watching.
func (s *StateAccount) Accounts() []account.Pubkey {
	keys := make([]account.Pubkey, 0, len(s.Data.Revisions))
	for k := range s.Data.Revisions {
		keys = append(keys, k)
	}
	return keys
}

// GasAvailable returns gas_limit - gas_used, floored at zero.
func (s *StateAccount) GasAvailable() *big.Int {
	avail := new(big.Int).Sub(s.Data.GasLimit, s.Data.GasUsed)
	if avail.Sign() < 0 {
		return new(big.Int)
	}
	return avail
}

// ConsumeGas charges amount against this StateAccount's persistent
// gas_used counter and mints amount*gas_price to receiver, per state.rs's
// consume_gas. amount==0 is always a no-op.
func (s *StateAccount) ConsumeGas(backend account.Backend, mutator account.Mutator, defaultChainID uint64, receiver types.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	trxChainID := s.Data.chainID(defaultChainID)
	if backend.ChainID() != trxChainID {
		return errGasReceiverInvalidChainID
	}
	total := new(big.Int).Add(s.Data.GasUsed, amount)
	if total.Cmp(s.Data.GasLimit) > 0 {
		return &OutOfGasError{Limit: new(big.Int).Set(s.Data.GasLimit), Used: total}
	}
	s.Data.GasUsed = total
	tokens := new(big.Int).Mul(amount, s.Data.GasPrice)
	mutator.SetBalance(receiver, new(big.Int).Add(backend.Balance(receiver), tokens))
	return nil
}

// RefundUnusedGas consumes gas_limit-gas_used against origin, per
// state.rs's refund_unused_gas.
func (s *StateAccount) RefundUnusedGas(backend account.Backend, mutator account.Mutator, defaultChainID uint64) error {
	return s.ConsumeGas(backend, mutator, defaultChainID, s.Data.Origin, s.GasAvailable())
}

var errGasReceiverInvalidChainID = errors.New("state: gas receiver on wrong chain")

// OutOfGasError reports that a gas charge would exceed gas_limit.
type OutOfGasError struct {
	Limit *big.Int
	Used  *big.Int
}

func (e *OutOfGasError) Error() string {
	return "state: out of gas (limit " + e.Limit.String() + ", attempted " + e.Used.String() + ")"
}

// Encode lays the StateAccount out as [tag][version][header][heap], the
// on-host byte representation a Holder/State account stores between
// steps. The heap holds, in order, the frame stack bytes, the overlay log
// bytes, and the rlp-encoded Data block; Header records each one's
// (offset, length) within it.
func (s *StateAccount) Encode() []byte {
	heap := NewHeap(len(s.FrameStack) + len(s.OverlayLog) + 256)

	frameOff, frameLen := heap.Alloc(s.FrameStack)
	overlayOff, overlayLen := heap.Alloc(s.OverlayLog)
	dataOff, dataLen := heap.Alloc(s.Data.encode())

	header := Header{
		FrameStackOffset: frameOff,
		FrameStackLength: frameLen,
		OverlayOffset:    overlayOff,
		OverlayLength:    overlayLen,
		DataOffset:       dataOff,
		DataLength:       dataLen,
	}

	buf := make([]byte, 0, 2+headerEncodedLen+len(heap.Bytes()))
	buf = append(buf, byte(account.TagState), 0)
	buf = append(buf, header.encode()...)
	buf = append(buf, heap.Bytes()...)
	return buf
}

// Decode parses the layout Encode produces.
func Decode(key account.Pubkey, buf []byte) (*StateAccount, error) {
	if len(buf) < 2+headerEncodedLen {
		return nil, ErrShortAccount
	}
	if account.Tag(buf[0]) != account.TagState {
		return nil, ErrInvalidTag
	}
	header, err := decodeHeader(buf[2 : 2+headerEncodedLen])
	if err != nil {
		return nil, err
	}
	heap := &Heap{buf: buf[2+headerEncodedLen:]}

	frameStack, err := heap.Slice(header.FrameStackOffset, header.FrameStackLength)
	if err != nil {
		return nil, err
	}
	overlayLog, err := heap.Slice(header.OverlayOffset, header.OverlayLength)
	if err != nil {
		return nil, err
	}
	dataBuf, err := heap.Slice(header.DataOffset, header.DataLength)
	if err != nil {
		return nil, err
	}
	data, err := decodeData(dataBuf)
	if err != nil {
		return nil, err
	}

	return &StateAccount{
		Key:        key,
		Header:     header,
		Data:       data,
		FrameStack: append([]byte(nil), frameStack...),
		OverlayLog: append([]byte(nil), overlayLog...),
	}, nil
}

// Finalize marks a StateAccount's backing host account as finished:
// component L calls this once the apply pipeline (component K) has
// successfully replayed the overlay log, after which the account is
// retagged TagStateFinalized and must never be restored again. Unlike
// state.rs's finalize, which consumes self by value to enforce this at
// the type level, the Go caller is responsible for not calling Restore
// again on a finalized account's key.
func (s *StateAccount) Finalize() []byte {
	buf := make([]byte, 1)
	buf[0] = byte(account.TagStateFinalized)
	return buf
}

// SnapshotOverlay captures an OverlayState's action log for persistence
// between steps. The log is re-applied by the driver replaying each
// Action against a freshly constructed OverlayState on the next step,
// rather than decoded back into a live OverlayState directly -- component
// L owns that replay, this package only carries the bytes.
func SnapshotOverlay(log []overlay.Action) ([]byte, error) {
	return rlp.EncodeToBytes(log)
}

// RestoreOverlayLog decodes a previously snapshotted action log.
func RestoreOverlayLog(buf []byte) ([]overlay.Action, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	var log []overlay.Action
	if err := rlp.DecodeBytes(buf, &log); err != nil {
		return nil, err
	}
	return log, nil
}
