// Package holder implements the supplemented Holder account: a byte
// buffer an Ethereum transaction's raw bytes are uploaded into across
// several host instructions (a transaction can exceed one instruction's
// payload limit), before a State account (component I) is created from
// it.
//
// Grounded on the teacher's core/vm/memory.go idiom: a growable byte
// buffer addressed by (offset, size), expanded lazily on write.
package holder

import (
	"errors"

	"github.com/eth2028/eth2028/account"
)

// ErrIncomplete is returned by Transaction when the holder hasn't
// received a Finalize call yet, so its buffer may still be a partial
// transaction.
var ErrIncomplete = errors.New("holder: transaction not finalized")

// Holder is a write-once-per-offset byte buffer for one pending
// transaction upload, tagged account.TagHolder on the host.
type Holder struct {
	Owner      account.Pubkey
	store      []byte
	finalized  bool
	trxHash    [32]byte
	hasTrxHash bool
}

// New creates an empty Holder for owner.
func New(owner account.Pubkey) *Holder {
	return &Holder{Owner: owner}
}

// Write copies data into the holder's buffer at offset, growing the
// buffer as needed -- mirrors Memory.Set/Resize's lazy-grow pattern,
// except a holder never shrinks and writes may land anywhere, not just
// at the current high-water mark (the uploader can send chunks out of
// order).
func (h *Holder) Write(offset uint64, data []byte) {
	end := offset + uint64(len(data))
	if end > uint64(len(h.store)) {
		grown := make([]byte, end)
		copy(grown, h.store)
		h.store = grown
	}
	copy(h.store[offset:end], data)
}

// Len reports the current buffer length (the high-water mark of every
// Write so far, not necessarily the final transaction's true length until
// Finalize has been called).
func (h *Holder) Len() int { return len(h.store) }

// Finalize marks the upload complete and records the expected
// transaction hash, after which Transaction will return the buffered
// bytes. A holder's owner is expected to check the uploaded bytes hash to
// trxHash themselves (this package doesn't impose a hash function) before
// calling Finalize.
func (h *Holder) Finalize(trxHash [32]byte) {
	h.finalized = true
	h.trxHash = trxHash
	h.hasTrxHash = true
}

// Reset clears the buffer and finalized flag, for reuse by a new upload
// (the real program reuses a Holder account across transactions rather
// than requiring a fresh one each time).
func (h *Holder) Reset() {
	h.store = nil
	h.finalized = false
	h.hasTrxHash = false
}

// Transaction returns the buffered transaction bytes once Finalize has
// been called. Returns ErrIncomplete otherwise.
func (h *Holder) Transaction() ([]byte, error) {
	if !h.finalized {
		return nil, ErrIncomplete
	}
	out := make([]byte, len(h.store))
	copy(out, h.store)
	return out, nil
}

// TransactionHash returns the hash recorded at the last Finalize call.
func (h *Holder) TransactionHash() ([32]byte, bool) {
	return h.trxHash, h.hasTrxHash
}

// Encode serializes the holder as [tag][finalized:1][hash:32][len:8][data],
// the on-host byte layout for a TagHolder account.
func (h *Holder) Encode() []byte {
	buf := make([]byte, 1+1+32+8+len(h.store))
	buf[0] = byte(account.TagHolder)
	if h.finalized {
		buf[1] = 1
	}
	copy(buf[2:34], h.trxHash[:])
	n := uint64(len(h.store))
	for i := 0; i < 8; i++ {
		buf[34+i] = byte(n >> (56 - 8*i))
	}
	copy(buf[42:], h.store)
	return buf
}

// Decode parses the layout Encode produces.
func Decode(owner account.Pubkey, data []byte) (*Holder, error) {
	if len(data) < 42 {
		return nil, errors.New("holder: short buffer")
	}
	if account.Tag(data[0]) != account.TagHolder {
		return nil, account.ErrAccountInvalidTag
	}
	h := &Holder{Owner: owner}
	h.finalized = data[1] == 1
	copy(h.trxHash[:], data[2:34])
	h.hasTrxHash = h.finalized
	var n uint64
	for i := 0; i < 8; i++ {
		n = n<<8 | uint64(data[34+i])
	}
	if uint64(len(data)-42) < n {
		return nil, errors.New("holder: truncated buffer")
	}
	h.store = append([]byte(nil), data[42:42+n]...)
	return h, nil
}
