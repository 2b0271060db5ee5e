package holder

import (
	"bytes"
	"testing"

	"github.com/eth2028/eth2028/account"
)

func TestWriteOutOfOrderThenFinalize(t *testing.T) {
	h := New(account.Pubkey{1})
	h.Write(4, []byte{5, 6, 7, 8})
	h.Write(0, []byte{1, 2, 3, 4})

	if _, err := h.Transaction(); err != ErrIncomplete {
		t.Fatalf("err = %v, want ErrIncomplete before Finalize", err)
	}

	h.Finalize([32]byte{0xaa})
	trx, err := h.Transaction()
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(trx, want) {
		t.Fatalf("trx = %v, want %v", trx, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := New(account.Pubkey{1})
	h.Write(0, []byte{1, 2, 3})
	h.Finalize([32]byte{0xbb})

	decoded, err := Decode(h.Owner, h.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	trx, err := decoded.Transaction()
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if !bytes.Equal(trx, []byte{1, 2, 3}) {
		t.Fatalf("trx = %v, want [1 2 3]", trx)
	}
	hash, ok := decoded.TransactionHash()
	if !ok || hash != ([32]byte{0xbb}) {
		t.Fatalf("hash = %v, ok = %v", hash, ok)
	}
}

func TestReset(t *testing.T) {
	h := New(account.Pubkey{1})
	h.Write(0, []byte{1, 2, 3})
	h.Finalize([32]byte{0xcc})
	h.Reset()

	if h.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after Reset", h.Len())
	}
	if _, err := h.Transaction(); err != ErrIncomplete {
		t.Fatalf("err = %v, want ErrIncomplete after Reset", err)
	}
}
