package state

import (
	"math/big"
	"testing"

	"github.com/eth2028/eth2028/account"
	"github.com/eth2028/eth2028/core/types"
)

type fakeRevisions struct {
	revs map[account.Pubkey]uint32
}

func (f *fakeRevisions) Revision(key account.Pubkey) uint32 { return f.revs[key] }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	owner := account.Pubkey{1}
	watched := account.Pubkey{2}
	origin := types.Address{0xaa}

	revs := &fakeRevisions{revs: map[account.Pubkey]uint32{watched: 3}}
	s := New(account.Pubkey{9}, owner, origin, big.NewInt(21000), big.NewInt(1), nil, []account.Pubkey{watched}, revs)
	s.FrameStack = []byte{1, 2, 3}
	s.OverlayLog = []byte{4, 5}

	encoded := s.Encode()

	decoded, err := Decode(s.Key, encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Data.Owner != owner {
		t.Fatalf("owner mismatch")
	}
	if decoded.Data.Origin != origin {
		t.Fatalf("origin mismatch")
	}
	if decoded.Data.GasLimit.Cmp(big.NewInt(21000)) != 0 {
		t.Fatalf("gas limit mismatch: %s", decoded.Data.GasLimit)
	}
	if decoded.Data.Revisions[watched] != 3 {
		t.Fatalf("revisions mismatch: %v", decoded.Data.Revisions)
	}
	if string(decoded.FrameStack) != string([]byte{1, 2, 3}) {
		t.Fatalf("frame stack mismatch: %v", decoded.FrameStack)
	}
	if string(decoded.OverlayLog) != string([]byte{4, 5}) {
		t.Fatalf("overlay log mismatch: %v", decoded.OverlayLog)
	}
}

func TestRestoreDetectsRevisionChange(t *testing.T) {
	owner := account.Pubkey{1}
	watched := account.Pubkey{2}

	revs := &fakeRevisions{revs: map[account.Pubkey]uint32{watched: 1}}
	s := New(account.Pubkey{9}, owner, types.Address{}, big.NewInt(21000), big.NewInt(1), nil, []account.Pubkey{watched}, revs)
	encoded := s.Encode()

	_, status, err := Restore(s.Key, encoded, revs)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("status = %v, want StatusOK", status)
	}

	revs.revs[watched] = 2
	restored, status, err := Restore(s.Key, encoded, revs)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if status != StatusRevisionChanged {
		t.Fatalf("status = %v, want StatusRevisionChanged", status)
	}
	if restored.Data.Revisions[watched] != 2 {
		t.Fatalf("restore did not update stored revision")
	}
}

func TestConsumeGasAndRefund(t *testing.T) {
	owner := account.Pubkey{1}
	origin := types.Address{0xaa}
	chainID := uint64(1)

	s := New(account.Pubkey{9}, owner, origin, big.NewInt(1000), big.NewInt(2), &chainID, nil, &fakeRevisions{revs: map[account.Pubkey]uint32{}})

	e := account.NewEmulator(account.Pubkey{5}, types.Address{}, 1, 1, nil)
	receiver := types.Address{0x01}

	if err := s.ConsumeGas(e, e, 1, receiver, big.NewInt(100)); err != nil {
		t.Fatalf("ConsumeGas: %v", err)
	}
	if s.Data.GasUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("gas used = %s, want 100", s.Data.GasUsed)
	}
	if e.Balance(receiver).Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("receiver balance = %s, want 200", e.Balance(receiver))
	}

	if err := s.RefundUnusedGas(e, e, 1); err != nil {
		t.Fatalf("RefundUnusedGas: %v", err)
	}
	if s.Data.GasUsed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("gas used after refund = %s, want full limit", s.Data.GasUsed)
	}
	want := new(big.Int).Mul(big.NewInt(900), big.NewInt(2))
	if e.Balance(origin).Cmp(want) != 0 {
		t.Fatalf("origin balance = %s, want %s", e.Balance(origin), want)
	}
}
