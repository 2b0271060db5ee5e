package gasometer

import (
	"math/big"
	"testing"

	"github.com/eth2028/eth2028/account"
	"github.com/eth2028/eth2028/core/types"
)

var testProgramID = account.Pubkey{1}

func newTestEmulator(chainID uint64) *account.Emulator {
	return account.NewEmulator(testProgramID, types.Address{}, chainID, chainID, nil)
}

func TestConsumeGasZeroIsNoop(t *testing.T) {
	e := newTestEmulator(1)
	g := New(1, big.NewInt(21000), big.NewInt(10))
	receiver := types.Address{0x01}

	if err := g.ConsumeGas(e, e, receiver, big.NewInt(0)); err != nil {
		t.Fatalf("ConsumeGas(0): %v", err)
	}
	if g.GasUsed.Sign() != 0 {
		t.Fatalf("gas used changed on zero-amount charge: %s", g.GasUsed)
	}
	if e.Balance(receiver).Sign() != 0 {
		t.Fatalf("receiver balance changed on zero-amount charge")
	}
}

func TestConsumeGasMintsToReceiver(t *testing.T) {
	e := newTestEmulator(1)
	g := New(1, big.NewInt(21000), big.NewInt(10))
	receiver := types.Address{0x01}

	if err := g.ConsumeGas(e, e, receiver, big.NewInt(100)); err != nil {
		t.Fatalf("ConsumeGas: %v", err)
	}
	if g.GasUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("gas used = %s, want 100", g.GasUsed)
	}
	want := big.NewInt(1000) // 100 gas * price 10
	if e.Balance(receiver).Cmp(want) != 0 {
		t.Fatalf("receiver balance = %s, want %s", e.Balance(receiver), want)
	}
}

func TestConsumeGasOutOfGas(t *testing.T) {
	e := newTestEmulator(1)
	g := New(1, big.NewInt(100), big.NewInt(1))
	receiver := types.Address{0x01}

	err := g.ConsumeGas(e, e, receiver, big.NewInt(150))
	if err == nil {
		t.Fatal("expected OutOfGasError")
	}
	if _, ok := err.(*OutOfGasError); !ok {
		t.Fatalf("expected *OutOfGasError, got %T", err)
	}
	if g.GasUsed.Sign() != 0 {
		t.Fatalf("gas used must not advance on a rejected charge")
	}
}

func TestConsumeGasWrongChain(t *testing.T) {
	e := newTestEmulator(2)
	g := New(1, big.NewInt(21000), big.NewInt(10))
	receiver := types.Address{0x01}

	err := g.ConsumeGas(e, e, receiver, big.NewInt(10))
	if err != ErrGasReceiverInvalidChainId {
		t.Fatalf("err = %v, want ErrGasReceiverInvalidChainId", err)
	}
}

func TestRefundUnusedGas(t *testing.T) {
	e := newTestEmulator(1)
	g := New(1, big.NewInt(21000), big.NewInt(5))
	origin := types.Address{0x02}

	if err := g.ConsumeGas(e, e, types.Address{0x01}, big.NewInt(1000)); err != nil {
		t.Fatalf("ConsumeGas: %v", err)
	}
	if err := g.RefundUnusedGas(e, e, origin); err != nil {
		t.Fatalf("RefundUnusedGas: %v", err)
	}
	if g.GasUsed.Cmp(g.GasLimit) != 0 {
		t.Fatalf("gas used = %s, want full limit %s after refund", g.GasUsed, g.GasLimit)
	}
	want := new(big.Int).Mul(big.NewInt(20000), big.NewInt(5)) // (21000-1000) * price
	if e.Balance(origin).Cmp(want) != 0 {
		t.Fatalf("origin balance = %s, want %s", e.Balance(origin), want)
	}
}

func TestRefundUnusedGasWrongChainPanics(t *testing.T) {
	e := newTestEmulator(2)
	g := New(1, big.NewInt(21000), big.NewInt(5))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for mismatched refund chain")
		}
	}()
	_ = g.RefundUnusedGas(e, e, types.Address{0x02})
}
