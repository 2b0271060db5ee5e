package types

import (
	"math/big"
	"testing"
)

func TestTransactionCreation(t *testing.T) {
	to := HexToAddress("0xdead")
	tx := NewTransaction(1, &to, big.NewInt(1_000_000_000_000_000_000), 21000, big.NewInt(20_000_000_000), nil)

	if tx.Nonce != 1 {
		t.Fatalf("expected nonce 1, got %d", tx.Nonce)
	}
	if tx.GasLimit != 21000 {
		t.Fatalf("expected gas 21000, got %d", tx.GasLimit)
	}
	if tx.GasPrice.Cmp(big.NewInt(20_000_000_000)) != 0 {
		t.Fatal("GasPrice mismatch")
	}
	if tx.Value.Cmp(big.NewInt(1_000_000_000_000_000_000)) != 0 {
		t.Fatal("Value mismatch")
	}
	if *tx.To != to {
		t.Fatal("To mismatch")
	}
	if tx.IsContractCreation() {
		t.Fatal("should not be a contract creation")
	}
}

func TestTransactionContractCreation(t *testing.T) {
	tx := NewTransaction(0, nil, big.NewInt(0), 100000, big.NewInt(1), []byte{0x60, 0x80})
	if !tx.IsContractCreation() {
		t.Fatal("nil To should be a contract creation")
	}
	if len(tx.Data) != 2 {
		t.Fatal("Data mismatch")
	}
}

func TestTransactionCopyIndependence(t *testing.T) {
	to := HexToAddress("0xdead")
	gasPrice := big.NewInt(100)
	value := big.NewInt(500)
	tx := NewTransaction(1, &to, value, 21000, gasPrice, nil)

	// Mutate original inputs; tx should be unaffected since constructor copies.
	gasPrice.SetInt64(999)
	value.SetInt64(999)
	to[0] = 0xff

	if tx.GasPrice.Int64() != 100 {
		t.Fatal("Transaction GasPrice should be independent of original")
	}
	if tx.Value.Int64() != 500 {
		t.Fatal("Transaction Value should be independent of original")
	}
	if (*tx.To)[0] == 0xff {
		t.Fatal("Transaction To should be independent of original")
	}
}

func TestTransactionHashCaching(t *testing.T) {
	to := HexToAddress("0xdead")
	tx := NewTransaction(1, &to, big.NewInt(1), 21000, big.NewInt(1), nil)
	tx.V, tx.R, tx.S = big.NewInt(27), big.NewInt(1), big.NewInt(1)

	h1 := tx.Hash()
	h2 := tx.Hash()
	if h1 != h2 {
		t.Fatal("Hash() should be stable across calls")
	}
}

func TestTransactionOrigin(t *testing.T) {
	to := HexToAddress("0xdead")
	tx := NewTransaction(1, &to, big.NewInt(1), 21000, big.NewInt(1), nil)
	if tx.Origin() != nil {
		t.Fatal("Origin should be nil before SetOrigin")
	}
	addr := HexToAddress("0xbeef")
	tx.SetOrigin(addr)
	if tx.Origin() == nil || *tx.Origin() != addr {
		t.Fatal("Origin should match the set address")
	}
}

func TestDeriveChainID(t *testing.T) {
	tests := []struct {
		v    *big.Int
		want int64
	}{
		{big.NewInt(27), 0},
		{big.NewInt(28), 0},
		{big.NewInt(37), 1}, // chainID=1 => v = 1*2+35 = 37
		{big.NewInt(38), 1}, // chainID=1 => v = 1*2+36 = 38
		{nil, 0},
	}
	for _, tt := range tests {
		got := deriveChainID(tt.v)
		if got.Int64() != tt.want {
			t.Errorf("deriveChainID(%v) = %d, want %d", tt.v, got.Int64(), tt.want)
		}
	}
}

func TestTransactionChainID(t *testing.T) {
	to := HexToAddress("0xdead")
	tx := NewTransaction(1, &to, big.NewInt(1), 21000, big.NewInt(1), nil)
	tx.V = big.NewInt(37)
	if tx.ChainID() == nil || tx.ChainID().Int64() != 1 {
		t.Fatal("ChainID should derive to 1")
	}

	tx.V = big.NewInt(27)
	if tx.ChainID() != nil {
		t.Fatal("pre-EIP-155 transaction should have nil ChainID")
	}
}
