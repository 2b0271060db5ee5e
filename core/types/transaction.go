package types

import (
	"math/big"
	"sync/atomic"
)

// Transaction represents a decoded Ethereum transaction (legacy, optionally
// EIP-155 replay protected). Once constructed its fields are immutable for
// the lifetime of an execution; callers that need a mutated copy should
// build a new Transaction.
type Transaction struct {
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	To       *Address // nil for contract creation
	Value    *big.Int
	Data     []byte

	V, R, S *big.Int // raw signature values as encoded on the wire

	hash   atomic.Pointer[Hash]
	origin atomic.Pointer[Address] // recovered sender, set by Sender()/SetOrigin
}

// NewTransaction constructs a Transaction from its decoded fields.
func NewTransaction(nonce uint64, to *Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) *Transaction {
	return &Transaction{
		Nonce:    nonce,
		To:       copyAddressPtr(to),
		Value:    bigOrZero(value),
		GasLimit: gasLimit,
		GasPrice: bigOrZero(gasPrice),
		Data:     copyBytes(data),
	}
}

// ChainID returns the EIP-155 chain ID encoded in V, or nil if the
// transaction is not chain-id replay protected (pre-EIP-155 legacy).
func (tx *Transaction) ChainID() *big.Int {
	id := deriveChainID(tx.V)
	if id.Sign() == 0 {
		return nil
	}
	return id
}

// IsContractCreation reports whether this transaction has no target address.
func (tx *Transaction) IsContractCreation() bool {
	return tx.To == nil
}

// RawSignatureValues returns the V, R, S signature values as encoded on the wire.
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) {
	return tx.V, tx.R, tx.S
}

// SetOrigin caches the recovered sender address on the transaction.
func (tx *Transaction) SetOrigin(addr Address) {
	a := addr
	tx.origin.Store(&a)
}

// Origin returns the cached recovered sender, or nil if Sender has not been called.
func (tx *Transaction) Origin() *Address {
	return tx.origin.Load()
}

// Hash returns the transaction hash (Keccak-256 of its RLP envelope), caching on first call.
func (tx *Transaction) Hash() Hash {
	if h := tx.hash.Load(); h != nil {
		return *h
	}
	h := tx.hashRLP()
	tx.hash.Store(&h)
	return h
}

func copyAddressPtr(a *Address) *Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cpy := make([]byte, len(b))
	copy(cpy, b)
	return cpy
}

// deriveChainID derives the EIP-155 chain ID from a legacy V value.
// Pre-EIP-155 signatures use V = 27/28 and have no chain ID (returns zero).
func deriveChainID(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.BitLen() <= 8 {
		val := v.Uint64()
		if val == 27 || val == 28 {
			return new(big.Int)
		}
	}
	// v = chainID*2 + 35 + recoveryID => chainID = (v - 35 - recoveryID) / 2
	chainID := new(big.Int).Sub(v, big.NewInt(35))
	chainID.Div(chainID, big.NewInt(2))
	return chainID
}

// bigOrZero returns i if non-nil, otherwise a freshly allocated zero big.Int.
func bigOrZero(i *big.Int) *big.Int {
	if i != nil {
		return new(big.Int).Set(i)
	}
	return new(big.Int)
}
