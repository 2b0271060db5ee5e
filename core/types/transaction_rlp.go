package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/eth2028/eth2028/rlp"
	"golang.org/x/crypto/sha3"
)

// legacyTxRLP is the wire RLP layout: [nonce, gasPrice, gasLimit, to, value, data, v, r, s].
type legacyTxRLP struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       []byte // empty for contract creation, 20 bytes otherwise
	Value    *big.Int
	Data     []byte
	V        *big.Int
	R        *big.Int
	S        *big.Int
}

// EncodeRLP returns the canonical RLP encoding of the transaction.
func (tx *Transaction) EncodeRLP() ([]byte, error) {
	enc := legacyTxRLP{
		Nonce:    tx.Nonce,
		GasPrice: bigOrZero(tx.GasPrice),
		Gas:      tx.GasLimit,
		To:       addressPtrToBytes(tx.To),
		Value:    bigOrZero(tx.Value),
		Data:     tx.Data,
		V:        bigOrZero(tx.V),
		R:        bigOrZero(tx.R),
		S:        bigOrZero(tx.S),
	}
	return rlp.EncodeToBytes(enc)
}

// DecodeTxRLP decodes a canonical RLP-encoded Ethereum transaction (legacy,
// optionally EIP-155 protected). Non-legacy (EIP-2718 typed) envelopes are
// rejected: this runtime only executes legacy transactions (§6).
func DecodeTxRLP(data []byte) (*Transaction, error) {
	if len(data) == 0 {
		return nil, errors.New("empty transaction data")
	}
	if data[0] < 0xc0 {
		return nil, fmt.Errorf("unsupported typed transaction envelope, first byte: 0x%02x", data[0])
	}

	var dec legacyTxRLP
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("decode legacy tx: %w", err)
	}
	return &Transaction{
		Nonce:    dec.Nonce,
		GasPrice: dec.GasPrice,
		GasLimit: dec.Gas,
		To:       bytesToAddressPtr(dec.To),
		Value:    dec.Value,
		Data:     dec.Data,
		V:        dec.V,
		R:        dec.R,
		S:        dec.S,
	}, nil
}

func addressPtrToBytes(a *Address) []byte {
	if a == nil {
		return nil
	}
	return a[:]
}

func bytesToAddressPtr(b []byte) *Address {
	if len(b) == 0 {
		return nil
	}
	a := BytesToAddress(b)
	return &a
}

// hashRLP computes Keccak-256 of the transaction's RLP envelope encoding.
func (tx *Transaction) hashRLP() Hash {
	enc, err := tx.EncodeRLP()
	if err != nil {
		return Hash{}
	}
	d := sha3.NewLegacyKeccak256()
	d.Write(enc)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// SigningHash returns the hash that was signed to produce the transaction's
// signature: Keccak256(RLP([nonce, gasPrice, gas, to, value, data])) for
// pre-EIP-155 signatures, or with (chainID, 0, 0) appended per EIP-155 when
// V indicates chain-id replay protection.
func (tx *Transaction) SigningHash() Hash {
	chainID := deriveChainID(tx.V)
	toBytes := []byte{}
	if tx.To != nil {
		toBytes = tx.To[:]
	}

	var items [][]byte
	items = append(items,
		mustEncode(tx.Nonce),
		mustEncode(bigOrZero(tx.GasPrice)),
		mustEncode(tx.GasLimit),
		mustEncode(toBytes),
		mustEncode(bigOrZero(tx.Value)),
		mustEncode(tx.Data),
	)
	if chainID.Sign() != 0 {
		items = append(items,
			mustEncode(chainID),
			mustEncode([]byte{}),
			mustEncode([]byte{}),
		)
	}

	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	enc := rlp.WrapList(payload)

	d := sha3.NewLegacyKeccak256()
	d.Write(enc)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

func mustEncode(v interface{}) []byte {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		// Every value passed here is a primitive (uint64, []byte, *big.Int);
		// encoding cannot fail.
		panic(err)
	}
	return b
}
