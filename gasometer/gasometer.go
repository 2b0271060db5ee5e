// Package gasometer implements component H's gas accounting: charging EVM
// gas consumption against a transaction's gas_limit/gas_price and minting
// the charged amount to whichever account should receive it (the operator
// during execution, the transaction origin on refund).
//
// Grounded on original_source/evm_loader/program/src/account/state.rs's
// State::consume_gas / State::refund_unused_gas.
package gasometer

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/eth2028/eth2028/account"
	"github.com/eth2028/eth2028/core/types"
)

// ErrGasReceiverInvalidChainId is returned when the gas receiver's backend
// is not on the transaction's own chain.
var ErrGasReceiverInvalidChainId = errors.New("gasometer: gas receiver on wrong chain")

// OutOfGasError reports that charging a further amount of gas would exceed
// the transaction's gas_limit.
type OutOfGasError struct {
	Limit *big.Int
	Used  *big.Int
}

func (e *OutOfGasError) Error() string {
	return fmt.Sprintf("gasometer: out of gas (limit %s, attempted %s)", e.Limit, e.Used)
}

// Gasometer tracks one transaction's gas accounting against a fixed
// chain_id/gas_limit/gas_price triple, mirroring the persistent gas_used
// field state.rs keeps on a StateAccount across iterative steps.
type Gasometer struct {
	ChainID  uint64
	GasLimit *big.Int
	GasPrice *big.Int
	GasUsed  *big.Int
}

// New creates a Gasometer with zero gas used so far.
func New(chainID uint64, gasLimit, gasPrice *big.Int) *Gasometer {
	return &Gasometer{
		ChainID:  chainID,
		GasLimit: new(big.Int).Set(gasLimit),
		GasPrice: new(big.Int).Set(gasPrice),
		GasUsed:  new(big.Int),
	}
}

// GasAvailable returns gas_limit - gas_used, floored at zero.
func (g *Gasometer) GasAvailable() *big.Int {
	avail := new(big.Int).Sub(g.GasLimit, g.GasUsed)
	if avail.Sign() < 0 {
		return new(big.Int)
	}
	return avail
}

// ConsumeGas charges amount units of gas against the limit and mints
// amount*gas_price of value to receiver, per state.rs's consume_gas. A
// zero amount is always a no-op. receiver must be on this Gasometer's
// chain -- the real program models this as a BalanceAccount scoped to one
// chain id; this backend instead carries a single ChainID for its whole
// account set, so the check compares against the backend's chain directly.
func (g *Gasometer) ConsumeGas(backend account.Backend, mutator account.Mutator, receiver types.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}

	if backend.ChainID() != g.ChainID {
		return ErrGasReceiverInvalidChainId
	}

	totalUsed := new(big.Int).Add(g.GasUsed, amount)
	if totalUsed.Cmp(g.GasLimit) > 0 {
		return &OutOfGasError{Limit: new(big.Int).Set(g.GasLimit), Used: totalUsed}
	}
	g.GasUsed = totalUsed

	tokens := new(big.Int).Mul(amount, g.GasPrice)
	newBalance := new(big.Int).Add(backend.Balance(receiver), tokens)
	mutator.SetBalance(receiver, newBalance)
	return nil
}

// RefundUnusedGas charges the remaining gas_limit-gas_used to origin, per
// state.rs's refund_unused_gas. The real program asserts origin is on the
// transaction's own chain and address before refunding; a mismatch there
// indicates a driver bug rather than bad user input, so this keeps that as
// a panic rather than a returned error.
func (g *Gasometer) RefundUnusedGas(backend account.Backend, mutator account.Mutator, origin types.Address) error {
	if backend.ChainID() != g.ChainID {
		panic("gasometer: refund origin on wrong chain")
	}
	return g.ConsumeGas(backend, mutator, origin, g.GasAvailable())
}
