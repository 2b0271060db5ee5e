// Package apply implements component K: draining a finished transaction's
// overlay action log onto the host account backend.
//
// Grounded on original_source/evm_loader/program/src/account_storage/apply.rs's
// apply_state_change, rearrange_actions and apply_storage.
package apply

import (
	"errors"
	"math/big"

	"github.com/eth2028/eth2028/account"
	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/overlay"
)

// Status reports whether Apply finished replaying every action in one
// pass, or some account involved needs to be grown further in a later
// instruction before the replay can continue -- mirrors apply.rs's
// AccountsReadiness.
type Status int

const (
	StatusReady Status = iota
	StatusNeedMoreReallocations
)

func (s Status) String() string {
	if s == StatusNeedMoreReallocations {
		return "NeedMoreReallocations"
	}
	return "Ready"
}

var (
	ErrInsufficientFunds = errors.New("apply: insufficient funds")
	ErrNonceOverflow     = errors.New("apply: nonce overflow")
)

// Invoker issues the cross-program invocation an ExternalInstruction
// action records, carrying the signer seeds the host-extension precompile
// derived when it enqueued the instruction (spec §6). Apply never talks
// to a host runtime directly; hostchain's dispatcher implements this.
type Invoker interface {
	Invoke(programID [32]byte, accounts []overlay.AccountMeta, data []byte, signerSeeds [][]byte) error
}

// Apply drains log onto backend/mutator in the order rearrangeActions
// puts them in: every NeonTransfer/NeonWithdraw/ExternalInstruction first,
// then every surviving EvmSetStorage/EvmIncrementNonce/EvmSetCode, then
// every EvmSelfDestruct last. invoker may be nil if the log is known to
// carry no ExternalInstruction actions (e.g. no host-extension precompile
// was used).
func Apply(log []overlay.Action, backend account.Backend, mutator account.Mutator, invoker Invoker) (Status, error) {
	actions := rearrangeActions(log)

	// A deploy that needs more room than the host allows in one
	// instruction must grow its account first; nothing in this batch is
	// replayed until a later Apply call sees it's been resized, mirroring
	// apply_state_change's early return on NeedMoreReallocations.
	if preflightSpace(actions) == StatusNeedMoreReallocations {
		return StatusNeedMoreReallocations, nil
	}

	createMissingAccounts(actions, mutator)

	storage, order := map[types.Address]map[types.Hash]types.Hash{}, map[types.Address][]types.Hash{}

	for _, a := range actions {
		switch a.Kind {
		case overlay.ActionNeonTransfer:
			if err := transferNeonTokens(backend, mutator, a.Source, a.Target, a.Value); err != nil {
				return StatusReady, err
			}

		case overlay.ActionNeonWithdraw:
			balance := backend.Balance(a.Source)
			if balance.Cmp(a.Value) < 0 {
				return StatusReady, ErrInsufficientFunds
			}
			mutator.SetBalance(a.Source, new(big.Int).Sub(balance, a.Value))

		case overlay.ActionEvmSetStorage:
			slots, ok := storage[a.Address]
			if !ok {
				slots = make(map[types.Hash]types.Hash)
				storage[a.Address] = slots
			}
			if _, seen := slots[a.Index]; !seen {
				order[a.Address] = append(order[a.Address], a.Index)
			}
			slots[a.Index] = a.Storage

		case overlay.ActionEvmIncrementNonce:
			nonce := backend.Nonce(a.Address)
			if nonce == ^uint64(0) {
				return StatusReady, ErrNonceOverflow
			}
			mutator.SetNonce(a.Address, nonce+1)

		case overlay.ActionEvmSetCode:
			if err := mutator.DeployCode(a.Address, a.Code); err != nil {
				return StatusReady, err
			}

		case overlay.ActionEvmSelfDestruct:
			// A destroyed account's pending storage writes never land --
			// rearrangeActions already dropped EvmSetStorage entries for
			// it, but a NeonTransfer to the same address before the
			// destruct may still have queued one in this pass.
			delete(storage, a.Address)
			delete(order, a.Address)
			mutator.IncrementGeneration(a.Address)
			mutator.ClearAccountData(a.Address)

		case overlay.ActionExternalInstruction:
			if invoker == nil {
				continue
			}
			if err := invoker.Invoke(a.ProgramID, a.Accounts, a.Data, a.SignerSeeds); err != nil {
				return StatusReady, err
			}
		}
	}

	if err := applyStorage(mutator, storage, order); err != nil {
		return StatusReady, err
	}

	return StatusReady, nil
}

// rearrangeActions mirrors apply.rs's function of the same name: an
// EvmSetStorage/EvmIncrementNonce/EvmSetCode destined for an address that
// is also scheduled for EvmSelfDestruct in this same log is dropped
// entirely (the account won't exist to receive it), and every
// EvmSelfDestruct is moved to the tail so every other action against that
// address lands first.
func rearrangeActions(log []overlay.Action) []overlay.Action {
	toDestroy := make(map[types.Address]bool)
	for _, a := range log {
		if a.Kind == overlay.ActionEvmSelfDestruct {
			toDestroy[a.Address] = true
		}
	}

	rearranged := make([]overlay.Action, 0, len(log))
	var selfDestructs []overlay.Action

	for _, a := range log {
		switch a.Kind {
		case overlay.ActionExternalInstruction, overlay.ActionNeonTransfer, overlay.ActionNeonWithdraw:
			rearranged = append(rearranged, a)
		case overlay.ActionEvmSetStorage, overlay.ActionEvmSetCode, overlay.ActionEvmIncrementNonce:
			if !toDestroy[a.Address] {
				rearranged = append(rearranged, a)
			}
		case overlay.ActionEvmSelfDestruct:
			selfDestructs = append(selfDestructs, a)
		}
	}

	return append(rearranged, selfDestructs...)
}

// preflightSpace reports NeedMoreReallocations if any EvmSetCode action in
// this batch deploys code whose account.SpaceNeeded exceeds the host
// runtime's per-instruction growth cap -- the driver must grow that
// account across more than one instruction before a later Apply call can
// actually deploy it, mirroring apply.rs's process_accounts_operations
// Create/Resize branches comparing against MAX_PERMITTED_DATA_INCREASE.
func preflightSpace(actions []overlay.Action) Status {
	for _, a := range actions {
		if a.Kind != overlay.ActionEvmSetCode {
			continue
		}
		if account.SpaceNeeded(len(a.Code)) > account.MaxPermittedDataIncrease {
			return StatusNeedMoreReallocations
		}
	}
	return StatusReady
}

// createMissingAccounts ensures every address a transfer or a code deploy
// or a selfdestruct touches has a backing host account before the replay
// loop below writes to it, mirroring apply.rs's create_account_if_not_exists
// calls ahead of the main action loop.
func createMissingAccounts(actions []overlay.Action, mutator account.Mutator) {
	for _, a := range actions {
		var addr types.Address
		switch a.Kind {
		case overlay.ActionNeonTransfer:
			addr = a.Target
		case overlay.ActionEvmSelfDestruct, overlay.ActionEvmSetCode:
			addr = a.Address
		default:
			continue
		}
		mutator.CreateIfNotExists(addr)
	}
}

func transferNeonTokens(backend account.Backend, mutator account.Mutator, source, target types.Address, value *big.Int) error {
	if source == target {
		return nil
	}
	sourceBalance := backend.Balance(source)
	if sourceBalance.Cmp(value) < 0 {
		return ErrInsufficientFunds
	}
	mutator.SetBalance(source, new(big.Int).Sub(sourceBalance, value))
	mutator.SetBalance(target, new(big.Int).Add(backend.Balance(target), value))
	return nil
}

// applyStorage writes every EvmSetStorage value recorded for an address,
// in first-write order, splitting between the inline static array
// (index < account.StorageEntriesInContractAccount) and an infinite
// storage cell otherwise -- the split itself lives inside
// account.Mutator.SetStorageSlot (component F), so this just drives the
// per-slot calls in the same order apply_storage's iteration does.
func applyStorage(mutator account.Mutator, storage map[types.Address]map[types.Hash]types.Hash, order map[types.Address][]types.Hash) error {
	for addr, slots := range order {
		for _, idx := range slots {
			if err := mutator.SetStorageSlot(addr, idx, storage[addr][idx]); err != nil {
				return err
			}
		}
	}
	return nil
}
