package account

import (
	"math/big"

	"github.com/eth2028/eth2028/core/types"
)

// HostAccounts is the pre-declared account array a Solana instruction
// receives: every account the transaction touches must be named up front,
// so OnChain never fetches anything lazily -- it only ever reads accounts
// this interface already has in hand. The real Solana runtime plumbing
// behind it (account_info::AccountInfo borrowing, rent sysvar, etc.) is out
// of scope per spec §1; this is the interface boundary SPEC_FULL.md names
// for it.
type HostAccounts interface {
	// Account returns the raw bytes of the host account at key, or
	// ok=false if it was not declared for this instruction.
	Account(key Pubkey) (data []byte, ok bool)

	// SetAccount overwrites the bytes of a pre-declared host account.
	// Returns an error if key was not declared for this instruction.
	SetAccount(key Pubkey, data []byte) error

	// Resize grows or shrinks a pre-declared host account's backing
	// buffer to newSize, zero-filling any newly added tail. The host
	// runtime enforces MaxPermittedDataIncrease per instruction;
	// component K is responsible for splitting a larger request across
	// multiple calls, not this interface.
	Resize(key Pubkey, newSize int) error

	// Revision returns the host's per-account write-generation counter,
	// for the revision guard (component J) to compare against a
	// StateAccount's recorded map on restore.
	Revision(key Pubkey) uint32
}

// OnChain is the live host-account backend: every read resolves a
// find_program_address key and looks it up directly in a pre-declared
// AccountsDB (HostAccounts), with no caching layer, since the whole account
// set is already resident for the lifetime of one instruction.
type OnChain struct {
	programID      Pubkey
	operator       types.Address
	chainID        uint64
	defaultChainID uint64
	blockNumber    uint64
	blockTimestamp uint64
	recentHashes   map[uint64]types.Hash

	accounts HostAccounts
}

// NewOnChain creates an OnChain backend over a pre-declared account set.
func NewOnChain(programID Pubkey, operator types.Address, chainID, defaultChainID, blockNumber, blockTimestamp uint64, recentHashes map[uint64]types.Hash, accounts HostAccounts) *OnChain {
	if recentHashes == nil {
		recentHashes = make(map[uint64]types.Hash)
	}
	return &OnChain{
		programID:      programID,
		operator:       operator,
		chainID:        chainID,
		defaultChainID: defaultChainID,
		blockNumber:    blockNumber,
		blockTimestamp: blockTimestamp,
		recentHashes:   recentHashes,
		accounts:       accounts,
	}
}

func (c *OnChain) ProgramID() Pubkey      { return c.programID }
func (c *OnChain) Operator() types.Address { return c.operator }
func (c *OnChain) ChainID() uint64         { return c.chainID }
func (c *OnChain) DefaultChainID() uint64  { return c.defaultChainID }
func (c *OnChain) BlockNumber() uint64     { return c.blockNumber }
func (c *OnChain) BlockTimestamp() uint64  { return c.blockTimestamp }

// BlockHash returns the host's recent-blockhash entry for number, or the
// zero hash if it falls outside the retained window -- the on-chain
// behavior spec §9's Open Question contrasts with the emulator's fake-hash
// fallback shim.
func (c *OnChain) BlockHash(number uint64) types.Hash {
	return c.recentHashes[number]
}

func (c *OnChain) account(addr types.Address) (*EthereumAccount, bool) {
	key, bump := EthereumAccountKey(c.programID, addr)
	data, ok := c.accounts.Account(key)
	if !ok {
		return &EthereumAccount{Address: addr, BumpSeed: bump, Balance: big.NewInt(0)}, false
	}
	a, err := DecodeEthereumAccount(addr, data)
	if err != nil {
		return &EthereumAccount{Address: addr, BumpSeed: bump, Balance: big.NewInt(0)}, false
	}
	return a, true
}

func (c *OnChain) Balance(addr types.Address) *big.Int {
	a, _ := c.account(addr)
	return new(big.Int).Set(a.Balance)
}

func (c *OnChain) Nonce(addr types.Address) uint64 {
	a, _ := c.account(addr)
	return a.Nonce
}

func (c *OnChain) Code(addr types.Address) []byte {
	a, _ := c.account(addr)
	return a.Code
}

func (c *OnChain) CodeSize(addr types.Address) int {
	a, _ := c.account(addr)
	return len(a.Code)
}

func (c *OnChain) CodeHash(addr types.Address) types.Hash {
	a, _ := c.account(addr)
	if len(a.Code) == 0 {
		return types.EmptyCodeHash
	}
	return hashCode(a.Code)
}

func (c *OnChain) Generation(addr types.Address) uint32 {
	a, _ := c.account(addr)
	return a.Generation
}

func (c *OnChain) Storage(addr types.Address, index types.Hash) types.Hash {
	a, ok := c.account(addr)
	k := new(big.Int).SetBytes(index[:])
	if k.IsInt64() && k.Int64() < StorageEntriesInContractAccount {
		if !ok {
			return types.Hash{}
		}
		return a.Storage[k.Int64()]
	}
	baseIndex, subindex := splitStorageIndex(k)
	key, _ := EthereumStorageKey(c.programID, addr, baseIndex)
	data, found := c.accounts.Account(key)
	if !found {
		return types.Hash{}
	}
	cell, err := DecodeStorageCell(addr, baseIndex, data)
	if err != nil {
		return types.Hash{}
	}
	return cell.Values[subindex]
}

func (c *OnChain) CloneSolanaAccount(key Pubkey) ([]byte, error) {
	data, _ := c.accounts.Account(key)
	return append([]byte(nil), data...), nil
}

func (c *OnChain) MapSolanaAccount(key Pubkey, f func([]byte)) error {
	data, _ := c.accounts.Account(key)
	f(data)
	return nil
}

// --- Mutator: forwards every write straight to the pre-declared
// HostAccounts set, re-encoding the whole account on each call -- there is
// no in-process cache to invalidate, unlike Emulator.

func (c *OnChain) writeAccount(addr types.Address, a *EthereumAccount) error {
	key, _ := EthereumAccountKey(c.programID, addr)
	data := a.Encode()
	if err := c.accounts.Resize(key, len(data)); err != nil {
		return err
	}
	return c.accounts.SetAccount(key, data)
}

func (c *OnChain) CreateIfNotExists(addr types.Address) {
	a, ok := c.account(addr)
	if !ok {
		_ = c.writeAccount(addr, a)
	}
}

func (c *OnChain) SetBalance(addr types.Address, balance *big.Int) {
	a, _ := c.account(addr)
	a.Balance = new(big.Int).Set(balance)
	_ = c.writeAccount(addr, a)
}

func (c *OnChain) SetNonce(addr types.Address, nonce uint64) {
	a, _ := c.account(addr)
	a.Nonce = nonce
	_ = c.writeAccount(addr, a)
}

func (c *OnChain) DeployCode(addr types.Address, code []byte) error {
	a, _ := c.account(addr)
	a.Code = append([]byte(nil), code...)
	a.Valids = make([]byte, (len(code)+7)/8)
	return c.writeAccount(addr, a)
}

func (c *OnChain) SetStorageSlot(addr types.Address, index, value types.Hash) error {
	a, _ := c.account(addr)
	k := new(big.Int).SetBytes(index[:])
	if k.IsInt64() && k.Int64() < StorageEntriesInContractAccount {
		a.Storage[k.Int64()] = value
		return c.writeAccount(addr, a)
	}
	baseIndex, subindex := splitStorageIndex(k)
	key, _ := EthereumStorageKey(c.programID, addr, baseIndex)
	data, found := c.accounts.Account(key)
	var cell *StorageCell
	if found {
		decoded, err := DecodeStorageCell(addr, baseIndex, data)
		if err != nil {
			return err
		}
		cell = decoded
		if cell.Generation != a.Generation {
			// Collision: stale cell from a prior generation reads/writes
			// as zero; the caller must not reuse it. Per spec §4.K.
			return nil
		}
	} else {
		var zero types.Hash
		if value == zero {
			return nil
		}
		cell = &StorageCell{Owner: addr, BaseIndex: baseIndex, Generation: a.Generation, Values: make(map[byte]types.Hash)}
	}
	cell.Values[subindex] = value
	encoded := cell.Encode()
	if err := c.accounts.Resize(key, len(encoded)); err != nil {
		return err
	}
	return c.accounts.SetAccount(key, encoded)
}

func (c *OnChain) IncrementGeneration(addr types.Address) {
	a, _ := c.account(addr)
	a.Generation++
	_ = c.writeAccount(addr, a)
}

func (c *OnChain) ClearAccountData(addr types.Address) {
	a, _ := c.account(addr)
	a.Code = nil
	a.Valids = nil
	a.Nonce = 0
	a.Storage = [StorageEntriesInContractAccount]types.Hash{}
	_ = c.writeAccount(addr, a)
}

// Revision implements account.RevisionSource by delegating to the host's
// own counter -- OnChain keeps no local bookkeeping since it never caches.
func (c *OnChain) Revision(key Pubkey) uint32 {
	return c.accounts.Revision(key)
}
