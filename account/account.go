package account

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/crypto"
)

// hashCode is the shared Keccak256 codehash helper used by every Backend
// implementation in this package.
func hashCode(code []byte) types.Hash {
	return crypto.Keccak256Hash(code)
}

// Tag distinguishes the five kinds of host account this program owns, per
// spec §4.I / §6. Every account this package or state/holder reads begins
// with one of these as its first byte.
type Tag byte

const (
	TagHolder Tag = iota + 1
	TagState
	TagStateFinalized
	TagEthereumAccount
	TagEthereumStorage
)

// StorageEntriesInContractAccount is the number of 32-byte static storage
// slots inlined directly in an EthereumAccount, mirroring the real
// neon-evm program's STORAGE_ENTRIES_IN_CONTRACT_ACCOUNT constant.
const StorageEntriesInContractAccount = 64

// MaxPermittedDataIncrease is the host runtime's per-instruction account
// growth cap (Solana's real solana_program::entrypoint::MAX_PERMITTED_DATA_INCREASE,
// 10KiB) -- see SPEC_FULL.md's supplemented "account resize accounting
// detail". Component K's apply pipeline must split a resize that exceeds
// this into multiple NeedMoreReallocations steps.
const MaxPermittedDataIncrease = 10 * 1024

// ethereumAccountHeaderLen accounts for the fixed-size fields preceding the
// variable-length code + valids region: tag(1) + bump_seed(1) + trx_count(8)
// + balance(32) + generation(4) + code_size(8).
const ethereumAccountHeaderLen = 1 + 1 + 8 + 32 + 4 + 8

// SpaceNeeded returns the account byte size required to hold codeLen bytes
// of deployed code plus its valids (JUMPDEST) bitmap and the static storage
// array, matching the real program's EthereumAccount::space_needed.
func SpaceNeeded(codeLen int) int {
	validsLen := (codeLen + 7) / 8
	return ethereumAccountHeaderLen + codeLen + validsLen + StorageEntriesInContractAccount*32
}

// ErrAccountInvalidTag is returned when decoding an account whose leading
// tag byte doesn't match the expected Tag.
var ErrAccountInvalidTag = errors.New("account: invalid tag")

// EthereumAccount is the host's view of one EVM account (spec's
// EthereumAccount data model entry): balance, nonce, generation (destruct
// counter), and -- once code_size > 0 -- the deployed code, its valids
// bitmap, and the inline static storage array.
type EthereumAccount struct {
	Address    types.Address
	BumpSeed   byte
	Nonce      uint64
	Balance    *big.Int
	Generation uint32
	Code       []byte
	Valids     []byte
	Storage    [StorageEntriesInContractAccount]types.Hash

	// Revision is bumped on every mutation (spec §4.J's revision guard).
	// It is host-account bookkeeping, not part of the on-host byte layout
	// Encode/Decode round-trip -- the real program keeps it as a Solana
	// account-metadata field (the slot the account was last written in),
	// which this in-process model approximates with a plain counter.
	Revision uint32
}

// Space returns the byte size this account currently needs.
func (a *EthereumAccount) Space() int { return SpaceNeeded(len(a.Code)) }

// Encode serializes the account into the on-host byte layout:
// [tag][bump_seed][trx_count:8][balance:32][generation:4][code_size:8][code][valids][storage].
func (a *EthereumAccount) Encode() []byte {
	buf := make([]byte, ethereumAccountHeaderLen+len(a.Code)+len(a.Valids)+StorageEntriesInContractAccount*32)
	buf[0] = byte(TagEthereumAccount)
	buf[1] = a.BumpSeed
	binary.BigEndian.PutUint64(buf[2:10], a.Nonce)
	if a.Balance != nil {
		b := a.Balance.Bytes()
		copy(buf[10+32-len(b):42], b)
	}
	binary.BigEndian.PutUint32(buf[42:46], a.Generation)
	binary.BigEndian.PutUint64(buf[46:54], uint64(len(a.Code)))
	off := ethereumAccountHeaderLen
	copy(buf[off:], a.Code)
	off += len(a.Code)
	copy(buf[off:], a.Valids)
	off += len(a.Valids)
	for i, h := range a.Storage {
		copy(buf[off+i*32:off+(i+1)*32], h[:])
	}
	return buf
}

// DecodeEthereumAccount parses the layout Encode produces.
func DecodeEthereumAccount(addr types.Address, data []byte) (*EthereumAccount, error) {
	if len(data) < ethereumAccountHeaderLen {
		return nil, errors.New("account: short ethereum account buffer")
	}
	if Tag(data[0]) != TagEthereumAccount {
		return nil, ErrAccountInvalidTag
	}
	a := &EthereumAccount{Address: addr}
	a.BumpSeed = data[1]
	a.Nonce = binary.BigEndian.Uint64(data[2:10])
	a.Balance = new(big.Int).SetBytes(data[10:42])
	a.Generation = binary.BigEndian.Uint32(data[42:46])
	codeLen := binary.BigEndian.Uint64(data[46:54])
	off := ethereumAccountHeaderLen
	if uint64(len(data)-off) < codeLen {
		return nil, errors.New("account: truncated code region")
	}
	a.Code = append([]byte(nil), data[off:off+int(codeLen)]...)
	off += int(codeLen)
	validsLen := (int(codeLen) + 7) / 8
	if len(data) < off+validsLen+StorageEntriesInContractAccount*32 {
		return nil, errors.New("account: truncated valids/storage region")
	}
	a.Valids = append([]byte(nil), data[off:off+validsLen]...)
	off += validsLen
	for i := 0; i < StorageEntriesInContractAccount; i++ {
		copy(a.Storage[i][:], data[off+i*32:off+(i+1)*32])
	}
	return a, nil
}

// StorageCell is an "infinite storage" account: 256 contiguous storage
// slots (one subindex byte's worth) for keys at or beyond
// StorageEntriesInContractAccount, per spec §4.I / §4.K.
type StorageCell struct {
	Owner      types.Address
	BaseIndex  uint64
	Generation uint32
	Values     map[byte]types.Hash
	Revision   uint32
}

// storageCellHeaderLen: tag(1) + generation(4).
const storageCellHeaderLen = 1 + 4

// Encode serializes a StorageCell as [tag][generation:4][256 * 32-byte slots].
// Owner and BaseIndex are not part of the byte layout -- they are derived
// from (and validated against) the account's own key/seeds, matching the
// real account/ether_storage.rs layout where the index lives in the PDA
// seeds rather than the account body.
func (s *StorageCell) Encode() []byte {
	buf := make([]byte, storageCellHeaderLen+256*32)
	buf[0] = byte(TagEthereumStorage)
	binary.BigEndian.PutUint32(buf[1:5], s.Generation)
	for sub, v := range s.Values {
		copy(buf[storageCellHeaderLen+int(sub)*32:storageCellHeaderLen+int(sub)*32+32], v[:])
	}
	return buf
}

// DecodeStorageCell parses the layout Encode produces.
func DecodeStorageCell(owner types.Address, baseIndex uint64, data []byte) (*StorageCell, error) {
	if len(data) < storageCellHeaderLen+256*32 {
		return nil, errors.New("account: short storage cell buffer")
	}
	if Tag(data[0]) != TagEthereumStorage {
		return nil, ErrAccountInvalidTag
	}
	s := &StorageCell{
		Owner:      owner,
		BaseIndex:  baseIndex,
		Generation: binary.BigEndian.Uint32(data[1:5]),
		Values:     make(map[byte]types.Hash),
	}
	var zero types.Hash
	for sub := 0; sub < 256; sub++ {
		var v types.Hash
		copy(v[:], data[storageCellHeaderLen+sub*32:storageCellHeaderLen+sub*32+32])
		if v != zero {
			s.Values[byte(sub)] = v
		}
	}
	return s, nil
}
