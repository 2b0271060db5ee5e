package hostchain

import "github.com/eth2028/eth2028/core/types"

// MetaplexAddress is the fixed precompile address the Metaplex token
// metadata dispatch tier lives at.
var MetaplexAddress = types.HexToAddress("0xff00000000000000000000000000000000000005")

// MetaplexTable is the selector table metaplex.rs dispatches on.
// createMetadata's trailing name/symbol/uri arguments are ABI-encoded
// dynamic strings rather than fixed 32-byte words; Call.Raw carries the
// full post-selector calldata for those so the injected Builder can decode
// them itself rather than this package assuming a string layout.
var MetaplexTable = Table{
	{0xc5, 0x73, 0x50, 0xc6}: {argPubkeys: 1},                 // createMetadata(bytes32 mint, string name, string symbol, string uri)
	{0x4a, 0xe8, 0xb6, 0x6b}: {argPubkeys: 1, argAmounts: 1},  // createMasterEdition(bytes32 mint, uint64 maxSupply)
	{0xf7, 0xb6, 0x37, 0xbb}: {argPubkeys: 1, readOnly: true}, // isInitialized(bytes32)
	{0x23, 0x5b, 0x2b, 0x94}: {argPubkeys: 1, readOnly: true}, // isNFT(bytes32)
	{0x9e, 0xd1, 0x9d, 0xdb}: {argPubkeys: 1, readOnly: true}, // uri(bytes32)
	{0x69, 0x1f, 0x34, 0x31}: {argPubkeys: 1, readOnly: true}, // name(bytes32)
	{0x6b, 0xaa, 0x03, 0x30}: {argPubkeys: 1, readOnly: true}, // symbol(bytes32)
}
