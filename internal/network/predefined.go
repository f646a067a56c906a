package network

var eth = Currency{Name: "Ether", Symbol: "ETH", Decimals: 18}

// predefined lists the networks the wallet ships with. RPCSupported marks the
// chains the wallet serves RPC for; the rest are known but not switchable.
var predefined = []Network{
	{HexID: "0x1", Name: "Ethereum", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://ethereum-rpc.publicnode.com", NativeCurrency: eth, BlockExplorer: "https://etherscan.io"},
	{HexID: "0xa", Name: "Optimism", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://mainnet.optimism.io", NativeCurrency: eth, BlockExplorer: "https://optimistic.etherscan.io"},
	{HexID: "0x38", Name: "BNB Smart Chain", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://bsc-dataseed.bnbchain.org", NativeCurrency: Currency{Name: "BNB", Symbol: "BNB", Decimals: 18}, BlockExplorer: "https://bscscan.com"},
	{HexID: "0x64", Name: "Gnosis", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://rpc.gnosischain.com", NativeCurrency: Currency{Name: "xDAI", Symbol: "XDAI", Decimals: 18}, BlockExplorer: "https://gnosisscan.io"},
	{HexID: "0x89", Name: "Polygon", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://polygon-rpc.com", NativeCurrency: Currency{Name: "POL", Symbol: "POL", Decimals: 18}, BlockExplorer: "https://polygonscan.com"},
	{HexID: "0xfa", Name: "Fantom", Type: TypePredefined, RPCSupported: false, DefaultRPC: "https://rpcapi.fantom.network", NativeCurrency: Currency{Name: "Fantom", Symbol: "FTM", Decimals: 18}},
	{HexID: "0x144", Name: "zkSync Era", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://mainnet.era.zksync.io", NativeCurrency: eth, BlockExplorer: "https://explorer.zksync.io"},
	{HexID: "0x2105", Name: "Base", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://mainnet.base.org", NativeCurrency: eth, BlockExplorer: "https://basescan.org"},
	{HexID: "0xa4b1", Name: "Arbitrum One", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://arb1.arbitrum.io/rpc", NativeCurrency: eth, BlockExplorer: "https://arbiscan.io"},
	{HexID: "0xa86a", Name: "Avalanche C-Chain", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://api.avax.network/ext/bc/C/rpc", NativeCurrency: Currency{Name: "Avalanche", Symbol: "AVAX", Decimals: 18}, BlockExplorer: "https://snowtrace.io"},
	{HexID: "0xe708", Name: "Linea", Type: TypePredefined, RPCSupported: true, DefaultRPC: "https://rpc.linea.build", NativeCurrency: eth, BlockExplorer: "https://lineascan.build"},

	{HexID: "0x61", Name: "BNB Smart Chain Testnet", Type: TypeTestnet, RPCSupported: false, DefaultRPC: "https://data-seed-prebsc-1-s1.bnbchain.org:8545", NativeCurrency: Currency{Name: "BNB", Symbol: "tBNB", Decimals: 18}},
	{HexID: "0x4268", Name: "Holesky", Type: TypeTestnet, RPCSupported: false, DefaultRPC: "https://ethereum-holesky-rpc.publicnode.com", NativeCurrency: eth},
	{HexID: "0xa869", Name: "Avalanche Fuji", Type: TypeTestnet, RPCSupported: false, DefaultRPC: "https://api.avax-test.network/ext/bc/C/rpc", NativeCurrency: Currency{Name: "Avalanche", Symbol: "AVAX", Decimals: 18}},
	{HexID: "0x13882", Name: "Polygon Amoy", Type: TypeTestnet, RPCSupported: true, DefaultRPC: "https://rpc-amoy.polygon.technology", NativeCurrency: Currency{Name: "POL", Symbol: "POL", Decimals: 18}},
	{HexID: "0xaa36a7", Name: "Sepolia", Type: TypeTestnet, RPCSupported: true, DefaultRPC: "https://ethereum-sepolia-rpc.publicnode.com", NativeCurrency: eth, BlockExplorer: "https://sepolia.etherscan.io"},
}

// Predefined returns a copy of the built-in network list.
func Predefined() []Network {
	out := make([]Network, len(predefined))
	copy(out, predefined)
	return out
}
