// Package rpc parses provider calls coming from pages, shapes the responses
// sent back, and forwards passive reads to a network's JSON-RPC endpoint.
package rpc

// Method is an Ethereum provider method name the bridge accepts.
type Method string

// Supported methods. Any other name is rejected at parse time.
const (
	EthAccounts               Method = "eth_accounts"
	EthRequestAccounts        Method = "eth_requestAccounts"
	EthChainID                Method = "eth_chainId"
	EthCoinbase               Method = "eth_coinbase"
	NetVersion                Method = "net_version"
	EthCall                   Method = "eth_call"
	EthGetBalance             Method = "eth_getBalance"
	EthGetCode                Method = "eth_getCode"
	EthEstimateGas            Method = "eth_estimateGas"
	EthBlockNumber            Method = "eth_blockNumber"
	Web3ClientVersion         Method = "web3_clientVersion"
	EthSendTransaction        Method = "eth_sendTransaction"
	EthSendRawTransaction     Method = "eth_sendRawTransaction"
	EthGetTransactionReceipt  Method = "eth_getTransactionReceipt"
	EthGetTransactionByHash   Method = "eth_getTransactionByHash"
	EthGetLogs                Method = "eth_getLogs"
	DebugTraceTransaction     Method = "debug_traceTransaction"
	PersonalSign              Method = "personal_sign"
	PersonalECRecover         Method = "personal_ecRecover"
	EthGetBlockByNumber       Method = "eth_getBlockByNumber"
	EthSignTypedData          Method = "eth_signTypedData"
	EthSignTypedDataV3        Method = "eth_signTypedData_v3"
	EthSignTypedDataV4        Method = "eth_signTypedData_v4"
	EthGetTransactionCount    Method = "eth_getTransactionCount"
	EthGasPrice               Method = "eth_gasPrice"
	EthGetStorageAt           Method = "eth_getStorageAt"
	WalletAddEthereumChain    Method = "wallet_addEthereumChain"
	WalletSwitchEthereumChain Method = "wallet_switchEthereumChain"
	WalletWatchAsset          Method = "wallet_watchAsset"
)

// Methods lists every supported method in protocol order.
var Methods = []Method{
	EthAccounts, EthRequestAccounts, EthChainID, EthCoinbase, NetVersion,
	EthCall, EthGetBalance, EthGetCode, EthEstimateGas, EthBlockNumber,
	Web3ClientVersion, EthSendTransaction, EthSendRawTransaction,
	EthGetTransactionReceipt, EthGetTransactionByHash, EthGetLogs,
	DebugTraceTransaction, PersonalSign, PersonalECRecover, EthGetBlockByNumber,
	EthSignTypedData, EthSignTypedDataV3, EthSignTypedDataV4,
	EthGetTransactionCount, EthGasPrice, EthGetStorageAt,
	WalletAddEthereumChain, WalletSwitchEthereumChain, WalletWatchAsset,
}

// Group is how the dispatcher treats a method.
type Group int

// Method groups.
const (
	// GroupLocal methods are answered from bridge state without authorization.
	GroupLocal Group = iota
	// GroupPassive methods are proxied to the network in any connection state.
	GroupPassive
	// GroupGatedProxy methods are proxied only for connected pages.
	GroupGatedProxy
	// GroupGatedInteraction methods need a connected page and user approval.
	GroupGatedInteraction
	// GroupConnect is eth_requestAccounts.
	GroupConnect
	// GroupSwitch is wallet_switchEthereumChain.
	GroupSwitch
)

func (g Group) String() string {
	switch g {
	case GroupLocal:
		return "local"
	case GroupPassive:
		return "passive"
	case GroupGatedProxy:
		return "gated_proxy"
	case GroupGatedInteraction:
		return "gated_interaction"
	case GroupConnect:
		return "connect"
	case GroupSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Group returns the dispatch group of m. ok is false for unknown methods.
func (m Method) Group() (Group, bool) {
	switch m {
	case EthChainID, EthCoinbase, NetVersion, EthAccounts, WalletWatchAsset, PersonalECRecover:
		return GroupLocal, true
	case EthCall, EthGetBalance, EthBlockNumber, EthEstimateGas, EthGetCode, Web3ClientVersion,
		EthGetTransactionReceipt, EthGetTransactionByHash, EthGetLogs, DebugTraceTransaction,
		EthGetBlockByNumber, EthGasPrice:
		return GroupPassive, true
	case EthSendRawTransaction, EthGetTransactionCount, EthGetStorageAt:
		return GroupGatedProxy, true
	case EthSendTransaction, PersonalSign, EthSignTypedData, EthSignTypedDataV3, EthSignTypedDataV4,
		WalletAddEthereumChain:
		return GroupGatedInteraction, true
	case EthRequestAccounts:
		return GroupConnect, true
	case WalletSwitchEthereumChain:
		return GroupSwitch, true
	default:
		return 0, false
	}
}

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	_, ok := m.Group()
	return ok
}

// IsSigning reports whether m produces a signature the bridge can verify.
func (m Method) IsSigning() bool {
	switch m {
	case PersonalSign, EthSignTypedData, EthSignTypedDataV3, EthSignTypedDataV4:
		return true
	default:
		return false
	}
}

func (m Method) String() string {
	return string(m)
}
