package model

// Network identifies the Solana cluster a crawl runs against.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
	NetworkTestnet Network = "testnet"
)

func (n Network) String() string {
	return string(n)
}

// DefaultRPCURL returns the public RPC endpoint for the network, or "" when
// the network is unknown.
func (n Network) DefaultRPCURL() string {
	switch n {
	case NetworkMainnet:
		return "https://api.mainnet-beta.solana.com"
	case NetworkDevnet:
		return "https://api.devnet.solana.com"
	case NetworkTestnet:
		return "https://api.testnet.solana.com"
	default:
		return ""
	}
}
