package rpc

// RPC endpoint paths for the poll ledger. All paths are consolidated here
// so a node API revision touches a single file.

const (
	// Contract state queries
	pollByIDPath  = "/v1/query/poll"
	pollCountPath = "/v1/query/poll-count"
	pollsPath     = "/v1/query/polls"

	// Chain metadata
	chainInfoPath = "/v1/query/chain-info"

	// Transaction submission
	submitTxPath = "/v1/tx/submit"

	// Websocket subscription, joined to an endpoint with ws/wss scheme
	subscribeTxPath = "/v1/subscribe-tx"
)
