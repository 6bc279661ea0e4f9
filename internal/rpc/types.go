package rpc

import (
	"encoding/json"

	"evm-tx-monitor/internal/domain"
)

// Block is an eth_getBlockByHash result with full transaction objects.
type Block struct {
	Hash         string                  `json:"hash"`
	Number       string                  `json:"number"`
	Transactions []domain.RawTransaction `json:"transactions"`
}

// Header is the newHeads notification payload.
type Header struct {
	Hash   string `json:"hash"`
	Number string `json:"number"`
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsMessage covers responses (ID set), notifications (Method set) and
// unsolicited errors (neither).
type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
	Result  json.RawMessage       `json:"result"`
	Error   *RPCError             `json:"error"`
}

type wsNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type wsResponse struct {
	result json.RawMessage
	err    *RPCError
}
