package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RawTransaction is a transaction object as returned by the node.
// Quantities and byte fields are kept as the node's hex strings; the decoder validates them.
// Corresponds to the result of eth_getTransactionByHash.
type RawTransaction struct {
	Hash                 string  `json:"hash"`
	From                 *string `json:"from,omitempty"`
	To                   *string `json:"to,omitempty"` // nil for contract creation
	Value                string  `json:"value"`
	Input                string  `json:"input"`
	Gas                  string  `json:"gas"`
	GasPrice             *string `json:"gasPrice,omitempty"`
	MaxFeePerGas         *string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *string `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                string  `json:"nonce"`
	Type                 *string `json:"type,omitempty"`
	BlockNumber          *string `json:"blockNumber,omitempty"` // nil while pending

	// ReceivedAt is the local arrival time, stamped when the payload was read.
	ReceivedAt time.Time `json:"-"`
}

// Pending reports whether the transaction is not yet included in a block.
func (r *RawTransaction) Pending() bool {
	return r.BlockNumber == nil
}

// LabelKind classifies how a function label was resolved.
type LabelKind string

const (
	LabelTransfer            LabelKind = "transfer"             // no call data, non-zero value
	LabelContractInteraction LabelKind = "contract_interaction" // no call data, zero value
	LabelKnown               LabelKind = "known"                // selector found in signature table
	LabelUnknown             LabelKind = "unknown"              // selector not in signature table
)

// Category groups function labels for presentation.
type Category string

const (
	CategoryTransfer   Category = "transfer"
	CategorySwap       Category = "swap"
	CategoryLiquidity  Category = "liquidity"
	CategoryApproval   Category = "approval"
	CategoryMint       Category = "mint"
	CategoryWithdraw   Category = "withdraw"
	CategoryBridge     Category = "bridge"
	CategoryStaking    Category = "staking"
	CategoryGovernance Category = "governance"
	CategoryOther      Category = "other"
)

// FunctionLabel is the resolved human label for a transaction's call data.
type FunctionLabel struct {
	Name     string    // human name, or the selector hex when unknown
	Selector string    // 0x-prefixed 4-byte selector, empty when input is shorter than 4 bytes
	Kind     LabelKind
	Category Category
}

// Known reports whether the selector was resolved from the signature table.
func (l FunctionLabel) Known() bool {
	return l.Kind != LabelUnknown
}

// DecodedTransaction is an immutable, display-ready transaction.
// Values are shared by copy; pointer and slice fields must never be written after decode.
type DecodedTransaction struct {
	Hash                 common.Hash
	From                 *common.Address
	To                   *common.Address // nil for contract creation
	Value                *uint256.Int
	Input                []byte
	Gas                  uint64
	GasPrice             *uint256.Int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	Nonce                uint64
	Type                 uint64
	BlockNumber          *uint64
	Pending              bool

	Function       FunctionLabel
	ValueFormatted string // fixed-precision decimal in ether units

	Seq       uint64    // arrival sequence number, assigned by the store
	ArrivedAt time.Time // local arrival time
}

// IsContractCreation reports whether the transaction deploys a contract.
func (t *DecodedTransaction) IsContractCreation() bool {
	return t.To == nil
}

// HasData reports whether the transaction carries call data.
func (t *DecodedTransaction) HasData() bool {
	return len(t.Input) > 0
}
