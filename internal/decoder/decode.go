// Package decoder turns raw node transaction payloads into labeled, display-ready records.
package decoder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"evm-tx-monitor/internal/domain"
)

// Labels used when call data is too short to carry a selector.
const (
	LabelNativeTransfer      = "Transfer"
	LabelContractInteraction = "Contract Interaction"
)

// DefaultPrecision is the number of fractional digits in formatted values.
const DefaultPrecision = 6

const selectorLen = 4

// Decoder decodes raw payloads against a fixed signature table.
// It holds no mutable state and is safe for concurrent use.
type Decoder struct {
	table     *SignatureTable
	precision int
}

// New creates a Decoder. A nil table means the built-in table.
func New(table *SignatureTable, precision int) *Decoder {
	if table == nil {
		table = DefaultSignatureTable()
	}
	if precision < 0 {
		precision = DefaultPrecision
	}
	return &Decoder{table: table, precision: precision}
}

// Decode decodes raw with the default precision.
func Decode(raw *domain.RawTransaction, table *SignatureTable) (domain.DecodedTransaction, error) {
	return New(table, DefaultPrecision).Decode(raw)
}

// Decode validates every hex field of raw and resolves its function label.
// The returned Seq is zero; the store assigns it on insert.
func (d *Decoder) Decode(raw *domain.RawTransaction) (domain.DecodedTransaction, error) {
	var tx domain.DecodedTransaction

	hash, err := decodeHash("hash", raw.Hash)
	if err != nil {
		return tx, err
	}
	tx.Hash = hash

	if tx.From, err = decodeOptionalAddress("from", raw.From); err != nil {
		return tx, err
	}
	if tx.To, err = decodeOptionalAddress("to", raw.To); err != nil {
		return tx, err
	}

	if tx.Value, err = decodeAmount("value", raw.Value); err != nil {
		return tx, err
	}

	input, err := hexutil.Decode(orEmptyData(raw.Input))
	if err != nil {
		return tx, malformed("input", raw.Input, err)
	}
	tx.Input = input

	if tx.Gas, err = decodeUint64("gas", raw.Gas); err != nil {
		return tx, err
	}
	if tx.Nonce, err = decodeUint64("nonce", raw.Nonce); err != nil {
		return tx, err
	}
	if raw.Type != nil {
		if tx.Type, err = decodeUint64("type", *raw.Type); err != nil {
			return tx, err
		}
	}
	if tx.GasPrice, err = decodeOptionalAmount("gasPrice", raw.GasPrice); err != nil {
		return tx, err
	}
	if tx.MaxFeePerGas, err = decodeOptionalAmount("maxFeePerGas", raw.MaxFeePerGas); err != nil {
		return tx, err
	}
	if tx.MaxPriorityFeePerGas, err = decodeOptionalAmount("maxPriorityFeePerGas", raw.MaxPriorityFeePerGas); err != nil {
		return tx, err
	}
	if raw.BlockNumber != nil {
		n, err := decodeUint64("blockNumber", *raw.BlockNumber)
		if err != nil {
			return tx, err
		}
		tx.BlockNumber = &n
	}
	tx.Pending = tx.BlockNumber == nil

	tx.Function = d.label(tx.Input, tx.Value)
	tx.ValueFormatted = FormatEther(tx.Value, d.precision)
	tx.ArrivedAt = raw.ReceivedAt

	return tx, nil
}

// label resolves the function label for call data and value.
func (d *Decoder) label(input []byte, value *uint256.Int) domain.FunctionLabel {
	if len(input) < selectorLen {
		if !value.IsZero() {
			return domain.FunctionLabel{
				Name:     LabelNativeTransfer,
				Kind:     domain.LabelTransfer,
				Category: domain.CategoryTransfer,
			}
		}
		return domain.FunctionLabel{
			Name:     LabelContractInteraction,
			Kind:     domain.LabelContractInteraction,
			Category: domain.CategoryOther,
		}
	}

	selector := hexutil.Encode(input[:selectorLen])
	if name, ok := d.table.Lookup(selector); ok {
		return domain.FunctionLabel{
			Name:     name,
			Selector: selector,
			Kind:     domain.LabelKnown,
			Category: Categorize(name),
		}
	}
	return domain.FunctionLabel{
		Name:     selector,
		Selector: selector,
		Kind:     domain.LabelUnknown,
		Category: domain.CategoryOther,
	}
}

// DecodeReceipt validates a raw receipt.
func DecodeReceipt(raw *domain.RawReceipt) (domain.Receipt, error) {
	r := domain.Receipt{TxHash: raw.TransactionHash}

	if raw.BlockNumber != nil {
		n, err := decodeUint64("blockNumber", *raw.BlockNumber)
		if err != nil {
			return r, err
		}
		r.BlockNumber = &n
	}
	if raw.Status != nil {
		n, err := decodeUint64("status", *raw.Status)
		if err != nil {
			return r, err
		}
		ok := n == 1
		r.Status = &ok
	}
	if raw.GasUsed != nil {
		n, err := decodeUint64("gasUsed", *raw.GasUsed)
		if err != nil {
			return r, err
		}
		r.GasUsed = &n
	}
	if raw.EffectiveGasPrice != nil {
		v, err := decodeAmount("effectiveGasPrice", *raw.EffectiveGasPrice)
		if err != nil {
			return r, err
		}
		r.EffectiveGasPrice = v.Dec()
	}
	return r, nil
}

func decodeHash(field, s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, malformed(field, s, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, malformed(field, s, errBadLength(len(b), common.HashLength))
	}
	return common.BytesToHash(b), nil
}

func decodeOptionalAddress(field string, s *string) (*common.Address, error) {
	if s == nil {
		return nil, nil
	}
	b, err := hexutil.Decode(*s)
	if err != nil {
		return nil, malformed(field, *s, err)
	}
	if len(b) != common.AddressLength {
		return nil, malformed(field, *s, errBadLength(len(b), common.AddressLength))
	}
	addr := common.BytesToAddress(b)
	return &addr, nil
}

func decodeAmount(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromHex(s)
	if err != nil {
		return nil, malformed(field, s, err)
	}
	return v, nil
}

func decodeOptionalAmount(field string, s *string) (*uint256.Int, error) {
	if s == nil {
		return nil, nil
	}
	return decodeAmount(field, *s)
}

func decodeUint64(field, s string) (uint64, error) {
	n, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, malformed(field, s, err)
	}
	return n, nil
}

// orEmptyData maps a missing input field to empty call data.
func orEmptyData(s string) string {
	if s == "" {
		return "0x"
	}
	return s
}
