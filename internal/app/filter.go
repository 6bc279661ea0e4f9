package app

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"evm-tx-monitor/internal/domain"
)

// Filter matches transactions against a case-insensitive query over the
// hash, sender, recipient and function label.
type Filter struct {
	query string
	exact *common.Hash
}

// ParseFilter builds a Filter. A query that is a full 32-byte hash only
// matches that transaction; anything else is a substring match.
func ParseFilter(query string) Filter {
	q := strings.ToLower(strings.TrimSpace(query))
	f := Filter{query: q}
	if len(q) == 2+2*common.HashLength {
		if b, err := hexutil.Decode(q); err == nil {
			h := common.BytesToHash(b)
			f.exact = &h
		}
	}
	return f
}

// Query returns the normalized query text.
func (f Filter) Query() string {
	return f.query
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return f.query == ""
}

// Match reports whether tx satisfies the filter.
func (f Filter) Match(tx *domain.DecodedTransaction) bool {
	if f.Empty() {
		return true
	}
	if f.exact != nil {
		return tx.Hash == *f.exact
	}
	if strings.Contains(strings.ToLower(tx.Hash.Hex()), f.query) {
		return true
	}
	if tx.From != nil && strings.Contains(strings.ToLower(tx.From.Hex()), f.query) {
		return true
	}
	if tx.To != nil && strings.Contains(strings.ToLower(tx.To.Hex()), f.query) {
		return true
	}
	if strings.Contains(strings.ToLower(tx.Function.Name), f.query) {
		return true
	}
	return tx.Function.Selector != "" && strings.Contains(strings.ToLower(tx.Function.Selector), f.query)
}
