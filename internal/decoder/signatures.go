package decoder

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"
)

// builtinSignatures maps 4-byte selectors to function names commonly seen on EVM chains.
var builtinSignatures = map[string]string{
	// ERC-20
	"0xa9059cbb": "transfer",
	"0x23b872dd": "transferFrom",
	"0x095ea7b3": "approve",
	"0xdd62ed3e": "allowance",
	"0x70a08231": "balanceOf",
	"0x18160ddd": "totalSupply",

	// Uniswap V2 style routers
	"0x38ed1739": "swapExactTokensForTokens",
	"0x7ff36ab5": "swapExactETHForTokens",
	"0x18cbafe5": "swapExactTokensForETH",
	"0x4a25d94a": "swapTokensForExactETH",
	"0xfb3bdb41": "swapETHForExactTokens",
	"0x5c11d795": "swapExactTokensForTokensSupportingFeeOnTransferTokens",
	"0xb6f9de95": "swapExactETHForTokensSupportingFeeOnTransferTokens",
	"0x791ac947": "swapExactTokensForETHSupportingFeeOnTransferTokens",

	// Liquidity
	"0xe8e33700": "addLiquidity",
	"0xf305d719": "addLiquidityETH",
	"0xbaa2abde": "removeLiquidity",
	"0x02751cec": "removeLiquidityETH",
	"0xaf2979eb": "removeLiquidityETHSupportingFeeOnTransferTokens",
	"0xded9382a": "removeLiquidityETHWithPermit",
	"0x2195995c": "removeLiquidityWithPermit",

	// ERC-721
	"0x42842e0e": "safeTransferFrom",
	"0xb88d4fde": "safeTransferFromWithData",
	"0x6352211e": "ownerOf",
	"0x081812fc": "getApproved",
	"0xa22cb465": "setApprovalForAll",
	"0xe985e9c5": "isApprovedForAll",
	"0x40c10f19": "mint",
	"0x42966c68": "burn",

	// WETH
	"0xd0e30db0": "deposit",
	"0x2e1a7d4d": "withdraw",

	// Multicall
	"0xac9650d8": "multicall",
	"0x5ae401dc": "multicallWithDeadline",

	// Bridges
	"0x3ceda011": "bridgeETH",
	"0xd92d0bd7": "bridgeERC20",
	"0x8eb388f3": "bridgeNativeToken",

	// Staking
	"0xa694fc3a": "stake",
	"0x2e17de78": "unstake",
	"0x3d18b912": "getReward",
	"0xe9fad8ee": "exit",
	"0x379607f5": "claim",

	// Governance
	"0x15373e3d": "castVote",
	"0x56781388": "castVoteWithReason",
	"0x7b3c71d3": "castVoteWithReasonAndParams",
	"0xc9d27afe": "castVoteBySig",
	"0xea0217cf": "propose",
	"0x40e58ee5": "cancel",
	"0xfe0d94c1": "execute",
	"0x2656227d": "queue",

	// Misc
	"0x3ccfd60b": "withdraw",
	"0x1249c58b": "mint",
	"0x853828b6": "withdrawAll",
	"0x1cff79cd": "execute",
	"0x9059cbb2": "transfer",
}

// SignatureTable is an immutable selector -> function name mapping.
// Build it once at startup with NewSignatureTable or LoadSignatureTable.
type SignatureTable struct {
	names map[string]string
}

// NewSignatureTable returns the built-in table merged with overrides.
// Override keys must be 0x-prefixed 4-byte selectors; they replace built-in entries.
func NewSignatureTable(overrides map[string]string) (*SignatureTable, error) {
	names := make(map[string]string, len(builtinSignatures)+len(overrides))
	for sel, name := range builtinSignatures {
		names[sel] = name
	}
	for sel, name := range overrides {
		key, err := normalizeSelector(sel)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("selector %s: empty function name", sel)
		}
		names[key] = name
	}
	return &SignatureTable{names: names}, nil
}

// DefaultSignatureTable returns the built-in table.
func DefaultSignatureTable() *SignatureTable {
	t, _ := NewSignatureTable(nil)
	return t
}

// Lookup returns the function name for a 0x-prefixed lowercase selector.
func (t *SignatureTable) Lookup(selector string) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.names[selector]
	return name, ok
}

// Len returns the number of known selectors.
func (t *SignatureTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// signatureFile is the YAML override format.
//
//	selectors:
//	  "0x12345678": myFunction
//	functions:
//	  - "transfer(address,uint256)"
type signatureFile struct {
	Selectors map[string]string `yaml:"selectors"`
	Functions []string          `yaml:"functions"`
}

// LoadSignatureTable builds a table from the built-ins plus the YAML file at path.
// An empty path yields the built-in table.
func LoadSignatureTable(path string) (*SignatureTable, error) {
	if path == "" {
		return DefaultSignatureTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures file: %w", err)
	}
	return ParseSignatureOverrides(data)
}

// ParseSignatureOverrides builds a table from YAML override content.
func ParseSignatureOverrides(data []byte) (*SignatureTable, error) {
	var file signatureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse signatures file: %w", err)
	}

	overrides := make(map[string]string, len(file.Selectors)+len(file.Functions))
	for _, proto := range file.Functions {
		sel, name, err := selectorFromPrototype(proto)
		if err != nil {
			return nil, err
		}
		overrides[sel] = name
	}
	// Explicit selectors win over hashed prototypes.
	for sel, name := range file.Selectors {
		overrides[sel] = name
	}
	return NewSignatureTable(overrides)
}

// selectorFromPrototype hashes a canonical prototype like "transfer(address,uint256)".
func selectorFromPrototype(proto string) (string, string, error) {
	proto = strings.ReplaceAll(strings.TrimSpace(proto), " ", "")
	open := strings.IndexByte(proto, '(')
	if open <= 0 || !strings.HasSuffix(proto, ")") {
		return "", "", fmt.Errorf("invalid function prototype %q", proto)
	}
	sel := hexutil.Encode(crypto.Keccak256([]byte(proto))[:4])
	return sel, proto[:open], nil
}

func normalizeSelector(sel string) (string, error) {
	b, err := hexutil.Decode(strings.ToLower(strings.TrimSpace(sel)))
	if err != nil {
		return "", fmt.Errorf("selector %q: %w", sel, err)
	}
	if len(b) != 4 {
		return "", fmt.Errorf("selector %q: want 4 bytes, got %d", sel, len(b))
	}
	return hexutil.Encode(b), nil
}
