package decoder

import (
	"strings"

	"evm-tx-monitor/internal/domain"
)

// Categorize groups a function name for colouring in the list view.
func Categorize(name string) domain.Category {
	switch {
	case name == "transfer" || name == "transferFrom" || name == "safeTransferFrom" || name == LabelNativeTransfer:
		return domain.CategoryTransfer
	case strings.Contains(name, "swap"):
		return domain.CategorySwap
	case strings.Contains(name, "Liquidity"):
		return domain.CategoryLiquidity
	case name == "approve" || name == "setApprovalForAll":
		return domain.CategoryApproval
	case name == "mint" || name == "deposit":
		return domain.CategoryMint
	case name == "withdraw" || name == "withdrawAll" || name == "burn" || name == "exit":
		return domain.CategoryWithdraw
	case strings.Contains(name, "bridge"):
		return domain.CategoryBridge
	case name == "stake" || name == "unstake" || name == "getReward" || name == "claim":
		return domain.CategoryStaking
	case strings.Contains(name, "Vote") || name == "propose" || name == "execute":
		return domain.CategoryGovernance
	default:
		return domain.CategoryOther
	}
}
