package domain

import (
	"errors"
	"strings"
)

// ErrInvalidPair 交易对格式非法
var ErrInvalidPair = errors.New("invalid currency pair")

// settlementAliases 记账等价表：交易对符号与实际记账货币的映射
// 稳定币按其锚定的结算货币记账
var settlementAliases = map[string]string{
	"USDT": "USD",
}

// SplitPair 将交易对拆为基准货币与目标货币
// 交易对格式为 BASE_TARGET，如 USDT_BTC
func SplitPair(pair string) (base, target string, err error) {
	parts := strings.Split(pair, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidPair
	}
	return parts[0], parts[1], nil
}

// SettlementCurrency 返回货币的记账货币
// 无别名时返回自身
func SettlementCurrency(currency string) string {
	if alias, ok := settlementAliases[currency]; ok {
		return alias
	}
	return currency
}

// SplitPairForSettlement 拆分交易对并将两侧解析为记账货币
func SplitPairForSettlement(pair string) (base, target string, err error) {
	base, target, err = SplitPair(pair)
	if err != nil {
		return "", "", err
	}
	return SettlementCurrency(base), SettlementCurrency(target), nil
}
