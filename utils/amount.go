package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var weiPerTaco = decimal.New(1, 18)

// TacosToWei converts a whole-taco count to the token's 18-decimal base unit.
func TacosToWei(count int64) *big.Int {
	return decimal.NewFromInt(count).Mul(weiPerTaco).BigInt()
}

// WeiToTacos renders a base-unit amount as a human-readable taco count.
func WeiToTacos(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerTaco).String()
}
