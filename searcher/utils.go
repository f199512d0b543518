package searcher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

var (
	ethDivisor  = new(big.Float).SetUint64(params.Ether)
	gweiDivisor = new(big.Float).SetUint64(params.GWei)
)

// FormatUnits renders a wei value in "eth" or "gwei". Unknown units render as an empty string.
func FormatUnits(value *big.Int, unit string) string {
	float := new(big.Float).SetInt(value)
	switch unit {
	case "eth":
		return float.Quo(float, ethDivisor).String()
	case "gwei":
		return float.Quo(float, gweiDivisor).String()
	default:
		return ""
	}
}
