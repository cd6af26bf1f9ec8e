package srv

import "github.com/ethereum/go-ethereum/common"

// normalizeWallet returns the checksummed form; an empty input is valid and
// stays empty.
func normalizeWallet(s string) (string, bool) {
	if s == "" {
		return "", true
	}
	if !common.IsHexAddress(s) {
		return "", false
	}
	return common.HexToAddress(s).Hex(), true
}

// DisplayWallet shortens an address to its first and last four characters.
func DisplayWallet(w string) string {
	if len(w) <= 8 {
		return w
	}
	return w[:4] + "..." + w[len(w)-4:]
}
