// Package payout validates and formats the Ethereum payout addresses that
// the node registry and minter glue operate on.
package payout

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned when a candidate string is not 0x+40-hex.
var ErrInvalidAddress = errors.New("payout: invalid eth address")

// ValidAddress reports whether addr is a well-formed 0x+40-hex Ethereum
// address.
func ValidAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// Normalize returns the EIP-55 checksummed form of a validated address.
func Normalize(addr string) (string, error) {
	if !ValidAddress(addr) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(addr).Hex(), nil
}
