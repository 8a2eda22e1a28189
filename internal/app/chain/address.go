package chain

import (
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// parseTonAddr accepts both the user-friendly base64 form and the raw
// "<workchain>:<hex>" form reported by TonConnect.
func parseTonAddr(addr string) (*address.Address, error) {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, ":") {
		return address.ParseRawAddr(addr)
	}
	return address.ParseAddr(addr)
}

// normalizeTonAddress reduces user-friendly and raw forms of the same TON
// account to one comparable key.
func normalizeTonAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	parsed, err := parseTonAddr(addr)
	if err != nil {
		return strings.ToLower(addr)
	}
	return strings.ToLower(parsed.StringRaw())
}

// sameTonAddress treats an empty side as a match because some indexers
// omit the destination on inbound messages.
func sameTonAddress(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return normalizeTonAddress(a) == normalizeTonAddress(b)
}
