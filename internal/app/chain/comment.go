package chain

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// DecodeTonComment reads a TON text comment: a 32-bit zero op-code followed
// by a snake-encoded UTF-8 tail.
func DecodeTonComment(c *cell.Cell) (string, bool) {
	if c == nil {
		return "", false
	}
	s := c.BeginParse()
	if s.BitsLeft() < 32 {
		return "", false
	}
	op, err := s.LoadUInt(32)
	if err != nil || op != 0 {
		return "", false
	}
	text, err := s.LoadStringSnake()
	if err != nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// DecodeTonCommentBOC is DecodeTonComment over a serialized bag of cells,
// base64 or base64url encoded as indexers return it.
func DecodeTonCommentBOC(b64 string) (string, bool) {
	raw, ok := decodeBase64(b64)
	if !ok {
		return "", false
	}
	c, err := cell.FromBOC(raw)
	if err != nil {
		return "", false
	}
	return DecodeTonComment(c)
}

// DecodeBase64Text is a best-effort base64/base64url to UTF-8 decode.
func DecodeBase64Text(s string) (string, bool) {
	raw, ok := decodeBase64(s)
	if !ok || !utf8.Valid(raw) {
		return "", false
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", false
	}
	return text, true
}

func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	s = strings.TrimRight(s, "=")
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return raw, true
}
