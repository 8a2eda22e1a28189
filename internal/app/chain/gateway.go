// Package chain confirms incoming transfers on TON and Solana and builds the
// wallet payloads that start them.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Chain string

const (
	TON Chain = "TON"
	SOL Chain = "SOL"
)

var ErrUnsupportedChain = errors.New("unsupported chain")

// ConfigurationError names the input or setting that made an operation impossible.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ParseChain accepts the identifiers persisted by older order rows
// ("ton", "sol", "solana") as well as the canonical ones.
func ParseChain(s string) (Chain, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TON":
		return TON, nil
	case "SOL", "SOLANA":
		return SOL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChain, s)
	}
}

type PaymentIntentInput struct {
	To         string
	AmountNano string
	Memo       string
	// From is the paying wallet, used by chains that build a full transaction.
	From string
	// Reference correlates a Solana Pay request, usually the order id.
	Reference string
}

type PaymentIntent struct {
	URI         string `json:"uri"`
	QRText      string `json:"qrText"`
	Memo        string `json:"memo,omitempty"`
	Transaction string `json:"transaction,omitempty"`
}

type FindIncomingInput struct {
	To         string
	AmountNano string
	Memo       string
	// NotOlderThan bounds the time-windowed scans; zero means the gateway default.
	NotOlderThan time.Duration
}

type FindIncomingResult struct {
	TxHash string
	From   string
}

// Gateway is implemented once per chain.
// FindIncoming returns (nil, nil) when nothing matches yet.
type Gateway interface {
	Chain() Chain
	MakePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error)
	FindIncoming(ctx context.Context, in FindIncomingInput) (*FindIncomingResult, error)
	ExplorerTxURL(txHash string) string
}

type Registry struct {
	gateways map[Chain]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Chain]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Chain()] = g
	}
	return r
}

func (r *Registry) Get(c Chain) (Gateway, error) {
	g, ok := r.gateways[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}
	return g, nil
}

// Lookup parses a raw chain identifier and returns its gateway.
func (r *Registry) Lookup(raw string) (Gateway, error) {
	c, err := ParseChain(raw)
	if err != nil {
		return nil, err
	}
	return r.Get(c)
}
