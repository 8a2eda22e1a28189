package chain

import (
	"context"
	"net/url"
	"strings"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/money"
)

type TonGateway struct {
	finder  *TonFinder
	mainnet bool
}

func NewTonGateway(finder *TonFinder, mainnet bool) *TonGateway {
	return &TonGateway{finder: finder, mainnet: mainnet}
}

func (g *TonGateway) Chain() Chain { return TON }

// MakePaymentIntent builds a ton://transfer deep link; no chain I/O.
func (g *TonGateway) MakePaymentIntent(_ context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	to := strings.TrimSpace(in.To)
	if to == "" {
		return nil, configErr("to", "TON recipient is required")
	}
	addr, err := parseTonAddr(to)
	if err != nil {
		return nil, configErr("to", "invalid TON address: %v", err)
	}
	if strings.Contains(to, ":") {
		// wallets only understand the user-friendly form in deep links
		to = addr.String()
	}
	if !money.IsUnits(in.AmountNano) {
		return nil, configErr("amountNano", "must be an integer string, got %q", in.AmountNano)
	}

	q := url.Values{}
	q.Set("amount", in.AmountNano)
	if in.Memo != "" {
		q.Set("text", in.Memo)
	}
	uri := "ton://transfer/" + to + "?" + q.Encode()
	return &PaymentIntent{URI: uri, QRText: uri, Memo: in.Memo}, nil
}

func (g *TonGateway) FindIncoming(ctx context.Context, in FindIncomingInput) (*FindIncomingResult, error) {
	if _, err := parseTonAddr(in.To); err != nil {
		return nil, configErr("to", "invalid TON address: %v", err)
	}
	return g.finder.Find(ctx, in), nil
}

func (g *TonGateway) ExplorerTxURL(txHash string) string {
	base := "https://testnet.tonviewer.com/transaction/"
	if g.mainnet {
		base = "https://tonviewer.com/transaction/"
	}
	return base + txHash
}
