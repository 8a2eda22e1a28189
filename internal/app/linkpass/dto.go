package linkpass

import (
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/chain"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/storage"
)

type createIntentRequest struct {
	Chain      string `json:"chain"`
	To         string `json:"to"`
	AmountNano string `json:"amountNano"`
	// Amount is a human decimal ("0.02"), used when AmountNano is empty.
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
	From   string `json:"from"`
}

type createOrderRequest struct {
	SKU   string `json:"sku"`
	Chain string `json:"chain"`
	// Account is the paying Solana wallet, if already known.
	Account string `json:"account"`
}

type orderResponse struct {
	Order  *storage.Order       `json:"order"`
	Intent *chain.PaymentIntent `json:"intent,omitempty"`
}

type confirmErrorResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

type explorerResponse struct {
	Chain chain.Chain `json:"chain"`
	URL   string      `json:"url"`
}

type actionLink struct {
	Label string `json:"label"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
}

type actionLinks struct {
	Actions []actionLink `json:"actions"`
}

type actionGetResponse struct {
	Icon        string       `json:"icon"`
	Title       string       `json:"title"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Disabled    bool         `json:"disabled,omitempty"`
	Links       *actionLinks `json:"links,omitempty"`
}

type actionPostRequest struct {
	Account string `json:"account"`
}

type actionPostResponse struct {
	Type        string `json:"type"`
	Transaction string `json:"transaction"`
	Message     string `json:"message,omitempty"`
}
