package linkpass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/chain"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/money"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/storage"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// Solana Actions ("Blink") endpoints.

const (
	actionsPrefix = "/api/actions/"
	actionVersion = "2.4"
)

type blockchainIdentifier interface {
	BlockchainID() string
}

func (s *Server) withActionHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	h.Set("Access-Control-Allow-Headers",
		"Content-Type, Authorization, Content-Encoding, Accept-Encoding, X-Action-Version, X-Blockchain-Ids")
	h.Set("Access-Control-Expose-Headers", "X-Action-Version, X-Blockchain-Ids")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Action-Version", actionVersion)
	if gw, err := s.gateways.Get(chain.SOL); err == nil {
		if id, ok := gw.(blockchainIdentifier); ok {
			h.Set("X-Blockchain-Ids", id.BlockchainID())
		}
	}
}

func (s *Server) actionURL(path string) string {
	return strings.TrimRight(s.configuration.PublicBaseURL, "/") + path
}

func (s *Server) handleActionOptions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.withActionHeaders(w)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleActionGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.withActionHeaders(w)

		pass, price, err := s.blinkPass(r.Context())
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		if sig := strings.TrimSpace(r.URL.Query().Get("transaction")); sig != "" {
			s.log(r).WithField("signature", sig).Info("action success callback")
			gw, err := s.gateways.Get(chain.SOL)
			if err != nil {
				s.renderError(w, r, err)
				return
			}
			renderJSON(w, actionGetResponse{
				Icon:        s.actionURL("/icon.png"),
				Title:       pass.Title,
				Label:       "Paid ✔",
				Description: "Payment received. Your " + pass.Title + " will arrive shortly.",
				Links: &actionLinks{Actions: []actionLink{
					{Label: "View on Explorer", Href: gw.ExplorerTxURL(sig), Type: "post"},
				}},
			})
			return
		}

		label := fmt.Sprintf("Buy for %s SOL", price)
		renderJSON(w, actionGetResponse{
			Icon:        s.actionURL("/icon.png"),
			Title:       pass.Title,
			Label:       label,
			Description: "Purchase " + pass.Title + " with Solana. One-click payment via Blink!",
			Links: &actionLinks{Actions: []actionLink{
				{Label: label, Href: s.actionURL(actionsPrefix + "buy-pass"), Type: "transaction"},
			}},
		})
	}
}

func (s *Server) handleActionPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.withActionHeaders(w)

		var req actionPostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
		account := strings.TrimSpace(req.Account)
		if account == "" {
			renderErr(w, http.StatusBadRequest, "Missing field 'account'")
			return
		}
		if _, err := solana.PublicKeyFromBase58(account); err != nil {
			renderErr(w, http.StatusBadRequest, "invalid account: "+err.Error())
			return
		}

		ctx := r.Context()
		pass, _, err := s.blinkPass(ctx)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		gw, err := s.gateways.Get(chain.SOL)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		order, intent, err := s.placeOrder(ctx, pass, gw, account)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		s.log(r).WithFields(logrus.Fields{
			"order_id": order.ID, "payer": account,
		}).Info("action transaction built")
		renderJSON(w, actionPostResponse{
			Type:        "transaction",
			Transaction: intent.Transaction,
			Message:     pass.Title + " created. Completing payment…",
		})
	}
}

// blinkPass loads the pass sold through the action endpoints and its price
// in SOL. Only SOL-priced passes can be sold there.
func (s *Server) blinkPass(ctx context.Context) (*storage.Pass, string, error) {
	pass, err := s.db.GetPassBySKU(ctx, s.configuration.BlinkSKU)
	if err != nil {
		return nil, "", err
	}
	if c, err := chain.ParseChain(pass.Chain); err != nil || c != chain.SOL {
		return nil, "", &chain.ConfigurationError{Field: "chain", Reason: "pass " + pass.SKU + " is not priced in SOL"}
	}
	if pass.PriceNano == nil {
		return nil, "", &chain.ConfigurationError{Field: "price_nano", Reason: "pass " + pass.SKU + " has no price"}
	}
	price, err := money.FromSmallestUnit(pass.PriceNano.String(), money.SolanaDecimals)
	if err != nil {
		return nil, "", err
	}
	return pass, price, nil
}
