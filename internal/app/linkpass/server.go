package linkpass

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/chain"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/config"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/money"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/reconcile"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/storage"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Store interface {
	GetOrder(ctx context.Context, id int64) (*storage.Order, error)
	CreateOrder(ctx context.Context, in storage.NewOrder, prepare func(*storage.Order) error) (*storage.Order, error)
	GetPassBySKU(ctx context.Context, sku string) (*storage.Pass, error)
}

type Confirmer interface {
	Confirm(ctx context.Context, orderID int64) (*reconcile.Result, error)
}

type Server struct {
	configuration *config.Configuration
	logger        *logrus.Logger
	router        *mux.Router
	db            Store
	gateways      *chain.Registry
	reconciler    Confirmer
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer
}

func NewServer(
	configuration *config.Configuration,
	log *logrus.Logger,
	db Store,
	gateways *chain.Registry,
	reconciler Confirmer,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) *Server {
	s := &Server{
		configuration: configuration,
		logger:        log,
		router:        mux.NewRouter(),
		db:            db,
		gateways:      gateways,
		reconciler:    reconciler,
		metrics:       m,
		gatherer:      gatherer,
	}
	s.configureRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return requestIDMiddleware(corsMiddleware(s.router))
}

func (s *Server) Start() error {
	s.logger.Info("starting server on port ", s.configuration.BindAddress)
	return http.ListenAndServe(s.configuration.BindAddress, s.Handler())
}

func (s *Server) configureRouter() {
	s.router.Use(s.instrument)

	s.router.HandleFunc("/api/healthz", s.handleHealthz()).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)

	s.router.HandleFunc("/api/intents", s.handleCreateIntent()).Methods(http.MethodPost)
	s.router.HandleFunc("/api/orders", s.handleCreateOrder()).Methods(http.MethodPost)
	s.router.HandleFunc("/api/orders/{id}", s.handleGetOrder()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/orders/{id}/confirm", s.handleConfirmOrder()).Methods(http.MethodPost)
	s.router.HandleFunc("/api/explorer/{chain}/{tx}", s.handleExplorer()).Methods(http.MethodGet)

	s.router.HandleFunc(actionsPrefix+"buy-pass", s.handleActionOptions()).Methods(http.MethodOptions)
	s.router.HandleFunc(actionsPrefix+"buy-pass", s.handleActionGet()).Methods(http.MethodGet)
	s.router.HandleFunc(actionsPrefix+"buy-pass", s.handleActionPost()).Methods(http.MethodPost)
}

func (s *Server) metricsHandler() http.Handler {
	if s.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

func (s *Server) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, "ok")
	}
}

func (s *Server) handleCreateIntent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createIntentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}

		gw, err := s.gateways.Lookup(req.Chain)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		amount := strings.TrimSpace(req.AmountNano)
		if amount == "" && req.Amount != "" {
			amount, err = money.ToSmallestUnit(req.Amount, decimalsFor(gw.Chain()))
			if err != nil {
				s.renderError(w, r, err)
				return
			}
		}
		if amount == "" {
			renderErr(w, http.StatusBadRequest, "amountNano or amount is required")
			return
		}

		intent, err := gw.MakePaymentIntent(r.Context(), chain.PaymentIntentInput{
			To:         req.To,
			AmountNano: amount,
			Memo:       strings.TrimSpace(req.Memo),
			From:       req.From,
		})
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		if s.metrics != nil {
			s.metrics.IntentsCreated.WithLabelValues(string(gw.Chain())).Inc()
		}

		renderJSON(w, intent)
	}
}

func (s *Server) handleCreateOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
		sku := strings.TrimSpace(req.SKU)
		if sku == "" {
			sku = s.configuration.BlinkSKU
		}

		ctx := r.Context()
		pass, err := s.db.GetPassBySKU(ctx, sku)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		rawChain := req.Chain
		if rawChain == "" {
			rawChain = pass.Chain
		}
		gw, err := s.gateways.Lookup(rawChain)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		order, intent, err := s.placeOrder(ctx, pass, gw, req.Account)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		s.log(r).WithFields(logrus.Fields{
			"order_id": order.ID, "sku": order.SKU, "chain": order.Chain,
		}).Info("order created")
		renderJSONStatus(w, http.StatusCreated, orderResponse{Order: order, Intent: intent})
	}
}

// placeOrder writes a paying order for the pass together with its payment
// intent. The order is only kept when the intent could be built.
func (s *Server) placeOrder(ctx context.Context, pass *storage.Pass, gw chain.Gateway, payer string) (*storage.Order, *chain.PaymentIntent, error) {
	if priced, err := chain.ParseChain(pass.Chain); err != nil || priced != gw.Chain() {
		return nil, nil, &chain.ConfigurationError{
			Field:  "chain",
			Reason: "pass " + pass.SKU + " is priced in " + pass.Chain + ", not " + string(gw.Chain()),
		}
	}
	to, field := s.recipientFor(gw.Chain())
	if to == "" {
		return nil, nil, &chain.ConfigurationError{Field: field, Reason: "recipient is not configured"}
	}
	if pass.PriceNano == nil || !pass.PriceNano.IsPositive() {
		return nil, nil, &chain.ConfigurationError{Field: "price_nano", Reason: "pass " + pass.SKU + " has no price"}
	}

	var intent *chain.PaymentIntent
	order, err := s.db.CreateOrder(ctx, storage.NewOrder{
		MerchantID: pass.MerchantID,
		SKU:        pass.SKU,
		Chain:      string(gw.Chain()),
		ToAddress:  to,
		AmountNano: *pass.PriceNano,
	}, func(o *storage.Order) error {
		var err error
		intent, err = gw.MakePaymentIntent(ctx, chain.PaymentIntentInput{
			To:         to,
			AmountNano: o.AmountUnits(),
			Memo:       o.MemoText(),
			From:       payer,
			Reference:  strconv.FormatInt(o.ID, 10),
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if s.metrics != nil {
		s.metrics.OrdersCreated.WithLabelValues(order.Chain).Inc()
	}
	return order, intent, nil
}

func (s *Server) handleGetOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64FromVars(mux.Vars(r), "id")
		if err != nil {
			renderErr(w, http.StatusBadRequest, err.Error())
			return
		}

		order, err := s.db.GetOrder(r.Context(), id)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		renderJSON(w, order)
	}
}

func (s *Server) handleConfirmOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64FromVars(mux.Vars(r), "id")
		if err != nil {
			renderJSONStatus(w, http.StatusBadRequest, confirmErrorResponse{Reason: err.Error()})
			return
		}

		res, err := s.reconciler.Confirm(r.Context(), id)
		if err != nil {
			code := statusFor(err)
			reason := err.Error()
			if code == http.StatusInternalServerError {
				s.log(r).WithError(err).WithField("order_id", id).Error("confirm failed")
				reason = "internal error"
			}
			renderJSONStatus(w, code, confirmErrorResponse{Reason: reason})
			return
		}

		renderJSON(w, res)
	}
}

func (s *Server) handleExplorer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		gw, err := s.gateways.Lookup(vars["chain"])
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		renderJSON(w, explorerResponse{Chain: gw.Chain(), URL: gw.ExplorerTxURL(vars["tx"])})
	}
}

func (s *Server) recipientFor(c chain.Chain) (string, string) {
	switch c {
	case chain.TON:
		return strings.TrimSpace(s.configuration.TonRecipient), "ton_recipient"
	case chain.SOL:
		return strings.TrimSpace(s.configuration.SolanaRecipient), "solana_recipient"
	default:
		return "", "recipient"
	}
}

func decimalsFor(c chain.Chain) int32 {
	if c == chain.SOL {
		return money.SolanaDecimals
	}
	return money.TonDecimals
}
