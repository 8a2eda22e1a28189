// Package reconcile turns a confirmed chain transfer into the paid state of
// an order.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/chain"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/storage"
	"github.com/sirupsen/logrus"
)

const ReasonNotFoundYet = "not found yet"

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrToAddressMissing = errors.New("order has no recipient address")
	ErrOrderFailed      = errors.New("order has failed")
)

type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*storage.Order, error)
	MarkOrderPaid(ctx context.Context, id int64, upd storage.PaidUpdate) (bool, error)
}

type Gateways interface {
	Lookup(raw string) (chain.Gateway, error)
}

type Result struct {
	OK         bool   `json:"ok"`
	Already    bool   `json:"already,omitempty"`
	Tx         string `json:"tx,omitempty"`
	ReceiptURL string `json:"receiptUrl,omitempty"`
	From       string `json:"from,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type Options struct {
	// Window is passed to time-windowed finders; zero keeps their default.
	Window  time.Duration
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Reconciler struct {
	orders   OrderStore
	gateways Gateways
	window   time.Duration
	log      *logrus.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(orders OrderStore, gateways Gateways, opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		orders:   orders,
		gateways: gateways,
		window:   opts.Window,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// Confirm checks the chain for the order's expected transfer and marks the
// order paid on a hit. A miss is reported as a Result with OK false and
// leaves the row untouched, so callers may poll.
func (r *Reconciler) Confirm(ctx context.Context, orderID int64) (*Result, error) {
	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return nil, err
	}

	label := chainLabel(order.Chain)
	log := r.log.WithFields(logrus.Fields{"order_id": order.ID, "chain": label})

	switch order.Status {
	case storage.StatusPaid:
		r.metrics.ObserveConfirm(label, "already")
		return paidResult(order), nil
	case storage.StatusFailed:
		r.metrics.ObserveConfirm(label, "failed")
		return nil, fmt.Errorf("%w: %d", ErrOrderFailed, order.ID)
	}

	gw, err := r.gateways.Lookup(order.Chain)
	if err != nil {
		r.metrics.ObserveConfirm(label, "error")
		return nil, err
	}
	label = string(gw.Chain())
	if order.Recipient() == "" {
		r.metrics.ObserveConfirm(label, "error")
		return nil, fmt.Errorf("%w: order %d", ErrToAddressMissing, order.ID)
	}

	hit, err := gw.FindIncoming(ctx, chain.FindIncomingInput{
		To:           order.Recipient(),
		AmountNano:   order.AmountUnits(),
		Memo:         order.MemoText(),
		NotOlderThan: r.window,
	})
	if err != nil {
		r.metrics.ObserveConfirm(label, "error")
		return nil, err
	}
	if hit == nil {
		log.Info("incoming transfer not found yet")
		r.metrics.ObserveConfirm(label, "not_found")
		return &Result{OK: false, Reason: ReasonNotFoundYet}, nil
	}

	receipt := gw.ExplorerTxURL(hit.TxHash)
	won, err := r.orders.MarkOrderPaid(ctx, order.ID, storage.PaidUpdate{
		Tx:          hit.TxHash,
		From:        hit.From,
		ReceiptURL:  receipt,
		ConfirmedAt: r.now().UTC(),
	})
	if err != nil {
		log.WithError(err).Error("mark order paid failed")
		r.metrics.ObserveConfirm(label, "error")
		return nil, err
	}

	if !won {
		// Another writer moved the row first; answer with what it stored.
		current, err := r.orders.GetOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case storage.StatusPaid:
			r.metrics.ObserveConfirm(label, "already")
			return paidResult(current), nil
		case storage.StatusFailed:
			log.WithField("tx", hit.TxHash).Warn("transfer found for a failed order")
			r.metrics.ObserveConfirm(label, "failed")
			return nil, fmt.Errorf("%w: %d", ErrOrderFailed, order.ID)
		}
		return nil, fmt.Errorf("order %d: paid update not applied", order.ID)
	}

	log.WithFields(logrus.Fields{"tx": hit.TxHash, "from": hit.From}).Info("order paid")
	r.metrics.ObserveConfirm(label, "paid")
	return &Result{OK: true, Tx: hit.TxHash, ReceiptURL: receipt, From: hit.From}, nil
}

// chainLabel keeps metric labels to the canonical chain names.
func chainLabel(raw string) string {
	c, err := chain.ParseChain(raw)
	if err != nil {
		return "unknown"
	}
	return string(c)
}

func paidResult(o *storage.Order) *Result {
	res := &Result{OK: true, Already: true}
	if o.Tx != nil {
		res.Tx = *o.Tx
	}
	if o.ReceiptURL != nil {
		res.ReceiptURL = *o.ReceiptURL
	}
	if o.FromAddress != nil {
		res.From = *o.FromAddress
	}
	return res
}
