package chain

import (
	"context"
	"strings"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/sirupsen/logrus"
)

type tierOutcome int

const (
	tierNoMatch tierOutcome = iota
	tierMatch
	tierUnavailable
)

func (o tierOutcome) String() string {
	switch o {
	case tierMatch:
		return "match"
	case tierUnavailable:
		return "unavailable"
	default:
		return "no_match"
	}
}

type findTier struct {
	name string
	run  func(ctx context.Context, in FindIncomingInput) (*FindIncomingResult, tierOutcome)
}

// TonFinder tries, in order: amount and comment over liteserver history,
// amount and comment over the REST indexer, then amount alone inside a
// recent time window. The last step exists for wallets that drop comments.
type TonFinder struct {
	rpc     TonTransactionSource
	indexer TonTransactionSource
	limit   uint32
	window  time.Duration
	timeout time.Duration
	log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	tiers   []findTier
}

type TonFinderOptions struct {
	Limit   uint32
	Window  time.Duration
	Timeout time.Duration
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewTonFinder(rpc, indexer TonTransactionSource, opts TonFinderOptions) *TonFinder {
	f := &TonFinder{
		rpc:     rpc,
		indexer: indexer,
		limit:   opts.Limit,
		window:  opts.Window,
		timeout: opts.Timeout,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if f.limit == 0 {
		f.limit = 40
	}
	if f.window <= 0 {
		f.window = 10 * time.Minute
	}
	if f.timeout <= 0 {
		f.timeout = 5 * time.Second
	}
	if f.log == nil {
		f.log = logrus.StandardLogger()
	}
	if f.now == nil {
		f.now = time.Now
	}
	f.tiers = []findTier{
		{name: "strict_rpc", run: f.strictRPC},
		{name: "strict_rest", run: f.strictREST},
		{name: "amount_window_rpc", run: f.amountOnlyRPC},
	}
	return f
}

// Find never fails: an unreachable source only skips its tier.
func (f *TonFinder) Find(ctx context.Context, in FindIncomingInput) *FindIncomingResult {
	for _, tier := range f.tiers {
		if ctx.Err() != nil {
			return nil
		}
		hit, outcome := tier.run(ctx, in)
		f.metrics.ObserveTier(string(TON), tier.name, outcome.String())
		if outcome == tierMatch {
			f.log.WithFields(logrus.Fields{
				"tier": tier.name, "to": in.To, "tx": hit.TxHash,
			}).Info("ton: incoming transfer matched")
			return hit
		}
	}
	return nil
}

func (f *TonFinder) fetch(ctx context.Context, tier string, src TonTransactionSource, account string, limit uint32) ([]TonTransaction, bool) {
	if src == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	txs, err := src.Transactions(ctx, account, limit)
	if err != nil {
		f.log.WithError(err).WithFields(logrus.Fields{
			"tier": tier, "to": account,
		}).Warn("ton: transaction source unavailable, falling through")
		return nil, false
	}
	return txs, true
}

func (f *TonFinder) strictRPC(ctx context.Context, in FindIncomingInput) (*FindIncomingResult, tierOutcome) {
	txs, ok := f.fetch(ctx, "strict_rpc", f.rpc, in.To, f.limit)
	if !ok {
		return nil, tierUnavailable
	}
	return matchStrict(txs, in)
}

func (f *TonFinder) strictREST(ctx context.Context, in FindIncomingInput) (*FindIncomingResult, tierOutcome) {
	txs, ok := f.fetch(ctx, "strict_rest", f.indexer, in.To, f.limit)
	if !ok {
		return nil, tierUnavailable
	}
	return matchStrict(txs, in)
}

func (f *TonFinder) amountOnlyRPC(ctx context.Context, in FindIncomingInput) (*FindIncomingResult, tierOutcome) {
	txs, ok := f.fetch(ctx, "amount_window_rpc", f.rpc, in.To, f.limit)
	if !ok {
		return nil, tierUnavailable
	}

	window := in.NotOlderThan
	if window <= 0 {
		window = f.window
	}
	cutoff := f.now().Add(-window)

	for _, tx := range txs {
		if tx.Now.Before(cutoff) {
			continue
		}
		if !sameTonAddress(tx.Destination, in.To) {
			continue
		}
		if tx.Value != "" && tx.Value == in.AmountNano {
			return &FindIncomingResult{TxHash: tx.Hash, From: tx.Source}, tierMatch
		}
	}
	return nil, tierNoMatch
}

func matchStrict(txs []TonTransaction, in FindIncomingInput) (*FindIncomingResult, tierOutcome) {
	want := strings.TrimSpace(in.Memo)
	for _, tx := range txs {
		if tx.Value == "" || tx.Value != in.AmountNano {
			continue
		}
		if !sameTonAddress(tx.Destination, in.To) {
			continue
		}
		if tx.Comment != want {
			continue
		}
		if want != "" && !tx.HasComment {
			continue
		}
		return &FindIncomingResult{TxHash: tx.Hash, From: tx.Source}, tierMatch
	}
	return nil, tierNoMatch
}
