package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

var memoProgramID = solana.MemoProgramID.String()

// SolanaFinder scans the recipient's recent signatures, newest first, for a
// successful transfer of the exact amount carrying the expected memo.
type SolanaFinder struct {
	ledger  SolanaLedger
	limit   int
	window  time.Duration
	timeout time.Duration
	log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type SolanaFinderOptions struct {
	Limit   int
	Window  time.Duration
	Timeout time.Duration
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewSolanaFinder(ledger SolanaLedger, opts SolanaFinderOptions) *SolanaFinder {
	f := &SolanaFinder{
		ledger:  ledger,
		limit:   opts.Limit,
		window:  opts.Window,
		timeout: opts.Timeout,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if f.limit <= 0 {
		f.limit = 50
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
	return f
}

func (f *SolanaFinder) Find(ctx context.Context, in FindIncomingInput) *FindIncomingResult {
	expected, ok := new(big.Int).SetString(in.AmountNano, 10)
	if !ok {
		return nil
	}

	sigs, err := f.signatures(ctx, in.To)
	if err != nil {
		f.log.WithError(err).WithField("to", in.To).Warn("solana: signature scan unavailable")
		f.metrics.ObserveTier(string(SOL), "window_scan", tierUnavailable.String())
		return nil
	}

	window := in.NotOlderThan
	if window <= 0 {
		window = f.window
	}
	cutoff := f.now().Add(-window)

	for _, sig := range sigs {
		if ctx.Err() != nil {
			break
		}
		if sig.Failed {
			continue
		}
		if !sig.BlockTime.IsZero() && sig.BlockTime.Before(cutoff) {
			continue
		}

		tx, err := f.transaction(ctx, sig.Signature)
		if err != nil {
			f.log.WithError(err).WithField("signature", sig.Signature).Warn("solana: skipping candidate")
			continue
		}
		if tx == nil {
			continue
		}
		if matchSolanaTransfer(tx, in.To, expected, in.Memo) {
			f.metrics.ObserveTier(string(SOL), "window_scan", tierMatch.String())
			hit := &FindIncomingResult{TxHash: sig.Signature}
			if len(tx.AccountKeys) > 0 {
				hit.From = tx.AccountKeys[0]
			}
			f.log.WithFields(logrus.Fields{"to": in.To, "tx": hit.TxHash}).Info("solana: incoming transfer matched")
			return hit
		}
	}
	f.metrics.ObserveTier(string(SOL), "window_scan", tierNoMatch.String())
	return nil
}

func (f *SolanaFinder) signatures(ctx context.Context, account string) ([]SolanaSignature, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.ledger.RecentSignatures(ctx, account, f.limit)
}

func (f *SolanaFinder) transaction(ctx context.Context, signature string) (*SolanaTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.ledger.Transaction(ctx, signature)
}

// matchSolanaTransfer compares the balance delta at the recipient's own
// account index, wherever the recipient sits in the key list.
func matchSolanaTransfer(tx *SolanaTransaction, recipient string, expected *big.Int, memo string) bool {
	if tx.Failed {
		return false
	}
	idx := -1
	for i, k := range tx.AccountKeys {
		if k == recipient {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) {
		return false
	}

	delta := new(big.Int).SetUint64(tx.PostBalances[idx])
	delta.Sub(delta, new(big.Int).SetUint64(tx.PreBalances[idx]))
	if delta.Cmp(expected) != 0 {
		return false
	}

	if memo == "" {
		return true
	}
	for _, ix := range tx.Instructions {
		if ix.ProgramID == memoProgramID && string(ix.Data) == memo {
			return true
		}
	}
	return false
}
