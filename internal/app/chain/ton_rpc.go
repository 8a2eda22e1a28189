package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
)

// TonTransaction is the fixed shape every TON data source is mapped into
// before matching.
type TonTransaction struct {
	Hash        string
	LT          uint64
	Now         time.Time
	Source      string
	Destination string
	// Value is the inbound amount in nanotons as an integer string; empty
	// when the record carried no parsable value.
	Value      string
	Comment    string
	HasComment bool
}

// TonTransactionSource lists recent transactions of an account, newest first.
type TonTransactionSource interface {
	Transactions(ctx context.Context, account string, limit uint32) ([]TonTransaction, error)
}

type tonLiteAPI interface {
	CurrentMasterchainInfo(ctx context.Context) (*ton.BlockIDExt, error)
	GetAccount(ctx context.Context, block *ton.BlockIDExt, addr *address.Address) (*tlb.Account, error)
	ListTransactions(ctx context.Context, addr *address.Address, num uint32, lt uint64, txHash []byte) ([]*tlb.Transaction, error)
}

// liteservers reject getTransactions pages larger than 16
const liteTxPageSize = 15

// TonRPC reads account history from liteservers.
type TonRPC struct {
	api     tonLiteAPI
	metrics *metrics.Metrics
}

func NewTonRPC(api tonLiteAPI, m *metrics.Metrics) *TonRPC {
	return &TonRPC{api: api, metrics: m}
}

func (r *TonRPC) Transactions(ctx context.Context, account string, limit uint32) (txs []TonTransaction, err error) {
	started := time.Now()
	defer func() {
		r.metrics.ObserveUpstream("ton_rpc", time.Since(started).Seconds(), err)
	}()

	addr, err := parseTonAddr(account)
	if err != nil {
		return nil, configErr("to", "invalid TON address: %v", err)
	}

	block, err := r.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get masterchain info: %w", err)
	}
	acc, err := r.api.GetAccount(ctx, block, addr)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acc == nil || acc.LastTxLT == 0 {
		return nil, nil
	}

	lt, hash := acc.LastTxLT, acc.LastTxHash
	txs = make([]TonTransaction, 0, limit)
	for uint32(len(txs)) < limit && lt != 0 {
		num := limit - uint32(len(txs))
		if num > liteTxPageSize {
			num = liteTxPageSize
		}

		page, err := r.api.ListTransactions(ctx, addr, num, lt, hash)
		if err != nil {
			if errors.Is(err, ton.ErrNoTransactionsWereFound) {
				break
			}
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		if len(page) == 0 {
			break
		}

		// pages come oldest first
		for i := len(page) - 1; i >= 0; i-- {
			txs = append(txs, tonTransactionFromTLB(page[i]))
		}
		lt, hash = page[0].PrevTxLT, page[0].PrevTxHash
	}
	return txs, nil
}

func tonTransactionFromTLB(tx *tlb.Transaction) TonTransaction {
	out := TonTransaction{
		Hash: hex.EncodeToString(tx.Hash),
		LT:   tx.LT,
		Now:  time.Unix(int64(tx.Now), 0),
	}

	in := tx.IO.In
	if in == nil || in.MsgType != tlb.MsgTypeInternal {
		return out
	}
	msg := in.AsInternal()
	if msg.SrcAddr != nil {
		out.Source = msg.SrcAddr.String()
	}
	if msg.DstAddr != nil {
		out.Destination = msg.DstAddr.String()
	}
	out.Value = msg.Amount.Nano().String()
	out.Comment, out.HasComment = DecodeTonComment(msg.Body)
	return out
}
