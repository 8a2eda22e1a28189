package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type SolanaSignature struct {
	Signature string
	BlockTime time.Time // zero when the node did not report it
	Failed    bool
}

type SolanaInstruction struct {
	ProgramID string
	Data      []byte
}

// SolanaTransaction is a confirmed transaction reduced to what matching needs.
type SolanaTransaction struct {
	Signature    string
	Failed       bool
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
	Instructions []SolanaInstruction
}

// SolanaLedger is the read side of a Solana node.
type SolanaLedger interface {
	RecentSignatures(ctx context.Context, account string, limit int) ([]SolanaSignature, error)
	// Transaction returns (nil, nil) if the node does not know the signature yet.
	Transaction(ctx context.Context, signature string) (*SolanaTransaction, error)
	LatestBlockhash(ctx context.Context) (string, error)
}

type SolanaRPC struct {
	client  *rpc.Client
	metrics *metrics.Metrics
}

func NewSolanaRPC(client *rpc.Client, m *metrics.Metrics) *SolanaRPC {
	return &SolanaRPC{client: client, metrics: m}
}

func (s *SolanaRPC) observe(started time.Time, err error) {
	s.metrics.ObserveUpstream("solana_rpc", time.Since(started).Seconds(), err)
}

func (s *SolanaRPC) RecentSignatures(ctx context.Context, account string, limit int) (out []SolanaSignature, err error) {
	defer func(started time.Time) { s.observe(started, err) }(time.Now())

	pk, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return nil, configErr("to", "invalid Solana address: %v", err)
	}
	sigs, err := s.client.GetSignaturesForAddressWithOpts(ctx, pk, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("get signatures: %w", err)
	}

	out = make([]SolanaSignature, 0, len(sigs))
	for _, sig := range sigs {
		item := SolanaSignature{Signature: sig.Signature.String(), Failed: sig.Err != nil}
		if sig.BlockTime != nil {
			item.BlockTime = time.Unix(int64(*sig.BlockTime), 0)
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *SolanaRPC) Transaction(ctx context.Context, signature string) (_ *SolanaTransaction, err error) {
	defer func(started time.Time) { s.observe(started, err) }(time.Now())

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	maxVersion := uint64(0)
	res, err := s.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, nil
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	out := &SolanaTransaction{
		Signature:    signature,
		Failed:       res.Meta.Err != nil,
		PreBalances:  res.Meta.PreBalances,
		PostBalances: res.Meta.PostBalances,
	}
	for _, k := range tx.Message.AccountKeys {
		out.AccountKeys = append(out.AccountKeys, k.String())
	}
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(out.AccountKeys) {
			continue
		}
		out.Instructions = append(out.Instructions, SolanaInstruction{
			ProgramID: out.AccountKeys[ix.ProgramIDIndex],
			Data:      []byte(ix.Data),
		})
	}
	return out, nil
}

func (s *SolanaRPC) LatestBlockhash(ctx context.Context) (_ string, err error) {
	defer func(started time.Time) { s.observe(started, err) }(time.Now())

	res, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}
	return res.Value.Blockhash.String(), nil
}
