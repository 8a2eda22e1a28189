package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/money"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
)

const (
	computeUnitLimit = 200_000
	computeUnitPrice = 1_000 // micro-lamports
)

type SolanaGatewayOptions struct {
	Cluster string
	// FeePayer is used when an intent is built before the wallet is known.
	FeePayer string
	// ActionURL is the Blink endpoint the intent URI points at.
	ActionURL string
	Label     string
}

type SolanaGateway struct {
	ledger SolanaLedger
	finder *SolanaFinder
	opts   SolanaGatewayOptions
}

func NewSolanaGateway(ledger SolanaLedger, finder *SolanaFinder, opts SolanaGatewayOptions) *SolanaGateway {
	opts.Cluster = strings.ToLower(strings.TrimSpace(opts.Cluster))
	if opts.Cluster == "" {
		opts.Cluster = "devnet"
	}
	return &SolanaGateway{ledger: ledger, finder: finder, opts: opts}
}

func (g *SolanaGateway) Chain() Chain { return SOL }

// MakePaymentIntent fetches one recent blockhash and returns an unsigned
// transfer transaction (compute budget, transfer, memo) plus a Solana Pay
// URI for QR rendering.
func (g *SolanaGateway) MakePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	payer, err := g.resolvePayer(in.From)
	if err != nil {
		return nil, err
	}
	payURI, err := SolanaPayURI(in.To, in.AmountNano, in.Reference, g.opts.Label, in.Memo)
	if err != nil {
		return nil, err
	}

	blockhash, err := g.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := BuildSolanaTransfer(payer, in.To, in.AmountNano, in.Memo, blockhash)
	if err != nil {
		return nil, err
	}
	encoded, err := EncodeUnsignedTransaction(tx)
	if err != nil {
		return nil, err
	}

	uri := encoded
	if g.opts.ActionURL != "" {
		q := url.Values{}
		q.Set("tx", encoded)
		if in.Memo != "" {
			q.Set("memo", in.Memo)
		}
		uri = g.opts.ActionURL + "?" + q.Encode()
	}
	return &PaymentIntent{URI: uri, QRText: payURI, Memo: in.Memo, Transaction: encoded}, nil
}

// resolvePayer picks the paying wallet, falling back to the configured
// placeholder. The all-zero key (system program id) cannot pay fees.
func (g *SolanaGateway) resolvePayer(from string) (string, error) {
	if from = strings.TrimSpace(from); from != "" {
		key, err := solana.PublicKeyFromBase58(from)
		if err != nil {
			return "", configErr("from", "invalid Solana wallet: %v", err)
		}
		if key.IsZero() {
			return "", configErr("from", "wallet cannot be the zero key")
		}
		return from, nil
	}

	placeholder := strings.TrimSpace(g.opts.FeePayer)
	if placeholder == "" {
		return "", configErr("solana_fee_payer", "no wallet given and no placeholder fee payer configured")
	}
	key, err := solana.PublicKeyFromBase58(placeholder)
	if err != nil {
		return "", configErr("solana_fee_payer", "invalid placeholder fee payer: %v", err)
	}
	if key.IsZero() {
		return "", configErr("solana_fee_payer", "placeholder fee payer cannot be the zero key")
	}
	return placeholder, nil
}

func (g *SolanaGateway) FindIncoming(ctx context.Context, in FindIncomingInput) (*FindIncomingResult, error) {
	if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(in.To)); err != nil {
		return nil, configErr("to", "invalid Solana address: %v", err)
	}
	return g.finder.Find(ctx, in), nil
}

func (g *SolanaGateway) ExplorerTxURL(txHash string) string {
	base := "https://explorer.solana.com/tx/" + txHash
	if isSolanaMainnet(g.opts.Cluster) {
		return base
	}
	return base + "?cluster=" + g.opts.Cluster
}

// BlockchainID is the CAIP-2 identifier announced by the Blink endpoints.
func (g *SolanaGateway) BlockchainID() string {
	if isSolanaMainnet(g.opts.Cluster) {
		return "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	}
	return "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
}

func isSolanaMainnet(cluster string) bool {
	return cluster == "mainnet" || cluster == "mainnet-beta"
}

// BuildSolanaTransfer assembles the unsigned legacy transaction a wallet
// signs to pay an order.
func BuildSolanaTransfer(payer, to, lamports, memo, blockhash string) (*solana.Transaction, error) {
	payerKey, err := solana.PublicKeyFromBase58(payer)
	if err != nil {
		return nil, configErr("from", "invalid fee payer: %v", err)
	}
	if payerKey.IsZero() {
		return nil, configErr("from", "fee payer cannot be the zero key")
	}
	toKey, err := solana.PublicKeyFromBase58(strings.TrimSpace(to))
	if err != nil {
		return nil, configErr("to", "invalid Solana address: %v", err)
	}
	amount, err := money.ParseUnits(lamports)
	if err != nil || !amount.IsUint64() {
		return nil, configErr("amountNano", "must be an integer string within u64, got %q", lamports)
	}
	hash, err := solana.HashFromBase58(blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(computeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(computeUnitPrice).Build(),
		system.NewTransferInstruction(amount.Uint64(), payerKey, toKey).Build(),
	}
	if memo != "" {
		instructions = append(instructions, solana.NewInstruction(
			solana.MemoProgramID,
			solana.AccountMetaSlice{},
			[]byte(memo),
		))
	}

	tx, err := solana.NewTransaction(instructions, hash, solana.TransactionPayer(payerKey))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// EncodeUnsignedTransaction serializes tx with zeroed signature slots, the
// form wallets expect from a Blink.
func EncodeUnsignedTransaction(tx *solana.Transaction) (string, error) {
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// SolanaPayURI formats solana:<recipient>?amount=<SOL>&reference=&label=&message=.
func SolanaPayURI(to, lamports, reference, label, message string) (string, error) {
	if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(to)); err != nil {
		return "", configErr("to", "invalid Solana address: %v", err)
	}
	sol, err := money.FromSmallestUnit(lamports, money.SolanaDecimals)
	if err != nil {
		return "", configErr("amountNano", "%v", err)
	}

	params := []string{"amount=" + sol}
	if reference != "" {
		params = append(params, "reference="+uriComponent(reference))
	}
	if label != "" {
		params = append(params, "label="+uriComponent(label))
	}
	if message != "" {
		params = append(params, "message="+uriComponent(message))
	}
	return "solana:" + strings.TrimSpace(to) + "?" + strings.Join(params, "&"), nil
}

func uriComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
