package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
)

func TestTonGatewayPaymentIntent(t *testing.T) {
	g := NewTonGateway(newTestTonFinder(nil, nil), false)
	to := tonRecipient()

	intent, err := g.MakePaymentIntent(context.Background(), PaymentIntentInput{
		To: to, AmountNano: "20000000", Memo: "order 42",
	})
	require.NoError(t, err)
	assert.Equal(t, "ton://transfer/"+to+"?amount=20000000&text=order+42", intent.URI)
	assert.Equal(t, intent.URI, intent.QRText)
	assert.Equal(t, "order 42", intent.Memo)

	intent, err = g.MakePaymentIntent(context.Background(), PaymentIntentInput{To: to, AmountNano: "5"})
	require.NoError(t, err)
	assert.Equal(t, "ton://transfer/"+to+"?amount=5", intent.URI)
}

func TestTonGatewayPaymentIntentRejects(t *testing.T) {
	g := NewTonGateway(newTestTonFinder(nil, nil), false)

	tests := []struct {
		name  string
		in    PaymentIntentInput
		field string
	}{
		{"missing recipient", PaymentIntentInput{AmountNano: "1"}, "to"},
		{"bad recipient", PaymentIntentInput{To: "not-an-address", AmountNano: "1"}, "to"},
		{"decimal amount", PaymentIntentInput{To: tonRecipient(), AmountNano: "0.02"}, "amountNano"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.MakePaymentIntent(context.Background(), tt.in)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestTonGatewayExplorer(t *testing.T) {
	assert.Equal(t, "https://testnet.tonviewer.com/transaction/abc", NewTonGateway(nil, false).ExplorerTxURL("abc"))
	assert.Equal(t, "https://tonviewer.com/transaction/abc", NewTonGateway(nil, true).ExplorerTxURL("abc"))
}

func TestTonGatewayFindIncomingNotFoundIsNotError(t *testing.T) {
	g := NewTonGateway(newTestTonFinder(&fakeTonSource{}, &fakeTonSource{}), false)

	hit, err := g.FindIncoming(context.Background(), FindIncomingInput{
		To: tonRecipient(), AmountNano: "1", Memo: "order-1",
	})
	assert.NoError(t, err)
	assert.Nil(t, hit)

	_, err = g.FindIncoming(context.Background(), FindIncomingInput{To: "garbage", AmountNano: "1"})
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

// fakeLiteAPI serves history (oldest first) the way liteservers do: a page
// ends at the requested lt and holds at most 16 transactions.
type fakeLiteAPI struct {
	account *tlb.Account
	history []*tlb.Transaction
	listErr error
	pages   []uint32
}

func (f *fakeLiteAPI) CurrentMasterchainInfo(context.Context) (*ton.BlockIDExt, error) {
	return &ton.BlockIDExt{}, nil
}

func (f *fakeLiteAPI) GetAccount(context.Context, *ton.BlockIDExt, *address.Address) (*tlb.Account, error) {
	return f.account, nil
}

func (f *fakeLiteAPI) ListTransactions(_ context.Context, _ *address.Address, num uint32, lt uint64, _ []byte) ([]*tlb.Transaction, error) {
	f.pages = append(f.pages, num)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if num > 16 {
		return nil, errors.New("liteserver: too many transactions requested")
	}
	for i, tx := range f.history {
		if tx.LT == lt {
			from := i + 1 - int(num)
			if from < 0 {
				from = 0
			}
			return f.history[from : i+1], nil
		}
	}
	return nil, ton.ErrNoTransactionsWereFound
}

// linkedHistory builds n transactions with LT 1..n, each pointing at its
// predecessor.
func linkedHistory(n int) []*tlb.Transaction {
	out := make([]*tlb.Transaction, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &tlb.Transaction{
			Hash:       []byte{byte(i)},
			LT:         uint64(i),
			Now:        uint32(1000 + i),
			PrevTxLT:   uint64(i - 1),
			PrevTxHash: []byte{byte(i - 1)},
		})
	}
	return out
}

func TestTonRPCReturnsNewestFirst(t *testing.T) {
	api := &fakeLiteAPI{
		account: &tlb.Account{IsActive: true, LastTxLT: 2, LastTxHash: []byte{2}},
		history: linkedHistory(2),
	}

	txs, err := NewTonRPC(api, nil).Transactions(context.Background(), tonRecipient(), 40)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, hex.EncodeToString([]byte{0x02}), txs[0].Hash)
	assert.Equal(t, uint64(2), txs[0].LT)
	assert.Equal(t, uint64(1), txs[1].LT)
	assert.Equal(t, "", txs[0].Value, "no inbound message means no value")
}

func TestTonRPCPagesWithinLiteserverLimit(t *testing.T) {
	api := &fakeLiteAPI{
		account: &tlb.Account{IsActive: true, LastTxLT: 50, LastTxHash: []byte{50}},
		history: linkedHistory(50),
	}

	txs, err := NewTonRPC(api, nil).Transactions(context.Background(), tonRecipient(), 40)
	require.NoError(t, err)
	require.Len(t, txs, 40)
	assert.Equal(t, []uint32{15, 15, 10}, api.pages)
	for i, tx := range txs {
		assert.Equal(t, uint64(50-i), tx.LT)
	}
}

func TestTonRPCStopsAtStartOfHistory(t *testing.T) {
	api := &fakeLiteAPI{
		account: &tlb.Account{IsActive: true, LastTxLT: 20, LastTxHash: []byte{20}},
		history: linkedHistory(20),
	}

	txs, err := NewTonRPC(api, nil).Transactions(context.Background(), tonRecipient(), 40)
	require.NoError(t, err)
	require.Len(t, txs, 20)
	assert.Equal(t, []uint32{15, 15}, api.pages)
	assert.Equal(t, uint64(1), txs[19].LT)
}

func TestTonRPCEmptyHistory(t *testing.T) {
	api := &fakeLiteAPI{account: &tlb.Account{}}
	txs, err := NewTonRPC(api, nil).Transactions(context.Background(), tonRecipient(), 40)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Empty(t, api.pages)

	api = &fakeLiteAPI{account: &tlb.Account{LastTxLT: 3}, listErr: ton.ErrNoTransactionsWereFound}
	txs, err = NewTonRPC(api, nil).Transactions(context.Background(), tonRecipient(), 40)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTonRawAddressAccepted(t *testing.T) {
	raw := "0:" + strings.Repeat("0", 64)
	friendly := tonRecipient()

	g := NewTonGateway(newTestTonFinder(&fakeTonSource{}, &fakeTonSource{}), false)
	intent, err := g.MakePaymentIntent(context.Background(), PaymentIntentInput{To: raw, AmountNano: "5"})
	require.NoError(t, err)
	assert.Equal(t, "ton://transfer/"+friendly+"?amount=5", intent.URI)

	hit, err := g.FindIncoming(context.Background(), FindIncomingInput{To: raw, AmountNano: "1"})
	assert.NoError(t, err)
	assert.Nil(t, hit)

	api := &fakeLiteAPI{account: &tlb.Account{}}
	_, err = NewTonRPC(api, nil).Transactions(context.Background(), raw, 40)
	assert.NoError(t, err)

	assert.True(t, sameTonAddress(raw, friendly))
}
