package reconcile

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/chain"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu     sync.Mutex
	orders map[int64]storage.Order
	writes int
}

func (f *fakeStore) GetOrder(_ context.Context, id int64) (*storage.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (f *fakeStore) MarkOrderPaid(_ context.Context, id int64, upd storage.PaidUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status == storage.StatusPaid || o.Status == storage.StatusFailed {
		return false, nil
	}
	tx, receipt, from, at := upd.Tx, upd.ReceiptURL, upd.From, upd.ConfirmedAt
	o.Status = storage.StatusPaid
	o.Tx, o.ReceiptURL, o.FromAddress, o.ConfirmedAt = &tx, &receipt, &from, &at
	f.orders[id] = o
	f.writes++
	return true, nil
}

type fakeGateway struct {
	hit    *chain.FindIncomingResult
	err    error
	calls  int
	mu     sync.Mutex
	onFind func()
	last   chain.FindIncomingInput
}

func (g *fakeGateway) Chain() chain.Chain { return chain.TON }

func (g *fakeGateway) MakePaymentIntent(context.Context, chain.PaymentIntentInput) (*chain.PaymentIntent, error) {
	return nil, errors.New("not used")
}

func (g *fakeGateway) FindIncoming(_ context.Context, in chain.FindIncomingInput) (*chain.FindIncomingResult, error) {
	g.mu.Lock()
	g.calls++
	g.last = in
	g.mu.Unlock()
	if g.onFind != nil {
		g.onFind()
	}
	return g.hit, g.err
}

func (g *fakeGateway) ExplorerTxURL(tx string) string {
	return "https://testnet.tonviewer.com/transaction/" + tx
}

func payingOrder(id int64, to string) storage.Order {
	memo := "order-42"
	o := storage.Order{
		ID:         id,
		Chain:      "ton",
		AmountNano: decimal.RequireFromString("20000000"),
		Memo:       &memo,
		Status:     storage.StatusPaying,
	}
	if to != "" {
		o.ToAddress = &to
	}
	return o
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestReconciler(store OrderStore, gw chain.Gateway) *Reconciler {
	return newMeteredReconciler(store, gw, nil)
}

func newMeteredReconciler(store OrderStore, gw chain.Gateway, m *metrics.Metrics) *Reconciler {
	return New(store, chain.NewRegistry(gw), Options{
		Logger:  quietLogger(),
		Metrics: m,
		Now:     func() time.Time { return testNow },
	})
}

func TestConfirmIsIdempotent(t *testing.T) {
	store := &fakeStore{orders: map[int64]storage.Order{42: payingOrder(42, "EQrecipient")}}
	gw := &fakeGateway{hit: &chain.FindIncomingResult{TxHash: "abc", From: "EQsender"}}
	r := newTestReconciler(store, gw)

	first, err := r.Confirm(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, first.OK)
	assert.False(t, first.Already)
	assert.Equal(t, "abc", first.Tx)
	assert.Equal(t, "https://testnet.tonviewer.com/transaction/abc", first.ReceiptURL)

	assert.Equal(t, "EQrecipient", gw.last.To)
	assert.Equal(t, "20000000", gw.last.AmountNano)
	assert.Equal(t, "order-42", gw.last.Memo)

	second, err := r.Confirm(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.True(t, second.Already)
	assert.Equal(t, first.Tx, second.Tx)
	assert.Equal(t, first.ReceiptURL, second.ReceiptURL)

	assert.Equal(t, 1, gw.calls, "a paid order never queries the chain again")
	assert.Equal(t, 1, store.writes)
	assert.True(t, testNow.Equal(*store.orders[42].ConfirmedAt))
}

func TestConfirmNotFoundYetWritesNothing(t *testing.T) {
	store := &fakeStore{orders: map[int64]storage.Order{42: payingOrder(42, "EQrecipient")}}
	r := newTestReconciler(store, &fakeGateway{})

	res, err := r.Confirm(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonNotFoundYet, res.Reason)
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, storage.StatusPaying, store.orders[42].Status)
}

func TestConfirmDomainErrors(t *testing.T) {
	store := &fakeStore{orders: map[int64]storage.Order{
		1: payingOrder(1, ""),
		2: func() storage.Order { o := payingOrder(2, "x"); o.Chain = "eth"; return o }(),
	}}
	r := newTestReconciler(store, &fakeGateway{})

	_, err := r.Confirm(context.Background(), 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = r.Confirm(context.Background(), 1)
	assert.ErrorIs(t, err, ErrToAddressMissing)

	_, err = r.Confirm(context.Background(), 2)
	assert.ErrorIs(t, err, chain.ErrUnsupportedChain)
}

func TestConfirmPropagatesConfigurationError(t *testing.T) {
	store := &fakeStore{orders: map[int64]storage.Order{42: payingOrder(42, "bad")}}
	gw := &fakeGateway{err: &chain.ConfigurationError{Field: "to", Reason: "invalid address"}}

	_, err := newTestReconciler(store, gw).Confirm(context.Background(), 42)
	var cfgErr *chain.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 0, store.writes)
}

func TestConcurrentConfirmWritesOnce(t *testing.T) {
	store := &fakeStore{orders: map[int64]storage.Order{42: payingOrder(42, "EQrecipient")}}

	// Hold both callers inside FindIncoming until each has read the order
	// as paying.
	var arrived sync.WaitGroup
	arrived.Add(2)
	gw := &fakeGateway{
		hit:    &chain.FindIncomingResult{TxHash: "abc"},
		onFind: func() { arrived.Done(); arrived.Wait() },
	}
	r := newTestReconciler(store, gw)

	results := make([]*Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Confirm(context.Background(), 42)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].OK)
		assert.Equal(t, "abc", results[i].Tx)
	}
	assert.Equal(t, 2, gw.calls)
	assert.Equal(t, 1, store.writes)
}

func TestConfirmAgainstStorage(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := storage.New(db, quietLogger())
	require.NoError(t, s.Migrate())

	order, err := s.CreateOrder(context.Background(), storage.NewOrder{
		SKU: "vip-pass", Chain: "TON", ToAddress: "EQrecipient", AmountNano: decimal.NewFromInt(20000000),
	}, nil)
	require.NoError(t, err)

	gw := &fakeGateway{hit: &chain.FindIncomingResult{TxHash: "abc", From: "EQsender"}}
	r := newTestReconciler(s, gw)

	res, err := r.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "order-1", gw.last.Memo)

	stored, err := s.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPaid, stored.Status)
	assert.Equal(t, "EQsender", *stored.FromAddress)

	res, err = r.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, res.Already)
	assert.Equal(t, "abc", res.Tx)
}

func TestConfirmFailedOrderSkipsChain(t *testing.T) {
	failed := payingOrder(42, "EQrecipient")
	failed.Status = storage.StatusFailed
	store := &fakeStore{orders: map[int64]storage.Order{42: failed}}
	gw := &fakeGateway{hit: &chain.FindIncomingResult{TxHash: "abc"}}
	m := metrics.New(prometheus.NewRegistry())
	r := newMeteredReconciler(store, gw, m)

	_, err := r.Confirm(context.Background(), 42)
	assert.ErrorIs(t, err, ErrOrderFailed)
	assert.Zero(t, gw.calls)
	assert.Zero(t, store.writes)
	assert.Equal(t, storage.StatusFailed, store.orders[42].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmOutcomes.WithLabelValues("TON", "failed")))
}

func TestConfirmOrderFailedWhileSearching(t *testing.T) {
	store := &fakeStore{orders: map[int64]storage.Order{42: payingOrder(42, "EQrecipient")}}
	gw := &fakeGateway{hit: &chain.FindIncomingResult{TxHash: "abc"}}
	gw.onFind = func() {
		store.mu.Lock()
		o := store.orders[42]
		o.Status = storage.StatusFailed
		store.orders[42] = o
		store.mu.Unlock()
	}
	r := newTestReconciler(store, gw)

	_, err := r.Confirm(context.Background(), 42)
	assert.ErrorIs(t, err, ErrOrderFailed)
	assert.Zero(t, store.writes)
}

func TestConfirmMetricsUseCanonicalChain(t *testing.T) {
	store := &fakeStore{orders: map[int64]storage.Order{
		42: payingOrder(42, "EQrecipient"),
		43: payingOrder(43, "EQrecipient"),
	}}
	gw := &fakeGateway{hit: &chain.FindIncomingResult{TxHash: "abc"}}
	m := metrics.New(prometheus.NewRegistry())
	r := newMeteredReconciler(store, gw, m)

	_, err := r.Confirm(context.Background(), 42)
	require.NoError(t, err)
	_, err = r.Confirm(context.Background(), 42)
	require.NoError(t, err)

	gw.hit = nil
	_, err = r.Confirm(context.Background(), 43)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmOutcomes.WithLabelValues("TON", "paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmOutcomes.WithLabelValues("TON", "already")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmOutcomes.WithLabelValues("TON", "not_found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConfirmOutcomes.WithLabelValues("ton", "paid")))
}

func TestChainLabel(t *testing.T) {
	assert.Equal(t, "TON", chainLabel("ton"))
	assert.Equal(t, "SOL", chainLabel(" solana "))
	assert.Equal(t, "unknown", chainLabel("btc"))
}
