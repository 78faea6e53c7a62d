package trading

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalyard/metalyard/internal/ledger"
	"github.com/metalyard/metalyard/internal/observability"
	"github.com/metalyard/metalyard/internal/shared"
)

// fakeState is the repository's world. WithTx works on a clone and swaps it
// in only when fn succeeds, so row writes and ledger appends commit or roll
// back together just like the real transaction.
type fakeState struct {
	purchases      map[int64]Purchase
	sales          map[int64]Sale
	movements      []ledger.Movement
	nextPurchaseID int64
	nextSaleID     int64
	nextMovementID int64
}

func newFakeState() *fakeState {
	return &fakeState{
		purchases: map[int64]Purchase{},
		sales:     map[int64]Sale{},
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	for id, p := range s.purchases {
		c.purchases[id] = p
	}
	for id, sale := range s.sales {
		c.sales[id] = sale
	}
	c.movements = append(c.movements, s.movements...)
	c.nextPurchaseID = s.nextPurchaseID
	c.nextSaleID = s.nextSaleID
	c.nextMovementID = s.nextMovementID
	return c
}

type fakeRepo struct {
	state      *fakeState
	failAppend bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{state: newFakeState()}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	work := r.state.clone()
	tx := &fakeTx{state: work, failAppend: r.failAppend}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *fakeRepo) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	p, ok := r.state.purchases[id]
	if !ok {
		return Purchase{}, ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	var out []Purchase
	for _, p := range r.state.purchases {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *fakeRepo) GetSale(ctx context.Context, id int64) (Sale, error) {
	s, ok := r.state.sales[id]
	if !ok {
		return Sale{}, ErrNotFound
	}
	return s, nil
}

func (r *fakeRepo) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var out []Sale
	for _, s := range r.state.sales {
		out = append(out, s)
	}
	return out, len(out), nil
}

type fakeTx struct {
	state      *fakeState
	failAppend bool
}

func (t *fakeTx) InsertPurchase(ctx context.Context, p Purchase) (int64, error) {
	t.state.nextPurchaseID++
	p.ID = t.state.nextPurchaseID
	t.state.purchases[p.ID] = p
	return p.ID, nil
}

func (t *fakeTx) UpdatePurchase(ctx context.Context, p Purchase) error {
	if _, ok := t.state.purchases[p.ID]; !ok {
		return ErrNotFound
	}
	t.state.purchases[p.ID] = p
	return nil
}

func (t *fakeTx) DeletePurchase(ctx context.Context, id int64) error {
	if _, ok := t.state.purchases[id]; !ok {
		return ErrNotFound
	}
	delete(t.state.purchases, id)
	return nil
}

func (t *fakeTx) InsertSale(ctx context.Context, s Sale) (int64, error) {
	t.state.nextSaleID++
	s.ID = t.state.nextSaleID
	t.state.sales[s.ID] = s
	return s.ID, nil
}

func (t *fakeTx) UpdateSale(ctx context.Context, s Sale) error {
	if _, ok := t.state.sales[s.ID]; !ok {
		return ErrNotFound
	}
	t.state.sales[s.ID] = s
	return nil
}

func (t *fakeTx) DeleteSale(ctx context.Context, id int64) error {
	if _, ok := t.state.sales[id]; !ok {
		return ErrNotFound
	}
	delete(t.state.sales, id)
	return nil
}

func (t *fakeTx) Ledger() ledger.TxStore {
	return &fakeTxLedger{tx: t}
}

type fakeTxLedger struct {
	tx *fakeTx
}

func (l *fakeTxLedger) Append(ctx context.Context, mv ledger.Movement) (int64, error) {
	if l.tx.failAppend {
		return 0, errors.New("append refused")
	}
	l.tx.state.nextMovementID++
	mv.ID = l.tx.state.nextMovementID
	l.tx.state.movements = append(l.tx.state.movements, mv)
	return mv.ID, nil
}

func (l *fakeTxLedger) LatestFor(ctx context.Context, materialID int64) (*ledger.Movement, error) {
	rows := l.tx.state.movements
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].MaterialID == materialID {
			mv := rows[i]
			return &mv, nil
		}
	}
	return nil, nil
}

func (l *fakeTxLedger) Get(ctx context.Context, id int64) (*ledger.Movement, error) {
	for _, mv := range l.tx.state.movements {
		if mv.ID == id {
			mv := mv
			return &mv, nil
		}
	}
	return nil, ledger.ErrMovementNotFound
}

func (l *fakeTxLedger) BySourcePurchase(ctx context.Context, purchaseID int64) (*ledger.Movement, error) {
	return l.bySource(func(mv ledger.Movement) bool {
		return mv.Kind == ledger.KindPurchase && mv.PurchaseID == purchaseID
	})
}

func (l *fakeTxLedger) BySourceSale(ctx context.Context, saleID int64) (*ledger.Movement, error) {
	return l.bySource(func(mv ledger.Movement) bool {
		return mv.Kind == ledger.KindSale && mv.SaleID == saleID
	})
}

func (l *fakeTxLedger) bySource(match func(ledger.Movement) bool) (*ledger.Movement, error) {
	rows := l.tx.state.movements
	for i := len(rows) - 1; i >= 0; i-- {
		if match(rows[i]) {
			mv := rows[i]
			return &mv, nil
		}
	}
	return nil, ledger.ErrMovementNotFound
}

type fakeIdempotency struct {
	claimed map[string]bool
	deleted []string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{claimed: map[string]bool{}}
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.claimed[key] {
		return shared.ErrIdempotencyConflict
	}
	f.claimed[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.claimed, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(repo *fakeRepo) *Service {
	engine := ledger.NewEngine(nil, ledger.Config{AllowNegativeBalance: true})
	return NewService(repo, engine, nil, nil, nil)
}

func purchaseInput() PurchaseInput {
	return PurchaseInput{
		MaterialID:   1,
		SupplierName: "Catador João",
		Quantity:     dec("100"),
		UnitPrice:    dec("5.50"),
	}
}

func saleInput() SaleInput {
	return SaleInput{
		MaterialID:   1,
		CustomerName: "Metalúrgica Aurora",
		Quantity:     dec("30"),
		UnitPrice:    dec("8.20"),
	}
}

func TestCreatePurchaseAppendsMovement(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	p, err := svc.CreatePurchase(context.Background(), purchaseInput())
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.True(t, p.TotalValue.Equal(dec("550")))

	require.Len(t, repo.state.movements, 1)
	mv := repo.state.movements[0]
	assert.Equal(t, ledger.KindPurchase, mv.Kind)
	assert.Equal(t, p.ID, mv.PurchaseID)
	assert.True(t, mv.QuantityDelta.Equal(dec("100")))
	assert.True(t, mv.BalanceAfter.Equal(dec("100")))
	assert.Equal(t, "purchase #1 from Catador João", mv.Note)
}

func TestCreatePurchaseRollsBackRowOnFailedAppend(t *testing.T) {
	repo := newFakeRepo()
	repo.failAppend = true
	idem := newFakeIdempotency()
	engine := ledger.NewEngine(nil, ledger.Config{AllowNegativeBalance: true})
	svc := NewService(repo, engine, nil, idem, nil)

	in := purchaseInput()
	in.IdempotencyKey = "8f14e45f-ceea-4e7b-9d5d-112358132134"
	_, err := svc.CreatePurchase(context.Background(), in)
	require.Error(t, err)

	assert.Empty(t, repo.state.purchases, "failed append must leave no purchase row")
	assert.Empty(t, repo.state.movements)
	assert.Contains(t, idem.deleted, in.IdempotencyKey, "failed save must release the claimed key")
}

func TestCreateRejectsInvalidQuantity(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	in := purchaseInput()
	in.Quantity = dec("0")
	_, err := svc.CreatePurchase(context.Background(), in)
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	sin := saleInput()
	sin.Quantity = dec("-3")
	_, err = svc.CreateSale(context.Background(), sin)
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	assert.Empty(t, repo.state.movements)
}

func TestSaleMayDriveBalanceNegative(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	sale, err := svc.CreateSale(context.Background(), saleInput())
	require.NoError(t, err)
	assert.Equal(t, PaymentPending, sale.PaymentStatus)

	require.Len(t, repo.state.movements, 1)
	assert.True(t, repo.state.movements[0].BalanceAfter.Equal(dec("-30")))
}

func TestDeleteSaleWritesReversal(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreatePurchase(ctx, purchaseInput())
	require.NoError(t, err)
	sale, err := svc.CreateSale(ctx, saleInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSale(ctx, sale.ID))

	_, err = svc.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, repo.state.movements, 3)
	rev := repo.state.movements[2]
	assert.Equal(t, ledger.KindAdjustment, rev.Kind)
	assert.True(t, rev.QuantityDelta.Equal(dec("30")))
	assert.True(t, rev.BalanceAfter.Equal(dec("100")))
	assert.Equal(t, "reversal of deleted sale #1", rev.Note)
}

func TestDeletePurchaseWritesReversal(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.CreatePurchase(ctx, purchaseInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeletePurchase(ctx, p.ID))

	require.Len(t, repo.state.movements, 2)
	rev := repo.state.movements[1]
	assert.Equal(t, ledger.KindAdjustment, rev.Kind)
	assert.True(t, rev.QuantityDelta.Equal(dec("-100")))
	assert.True(t, rev.BalanceAfter.IsZero())
}

func TestUpdateRejectsQuantityChange(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.CreatePurchase(ctx, purchaseInput())
	require.NoError(t, err)

	in := purchaseInput()
	in.Quantity = dec("120")
	_, err = svc.UpdatePurchase(ctx, p.ID, in)
	assert.ErrorIs(t, err, ErrQuantityImmutable)

	// Price edits go through and recompute the total.
	in.Quantity = p.Quantity
	in.UnitPrice = dec("6.00")
	updated, err := svc.UpdatePurchase(ctx, p.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.TotalValue.Equal(dec("600")))
	assert.Len(t, repo.state.movements, 1, "updates must not append movements")
}

func TestMovementCounterTracksCommittedSaves(t *testing.T) {
	repo := newFakeRepo()
	engine := ledger.NewEngine(nil, ledger.Config{AllowNegativeBalance: true})
	metrics := observability.NewMetrics()
	svc := NewService(repo, engine, nil, nil, metrics)
	ctx := context.Background()

	p, err := svc.CreatePurchase(ctx, purchaseInput())
	require.NoError(t, err)
	_, err = svc.CreateSale(ctx, saleInput())
	require.NoError(t, err)
	require.NoError(t, svc.DeletePurchase(ctx, p.ID))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, `metalyard_ledger_movements_total{kind="PURCHASE"} 1`)
	assert.Contains(t, body, `metalyard_ledger_movements_total{kind="SALE"} 1`)
	assert.Contains(t, body, `metalyard_ledger_movements_total{kind="ADJUSTMENT"} 1`)

	// A save whose append fails must not count a movement.
	failing := newFakeRepo()
	failing.failAppend = true
	failMetrics := observability.NewMetrics()
	fsvc := NewService(failing, engine, nil, nil, failMetrics)
	_, err = fsvc.CreatePurchase(ctx, purchaseInput())
	require.Error(t, err)

	rr = httptest.NewRecorder()
	failMetrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.NotContains(t, rr.Body.String(), "metalyard_ledger_movements_total{")
}

func TestIdempotencyKeyGuardsRetries(t *testing.T) {
	repo := newFakeRepo()
	idem := newFakeIdempotency()
	engine := ledger.NewEngine(nil, ledger.Config{AllowNegativeBalance: true})
	svc := NewService(repo, engine, nil, idem, nil)
	ctx := context.Background()

	in := purchaseInput()
	in.IdempotencyKey = "not-a-uuid"
	_, err := svc.CreatePurchase(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in.IdempotencyKey = "4a3c2b1a-0f9e-4d8c-b7a6-554433221100"
	_, err = svc.CreatePurchase(ctx, in)
	require.NoError(t, err)

	_, err = svc.CreatePurchase(ctx, in)
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, repo.state.purchases, 1)
}
