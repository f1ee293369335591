package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"app/internal/domain/model"
	"app/internal/events"
	"app/internal/idempotency"
	"app/internal/jobqueue"
	repo "app/internal/repository"
	"app/internal/usecase"

	"github.com/sirupsen/logrus"
)

// =====================
// インメモリのTxRepos一式。
// WithinTxはエラー時にスナップショットへ巻き戻すので、
// トランザクションのall-or-nothingをそのまま検証できる。
// =====================

type invKey struct {
	storeID   int64
	productID int64
}

type fakeState struct {
	nextOrderID int64
	orders      map[int64]model.Order
	orderItems  map[int64][]model.OrderItem
	stocks      map[invKey]int64
	journal     []model.StockJournal
	products    map[int64]model.Product
	vouchers    map[int64]model.Voucher

	orderCreateCalls int
	// テストから注入する注文作成エラー（先頭から1回ずつ消費）
	orderCreateErrs []error
}

func newFakeState() *fakeState {
	return &fakeState{
		nextOrderID: 1,
		orders:      make(map[int64]model.Order),
		orderItems:  make(map[int64][]model.OrderItem),
		stocks:      make(map[invKey]int64),
		journal:     make([]model.StockJournal, 0),
		products:    make(map[int64]model.Product),
		vouchers:    make(map[int64]model.Voucher),
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	c.nextOrderID = s.nextOrderID
	c.orderCreateCalls = s.orderCreateCalls
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		items := make([]model.OrderItem, len(v))
		copy(items, v)
		c.orderItems[k] = items
	}
	for k, v := range s.stocks {
		c.stocks[k] = v
	}
	c.journal = make([]model.StockJournal, len(s.journal))
	copy(c.journal, s.journal)
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	c.orderCreateErrs = make([]error, len(s.orderCreateErrs))
	copy(c.orderCreateErrs, s.orderCreateErrs)
	return c
}

type fakeTxManager struct {
	mu    sync.Mutex
	state *fakeState
}

func newFakeTxManager() *fakeTxManager {
	return &fakeTxManager{state: newFakeState()}
}

func (m *fakeTxManager) WithinTx(_ context.Context, fn func(r repo.TxRepos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&fakeTxRepos{state: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

type fakeTxRepos struct {
	state *fakeState
}

func (r *fakeTxRepos) Orders() repo.OrderRepository         { return &fakeOrderRepo{state: r.state} }
func (r *fakeTxRepos) OrderItems() repo.OrderItemRepository { return &fakeOrderItemRepo{state: r.state} }
func (r *fakeTxRepos) Inventory() repo.InventoryRepository  { return &fakeInventoryRepo{state: r.state} }
func (r *fakeTxRepos) Products() repo.ProductRepository     { return &fakeProductRepo{state: r.state} }
func (r *fakeTxRepos) Vouchers() repo.VoucherRepository     { return &fakeVoucherRepo{state: r.state} }

// =====================
// Orders
// =====================

type fakeOrderRepo struct {
	state *fakeState
}

func (f *fakeOrderRepo) FindByID(_ context.Context, orderID int64) (model.Order, error) {
	o, ok := f.state.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderRepo) ListByUserID(_ context.Context, userID int64, _ int, _ int) ([]model.Order, int64, error) {
	out := make([]model.Order, 0)
	for _, o := range f.state.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeOrderRepo) Create(_ context.Context, order model.Order) (int64, error) {
	f.state.orderCreateCalls++

	if len(f.state.orderCreateErrs) > 0 {
		err := f.state.orderCreateErrs[0]
		f.state.orderCreateErrs = f.state.orderCreateErrs[1:]
		if err != nil {
			return 0, err
		}
	}

	//uniqueIndexの再現
	if order.IdempotencyKey != nil {
		for _, o := range f.state.orders {
			if o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return 0, repo.ErrDuplicateKey
			}
		}
	}

	id := f.state.nextOrderID
	f.state.nextOrderID++
	order.ID = id
	f.state.orders[id] = order
	return id, nil
}

func (f *fakeOrderRepo) UpdateStatusFrom(_ context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error) {
	o, ok := f.state.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	f.state.orders[orderID] = o
	return true, nil
}

func (f *fakeOrderRepo) FindByIdempotencyKey(_ context.Context, userID int64, key string) (model.Order, bool, error) {
	for _, o := range f.state.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (f *fakeOrderRepo) ListAdmin(_ context.Context, filter repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	out := make([]model.Order, 0)
	for _, o := range f.state.orders {
		if filter.Status != "" && string(o.Status) != filter.Status {
			continue
		}
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

// =====================
// OrderItems
// =====================

type fakeOrderItemRepo struct {
	state *fakeState
}

func (f *fakeOrderItemRepo) CreateBulk(_ context.Context, orderID int64, items []model.OrderItem) error {
	stored := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		it.OrderID = orderID
		stored = append(stored, it)
	}
	f.state.orderItems[orderID] = stored
	return nil
}

func (f *fakeOrderItemRepo) ListByOrderID(_ context.Context, orderID int64) ([]model.OrderItem, error) {
	return f.state.orderItems[orderID], nil
}

// =====================
// Inventory
// =====================

type fakeInventoryRepo struct {
	state *fakeState
}

func (f *fakeInventoryRepo) FindStock(_ context.Context, storeID int64, productID int64) (int64, bool, error) {
	stock, ok := f.state.stocks[invKey{storeID, productID}]
	return stock, ok, nil
}

func (f *fakeInventoryRepo) DecreaseStockIfEnough(_ context.Context, storeID int64, productID int64, qty int64) (bool, error) {
	k := invKey{storeID, productID}
	stock, ok := f.state.stocks[k]
	if !ok || stock < qty {
		return false, nil
	}
	f.state.stocks[k] = stock - qty
	return true, nil
}

func (f *fakeInventoryRepo) IncreaseStock(_ context.Context, storeID int64, productID int64, qty int64) error {
	k := invKey{storeID, productID}
	f.state.stocks[k] += qty
	return nil
}

func (f *fakeInventoryRepo) AppendJournal(_ context.Context, entry model.StockJournal) error {
	entry.ID = int64(len(f.state.journal) + 1)
	entry.CreatedAt = time.Now()
	f.state.journal = append(f.state.journal, entry)
	return nil
}

// =====================
// Products / Vouchers
// =====================

type fakeProductRepo struct {
	state *fakeState
}

func (f *fakeProductRepo) FindByID(_ context.Context, productID int64) (model.Product, error) {
	p, ok := f.state.products[productID]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

type fakeVoucherRepo struct {
	state *fakeState
}

func (f *fakeVoucherRepo) FindByCode(_ context.Context, code string) (model.Voucher, error) {
	for _, v := range f.state.vouchers {
		if v.Code == code {
			return v, nil
		}
	}
	return model.Voucher{}, repo.ErrNotFound
}

func (f *fakeVoucherRepo) MarkUsedIfUnused(_ context.Context, voucherID int64, usedAt time.Time) (bool, error) {
	v, ok := f.state.vouchers[voucherID]
	if !ok || v.IsUsed {
		return false, nil
	}
	v.IsUsed = true
	v.UsedAt = &usedAt
	f.state.vouchers[voucherID] = v
	return true, nil
}

func (f *fakeVoucherRepo) ReactivateUsedWithin(_ context.Context, userID int64, center time.Time, window time.Duration) (int64, error) {
	var n int64
	for id, v := range f.state.vouchers {
		if !v.IsUsed || v.UsedAt == nil {
			continue
		}
		if v.UserID != nil && *v.UserID != userID {
			continue
		}
		if v.UsedAt.Before(center.Add(-window)) || v.UsedAt.After(center.Add(window)) {
			continue
		}
		v.IsUsed = false
		v.UsedAt = nil
		f.state.vouchers[id] = v
		n++
	}
	return n, nil
}

// =====================
// その他の部品
// =====================

// 常に同じ店舗を返すリゾルバ
type fixedResolver struct {
	storeID int64
	err     error
}

func (r fixedResolver) Resolve(context.Context, int64, usecase.ResolveStoreInput) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.storeID, nil
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// =====================
// Fixture
// =====================

type fixture struct {
	tx       *fakeTxManager
	queue    *jobqueue.MemoryQueue
	checkout *usecase.CheckoutUsecase
	fulfill  *usecase.FulfillmentUsecase
}

const (
	testStoreID          = int64(1)
	testPaymentDeadline  = time.Hour
	testAutoConfirmAfter = 7 * 24 * time.Hour
)

func newFixture() *fixture {
	tx := newFakeTxManager()
	queue := jobqueue.NewMemoryQueue()
	scheduler := jobqueue.NewScheduler(queue)
	registry := idempotency.New(time.Hour)
	ledger := usecase.NewStockLedger()
	log := newTestLogger()
	pub := events.NoopPublisher{}

	return &fixture{
		tx:    tx,
		queue: queue,
		checkout: usecase.NewCheckoutUsecase(
			tx, registry, fixedResolver{storeID: testStoreID}, ledger, scheduler, pub, log, testPaymentDeadline),
		fulfill: usecase.NewFulfillmentUsecase(
			tx, ledger, scheduler, pub, log, testAutoConfirmAfter),
	}
}

func (f *fixture) addProduct(id int64, name string, price int64, stock int64) {
	f.tx.state.products[id] = model.Product{ID: id, Name: name, Price: price, IsActive: true}
	f.tx.state.stocks[invKey{testStoreID, id}] = stock
}

func (f *fixture) stock(productID int64) int64 {
	return f.tx.state.stocks[invKey{testStoreID, productID}]
}

func (f *fixture) order(orderID int64) model.Order {
	return f.tx.state.orders[orderID]
}

func (f *fixture) journalFor(productID int64) []model.StockJournal {
	out := make([]model.StockJournal, 0)
	for _, e := range f.tx.state.journal {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out
}
