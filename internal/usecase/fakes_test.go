package usecase_test

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =====================
// in-memory store
// =====================

type memState struct {
	users         map[int64]model.User
	products      map[int64]model.Product
	orders        map[int64]model.Order
	orderItems    map[int64][]model.OrderItem
	discounts     map[int64]model.DiscountCode
	notifications map[int64]model.Notification
	auditLogs     []model.AuditLog
	nextID        int64
}

func (s memState) clone() memState {
	c := s
	c.users = maps.Clone(s.users)
	c.products = maps.Clone(s.products)
	c.orders = maps.Clone(s.orders)
	c.orderItems = make(map[int64][]model.OrderItem, len(s.orderItems))
	for k, v := range s.orderItems {
		c.orderItems[k] = slices.Clone(v)
	}
	c.discounts = maps.Clone(s.discounts)
	c.notifications = maps.Clone(s.notifications)
	c.auditLogs = slices.Clone(s.auditLogs)
	return c
}

// memDB serializes transactions and rolls back by restoring a snapshot.
type memDB struct {
	mu sync.Mutex
	st memState
}

func newMemDB() *memDB {
	return &memDB{st: memState{
		users:         map[int64]model.User{},
		products:      map[int64]model.Product{},
		orders:        map[int64]model.Order{},
		orderItems:    map[int64][]model.OrderItem{},
		discounts:     map[int64]model.DiscountCode{},
		notifications: map[int64]model.Notification{},
		nextID:        1000,
	}}
}

func (db *memDB) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	snapshot := db.st.clone()
	if err := fn(&memRepos{st: &db.st}); err != nil {
		db.st = snapshot
		return err
	}
	return nil
}

func (db *memDB) view(fn func(st *memState)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	fn(&db.st)
}

func (db *memDB) addUser(u model.User) {
	db.view(func(st *memState) { st.users[u.ID] = u })
}

func (db *memDB) addProduct(p model.Product) {
	db.view(func(st *memState) { st.products[p.ID] = p })
}

func (db *memDB) setPrice(id int64, price string) {
	db.view(func(st *memState) {
		p := st.products[id]
		p.Price = decimal.RequireFromString(price)
		st.products[id] = p
	})
}

func (db *memDB) addDiscount(d model.DiscountCode) {
	db.view(func(st *memState) { st.discounts[d.ID] = d })
}

func (db *memDB) orders() []model.Order {
	var out []model.Order
	db.view(func(st *memState) {
		for _, o := range st.orders {
			out = append(out, o)
		}
	})
	slices.SortFunc(out, func(a, b model.Order) int { return int(a.ID - b.ID) })
	return out
}

func (db *memDB) order(id int64) model.Order {
	var o model.Order
	db.view(func(st *memState) { o = st.orders[id] })
	return o
}

func (db *memDB) items(orderID int64) []model.OrderItem {
	var out []model.OrderItem
	db.view(func(st *memState) { out = slices.Clone(st.orderItems[orderID]) })
	return out
}

func (db *memDB) discount(id int64) model.DiscountCode {
	var d model.DiscountCode
	db.view(func(st *memState) { d = st.discounts[id] })
	return d
}

func (db *memDB) notificationsFor(userID int64) []model.Notification {
	var out []model.Notification
	db.view(func(st *memState) {
		for _, n := range st.notifications {
			if n.UserID == userID {
				out = append(out, n)
			}
		}
	})
	slices.SortFunc(out, func(a, b model.Notification) int { return int(a.ID - b.ID) })
	return out
}

func (db *memDB) audits() []model.AuditLog {
	var out []model.AuditLog
	db.view(func(st *memState) { out = slices.Clone(st.auditLogs) })
	return out
}

// memProducts is the catalog outside a transaction.
type memProducts struct{ db *memDB }

func (p memProducts) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var out []model.Product
	var err error
	p.db.view(func(st *memState) {
		out, _, err = (&memRepos{st: st}).ListPublic(ctx, q)
	})
	return out, int64(len(out)), err
}

func (p memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var out model.Product
	var err error
	p.db.view(func(st *memState) { out, err = (&memRepos{st: st}).FindByID(ctx, id) })
	return out, err
}

func (p memProducts) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	var out []model.Product
	var err error
	p.db.view(func(st *memState) { out, err = (&memRepos{st: st}).FindByIDs(ctx, ids) })
	return out, err
}

// =====================
// repositories bound to a tx
// =====================

type memRepos struct{ st *memState }

type (
	memUsers         struct{ *memRepos }
	memOrders        struct{ *memRepos }
	memOrderItems    struct{ *memRepos }
	memDiscounts     struct{ *memRepos }
	memNotifications struct{ *memRepos }
	memAuditLogs     struct{ *memRepos }
)

func (r *memRepos) Users() repo.UserRepository                 { return memUsers{r} }
func (r *memRepos) Products() repo.ProductRepository           { return r }
func (r *memRepos) Orders() repo.OrderRepository               { return memOrders{r} }
func (r *memRepos) OrderItems() repo.OrderItemRepository       { return memOrderItems{r} }
func (r *memRepos) Discounts() repo.DiscountCodeRepository     { return memDiscounts{r} }
func (r *memRepos) Notifications() repo.NotificationRepository { return memNotifications{r} }
func (r *memRepos) AuditLogs() repo.AuditLogRepository         { return memAuditLogs{r} }

func (r *memRepos) id() int64 {
	r.st.nextID++
	return r.st.nextID
}

func (r *memRepos) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var out []model.Product
	for _, p := range r.st.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.Product) int { return int(a.ID - b.ID) })
	return out, int64(len(out)), nil
}

func (r *memRepos) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *memRepos) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	var out []model.Product
	for _, id := range ids {
		if p, ok := r.st.products[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memUsers) FindByID(ctx context.Context, id int64) (*model.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &u, nil
}

func (r memUsers) LockByID(ctx context.Context, id int64) error {
	if _, ok := r.st.users[id]; !ok {
		return repo.ErrNotFound
	}
	return nil
}

func (r memOrders) FindByID(ctx context.Context, id int64) (model.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrders) FindByIDForUpdate(ctx context.Context, id int64) (model.Order, error) {
	return r.FindByID(ctx, id)
}

func (r memOrders) ListByUserID(ctx context.Context, userID int64, page, limit int) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range r.st.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	slices.SortFunc(all, func(a, b model.Order) int { return int(b.ID - a.ID) })
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range r.st.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.IsPaid != nil && o.IsPaid != *f.IsPaid {
			continue
		}
		all = append(all, o)
	}
	slices.SortFunc(all, func(a, b model.Order) int { return int(b.ID - a.ID) })
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

func (r memOrders) Create(ctx context.Context, o *model.Order) error {
	for _, ex := range r.st.orders {
		if ex.OrderNumber == o.OrderNumber || (ex.UserID == o.UserID && ex.IdempotencyKey == o.IdempotencyKey) {
			return gorm.ErrDuplicatedKey
		}
	}
	o.ID = r.id()
	r.st.orders[o.ID] = *o
	return nil
}

func (r memOrders) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus, deliveredAt *time.Time) error {
	o, ok := r.st.orders[id]
	if !ok {
		return repo.ErrNotFound
	}
	o.Status = status
	if deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}
	r.st.orders[id] = o
	return nil
}

func (r memOrders) SetPaymentSession(ctx context.Context, id int64, sessionID string) error {
	o, ok := r.st.orders[id]
	if !ok {
		return repo.ErrNotFound
	}
	o.PaymentSessionID = sessionID
	r.st.orders[id] = o
	return nil
}

func (r memOrders) MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	o, ok := r.st.orders[id]
	if !ok || o.IsPaid {
		return false, nil
	}
	o.IsPaid = true
	o.PaidAt = &paidAt
	r.st.orders[id] = o
	return true, nil
}

func (r memOrders) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	for _, o := range r.st.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (r memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	for _, it := range items {
		it.ID = r.id()
		it.OrderID = orderID
		r.st.orderItems[orderID] = append(r.st.orderItems[orderID], it)
	}
	return nil
}

func (r memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return slices.Clone(r.st.orderItems[orderID]), nil
}

func (r memDiscounts) Create(ctx context.Context, d *model.DiscountCode) error {
	for _, ex := range r.st.discounts {
		if ex.Code == d.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	d.ID = r.id()
	r.st.discounts[d.ID] = *d
	return nil
}

func (r memDiscounts) FindByCodeForUpdate(ctx context.Context, code string) (model.DiscountCode, error) {
	for _, d := range r.st.discounts {
		if d.Code == code {
			return d, nil
		}
	}
	return model.DiscountCode{}, repo.ErrNotFound
}

func (r memDiscounts) FindActiveByUserID(ctx context.Context, userID int64, now time.Time) (model.DiscountCode, bool, error) {
	for _, d := range r.st.discounts {
		if d.UserID == userID && d.IsValidAt(now) {
			return d, true, nil
		}
	}
	return model.DiscountCode{}, false, nil
}

func (r memDiscounts) MarkUsed(ctx context.Context, id int64, orderID int64, usedAt time.Time) (bool, error) {
	d, ok := r.st.discounts[id]
	if !ok || d.IsUsed {
		return false, nil
	}
	d.IsUsed = true
	d.UsedAt = &usedAt
	d.OrderID = &orderID
	r.st.discounts[id] = d
	return true, nil
}

func (r memNotifications) Create(ctx context.Context, n *model.Notification) (bool, error) {
	for _, ex := range r.st.notifications {
		if ex.DedupeKey == n.DedupeKey {
			return false, nil
		}
	}
	n.ID = r.id()
	r.st.notifications[n.ID] = *n
	return true, nil
}

func (r memNotifications) ListByUserID(ctx context.Context, userID int64, page, limit int) ([]model.Notification, int64, error) {
	var all []model.Notification
	for _, n := range r.st.notifications {
		if n.UserID == userID {
			all = append(all, n)
		}
	}
	slices.SortFunc(all, func(a, b model.Notification) int { return int(b.ID - a.ID) })
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r memNotifications) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var n int64
	for _, x := range r.st.notifications {
		if x.UserID == userID && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (r memNotifications) MarkRead(ctx context.Context, userID, id int64) error {
	n, ok := r.st.notifications[id]
	if !ok || n.UserID != userID {
		return repo.ErrNotFound
	}
	n.IsRead = true
	r.st.notifications[id] = n
	return nil
}

func (r memAuditLogs) Create(ctx context.Context, l model.AuditLog) error {
	l.ID = r.id()
	r.st.auditLogs = append(r.st.auditLogs, l)
	return nil
}

func (r memAuditLogs) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for _, l := range r.st.auditLogs {
		if f.Action != nil && l.Action != *f.Action {
			continue
		}
		out = append(out, l)
	}
	if f.Offset >= len(out) {
		return []model.AuditLog{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func paginate[T any](all []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(all) {
		return []T{}
	}
	end := min(start+limit, len(all))
	return all[start:end]
}

// =====================
// cart store, clock, gateway, publisher
// =====================

type memCartStore struct {
	mu    sync.Mutex
	carts map[string]model.Cart
}

func newMemCartStore() *memCartStore {
	return &memCartStore{carts: map[string]model.Cart{}}
}

func ownerKey(o model.CartOwner) string {
	if o.IsAuthenticated() {
		return "user:" + strconv.FormatInt(o.UserID, 10)
	}
	return "session:" + o.SessionKey
}

func (s *memCartStore) Load(ctx context.Context, owner model.CartOwner) (model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[ownerKey(owner)]
	if !ok {
		return model.NewCart(), nil
	}
	c.Entries = maps.Clone(c.Entries)
	return c, nil
}

func (s *memCartStore) Save(ctx context.Context, owner model.CartOwner, cart model.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Entries = maps.Clone(cart.Entries)
	s.carts[ownerKey(owner)] = cart
	return nil
}

func (s *memCartStore) Delete(ctx context.Context, owner model.CartOwner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, ownerKey(owner))
	return nil
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreateCheckoutSession(ctx context.Context, in usecase.CheckoutSessionInput) (usecase.CheckoutSession, error) {
	args := m.Called(ctx, in)
	s, _ := args.Get(0).(usecase.CheckoutSession)
	return s, args.Error(1)
}

func (m *GatewayMock) RetrieveSession(ctx context.Context, id string) (usecase.GatewaySession, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(usecase.GatewaySession)
	return s, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []usecase.OrderEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...usecase.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) kinds() []model.NotificationKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.NotificationKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

// =====================
// fixture
// =====================

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	aliceID int64 = 1
	bobID   int64 = 2
	adminID int64 = 99

	mugID    int64 = 10
	teaID    int64 = 11
	hiddenID int64 = 12
)

type fixture struct {
	db        *memDB
	sessions  *memCartStore
	userCarts *memCartStore
	gateway   *GatewayMock
	publisher *recordingPublisher
	clock     *fixedClock

	carts    *usecase.CartUsecase
	checkout *usecase.CheckoutUsecase
	payments *usecase.PaymentUsecase
	orders   *usecase.OrderUsecase
	admin    *usecase.AdminOrderUsecase
	discount *usecase.DiscountUsecase
	notes    *usecase.NotificationUsecase
}

type fixtureOption func(*usecase.CheckoutConfig)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		db:        newMemDB(),
		sessions:  newMemCartStore(),
		userCarts: newMemCartStore(),
		gateway:   new(GatewayMock),
		publisher: &recordingPublisher{},
		clock:     &fixedClock{now: testNow},
	}
	f.db.addUser(model.User{ID: aliceID, Username: "alice", Role: model.RoleUser, IsActive: true})
	f.db.addUser(model.User{ID: bobID, Username: "bob", Role: model.RoleUser, IsActive: true})
	f.db.addUser(model.User{ID: adminID, Username: "root", Role: model.RoleAdmin, IsActive: true})
	f.db.addProduct(model.Product{ID: mugID, Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 50, IsActive: true})
	f.db.addProduct(model.Product{ID: teaID, Name: "Tea", Price: decimal.RequireFromString("15.00"), Stock: 50, IsActive: true})
	f.db.addProduct(model.Product{ID: hiddenID, Name: "Hidden", Price: decimal.RequireFromString("1.00"), Stock: 50, IsActive: false})

	cfg := usecase.CheckoutConfig{
		ShippingCost: decimal.Zero,
		TaxRate:      decimal.Zero,
		DiscountMode: model.DiscountModeFlat,
		SuccessURL:   "https://shop.example/checkout/success",
		CancelURL:    "https://shop.example/checkout/cancel",
	}
	for _, o := range opts {
		o(&cfg)
	}

	log := zap.NewNop()
	f.carts = usecase.NewCartUsecase(f.sessions, f.userCarts, memProducts{f.db}, log)
	f.checkout = usecase.NewCheckoutUsecase(f.db, f.carts, f.gateway, f.publisher, f.clock, cfg, log)
	f.payments = usecase.NewPaymentUsecase(f.db, f.carts, f.gateway, f.publisher, f.clock, log)
	f.orders = usecase.NewOrderUsecase(f.db, f.publisher, f.clock, log)
	f.admin = usecase.NewAdminOrderUsecase(f.db, f.publisher, f.clock, log)
	f.discount = usecase.NewDiscountUsecase(f.db, f.clock, log)
	f.notes = usecase.NewNotificationUsecase(f.db)
	return f
}

func user(id int64) model.CartOwner {
	return model.CartOwner{UserID: id, SessionKey: "sess-" + strconv.FormatInt(id, 10)}
}

func (f *fixture) add(t *testing.T, owner model.CartOwner, productID, qty int64) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), owner, usecase.AddCartInput{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

func assertHTTPStatus(t *testing.T, err error, status int) *usecase.HTTPError {
	t.Helper()
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "expected HTTPError, got %T: %v", err, err)
	require.Equal(t, status, he.Status, he.Error())
	return he
}
