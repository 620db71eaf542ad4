package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

var errStorageDown = &domain.StorageError{Op: "exec", Err: errors.New("connection refused")}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memData is the state behind mockDB; RunInTx snapshots it and restores it on error.
type memData struct {
	nextID   int64
	carts    map[string]*domain.Cart
	products map[int64]domain.Product
	orders   map[int64]*domain.Order
}

func (d *memData) clone() *memData {
	c := &memData{
		nextID:   d.nextID,
		carts:    make(map[string]*domain.Cart, len(d.carts)),
		products: make(map[int64]domain.Product, len(d.products)),
		orders:   make(map[int64]*domain.Order, len(d.orders)),
	}
	for k, cart := range d.carts {
		cp := *cart
		cp.Items = append([]domain.CartItem(nil), cart.Items...)
		c.carts[k] = &cp
	}
	for k, p := range d.products {
		c.products[k] = p
	}
	for k, o := range d.orders {
		cp := *o
		cp.Items = append([]domain.OrderItem(nil), o.Items...)
		c.orders[k] = &cp
	}
	return c
}

func (d *memData) id() int64 {
	d.nextID++
	return d.nextID
}

// mockDB serialises every transaction behind one mutex.
type mockDB struct {
	mu   sync.Mutex
	data *memData

	// failOn makes the named operation return errStorageDown.
	failOn string
	txs    int

	// interrupt runs after the transaction body; a non-nil result rolls it back.
	interrupt func() error
	// committed runs once a transaction has committed.
	committed func()
}

func newMockDB() *mockDB {
	return &mockDB{data: &memData{
		carts:    make(map[string]*domain.Cart),
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]*domain.Order),
	}}
}

func (m *mockDB) addProduct(id int64, price string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.products[id] = domain.Product{
		ID:     id,
		Name:   fmt.Sprintf("product-%d", id),
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
}

func (m *mockDB) setProductPrice(id int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.data.products[id]
	p.Price = decimal.RequireFromString(price)
	m.data.products[id] = p
}

func (m *mockDB) deactivate(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.data.products[id]
	p.Active = false
	m.data.products[id] = p
}

func (m *mockDB) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.products[id].Stock
}

func (m *mockDB) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.orders)
}

func (m *mockDB) Carts() port.CartRepository       { return &mockCarts{db: m} }
func (m *mockDB) Products() port.ProductRepository { return &mockProducts{db: m} }
func (m *mockDB) Orders() port.OrderRepository     { return &mockOrders{db: m} }

func (m *mockDB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx port.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs++

	snapshot := m.data.clone()
	err := fn(ctx, mockTx{db: m})
	if err == nil && m.interrupt != nil {
		err = m.interrupt()
	}
	if err != nil {
		m.data = snapshot
		return err
	}
	if m.committed != nil {
		m.committed()
	}
	return nil
}

type mockTx struct{ db *mockDB }

func (t mockTx) Carts() port.CartRepository       { return &mockCarts{db: t.db, inTx: true} }
func (t mockTx) Products() port.ProductRepository { return &mockProducts{db: t.db, inTx: true} }
func (t mockTx) Orders() port.OrderRepository     { return &mockOrders{db: t.db, inTx: true} }

// guard locks the mutex for calls made outside a transaction and checks fault injection.
func (m *mockDB) guard(inTx bool, op string) (func(), error) {
	unlock := func() {}
	if !inTx {
		m.mu.Lock()
		unlock = m.mu.Unlock
	}
	if m.failOn == op {
		unlock()
		return func() {}, errStorageDown
	}
	return unlock, nil
}

type mockCarts struct {
	db   *mockDB
	inTx bool
}

func (c *mockCarts) FindCart(ctx context.Context, userID string) (*domain.Cart, error) {
	unlock, err := c.db.guard(c.inTx, "FindCart")
	if err != nil {
		return nil, err
	}
	defer unlock()

	cart, ok := c.db.data.carts[userID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (c *mockCarts) LockCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return c.FindCart(ctx, userID)
}

func (c *mockCarts) CreateCart(ctx context.Context, userID string) error {
	unlock, err := c.db.guard(c.inTx, "CreateCart")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := c.db.data.carts[userID]; ok {
		return nil
	}
	now := time.Now()
	c.db.data.carts[userID] = &domain.Cart{ID: c.db.data.id(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (c *mockCarts) cartByID(cartID int64) *domain.Cart {
	for _, cart := range c.db.data.carts {
		if cart.ID == cartID {
			return cart
		}
	}
	return nil
}

func (c *mockCarts) InsertItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal) error {
	unlock, err := c.db.guard(c.inTx, "InsertItem")
	if err != nil {
		return err
	}
	defer unlock()

	cart := c.cartByID(cartID)
	if cart == nil {
		return domain.ErrCartNotFound
	}
	cart.Items = append(cart.Items, domain.CartItem{
		ID:        c.db.data.id(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
	})
	return nil
}

func (c *mockCarts) UpdateItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) error {
	unlock, err := c.db.guard(c.inTx, "UpdateItemQuantity")
	if err != nil {
		return err
	}
	defer unlock()

	cart := c.cartByID(cartID)
	if cart == nil {
		return domain.ErrCartNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items[i].Quantity = quantity
			return nil
		}
	}
	return domain.ErrItemNotFound
}

func (c *mockCarts) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	unlock, err := c.db.guard(c.inTx, "DeleteItem")
	if err != nil {
		return err
	}
	defer unlock()

	cart := c.cartByID(cartID)
	if cart == nil {
		return domain.ErrCartNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return nil
		}
	}
	return domain.ErrItemNotFound
}

func (c *mockCarts) ClearItems(ctx context.Context, cartID int64) error {
	unlock, err := c.db.guard(c.inTx, "ClearItems")
	if err != nil {
		return err
	}
	defer unlock()

	cart := c.cartByID(cartID)
	if cart == nil {
		return domain.ErrCartNotFound
	}
	cart.Items = nil
	return nil
}

type mockProducts struct {
	db   *mockDB
	inTx bool
}

func (p *mockProducts) FindActiveProduct(ctx context.Context, id int64) (*domain.Product, error) {
	unlock, err := p.db.guard(p.inTx, "FindActiveProduct")
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, ok := p.db.data.products[id]
	if !ok || !product.Active {
		return nil, domain.ErrProductNotFound
	}
	return &product, nil
}

func (p *mockProducts) FindActiveProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	unlock, err := p.db.guard(p.inTx, "FindActiveProducts")
	if err != nil {
		return nil, err
	}
	defer unlock()

	found := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := p.db.data.products[id]; ok && product.Active {
			found[id] = product
		}
	}
	return found, nil
}

func (p *mockProducts) DecrementStock(ctx context.Context, id int64, quantity int) (*domain.Product, error) {
	unlock, err := p.db.guard(p.inTx, "DecrementStock")
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, ok := p.db.data.products[id]
	if !ok || !product.Active {
		return nil, domain.ErrProductNotFound
	}
	if product.Stock < quantity {
		return nil, &domain.InsufficientStockError{ProductID: id, Requested: quantity, Available: product.Stock}
	}
	product.Stock -= quantity
	p.db.data.products[id] = product
	return &product, nil
}

type mockOrders struct {
	db   *mockDB
	inTx bool
}

func (o *mockOrders) CreateOrder(ctx context.Context, order *domain.Order) error {
	unlock, err := o.db.guard(o.inTx, "CreateOrder")
	if err != nil {
		return err
	}
	defer unlock()

	order.ID = o.db.data.id()
	for i := range order.Items {
		order.Items[i].ID = o.db.data.id()
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = append([]domain.OrderItem(nil), order.Items...)
	o.db.data.orders[order.ID] = &stored
	return nil
}

func (o *mockOrders) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	unlock, err := o.db.guard(o.inTx, "UpdateOrderStatus")
	if err != nil {
		return err
	}
	defer unlock()

	order, ok := o.db.data.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (o *mockOrders) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	unlock, err := o.db.guard(o.inTx, "GetOrder")
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, ok := o.db.data.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	return &cp, nil
}

func (o *mockOrders) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	unlock, err := o.db.guard(o.inTx, "ListOrdersByUser")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var orders []domain.Order
	for _, order := range o.db.data.orders {
		if order.UserID == userID {
			cp := *order
			cp.Items = append([]domain.OrderItem(nil), order.Items...)
			orders = append(orders, cp)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

// mockCache implements both port.CartCache and port.IdempotencyStore.
type mockCache struct {
	mu          sync.Mutex
	carts       map[string]*domain.Cart
	keys        map[string]int64
	gets        int
	deletes     int
	failGet     bool
	failAcquire bool
}

func newMockCache() *mockCache {
	return &mockCache{
		carts: make(map[string]*domain.Cart),
		keys:  make(map[string]int64),
	}
}

func (c *mockCache) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++

	if c.failGet {
		return nil, errors.New("redis down")
	}
	cart, ok := c.carts[userID]
	if !ok {
		return nil, port.ErrCacheMiss
	}
	return cart, nil
}

func (c *mockCache) SetCart(ctx context.Context, cart *domain.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[cart.UserID] = cart
	return nil
}

func (c *mockCache) DeleteCart(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.carts, userID)
	return nil
}

// racingCache runs onSet once, before the first cache fill lands, standing in
// for a commit that happens between the database read and the fill.
type racingCache struct {
	*mockCache
	once  sync.Once
	onSet func()
}

func (c *racingCache) SetCart(ctx context.Context, cart *domain.Cart) error {
	if c.onSet != nil {
		c.once.Do(c.onSet)
	}
	return c.mockCache.SetCart(ctx, cart)
}

func (c *mockCache) cached(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.carts[userID]
	return ok
}

const pendingOrderID = -1

func (c *mockCache) AcquireIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failAcquire {
		return false, &domain.StorageError{Op: "setnx", Err: errors.New("redis down")}
	}
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = pendingOrderID
	return true, nil
}

func (c *mockCache) LookupIdempotency(ctx context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.keys[key]
	if !ok {
		return 0, false, port.ErrCacheMiss
	}
	if id == pendingOrderID {
		return 0, true, nil
	}
	return id, false, nil
}

func (c *mockCache) CompleteIdempotency(ctx context.Context, key string, orderID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = orderID
	return nil
}

func (c *mockCache) ReleaseIdempotency(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] == pendingOrderID {
		delete(c.keys, key)
	}
	return nil
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *mockRecorder) CheckoutFinished(outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

func (r *mockRecorder) count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[outcome]
}
