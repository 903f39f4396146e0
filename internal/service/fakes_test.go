package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"smartmart/internal/entity"
	"smartmart/internal/payment"
	"smartmart/internal/repository"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// memDB is an in-memory stand-in for the catalog, cart, coupon and order tables.
// ExecTx serializes transactions and restores a snapshot when fn fails.
type memDB struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	nextID int64

	products map[int64]*entity.Product
	carts    map[int64]*entity.Cart
	coupons  map[string]*entity.Coupon
	orders   map[int64]*entity.Order
	views    [][2]int64

	failClearCart bool
}

func newMemDB() *memDB {
	return &memDB{
		nextID:   1000,
		products: map[int64]*entity.Product{},
		carts:    map[int64]*entity.Cart{},
		coupons:  map[string]*entity.Coupon{},
		orders:   map[int64]*entity.Order{},
	}
}

func (m *memDB) id() int64 {
	m.nextID++
	return m.nextID
}

func cloneProduct(p *entity.Product) *entity.Product {
	c := *p
	c.Variants = append([]entity.Variant(nil), p.Variants...)
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}

func cloneCart(c *entity.Cart) *entity.Cart {
	out := *c
	out.Items = append([]entity.CartItem{}, c.Items...)
	return &out
}

func cloneOrder(o *entity.Order) *entity.Order {
	out := *o
	out.Items = append([]entity.OrderItem(nil), o.Items...)
	return &out
}

func (m *memDB) addProduct(p *entity.Product) *entity.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.products[p.ID] = cloneProduct(p)
	return p
}

func (m *memDB) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Quantity
}

func (m *memDB) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memDB) ExecTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	products := map[int64]*entity.Product{}
	for id, p := range m.products {
		products[id] = cloneProduct(p)
	}
	carts := map[int64]*entity.Cart{}
	for id, c := range m.carts {
		carts[id] = cloneCart(c)
	}
	coupons := map[string]*entity.Coupon{}
	for code, c := range m.coupons {
		cp := *c
		coupons[code] = &cp
	}
	orders := map[int64]*entity.Order{}
	for id, o := range m.orders {
		orders[id] = cloneOrder(o)
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.products, m.carts, m.coupons, m.orders = products, carts, coupons, orders
		m.mu.Unlock()
		return err
	}
	return nil
}

// products

func (m *memDB) GetProductByID(ctx context.Context, id int64) (*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (m *memDB) GetProductsByIDs(ctx context.Context, ids []int64) ([]*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (m *memDB) GetProducts(ctx context.Context, filter entity.ProductFilter) ([]*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Product
	for _, p := range m.products {
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memDB) CreateProduct(ctx context.Context, p *entity.Product) (*entity.Product, error) {
	return m.addProduct(p), nil
}

func (m *memDB) UpdateProduct(ctx context.Context, p *entity.Product) (*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	m.products[p.ID] = cloneProduct(p)
	return p, nil
}

func (m *memDB) DeleteProduct(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *memDB) RecordView(ctx context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views = append(m.views, [2]int64{userID, productID})
	return nil
}

func (m *memDB) DecrementStock(ctx context.Context, productID int64, variantID *int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return repository.ErrInsufficientStock
	}
	if variantID == nil {
		if p.Quantity < qty {
			return repository.ErrInsufficientStock
		}
		p.Quantity -= qty
		return nil
	}
	for i := range p.Variants {
		if p.Variants[i].ID == *variantID {
			if p.Variants[i].Quantity < qty {
				return repository.ErrInsufficientStock
			}
			p.Variants[i].Quantity -= qty
			return nil
		}
	}
	return repository.ErrInsufficientStock
}

func (m *memDB) IncrementStock(ctx context.Context, productID int64, variantID *int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return repository.ErrNotFound
	}
	if variantID == nil {
		p.Quantity += qty
		return nil
	}
	for i := range p.Variants {
		if p.Variants[i].ID == *variantID {
			p.Variants[i].Quantity += qty
		}
	}
	return nil
}

// coupons

func (m *memDB) GetCouponByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memDB) RedeemCoupon(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok || (c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit) {
		return repository.ErrCouponExhausted
	}
	c.UsedCount++
	return nil
}

// carts

func (m *memDB) GetCartByOwner(ctx context.Context, owner entity.CartOwner) (*entity.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if owner.UserID != nil && c.UserID != nil && *c.UserID == *owner.UserID {
			return cloneCart(c), nil
		}
		if owner.UserID == nil && c.UserID == nil && owner.SessionID != "" && c.SessionID == owner.SessionID {
			return cloneCart(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memDB) CreateCart(ctx context.Context, cart *entity.Cart) (*entity.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart.ID = m.id()
	cart.Items = []entity.CartItem{}
	m.carts[cart.ID] = cloneCart(cart)
	return cart, nil
}

func (m *memDB) InsertCartItem(ctx context.Context, item *entity.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[item.CartID]
	if !ok {
		return repository.ErrNotFound
	}
	item.ID = m.id()
	c.Items = append(c.Items, *item)
	return nil
}

func (m *memDB) UpdateCartItem(ctx context.Context, item *entity.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[item.CartID]
	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i] = *item
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memDB) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cartID]
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memDB) ClearCart(ctx context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClearCart {
		return errors.New("connection reset")
	}
	c := m.carts[cartID]
	c.Items = []entity.CartItem{}
	c.Subtotal = decimal.Zero
	c.TotalItems = 0
	return nil
}

func (m *memDB) SaveCartTotals(ctx context.Context, cart *entity.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cart.ID]
	c.Subtotal = cart.Subtotal
	c.TotalItems = cart.TotalItems
	return nil
}

func (m *memDB) AssignCartToUser(ctx context.Context, cartID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cartID]
	c.UserID = &userID
	c.SessionID = ""
	return nil
}

func (m *memDB) DeleteCart(ctx context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, cartID)
	return nil
}

// orders

func (m *memDB) InsertOrder(ctx context.Context, order *entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = m.id()
	order.CreatedAt = time.Now().UTC()
	for i := range order.Items {
		order.Items[i].ID = m.id()
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *memDB) UpdateOrderStatus(ctx context.Context, id int64, from, to entity.OrderStatus, cancelledAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return repository.ErrStatusChanged
	}
	o.Status = to
	if cancelledAt != nil {
		o.CancelledAt = cancelledAt
	}
	return nil
}

func (m *memDB) UpdateOrderPayment(ctx context.Context, id int64, status entity.OrderStatus, pay entity.PaymentStatus, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = status
	o.PaymentStatus = pay
	o.PaymentReference = reference
	return nil
}

func (m *memDB) GetOrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memDB) GetOrderByPaymentReference(ctx context.Context, reference string) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentReference == reference {
			return cloneOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memDB) GetOrders(ctx context.Context, filter repository.OrderFilter, withItems bool) ([]*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Order
	for _, o := range m.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memDB) OrderSummary(ctx context.Context, userID int64) (int, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, total := 0, decimal.Zero
	for _, o := range m.orders {
		if o.UserID == userID {
			count++
			total = total.Add(o.Total)
		}
	}
	return count, total, nil
}

type published struct {
	Key     string
	Payload []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.messages = append(p.messages, published{Key: key, Payload: data})
	return nil
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, len(p.messages))
	for i, m := range p.messages {
		keys[i] = m.Key
	}
	return keys
}

type fakeGateway struct {
	mu      sync.Mutex
	name    string
	charge  func(payment.Charge) (payment.Result, error)
	charges []payment.Charge
	refunds []string
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Charge(ctx context.Context, c payment.Charge) (payment.Result, error) {
	g.mu.Lock()
	g.charges = append(g.charges, c)
	g.mu.Unlock()
	if g.charge != nil {
		return g.charge(c)
	}
	return payment.Result{Reference: "pi_" + c.OrderNumber, Paid: true}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, reference string, amount decimal.Decimal, currency string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, reference)
	return nil
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}
