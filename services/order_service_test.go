package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProductRepo struct {
	nextID   int
	products map[int]*models.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{nextID: 1, products: make(map[int]*models.Product)}
}

func (f *fakeProductRepo) Create(ctx context.Context, product *models.Product) error {
	product.ID = f.nextID
	f.nextID++
	copied := *product
	f.products[product.ID] = &copied
	return nil
}

func (f *fakeProductRepo) GetByID(ctx context.Context, id int) (*models.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, repositories.ErrProductNotFound
	}
	copied := *product
	return &copied, nil
}

func (f *fakeProductRepo) List(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	var list []models.Product
	for _, product := range f.products {
		if activeOnly && !product.Active {
			continue
		}
		list = append(list, *product)
	}
	return list, nil
}

func (f *fakeProductRepo) Update(ctx context.Context, product *models.Product) error {
	if _, ok := f.products[product.ID]; !ok {
		return repositories.ErrProductNotFound
	}
	copied := *product
	f.products[product.ID] = &copied
	return nil
}

func (f *fakeProductRepo) UpdateImageKey(ctx context.Context, id int, key *string) error {
	product, ok := f.products[id]
	if !ok {
		return repositories.ErrProductNotFound
	}
	product.ImageKey = key
	return nil
}

func (f *fakeProductRepo) Delete(ctx context.Context, id int) error {
	if _, ok := f.products[id]; !ok {
		return repositories.ErrProductNotFound
	}
	delete(f.products, id)
	return nil
}

type fakeOrderRepo struct {
	nextID int
	orders map[int]*models.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{nextID: 1, orders: make(map[int]*models.Order)}
}

func (f *fakeOrderRepo) Create(ctx context.Context, exec repositories.SQLExecutor, order *models.Order) error {
	order.ID = f.nextID
	f.nextID++
	order.CreatedAt = time.Now()
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, id int) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, repositories.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderRepo) ListByMember(ctx context.Context, memberID int) ([]models.Order, error) {
	var list []models.Order
	for _, order := range f.orders {
		if order.MemberID == memberID {
			list = append(list, *order)
		}
	}
	return list, nil
}

func (f *fakeOrderRepo) CountByMember(ctx context.Context, memberID int) (int, error) {
	list, _ := f.ListByMember(ctx, memberID)
	return len(list), nil
}

func (f *fakeOrderRepo) CountByNumberPrefix(ctx context.Context, prefix string) (int, error) {
	count := 0
	for _, order := range f.orders {
		if len(order.OrderNumber) >= len(prefix) && order.OrderNumber[:len(prefix)] == prefix {
			count++
		}
	}
	return count, nil
}

type fakeAddressRepo struct {
	nextSeq   int
	addresses map[string]*models.Address
	owners    map[string]int
}

func newFakeAddressRepo() *fakeAddressRepo {
	return &fakeAddressRepo{addresses: make(map[string]*models.Address), owners: make(map[string]int)}
}

func (f *fakeAddressRepo) Create(ctx context.Context, memberID int, address *models.Address) error {
	f.nextSeq++
	address.AddressID = fmt.Sprintf("addr-%d", f.nextSeq)
	copied := *address
	f.addresses[address.AddressID] = &copied
	f.owners[address.AddressID] = memberID
	return nil
}

func (f *fakeAddressRepo) GetByAddressID(ctx context.Context, memberID int, addressID string) (*models.Address, error) {
	address, ok := f.addresses[addressID]
	if !ok || f.owners[addressID] != memberID {
		return nil, repositories.ErrAddressNotFound
	}
	copied := *address
	return &copied, nil
}

func (f *fakeAddressRepo) ListByMember(ctx context.Context, memberID int) ([]models.Address, error) {
	var list []models.Address
	for id, address := range f.addresses {
		if f.owners[id] == memberID {
			list = append(list, *address)
		}
	}
	return list, nil
}

func (f *fakeAddressRepo) Delete(ctx context.Context, memberID int, addressID string) error {
	if _, ok := f.addresses[addressID]; !ok || f.owners[addressID] != memberID {
		return repositories.ErrAddressNotFound
	}
	delete(f.addresses, addressID)
	delete(f.owners, addressID)
	return nil
}

// fakeCartService serves fixed lines and records whether the cart was cleared.
type fakeCartService struct {
	lines   []models.CartLine
	cleared bool
}

func (f *fakeCartService) Get(ctx context.Context, memberID int) (*models.Cart, error) {
	return &models.Cart{}, nil
}
func (f *fakeCartService) SetItem(ctx context.Context, memberID, productID, quantity int) (*models.Cart, error) {
	return &models.Cart{}, nil
}
func (f *fakeCartService) RemoveItem(ctx context.Context, memberID, productID int) (*models.Cart, error) {
	return &models.Cart{}, nil
}
func (f *fakeCartService) Clear(ctx context.Context, memberID int) error {
	f.cleared = true
	f.lines = nil
	return nil
}
func (f *fakeCartService) Lines(ctx context.Context, memberID int) ([]models.CartLine, error) {
	return f.lines, nil
}

func newCheckoutFixture(t *testing.T) (*orderService, *fakeMemberRepo, *fakeProductRepo, *fakeOrderRepo, *fakeAddressRepo, *fakeCartService) {
	t.Helper()
	memberRepo := newFakeMemberRepo()
	productRepo := newFakeProductRepo()
	orderRepo := newFakeOrderRepo()
	addressRepo := newFakeAddressRepo()
	cart := &fakeCartService{}
	catalog := NewCatalogService(productRepo, nil, testLogger())

	svc := &orderService{
		orderRepo:   orderRepo,
		addressRepo: addressRepo,
		memberRepo:  memberRepo,
		cartSvc:     cart,
		catalogSvc:  catalog,
		logger:      testLogger(),
	}
	return svc, memberRepo, productRepo, orderRepo, addressRepo, cart
}

func TestCheckoutBuildsOrderFromCart(t *testing.T) {
	svc, memberRepo, productRepo, _, _, cart := newCheckoutFixture(t)
	ctx := context.Background()

	member := seedMember(t, memberRepo, "buyer@example.com", "TR1", nil)
	soap := &models.Product{Name: "Soap", Price: 120, PointValue: 10, Active: true}
	require.NoError(t, productRepo.Create(ctx, soap))
	cream := &models.Product{Name: "Cream", Price: 250.5, PointValue: 25, Active: true}
	require.NoError(t, productRepo.Create(ctx, cream))

	cart.lines = []models.CartLine{
		{ProductID: soap.ID, Quantity: 2},
		{ProductID: cream.ID, Quantity: 1},
	}

	order, err := svc.Checkout(ctx, member.ID, CheckoutInput{
		Address: &AddressInput{Label: "Home", Line: "Bagdat Cad. 1", City: "Istanbul", District: "Kadikoy"},
	})
	require.NoError(t, err)

	assert.Len(t, order.Items, 2)
	assert.InDelta(t, 2*120+250.5, order.Total, 0.001)
	assert.Equal(t, models.OrderStatusPreparing, order.Status)
	assert.Equal(t, "Istanbul", order.DeliveryCity)
	assert.True(t, cart.cleared)

	// Item rows snapshot the product at purchase time.
	assert.Equal(t, "Soap", order.Items[0].Name)
	assert.Equal(t, 120.0, order.Items[0].Price)
	assert.Equal(t, 2, order.Items[0].Quantity)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, memberRepo, _, _, _, _ := newCheckoutFixture(t)
	member := seedMember(t, memberRepo, "buyer@example.com", "TR1", nil)

	_, err := svc.Checkout(context.Background(), member.ID, CheckoutInput{
		Address: &AddressInput{Line: "Somewhere 1", City: "Ankara"},
	})
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestCheckoutDroppedProductsLeaveCartEmpty(t *testing.T) {
	svc, memberRepo, productRepo, _, _, cart := newCheckoutFixture(t)
	ctx := context.Background()

	member := seedMember(t, memberRepo, "buyer@example.com", "TR1", nil)
	retired := &models.Product{Name: "Retired", Price: 99, Active: false}
	require.NoError(t, productRepo.Create(ctx, retired))
	cart.lines = []models.CartLine{{ProductID: retired.ID, Quantity: 1}}

	_, err := svc.Checkout(ctx, member.ID, CheckoutInput{
		Address: &AddressInput{Line: "Somewhere 1", City: "Ankara"},
	})
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestCheckoutWithSavedAddress(t *testing.T) {
	svc, memberRepo, productRepo, _, addressRepo, cart := newCheckoutFixture(t)
	ctx := context.Background()

	member := seedMember(t, memberRepo, "buyer@example.com", "TR1", nil)
	saved := &models.Address{Label: "Office", Line: "Level 3", City: "Izmir", District: "Konak"}
	require.NoError(t, addressRepo.Create(ctx, member.ID, saved))

	product := &models.Product{Name: "Soap", Price: 50, Active: true}
	require.NoError(t, productRepo.Create(ctx, product))
	cart.lines = []models.CartLine{{ProductID: product.ID, Quantity: 1}}

	order, err := svc.Checkout(ctx, member.ID, CheckoutInput{AddressID: saved.AddressID})
	require.NoError(t, err)
	assert.Equal(t, "Izmir", order.DeliveryCity)
	assert.Equal(t, "Office", order.DeliveryLabel)
}

func TestCheckoutUnknownSavedAddress(t *testing.T) {
	svc, memberRepo, productRepo, _, _, cart := newCheckoutFixture(t)
	ctx := context.Background()

	member := seedMember(t, memberRepo, "buyer@example.com", "TR1", nil)
	product := &models.Product{Name: "Soap", Price: 50, Active: true}
	require.NoError(t, productRepo.Create(ctx, product))
	cart.lines = []models.CartLine{{ProductID: product.ID, Quantity: 1}}

	_, err := svc.Checkout(ctx, member.ID, CheckoutInput{AddressID: "missing"})
	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestCheckoutSavesNewAddressWhenAsked(t *testing.T) {
	svc, memberRepo, productRepo, _, addressRepo, cart := newCheckoutFixture(t)
	ctx := context.Background()

	member := seedMember(t, memberRepo, "buyer@example.com", "TR1", nil)
	product := &models.Product{Name: "Soap", Price: 50, Active: true}
	require.NoError(t, productRepo.Create(ctx, product))
	cart.lines = []models.CartLine{{ProductID: product.ID, Quantity: 1}}

	_, err := svc.Checkout(ctx, member.ID, CheckoutInput{
		Address:     &AddressInput{Label: "Home", Line: "Bagdat Cad. 1", City: "Istanbul"},
		SaveAddress: true,
	})
	require.NoError(t, err)

	addresses, err := addressRepo.ListByMember(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, addresses, 1)
}

func TestNextOrderNumberSequencesWithinDay(t *testing.T) {
	svc, _, _, orderRepo, _, _ := newCheckoutFixture(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)

	number, err := svc.nextOrderNumber(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "260830140509001", number)

	require.NoError(t, orderRepo.Create(ctx, nil, &models.Order{MemberID: 1, OrderNumber: number}))

	second, err := svc.nextOrderNumber(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "260830140510002", second)
}

func TestGetOrderScopedToMember(t *testing.T) {
	svc, memberRepo, productRepo, _, _, cart := newCheckoutFixture(t)
	ctx := context.Background()

	buyer := seedMember(t, memberRepo, "buyer@example.com", "TR1", nil)
	stranger := seedMember(t, memberRepo, "stranger@example.com", "TR2", nil)

	product := &models.Product{Name: "Soap", Price: 50, Active: true}
	require.NoError(t, productRepo.Create(ctx, product))
	cart.lines = []models.CartLine{{ProductID: product.ID, Quantity: 1}}

	order, err := svc.Checkout(ctx, buyer.ID, CheckoutInput{
		Address: &AddressInput{Line: "Somewhere 1", City: "Ankara"},
	})
	require.NoError(t, err)

	_, err = svc.GetOrder(ctx, stranger.ID, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	found, err := svc.GetOrder(ctx, buyer.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, found.OrderNumber)
}

// dupNumberOrderRepo simulates a concurrent checkout committing the same
// order number first: the conflicting order lands in the store before the
// insert fails, so the recount moves the sequence forward.
type dupNumberOrderRepo struct {
	*fakeOrderRepo
	conflicts int
}

func (r *dupNumberOrderRepo) Create(ctx context.Context, exec repositories.SQLExecutor, order *models.Order) error {
	if r.conflicts > 0 {
		r.conflicts--
		winner := &models.Order{
			MemberID:    order.MemberID,
			OrderNumber: order.OrderNumber,
			Status:      models.OrderStatusPreparing,
		}
		if err := r.fakeOrderRepo.Create(ctx, nil, winner); err != nil {
			return err
		}
		return repositories.ErrOrderNumberTaken
	}
	return r.fakeOrderRepo.Create(ctx, exec, order)
}

func TestCheckoutRetriesOnDuplicateOrderNumber(t *testing.T) {
	svc, memberRepo, productRepo, orderRepo, _, cart := newCheckoutFixture(t)
	dup := &dupNumberOrderRepo{fakeOrderRepo: orderRepo, conflicts: 1}
	svc.orderRepo = dup
	ctx := context.Background()

	member := seedMember(t, memberRepo, "buyer@example.com", "TR1", nil)
	soap := &models.Product{Name: "Soap", Price: 120, PointValue: 10, Active: true}
	require.NoError(t, productRepo.Create(ctx, soap))
	cart.lines = []models.CartLine{{ProductID: soap.ID, Quantity: 1}}

	order, err := svc.Checkout(ctx, member.ID, CheckoutInput{
		Address: &AddressInput{Label: "Home", Line: "Bagdat Cad. 1", City: "Istanbul"},
	})
	require.NoError(t, err)

	// The winner took sequence 001; the retried checkout gets 002.
	assert.Equal(t, "002", order.OrderNumber[len(order.OrderNumber)-3:])
	assert.Len(t, orderRepo.orders, 2)
}
