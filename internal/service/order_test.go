package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendafacil/pedidos-api/internal/dto"
	"github.com/tiendafacil/pedidos-api/internal/model"
	"github.com/tiendafacil/pedidos-api/internal/repository"
)

type mockOrderRepo struct {
	orders   map[uuid.UUID]*model.Order
	products *mockProductRepo
}

func newMockOrderRepo(products *mockProductRepo) *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*model.Order), products: products}
}

func (m *mockOrderRepo) Create(_ context.Context, order *model.Order) error {
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	return m.orders[id], nil
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (m *mockOrderRepo) ListAll(_ context.Context) ([]model.Order, error) {
	var orders []model.Order
	for _, o := range m.orders {
		orders = append(orders, *o)
	}
	return orders, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OrderStatus) error {
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
	return nil
}

// Approve mirrors the real repository's all-or-nothing semantics: every line
// is checked before any stock is touched.
func (m *mockOrderRepo) Approve(_ context.Context, order *model.Order) error {
	for _, item := range order.Items {
		p := m.products.products[item.ProductID]
		if p == nil || p.Stock < item.Quantity {
			return &repository.InsufficientStockError{ProductID: item.ProductID}
		}
	}
	for _, item := range order.Items {
		m.products.products[item.ProductID].Stock -= item.Quantity
	}
	if o, ok := m.orders[order.ID]; ok {
		o.Status = model.OrderStatusApproved
	}
	return nil
}

func seedProduct(repo *mockProductRepo, name string, price float64, stock int) *model.Product {
	p := &model.Product{
		ID:           uuid.New(),
		Name:         name,
		Price:        decimal.NewFromFloat(price),
		Stock:        stock,
		Availability: model.AvailabilityAvailable,
	}
	repo.products[p.ID] = p
	return p
}

func newOrderService() (*OrderService, *mockOrderRepo, *mockProductRepo) {
	productRepo := newMockProductRepo()
	orderRepo := newMockOrderRepo(productRepo)
	return NewOrderService(orderRepo, productRepo, nil), orderRepo, productRepo
}

func TestOrderService_Create_ComputesTotal(t *testing.T) {
	svc, _, productRepo := newOrderService()
	p1 := seedProduct(productRepo, "Cafe", 10.50, 100)
	p2 := seedProduct(productRepo, "Te", 3, 100)

	order, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p1.ID, Quantity: 2},
		{ProductID: p2.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.True(t, decimal.NewFromFloat(24).Equal(order.Total), "total = %s", order.Total)
	require.Len(t, order.Items, 2)
	assert.True(t, p1.Price.Equal(order.Items[0].Price), "price captured at creation")

	// Stock is not reserved at creation.
	assert.Equal(t, 100, p1.Stock)
	assert.Equal(t, 100, p2.Stock)
}

func TestOrderService_Create_EmptyItems(t *testing.T) {
	svc, _, _ := newOrderService()
	_, err := svc.Create(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestOrderService_Create_ProductNotFound(t *testing.T) {
	svc, _, _ := newOrderService()
	_, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: uuid.New(), Quantity: 1},
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestOrderService_Transition_InvalidStatus(t *testing.T) {
	svc, _, _ := newOrderService()
	_, err := svc.Transition(context.Background(), uuid.New(), "Enviado")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOrderService_Transition_NotFound(t *testing.T) {
	svc, _, _ := newOrderService()
	_, err := svc.Transition(context.Background(), uuid.New(), string(model.OrderStatusApproved))
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_Transition_Approve(t *testing.T) {
	svc, _, productRepo := newOrderService()
	p := seedProduct(productRepo, "Pan", 100, 5)

	order, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 5},
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(500).Equal(order.Total))

	approved, err := svc.Transition(context.Background(), order.ID, string(model.OrderStatusApproved))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusApproved, approved.Status)
	assert.Equal(t, 0, p.Stock)
}

func TestOrderService_Transition_ApproveInsufficientStock(t *testing.T) {
	svc, orderRepo, productRepo := newOrderService()
	p := seedProduct(productRepo, "Pan", 100, 5)

	first, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 5},
	})
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), first.ID, string(model.OrderStatusApproved))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)

	_, err = svc.Transition(context.Background(), second.ID, string(model.OrderStatusApproved))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Pan", stockErr.ProductName)
	assert.Equal(t, model.OrderStatusPending, orderRepo.orders[second.ID].Status)
}

func TestOrderService_Transition_ApproveAllOrNothing(t *testing.T) {
	svc, orderRepo, productRepo := newOrderService()
	plenty := seedProduct(productRepo, "Harina", 10, 100)
	scarce := seedProduct(productRepo, "Azucar", 20, 1)

	order, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: plenty.ID, Quantity: 3},
		{ProductID: scarce.ID, Quantity: 2},
	})
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), order.ID, string(model.OrderStatusApproved))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Azucar", stockErr.ProductName)

	// No partial decrement, order still pending.
	assert.Equal(t, 100, plenty.Stock)
	assert.Equal(t, 1, scarce.Stock)
	assert.Equal(t, model.OrderStatusPending, orderRepo.orders[order.ID].Status)
}

func TestOrderService_Transition_FirstApprovedWins(t *testing.T) {
	svc, orderRepo, productRepo := newOrderService()
	p := seedProduct(productRepo, "Leche", 50, 5)

	o1, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 3},
	})
	require.NoError(t, err)
	o2, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 4},
	})
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), o1.ID, string(model.OrderStatusApproved))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)

	_, err = svc.Transition(context.Background(), o2.ID, string(model.OrderStatusApproved))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, model.OrderStatusPending, orderRepo.orders[o2.ID].Status)
	assert.Equal(t, 2, p.Stock)
}

func TestOrderService_Transition_SameStatusIsNoOp(t *testing.T) {
	svc, _, productRepo := newOrderService()
	p := seedProduct(productRepo, "Pan", 100, 5)

	order, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 2},
	})
	require.NoError(t, err)

	same, err := svc.Transition(context.Background(), order.ID, string(model.OrderStatusPending))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, same.Status)
	assert.Equal(t, 5, p.Stock)

	// Idempotent on terminal states too.
	_, err = svc.Transition(context.Background(), order.ID, string(model.OrderStatusApproved))
	require.NoError(t, err)
	again, err := svc.Transition(context.Background(), order.ID, string(model.OrderStatusApproved))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusApproved, again.Status)
	assert.Equal(t, 3, p.Stock, "no second decrement")
}

func TestOrderService_Transition_TerminalStatesAreFinal(t *testing.T) {
	svc, _, productRepo := newOrderService()
	p := seedProduct(productRepo, "Pan", 100, 5)

	for _, terminal := range []model.OrderStatus{
		model.OrderStatusApproved, model.OrderStatusRejected, model.OrderStatusCancelled,
	} {
		order, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
			{ProductID: p.ID, Quantity: 1},
		})
		require.NoError(t, err)

		_, err = svc.Transition(context.Background(), order.ID, string(terminal))
		require.NoError(t, err)

		_, err = svc.Transition(context.Background(), order.ID, string(model.OrderStatusPending))
		assert.ErrorIs(t, err, ErrOrderFinalized, "out of %s", terminal)
	}
}

func TestOrderService_Transition_RejectDoesNotTouchStock(t *testing.T) {
	svc, _, productRepo := newOrderService()
	p := seedProduct(productRepo, "Pan", 100, 5)

	order, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 3},
	})
	require.NoError(t, err)

	rejected, err := svc.Transition(context.Background(), order.ID, string(model.OrderStatusRejected))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRejected, rejected.Status)
	assert.Equal(t, 5, p.Stock)
}

func TestOrderService_Cancel(t *testing.T) {
	svc, orderRepo, productRepo := newOrderService()
	p := seedProduct(productRepo, "Pan", 100, 5)
	customerID := uuid.New()

	order, err := svc.Create(context.Background(), customerID, []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 1},
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), order.ID, customerID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, model.OrderStatusCancelled, orderRepo.orders[order.ID].Status)
	assert.Equal(t, 5, p.Stock)
}

func TestOrderService_Cancel_OnlyPending(t *testing.T) {
	svc, _, productRepo := newOrderService()
	p := seedProduct(productRepo, "Pan", 100, 5)
	customerID := uuid.New()

	order, err := svc.Create(context.Background(), customerID, []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), order.ID, string(model.OrderStatusApproved))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), order.ID, customerID)
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestOrderService_Cancel_WrongCustomer(t *testing.T) {
	svc, _, productRepo := newOrderService()
	p := seedProduct(productRepo, "Pan", 100, 5)

	order, err := svc.Create(context.Background(), uuid.New(), []dto.OrderItemRequest{
		{ProductID: p.ID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), order.ID, uuid.New())
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}

func TestOrderService_Cancel_NotFound(t *testing.T) {
	svc, _, _ := newOrderService()
	_, err := svc.Cancel(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
