package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/tiendafacil/pedidos-api/internal/dto"
	"github.com/tiendafacil/pedidos-api/internal/model"
	"github.com/tiendafacil/pedidos-api/internal/repository"
)

var (
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderAccessDenied = errors.New("access denied")
	ErrOrderNotPending   = errors.New("only pending orders can be cancelled")
	ErrOrderFinalized    = errors.New("order is in a terminal status")
	ErrInvalidStatus     = errors.New("invalid order status")
)

// InsufficientStockError names the product that blocked an approval so the
// seller can act on it.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductName)
}

const orderEventQueue = "order.events"

type OrderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	amqpCh      *amqp.Channel
}

func NewOrderService(orderRepo repository.OrderRepository, productRepo repository.ProductRepository, amqpCh *amqp.Channel) *OrderService {
	return &OrderService{orderRepo: orderRepo, productRepo: productRepo, amqpCh: amqpCh}
}

// Create builds a Pendiente order from the requested items, capturing each
// product's current unit price. Stock is not checked here: it is a soft
// constraint until approval, first-approved-wins.
func (s *OrderService) Create(ctx context.Context, customerID uuid.UUID, items []dto.OrderItemRequest) (*model.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	var total decimal.Decimal
	orderItems := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		product, err := s.productRepo.GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, ErrProductNotFound)
		}
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		orderItems = append(orderItems, model.OrderItem{
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			Price:       product.Price,
			ProductName: product.Name,
		})
	}

	order := &model.Order{
		CustomerID: customerID,
		Status:     model.OrderStatusPending,
		Total:      total,
		Items:      orderItems,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.publishEvent(ctx, order)
	return order, nil
}

// Transition moves an order to the target status on behalf of the seller.
// Same-status transitions are idempotent no-ops; terminal states admit no
// further transition. Approval is the only path that touches stock, and it is
// all-or-nothing: rejection and cancellation never reverse a decrement.
func (s *OrderService) Transition(ctx context.Context, orderID uuid.UUID, target string) (*model.Order, error) {
	status, err := model.ToOrderStatus(target)
	if err != nil {
		return nil, ErrInvalidStatus
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.Status == status {
		return order, nil
	}
	if order.Status.IsTerminal() {
		return nil, ErrOrderFinalized
	}

	if status == model.OrderStatusApproved {
		if err := s.orderRepo.Approve(ctx, order); err != nil {
			var stockErr *repository.InsufficientStockError
			if errors.As(err, &stockErr) {
				return nil, s.stockError(ctx, order, stockErr.ProductID)
			}
			return nil, fmt.Errorf("approve order: %w", err)
		}
	} else {
		if err := s.orderRepo.UpdateStatus(ctx, orderID, status); err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
	}

	order.Status = status
	s.publishEvent(ctx, order)
	return order, nil
}

// Cancel is the purchaser-facing path: narrower than Transition, it only
// applies to the caller's own order and only while it is still Pendiente.
func (s *OrderService) Cancel(ctx context.Context, orderID, customerID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.CustomerID != customerID {
		return nil, ErrOrderAccessDenied
	}
	if order.Status != model.OrderStatusPending {
		return nil, ErrOrderNotPending
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, model.OrderStatusCancelled); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	order.Status = model.OrderStatusCancelled
	s.publishEvent(ctx, order)
	return order, nil
}

func (s *OrderService) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.Order, error) {
	return s.orderRepo.ListByCustomer(ctx, customerID)
}

func (s *OrderService) ListAll(ctx context.Context) ([]model.Order, error) {
	return s.orderRepo.ListAll(ctx)
}

// stockError resolves the offending product's name for the error message. The
// order's own items already carry the name when it came from a joined read.
func (s *OrderService) stockError(ctx context.Context, order *model.Order, productID uuid.UUID) error {
	for _, item := range order.Items {
		if item.ProductID == productID && item.ProductName != "" {
			return &InsufficientStockError{ProductID: productID, ProductName: item.ProductName}
		}
	}
	if product, err := s.productRepo.GetByID(ctx, productID); err == nil && product != nil {
		return &InsufficientStockError{ProductID: productID, ProductName: product.Name}
	}
	return &InsufficientStockError{ProductID: productID, ProductName: productID.String()}
}

func (s *OrderService) publishEvent(ctx context.Context, order *model.Order) {
	if s.amqpCh == nil {
		return
	}
	msg, _ := json.Marshal(model.OrderEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
	})
	_ = s.amqpCh.PublishWithContext(ctx, "", orderEventQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
}
