package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCliente = "cliente"
	RoleEmpresa = "empresa"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pendiente"
	OrderStatusApproved  OrderStatus = "Aprobado"
	OrderStatusRejected  OrderStatus = "Rechazado"
	OrderStatusCancelled OrderStatus = "Cancelado"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:   {},
	OrderStatusApproved:  {},
	OrderStatusRejected:  {},
	OrderStatusCancelled: {},
}

var ErrUnknownStatus = errors.New("unknown order status")

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; !ok {
		return "", ErrUnknownStatus
	}
	return status, nil
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusApproved || s == OrderStatusRejected || s == OrderStatusCancelled
}

const (
	AvailabilityAvailable   = "Disponible"
	AvailabilityUnavailable = "No disponible"
)

type User struct {
	ID        uuid.UUID
	Name      string
	RUT       string
	Email     string
	Password  string
	Address   string
	Phone     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID           uuid.UUID
	Name         string
	Price        decimal.Decimal
	Stock        int
	Availability string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Order struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Status     OrderStatus
	Total      decimal.Decimal
	Items      []OrderItem
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Filled by joined listings only.
	CustomerName  string
	CustomerEmail string
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	// Unit price captured at order creation, not recomputed later.
	Price decimal.Decimal

	// Filled by joined listings only.
	ProductName string
}

type OrderEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	CustomerID uuid.UUID   `json:"customer_id"`
	Status     OrderStatus `json:"status"`
}
