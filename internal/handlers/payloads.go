package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/plateful/api/internal/domain"
)

type orderLinePayload struct {
	Name     string `json:"name"`
	Flavor   string `json:"flavor,omitempty"`
	Image    string `json:"image,omitempty"`
	Quantity int    `json:"quantity"`
	Amount   int64  `json:"amount"`
	Total    int64  `json:"total"`
}

type orderPayload struct {
	ID              int64              `json:"id"`
	Number          string             `json:"number"`
	Status          int                `json:"status"`
	StatusLabel     string             `json:"statusLabel"`
	PayStatus       int                `json:"payStatus"`
	Amount          int64              `json:"amount"`
	Consignee       string             `json:"consignee"`
	Phone           string             `json:"phone"`
	Address         string             `json:"address"`
	Remark          string             `json:"remark,omitempty"`
	OrderTime       string             `json:"orderTime"`
	CheckoutTime    string             `json:"checkoutTime,omitempty"`
	DeliveryTime    string             `json:"deliveryTime,omitempty"`
	CancelTime      string             `json:"cancelTime,omitempty"`
	CancelReason    string             `json:"cancelReason,omitempty"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	Dishes          string             `json:"dishes,omitempty"`
	Lines           []orderLinePayload `json:"lines,omitempty"`
}

type cartItemPayload struct {
	ID        int64  `json:"id"`
	DishID    *int64 `json:"dishId,omitempty"`
	SetmealID *int64 `json:"setmealId,omitempty"`
	Name      string `json:"name"`
	Flavor    string `json:"flavor,omitempty"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
	Amount    int64  `json:"amount"`
}

type pagePayload[T any] struct {
	Total int64 `json:"total"`
	Items []T   `json:"items"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		Number:          order.Number,
		Status:          int(order.Status),
		StatusLabel:     order.Status.String(),
		PayStatus:       int(order.PayStatus),
		Amount:          order.Amount,
		Consignee:       order.Consignee,
		Phone:           order.Phone,
		Address:         order.Address,
		Remark:          order.Remark,
		OrderTime:       order.OrderTime.Format(time.RFC3339),
		CancelReason:    order.CancelReason,
		RejectionReason: order.RejectionReason,
		Dishes:          dishesSummary(order.Lines),
	}
	payload.CheckoutTime = formatOptionalTime(order.CheckoutTime)
	payload.DeliveryTime = formatOptionalTime(order.DeliveryTime)
	payload.CancelTime = formatOptionalTime(order.CancelTime)

	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			Name:     line.Name,
			Flavor:   line.Flavor,
			Image:    line.Image,
			Quantity: line.Quantity,
			Amount:   line.Amount,
			Total:    line.Total(),
		})
	}
	return payload
}

func buildCartItemPayload(item domain.CartItem) cartItemPayload {
	return cartItemPayload{
		ID:        item.ID,
		DishID:    item.DishID,
		SetmealID: item.SetmealID,
		Name:      item.Name,
		Flavor:    item.Flavor,
		Image:     item.Image,
		Quantity:  item.Quantity,
		Amount:    item.Amount,
	}
}

// dishesSummary renders the one-line list view description, e.g.
// "Kung Pao Chicken x2; Rice x1".
func dishesSummary(lines []domain.OrderLine) string {
	if len(lines) == 0 {
		return ""
	}
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s x%d", line.Name, line.Quantity))
	}
	return strings.Join(parts, "; ")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
