package domain

import "time"

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits artisan confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the artisan accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the buyer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned indicates the delivered order was sent back.
	OrderStatusReturned OrderStatus = "returned"
)

// PaymentMethod enumerates accepted payment instruments.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodUPI            PaymentMethod = "upi"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cod"
)

// PaymentStatus tracks the recorded (never processed) payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// RefundStatus tracks the cancellation refund workflow.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusRejected  RefundStatus = "rejected"
)

// ReturnWindow bounds how long after delivery a return may be initiated.
const ReturnWindow = 7 * 24 * time.Hour

// OrderLineItem snapshots a purchased product at checkout time. Title, image,
// and unit price are frozen copies so later catalog edits never change an order.
type OrderLineItem struct {
	ProductID string
	ArtisanID string
	// ArtisanName is the seller's display name at purchase time.
	ArtisanName string
	Title       string
	Image       string
	Quantity    int
	// UnitPrice is the discounted price at purchase time, in minor units.
	UnitPrice     int64
	Subtotal      int64
	Customization map[string]string
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
// Fixed at creation; never recomputed from line items afterwards.
type OrderTotals struct {
	Subtotal int64
	Shipping int64
	Tax      int64
	Discount int64
	Total    int64
}

// OrderPayment records the payment instrument and its declared state.
type OrderPayment struct {
	Method PaymentMethod
	Status PaymentStatus
}

// TimelineEntry is an append-only record of an order status change.
type TimelineEntry struct {
	Status    OrderStatus
	Note      string
	ActorID   string
	ActorRole string
	CreatedAt time.Time
}

// Cancellation stores the metadata recorded when an order is cancelled.
type Cancellation struct {
	Reason       string
	ActorID      string
	ActorRole    string
	RefundStatus RefundStatus
	CancelledAt  time.Time
}

// Order is the purchase aggregate shared across services and handlers.
type Order struct {
	ID                string
	OrderNumber       string
	BuyerID           string
	Items             []OrderLineItem
	ShippingAddress   Address
	BillingAddress    Address
	Totals            OrderTotals
	Payment           OrderPayment
	Status            OrderStatus
	Timeline          []TimelineEntry
	Cancellation      *Cancellation
	Notes             string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ContainsArtisan reports whether any line item belongs to the given artisan.
func (o Order) ContainsArtisan(artisanID string) bool {
	for _, item := range o.Items {
		if item.ArtisanID == artisanID {
			return true
		}
	}
	return false
}

// ContainsProduct reports whether the order includes the given product.
func (o Order) ContainsProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// LineItem returns the line for the given product, if present.
func (o Order) LineItem(productID string) (OrderLineItem, bool) {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return OrderLineItem{}, false
}

// CanBeCancelled reports whether the order is still early enough in the
// lifecycle to cancel. Only pending and confirmed orders qualify.
func (o Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// CanBeReturned reports whether a return may be initiated at the given time.
// Delivered orders qualify within ReturnWindow of the delivery timestamp;
// the boundary instant itself is still eligible. Orders missing a delivery
// timestamp fall back to the creation time.
func (o Order) CanBeReturned(now time.Time) bool {
	if o.Status != OrderStatusDelivered {
		return false
	}
	reference := o.CreatedAt
	if o.DeliveredAt != nil {
		reference = *o.DeliveredAt
	}
	return !now.After(reference.Add(ReturnWindow))
}

// RefundAmount computes the refundable amount for the order. Nothing is
// refundable until payment completed. Once the order has shipped the
// shipping fee is non-refundable. Never negative.
func (o Order) RefundAmount() int64 {
	if o.Payment.Status != PaymentStatusCompleted {
		return 0
	}
	amount := o.Totals.Total
	switch o.Status {
	case OrderStatusShipped, OrderStatusDelivered, OrderStatusReturned:
		amount -= o.Totals.Shipping
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// OrderFilter captures list filters for order queries.
type OrderFilter struct {
	BuyerID   string
	ArtisanID string
	Status    OrderStatus
}

// ArtisanDashboard summarizes order activity scoped to one artisan.
type ArtisanDashboard struct {
	StatusCounts map[OrderStatus]int
	RecentOrders []Order
	TotalOrders  int
}
