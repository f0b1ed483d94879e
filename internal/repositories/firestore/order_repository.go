package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"

	domain "github.com/craftline/api/internal/domain"
	pfirestore "github.com/craftline/api/internal/platform/firestore"
	"github.com/craftline/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order aggregates within Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

// Insert creates the order document, failing when the ID is already taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Create(ctx, orderID, newOrderDocument(order))
	return err
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, orderID, newOrderDocument(order))
	return err
}

// FindByID loads the order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns an order page respecting the provided filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if buyerID := strings.TrimSpace(filter.BuyerID); buyerID != "" {
		query = query.Where("buyerId", "==", buyerID)
	}
	if artisanID := strings.TrimSpace(filter.ArtisanID); artisanID != "" {
		query = query.Where("artisanIds", "array-contains", artisanID)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", string(filter.Status[0]))
	} else if len(filter.Status) > 1 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// CountByStatus aggregates order counts per lifecycle status for one artisan.
func (r *OrderRepository) CountByStatus(ctx context.Context, artisanID string) (map[domain.OrderStatus]int, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	artisanID = strings.TrimSpace(artisanID)
	if artisanID == "" {
		return nil, errors.New("order repository: artisan id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.countByStatus", err)
	}

	statuses := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusReturned,
	}

	counts := make(map[domain.OrderStatus]int, len(statuses))
	for _, status := range statuses {
		query := client.Collection(ordersCollection).
			Where("artisanIds", "array-contains", artisanID).
			Where("status", "==", string(status))
		results, err := query.NewAggregationQuery().WithCount("count").Get(ctx)
		if err != nil {
			return nil, pfirestore.WrapError("orders.countByStatus", err)
		}
		value, ok := results["count"]
		if !ok {
			continue
		}
		countValue, ok := value.(*firestorepb.Value)
		if !ok {
			return nil, fmt.Errorf("orders.countByStatus: unexpected aggregation result %T", value)
		}
		counts[status] = int(countValue.GetIntegerValue())
	}
	return counts, nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber       string                    `firestore:"orderNumber"`
	BuyerID           string                    `firestore:"buyerId"`
	ArtisanIDs        []string                  `firestore:"artisanIds"`
	Items             []orderLineItemDocument   `firestore:"items"`
	ShippingAddress   addressDocument           `firestore:"shippingAddress"`
	BillingAddress    addressDocument           `firestore:"billingAddress"`
	Totals            orderTotalsDocument       `firestore:"totals"`
	PaymentMethod     string                    `firestore:"paymentMethod"`
	PaymentStatus     string                    `firestore:"paymentStatus"`
	Status            string                    `firestore:"status"`
	Timeline          []timelineEntryDocument   `firestore:"timeline"`
	Cancellation      *cancellationDocument     `firestore:"cancellation,omitempty"`
	Notes             string                    `firestore:"notes,omitempty"`
	EstimatedDelivery *time.Time                `firestore:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time                `firestore:"deliveredAt,omitempty"`
	CreatedAt         time.Time                 `firestore:"createdAt"`
	UpdatedAt         time.Time                 `firestore:"updatedAt"`
}

type orderLineItemDocument struct {
	ProductID     string            `firestore:"productId"`
	ArtisanID     string            `firestore:"artisanId"`
	ArtisanName   string            `firestore:"artisanName,omitempty"`
	Title         string            `firestore:"title"`
	Image         string            `firestore:"image,omitempty"`
	Quantity      int               `firestore:"qty"`
	UnitPrice     int64             `firestore:"unitPrice"`
	Subtotal      int64             `firestore:"subtotal"`
	Customization map[string]string `firestore:"customization,omitempty"`
}

type addressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Shipping int64 `firestore:"shipping"`
	Tax      int64 `firestore:"tax"`
	Discount int64 `firestore:"discount"`
	Total    int64 `firestore:"total"`
}

type timelineEntryDocument struct {
	Status    string    `firestore:"status"`
	Note      string    `firestore:"note,omitempty"`
	ActorID   string    `firestore:"actorId,omitempty"`
	ActorRole string    `firestore:"actorRole,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type cancellationDocument struct {
	Reason       string    `firestore:"reason,omitempty"`
	ActorID      string    `firestore:"actorId"`
	ActorRole    string    `firestore:"actorRole"`
	RefundStatus string    `firestore:"refundStatus,omitempty"`
	CancelledAt  time.Time `firestore:"cancelledAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderLineItemDocument, len(order.Items))
	artisanSet := make(map[string]struct{}, len(order.Items))
	artisanIDs := make([]string, 0, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderLineItemDocument{
			ProductID:     strings.TrimSpace(item.ProductID),
			ArtisanID:     strings.TrimSpace(item.ArtisanID),
			ArtisanName:   strings.TrimSpace(item.ArtisanName),
			Title:         item.Title,
			Image:         item.Image,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Subtotal:      item.Subtotal,
			Customization: cloneStringMap(item.Customization),
		}
		artisanID := strings.TrimSpace(item.ArtisanID)
		if artisanID == "" {
			continue
		}
		if _, ok := artisanSet[artisanID]; ok {
			continue
		}
		artisanSet[artisanID] = struct{}{}
		artisanIDs = append(artisanIDs, artisanID)
	}

	timeline := make([]timelineEntryDocument, len(order.Timeline))
	for i, entry := range order.Timeline {
		timeline[i] = timelineEntryDocument{
			Status:    string(entry.Status),
			Note:      entry.Note,
			ActorID:   entry.ActorID,
			ActorRole: entry.ActorRole,
			CreatedAt: entry.CreatedAt.UTC(),
		}
	}

	doc := orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		BuyerID:         strings.TrimSpace(order.BuyerID),
		ArtisanIDs:      artisanIDs,
		Items:           items,
		ShippingAddress: newAddressDocument(order.ShippingAddress),
		BillingAddress:  newAddressDocument(order.BillingAddress),
		Totals: orderTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Shipping: order.Totals.Shipping,
			Tax:      order.Totals.Tax,
			Discount: order.Totals.Discount,
			Total:    order.Totals.Total,
		},
		PaymentMethod:     string(order.Payment.Method),
		PaymentStatus:     string(order.Payment.Status),
		Status:            string(order.Status),
		Timeline:          timeline,
		Notes:             strings.TrimSpace(order.Notes),
		EstimatedDelivery: order.EstimatedDelivery,
		DeliveredAt:       order.DeliveredAt,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
	}

	if order.Cancellation != nil {
		doc.Cancellation = &cancellationDocument{
			Reason:       strings.TrimSpace(order.Cancellation.Reason),
			ActorID:      order.Cancellation.ActorID,
			ActorRole:    order.Cancellation.ActorRole,
			RefundStatus: string(order.Cancellation.RefundStatus),
			CancelledAt:  order.Cancellation.CancelledAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderLineItem{
			ProductID:     strings.TrimSpace(item.ProductID),
			ArtisanID:     strings.TrimSpace(item.ArtisanID),
			ArtisanName:   strings.TrimSpace(item.ArtisanName),
			Title:         item.Title,
			Image:         item.Image,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Subtotal:      item.Subtotal,
			Customization: cloneStringMap(item.Customization),
		}
	}

	timeline := make([]domain.TimelineEntry, len(d.Timeline))
	for i, entry := range d.Timeline {
		timeline[i] = domain.TimelineEntry{
			Status:    domain.OrderStatus(entry.Status),
			Note:      entry.Note,
			ActorID:   entry.ActorID,
			ActorRole: entry.ActorRole,
			CreatedAt: entry.CreatedAt,
		}
	}

	order := domain.Order{
		ID:              id,
		OrderNumber:     strings.TrimSpace(d.OrderNumber),
		BuyerID:         strings.TrimSpace(d.BuyerID),
		Items:           items,
		ShippingAddress: d.ShippingAddress.toDomain(),
		BillingAddress:  d.BillingAddress.toDomain(),
		Totals: domain.OrderTotals{
			Subtotal: d.Totals.Subtotal,
			Shipping: d.Totals.Shipping,
			Tax:      d.Totals.Tax,
			Discount: d.Totals.Discount,
			Total:    d.Totals.Total,
		},
		Payment: domain.OrderPayment{
			Method: domain.PaymentMethod(d.PaymentMethod),
			Status: domain.PaymentStatus(d.PaymentStatus),
		},
		Status:            domain.OrderStatus(d.Status),
		Timeline:          timeline,
		Notes:             strings.TrimSpace(d.Notes),
		EstimatedDelivery: d.EstimatedDelivery,
		DeliveredAt:       d.DeliveredAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}

	if d.Cancellation != nil {
		order.Cancellation = &domain.Cancellation{
			Reason:       strings.TrimSpace(d.Cancellation.Reason),
			ActorID:      d.Cancellation.ActorID,
			ActorRole:    d.Cancellation.ActorRole,
			RefundStatus: domain.RefundStatus(d.Cancellation.RefundStatus),
			CancelledAt:  d.Cancellation.CancelledAt,
		}
	}
	return order
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		Recipient:  strings.TrimSpace(addr.Recipient),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      addr.Line2,
		City:       strings.TrimSpace(addr.City),
		State:      addr.State,
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
		Phone:      addr.Phone,
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		Recipient:  strings.TrimSpace(d.Recipient),
		Line1:      strings.TrimSpace(d.Line1),
		Line2:      d.Line2,
		City:       strings.TrimSpace(d.City),
		State:      d.State,
		PostalCode: strings.TrimSpace(d.PostalCode),
		Country:    strings.TrimSpace(d.Country),
		Phone:      d.Phone,
	}
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type orderPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode order page token json: %w", err)
	}
	return &token, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
