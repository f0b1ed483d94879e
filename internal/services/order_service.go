package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/platform/textutil"
	"github.com/craftline/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventCancelled     = "order.cancelled"

	orderIDPrefix = "ord_"

	orderNumberTag = "CL"

	dashboardRecentOrders = 5
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAccessDenied indicates the caller may not see or change the order.
	ErrOrderAccessDenied = errors.New("order: access denied")
	// ErrOrderInvalidStatus indicates the requested status is not a valid target.
	ErrOrderInvalidStatus = errors.New("order: invalid status")
	// ErrOrderInvalidTransition indicates the order cannot move to the requested status.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent modification or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrItemUnavailable indicates an ordered product is missing or inactive.
	ErrItemUnavailable = errors.New("order: item unavailable")
	// ErrInsufficientStock indicates an ordered quantity exceeds tracked stock.
	ErrInsufficientStock = errors.New("order: insufficient stock")
)

// updatableStatuses are the targets accepted by UpdateStatus. Returned is
// excluded on purpose: returns start from the buyer-facing return flow.
var updatableStatuses = []domain.OrderStatus{
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
}

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {domain.OrderStatusReturned},
}

var electronicPaymentMethods = []domain.PaymentMethod{
	domain.PaymentMethodCard,
	domain.PaymentMethodUPI,
	domain.PaymentMethodBankTransfer,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Carts       repositories.CartRepository
	Artisans    repositories.ArtisanRepository
	UnitOfWork  repositories.UnitOfWork
	Shipping    ShippingCalculator
	Clock       func() time.Time
	IDGenerator func() string
	RandomInt   func(n int) int
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	carts      repositories.CartRepository
	artisans   repositories.ArtisanRepository
	unitOfWork repositories.UnitOfWork
	shipping   ShippingCalculator
	clock      func() time.Time
	newID      func() string
	randomInt  func(n int) int
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	shipping := deps.Shipping
	if shipping == nil {
		shipping = FlatShipping(0)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	random := deps.RandomInt
	if random == nil {
		random = rand.IntN
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		carts:      deps.Carts,
		artisans:   deps.Artisans,
		unitOfWork: unit,
		shipping:   shipping,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		randomInt: random,
		events:    deps.Events,
		logger:    logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return Order{}, fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if !validPaymentMethod(cmd.PaymentMethod) {
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if strings.TrimSpace(cmd.ShippingAddress.Line1) == "" {
		return Order{}, fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return Order{}, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if item.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: item quantity must be at least 1", ErrOrderInvalidInput)
		}
	}

	now := s.now()

	lines, stockLines, err := s.buildLineItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	billing := cmd.ShippingAddress
	if cmd.BillingAddress != nil {
		billing = *cmd.BillingAddress
	}

	shipping := s.shipping.Calculate(lines, cmd.ShippingAddress)

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     s.generateOrderNumber(now),
		BuyerID:         buyerID,
		Items:           lines,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  billing,
		Totals:          domain.ComputeOrderTotals(lines, shipping, 0),
		Payment: domain.OrderPayment{
			Method: cmd.PaymentMethod,
			Status: initialPaymentStatus(cmd.PaymentMethod),
		},
		Status: domain.OrderStatusPending,
		Timeline: []domain.TimelineEntry{{
			Status:    domain.OrderStatusPending,
			Note:      "order placed",
			ActorID:   buyerID,
			ActorRole: RoleBuyer,
			CreatedAt: now,
		}},
		Notes:     strings.TrimSpace(cmd.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.products.DeductStock(txCtx, repositories.StockDeductionRequest{
			Lines:    stockLines,
			OrderRef: order.ID,
			Now:      now,
		}); err != nil {
			return s.mapStockError(err)
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		// Conflicts can also surface when the transaction commits.
		return Order{}, s.mapRepositoryError(err)
	}

	// The cart already served its purpose; a failed clear must not undo the order.
	if s.carts != nil {
		if err := s.carts.Clear(ctx, buyerID); err != nil {
			s.logger(ctx, "order.cart.clear.failed", map[string]any{
				"order": order.ID,
				"buyer": buyerID,
				"error": err.Error(),
			})
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     buyerID,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !canAccessOrder(order, actor) {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderAccessDenied, order.ID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error) {
	filter := repositories.OrderListFilter{
		Status:     cmd.Status,
		Pagination: cmd.Pagination,
	}
	switch {
	case cmd.Actor.IsAdmin():
		// Admins list across all buyers.
	case cmd.Actor.HasRole(RoleArtisan):
		filter.ArtisanID = cmd.Actor.ID
	default:
		filter.BuyerID = cmd.Actor.ID
	}
	if filter.ArtisanID == "" && filter.BuyerID == "" && !cmd.Actor.IsAdmin() {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !slices.Contains(updatableStatuses, cmd.Target) {
		return Order{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, cmd.Target)
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	if !cmd.Actor.IsAdmin() && !(cmd.Actor.HasRole(RoleArtisan) && order.ContainsArtisan(cmd.Actor.ID)) {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderAccessDenied, order.ID)
	}
	if !canTransition(order.Status, cmd.Target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, cmd.Target)
	}

	now := s.now()
	role := primaryRole(cmd.Actor)

	if cmd.Target == domain.OrderStatusCancelled {
		return s.cancel(ctx, order, cmd.Note, cmd.Actor, role, now)
	}

	previous := order.Status
	order.Status = cmd.Target
	order.Timeline = append(order.Timeline, domain.TimelineEntry{
		Status:    cmd.Target,
		Note:      strings.TrimSpace(cmd.Note),
		ActorID:   cmd.Actor.ID,
		ActorRole: role,
		CreatedAt: now,
	})
	if cmd.Target == domain.OrderStatusDelivered {
		order.DeliveredAt = &now
		// Cash on delivery settles at the doorstep.
		if order.Payment.Method == domain.PaymentMethodCashOnDelivery {
			order.Payment.Status = domain.PaymentStatusCompleted
		}
	}
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		Status:      string(order.Status),
		OccurredAt:  now,
	})
	s.logger(ctx, "order.status.changed", map[string]any{
		"order": order.ID,
		"from":  string(previous),
		"to":    string(order.Status),
		"actor": cmd.Actor.ID,
	})

	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	if !cmd.Actor.IsAdmin() && order.BuyerID != cmd.Actor.ID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderAccessDenied, order.ID)
	}
	if !order.CanBeCancelled() {
		return Order{}, fmt.Errorf("%w: cannot cancel %s order", ErrOrderInvalidTransition, order.Status)
	}

	return s.cancel(ctx, order, cmd.Reason, cmd.Actor, primaryRole(cmd.Actor), s.now())
}

// cancel restores stock and persists the cancelled order in one transaction.
// Callers have already checked access and cancellability.
func (s *orderService) cancel(ctx context.Context, order Order, reason string, actor Actor, role string, now time.Time) (Order, error) {
	order.Status = domain.OrderStatusCancelled
	order.Cancellation = &domain.Cancellation{
		Reason:       strings.TrimSpace(reason),
		ActorID:      actor.ID,
		ActorRole:    role,
		RefundStatus: domain.RefundStatusPending,
		CancelledAt:  now,
	}
	order.Timeline = append(order.Timeline, domain.TimelineEntry{
		Status:    domain.OrderStatusCancelled,
		Note:      strings.TrimSpace(reason),
		ActorID:   actor.ID,
		ActorRole: role,
		CreatedAt: now,
	})
	order.UpdatedAt = now

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.products.RestoreStock(txCtx, repositories.StockRestoreRequest{
			Lines:    stockLinesFromOrder(order),
			OrderRef: order.ID,
			Reason:   "order cancelled",
			Now:      now,
		}); err != nil {
			return s.mapStockError(err)
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventCancelled,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) ArtisanDashboard(ctx context.Context, artisanID string) (ArtisanDashboard, error) {
	artisanID = strings.TrimSpace(artisanID)
	if artisanID == "" {
		return ArtisanDashboard{}, fmt.Errorf("%w: artisan id is required", ErrOrderInvalidInput)
	}

	counts, err := s.orders.CountByStatus(ctx, artisanID)
	if err != nil {
		return ArtisanDashboard{}, s.mapRepositoryError(err)
	}

	recent, err := s.orders.List(ctx, repositories.OrderListFilter{
		ArtisanID:  artisanID,
		Pagination: domain.Pagination{PageSize: dashboardRecentOrders},
	})
	if err != nil {
		return ArtisanDashboard{}, s.mapRepositoryError(err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	return ArtisanDashboard{
		StatusCounts: counts,
		RecentOrders: recent.Items,
		TotalOrders:  total,
	}, nil
}

// buildLineItems loads every ordered product and freezes the checkout snapshot:
// title, first image, artisan ref and display name, and the discounted unit
// price. Availability and stock are pre-checked here; the transaction
// re-checks them before any quantity is decremented.
func (s *orderService) buildLineItems(ctx context.Context, items []OrderItemInput) ([]OrderLineItem, []repositories.StockLine, error) {
	lines := make([]OrderLineItem, 0, len(items))
	stockLines := make([]repositories.StockLine, 0, len(items))
	artisanNames := make(map[string]string)

	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, nil, fmt.Errorf("%w: product %s", ErrItemUnavailable, productID)
			}
			return nil, nil, s.mapRepositoryError(err)
		}
		if !product.Active {
			return nil, nil, fmt.Errorf("%w: product %s", ErrItemUnavailable, productID)
		}
		if !product.InStock(item.Quantity) {
			return nil, nil, fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
		}

		unitPrice := product.DiscountedPrice()
		image := ""
		if len(product.Images) > 0 {
			image = product.Images[0]
		}
		lines = append(lines, OrderLineItem{
			ProductID:     product.ID,
			ArtisanID:     product.ArtisanID,
			ArtisanName:   s.artisanDisplayName(ctx, product.ArtisanID, artisanNames),
			Title:         product.Title,
			Image:         image,
			Quantity:      item.Quantity,
			UnitPrice:     unitPrice,
			Subtotal:      unitPrice * int64(item.Quantity),
			Customization: textutil.NormalizeStringMap(item.Customization),
		})
		stockLines = append(stockLines, repositories.StockLine{
			ProductID: product.ID,
			Quantity:  item.Quantity,
		})
	}

	return lines, stockLines, nil
}

// artisanDisplayName resolves the seller name frozen into a line item. A
// missing profile leaves the name empty rather than failing checkout.
func (s *orderService) artisanDisplayName(ctx context.Context, artisanID string, cache map[string]string) string {
	if s.artisans == nil || artisanID == "" {
		return ""
	}
	if name, ok := cache[artisanID]; ok {
		return name
	}
	name := ""
	profile, err := s.artisans.FindByID(ctx, artisanID)
	if err != nil {
		s.logger(ctx, "order.artisan.lookup.failed", map[string]any{
			"artisan": artisanID,
			"error":   err.Error(),
		})
	} else {
		name = profile.DisplayName
	}
	cache[artisanID] = name
	return name
}

// generateOrderNumber builds a human-friendly reference from the order date
// plus a random three-digit tie-breaker. Collisions are tolerated: the ULID
// document ID is the identity, the number is display-only.
func (s *orderService) generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s-%s-%03d", orderNumberTag, now.Format("20060102"), s.randomInt(1000))
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"status": event.Status,
			"error":  err.Error(),
		})
	}
}

func (s *orderService) mapStockError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, stockErr.ProductID)
		case repositories.StockErrorItemUnavailable, repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: product %s", ErrItemUnavailable, stockErr.ProductID)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrOrderNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrOrderConflict, repoErr.Error())
		}
	}
	return err
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func canAccessOrder(order Order, actor Actor) bool {
	if actor.IsAdmin() {
		return true
	}
	if order.BuyerID == actor.ID {
		return true
	}
	return actor.HasRole(RoleArtisan) && order.ContainsArtisan(actor.ID)
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func validPaymentMethod(method domain.PaymentMethod) bool {
	return method == domain.PaymentMethodCashOnDelivery || slices.Contains(electronicPaymentMethods, method)
}

func initialPaymentStatus(method domain.PaymentMethod) domain.PaymentStatus {
	if method == domain.PaymentMethodCashOnDelivery {
		return domain.PaymentStatusPending
	}
	return domain.PaymentStatusProcessing
}

func primaryRole(actor Actor) string {
	switch {
	case actor.IsAdmin():
		return RoleAdmin
	case actor.HasRole(RoleArtisan):
		return RoleArtisan
	default:
		return RoleBuyer
	}
}

func stockLinesFromOrder(order Order) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, repositories.StockLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return lines
}
