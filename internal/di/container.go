package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/craftline/api/internal/platform/config"
	pstorage "github.com/craftline/api/internal/platform/storage"
	"github.com/craftline/api/internal/repositories"
	"github.com/craftline/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Reviews  services.ReviewService
	Ratings  services.RatingService
	Catalog  services.CatalogService
	Cart     services.CartService
	Artisans services.ArtisanService
	System   services.SystemService
}

// Container wires repositories, services, and shared infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOption injects optional collaborators into service construction.
type ContainerOption func(*containerDeps)

type containerDeps struct {
	storage      *pstorage.Client
	imagesBucket string
	orderEvents  services.OrderEventPublisher
	reviewEvents services.ReviewEventPublisher
	shipping     services.ShippingCalculator
	logger       func(ctx context.Context, event string, fields map[string]any)
	build        services.BuildInfo
}

// WithStorage wires the signed-URL storage client used for image uploads.
func WithStorage(client *pstorage.Client, bucket string) ContainerOption {
	return func(d *containerDeps) {
		d.storage = client
		d.imagesBucket = bucket
	}
}

// WithOrderEventPublisher wires the publisher for order lifecycle events.
func WithOrderEventPublisher(pub services.OrderEventPublisher) ContainerOption {
	return func(d *containerDeps) {
		d.orderEvents = pub
	}
}

// WithReviewEventPublisher wires the publisher for review lifecycle events.
func WithReviewEventPublisher(pub services.ReviewEventPublisher) ContainerOption {
	return func(d *containerDeps) {
		d.reviewEvents = pub
	}
}

// WithShippingCalculator overrides the default zero-charge shipping quote.
func WithShippingCalculator(calc services.ShippingCalculator) ContainerOption {
	return func(d *containerDeps) {
		d.shipping = calc
	}
}

// WithServiceLogger wires structured event logging into the services.
func WithServiceLogger(logger func(ctx context.Context, event string, fields map[string]any)) ContainerOption {
	return func(d *containerDeps) {
		d.logger = logger
	}
}

// WithBuildInfo records version metadata surfaced by the health report.
func WithBuildInfo(build services.BuildInfo) ContainerOption {
	return func(d *containerDeps) {
		d.build = build
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// the Firestore-backed registry; tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	deps := containerDeps{
		build: services.BuildInfo{
			Environment: cfg.Environment,
			StartedAt:   time.Now().UTC(),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}

	svc, err := buildServices(cfg, reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as the shared Firestore client.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, deps containerDeps) (Services, error) {
	var svc Services

	ratingSvc, err := services.NewRatingService(services.RatingServiceDeps{
		Reviews:  reg.Reviews(),
		Products: reg.Products(),
		Artisans: reg.Artisans(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rating service: %w", err)
	}
	svc.Ratings = ratingSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:     reg.Reviews(),
		Orders:      reg.Orders(),
		Ratings:     ratingSvc,
		AutoApprove: cfg.Features.AutoApproveReviews,
		Events:      deps.reviewEvents,
		Logger:      deps.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Carts:      reg.Carts(),
		Artisans:   reg.Artisans(),
		UnitOfWork: reg,
		Shipping:   deps.shipping,
		Events:     deps.orderEvents,
		Logger:     deps.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Counters: reg.Counters(),
		Storage:  deps.storage,
		Bucket:   deps.imagesBucket,
		Logger:   deps.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	artisanSvc, err := services.NewArtisanService(services.ArtisanServiceDeps{
		Artisans: reg.Artisans(),
		Storage:  deps.storage,
		Bucket:   deps.imagesBucket,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build artisan service: %w", err)
	}
	svc.Artisans = artisanSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Build:            deps.build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
