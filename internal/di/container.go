package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/darzi-atelier/api/internal/payments"
	"github.com/darzi-atelier/api/internal/platform/config"
	"github.com/darzi-atelier/api/internal/repositories"
	"github.com/darzi-atelier/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders    services.OrderService
	Payments  services.PaymentService
	Dashboard services.DashboardService
	System    services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOption customises container assembly.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	logger  *zap.Logger
	gateway payments.Gateway
	build   services.BuildInfo
}

// WithLogger attaches a structured logger propagated into the services.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithPaymentGateway injects a pre-built gateway instead of constructing one
// from configuration. Tests use this to supply fakes.
func WithPaymentGateway(gateway payments.Gateway) ContainerOption {
	return func(o *containerOptions) {
		o.gateway = gateway
	}
}

// WithBuildInfo records version metadata surfaced by health endpoints.
func WithBuildInfo(build services.BuildInfo) ContainerOption {
	return func(o *containerOptions) {
		o.build = build
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	svc, err := buildServices(cfg, reg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, options containerOptions) (Services, error) {
	var svc Services

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		Products:     reg.Products(),
		Users:        reg.Users(),
		Measurements: reg.Measurements(),
		Currency:     cfg.Orders.Currency,
		Clock:        time.Now,
		Logger:       serviceLogger(options.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	gateway := options.gateway
	if gateway == nil && cfg.Razorpay.Enabled() {
		gateway, err = payments.NewRazorpayGateway(payments.RazorpayConfig{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
			Logger:    serviceLogger(options.logger.Named("razorpay")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build razorpay gateway: %w", err)
		}
	}
	if gateway != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:  reg.Orders(),
			Users:   reg.Users(),
			Gateway: gateway,
			Clock:   time.Now,
			Logger:  serviceLogger(options.logger.Named("payments")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	dashboardSvc, err := services.NewDashboardService(services.DashboardServiceDeps{
		Orders:           reg.Orders(),
		Products:         reg.Products(),
		Users:            reg.Users(),
		RevenueTrendDays: cfg.Orders.RevenueTrendDays,
		Clock:            time.Now,
		Logger:           serviceLogger(options.logger.Named("dashboard")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build dashboard service: %w", err)
	}
	svc.Dashboard = dashboardSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            options.build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}
