package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	common_api "go-ops/internal/common/api"
	"go-ops/internal/config"
	"go-ops/internal/database"
	"go-ops/internal/features/activity"
	"go-ops/internal/features/connector"
	"go-ops/internal/features/importer"
	"go-ops/internal/features/janitor"
	"go-ops/internal/features/queue"
	"go-ops/internal/features/system"
	"go-ops/internal/logger"
	"go-ops/internal/middleware"
	"go-ops/pkg/utils"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
	log.Printf("Registered %d routes\n", len(routes))
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(lc fx.Lifecycle, queueRepo queue.QueueRepository, lineRepo queue.LineRepository, activityRepo activity.ActivityRepository) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := queueRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure queue indexes: %v", err)
				}
				if err := lineRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure line indexes: %v", err)
				}
				if err := activityRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure activity indexes: %v", err)
				}
			}()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,
			database.NewDatabase,

			// Repositories
			queue.NewQueueRepository,
			queue.NewLineRepository,
			activity.NewActivityRepository,
			connector.NewSettingRepository,

			// Services
			connector.NewConnectorService,
			queue.NewQueueService,
			importer.NewImportService,
			janitor.NewJanitorService,

			// Interface adapters to satisfy Fx
			func(s *connector.ConnectorService) queue.WriterResolver { return s },
			func(s *connector.ConnectorService) queue.SourceResolver { return s },

			// Controllers
			queue.NewQueueController,
			connector.NewConnectorController,
			activity.NewActivityController,
			importer.NewImportController,
			system.NewProgressController,

			// API routes
			AsRoute(queue.NewQueueApi),
			AsRoute(connector.NewConnectorApi),
			AsRoute(activity.NewActivityApi),
			AsRoute(importer.NewImportApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewProgressApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) { utils.SetSecret(cfg.JWTSecret) },
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, janitorService janitor.JanitorService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return janitorService.Start()
					},
					OnStop: func(ctx context.Context) error {
						janitorService.Stop()
						return nil
					},
				})
			},
			func(lc fx.Lifecycle, queueService queue.QueueService) {
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						queueService.Shutdown()
						return nil
					},
				})
			},
			InitializeIndexes,
		),
	)

	app.Run()
}
