package main

import (
	"context"
	"fmt"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Amadou-dot/restockd/internal/auth"
	"github.com/Amadou-dot/restockd/internal/aws"
	"github.com/Amadou-dot/restockd/internal/cart"
	"github.com/Amadou-dot/restockd/internal/catalog"
	"github.com/Amadou-dot/restockd/internal/checkout"
	"github.com/Amadou-dot/restockd/internal/config"
	"github.com/Amadou-dot/restockd/internal/events"
	"github.com/Amadou-dot/restockd/internal/handlers"
	"github.com/Amadou-dot/restockd/internal/idempotency"
	"github.com/Amadou-dot/restockd/internal/invoice"
	"github.com/Amadou-dot/restockd/internal/logging"
	"github.com/Amadou-dot/restockd/internal/metrics"
	"github.com/Amadou-dot/restockd/internal/orders"
	"github.com/Amadou-dot/restockd/internal/payment"
	"github.com/Amadou-dot/restockd/internal/rabbitmq"
	"github.com/Amadou-dot/restockd/internal/storage"
)

func setupRouter(logger zerolog.Logger, cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.RequestLogger(logger))
	r.Use(auth.Middleware())

	handlers.RegisterRoutes(r, cfg)

	return r
}

// newPublisher picks the broker order events go to. The returned func
// releases broker resources.
func newPublisher(cfg *config.Config, clients *aws.AWSClients, logger zerolog.Logger) (events.Publisher, func(), error) {
	switch cfg.EventsBackend {
	case "sqs":
		if cfg.OrdersQueueURL == "" {
			return nil, nil, fmt.Errorf("ORDERS_QUEUE_URL is required for the sqs backend")
		}
		return aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL), func() {}, nil
	case "amqp":
		pool, err := rabbitmq.NewChannelPool(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.ChannelPoolSize, logger)
		if err != nil {
			return nil, nil, err
		}
		return rabbitmq.NewPublisher(pool, cfg.RabbitMQQueue), pool.Close, nil
	default:
		return events.Noop{}, func() {}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.IsLocal()).With().Str("service", "api").Logger()

	// prices go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api stopped")
		os.Exit(1)
	}
}

// run wires the API and serves until the server stops. Everything it opens
// is released before it returns.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	clients, err := aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpointOverride)
	if err != nil {
		return fmt.Errorf("init aws clients: %w", err)
	}

	var products catalog.Repository = catalog.NewDynamoRepository(clients.DynamoDB, cfg.ProductsTable)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("product cache unreachable, reads fall through to DynamoDB")
		}
		products = catalog.NewCachedRepository(products, rdb, cfg.ProductCacheTTL, logger)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("product cache enabled")
	}

	publisher, closePublisher, err := newPublisher(cfg, clients, logger)
	if err != nil {
		return fmt.Errorf("init %s event publisher: %w", cfg.EventsBackend, err)
	}
	defer closePublisher()

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return fmt.Errorf("invalid TAX_RATE %q: %w", cfg.TaxRate, err)
	}

	blobs := storage.New(clients.S3, cfg.S3Bucket, cfg.AWSRegion)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.OrdersUserIndex)
	carts := cart.NewService(cart.NewDynamoRepository(clients.DynamoDB, cfg.CartsTable), products, logger)
	renderer := invoice.NewRenderer(invoice.Company{
		Name:    cfg.CompanyName,
		Address: cfg.CompanyAddress,
		Phone:   cfg.CompanyPhone,
		Email:   cfg.CompanyEmail,
	}, taxRate)

	payments := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		ClientURL:     cfg.ClientURL,
		Currency:      cfg.Currency,
	}, nil, logger)
	if cfg.StripeSecretKey == "" {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set; checkout endpoints will fail")
	}

	svc := checkout.NewService(checkout.Deps{
		Carts:       carts,
		Payments:    payments,
		Orders:      orderStore,
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		Invoices:    invoice.NewService(renderer, blobs, orderStore, logger),
		Events:      publisher,
		Metrics:     metrics.NewRecorder(clients.CloudWatch, cfg.MetricsNamespace, "api", logger),
		Logger:      logger,
	})

	r := setupRouter(logger, handlers.HandlerConfig{
		Catalog:  catalog.NewService(products, blobs, cfg.ProductsPerPage, logger),
		Cart:     carts,
		Checkout: svc,
		Orders:   orderStore,
	})

	if cfg.IsLocal() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("running local server")
		return r.Run(addr)
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (lambdaevents.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
	return nil
}
