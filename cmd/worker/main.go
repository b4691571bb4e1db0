package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Amadou-dot/restockd/internal/aws"
	"github.com/Amadou-dot/restockd/internal/config"
	"github.com/Amadou-dot/restockd/internal/invoice"
	"github.com/Amadou-dot/restockd/internal/logging"
	"github.com/Amadou-dot/restockd/internal/metrics"
	"github.com/Amadou-dot/restockd/internal/orders"
	"github.com/Amadou-dot/restockd/internal/rabbitmq"
	"github.com/Amadou-dot/restockd/internal/storage"
)

func newProcessor(cfg *config.Config, clients *aws.AWSClients, logger zerolog.Logger) (*Processor, error) {
	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("invalid TAX_RATE %q: %w", cfg.TaxRate, err)
	}
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.OrdersUserIndex)
	renderer := invoice.NewRenderer(invoice.Company{
		Name:    cfg.CompanyName,
		Address: cfg.CompanyAddress,
		Phone:   cfg.CompanyPhone,
		Email:   cfg.CompanyEmail,
	}, taxRate)
	invoices := invoice.NewService(renderer, storage.New(clients.S3, cfg.S3Bucket, cfg.AWSRegion), orderStore, logger)
	recorder := metrics.NewRecorder(clients.CloudWatch, cfg.MetricsNamespace, "worker", logger)
	return NewProcessor(orderStore, invoices, recorder, logger), nil
}

// consume runs the AMQP consumer until SIGINT or SIGTERM.
func consume(cfg *config.Config, p *Processor, logger zerolog.Logger) error {
	pool, err := rabbitmq.NewChannelPool(cfg.RabbitMQURL, cfg.RabbitMQQueue, 1, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := rabbitmq.NewConsumer(pool.Connection(), cfg.RabbitMQQueue, cfg.ChannelPoolSize, p.Process, logger)
	logger.Info().Str("queue", cfg.RabbitMQQueue).Msg("consuming order events")
	return c.Run(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.IsLocal()).With().Str("service", "worker").Logger()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	clients, err := aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpointOverride)
	if err != nil {
		return fmt.Errorf("init aws clients: %w", err)
	}
	p, err := newProcessor(cfg, clients, logger)
	if err != nil {
		return fmt.Errorf("init processor: %w", err)
	}

	if cfg.EventsBackend == "amqp" {
		return consume(cfg, p, logger)
	}

	// RUN_LOCAL feeds a single SQS record from LOCAL_SQS_BODY through the handler.
	if cfg.IsLocal() {
		return runLocal(ctx, p, os.Getenv("LOCAL_SQS_BODY"))
	}

	lambda.Start(p.Handle)
	return nil
}

func runLocal(ctx context.Context, p *Processor, body string) error {
	if body == "" {
		body = `{"type":"order.completed","order_id":"local-order-1","user_id":"local-user"}`
	}
	event := lambdaevents.SQSEvent{
		Records: []lambdaevents.SQSMessage{{MessageId: "local-1", Body: body}},
	}
	resp, err := p.Handle(ctx, event)
	if err != nil {
		return fmt.Errorf("local handler: %w", err)
	}
	if n := len(resp.BatchItemFailures); n > 0 {
		return fmt.Errorf("local message failed (%d failures)", n)
	}
	return nil
}
