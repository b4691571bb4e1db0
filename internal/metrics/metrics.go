// Package metrics publishes service counters to CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/Amadou-dot/restockd/internal/aws"
)

// Counter names.
const (
	OrdersCompleted   = "OrdersCompleted"
	InvoiceFailures   = "InvoiceFailures"
	CheckoutsStarted  = "CheckoutsStarted"
	CheckoutsReplayed = "CheckoutsReplayed"
)

// Counter is what services depend on.
type Counter interface {
	Count(ctx context.Context, name string, n float64)
}

// Recorder sends one datum per call. A Recorder without a client, or a nil
// Recorder, drops everything.
type Recorder struct {
	client    aws.CloudWatchAPI
	namespace string
	service   string
	logger    zerolog.Logger
	nowFunc   func() time.Time
}

func NewRecorder(client aws.CloudWatchAPI, namespace, service string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		client:    client,
		namespace: namespace,
		service:   service,
		logger:    logger.With().Str("component", "metrics").Logger(),
		nowFunc:   time.Now,
	}
}

// Count adds n to the named counter. Failures are logged, never returned.
func (r *Recorder) Count(ctx context.Context, name string, n float64) {
	if r == nil || r.client == nil || r.namespace == "" {
		return
	}
	now := r.nowFunc().UTC()
	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &r.namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: &name,
			Value:      &n,
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  &now,
			Dimensions: []cwtypes.Dimension{{
				Name:  awsString("Service"),
				Value: &r.service,
			}},
		}},
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("metric", name).Msg("failed to put metric")
	}
}

func awsString(s string) *string { return &s }
