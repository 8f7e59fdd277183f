package export

import (
	"context"
	"strconv"
	"time"

	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	"github.com/reduct56/cookiefest-hackaton/pkg/kafka"
	"github.com/reduct56/cookiefest-hackaton/pkg/resilience"
)

// Publisher is the part of the Kafka producer the sink uses.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
	Close() error
}

// PageMessage is the payload of one Kafka message.
type PageMessage struct {
	RunID   string                `json:"run_id"`
	Page    int                   `json:"page"`
	Pages   int                   `json:"pages"`
	Columns []string              `json:"columns"`
	Records []ranker.ResultRecord `json:"records"`
}

// KafkaSink publishes each page as one message keyed by run ID, so all pages
// of a run land on the same partition in order.
type KafkaSink struct {
	publisher Publisher
	retry     resilience.RetryConfig
}

func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{
		publisher: p,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Close() error { return s.publisher.Close() }

func (s *KafkaSink) WritePage(ctx context.Context, runID string, page Page) error {
	event := kafka.Event{
		Key: runID,
		Value: PageMessage{
			RunID:   runID,
			Page:    page.Number,
			Pages:   page.Total,
			Columns: ranker.Columns,
			Records: page.Records,
		},
		Headers: map[string]string{
			"run_id": runID,
			"page":   strconv.Itoa(page.Number),
		},
	}
	return resilience.Retry(ctx, "publish-page", s.retry, func() error {
		return s.publisher.PublishBatch(ctx, []kafka.Event{event})
	})
}
