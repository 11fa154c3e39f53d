package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"go.uber.org/zap"

	"github.com/vietbevis/clothes-shop-chat/internal/errs"
	"github.com/vietbevis/clothes-shop-chat/internal/event"
	"github.com/vietbevis/clothes-shop-chat/internal/metrics"
)

type Settings struct {
	NameServer    string
	Topic         string
	Tag           string
	ProducerGroup string
	ConsumerGroup string

	ConnectRetries int
	ConnectBackoff time.Duration
}

// Producer publishes lifecycle events onto the shared topic. Events carrying
// the same ConvID hash to the same queue, so per-conversation order survives
// the relay.
type Producer struct {
	cfg Settings
	p   rmq.Producer
	log *zap.Logger
}

// NewProducer connects with capped exponential backoff; exhausting the retry
// ceiling returns the last error (fatal at startup: the service cannot run
// without its relay).
func NewProducer(cfg Settings, log *zap.Logger) (*Producer, error) {
	if cfg.NameServer == "" {
		return nil, fmt.Errorf("rocketmq: missing name-server")
	}
	if cfg.ProducerGroup == "" {
		return nil, fmt.Errorf("rocketmq: missing producer group")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("rocketmq: missing topic")
	}

	prd, err := rmq.NewProducer(
		producer.WithNameServer([]string{cfg.NameServer}),
		producer.WithGroupName(cfg.ProducerGroup),
		producer.WithRetry(2),
		producer.WithQueueSelector(producer.NewHashQueueSelector()),
	)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < cfg.ConnectRetries; attempt++ {
		if lastErr = prd.Start(); lastErr == nil {
			return &Producer{cfg: cfg, p: prd, log: log}, nil
		}
		d := backoff(cfg.ConnectBackoff, attempt)
		log.Warn("rocketmq producer start failed, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", d), zap.Error(lastErr))
		time.Sleep(d)
	}
	return nil, fmt.Errorf("rocketmq producer start: retries exhausted: %w", lastErr)
}

// Publish sends the envelope synchronously; any broker fault surfaces to the
// caller so a failed publish fails the originating request.
func (p *Producer) Publish(ctx context.Context, evt *event.Envelope) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}
	if evt.TS == 0 {
		evt.TS = time.Now().Unix()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return errs.Internal(err)
	}
	m := primitive.NewMessage(p.cfg.Topic, b)
	m.WithShardingKey(evt.ConvID)
	if p.cfg.Tag != "" {
		m.WithTag(p.cfg.Tag)
	}
	if _, err := p.p.SendSync(ctx, m); err != nil {
		metrics.PublishFail.Inc()
		return errs.BrokerUnavailable(err)
	}
	metrics.EventsPublished.Inc()
	return nil
}

func (p *Producer) Close() error {
	if p.p != nil {
		return p.p.Shutdown()
	}
	return nil
}
