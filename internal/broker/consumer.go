package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"go.uber.org/zap"

	"github.com/vietbevis/clothes-shop-chat/internal/event"
	"github.com/vietbevis/clothes-shop-chat/internal/metrics"
	"github.com/vietbevis/clothes-shop-chat/internal/store"
)

// Dispatcher receives each consumed event exactly once per delivery attempt.
// A per-event error is logged by the consumer and must not stop the loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt *event.Envelope) error
}

// Consumer is the long-lived consumption loop: orderly within a queue, so
// per-conversation order is preserved, at-least-once overall.
type Consumer struct {
	cfg      Settings
	c        rmq.PushConsumer
	disp     Dispatcher
	store    *store.Store
	dedupTTL time.Duration
	log      *zap.Logger
}

func NewConsumer(cfg Settings, disp Dispatcher, st *store.Store, dedupTTL time.Duration, log *zap.Logger) (*Consumer, error) {
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("rocketmq: missing consumer group")
	}
	c, err := rmq.NewPushConsumer(
		consumer.WithNameServer([]string{cfg.NameServer}),
		consumer.WithGroupName(cfg.ConsumerGroup),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
		consumer.WithConsumerOrder(true),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{cfg: cfg, c: c, disp: disp, store: st, dedupTTL: dedupTTL, log: log}, nil
}

// Start subscribes and starts the loop, retrying the broker connection with
// capped backoff up to the configured ceiling.
func (c *Consumer) Start() error {
	selector := consumer.MessageSelector{Type: consumer.TAG, Expression: "*"}
	if c.cfg.Tag != "" {
		selector.Expression = c.cfg.Tag
	}
	if err := c.c.Subscribe(c.cfg.Topic, selector, c.handle); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.ConnectRetries; attempt++ {
		if lastErr = c.c.Start(); lastErr == nil {
			return nil
		}
		d := backoff(c.cfg.ConnectBackoff, attempt)
		c.log.Warn("rocketmq consumer start failed, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", d), zap.Error(lastErr))
		time.Sleep(d)
	}
	return fmt.Errorf("rocketmq consumer start: retries exhausted: %w", lastErr)
}

func (c *Consumer) handle(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, m := range msgs {
		metrics.Consumed.Inc()

		var evt event.Envelope
		if err := json.Unmarshal(m.Body, &evt); err != nil {
			metrics.EventDecodeFail.Inc()
			c.log.Warn("event decode failed", zap.Error(err))
			continue // drop bad message
		}

		// Dedupe by relay-assigned event id. A Redis fault must not block
		// delivery: fall through and accept a possible duplicate push.
		if evt.EventID > 0 {
			ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
			first, err := c.store.DedupeEvent(ctx2, evt.EventID, c.dedupTTL)
			cancel()
			if err == nil && !first {
				metrics.Duplicates.Inc()
				continue
			}
		}

		if err := c.disp.Dispatch(ctx, &evt); err != nil {
			// One bad event must not halt delivery for the rest.
			c.log.Warn("event dispatch failed",
				zap.Int64("event_id", evt.EventID),
				zap.String("kind", string(evt.Kind)),
				zap.Error(err))
		}
	}
	return consumer.ConsumeSuccess, nil
}

// Shutdown stops consuming; in-flight dispatch finishes before the broker
// connection closes.
func (c *Consumer) Shutdown() error {
	return c.c.Shutdown()
}
