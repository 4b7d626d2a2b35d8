package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"classroom-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const attemptChannelPattern = "quiz:*:attempts"

func attemptChannel(quizID string) string {
	return "quiz:" + quizID + ":attempts"
}

// EventPublisher publishes attempt events on a per-quiz Redis channel so every
// service instance can forward them to its own feed subscribers.
type EventPublisher struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.AttemptEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, attemptChannel(event.QuizID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Sink receives relayed events; app.Broadcaster satisfies it.
type Sink interface {
	Publish(ctx context.Context, event domain.AttemptEvent) error
}

// EventRelay forwards events from Redis pub/sub into a local sink.
type EventRelay struct {
	client *redis.Client
	sink   Sink
	logger *zap.Logger
}

func NewEventRelay(client *redis.Client, sink Sink, logger *zap.Logger) *EventRelay {
	return &EventRelay{client: client, sink: sink, logger: logger}
}

// Run blocks until ctx is canceled. ready, if non-nil, is closed once Redis
// confirms the subscription.
func (r *EventRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.PSubscribe(ctx, attemptChannelPattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", attemptChannelPattern, err)
	}
	if ready != nil {
		close(ready)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *EventRelay) forward(ctx context.Context, msg *redis.Message) {
	var event domain.AttemptEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		r.logger.Warn("decode attempt event", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if event.QuizID == "" {
		event.QuizID = strings.TrimSuffix(strings.TrimPrefix(msg.Channel, "quiz:"), ":attempts")
	}
	if err := r.sink.Publish(ctx, event); err != nil {
		r.logger.Warn("forward attempt event", zap.String("quiz_id", event.QuizID), zap.Error(err))
	}
}
