package app

import (
	"context"
	"sync"

	"classroom-quiz-service/internal/domain"
)

// Broadcaster fans attempt events out to in-process subscribers, per quiz.
// It implements EventPublisher.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.AttemptEvent]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]map[chan domain.AttemptEvent]struct{}),
	}
}

// Publish never blocks: a full subscriber buffer drops its oldest event.
func (b *Broadcaster) Publish(_ context.Context, event domain.AttemptEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[event.QuizID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

// Subscribe returns a channel that receives events for quizID.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *Broadcaster) Subscribe(quizID string) (<-chan domain.AttemptEvent, func()) {
	ch := make(chan domain.AttemptEvent, 8)

	b.mu.Lock()
	subs, ok := b.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.AttemptEvent]struct{})
		b.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs, ok := b.subscribers[quizID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(b.subscribers, quizID)
		}
	}
	return ch, cancel
}

// SubscriberCount reports the number of live subscriptions for quizID.
func (b *Broadcaster) SubscriberCount(quizID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[quizID])
}
