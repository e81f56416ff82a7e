package store

import (
	"context"

	"github.com/kadirpekel/tabula/pkg/event"
)

// busSink adapts a Store to the bus write-through interface.
type busSink struct {
	store Store
}

var _ event.Sink = (*busSink)(nil)

// NewBusSink wraps a store so the event bus can write through to it.
func NewBusSink(s Store) event.Sink {
	return &busSink{store: s}
}

func (s *busSink) SaveEvent(env *event.Envelope) error {
	return s.store.SaveEvent(context.Background(), env)
}
