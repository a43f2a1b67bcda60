package inbound

import (
	"context"
	"sync"

	"github.com/goliatone/go-featurehooks/core"
)

type stubIngestor struct {
	mu     sync.Mutex
	events []core.ChangeEvent
	result core.IngestResult
	err    error
}

func (s *stubIngestor) HandleChangeEvent(_ context.Context, event core.ChangeEvent) (core.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.err != nil {
		return core.IngestResult{EventID: event.EventID()}, s.err
	}
	result := s.result
	if result.EventID == "" {
		result.EventID = event.EventID()
	}
	return result, nil
}

func (s *stubIngestor) received() []core.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ChangeEvent(nil), s.events...)
}
