package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Supervisor runs one coordinator per pool, each in its own goroutine.
type Supervisor struct {
	coordinators map[string]*Coordinator
	ids          []string
	logger       *slog.Logger
}

// NewSupervisor registers the coordinators. Pool ids must be unique.
func NewSupervisor(logger *slog.Logger, coordinators ...*Coordinator) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{coordinators: make(map[string]*Coordinator, len(coordinators)), logger: logger}
	for _, c := range coordinators {
		if c == nil {
			return nil, fmt.Errorf("settlement: nil coordinator")
		}
		if _, dup := s.coordinators[c.PoolID()]; dup {
			return nil, fmt.Errorf("settlement: duplicate pool %s", c.PoolID())
		}
		s.coordinators[c.PoolID()] = c
		s.ids = append(s.ids, c.PoolID())
	}
	sort.Strings(s.ids)
	return s, nil
}

// Run blocks until the context is cancelled and every coordinator returned.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, id := range s.ids {
		c := s.coordinators[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("coordinator started", slog.String("pool", c.PoolID()))
			err := c.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				s.logger.Error("coordinator stopped", slog.String("pool", c.PoolID()), slog.Any("error", err))
				return
			}
			s.logger.Info("coordinator stopped", slog.String("pool", c.PoolID()))
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Pool returns the coordinator for the id.
func (s *Supervisor) Pool(id string) (*Coordinator, error) {
	c, ok := s.coordinators[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return c, nil
}

// Statuses returns the status of every pool ordered by id.
func (s *Supervisor) Statuses() []Status {
	out := make([]Status, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.coordinators[id].Status())
	}
	return out
}
