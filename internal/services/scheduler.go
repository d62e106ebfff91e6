package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler fires periodic incremental backups. Start and Stop are
// idempotent; a failed scheduled run is logged and the loop keeps going.
type Scheduler struct {
	engine *Engine
	log    zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
	running  bool
}

func NewScheduler(engine *Engine, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{engine: engine, interval: interval, log: log}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.stop = make(chan struct{})
	s.running = true
	go s.loop(s.stop, s.interval)
	s.log.Info().Dur("interval", s.interval).Msg("backup scheduler started")
}

// SetInterval changes the schedule period. A running loop is restarted so the
// new interval takes effect immediately, not at the next Start.
func (s *Scheduler) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
	if !s.running {
		return
	}
	close(s.stop)
	s.stop = make(chan struct{})
	go s.loop(s.stop, interval)
	s.log.Info().Dur("interval", interval).Msg("backup scheduler interval changed")
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
	s.log.Info().Msg("backup scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.engine.RunIncremental(context.Background()); err != nil {
				s.log.Error().Err(err).Msg("scheduled backup failed")
			}
		}
	}
}
