// Package runservice owns conversion runs for the long-lived surfaces: it
// serialises runs, remembers the latest report and records every run in
// the ledger.
package runservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/starford/logbridge/internal/apperr"
	"github.com/starford/logbridge/internal/convert"
	"github.com/starford/logbridge/internal/ledger"
	"github.com/starford/logbridge/internal/resolver"
)

// Builder creates a pipeline for one run. extra carries per-run options
// such as the stale outputs of the previous run.
type Builder func(extra ...convert.Option) *convert.Pipeline

// Listener is notified after every run.
type Listener func(r *convert.Report, err error)

// Preview is a rendered document that was not written.
type Preview struct {
	Source  string `json:"source"`
	Output  string `json:"output"`
	Content string `json:"content"`
}

// Service coordinates pipeline runs and the ledger.
type Service struct {
	build  Builder
	ledger ledger.Store
	logger *slog.Logger

	running atomic.Bool

	mu        sync.RWMutex
	latest    *convert.Report
	pipeline  *convert.Pipeline
	listeners []Listener
}

// NewService creates a run service. store may be nil when no ledger is
// configured.
func NewService(build Builder, store ledger.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{build: build, ledger: store, logger: logger}
}

// OnRun registers a listener called after every run.
func (s *Service) OnRun(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Convert runs the pipeline once. A second call while a run is in flight
// fails with apperr.ErrBusy.
func (s *Service) Convert(ctx context.Context) (*convert.Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, apperr.ErrBusy
	}
	defer s.running.Store(false)

	p := s.build(convert.WithStale(s.staleOutputs()))
	report, err := p.Run(ctx)
	if err == nil && s.ledger != nil {
		if lerr := s.ledger.RecordRun(report); lerr != nil {
			s.logger.Warn("runservice: record run failed", slog.String("run_id", report.RunID), slog.String("error", lerr.Error()))
		}
	}

	s.mu.Lock()
	if err == nil {
		s.latest, s.pipeline = report, p
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(report, err)
	}
	return report, err
}

// staleOutputs returns what the previous real run wrote.
func (s *Service) staleOutputs() []string {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil && !latest.DryRun {
		return latest.OutputPaths()
	}
	if s.ledger == nil {
		return nil
	}
	out, err := s.ledger.LastOutputs()
	if err != nil {
		s.logger.Warn("runservice: load previous outputs failed", slog.String("error", err.Error()))
		return nil
	}
	return out
}

// Latest returns the report of the most recent successful run.
func (s *Service) Latest() (*convert.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, apperr.ErrNoRun
	}
	return s.latest, nil
}

// LookupBlock finds where a source identifier was published, first in the
// latest run and then in the ledger.
func (s *Service) LookupBlock(id string) (resolver.Target, error) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil && latest.Resolution != nil {
		if t, ok := latest.Resolution.Map.Lookup(id); ok {
			return t, nil
		}
	}
	if s.ledger != nil {
		return s.ledger.LookupBlock(id)
	}
	return resolver.Target{}, apperr.ErrNotFound
}

// Preview renders one source document against the latest identifier map.
func (s *Service) Preview(source string) (*Preview, error) {
	s.mu.RLock()
	latest, p := s.latest, s.pipeline
	s.mu.RUnlock()
	if latest == nil {
		return nil, apperr.ErrNoRun
	}
	out, content, err := p.Preview(latest.Resolution.Map, source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &Preview{Source: source, Output: out, Content: content}, nil
}

// Runs lists recorded runs, newest first.
func (s *Service) Runs(limit int) ([]ledger.RunRow, error) {
	if s.ledger == nil {
		return []ledger.RunRow{}, nil
	}
	return s.ledger.Runs(limit)
}
