package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/parser"
	"github.com/saviobatista/movement-logger/internal/types"
)

// ErrNoStore is returned by Persist when no store was set
var ErrNoStore = errors.New("stats store not set")

// Store persists statistics snapshots
type Store interface {
	StoreSystemStats(ctx context.Context, stats *types.SystemStats) error
}

// Stats tracks raw log processing statistics
type Stats struct {
	RawLogs       uint64
	UploadsSaved  uint64
	FailedLogs    uint64
	LinesAccepted uint64
	LinesSkipped  uint64
	RecordsSaved  uint64
	LineFailures  uint64

	// FieldMisses is indexed by parser.Field
	FieldMisses [parser.NumFields]uint64

	lastLogTime    time.Time
	processingTime time.Duration
	started        time.Time

	clock  clockwork.Clock
	store  Store
	logger *zap.Logger

	mu sync.RWMutex
}

// New creates a new Stats instance
func New(clock clockwork.Clock, logger *zap.Logger) *Stats {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := clock.Now()
	return &Stats{
		lastLogTime: now,
		started:     now,
		clock:       clock,
		logger:      logger,
	}
}

// SetStore sets where Persist writes snapshots
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// IncrementRawLogs counts a received raw log and marks the time it arrived
func (s *Stats) IncrementRawLogs() {
	atomic.AddUint64(&s.RawLogs, 1)
	s.mu.Lock()
	s.lastLogTime = s.clock.Now()
	s.mu.Unlock()
}

// IncrementFailedLogs counts a raw log that could not be stored
func (s *Stats) IncrementFailedLogs() {
	atomic.AddUint64(&s.FailedLogs, 1)
}

// RecordResult adds the line and miss counts of a parsing run
func (s *Stats) RecordResult(res *parser.Result) {
	atomic.AddUint64(&s.LinesAccepted, uint64(len(res.Records)))
	atomic.AddUint64(&s.LinesSkipped, uint64(res.Skipped))
	atomic.AddUint64(&s.LineFailures, uint64(res.Failures()))
	for f, n := range res.MissCounts() {
		if n > 0 {
			atomic.AddUint64(&s.FieldMisses[f], n)
		}
	}
}

// RecordSaved counts a saved upload and its records
func (s *Stats) RecordSaved(records int) {
	atomic.AddUint64(&s.UploadsSaved, 1)
	atomic.AddUint64(&s.RecordsSaved, uint64(records))
}

// AddProcessingTime adds to the total processing time
func (s *Stats) AddProcessingTime(d time.Duration) {
	s.mu.Lock()
	s.processingTime += d
	s.mu.Unlock()
}

// Snapshot returns a copy of the current statistics
func (s *Stats) Snapshot() *types.SystemStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	misses := make([]uint64, len(s.FieldMisses))
	for i := range s.FieldMisses {
		misses[i] = atomic.LoadUint64(&s.FieldMisses[i])
	}
	return &types.SystemStats{
		Time:           now,
		RawLogs:        atomic.LoadUint64(&s.RawLogs),
		UploadsSaved:   atomic.LoadUint64(&s.UploadsSaved),
		FailedLogs:     atomic.LoadUint64(&s.FailedLogs),
		LinesAccepted:  atomic.LoadUint64(&s.LinesAccepted),
		LinesSkipped:   atomic.LoadUint64(&s.LinesSkipped),
		RecordsSaved:   atomic.LoadUint64(&s.RecordsSaved),
		LineFailures:   atomic.LoadUint64(&s.LineFailures),
		FieldMisses:    misses,
		LastLogTime:    s.lastLogTime,
		ProcessingTime: s.processingTime,
		Uptime:         now.Sub(s.started),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"Raw Logs: %d\n"+
			"Failed Logs: %d\n"+
			"Uploads Saved: %d\n"+
			"Records Saved: %d\n"+
			"Lines Accepted: %d\n"+
			"Lines Skipped: %d\n"+
			"Line Failures: %d\n"+
			"Last Log Time: %s\n"+
			"Processing Time: %s\n"+
			"Uptime: %s",
		snap.RawLogs,
		snap.FailedLogs,
		snap.UploadsSaved,
		snap.RecordsSaved,
		snap.LinesAccepted,
		snap.LinesSkipped,
		snap.LineFailures,
		snap.LastLogTime.Format(time.RFC3339),
		snap.ProcessingTime,
		snap.Uptime,
	)
}

// Persist stores the current statistics
func (s *Stats) Persist(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return ErrNoStore
	}
	return store.StoreSystemStats(ctx, s.Snapshot())
}

// StartPersistence persists statistics every interval until ctx is done,
// then once more.
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is already cancelled; the final write gets its own deadline
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := s.Persist(final); err != nil {
				s.logger.Warn("failed to persist final statistics", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.Chan():
			if err := s.Persist(ctx); err != nil {
				s.logger.Warn("failed to persist statistics", zap.Error(err))
			}
		}
	}
}
