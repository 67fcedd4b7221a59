// Package uploads turns movement logs into saved uploads and answers queries
// about them.
package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/db"
	"github.com/saviobatista/movement-logger/internal/observability"
	"github.com/saviobatista/movement-logger/internal/parser"
	"github.com/saviobatista/movement-logger/internal/types"
)

var (
	// ErrNoRecords means no line of the input was accepted
	ErrNoRecords = errors.New("no valid records found")
	// ErrInvalidRecords means a save request carried no records
	ErrInvalidRecords = errors.New("invalid or empty records")
	ErrNotFound       = errors.New("upload not found")
	// ErrForbidden means the upload belongs to another user
	ErrForbidden = errors.New("upload belongs to another user")
	// ErrInvalidRange means a summary range is empty or reversed
	ErrInvalidRange = errors.New("invalid date range")
)

// Store persists uploads. *db.Client implements it.
type Store interface {
	CreateUpload(ctx context.Context, upload *types.Upload, records []types.FlightRecord) error
	ListUploads(ctx context.Context, userID string) ([]types.Upload, error)
	GetUpload(ctx context.Context, id string) (*types.Upload, error)
	GetRecords(ctx context.Context, uploadID string) ([]types.FlightRecord, error)
	DeleteUpload(ctx context.Context, id string) (int64, error)
	DailySummaries(ctx context.Context, userID string, from, to time.Time) ([]types.DailySummary, error)
}

// Cache holds previews and summaries. *redis.Client implements it.
type Cache interface {
	StorePreview(ctx context.Context, digest string, preview interface{}) error
	GetPreview(ctx context.Context, digest string, target interface{}) (bool, error)
	SummaryGeneration(ctx context.Context, userID string) (int64, error)
	InvalidateSummaries(ctx context.Context, userID string) error
	StoreSummary(ctx context.Context, userID string, gen int64, from, to time.Time, summaries []types.DailySummary) error
	GetSummary(ctx context.Context, userID string, gen int64, from, to time.Time) ([]types.DailySummary, bool, error)
}

// Publisher announces saved uploads. *nats.Client implements it.
type Publisher interface {
	PublishUploadEvent(ev *types.UploadEvent) error
}

// File is one uploaded log
type File struct {
	Name string
	Data []byte
}

// PreviewResult is the parse of a batch of files
type PreviewResult struct {
	parser.Result
	// Cached is set when the result came from the preview cache, which
	// keeps neither diagnostics nor skip counts
	Cached bool `json:"-"`
}

// SaveRequest is the body of a save call
type SaveRequest struct {
	Records       []types.FlightRecord `json:"records"`
	ICAOCode      string               `json:"icao_code"`
	DataDate      *time.Time           `json:"data_date"`
	ExpectedTotal int                  `json:"expected_total"`
	Source        string               `json:"source,omitempty"`
}

// Service implements the upload workflow
type Service struct {
	store    Store
	cache    Cache
	events   Publisher
	parser   *parser.Parser
	metrics  *observability.Metrics
	clock    clockwork.Clock
	logger   *zap.Logger
	encoding string
}

type Option func(*Service)

// WithCache enables preview and summary caching
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithPublisher enables upload events
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithParser(p *parser.Parser) Option {
	return func(s *Service) { s.parser = p }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithEncoding sets the encoding of uploaded files
func WithEncoding(enc string) Option {
	return func(s *Service) { s.encoding = enc }
}

// New creates an upload service on top of store
func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.parser == nil {
		s.parser = parser.New()
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetricsForTesting()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Preview decodes and parses files as one batch. A cached preview is returned
// without parsing, so it only counts as a preview cache hit in the metrics.
func (s *Service) Preview(ctx context.Context, files []File) (*PreviewResult, error) {
	digest := s.digest(files)
	if s.cache != nil {
		var cached parser.Result
		found, err := s.cache.GetPreview(ctx, digest, &cached)
		if err != nil {
			s.logger.Warn("preview cache lookup failed", zap.Error(err))
		}
		s.metrics.CacheResult("preview", found)
		if found && len(cached.Records) > 0 {
			return &PreviewResult{Result: cached, Cached: true}, nil
		}
	}

	res, err := s.parse(ctx, files)
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, ErrNoRecords
	}

	if s.cache != nil {
		if err := s.cache.StorePreview(ctx, digest, res); err != nil {
			s.logger.Warn("failed to cache preview", zap.Error(err))
		}
	}
	return &PreviewResult{Result: *res}, nil
}

func (s *Service) parse(ctx context.Context, files []File) (*parser.Result, error) {
	contents := make([]string, len(files))
	for i, f := range files {
		text, err := Decode(s.encoding, f.Data)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", f.Name, err)
		}
		contents[i] = text
	}

	start := s.clock.Now()
	res, err := s.parser.ParseFiles(ctx, contents)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveResult(res, s.clock.Since(start).Seconds())
	s.logFailures(files, res)
	return res, nil
}

func (s *Service) logFailures(files []File, res *parser.Result) {
	for _, d := range res.Diagnostics {
		if !d.Failed() {
			continue
		}
		name := ""
		if d.File < len(files) {
			name = files[d.File].Name
		}
		s.logger.Warn("unexpected failure while parsing line",
			zap.String("file", name),
			zap.Int("line", d.Line),
			zap.Int("record", d.Record),
			zap.Stringers("misses", d.Misses),
		)
	}
}

func (s *Service) digest(files []File) string {
	h := sha256.New()
	h.Write([]byte(s.encoding))
	h.Write([]byte{0})
	h.Write([]byte(s.parser.Feed().Name))
	var n [8]byte
	for _, f := range files {
		binary.BigEndian.PutUint64(n[:], uint64(len(f.Data)))
		h.Write(n[:])
		h.Write(f.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save stores a batch of records as a new upload owned by userID
func (s *Service) Save(ctx context.Context, userID string, req SaveRequest) (*types.Upload, error) {
	if len(req.Records) == 0 {
		return nil, ErrInvalidRecords
	}

	upload := &types.Upload{
		ID:            uuid.NewString(),
		UserID:        userID,
		CreatedAt:     s.clock.Now().UTC(),
		RecordCount:   len(req.Records),
		ICAOCode:      req.ICAOCode,
		DataDate:      req.DataDate,
		ExpectedTotal: req.ExpectedTotal,
		Source:        req.Source,
	}
	if err := s.store.CreateUpload(ctx, upload, req.Records); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	s.metrics.RecordsSaved.Add(float64(upload.RecordCount))
	s.logger.Info("saved upload",
		zap.String("upload_id", upload.ID),
		zap.String("user_id", userID),
		zap.Int("records", upload.RecordCount),
	)

	s.invalidate(ctx, userID)
	if s.events != nil {
		ev := &types.UploadEvent{
			UploadID:    upload.ID,
			UserID:      userID,
			Source:      upload.Source,
			RecordCount: upload.RecordCount,
			SavedAt:     upload.CreatedAt,
		}
		if err := s.events.PublishUploadEvent(ev); err != nil {
			s.logger.Warn("failed to publish upload event", zap.String("upload_id", upload.ID), zap.Error(err))
		}
	}
	return upload, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSummaries(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate summaries", zap.String("user_id", userID), zap.Error(err))
	}
}

// Ingest parses one log from a feed and saves it as an upload
func (s *Service) Ingest(ctx context.Context, userID, source, content string) (*types.Upload, *parser.Result, error) {
	start := s.clock.Now()
	res, err := s.parser.ParseContext(ctx, content)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.ObserveResult(res, s.clock.Since(start).Seconds())
	s.logFailures([]File{{Name: source}}, res)
	if len(res.Records) == 0 {
		return nil, res, ErrNoRecords
	}

	upload, err := s.Save(ctx, userID, SaveRequest{
		Records:       res.Records,
		ICAOCode:      res.ICAOCode,
		DataDate:      res.DataDate,
		ExpectedTotal: res.ExpectedTotal,
		Source:        source,
	})
	return upload, res, err
}

// List returns the uploads of userID, newest first
func (s *Service) List(ctx context.Context, userID string) ([]types.Upload, error) {
	return s.store.ListUploads(ctx, userID)
}

func (s *Service) owned(ctx context.Context, userID, uploadID string) (*types.Upload, error) {
	upload, err := s.store.GetUpload(ctx, uploadID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if upload.UserID != userID {
		return nil, ErrForbidden
	}
	return upload, nil
}

// Records returns the records of one of userID's uploads
func (s *Service) Records(ctx context.Context, userID, uploadID string) ([]types.FlightRecord, error) {
	if _, err := s.owned(ctx, userID, uploadID); err != nil {
		return nil, err
	}
	return s.store.GetRecords(ctx, uploadID)
}

// Delete removes one of userID's uploads with all its records
func (s *Service) Delete(ctx context.Context, userID, uploadID string) error {
	if _, err := s.owned(ctx, userID, uploadID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteUpload(ctx, uploadID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", uploadID, err)
	}
	s.metrics.UploadsDeleted.Inc()
	s.logger.Info("deleted upload", zap.String("upload_id", uploadID), zap.Int64("records", deleted))
	s.invalidate(ctx, userID)
	return nil
}

// Summarize aggregates userID's records per UTC day in [from, to)
func (s *Service) Summarize(ctx context.Context, userID string, from, to time.Time) ([]types.DailySummary, error) {
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}

	var gen int64
	cacheable := false
	if s.cache != nil {
		var err error
		gen, err = s.cache.SummaryGeneration(ctx, userID)
		if err != nil {
			s.logger.Warn("summary cache unavailable", zap.Error(err))
		} else {
			cacheable = true
			cached, found, err := s.cache.GetSummary(ctx, userID, gen, from, to)
			if err != nil {
				s.logger.Warn("summary cache lookup failed", zap.Error(err))
			}
			s.metrics.CacheResult("summary", found)
			if found {
				return cached, nil
			}
		}
	}

	summaries, err := s.store.DailySummaries(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize uploads: %w", err)
	}

	if cacheable {
		if err := s.cache.StoreSummary(ctx, userID, gen, from, to, summaries); err != nil {
			s.logger.Warn("failed to cache summary", zap.Error(err))
		}
	}
	return summaries, nil
}
