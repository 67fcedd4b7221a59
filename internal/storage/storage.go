// Package storage archives raw movement logs into daily files.
package storage

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/saviobatista/movement-logger/internal/types"
)

const dateLayout = "2006-01-02"

// FileName returns the archive file name for a UTC day
func FileName(day string) string {
	return fmt.Sprintf("movements_%s.log", day)
}

// Storage appends raw logs to the current day's file. The first write of a
// new UTC day closes the previous file and compresses it.
type Storage struct {
	outputDir string
	clock     clockwork.Clock
	logger    *zap.Logger

	mu          sync.Mutex
	file        *os.File
	currentDate string
}

// New creates a new Storage instance
func New(outputDir string, clock clockwork.Clock, logger *zap.Logger) *Storage {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{
		outputDir: outputDir,
		clock:     clock,
		logger:    logger,
	}
}

// Start creates the output directory and opens today's file
func (s *Storage) Start() error {
	if err := os.MkdirAll(s.outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openFile(s.today())
}

// Stop closes the current file
func (s *Storage) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// WriteRawLog appends a raw log's content, newline-terminated
func (s *Storage) WriteRawLog(raw *types.RawLog) error {
	return s.WriteMessage([]byte(raw.Content))
}

// WriteMessage writes a message to the current log file
func (s *Storage) WriteMessage(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if today := s.today(); s.file == nil || today != s.currentDate {
		if err := s.rotate(today); err != nil {
			return err
		}
	}

	if len(message) == 0 || message[len(message)-1] != '\n' {
		message = append(message[:len(message):len(message)], '\n')
	}
	if _, err := s.file.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// CurrentFile returns the path of the file being written
func (s *Storage) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentDate == "" {
		return ""
	}
	return filepath.Join(s.outputDir, FileName(s.currentDate))
}

func (s *Storage) today() string {
	return s.clock.Now().UTC().Format(dateLayout)
}

// rotate closes the open file, compresses it when its day is over and opens
// the file for day
func (s *Storage) rotate(day string) error {
	prevDate := s.currentDate
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			s.logger.Warn("failed to close archive file", zap.Error(err))
		}
		s.file = nil
	}

	if prevDate != "" && prevDate != day {
		prev := filepath.Join(s.outputDir, FileName(prevDate))
		if err := compressFile(prev); err != nil {
			s.logger.Error("failed to compress archive", zap.String("file", prev), zap.Error(err))
		} else {
			s.logger.Info("compressed archive", zap.String("file", prev+".gz"))
		}
	}

	return s.openFile(day)
}

func (s *Storage) openFile(day string) error {
	filename := filepath.Join(s.outputDir, FileName(day))
	//nolint:gosec // filename is built from the configured directory and a date
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	s.file = file
	s.currentDate = day
	return nil
}

// compressFile gzips path into path.gz and removes the original
func compressFile(path string) error {
	//nolint:gosec // path is controlled by the storage
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	//nolint:gosec // path is controlled by the storage
	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(target)
	gz.Name = filepath.Base(path)
	if _, err := io.Copy(gz, source); err != nil {
		_ = target.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		_ = target.Close()
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
