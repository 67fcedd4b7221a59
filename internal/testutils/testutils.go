package testutils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saviobatista/movement-logger/internal/types"
)

// Movement describes one line of a mock SBIZ movement log. Empty fields are
// left out of the line.
type Movement struct {
	Seq          string
	Date         string // DDMMYY
	Registration string
	Aircraft     string
	Destination  string
	Origin       string
	Time         string // HHMM
	Rule         string // IV or VV
	Runway       string
	Responsible  string
}

// Line renders the movement as a feed line
func (m Movement) Line() string {
	seq := m.Seq
	if seq == "" {
		seq = "11"
	}
	pre := joinNonEmpty(m.Registration, m.Aircraft, m.Destination, m.Origin, m.Time)
	post := joinNonEmpty(m.Rule, m.Runway, m.Responsible)
	return strings.TrimRight(fmt.Sprintf("SBIZAIZ%s%s %s %s", seq, m.Date, pre, post), " ")
}

// DefaultMovement is a well-formed commercial movement on 01 Jan 2025
func DefaultMovement() Movement {
	return Movement{
		Date:         "010125",
		Registration: "ABC1234",
		Aircraft:     "A320S",
		Destination:  "SBGR",
		Origin:       "SBKP",
		Time:         "1430",
		Rule:         "IV",
		Runway:       "07",
		Responsible:  "JOAO",
	}
}

// HeaderLine renders a report header declaring expected records
func HeaderLine(expected int) string {
	return fmt.Sprintf("SBIZAIZ0 RELATORIO DE MOVIMENTO %05d", expected)
}

// MockMovementLog builds a log with a header followed by the given lines
func MockMovementLog(lines ...string) string {
	return HeaderLine(len(lines)) + "\n" + strings.Join(lines, "\n") + "\n"
}

// MockRawLog creates a raw log message for testing
func MockRawLog(content string) *types.RawLog {
	return &types.RawLog{
		ID:         "raw-test",
		Source:     "test-source",
		Content:    content,
		ReceivedAt: time.Now().UTC(),
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
