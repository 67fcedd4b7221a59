package parser

import (
	"fmt"
	"time"

	"github.com/saviobatista/movement-logger/internal/types"
)

// Field names an extracted record field
type Field int

const (
	FieldRegistration Field = iota
	FieldAircraftType
	FieldFlightClass
	FieldRoute
	FieldRule
	FieldRunway
	FieldResponsible
	FieldTime

	// NumFields is the number of Field values
	NumFields
)

var fieldNames = [NumFields]string{
	"registration",
	"aircraft_type",
	"flight_class",
	"route",
	"rule",
	"runway",
	"responsible",
	"time",
}

func (f Field) String() string {
	if f < 0 || f >= NumFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// MissKind classifies a per-line extraction problem
type MissKind int

const (
	// FieldMiss means a pattern was not found; the field keeps its sentinel
	FieldMiss MissKind = iota + 1
	// TimestampInvalid means date and time were present but not a valid instant
	TimestampInvalid
	// UnexpectedFailure means the line panicked; the partial record was kept
	UnexpectedFailure
)

func (k MissKind) String() string {
	switch k {
	case FieldMiss:
		return "field_miss"
	case TimestampInvalid:
		return "timestamp_invalid"
	case UnexpectedFailure:
		return "unexpected_failure"
	default:
		return "unknown"
	}
}

func (k MissKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Miss is one extraction problem on a line
type Miss struct {
	Kind   MissKind `json:"kind"`
	Field  Field    `json:"field"`
	Detail string   `json:"detail,omitempty"`
}

func (m Miss) String() string {
	if m.Detail == "" {
		return fmt.Sprintf("%s(%s)", m.Kind, m.Field)
	}
	return fmt.Sprintf("%s(%s): %s", m.Kind, m.Field, m.Detail)
}

// Diagnostic lists the misses of one accepted line
type Diagnostic struct {
	File   int    `json:"file"`
	Line   int    `json:"line"`
	Record int    `json:"record"`
	Misses []Miss `json:"misses"`
}

// Failed reports whether the line hit an unexpected failure
func (d Diagnostic) Failed() bool {
	for _, m := range d.Misses {
		if m.Kind == UnexpectedFailure {
			return true
		}
	}
	return false
}

// Result is the outcome of one parsing run. It is not modified after Parse returns.
type Result struct {
	Records       []types.FlightRecord `json:"records"`
	ICAOCode      string               `json:"icao_code"`
	DataDate      *time.Time           `json:"data_date"`
	ExpectedTotal int                  `json:"expected_total"`

	// Skipped counts lines dropped by the classifier
	Skipped     int          `json:"-"`
	Diagnostics []Diagnostic `json:"-"`
}

// MissCounts tallies misses per field across the run
func (r *Result) MissCounts() [NumFields]uint64 {
	var counts [NumFields]uint64
	for _, d := range r.Diagnostics {
		for _, m := range d.Misses {
			if m.Field >= 0 && m.Field < NumFields {
				counts[m.Field]++
			}
		}
	}
	return counts
}

// Failures counts lines that hit an unexpected failure
func (r *Result) Failures() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Failed() {
			n++
		}
	}
	return n
}
