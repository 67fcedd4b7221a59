package types

import (
	"time"
)

// NotAvailable is the placeholder for a field that could not be determined
const NotAvailable = "N/A"

// FlightRule is the flight-rule category of a movement
type FlightRule string

const (
	RuleIFR     FlightRule = "IFR"
	RuleVFR     FlightRule = "VFR"
	RuleUnknown FlightRule = NotAvailable
)

// RawLog represents one raw movement log as received from a feed or upload
type RawLog struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
}

// FlightRecord represents one parsed airport movement
type FlightRecord struct {
	Timestamp    *time.Time `json:"timestamp"`
	Matricula    string     `json:"matricula"`
	TipoAeronave string     `json:"tipo_aeronave"`
	FlightClass  string     `json:"flight_class"`
	Origem       string     `json:"origem"`
	Destino      string     `json:"destino"`
	RegraVoo     FlightRule `json:"regra_voo"`
	Pista        string     `json:"pista"`
	Responsavel  string     `json:"responsavel"`
}

// NewFlightRecord returns a record with every field set to its sentinel
func NewFlightRecord() FlightRecord {
	return FlightRecord{
		Matricula:    NotAvailable,
		TipoAeronave: NotAvailable,
		FlightClass:  NotAvailable,
		Origem:       NotAvailable,
		Destino:      NotAvailable,
		RegraVoo:     RuleUnknown,
		Pista:        "",
		Responsavel:  NotAvailable,
	}
}

// Upload represents a saved batch of flight records
type Upload struct {
	ID            string     `json:"uploadId"`
	UserID        string     `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	RecordCount   int        `json:"recordCount"`
	ICAOCode      string     `json:"icaoCode"`
	DataDate      *time.Time `json:"dataDate"`
	ExpectedTotal int        `json:"expectedTotal"`
	Source        string     `json:"source,omitempty"`
}

// UploadEvent is published whenever an upload is saved
type UploadEvent struct {
	UploadID    string    `json:"upload_id"`
	UserID      string    `json:"user_id"`
	Source      string    `json:"source"`
	RecordCount int       `json:"record_count"`
	SavedAt     time.Time `json:"saved_at"`
}

// DailySummary aggregates the movements of one UTC day
type DailySummary struct {
	Day      time.Time      `json:"day"`
	Total    int            `json:"total"`
	ByRule   map[string]int `json:"by_rule"`
	ByRunway map[string]int `json:"by_runway"`
}

// SystemStats is a snapshot of the recorder's processing counters
type SystemStats struct {
	Time           time.Time
	RawLogs        uint64
	UploadsSaved   uint64
	FailedLogs     uint64
	LinesAccepted  uint64
	LinesSkipped   uint64
	RecordsSaved   uint64
	LineFailures   uint64
	FieldMisses    []uint64 // indexed by parser field
	LastLogTime    time.Time
	ProcessingTime time.Duration
	Uptime         time.Duration
}
