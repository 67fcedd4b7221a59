package parser

import (
	"regexp"

	"github.com/saviobatista/movement-logger/internal/types"
)

// Feed describes the column layout of one movement-log source. Offsets are
// fixed per feed and never guessed from the input.
type Feed struct {
	Name string
	// HomeICAO is used as origin/destination when a line names no airport
	HomeICAO string
	// HeaderMarker starts the report header line
	HeaderMarker string
	// RecordPrefix matches the station code, sequence and date block at the
	// start of a record line
	RecordPrefix *regexp.Regexp
	// DateOffset is the byte offset of the DDMMYY date in a record line
	DateOffset    int
	MinLineLength int
	// CarrierPrefixes select the commercial layout
	CarrierPrefixes []string
	RulePattern     *regexp.Regexp
	RuleCodes       map[string]types.FlightRule
	RunwayPattern   *regexp.Regexp
}

// DefaultFeed is the movement log of the SBIZ tower
var DefaultFeed = Feed{
	Name:            "SBIZ",
	HomeICAO:        "SBIZ",
	HeaderMarker:    "SBIZAIZ0",
	RecordPrefix:    regexp.MustCompile(`^SBIZAIZ\d+\s*`),
	DateOffset:      9,
	MinLineLength:   30,
	CarrierPrefixes: []string{"AZU", "GLO", "TAM", "ONE", "TTL", "LAP"},
	RulePattern:     regexp.MustCompile(`\s(IV|VV)(?:\s|$)`),
	RuleCodes: map[string]types.FlightRule{
		"IV": types.RuleIFR,
		"VV": types.RuleVFR,
	},
	RunwayPattern: regexp.MustCompile(`(07|25)`),
}

var feeds = map[string]Feed{
	DefaultFeed.Name: DefaultFeed,
}

// LookupFeed returns the registered feed with the given name
func LookupFeed(name string) (Feed, bool) {
	f, ok := feeds[name]
	return f, ok
}
