package parser

import (
	"regexp"
	"strings"
)

// Layout is the record layout of a movement line
type Layout int

const (
	// GeneralLayout lines carry a free-length registration followed by whitespace
	GeneralLayout Layout = iota
	// CommercialLayout lines start with a 7-character carrier callsign
	CommercialLayout
)

func (l Layout) String() string {
	if l == CommercialLayout {
		return "commercial"
	}
	return "general"
}

const callsignWidth = 7

// aircraftPattern splits an aircraft block such as "A320S" into type and
// class. Trailing characters after the class letter are dropped.
var aircraftPattern = regexp.MustCompile(`^([A-Z0-9]+)([GSNM])`)

var (
	timeOnly    = regexp.MustCompile(`^\d{4}$`)
	airportOnly = regexp.MustCompile(`^S[A-Z0-9]{3}$`)
)

// sliced holds what the field slicer extracted from a line
type sliced struct {
	layout       Layout
	registration string
	aircraftType string
	flightClass  string
	hasAircraft  bool
	hasClass     bool
}

// detectLayout picks the layout from the text after the record prefix
func (f Feed) detectLayout(region string) Layout {
	for _, p := range f.CarrierPrefixes {
		if strings.HasPrefix(region, p) {
			return CommercialLayout
		}
	}
	return GeneralLayout
}

// recordStart returns the offset of the first field after the record prefix
func (f Feed) recordStart(line string) int {
	if loc := f.RecordPrefix.FindStringIndex(line); loc != nil {
		return loc[1]
	}
	start, _, ok := nextToken(line, 0)
	if !ok {
		return len(line)
	}
	return start
}

// slice extracts registration and aircraft block from the unclaimed text of
// line between from and the end of the pre-rule region.
func (f Feed) slice(line string, used consumed, from int) (sliced, consumed) {
	view := used.mask(line)
	var out sliced

	regStart, _, ok := nextToken(view, from)
	if !ok {
		return out, used
	}

	var regEnd int
	out.layout = f.detectLayout(view[regStart:])
	switch out.layout {
	case CommercialLayout:
		regEnd = min(regStart+callsignWidth, len(view))
		// a callsign shorter than its column ends at the first blank
		if i := strings.IndexFunc(view[regStart:regEnd], func(r rune) bool { return r == ' ' }); i >= 0 {
			regEnd = regStart + i
		}
	default:
		_, regEnd, _ = nextToken(view, regStart)
	}
	out.registration = view[regStart:regEnd]
	used = used.with(regStart, regEnd)

	blockStart, blockEnd, ok := f.aircraftBlock(view, regEnd)
	if !ok {
		return out, used
	}
	block := view[blockStart:blockEnd]
	used = used.with(blockStart, blockEnd)
	out.hasAircraft = true
	if m := aircraftPattern.FindStringSubmatch(block); m != nil {
		out.aircraftType, out.flightClass, out.hasClass = m[1], m[2], true
	} else {
		out.aircraftType = block
	}
	return out, used
}

// aircraftBlock returns the first token at or after from that is neither a
// bare HHMM time nor an airport code. Skipped tokens stay unclaimed for the
// time and route resolvers.
func (f Feed) aircraftBlock(view string, from int) (start, end int, ok bool) {
	for {
		start, end, ok = nextToken(view, from)
		if !ok {
			return 0, 0, false
		}
		tok := view[start:end]
		if !timeOnly.MatchString(tok) && !airportOnly.MatchString(tok) {
			return start, end, true
		}
		from = end
	}
}
