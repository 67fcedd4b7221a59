package parser

import "regexp"

// airportPattern matches the region's ICAO codes, which all start with S
var airportPattern = regexp.MustCompile(`S[A-Z0-9]{3}`)

type route struct {
	origin, destination string
	codes               int
}

// resolveRoute assigns origin and destination from the unclaimed text. The
// feed writes destination before origin; a lone code is the destination only
// when the line also names a runway.
func (f Feed) resolveRoute(line string, used consumed, hasRunway bool) (route, consumed) {
	view := used.mask(line)
	locs := airportPattern.FindAllStringIndex(view, -1)
	for _, loc := range locs {
		used = used.with(loc[0], loc[1])
	}

	switch {
	case len(locs) >= 2:
		return route{
			destination: view[locs[0][0]:locs[0][1]],
			origin:      view[locs[1][0]:locs[1][1]],
			codes:       len(locs),
		}, used
	case len(locs) == 1:
		code := view[locs[0][0]:locs[0][1]]
		if hasRunway {
			return route{origin: f.HomeICAO, destination: code, codes: 1}, used
		}
		return route{origin: code, destination: f.HomeICAO, codes: 1}, used
	default:
		return route{origin: f.HomeICAO, destination: f.HomeICAO}, used
	}
}
