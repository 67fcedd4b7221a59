// Package parser turns airport-movement log text into flight records.
//
// Parsing never fails on content: lines too short to hold a movement and
// header lines are skipped, every other line yields exactly one record, and
// fields that cannot be recovered keep their sentinel values. What went wrong
// on a line is reported through Result.Diagnostics.
package parser

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/saviobatista/movement-logger/internal/types"
)

// Parser converts movement log text into records for one feed
type Parser struct {
	feed    Feed
	workers int
}

// Option configures a Parser
type Option func(*Parser)

// WithFeed selects the feed layout
func WithFeed(f Feed) Option {
	return func(p *Parser) {
		p.feed = f
	}
}

// WithWorkers parses lines on up to n goroutines. Output order and the
// reference date are the same as with a single worker.
func WithWorkers(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a parser for DefaultFeed unless configured otherwise
func New(opts ...Option) *Parser {
	p := &Parser{feed: DefaultFeed, workers: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses content with the default feed
func Parse(content string) *Result {
	return New().Parse(content)
}

// Feed returns the feed the parser was built for
func (p *Parser) Feed() Feed {
	return p.feed
}

// Parse parses one log. It cannot fail.
func (p *Parser) Parse(content string) *Result {
	res, _ := p.ParseContext(context.Background(), content)
	return res
}

// ParseContext parses one log, stopping early if ctx is cancelled. The only
// error it returns is ctx.Err().
func (p *Parser) ParseContext(ctx context.Context, content string) (*Result, error) {
	return p.parseFile(ctx, 0, content)
}

// ParseFiles parses several logs as one batch. Records are concatenated in
// input order, expected totals are summed and the reference date is the
// first one resolved in file order.
func (p *Parser) ParseFiles(ctx context.Context, contents []string) (*Result, error) {
	batch := p.newResult()
	for i, content := range contents {
		res, err := p.parseFile(ctx, i, content)
		if err != nil {
			return nil, err
		}
		offset := len(batch.Records)
		batch.Records = append(batch.Records, res.Records...)
		for _, d := range res.Diagnostics {
			d.Record += offset
			batch.Diagnostics = append(batch.Diagnostics, d)
		}
		batch.ExpectedTotal += res.ExpectedTotal
		batch.Skipped += res.Skipped
		if batch.DataDate == nil && res.DataDate != nil {
			batch.DataDate = res.DataDate
		}
	}
	return batch, nil
}

func (p *Parser) newResult() *Result {
	return &Result{
		Records:  make([]types.FlightRecord, 0),
		ICAOCode: p.feed.HomeICAO,
	}
}

// candidate is an accepted line and its 1-based position in the input
type candidate struct {
	number int
	text   string
}

type lineOutcome struct {
	record types.FlightRecord
	misses []Miss
}

func (p *Parser) parseFile(ctx context.Context, file int, content string) (*Result, error) {
	lines := strings.Split(content, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}

	res := p.newResult()
	res.ExpectedTotal = p.feed.ScanHeader(lines)

	candidates := make([]candidate, 0, len(lines))
	for i, line := range lines {
		if !p.feed.Accepts(line) {
			if strings.TrimSpace(line) != "" {
				res.Skipped++
			}
			continue
		}
		candidates = append(candidates, candidate{number: i + 1, text: line})
	}

	outcomes, err := p.parseLines(ctx, candidates)
	if err != nil {
		return nil, err
	}

	res.Records = make([]types.FlightRecord, 0, len(outcomes))
	for i, out := range outcomes {
		res.Records = append(res.Records, out.record)
		if res.DataDate == nil && out.record.Timestamp != nil {
			ts := *out.record.Timestamp
			res.DataDate = &ts
		}
		if len(out.misses) > 0 {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				File:   file,
				Line:   candidates[i].number,
				Record: i,
				Misses: out.misses,
			})
		}
	}
	return res, nil
}

func (p *Parser) parseLines(ctx context.Context, candidates []candidate) ([]lineOutcome, error) {
	outcomes := make([]lineOutcome, len(candidates))

	if p.workers <= 1 || len(candidates) < 2 {
		for i, c := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i].record, outcomes[i].misses = p.feed.parseLine(c.text)
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i].record, outcomes[i].misses = p.feed.parseLine(c.text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// parseLine extracts one record. Whatever was resolved before a panic is
// kept and the panic becomes an UnexpectedFailure miss.
func (f Feed) parseLine(line string) (rec types.FlightRecord, misses []Miss) {
	rec = types.NewFlightRecord()
	stage := FieldRule
	miss := func(field Field) {
		misses = append(misses, Miss{Kind: FieldMiss, Field: field})
	}
	defer func() {
		if r := recover(); r != nil {
			misses = append(misses, Miss{Kind: UnexpectedFailure, Field: stage, Detail: fmt.Sprint(r)})
		}
	}()

	split := f.splitRule(line)
	rec.RegraVoo = split.rule
	if split.found {
		post := line[split.postStart:]
		stage = FieldRunway
		if rwy, ok := f.runway(post); ok {
			rec.Pista = rwy
		} else {
			miss(FieldRunway)
		}
		stage = FieldResponsible
		if who, ok := responsible(post); ok {
			rec.Responsavel = who
		} else {
			miss(FieldResponsible)
		}
	} else {
		miss(FieldRule)
	}

	// pre-rule steps never see the rule token or anything after it
	used := consumed{}.with(split.preEnd, len(line))
	start := f.recordStart(line)
	used = used.with(0, start)

	stage = FieldRegistration
	var s sliced
	s, used = f.slice(line, used, start)
	if s.registration != "" {
		rec.Matricula = s.registration
	} else {
		miss(FieldRegistration)
	}
	if s.hasAircraft {
		rec.TipoAeronave = s.aircraftType
	} else {
		miss(FieldAircraftType)
	}
	if s.hasClass {
		rec.FlightClass = s.flightClass
	} else {
		miss(FieldFlightClass)
	}

	stage = FieldTime
	hhmm, used, ok := findTime(line, used)
	if ok {
		ts, err := f.timestamp(line, hhmm)
		if err == nil {
			rec.Timestamp = &ts
		} else {
			misses = append(misses, Miss{Kind: TimestampInvalid, Field: FieldTime, Detail: err.Error()})
		}
	} else {
		miss(FieldTime)
	}

	stage = FieldRoute
	rt, _ := f.resolveRoute(line, used, rec.Pista != "")
	rec.Origem, rec.Destino = rt.origin, rt.destination
	if rt.codes == 0 {
		miss(FieldRoute)
	}
	return rec, misses
}
