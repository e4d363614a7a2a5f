// Package arrivals gathers live arrival predictions for every line serving a stop.
package arrivals

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/catchtrain/pkg/metrics"
	"github.com/travigo/catchtrain/pkg/tfl"
	"github.com/travigo/catchtrain/pkg/util"
)

const DefaultMaxConcurrentFetches = 8

// Feed is the arrival data source, satisfied by *tfl.Client.
type Feed interface {
	StopLines(ctx context.Context, stopID string) ([]string, error)
	LineArrivals(ctx context.Context, lineID string, stopID string) ([]tfl.ArrivalPrediction, error)
}

type Catalog struct {
	feed          Feed
	maxConcurrent int
	filter        *vm.Program
	metrics       *metrics.Collector
}

type Option func(*Catalog)

func WithMaxConcurrentFetches(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithFilter keeps only arrivals the compiled predicate accepts.
func WithFilter(program *vm.Program) Option {
	return func(c *Catalog) {
		c.filter = program
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Catalog) {
		c.metrics = collector
	}
}

// CompileFilter compiles a boolean expression over Arrival fields,
// e.g. `TimeToStation > 60 && LineID != "waterloo-city"`.
func CompileFilter(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression, expr.Env(Arrival{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile arrival filter: %w", err)
	}

	return program, nil
}

func NewCatalog(feed Feed, opts ...Option) *Catalog {
	c := &Catalog{
		feed:          feed,
		maxConcurrent: DefaultMaxConcurrentFetches,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Filtered returns a catalog sharing this feed that also applies program.
func (c *Catalog) Filtered(program *vm.Program) *Catalog {
	filtered := *c
	filtered.filter = program
	return &filtered
}

// FetchArrivals returns the unsorted arrivals at stopID for the lines in
// lineFilter that serve it, or every serving line when lineFilter is empty.
// Failures degrade to fewer results rather than an error.
func (c *Catalog) FetchArrivals(ctx context.Context, stopID string, lineFilter []string) []Arrival {
	servingLines, err := c.feed.StopLines(ctx, stopID)
	if err != nil {
		log.Warn().Err(err).Str("stop", stopID).Msg("Failed to look up lines serving stop")
		return []Arrival{}
	}

	lines := candidateLines(servingLines, lineFilter)

	p := pool.NewWithResults[[]Arrival]().WithMaxGoroutines(c.maxConcurrent)
	for _, line := range lines {
		line := line

		p.Go(func() []Arrival {
			return c.fetchLine(ctx, line, stopID)
		})
	}

	arrivals := []Arrival{}
	for _, lineArrivals := range p.Wait() {
		arrivals = append(arrivals, lineArrivals...)
	}

	c.metrics.ArrivalsReturned(len(arrivals))
	log.Debug().Str("stop", stopID).Strs("lines", lines).Int("arrivals", len(arrivals)).Msg("Fetched arrivals")

	return arrivals
}

// FetchArrivalsAsync calls callback exactly once after every line has been fetched.
func (c *Catalog) FetchArrivalsAsync(ctx context.Context, stopID string, lineFilter []string, callback func([]Arrival)) {
	go func() {
		callback(c.FetchArrivals(ctx, stopID, lineFilter))
	}()
}

func (c *Catalog) fetchLine(ctx context.Context, lineID string, stopID string) []Arrival {
	predictions, err := c.feed.LineArrivals(ctx, lineID, stopID)
	if err != nil {
		c.metrics.LineFetchFailed(lineID)
		log.Warn().Err(err).Str("line", lineID).Str("stop", stopID).Msg("Failed to fetch line arrivals")
		return nil
	}

	arrivals := make([]Arrival, 0, len(predictions))
	for _, prediction := range predictions {
		arrival, err := fromPrediction(prediction, stopID)
		if err != nil {
			c.metrics.ArrivalDropped("timestamp")
			log.Debug().Err(err).Str("line", lineID).Str("value", prediction.ExpectedArrival).Msg("Dropping arrival with unparseable timestamp")
			continue
		}

		if !c.accept(arrival) {
			c.metrics.ArrivalDropped("filter")
			continue
		}

		arrivals = append(arrivals, arrival)
	}

	return arrivals
}

func (c *Catalog) accept(arrival Arrival) bool {
	if c.filter == nil {
		return true
	}

	result, err := expr.Run(c.filter, arrival)
	if err != nil {
		log.Debug().Err(err).Str("line", arrival.LineID).Msg("Arrival filter failed")
		return false
	}

	accepted, _ := result.(bool)
	return accepted
}

// candidateLines intersects the requested lines with the serving lines,
// case-insensitively, keeping the serving line ids.
func candidateLines(servingLines []string, lineFilter []string) []string {
	servingLines = util.RemoveDuplicateStrings(servingLines, nil)

	requested := util.RemoveDuplicateStrings(util.LowerAll(lineFilter), nil)
	if len(requested) == 0 {
		return servingLines
	}

	wanted := map[string]bool{}
	for _, line := range requested {
		wanted[line] = true
	}

	var lines []string
	for _, line := range servingLines {
		if wanted[strings.ToLower(line)] {
			lines = append(lines, line)
		}
	}

	return lines
}
