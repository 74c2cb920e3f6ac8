// Package sweep runs independent simulation configurations across a
// parameter grid or a seed ensemble, with bounded parallelism. Every point
// gets a fresh configuration and a derived seed, so sweeps are reproducible
// regardless of scheduling.
package sweep

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// Point is one parameter assignment of a grid.
type Point map[string]float64

func (p Point) clone() Point {
	c := make(Point, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Span is a linear range of one named parameter. Steps is the number of
// samples; descending spans (Max < Min) are allowed.
type Span struct {
	Name     string
	Min, Max float64
	Steps    int
}

func (s Span) validate() error {
	if s.Name == "" {
		return spin.Invalid("sweep.span", "parameter name is empty")
	}
	if s.Steps < 1 {
		return spin.Invalid("sweep.span", "%s: need at least one step, got %d", s.Name, s.Steps)
	}
	if math.IsNaN(s.Min) || math.IsInf(s.Min, 0) || math.IsNaN(s.Max) || math.IsInf(s.Max, 0) {
		return spin.Invalid("sweep.span", "%s: bounds must be finite", s.Name)
	}
	return nil
}

func (s Span) values() []float64 {
	if s.Steps == 1 {
		return []float64{s.Min}
	}
	vs := make([]float64, s.Steps)
	d := (s.Max - s.Min) / float64(s.Steps-1)
	for i := range vs {
		vs[i] = s.Min + float64(i)*d
	}
	vs[s.Steps-1] = s.Max
	return vs
}

// ParseSpan reads "name=min:max:steps" or "name=value" for a single point.
func ParseSpan(arg string) (Span, error) {
	name, spec, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return Span{}, spin.Invalid("sweep.span", "%q: want name=min:max:steps", arg)
	}
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return Span{}, spin.Invalid("sweep.span", "%q: %v", arg, err)
		}
		s := Span{Name: name, Min: v, Max: v, Steps: 1}
		return s, s.validate()
	case 3:
		min, err1 := strconv.ParseFloat(parts[0], 64)
		max, err2 := strconv.ParseFloat(parts[1], 64)
		steps, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return Span{}, spin.Invalid("sweep.span", "%q: want name=min:max:steps", arg)
		}
		s := Span{Name: name, Min: min, Max: max, Steps: steps}
		return s, s.validate()
	default:
		return Span{}, spin.Invalid("sweep.span", "%q: want name=min:max:steps", arg)
	}
}

// Grid expands spans into their cartesian product. The first span varies
// slowest; the expansion order is deterministic.
func Grid(spans ...Span) ([]Point, error) {
	if len(spans) == 0 {
		return nil, spin.Invalid("sweep.grid", "need at least one span")
	}
	seen := make(map[string]bool, len(spans))
	n := 1
	for _, s := range spans {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, spin.Invalid("sweep.grid", "duplicate parameter %q", s.Name)
		}
		seen[s.Name] = true
		n *= s.Steps
	}

	points := make([]Point, 0, n)
	var expand func(depth int, current Point)
	expand = func(depth int, current Point) {
		if depth == len(spans) {
			points = append(points, current.clone())
			return
		}
		for _, v := range spans[depth].values() {
			current[spans[depth].Name] = v
			expand(depth+1, current)
		}
	}
	expand(0, make(Point, len(spans)))
	return points, nil
}

// RunFunc executes one configuration. Implementations must build all mutable
// state fresh from pt and seed: the function runs concurrently for distinct
// points.
type RunFunc func(ctx context.Context, idx int, pt Point, seed int64) (map[string]float64, error)

// Result is one completed (or failed) point.
type Result struct {
	Index  int
	Point  Point
	Seed   int64
	Values map[string]float64
	Err    error
}

// Runner executes sweeps. The zero value runs with one worker per CPU and
// seed base zero.
type Runner struct {
	Workers  int
	BaseSeed int64
	Log      *zap.Logger
}

// Run evaluates fn at every point. Per-point failures are recorded in the
// result slice and do not stop the sweep; the returned error is non-nil only
// when the context ends the sweep early, in which case unstarted points carry
// the context error.
func (r *Runner) Run(ctx context.Context, points []Point, fn RunFunc) ([]Result, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(points) {
		workers = len(points)
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	results := make([]Result, len(points))
	done := make([]bool, len(points))
	for i, pt := range points {
		results[i] = Result{Index: i, Point: pt, Seed: r.BaseSeed + int64(i)}
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res := &results[idx]
				res.Values, res.Err = fn(ctx, idx, res.Point, res.Seed)
				done[idx] = true
				if res.Err != nil {
					log.Debug("sweep point failed", zap.Int("index", idx), zap.Error(res.Err))
				} else {
					log.Debug("sweep point done", zap.Int("index", idx))
				}
			}
		}()
	}

dispatch:
	for i := range points {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		for i := range results {
			if !done[i] && results[i].Err == nil {
				results[i].Err = err
			}
		}
		return results, err
	}
	return results, nil
}

// Ensemble evaluates the same point n times with consecutive seeds, the
// stochastic counterpart of a grid sweep.
func (r *Runner) Ensemble(ctx context.Context, n int, pt Point, fn RunFunc) ([]Result, error) {
	if n < 1 {
		return nil, spin.Invalid("sweep.ensemble", "need at least one run, got %d", n)
	}
	points := make([]Point, n)
	for i := range points {
		points[i] = pt.clone()
	}
	return r.Run(ctx, points, fn)
}

// Summary aggregates one metric across ensemble results.
type Summary struct {
	Mean, Std float64
	Runs      int // successful runs included
	Failed    int
}

// Aggregate reduces the named metric over all successful results.
func Aggregate(results []Result, metric string) (Summary, error) {
	var xs []float64
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		v, ok := r.Values[metric]
		if !ok {
			return Summary{}, fmt.Errorf("sweep: metric %q missing from run %d", metric, r.Index)
		}
		xs = append(xs, v)
	}
	if len(xs) == 0 {
		return Summary{Failed: failed}, fmt.Errorf("sweep: no successful runs to aggregate: %w", spin.ErrNumericalInstability)
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		std = 0
	}
	return Summary{Mean: mean, Std: std, Runs: len(xs), Failed: failed}, nil
}
