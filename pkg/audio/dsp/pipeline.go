package dsp

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxcap/pkg/audio"
)

// Result is the outcome of running a [Pipeline] over one buffer.
type Result struct {
	// Buffer is the final output. It aliases the input when no stage
	// changed anything.
	Buffer audio.Buffer

	// Applied lists the stages that produced a new buffer, in order.
	Applied []string

	// Skipped lists the stages that reported no change, in order.
	Skipped []string
}

// Observer is notified of every stage outcome.
type Observer func(stage string, changed bool)

// Pipeline runs an ordered list of stages, feeding each stage the output of
// the last stage that made a change. A Pipeline is immutable and safe for
// concurrent use.
type Pipeline struct {
	stages   []Stage
	observer Observer
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithObserver registers fn to receive every stage outcome.
func WithObserver(fn Observer) PipelineOption {
	return func(p *Pipeline) { p.observer = fn }
}

// NewPipeline creates a pipeline running stages in the given order.
func NewPipeline(stages []Stage, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{stages: append([]Stage(nil), stages...)}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Stages returns the names of the configured stages in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run applies every stage to in.
func (p *Pipeline) Run(in audio.Buffer) Result {
	res := Result{Buffer: in}
	for _, s := range p.stages {
		out, changed := s.Apply(res.Buffer)
		if changed {
			res.Buffer = out
			res.Applied = append(res.Applied, s.Name())
		} else {
			res.Skipped = append(res.Skipped, s.Name())
		}
		if p.observer != nil {
			p.observer(s.Name(), changed)
		}
	}
	return res
}

// ProcessBatch runs p over every buffer concurrently, at most limit at a
// time (limit <= 0 means GOMAXPROCS). Results are returned in input order.
// Only context cancellation produces an error.
func ProcessBatch(ctx context.Context, p *Pipeline, bufs []audio.Buffer, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(bufs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, buf := range bufs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("dsp: batch item %d: %w", i, err)
			}
			results[i] = p.Run(buf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
