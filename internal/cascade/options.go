// Package cascade trains and serves the ordered stages of a taxonomy graph. Each stage
// consumes the predicted labels of its upstream stages, both at training and at serving
// time, so feature assembly is identical on both paths.
package cascade

import (
	"time"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/stage"
)

// DefaultWorkers is the predictor's default worker pool size.
const DefaultWorkers = 4

// Options configure training and prediction.
type Options struct {
	MinSupport int
	Stage      stage.Options
	// Workers bounds prediction concurrency.
	Workers int
}

// DefaultOptions returns the default training and prediction options.
func DefaultOptions() Options {
	return Options{
		MinSupport: stage.DefaultMinSupport,
		Stage:      stage.DefaultOptions(),
		Workers:    DefaultWorkers,
	}
}

func (o Options) withDefaults() Options {
	if o.MinSupport <= 0 {
		o.MinSupport = stage.DefaultMinSupport
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	return o
}

// chain is a sequence of trained stages in topological order.
type chain []*stage.Stage

// run applies the stages in order, adding each stage's predictions to the batch as an
// upstream column before the next stage runs.
func (c chain) run(batch features.Batch, observe func(name string, rows int, d time.Duration)) (map[string][]string, error) {
	out := make(map[string][]string, len(c))
	for _, s := range c {
		start := time.Now()
		predictions, err := s.Predict(batch)
		if err != nil {
			return nil, err
		}
		if observe != nil {
			observe(s.Name(), batch.Len(), time.Since(start))
		}
		out[s.Name()] = predictions
		batch = batch.WithUpstream(s.Name(), predictions)
	}
	return out, nil
}
