package packwriter

import "github.com/gitdelta/packcore/heuristics"

// Options carries the writer's tunable knobs, exposed as functional
// options so callers can experiment without forking the package.
type Options struct {
	windowSize         int
	maxDeltaChainDepth int
	minSizeForDelta    int
	concurrency        int
}

// Option configures an Options value.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		windowSize:         heuristics.WindowSize,
		maxDeltaChainDepth: heuristics.MaxDeltaChainDepth,
		minSizeForDelta:    heuristics.MinSizeForDelta,
		concurrency:        1,
	}
}

// WithWindowSize overrides the number of preceding entries considered
// as delta-base candidates for each target (default:
// heuristics.WindowSize).
func WithWindowSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.windowSize = n
		}
	}
}

// WithMaxDeltaChainDepth overrides the maximum delta-chain depth
// (default: heuristics.MaxDeltaChainDepth).
func WithMaxDeltaChainDepth(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.maxDeltaChainDepth = n
		}
	}
}

// WithMinSizeForDelta overrides the smallest payload size the writer
// will attempt to deltify (default: heuristics.MinSizeForDelta).
func WithMinSizeForDelta(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.minSizeForDelta = n
		}
	}
}

// WithConcurrency sets how many candidate deltas EncodeConcurrent may
// compute in parallel per window (default: 1, i.e. sequential). Final
// emission order and the running content hash are always strictly
// sequential regardless of this setting.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}
