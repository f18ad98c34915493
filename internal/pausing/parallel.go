package pausing

import (
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/inodb/pauseidx/internal/annotation"
)

// WorkItem is a sample waiting to be loaded.
type WorkItem struct {
	Seq    int
	Sample Sample
}

// WorkResult holds the outcome of loading one sample.
type WorkResult struct {
	Seq    int
	Sample Sample
	Result *SampleResult
	Err    error
}

// ParallelLoad loads samples using a pool of workers. The gene slice is
// shared read-only; every worker opens and closes its own tracks.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func (l *Loader) ParallelLoad(items <-chan WorkItem, genes []annotation.Gene, threshold float64, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range items {
				res, err := l.LoadSample(item.Sample, genes, threshold)
				results <- WorkResult{
					Seq:    item.Seq,
					Sample: item.Sample,
					Result: res,
					Err:    err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}

// RunSamples loads every sample and returns one outcome per sample in
// input order. A failing sample does not stop the others. With workers
// <= 1 samples are loaded one after another.
func (l *Loader) RunSamples(samples []Sample, genes []annotation.Gene, threshold float64, workers int) []WorkResult {
	outcomes := make([]WorkResult, 0, len(samples))

	if workers == 1 || len(samples) <= 1 {
		for i, s := range samples {
			res, err := l.LoadSample(s, genes, threshold)
			outcomes = append(outcomes, WorkResult{Seq: i, Sample: s, Result: res, Err: err})
		}
		l.logFailures(outcomes)
		return outcomes
	}

	items := make(chan WorkItem, len(samples))
	for i, s := range samples {
		items <- WorkItem{Seq: i, Sample: s}
	}
	close(items)

	// fn never fails, so the error is always nil.
	_ = OrderedCollect(l.ParallelLoad(items, genes, threshold, workers), func(r WorkResult) error {
		outcomes = append(outcomes, r)
		return nil
	})
	l.logFailures(outcomes)
	return outcomes
}

func (l *Loader) logFailures(outcomes []WorkResult) {
	for _, o := range outcomes {
		if o.Err != nil {
			l.logger.Warn("sample failed",
				zap.String("sample", o.Sample.Name),
				zap.String("path", o.Sample.Path),
				zap.Error(o.Err))
		}
	}
}

// Succeeded returns the results of the samples that loaded, in order.
func Succeeded(outcomes []WorkResult) []*SampleResult {
	var out []*SampleResult
	for _, o := range outcomes {
		if o.Err == nil {
			out = append(out, o.Result)
		}
	}
	return out
}

// Failures joins the errors of all failed samples, or returns nil.
func Failures(outcomes []WorkResult) error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}
