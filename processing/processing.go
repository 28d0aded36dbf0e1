// Package processing takes care of the logistics around fanning work out over
// goroutines and collecting the results. Not the work itself.
package processing

import (
	"context"
	"sync"
)

type job[In any] struct {
	index int
	input In
}

type result[Out any] struct {
	index  int
	output Out
	err    error
}

// Map applies f to every input using at most workers goroutines. Outputs and
// errors are returned in input order; one failing input does not stop the others.
// Inputs not yet started when ctx is done get ctx.Err().
func Map[In, Out any](ctx context.Context, workers int, inputs []In, f func(context.Context, In) (Out, error)) ([]Out, []error) {
	outputs := make([]Out, len(inputs))
	errs := make([]error, len(inputs))
	if len(inputs) == 0 {
		return outputs, errs
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan job[In])
	results := make(chan result[Out])

	// start the workers
	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result[Out]{index: j.index, err: err}
					continue
				}
				out, err := f(ctx, j.input)
				results <- result[Out]{index: j.index, output: out, err: err}
			}
		}()
	}

	// feed the inputs, close results once every worker is done
	go func() {
		for i, input := range inputs {
			jobs <- job[In]{index: i, input: input}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		outputs[r.index] = r.output
		errs[r.index] = r.err
	}
	return outputs, errs
}
