package downloader

import (
	"context"
)

// Pool caps how many blocking extractor calls run at once, process-wide.
// Cancellation is cooperative: when the caller's context ends, Run returns
// immediately while the extractor call keeps running in its goroutine; the
// slot is released and the result discarded when it eventually finishes.
type Pool struct {
	sem chan struct{}
}

func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	return &Pool{sem: make(chan struct{}, limit)}
}

func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() {
	<-p.sem
}

// Active returns how many slots are currently occupied.
func (p *Pool) Active() int {
	return len(p.sem)
}

type poolResult struct {
	res *ExtractResult
	err error
}

// Run executes fn on a pool slot and suspends the caller until it returns
// or ctx ends, whichever happens first. When ctx ends first the call is
// abandoned: it keeps its slot until it finishes, and since nobody waits
// for its result anymore it is handed to discard (when non-nil) so any
// output produced after the caller moved on can be removed.
func (p *Pool) Run(ctx context.Context, fn func() (*ExtractResult, error), discard func(*ExtractResult)) (*ExtractResult, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	ch := make(chan poolResult, 1)
	go func() {
		defer p.release()
		res, err := fn()
		ch <- poolResult{res: res, err: err}
	}()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		if discard != nil {
			go func() {
				r := <-ch
				discard(r.res)
			}()
		}
		return nil, ctx.Err()
	}
}
