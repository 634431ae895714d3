package props

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// invocation is the normalized outcome of one resolver call.
type invocation struct {
	options  ResolvedOptions
	children []PropertySpec
	err      error
	duration time.Duration
}

// invoker calls piece resolvers with a bounded execution time. Calls carrying
// the same cache key share one execution; the execution is cancelled once
// every caller waiting on it has gone away.
type invoker struct {
	base    context.Context
	timeout time.Duration
	config  Config
	flight  singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight tracks the callers waiting on one shared execution.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func newInvoker(base context.Context, config Config) *invoker {
	return &invoker{
		base:    base,
		timeout: config.ResolverTimeout,
		config:  config,
		flights: map[string]*flight{},
	}
}

// invoke runs spec's resolver for the node key and normalizes the result.
// Resolver failures never escape as panics or errors: they come back as a
// disabled ResolvedOptions with err set. The returned error is only non-nil
// when ctx ends before the result is available.
func (inv *invoker) invoke(ctx context.Context, key string, spec PropertySpec, in Input, dedupKey string) (invocation, error) {
	start := time.Now()
	f := inv.join(dedupKey)
	ch := inv.flight.DoChan(dedupKey, func() (any, error) {
		return inv.call(f.ctx, key, spec.Resolver, in)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
		inv.leave(dedupKey, f, false)
	case <-ctx.Done():
		inv.leave(dedupKey, f, true)
		return invocation{duration: time.Since(start)}, ctx.Err()
	}

	raw, err := res.Val, res.Err
	out := invocation{duration: time.Since(start)}
	if err == nil {
		switch spec.Kind {
		case KindNestedDynamic:
			out.children, err = normalizeChildren(key, raw, spec.Resolver)
			out.options = ResolvedOptions{Options: []Option{}}
		default:
			out.options, err = normalizeOptions(key, raw)
		}
	}
	if err != nil {
		out.err = err
		out.options = disabledOptions(inv.config.errorPlaceholder(err))
		out.children = nil
	}
	return out, nil
}

func (inv *invoker) join(dedupKey string) *flight {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	f, ok := inv.flights[dedupKey]
	if !ok {
		ctx, cancel := context.WithCancel(inv.base)
		f = &flight{ctx: ctx, cancel: cancel}
		inv.flights[dedupKey] = f
	}
	f.waiters++
	return f
}

// leave drops one waiter. The last waiter releases the flight; when it gave
// up early the running resolver is cancelled and later callers start afresh.
func (inv *invoker) leave(dedupKey string, f *flight, abandoned bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if inv.flights[dedupKey] == f {
		delete(inv.flights, dedupKey)
	}
	if abandoned {
		inv.flight.Forget(dedupKey)
	}
	f.cancel()
}

func (inv *invoker) call(parent context.Context, key string, resolver Resolver, in Input) (any, error) {
	if resolver == nil {
		return nil, &ResolverError{Key: key, Err: errors.New("no resolver")}
	}
	ctx, cancel := context.WithTimeout(parent, inv.timeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &ResolverError{Key: key, Panic: true, Err: fmt.Errorf("%v", r)}}
			}
		}()
		value, err := resolver.Resolve(ctx, in)
		done <- result{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.value, nil
		}
		if errors.Is(res.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ResolverTimeoutError{Key: key, Timeout: inv.timeout}
		}
		var resolverErr *ResolverError
		if errors.As(res.err, &resolverErr) {
			return nil, res.err
		}
		return nil, &ResolverError{Key: key, Err: res.err}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ResolverTimeoutError{Key: key, Timeout: inv.timeout}
		}
		return nil, &ResolverError{Key: key, Err: ctx.Err()}
	}
}
