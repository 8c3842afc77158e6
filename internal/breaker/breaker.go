// Package breaker implements the per-platform circuit breaker: a
// bounded FIFO of ON/OFF tokens shared by every worker probing one
// platform. Sustained failures drain the ON tokens and trip the queue
// into a probation period of OFF tokens; the first success after
// probation converges the queue back to its steady state.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Token uint8

const (
	Off Token = iota
	On
)

// Queue is the token FIFO. Implementations must serialize mutations:
// every worker of a platform shares one queue.
type Queue interface {
	// Pop removes and returns the leftmost token; ok is false when
	// the queue is empty.
	Pop() (tok Token, ok bool, err error)
	Push(tokens ...Token) error
	Len() (int, error)
}

type Options struct {
	// consecutive failures before tripping
	Trigger int
	// OFF tokens produced when tripping
	Release int
	// per-call wall-clock ceiling, also bounds the wait for a token
	TimeLimit time.Duration
}

func (o Options) withDefaults() Options {
	if o.Trigger <= 0 {
		o.Trigger = 3
	}
	if o.Release <= 0 {
		o.Release = 10
	}
	if o.TimeLimit <= 0 {
		o.TimeLimit = time.Second * 30
	}
	return o
}

type Breaker struct {
	name  string
	opts  Options
	queue Queue
}

// New arms a breaker over the given queue. An empty queue is seeded
// with Trigger ON tokens; a non-empty one is reused as-is so breaker
// state survives a worker restart within one scan.
func New(name string, queue Queue, opts Options) (*Breaker, error) {
	opts = opts.withDefaults()
	n, err := queue.Len()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		tokens := make([]Token, opts.Trigger)
		for i := range tokens {
			tokens[i] = On
		}
		if err := queue.Push(tokens...); err != nil {
			return nil, err
		}
	}
	return &Breaker{name: name, opts: opts, queue: queue}, nil
}

const popPollInterval = time.Millisecond * 50

// pop blocks up to TimeLimit for a token; an exhausted wait is treated
// as OFF.
func (b *Breaker) pop(ctx context.Context) (Token, error) {
	deadline := time.Now().Add(b.opts.TimeLimit)
	for {
		tok, ok, err := b.queue.Pop()
		if err != nil {
			return Off, err
		}
		if ok {
			return tok, nil
		}
		if time.Now().After(deadline) {
			return Off, nil
		}
		select {
		case <-ctx.Done():
			return Off, ctx.Err()
		case <-time.After(popPollInterval):
		}
	}
}

// Exec runs the wrapped call under the breaker. When the popped token
// is OFF the fallback runs instead and the queue is left untouched.
// The error returned is the wrapped call's own error; queue failures
// are wrapped and returned as-is.
func (b *Breaker) Exec(ctx context.Context, run func(context.Context) error, fallback func()) error {
	tok, err := b.pop(ctx)
	if err != nil {
		return fmt.Errorf("breaker %s: %w", b.name, err)
	}

	if tok == Off {
		fallback()
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, b.opts.TimeLimit)
	err = run(runCtx)
	cancel()

	if err == nil {
		n, lenErr := b.queue.Len()
		if lenErr != nil {
			return fmt.Errorf("breaker %s: %w", b.name, lenErr)
		}
		tokens := []Token{On}
		if n+1 < b.opts.Trigger {
			// refill toward steady state
			tokens = append(tokens, On)
		}
		if pushErr := b.queue.Push(tokens...); pushErr != nil {
			return fmt.Errorf("breaker %s: %w", b.name, pushErr)
		}
		return nil
	}

	n, lenErr := b.queue.Len()
	if lenErr != nil {
		return fmt.Errorf("breaker %s: %w", b.name, lenErr)
	}
	if n == 0 {
		// all ON tokens consumed by consecutive failures: trip, then
		// auto-arm the probation period
		slog.Warn("circuit breaker tripped",
			"platform", b.name, "release", b.opts.Release, "err", err)
		tokens := make([]Token, 0, b.opts.Release+b.opts.Trigger)
		for i := 0; i < b.opts.Release; i++ {
			tokens = append(tokens, Off)
		}
		for i := 0; i < b.opts.Trigger; i++ {
			tokens = append(tokens, On)
		}
		if pushErr := b.queue.Push(tokens...); pushErr != nil {
			return fmt.Errorf("breaker %s: %w", b.name, pushErr)
		}
	}
	return err
}
