// Package tracker waits for submitted transactions to confirm and narrates
// the wait to an observer.
package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// Handle is a submitted but not yet finalized write.
//
// Resolve returns the receipt once mined. Any other error is treated as
// "not yet resolvable" unless it is a *RejectedError or a permanent RPC error.
type Handle interface {
	Hash() common.Hash
	Resolve(ctx context.Context) (*types.Receipt, error)
}

type Kind string

const (
	KindConfirmed Kind = "confirmed"
	KindFailed    Kind = "failed"
	KindTimedOut  Kind = "timed_out"
	KindCancelled Kind = "cancelled"
)

type Operation struct {
	ID          string
	Label       string
	Handle      Handle
	SubmittedAt time.Time
	// Timeout overrides Options.Timeout when positive.
	Timeout time.Duration
}

type Outcome struct {
	Kind     Kind
	Hash     common.Hash
	Receipt  *types.Receipt
	Reason   string
	Elapsed  time.Duration
	Attempts int
}

func (o Outcome) Confirmed() bool { return o.Kind == KindConfirmed }

type Update struct {
	Label     string
	Elapsed   time.Duration
	Attempt   int
	Indicator string
}

// Observer receives the narration of one Track call. Calls are made from the
// tracking goroutine, in order, and Finished is always the last call.
type Observer interface {
	Started(ctx context.Context, op Operation)
	Progress(ctx context.Context, u Update)
	Warning(ctx context.Context, u Update)
	Finished(ctx context.Context, o Outcome)
}

type Options struct {
	PollInterval     time.Duration
	Timeout          time.Duration
	ProgressInterval time.Duration
	WarnAfter        time.Duration
	WarnEvery        time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollInterval:     2 * time.Second,
		Timeout:          3 * time.Minute,
		ProgressInterval: 5 * time.Second,
		WarnAfter:        60 * time.Second,
		WarnEvery:        30 * time.Second,
	}
}

type Tracker struct {
	opts  Options
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
	log   zerolog.Logger
}

type Option func(*Tracker)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(t *Tracker) {
		t.now = now
		t.after = after
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

func New(opts Options, options ...Option) *Tracker {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = def.ProgressInterval
	}
	if opts.WarnAfter <= 0 {
		opts.WarnAfter = def.WarnAfter
	}
	if opts.WarnEvery <= 0 {
		opts.WarnEvery = def.WarnEvery
	}
	t := &Tracker{opts: opts, now: time.Now, after: time.After, log: zerolog.Nop()}
	for _, o := range options {
		o(t)
	}
	return t
}

func (t *Tracker) Options() Options { return t.opts }

// Track polls op.Handle until it confirms, is rejected, times out, or ctx is
// cancelled. It never touches the underlying transaction.
func (t *Tracker) Track(ctx context.Context, op Operation, obs Observer) Outcome {
	if obs == nil {
		obs = nopObserver{}
	}
	start := op.SubmittedAt
	if start.IsZero() {
		start = t.now()
	}
	timeout := op.Timeout
	if timeout <= 0 {
		timeout = t.opts.Timeout
	}
	if op.Handle == nil {
		o := Outcome{Kind: KindFailed, Reason: "missing handle"}
		obs.Finished(ctx, o)
		return o
	}
	hash := op.Handle.Hash()
	log := t.log.With().Str("op", op.Label).Str("tx", hash.Hex()).Logger()

	attempts := 0
	finish := func(o Outcome) Outcome {
		o.Hash = hash
		o.Elapsed = t.now().Sub(start)
		o.Attempts = attempts
		log.Info().Str("outcome", string(o.Kind)).Dur("elapsed", o.Elapsed).Int("attempts", attempts).Str("reason", o.Reason).Msg("tracking finished")
		obs.Finished(ctx, o)
		return o
	}
	// Each attempt is bounded by the poll interval and by what is left of the
	// timeout, so a hung RPC call cannot hold the tracker past its deadline.
	poll := func() (Outcome, bool) {
		budget := min(t.opts.PollInterval, timeout-t.now().Sub(start))
		if budget <= 0 {
			return Outcome{}, false
		}
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()
		receipt, err := op.Handle.Resolve(attemptCtx)
		if err == nil && receipt != nil {
			return Outcome{Kind: KindConfirmed, Receipt: receipt}, true
		}
		if ctx.Err() != nil {
			return Outcome{Kind: KindCancelled, Reason: ctx.Err().Error()}, true
		}
		if err == nil {
			return Outcome{}, false
		}
		switch classify(err) {
		case classRejected, classPermanent:
			return Outcome{Kind: KindFailed, Reason: reasonOf(err)}, true
		}
		log.Debug().Err(err).Int("attempt", attempts).Msg("receipt not available yet")
		return Outcome{}, false
	}
	timedOut := func() bool { return t.now().Sub(start) >= timeout }

	obs.Started(ctx, op)
	if out, done := poll(); done {
		return finish(out)
	}
	if timedOut() {
		return finish(Outcome{Kind: KindTimedOut, Reason: "confirmation timed out"})
	}

	nextProgress := t.opts.ProgressInterval
	lastWarning := time.Duration(-1)
	for {
		if ctx.Err() != nil {
			return finish(Outcome{Kind: KindCancelled, Reason: ctx.Err().Error()})
		}
		wait := t.opts.PollInterval
		if remaining := timeout - t.now().Sub(start); remaining < wait {
			wait = max(remaining, 0)
		}
		select {
		case <-ctx.Done():
			return finish(Outcome{Kind: KindCancelled, Reason: ctx.Err().Error()})
		case <-t.after(wait):
		}

		elapsed := t.now().Sub(start)
		if elapsed >= timeout {
			return finish(Outcome{Kind: KindTimedOut, Reason: "confirmation timed out"})
		}
		if elapsed >= nextProgress {
			obs.Progress(ctx, t.update(op, elapsed, attempts))
			for nextProgress <= elapsed {
				nextProgress += t.opts.ProgressInterval
			}
		}
		if elapsed >= t.opts.WarnAfter && (lastWarning < 0 || elapsed-lastWarning >= t.opts.WarnEvery) {
			log.Warn().Dur("elapsed", elapsed).Msg("confirmation is slow")
			obs.Warning(ctx, t.update(op, elapsed, attempts))
			lastWarning = elapsed
		}
		if out, done := poll(); done {
			return finish(out)
		}
		if timedOut() {
			return finish(Outcome{Kind: KindTimedOut, Reason: "confirmation timed out"})
		}
	}
}

func (t *Tracker) update(op Operation, elapsed time.Duration, attempts int) Update {
	secs := int(elapsed / time.Second)
	return Update{
		Label:     op.Label,
		Elapsed:   elapsed,
		Attempt:   attempts,
		Indicator: strings.Repeat(".", secs%3+1),
	}
}

func reasonOf(err error) string {
	if reason, ok := IsRejected(err); ok {
		return reason
	}
	return err.Error()
}

type nopObserver struct{}

func (nopObserver) Started(context.Context, Operation) {}
func (nopObserver) Progress(context.Context, Update)   {}
func (nopObserver) Warning(context.Context, Update)    {}
func (nopObserver) Finished(context.Context, Outcome)  {}
