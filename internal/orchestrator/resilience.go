package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/logging"
	"github.com/aristath/grantwriter/internal/telemetry"
)

// RetryPolicy configures how model calls are retried.
type RetryPolicy struct {
	MaxAttempts int              // Total attempts including the first (default 5)
	MinWait     time.Duration    // Lower bound of every wait (default 1s)
	MaxWait     time.Duration    // Upper bound of every wait (default 60s)
	Multiplier  float64          // Growth factor between waits (default 2)
	Jitter      float64          // Randomization factor (default 0.5)
	Retryable   func(error) bool // Which failures are retried (default rate limits)
}

// DefaultRetryPolicy retries rate-limited calls up to five times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		MinWait:     time.Second,
		MaxWait:     60 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.5,
		Retryable:   backend.IsRateLimited,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.MinWait <= 0 {
		p.MinWait = def.MinWait
	}
	if p.MaxWait < p.MinWait {
		p.MaxWait = p.MinWait
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = def.Jitter
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	return p
}

// NewBackOff returns the wait schedule of the policy: exponential with
// jitter, clamped to [MinWait, MaxWait] and never shorter than the previous
// wait. It does not limit the number of attempts.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.MinWait
	exp.MaxInterval = p.MaxWait
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &monotonicBackOff{inner: exp, min: p.MinWait, max: p.MaxWait}
}

type monotonicBackOff struct {
	inner backoff.BackOff
	min   time.Duration
	max   time.Duration
	last  time.Duration
}

func (m *monotonicBackOff) NextBackOff() time.Duration {
	d := m.inner.NextBackOff()
	if d == backoff.Stop {
		return backoff.Stop
	}
	if d < m.min {
		d = m.min
	}
	if d > m.max {
		d = m.max
	}
	if d < m.last {
		d = m.last
	}
	m.last = d
	return d
}

func (m *monotonicBackOff) Reset() {
	m.inner.Reset()
	m.last = 0
}

// BreakerSettings configures the per-provider circuit breakers.
type BreakerSettings struct {
	Threshold   uint32        // Consecutive rate-limited calls that open the breaker (default 5)
	Timeout     time.Duration // How long the breaker stays open (default 30s)
	MaxRequests uint32        // Probe requests allowed while half-open (default 3)
}

// CircuitBreakerRegistry manages per-provider circuit breakers.
type CircuitBreakerRegistry struct {
	settings BreakerSettings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry(settings BreakerSettings) *CircuitBreakerRegistry {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 3
	}
	return &CircuitBreakerRegistry{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given provider, creating it on
// first use.
func (r *CircuitBreakerRegistry) Get(provider string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[provider]; ok {
		return cb
	}

	threshold := r.settings.Threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: r.settings.MaxRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str(logging.FieldProvider, name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Only rate limits count against the provider. Cancellation and
			// permanent errors (auth, bad request) leave the breaker alone.
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return !backend.IsRateLimited(err)
		},
	})

	r.breakers[provider] = cb
	return cb
}

// Outcome is a successful invocation.
type Outcome struct {
	Output       string
	Attempts     int
	InputTokens  int64
	OutputTokens int64
}

// Invoker calls a descriptor's model, retrying failures the policy deems
// transient and reporting every attempt to the sink.
type Invoker struct {
	policy   RetryPolicy
	breakers *CircuitBreakerRegistry
	sink     telemetry.Sink
}

// NewInvoker creates an invoker. breakers and sink may be nil. The sink is
// always wrapped in telemetry.Multi, so a panicking sink cannot fail a call.
func NewInvoker(policy RetryPolicy, breakers *CircuitBreakerRegistry, sink telemetry.Sink) *Invoker {
	switch s := sink.(type) {
	case nil:
		sink = telemetry.Multi(nil)
	case telemetry.Multi:
	default:
		sink = telemetry.Multi{s}
	}
	return &Invoker{policy: policy.withDefaults(), breakers: breakers, sink: sink}
}

// Policy returns the effective retry policy.
func (inv *Invoker) Policy() RetryPolicy { return inv.policy }

// Invoke sends instructions to the descriptor's model on behalf of stage.
// Failures are returned as *InvocationError carrying the number of attempts
// made. A cancelled context aborts a pending wait immediately.
func (inv *Invoker) Invoke(ctx context.Context, runID, stage string, d *agent.Descriptor, instructions string) (Outcome, error) {
	provider := d.Model.Name()
	req := backend.Request{
		Stage:        stage,
		Persona:      d.SystemPersona(),
		Goal:         d.Goal,
		Instructions: instructions,
		Tools:        d.Tools,
	}

	var (
		resp     backend.Response
		attempts int
		wait     time.Duration
		lastErr  error
	)

	operation := func() error {
		// Check context first - fail fast if cancelled
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempts++
		start := time.Now()
		r, err := inv.send(ctx, provider, d.Model, req)
		inv.sink.Record(telemetry.Event{
			RunID:    runID,
			Stage:    stage,
			Role:     d.Role.String(),
			Provider: provider,
			Attempt:  attempts,
			Outcome:  outcomeOf(ctx, err),
			Wait:     wait,
			Elapsed:  time.Since(start),
			Err:      err,
			Time:     time.Now(),
		})

		if err == nil {
			resp = r
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !inv.policy.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(_ error, next time.Duration) {
		wait = next
	}

	b := backoff.WithContext(backoff.WithMaxRetries(inv.policy.NewBackOff(), uint64(inv.policy.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return Outcome{Attempts: attempts}, inv.failure(ctx, stage, attempts, lastErr, err)
	}

	return Outcome{
		Output:       resp.Content,
		Attempts:     attempts,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// send executes one call, through the provider's breaker when one is
// configured. An open breaker is reported as an unavailable provider.
func (inv *Invoker) send(ctx context.Context, provider string, model backend.Backend, req backend.Request) (backend.Response, error) {
	if inv.breakers == nil {
		return model.Send(ctx, req)
	}

	result, err := inv.breakers.Get(provider).Execute(func() (interface{}, error) {
		return model.Send(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backend.Response{}, &backend.CallError{Provider: provider, Kind: backend.KindUnavailable, Err: err}
		}
		return backend.Response{}, err
	}
	return result.(backend.Response), nil
}

func (inv *Invoker) failure(ctx context.Context, stage string, attempts int, lastErr, retryErr error) error {
	cause := lastErr
	if cause == nil {
		cause = retryErr
	}

	kind := backend.KindOf(cause)
	if ctxErr := ctx.Err(); ctxErr != nil {
		kind = backend.KindOf(ctxErr)
		if lastErr == nil {
			cause = ctxErr
		}
	}
	return &InvocationError{Stage: stage, Kind: kind, Attempts: attempts, Err: cause}
}

func outcomeOf(ctx context.Context, err error) telemetry.Outcome {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case ctx.Err() != nil:
		return telemetry.OutcomeCanceled
	case backend.IsRateLimited(err):
		return telemetry.OutcomeRateLimited
	default:
		return telemetry.OutcomeError
	}
}
