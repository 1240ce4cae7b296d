package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bot-gateway/logging"
)

const (
	DefaultRetryCount       = 3
	DefaultRetryBase        = 100 * time.Millisecond
	DefaultFailureThreshold = 5
	DefaultOpenDuration     = 30 * time.Second
	DefaultTimeout          = 10 * time.Second
)

// Attempt is one physical try of a logical call.
type Attempt func(ctx context.Context) error

// Stage decorates an Attempt with one policy.
type Stage struct {
	Name string
	Wrap func(next Attempt) Attempt
}

// Compose applies stages around fn; stages[0] ends up outermost.
func Compose(fn Attempt, stages ...Stage) Attempt {
	for i := len(stages) - 1; i >= 0; i-- {
		fn = stages[i].Wrap(fn)
	}
	return fn
}

// Policy parameterizes one downstream pipeline.
type Policy struct {
	Name             string
	RetryCount       int
	RetryBase        time.Duration
	FailureThreshold int
	OpenDuration     time.Duration
	Timeout          time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.RetryCount < 0 {
		p.RetryCount = 0
	}
	if p.RetryBase <= 0 {
		p.RetryBase = DefaultRetryBase
	}
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = DefaultFailureThreshold
	}
	if p.OpenDuration <= 0 {
		p.OpenDuration = DefaultOpenDuration
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Pipeline string
	Retry    int
	Of       int
	Delay    time.Duration
	Err      error
}

type Option func(*Pipeline)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// OnRetry registers a hook called before each retry delay.
func OnRetry(fn func(RetryEvent)) Option {
	return func(p *Pipeline) { p.onRetry = fn }
}

// OnStateChange registers a hook called on every breaker transition.
func OnStateChange(fn func(name string, from, to State)) Option {
	return func(p *Pipeline) { p.onState = fn }
}

// Pipeline is the retry -> breaker -> timeout chain of one downstream service.
// It is safe for concurrent use; the breaker state is shared by all callers.
type Pipeline struct {
	policy  Policy
	log     zerolog.Logger
	onRetry func(RetryEvent)
	onState func(name string, from, to State)

	breaker *Breaker
	stages  []Stage
}

func New(policy Policy, opts ...Option) *Pipeline {
	p := &Pipeline{
		policy: policy.withDefaults(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.breaker = NewBreaker(BreakerSettings{
		Name:             p.policy.Name,
		FailureThreshold: p.policy.FailureThreshold,
		OpenDuration:     p.policy.OpenDuration,
		OnStateChange:    p.stateChanged,
	})

	p.stages = []Stage{
		RetryStage(p.policy.RetryCount, p.policy.RetryBase, p.retried),
		BreakerStage(p.breaker),
		TimeoutStage(p.policy.Timeout),
	}
	return p
}

// Do runs fn through every stage of the pipeline.
func (p *Pipeline) Do(ctx context.Context, fn Attempt) error {
	return Compose(fn, p.stages...)(ctx)
}

func (p *Pipeline) Policy() Policy { return p.policy }

func (p *Pipeline) Breaker() *Breaker { return p.breaker }

// StageNames lists the stages from outermost to innermost.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

func (p *Pipeline) retried(ctx context.Context, ev RetryEvent) {
	ev.Pipeline = p.policy.Name
	logging.FromContext(ctx, &p.log).Warn().
		Str("pipeline", ev.Pipeline).
		Int("retry", ev.Retry).
		Int("of", ev.Of).
		Dur("delay", ev.Delay).
		AnErr("reason", ev.Err).
		Msg("downstream retry scheduled")
	if p.onRetry != nil {
		p.onRetry(ev)
	}
}

func (p *Pipeline) stateChanged(name string, from, to State) {
	ev := p.log.Info()
	if to == StateOpen {
		ev = p.log.Warn().Dur("open_for", p.policy.OpenDuration)
	}
	ev.Str("pipeline", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
	if p.onState != nil {
		p.onState(name, from, to)
	}
}


