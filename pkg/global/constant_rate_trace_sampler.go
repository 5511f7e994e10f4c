package global

import (
	"fmt"
	"sync"
	"time"

	"github.com/buildbarn/bb-splitter/pkg/clock"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type constantRateTraceSampler struct {
	clock               clock.Clock
	maxTokens           int64
	periodDurationNanos int64
	tokensPerPeriod     int64
	tokensPerSample     int64

	lock            sync.Mutex
	availableTokens int64
	lastRefillTime  time.Time
	nextRefillTime  time.Time
}

// NewConstantRateTraceSampler returns a new constant rate trace
// sampler. It uses a token bucket algorithm to sample traces. This is
// useful as an alternative to probability-based sampling when the
// process starts a low number of traces per second. The period
// exposed to callers is one second.
func NewConstantRateTraceSampler(tokensPerSecond, maxTokens, tokensPerSample int64, clock clock.Clock) sdktrace.Sampler {
	now := clock.Now()
	return &constantRateTraceSampler{
		clock:               clock,
		availableTokens:     maxTokens,
		maxTokens:           maxTokens,
		periodDurationNanos: int64(time.Second),
		tokensPerPeriod:     tokensPerSecond,
		tokensPerSample:     tokensPerSample,
		lastRefillTime:      now,
		nextRefillTime:      now.Add(time.Second),
	}
}

func (s *constantRateTraceSampler) ShouldSample(parameters sdktrace.SamplingParameters) sdktrace.SamplingResult {
	parentSpanContext := trace.SpanContextFromContext(parameters.ParentContext)
	if parentSpanContext.IsSampled() {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.RecordAndSample,
			Tracestate: parentSpanContext.TraceState(),
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	// Update the number of available samples based on the time
	// since the last check.
	now := s.clock.Now()
	if !now.Before(s.nextRefillTime) {
		periodsSinceLastRefill := max(0, now.Sub(s.lastRefillTime).Nanoseconds()/s.periodDurationNanos)
		s.availableTokens = min(s.availableTokens+periodsSinceLastRefill*s.tokensPerPeriod, s.maxTokens)
		s.lastRefillTime = s.lastRefillTime.Add(time.Duration(periodsSinceLastRefill * s.periodDurationNanos))
		s.nextRefillTime = s.lastRefillTime.Add(time.Duration(s.periodDurationNanos))
	}

	// Sample the trace if there is an available number of tokens.
	decision := sdktrace.Drop
	if s.availableTokens >= s.tokensPerSample {
		s.availableTokens -= s.tokensPerSample
		decision = sdktrace.RecordAndSample
	}
	return sdktrace.SamplingResult{
		Decision:   decision,
		Tracestate: parentSpanContext.TraceState(),
	}
}

func (s *constantRateTraceSampler) Description() string {
	return fmt.Sprintf("ConstantRateTraceSampler{tokensPerSecond=%d,maxTokens=%d,tokensPerSample=%d}", s.tokensPerPeriod, s.maxTokens, s.tokensPerSample)
}
