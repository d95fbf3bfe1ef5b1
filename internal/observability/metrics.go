package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricsScopeName = "github.com/spec-kit/ticketdesk"

var (
	routeKey   = attribute.Key("http.route")
	methodKey  = attribute.Key("http.method")
	statusKey  = attribute.Key("http.status_code")
	codeKey    = attribute.Key("error.code")
	cacheKind  = attribute.Key("cache.kind")
	jobKindKey = attribute.Key("job.kind")
	outcomeKey = attribute.Key("job.outcome")

	defaultHistogramBuckets = []float64{
		.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
	}
)

// Metrics records service counters through an OpenTelemetry meter.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	errors          metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	jobs            metric.Int64Counter
}

// NewMetrics creates the instruments on provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(metricsScopeName)
	requests, err := meter.Int64Counter("ticketdesk.http.requests")
	if err != nil {
		return nil, err
	}
	requestDuration, err := meter.Float64Histogram("ticketdesk.http.request_duration",
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(defaultHistogramBuckets...))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("ticketdesk.http.errors")
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter("ticketdesk.cache.hits")
	if err != nil {
		return nil, err
	}
	cacheMisses, err := meter.Int64Counter("ticketdesk.cache.misses")
	if err != nil {
		return nil, err
	}
	jobs, err := meter.Int64Counter("ticketdesk.jobs.processed")
	if err != nil {
		return nil, err
	}
	return &Metrics{
		requests:        requests,
		requestDuration: requestDuration,
		errors:          errs,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		jobs:            jobs,
	}, nil
}

// RecordRequest counts a served request and its latency.
func (m *Metrics) RecordRequest(ctx context.Context, route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(routeKey.String(route), methodKey.String(method), statusKey.String(strconv.Itoa(status)))
	m.requests.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordError counts a request that ended with a domain error.
func (m *Metrics) RecordError(ctx context.Context, route, method, code string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(routeKey.String(route), methodKey.String(method), codeKey.String(code)))
}

// RecordCacheLookup counts a cache hit or miss for kind ("detail" or "list").
func (m *Metrics) RecordCacheLookup(ctx context.Context, kind string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Add(ctx, 1, metric.WithAttributes(cacheKind.String(kind)))
		return
	}
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(cacheKind.String(kind)))
}

// RecordJob counts a processed job by kind and outcome.
func (m *Metrics) RecordJob(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.jobs.Add(ctx, 1, metric.WithAttributes(jobKindKey.String(kind), outcomeKey.String(outcome)))
}
