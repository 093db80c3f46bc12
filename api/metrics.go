package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"calendar-countdown/domain"
)

const (
	lookupRoute       = "/api/next-event"
	lookupSpanName    = "calendar.lookup"
	lookupEventName   = "calendar.lookup.completed"
	lookupEventDomain = "calendar-countdown"
	tracerName        = "calendar-countdown/api"

	outcomeFound        = "found"
	outcomeNotFound     = "not_found"
	outcomeInvalidToken = "invalid_token"
	outcomeRateLimited  = "rate_limited"
	outcomeReplayed     = "replayed"
	outcomeError        = "error"
)

var (
	lookupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_lookup_requests_total",
			Help: "Next event lookups by outcome",
		},
		[]string{"outcome"},
	)

	eventsRolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calendar_events_rolled_total",
			Help: "Events moved forward into the current year",
		},
	)
)

type lookupMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	verifyDuration  time.Duration
	resolveDuration time.Duration
	exclude         int64
	eventID         int64
	outcome         string
	cause           error
}

func newLookupMetrics(ctx context.Context, logger *log.Logger) (*lookupMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, lookupSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &lookupMetrics{
		logger:  logger,
		span:    span,
		start:   time.Now(),
		outcome: outcomeError,
	}, spanCtx
}

func (m *lookupMetrics) ObserveVerify(d time.Duration) {
	if d > 0 {
		m.verifyDuration = d
	}
}

func (m *lookupMetrics) ObserveResolve(d time.Duration) {
	if d > 0 {
		m.resolveDuration = d
	}
}

func (m *lookupMetrics) SetExclude(id int64) { m.exclude = id }

func (m *lookupMetrics) SetEventID(id int64) { m.eventID = id }

func (m *lookupMetrics) SetOutcome(outcome string) {
	if outcome != "" {
		m.outcome = outcome
	}
}

// SetError records a failure that was answered with the generic failure payload.
func (m *lookupMetrics) SetError(err error) {
	m.outcome = outcomeError
	m.cause = err
}

func (m *lookupMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", lookupRoute),
		attribute.Int("http.status_code", status),
		attribute.String("calendar.lookup.outcome", m.outcome),
		attribute.Int64("calendar.lookup.exclude", m.exclude),
		attribute.Float64("calendar.lookup.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.eventID > 0 {
		attrs = append(attrs, attribute.Int64("calendar.lookup.event_id", m.eventID))
	}
	if m.verifyDuration > 0 {
		attrs = append(attrs, attribute.Float64("calendar.lookup.verify_ms", durationToMillis(m.verifyDuration)))
	}
	if m.resolveDuration > 0 {
		attrs = append(attrs, attribute.Float64("calendar.lookup.resolve_ms", durationToMillis(m.resolveDuration)))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log finishes the span, writes one observability entry and counts the outcome.
func (m *lookupMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	lookupRequests.WithLabelValues(m.outcome).Inc()

	if err == nil && m.outcome == outcomeError {
		err = m.cause
		if err == nil {
			err = errors.New("lookup failed")
		}
	}
	attrs := m.attributes(status, err)
	severityText, severityNumber := severityForStatus(status, err)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", lookupEventName),
		attribute.String("event.domain", lookupEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if m.outcome == outcomeError {
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      lookupEventName,
		"event.domain":    lookupEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToFields(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// RollCounter counts events moved forward by the normalizer.
type RollCounter struct{}

func (RollCounter) EventRolled(ctx context.Context, ev domain.Event, from time.Time) error {
	eventsRolled.Inc()
	return nil
}
