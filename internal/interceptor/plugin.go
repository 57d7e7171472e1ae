package interceptor

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/lifecycle-gateway/internal/pipeline"
)

// Header names read and written by the interceptor.
const (
	HeaderRequestID        = "X-Request-ID"
	HeaderForwardedFor     = "X-Forwarded-For"
	HeaderGatewayTimestamp = "X-Gateway-Timestamp"
	HeaderRealClientIP     = "X-Real-Client-IP"
	HeaderResponseTime     = "X-Response-Time-Ms"
	HeaderPluginVersion    = "X-Plugin-Version"
)

// Version is sent in the X-Plugin-Version response header.
const Version = "1.0.0"

// StageName is the name the interceptor registers under in a pipeline.
const StageName = "lifecycle-interceptor"

// securityHeaders is the fixed, non-configurable set of protective headers.
var securityHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
}

// Recorder receives per-request observations. It is optional.
type Recorder interface {
	ObserveRequest(route, severity string, durationMillis int64, measured bool)
}

// Plugin is the request-lifecycle interceptor. A single Plugin serves all
// requests concurrently; per-request state lives in RequestContext values
// handed between phases by the host.
type Plugin struct {
	cfg     Config
	logger  *slog.Logger
	clock   Clock
	ids     *IDGenerator
	metrics Recorder
}

// Option is a functional option for configuring a Plugin.
type Option func(*Plugin)

// WithLogger sets the logger records are emitted to.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Plugin) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock replaces the clock used for start times and durations.
func WithClock(c Clock) Option {
	return func(p *Plugin) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithIDGenerator replaces the correlation ID generator.
func WithIDGenerator(g *IDGenerator) Option {
	return func(p *Plugin) {
		if g != nil {
			p.ids = g
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Plugin) {
		p.metrics = r
	}
}

// New creates a Plugin from an already validated Config.
func New(cfg Config, opts ...Option) *Plugin {
	p := &Plugin{
		cfg:    cfg,
		logger: slog.Default(),
		clock:  systemClock{},
		ids:    NewIDGenerator(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the plugin's configuration.
func (p *Plugin) Config() Config {
	return p.cfg
}

// Register adds the plugin's phase callbacks to chain at the given order.
func (p *Plugin) Register(chain *pipeline.Chain, order int) {
	pipeline.Register(chain, StageName, order, pipeline.Handlers[RequestContext]{
		Access:       p.Access,
		HeaderFilter: p.HeaderFilter,
		Log:          p.Log,
	})
}

// Access runs before the request is forwarded. It creates the request's
// context and decorates the outbound request.
func (p *Plugin) Access(ex *pipeline.Exchange) *RequestContext {
	r := ex.Request
	rc := &RequestContext{
		CorrelationID: ResolveCorrelationID(r.Header.Get(HeaderRequestID), p.ids),
		Start:         p.clock.Now(),
		ClientIP:      ResolveClientIP(r.Header.Get(HeaderForwardedFor), r.RemoteAddr),
	}

	r.Header.Set(HeaderRequestID, rc.CorrelationID)
	r.Header.Set(HeaderGatewayTimestamp, strconv.FormatInt(rc.Start.UnixMilli(), 10))
	r.Header.Set(HeaderRealClientIP, rc.ClientIP)
	if name, value, ok := p.cfg.customHeader(); ok {
		r.Header.Set(name, value)
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("request.correlation_id", rc.CorrelationID),
	)

	return rc
}

// HeaderFilter runs once the response header is about to be sent. The
// duration is computed on the first call only, and every header is set
// rather than appended, so repeated calls leave the same header values.
func (p *Plugin) HeaderFilter(ex *pipeline.Exchange, rc *RequestContext) {
	h := ex.ResponseHeader()
	if h == nil {
		return
	}

	if rc != nil {
		if !rc.measured {
			rc.DurationMillis = elapsedMillis(rc.Start, p.clock.Now())
			rc.measured = true
		}
		h.Set(HeaderRequestID, rc.CorrelationID)
		h.Set(HeaderResponseTime, strconv.FormatInt(rc.DurationMillis, 10))
	}
	h.Set(HeaderPluginVersion, Version)

	if p.cfg.SecurityHeadersEnabled {
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
	}
}

// Log runs after the response is complete. It never fails: anything the
// earlier phases did not provide is replaced by a sentinel.
func (p *Plugin) Log(ex *pipeline.Exchange, rc *RequestContext) {
	rec := p.buildRecord(ex, rc)

	if p.metrics != nil {
		p.metrics.ObserveRequest(rec.Route, severityLabel(Severity(rec.Status)), rec.DurationMillis, rc.Measured())
	}

	if !p.cfg.LoggingEnabled {
		return
	}
	ctx := context.Background()
	if ex.Request != nil {
		ctx = ex.Request.Context()
	}
	emit(ctx, p.logger, rec, p.cfg.LogFullStructured)
}

func (p *Plugin) buildRecord(ex *pipeline.Exchange, rc *RequestContext) Record {
	rec := Record{
		CorrelationID: unknown,
		ClientIP:      unknown,
		Route:         defaultString(ex.Route, unknown),
		Consumer:      defaultString(ex.Consumer, anonymous),
		Status:        ex.Status(),
		BodyBytes:     -1,
		Timestamp:     p.clock.Now().UTC().Format(time.RFC3339),
	}

	if r := ex.Request; r != nil {
		rec.Method = r.Method
		if r.URL != nil {
			rec.Path = r.URL.Path
		}
		rec.BodyBytes = r.ContentLength
		rec.BodyOutOfRange = p.cfg.bodyOutOfRange(r.ContentLength)
	}

	if rc != nil {
		rec.CorrelationID = defaultString(rc.CorrelationID, unknown)
		rec.ClientIP = defaultString(rc.ClientIP, unknown)
		if rc.measured {
			rec.DurationMillis = rc.DurationMillis
		}
	}

	return rec
}
