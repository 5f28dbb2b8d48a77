// Package loader gates third-party tag libraries behind consent. Each Loader
// owns one vendor category: it installs the vendor script at most once per
// session, forwards grant/revoke signals on consent transitions, and queues
// tracking events submitted before the vendor script is ready.
//
// All loader state lives in struct fields constructed once per session, so the
// "exactly one instance per page" invariant is explicit and testable; nothing
// hides in package globals.
package loader

import (
	"context"
	"log/slog"
	"sync"

	"consentgate/internal/consent/metrics"
	"consentgate/internal/loader/tracer"
)

// Config assembles a Loader's collaborators.
type Config struct {
	Vendor   Vendor
	Document Document
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Tracer   tracer.Tracer
}

// Loader applies consent decisions for one vendor category.
//
// Fail-closed by construction: the vendor script is only ever installed
// inside the granted branch, so no vendor call can precede an explicit grant.
type Loader struct {
	mu      sync.Mutex
	vendor  Vendor
	doc     Document
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer

	inert       bool
	inertLogged bool
	lastApplied *bool
	installed   bool
	ready       bool
	loadFailed  bool
	queue       []Event
}

// New constructs a Loader. A nil or unconfigured vendor yields a permanently
// inert loader whose public operations are safe no-ops.
func New(cfg Config) *Loader {
	l := &Loader{
		vendor:  cfg.Vendor,
		doc:     cfg.Document,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
	if l.tracer == nil {
		l.tracer = tracer.NewNoop()
	}
	if l.vendor == nil || !l.vendor.Configured() {
		l.inert = true
	}
	return l
}

// ApplyConsent moves the loader to the requested consent state. Idempotent:
// repeating the current state performs no work. Granting installs the vendor
// script (at most once), signals grant and fires the initial page view.
// Revoking never removes the script; it signals revoke exactly once per
// transition and suppresses all further events, discarding anything still
// queued.
func (l *Loader) ApplyConsent(ctx context.Context, granted bool) {
	if l.logInert() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastApplied != nil && *l.lastApplied == granted {
		return
	}
	applied := granted
	l.lastApplied = &applied

	ctx, span := l.tracer.Start(ctx, tracer.SpanApplyConsent,
		tracer.String(tracer.AttrVendor, l.vendor.Name()),
		tracer.Bool(tracer.AttrGranted, granted),
	)
	defer span.End(nil)

	if granted {
		l.installLocked(ctx)
		l.signalLocked(ctx, "grant", l.vendor.Grant)
		l.trackLocked(ctx, l.vendor.PageViewEvent())
		return
	}

	l.signalLocked(ctx, "revoke", l.vendor.Revoke)
	if dropped := len(l.queue); dropped > 0 {
		// Never replay events gathered under a consent that no longer holds.
		l.queue = nil
		l.warn("discarded queued events on revocation", "vendor", l.vendor.Name(), "count", dropped)
		if l.metrics != nil {
			l.metrics.AddEventsDropped(l.vendor.Name(), dropped)
			l.metrics.SetQueueDepth(l.vendor.Name(), 0)
		}
	}
}

// TrackEvent submits an application-level tracking event. Before the vendor
// script is ready events queue in submission order; once ready they dispatch
// immediately. Events are suppressed entirely unless consent is currently
// applied as granted.
func (l *Loader) TrackEvent(ctx context.Context, name string, params map[string]any) {
	if l.logInert() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastApplied == nil || !*l.lastApplied {
		l.debug("event suppressed without consent", "vendor", l.vendor.Name(), "event", name)
		return
	}
	l.trackLocked(ctx, Event{Name: name, Params: params})
}

// SignalReady marks the vendor script as loaded and drains the queue exactly
// once, in FIFO order. The document's load hook drives it in the assembled
// pipeline; tests may also call it directly. A second signal is a no-op.
func (l *Loader) SignalReady(ctx context.Context) {
	if l.inert {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ready {
		return
	}
	l.ready = true

	if len(l.queue) == 0 {
		return
	}
	pending := l.queue
	l.queue = nil

	ctx, span := l.tracer.Start(ctx, tracer.SpanQueueFlush,
		tracer.String(tracer.AttrVendor, l.vendor.Name()),
		tracer.Int(tracer.AttrQueueDepth, len(pending)),
	)
	defer span.End(nil)

	for _, ev := range pending {
		l.dispatchLocked(ctx, ev)
	}
	if l.metrics != nil {
		l.metrics.IncrementQueueFlushes(l.vendor.Name())
		l.metrics.SetQueueDepth(l.vendor.Name(), 0)
	}
}

// SignalLoadError records a failed vendor script load. Not retried: the
// loader stays not-ready for the rest of the session and later events keep
// queuing harmlessly.
func (l *Loader) SignalLoadError(err error) {
	if l.inert {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadFailed = true
	l.warn("vendor script failed to load", "vendor", l.vendor.Name(), "error", err)
}

func (l *Loader) installLocked(ctx context.Context) {
	if l.installed {
		return
	}
	ctx, span := l.tracer.Start(ctx, tracer.SpanInstall,
		tracer.String(tracer.AttrVendor, l.vendor.Name()),
	)
	created, err := l.vendor.Install(ctx, l.doc)
	span.End(err)
	if err != nil {
		l.warn("vendor script install failed", "vendor", l.vendor.Name(), "error", err)
		return
	}
	// The tag exists now whether this call created it or found it by marker.
	l.installed = true
	if created && l.metrics != nil {
		l.metrics.IncrementScriptInstalls(l.vendor.Name())
	}
}

func (l *Loader) signalLocked(ctx context.Context, signal string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		l.warn("vendor consent signal failed", "vendor", l.vendor.Name(), "signal", signal, "error", err)
		return
	}
	if l.metrics != nil {
		l.metrics.IncrementVendorSignal(l.vendor.Name(), signal)
	}
}

func (l *Loader) trackLocked(ctx context.Context, ev Event) {
	if l.ready {
		l.dispatchLocked(ctx, ev)
		return
	}
	l.queue = append(l.queue, ev)
	if l.metrics != nil {
		l.metrics.IncrementEventsQueued(l.vendor.Name())
		l.metrics.SetQueueDepth(l.vendor.Name(), len(l.queue))
	}
}

func (l *Loader) dispatchLocked(ctx context.Context, ev Event) {
	ctx, span := l.tracer.Start(ctx, tracer.SpanDispatch,
		tracer.String(tracer.AttrVendor, l.vendor.Name()),
		tracer.String(tracer.AttrEventName, ev.Name),
	)
	err := l.vendor.Dispatch(ctx, ev)
	span.End(err)
	if err != nil {
		l.warn("event dispatch failed", "vendor", l.vendor.Name(), "event", ev.Name, "error", err)
		return
	}
	if l.metrics != nil {
		l.metrics.IncrementEventsDispatched(l.vendor.Name())
	}
}

// logInert reports whether the loader is inert, logging the diagnostic once.
func (l *Loader) logInert() bool {
	if !l.inert {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.inertLogged {
		l.inertLogged = true
		name := "unknown"
		if l.vendor != nil {
			name = l.vendor.Name()
		}
		l.warn("loader has no vendor configuration and stays inert", "vendor", name)
	}
	return true
}

func (l *Loader) warn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

func (l *Loader) debug(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}
