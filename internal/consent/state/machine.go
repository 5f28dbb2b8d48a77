// Package state owns the in-memory consent state for a page session. The
// Machine is the sole mutator: UI surfaces dispatch intents into it, it
// persists the record through the store, and it fans the new record out to
// subscribers (the vendor loaders) before the intent returns.
package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"consentgate/internal/audit"
	"consentgate/internal/consent/metrics"
	"consentgate/internal/consent/models"
	"consentgate/internal/consent/store"
)

// Intent action labels, used for metrics and audit.
const (
	actionAcceptAll       = "accept_all"
	actionRejectAll       = "reject_all"
	actionSavePreferences = "save_preferences"
)

// Snapshot is a read-only projection of the machine state for UI rendering.
// Record is nil until a first choice has been made. Ready reports whether the
// store has been read once; the UI must render nothing consent-dependent
// before it is true.
type Snapshot struct {
	Record          *models.Record
	Ready           bool
	BannerVisible   bool
	PreferencesOpen bool
	Announcement    string
}

// Subscriber receives the new record after every mutation that changes it.
type Subscriber func(models.Record)

// Handle identifies a registered subscriber for explicit unsubscription.
type Handle string

type subscription struct {
	handle Handle
	fn     Subscriber
}

// Machine holds consent state and orchestrates transitions. All methods are
// safe for concurrent use; record-changing intents deliver notifications
// synchronously, so loaders have reacted by the time the intent returns.
type Machine struct {
	mu      sync.Mutex
	store   *store.RecordStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor *audit.Publisher
	clock   func() time.Time

	record          *models.Record
	ready           bool
	bannerVisible   bool
	preferencesOpen bool
	announcement    string

	subs []subscription
}

// Option configures the Machine.
type Option func(*Machine)

// WithLogger sets the logger instance for the machine.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithMetrics sets the metrics instance for the machine.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mx }
}

// WithAuditor sets the audit publisher for consent decisions.
func WithAuditor(a *audit.Publisher) Option {
	return func(m *Machine) { m.auditor = a }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) { m.clock = clock }
}

// NewMachine constructs a Machine over the given record store.
func NewMachine(s *store.RecordStore, opts ...Option) *Machine {
	m := &Machine{store: s, clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init runs the once-per-session initialization protocol: migrate the legacy
// key, read the record, and derive banner visibility. Ready becomes true
// regardless of outcome — read failures resolve to nil, not to a perpetual
// loading state. When a prior choice exists it is honored silently, so
// subscribers are notified with it.
func (m *Machine) Init(ctx context.Context) {
	m.store.MigrateLegacy(ctx)
	rec := m.store.Read(ctx)

	m.mu.Lock()
	m.record = rec
	m.bannerVisible = rec == nil
	m.ready = true
	m.mu.Unlock()

	if rec != nil {
		if m.metrics != nil {
			m.recordGauges(*rec)
		}
		m.notify(*rec)
	}
}

func (m *Machine) recordGauges(rec models.Record) {
	for c := range models.ValidCategories {
		m.metrics.SetCategoryActive(string(c), rec.Granted(c))
	}
}

// AcceptAll grants every category, hides the banner, persists and notifies.
func (m *Machine) AcceptAll(ctx context.Context) {
	m.setRecord(ctx, true, true, actionAcceptAll, audit.ActionAcceptAll, false)
}

// RejectAll revokes both revocable categories, hides the banner, persists and
// notifies. Essential stays true; it is not a choice.
func (m *Machine) RejectAll(ctx context.Context) {
	m.setRecord(ctx, false, false, actionRejectAll, audit.ActionRejectAll, false)
}

// SavePreferences applies a custom selection and closes the preferences panel
// if open.
func (m *Machine) SavePreferences(ctx context.Context, analytics, marketing bool) {
	m.setRecord(ctx, analytics, marketing, actionSavePreferences, audit.ActionSavePreferences, true)
}

func (m *Machine) setRecord(ctx context.Context, analytics, marketing bool, action, auditAction string, closePrefs bool) {
	rec := models.NewRecord(analytics, marketing, m.clock())

	m.mu.Lock()
	m.record = &rec
	m.bannerVisible = false
	if closePrefs {
		m.preferencesOpen = false
	}
	m.mu.Unlock()

	m.store.Write(ctx, rec)
	m.emitAudit(ctx, audit.Event{
		Action:    auditAction,
		Reason:    audit.ReasonUserInitiated,
		Analytics: rec.Analytics,
		Marketing: rec.Marketing,
		Timestamp: time.UnixMilli(rec.Timestamp),
	})
	if m.metrics != nil {
		m.metrics.IncrementChoice(action)
		m.recordGauges(rec)
	}
	m.notify(rec)
}

// OpenBanner makes the banner visible again, e.g. from a footer link. Pure
// visibility transition: no persistence, no notification.
func (m *Machine) OpenBanner() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bannerVisible = true
}

// OpenPreferences opens the preferences panel.
func (m *Machine) OpenPreferences() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferencesOpen = true
}

// ClosePreferences closes the preferences panel without saving.
func (m *Machine) ClosePreferences() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferencesOpen = false
}

// Announce sets the accessibility live-region message. Transient: never
// persisted, never notified. An empty message clears the region.
func (m *Machine) Announce(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcement = message
}

// Snapshot returns a read-only copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rec *models.Record
	if m.record != nil {
		copyRec := *m.record
		rec = &copyRec
	}
	return Snapshot{
		Record:          rec,
		Ready:           m.ready,
		BannerVisible:   m.bannerVisible,
		PreferencesOpen: m.preferencesOpen,
		Announcement:    m.announcement,
	}
}

// Subscribe registers a callback for record changes and returns its handle.
func (m *Machine) Subscribe(fn Subscriber) Handle {
	handle := Handle(uuid.New().String())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, subscription{handle: handle, fn: fn})
	return handle
}

// Unsubscribe removes a subscriber. Removing a handle during a notification
// pass does not affect delivery within that pass: notify iterates a snapshot
// of the registry taken when the pass starts.
func (m *Machine) Unsubscribe(handle Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subs {
		if sub.handle == handle {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

// notify delivers the record to every subscriber registered at the start of
// the pass. A panicking callback is recovered and logged so it cannot prevent
// delivery to the rest.
func (m *Machine) notify(rec models.Record) {
	m.mu.Lock()
	snapshot := make([]subscription, len(m.subs))
	copy(snapshot, m.subs)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncrementNotifications()
	}
	for _, sub := range snapshot {
		m.deliver(sub, rec)
	}
}

func (m *Machine) deliver(sub subscription, rec models.Record) {
	defer func() {
		if r := recover(); r != nil {
			if m.logger != nil {
				m.logger.Error("consent subscriber panicked",
					"handle", string(sub.handle),
					"panic", r,
				)
			}
			if m.metrics != nil {
				m.metrics.IncrementSubscriberPanics()
			}
		}
	}()
	sub.fn(rec)
}

func (m *Machine) emitAudit(ctx context.Context, event audit.Event) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Emit(ctx, event); err != nil && m.logger != nil {
		m.logger.Warn("failed to emit consent audit event", "error", err)
	}
}
