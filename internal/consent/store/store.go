package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"consentgate/internal/consent/models"
)

// Storage keys. StorageKey holds the canonical record shape; LegacyStorageKey
// is the deprecated shape read once during migration and then deleted.
const (
	StorageKey       = "consent_state_v2"
	LegacyStorageKey = "cookie_consent"
)

// Mirror cookie parameters. The cookie carries only the two revocable flags so
// a server-rendered response can honor consent without reading client storage.
const (
	MirrorCookieName   = "consent_state"
	MirrorCookieMaxAge = 31536000 // one year, in seconds
)

// CookieSink receives the mirror cookie whenever a record is persisted. The
// HTTP layer provides the real sink; tests provide fakes.
type CookieSink interface {
	SetCookie(c *http.Cookie)
}

// RecordStore reads and writes the single consent record. All failures are
// absorbed here: a read that cannot complete yields nil (first-visit
// semantics) and a write that cannot complete leaves the in-memory state
// authoritative for the session. Nothing propagates to the caller.
type RecordStore struct {
	kv      KV
	cookies CookieSink
	logger  *slog.Logger
	clock   func() time.Time
}

// Option configures the RecordStore.
type Option func(*RecordStore)

// WithCookieSink attaches a sink for the mirror cookie.
func WithCookieSink(sink CookieSink) Option {
	return func(s *RecordStore) {
		s.cookies = sink
	}
}

// WithLogger sets the logger instance for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *RecordStore) {
		s.logger = logger
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *RecordStore) {
		s.clock = clock
	}
}

// New constructs a RecordStore over the given KV.
func New(kv KV, opts ...Option) *RecordStore {
	s := &RecordStore{kv: kv, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the persisted record, or nil when none exists, the stored data
// is malformed, or storage is unavailable. It never returns an error: every
// failure degrades to first-visit semantics (fail closed).
func (s *RecordStore) Read(ctx context.Context) *models.Record {
	raw, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		if err != ErrNotFound {
			s.warn("consent storage read failed", "error", err)
		}
		return nil
	}
	rec := models.Decode(raw)
	if rec == nil {
		s.warn("malformed consent record, treating as first visit", "key", StorageKey)
	}
	return rec
}

// Write persists the record, replacing any previous value, and mirrors the two
// revocable flags into the cookie channel. Persistence failure is logged and
// swallowed; the in-memory state stays authoritative for the session.
func (s *RecordStore) Write(ctx context.Context, rec models.Record) {
	if err := s.kv.Set(ctx, StorageKey, models.Encode(rec)); err != nil {
		s.warn("consent storage write failed, state is session-only", "error", err)
	}
	if s.cookies != nil {
		s.cookies.SetCookie(MirrorCookie(rec))
	}
}

// MigrateLegacy performs the one-time best-effort migration from the
// deprecated storage key. Idempotent: once the legacy key is gone, subsequent
// calls are no-ops. It never runs when a canonical record already exists.
func (s *RecordStore) MigrateLegacy(ctx context.Context) {
	raw, err := s.kv.Get(ctx, LegacyStorageKey)
	if err != nil {
		if err != ErrNotFound {
			s.warn("legacy consent read failed, skipping migration", "error", err)
		}
		return
	}

	if _, err := s.kv.Get(ctx, StorageKey); err == nil {
		// A canonical record already exists; just drop the stale key.
		s.deleteLegacy(ctx)
		return
	}

	rec := models.DecodeLegacy(raw, s.clock())
	if rec == nil {
		s.warn("malformed legacy consent record, dropping it", "key", LegacyStorageKey)
		s.deleteLegacy(ctx)
		return
	}
	if err := s.kv.Set(ctx, StorageKey, models.Encode(*rec)); err != nil {
		// Leave the legacy key in place so a later session can retry.
		s.warn("legacy consent migration write failed", "error", err)
		return
	}
	s.deleteLegacy(ctx)
}

func (s *RecordStore) deleteLegacy(ctx context.Context) {
	if err := s.kv.Delete(ctx, LegacyStorageKey); err != nil {
		s.warn("failed to delete legacy consent key", "error", err)
	}
}

func (s *RecordStore) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// mirrorValue is the cookie payload: {"a":analytics,"m":marketing}.
type mirrorValue struct {
	A bool `json:"a"`
	M bool `json:"m"`
}

// MirrorCookie builds the consent mirror cookie for a record.
func MirrorCookie(rec models.Record) *http.Cookie {
	raw, _ := json.Marshal(mirrorValue{A: rec.Analytics, M: rec.Marketing})
	return &http.Cookie{
		Name:     MirrorCookieName,
		Value:    url.QueryEscape(string(raw)),
		Path:     "/",
		MaxAge:   MirrorCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	}
}
