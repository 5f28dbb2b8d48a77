package loader

import (
	"context"
	"log/slog"
	"sync"
)

// Event is a single application-level tracking call.
type Event struct {
	Name   string
	Params map[string]any
}

// Vendor adapts one third-party tag library (an analytics tag, a marketing
// pixel) to the loader's gating contract. Implementations hold no consent
// state of their own; the Loader decides when each method runs.
type Vendor interface {
	// Name labels the vendor in logs, metrics and spans.
	Name() string

	// Configured reports whether the vendor has the ID it needs. An
	// unconfigured vendor makes its loader permanently inert.
	Configured() bool

	// Install ensures the vendor script tag exists in the document and runs
	// the vendor's bootstrap calls when the tag was just created. It reports
	// whether this call installed the tag.
	Install(ctx context.Context, doc Document) (bool, error)

	// Grant informs the vendor library that collection is allowed.
	Grant(ctx context.Context) error

	// Revoke informs the vendor library that collection must stop.
	Revoke(ctx context.Context) error

	// Dispatch sends one tracking event through the vendor API.
	Dispatch(ctx context.Context, ev Event) error

	// PageViewEvent is the vendor-specific initial page-view event fired
	// right after a grant.
	PageViewEvent() Event
}

// Call is a single invocation recorded against a vendor shim.
type Call struct {
	Command string
	Args    []any
}

// Shim is the vendor command surface (the gtag/pixel function). The real
// third-party library replaces it at script load time; until then the shim's
// contract is to accept every call in order without failing.
type Shim interface {
	Call(ctx context.Context, command string, args ...any) error
}

// CallBuffer is the standard Shim: an ordered, thread-safe record of every
// vendor call. EnsureShim constructs it exactly once per loader so call sites
// never build the shim lazily.
type CallBuffer struct {
	mu    sync.Mutex
	calls []Call
}

// EnsureShim returns a fresh CallBuffer handle.
func EnsureShim() *CallBuffer {
	return &CallBuffer{}
}

func (b *CallBuffer) Call(_ context.Context, command string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Command: command, Args: args})
	return nil
}

// Calls returns a copy of the recorded calls in submission order.
func (b *CallBuffer) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// LogShim forwards vendor calls to a structured logger, for deployments that
// want the call stream in the logs as well.
type LogShim struct {
	vendor string
	next   Shim
	logger *slog.Logger
}

// NewLogShim wraps next so every call is logged before being recorded.
func NewLogShim(vendor string, next Shim, logger *slog.Logger) *LogShim {
	return &LogShim{vendor: vendor, next: next, logger: logger}
}

func (l *LogShim) Call(ctx context.Context, command string, args ...any) error {
	if l.logger != nil {
		l.logger.Debug("vendor call",
			"vendor", l.vendor,
			"command", command,
			"args", args,
		)
	}
	return l.next.Call(ctx, command, args...)
}
