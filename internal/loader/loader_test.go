package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVendor records every call the loader makes. Dispatch is guarded because
// load hooks drain the queue from their own goroutine.
type fakeVendor struct {
	configured bool
	installErr error

	installs int
	grants   int
	revokes  int

	mu         sync.Mutex
	dispatched []Event
}

func (f *fakeVendor) Name() string     { return "fake" }
func (f *fakeVendor) Configured() bool { return f.configured }

func (f *fakeVendor) Install(_ context.Context, doc Document) (bool, error) {
	if f.installErr != nil {
		return false, f.installErr
	}
	created, err := doc.EnsureScript("https://vendor.example/tag.js", "fake-tag")
	if created {
		f.installs++
	}
	return created, err
}

func (f *fakeVendor) Grant(context.Context) error  { f.grants++; return nil }
func (f *fakeVendor) Revoke(context.Context) error { f.revokes++; return nil }

func (f *fakeVendor) Dispatch(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, ev)
	return nil
}

func (f *fakeVendor) dispatchedEvents() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.dispatched))
	copy(out, f.dispatched)
	return out
}

func (f *fakeVendor) PageViewEvent() Event { return Event{Name: "page_view"} }

func newLoader(vendor Vendor, doc Document) *Loader {
	return New(Config{
		Vendor:   vendor,
		Document: doc,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func eventNames(events []Event) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	return names
}

// Repeated grants must never produce a second script tag.
func TestApplyConsent_AtMostOneInstall(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true}
	head := NewHead()
	l := newLoader(vendor, head)

	l.ApplyConsent(ctx, true)
	l.ApplyConsent(ctx, false)
	l.ApplyConsent(ctx, true)
	l.ApplyConsent(ctx, true)

	assert.Equal(t, 1, vendor.installs)
	assert.Len(t, head.Scripts(), 1)
}

// A second loader over the same document finds the tag by marker and must not
// create another one.
func TestApplyConsent_MarkerPreventsSecondTag(t *testing.T) {
	ctx := context.Background()
	head := NewHead()
	first := &fakeVendor{configured: true}
	second := &fakeVendor{configured: true}

	newLoader(first, head).ApplyConsent(ctx, true)
	newLoader(second, head).ApplyConsent(ctx, true)

	assert.Len(t, head.Scripts(), 1)
	assert.Equal(t, 0, second.installs, "existing marker means no new tag")
}

func TestApplyConsent_Idempotent(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true}
	l := newLoader(vendor, NewHead())
	l.SignalReady(ctx)

	l.ApplyConsent(ctx, true)
	l.ApplyConsent(ctx, true)

	assert.Equal(t, 1, vendor.grants, "repeated grant performs no redundant work")
	assert.Equal(t, []string{"page_view"}, eventNames(vendor.dispatched), "exactly one page view")
}

func TestApplyConsent_RevokeSuppressesAndSignalsOnce(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true}
	head := NewHead()
	l := newLoader(vendor, head)
	l.SignalReady(ctx)

	l.ApplyConsent(ctx, true)
	l.ApplyConsent(ctx, false)
	l.ApplyConsent(ctx, false)

	assert.Equal(t, 1, vendor.revokes, "revoke signal sent exactly once")
	assert.Len(t, head.Scripts(), 1, "script tag is never removed")

	l.TrackEvent(ctx, "cta_click", nil)
	assert.Equal(t, []string{"page_view"}, eventNames(vendor.dispatched), "no events after revocation")
}

func TestTrackEvent_QueueFlushFIFOExactlyOnce(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true}
	l := newLoader(vendor, NewHead())

	l.ApplyConsent(ctx, true)
	l.TrackEvent(ctx, "first", nil)
	l.TrackEvent(ctx, "second", map[string]any{"n": 2})
	l.TrackEvent(ctx, "third", nil)

	assert.Empty(t, vendor.dispatched, "nothing dispatches before readiness")

	l.SignalReady(ctx)
	assert.Equal(t, []string{"page_view", "first", "second", "third"}, eventNames(vendor.dispatched))

	// A second ready signal must not replay the queue.
	l.SignalReady(ctx)
	assert.Len(t, vendor.dispatched, 4)

	// After readiness, events dispatch immediately without entering the queue.
	l.TrackEvent(ctx, "fourth", nil)
	assert.Equal(t, "fourth", vendor.dispatched[4].Name)
}

func TestTrackEvent_SuppressedWithoutConsent(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true}
	l := newLoader(vendor, NewHead())
	l.SignalReady(ctx)

	l.TrackEvent(ctx, "early", nil)
	assert.Empty(t, vendor.dispatched, "no consent applied yet, event suppressed")
}

func TestApplyConsent_RevokeDiscardsQueuedEvents(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true}
	l := newLoader(vendor, NewHead())

	l.ApplyConsent(ctx, true)
	l.TrackEvent(ctx, "pending", nil)
	l.ApplyConsent(ctx, false)
	l.SignalReady(ctx)

	assert.Empty(t, vendor.dispatched, "queued events never replay under a withdrawn consent")
}

func TestLoader_InertWithoutConfiguration(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: false}
	head := NewHead()
	l := newLoader(vendor, head)

	assert.NotPanics(t, func() {
		l.ApplyConsent(ctx, true)
		l.TrackEvent(ctx, "anything", nil)
		l.SignalReady(ctx)
		l.SignalLoadError(errors.New("nope"))
	})
	assert.Empty(t, head.Scripts())
	assert.Zero(t, vendor.grants)
	assert.Empty(t, vendor.dispatched)
}

func TestLoader_NilVendorIsInert(t *testing.T) {
	l := newLoader(nil, NewHead())
	assert.NotPanics(t, func() {
		l.ApplyConsent(context.Background(), true)
		l.TrackEvent(context.Background(), "anything", nil)
	})
}

func TestLoader_ScriptLoadFailureKeepsQueuing(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true}
	l := newLoader(vendor, NewHead())

	l.ApplyConsent(ctx, true)
	l.SignalLoadError(errors.New("network down"))
	l.TrackEvent(ctx, "after_failure", nil)

	assert.Empty(t, vendor.dispatched, "loader never becomes ready this session")
}

func TestLoader_InstallErrorDoesNotMarkInstalled(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true, installErr: errors.New("dom unavailable")}
	l := newLoader(vendor, NewHead())

	l.ApplyConsent(ctx, true)
	assert.Equal(t, 1, vendor.grants, "grant still signaled; collection starts when the tag arrives")

	// Next grant transition retries the install.
	vendor.installErr = nil
	l.ApplyConsent(ctx, false)
	l.ApplyConsent(ctx, true)
	assert.Equal(t, 1, vendor.installs)
}

func TestHead_LoadHookFiresOncePerMarker(t *testing.T) {
	head := NewHead()
	loads := make(chan string, 2)
	head.OnScriptLoad(func(marker string) { loads <- marker })

	created, err := head.EnsureScript("https://vendor.example/tag.js", "fake-tag")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "fake-tag", <-loads)

	created, err = head.EnsureScript("https://vendor.example/tag.js", "fake-tag")
	require.NoError(t, err)
	assert.False(t, created)

	select {
	case m := <-loads:
		t.Fatalf("duplicate load event for marker %q", m)
	case <-time.After(50 * time.Millisecond):
	}
}

// A loader whose readiness is driven by the document's load hook must flush
// the initial page view without anyone calling SignalReady.
func TestLoader_ReadyViaDocumentLoadHook(t *testing.T) {
	ctx := context.Background()
	vendor := &fakeVendor{configured: true}
	head := NewHead()
	l := newLoader(vendor, head)
	head.OnScriptLoad(func(string) { l.SignalReady(context.Background()) })

	l.ApplyConsent(ctx, true)

	require.Eventually(t, func() bool {
		return len(vendor.dispatchedEvents()) == 1
	}, time.Second, 5*time.Millisecond, "load hook readies the loader")
	assert.Equal(t, "page_view", vendor.dispatchedEvents()[0].Name)
}

func TestCallBuffer_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	shim := EnsureShim()

	require.NoError(t, shim.Call(ctx, "init", "id-1"))
	require.NoError(t, shim.Call(ctx, "track", "PageView"))

	calls := shim.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "init", calls[0].Command)
	assert.Equal(t, "track", calls[1].Command)
}
