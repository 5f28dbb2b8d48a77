package loader

import "sync"

// Document is the page-head capability a vendor installs its script tag into.
// EnsureScript registers a tag at most once per marker: it reports installed
// true only when this call created the tag, so repeated calls can never
// produce a second tag for the same vendor.
type Document interface {
	EnsureScript(src, marker string) (installed bool, err error)
}

// ScriptTag is a registered script element.
type ScriptTag struct {
	Src    string
	Marker string
}

// LoadHook observes script tags finishing their load, identified by marker.
type LoadHook func(marker string)

// Head is the in-process Document implementation: an ordered script registry
// keyed by stable markers.
type Head struct {
	mu      sync.Mutex
	scripts []ScriptTag
	markers map[string]bool
	hooks   []LoadHook
}

// NewHead constructs an empty Head.
func NewHead() *Head {
	return &Head{markers: make(map[string]bool)}
}

// OnScriptLoad registers a hook for future script loads. The in-process head
// has no network fetch, so a tag is loaded as soon as it is registered; each
// hook runs on its own goroutine, the way a tag's load event fires after the
// installing call has returned. Tags already present do not replay.
func (h *Head) OnScriptLoad(fn LoadHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

func (h *Head) EnsureScript(src, marker string) (bool, error) {
	h.mu.Lock()
	if h.markers[marker] {
		h.mu.Unlock()
		return false, nil
	}
	h.markers[marker] = true
	h.scripts = append(h.scripts, ScriptTag{Src: src, Marker: marker})
	hooks := make([]LoadHook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	for _, fn := range hooks {
		go fn(marker)
	}
	return true, nil
}

// Scripts returns a copy of the registered tags in insertion order.
func (h *Head) Scripts() []ScriptTag {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ScriptTag, len(h.scripts))
	copy(out, h.scripts)
	return out
}
