// Package marketing adapts a social-network pixel library to the loader
// contract.
package marketing

import (
	"context"

	"consentgate/internal/loader"
)

const (
	vendorName = "marketing"
	scriptSrc  = "https://connect.facebook.net/en_US/fbevents.js"

	// ScriptMarker identifies the pixel tag in the document, for load events
	// and duplicate-install checks.
	ScriptMarker = "pixel-loader"

	// PageView is the pixel's standard page-view event name.
	PageView = "PageView"
)

// Vendor drives the marketing pixel through its command shim.
type Vendor struct {
	pixelID string
	shim    loader.Shim
}

// New constructs the marketing vendor. An empty pixel ID is legal and leaves
// the vendor unconfigured.
func New(pixelID string, shim loader.Shim) *Vendor {
	return &Vendor{pixelID: pixelID, shim: shim}
}

func (v *Vendor) Name() string { return vendorName }

func (v *Vendor) Configured() bool { return v.pixelID != "" }

// Install ensures the pixel script exists and runs init exactly once, when
// this call created the tag.
func (v *Vendor) Install(ctx context.Context, doc loader.Document) (bool, error) {
	created, err := doc.EnsureScript(scriptSrc, ScriptMarker)
	if err != nil || !created {
		return created, err
	}
	return created, v.shim.Call(ctx, "init", v.pixelID)
}

func (v *Vendor) Grant(ctx context.Context) error {
	return v.shim.Call(ctx, "consent", "grant")
}

func (v *Vendor) Revoke(ctx context.Context) error {
	return v.shim.Call(ctx, "consent", "revoke")
}

func (v *Vendor) Dispatch(ctx context.Context, ev loader.Event) error {
	if ev.Name == PageView {
		return v.shim.Call(ctx, "track", PageView)
	}
	return v.shim.Call(ctx, "trackCustom", ev.Name, ev.Params)
}

func (v *Vendor) PageViewEvent() loader.Event {
	return loader.Event{Name: PageView}
}

// Verify interface is satisfied.
var _ loader.Vendor = (*Vendor)(nil)
