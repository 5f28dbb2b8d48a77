// Package analytics adapts a gtag-style analytics library to the loader
// contract.
package analytics

import (
	"context"
	"time"

	"consentgate/internal/loader"
)

const (
	vendorName = "analytics"
	scriptBase = "https://www.googletagmanager.com/gtag/js?id="

	// ScriptMarker identifies the analytics tag in the document, for load
	// events and duplicate-install checks.
	ScriptMarker = "gtag-loader"
)

// Vendor drives the analytics tag through its command shim.
type Vendor struct {
	measurementID string
	shim          loader.Shim
	clock         func() time.Time
}

// New constructs the analytics vendor. An empty measurement ID is legal and
// leaves the vendor unconfigured.
func New(measurementID string, shim loader.Shim) *Vendor {
	return &Vendor{measurementID: measurementID, shim: shim, clock: time.Now}
}

func (v *Vendor) Name() string { return vendorName }

func (v *Vendor) Configured() bool { return v.measurementID != "" }

// Install ensures the tag script exists and, when this call created it, runs
// the bootstrap: the js timestamp call and a privacy-hardened config call.
func (v *Vendor) Install(ctx context.Context, doc loader.Document) (bool, error) {
	created, err := doc.EnsureScript(scriptBase+v.measurementID, ScriptMarker)
	if err != nil || !created {
		return created, err
	}
	if err := v.shim.Call(ctx, "js", v.clock()); err != nil {
		return created, err
	}
	err = v.shim.Call(ctx, "config", v.measurementID, map[string]any{
		"anonymize_ip":                     true,
		"allow_google_signals":             false,
		"allow_ad_personalization_signals": false,
	})
	return created, err
}

// Grant sends a consent update with analytics storage granted. The ad-side
// categories stay denied: this site never trades analytics consent for ads.
func (v *Vendor) Grant(ctx context.Context) error {
	return v.consentUpdate(ctx, true)
}

// Revoke sends a consent update with every category denied.
func (v *Vendor) Revoke(ctx context.Context) error {
	return v.consentUpdate(ctx, false)
}

func (v *Vendor) consentUpdate(ctx context.Context, granted bool) error {
	analyticsStorage := "denied"
	if granted {
		analyticsStorage = "granted"
	}
	return v.shim.Call(ctx, "consent", "update", map[string]string{
		"ad_storage":         "denied",
		"analytics_storage":  analyticsStorage,
		"ad_user_data":       "denied",
		"ad_personalization": "denied",
	})
}

func (v *Vendor) Dispatch(ctx context.Context, ev loader.Event) error {
	if ev.Params == nil {
		return v.shim.Call(ctx, "event", ev.Name)
	}
	return v.shim.Call(ctx, "event", ev.Name, ev.Params)
}

func (v *Vendor) PageViewEvent() loader.Event {
	return loader.Event{Name: "page_view"}
}

// Verify interface is satisfied.
var _ loader.Vendor = (*Vendor)(nil)
