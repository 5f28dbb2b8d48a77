package httptransport

import (
	"log/slog"
	"net/http"

	"consentgate/internal/consent/state"
	"consentgate/internal/consent/store"
	"consentgate/internal/platform/middleware"
	"consentgate/internal/transport/http/json"
	dErrors "consentgate/pkg/domain-errors"
	httpErrors "consentgate/pkg/http-errors"
)

// Handler is the thin HTTP layer over the consent state machine. It delegates
// every intent to the machine without embedding business logic so transport
// concerns remain isolated.
type Handler struct {
	machine *state.Machine
	logger  *slog.Logger
}

// NewHandler creates the consent HTTP handler.
func NewHandler(machine *state.Machine, logger *slog.Logger) *Handler {
	return &Handler{machine: machine, logger: logger}
}

type recordResponse struct {
	Essential bool  `json:"essential"`
	Analytics bool  `json:"analytics"`
	Marketing bool  `json:"marketing"`
	TS        int64 `json:"ts"`
}

type snapshotResponse struct {
	Ready           bool            `json:"ready"`
	BannerVisible   bool            `json:"banner_visible"`
	PreferencesOpen bool            `json:"preferences_open"`
	Announcement    string          `json:"announcement,omitempty"`
	Record          *recordResponse `json:"record"`
}

func toSnapshotResponse(snap state.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		Ready:           snap.Ready,
		BannerVisible:   snap.BannerVisible,
		PreferencesOpen: snap.PreferencesOpen,
		Announcement:    snap.Announcement,
	}
	if snap.Record != nil {
		resp.Record = &recordResponse{
			Essential: snap.Record.Essential,
			Analytics: snap.Record.Analytics,
			Marketing: snap.Record.Marketing,
			TS:        snap.Record.Timestamp,
		}
	}
	return resp
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	json.WriteJSON(w, http.StatusOK, toSnapshotResponse(h.machine.Snapshot()))
}

func (h *Handler) handleAcceptAll(w http.ResponseWriter, r *http.Request) {
	if h.skipBot(w, r) {
		return
	}
	h.machine.AcceptAll(r.Context())
	h.respondWithRecord(w)
}

func (h *Handler) handleRejectAll(w http.ResponseWriter, r *http.Request) {
	if h.skipBot(w, r) {
		return
	}
	h.machine.RejectAll(r.Context())
	h.respondWithRecord(w)
}

type preferencesRequest struct {
	Analytics *bool `json:"analytics"`
	Marketing *bool `json:"marketing"`
}

func (h *Handler) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	if h.skipBot(w, r) {
		return
	}
	var req preferencesRequest
	if err := json.DecodeStrict(r, &req); err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid preferences payload"))
		return
	}

	// Partial save merges with the current record; a flag that was never
	// chosen stays off.
	analytics, marketing := false, false
	if rec := h.machine.Snapshot().Record; rec != nil {
		analytics, marketing = rec.Analytics, rec.Marketing
	}
	if req.Analytics != nil {
		analytics = *req.Analytics
	}
	if req.Marketing != nil {
		marketing = *req.Marketing
	}

	h.machine.SavePreferences(r.Context(), analytics, marketing)
	h.respondWithRecord(w)
}

func (h *Handler) handleOpenPreferences(w http.ResponseWriter, _ *http.Request) {
	h.machine.OpenPreferences()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClosePreferences(w http.ResponseWriter, _ *http.Request) {
	h.machine.ClosePreferences()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOpenBanner(w http.ResponseWriter, _ *http.Request) {
	h.machine.OpenBanner()
	w.WriteHeader(http.StatusNoContent)
}

type announceRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := json.DecodeStrict(r, &req); err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid announce payload"))
		return
	}
	h.machine.Announce(req.Message)
	w.WriteHeader(http.StatusNoContent)
}

// respondWithRecord mirrors the fresh record into the consent cookie and
// returns the new snapshot.
func (h *Handler) respondWithRecord(w http.ResponseWriter) {
	snap := h.machine.Snapshot()
	if snap.Record != nil {
		http.SetCookie(w, store.MirrorCookie(*snap.Record))
	}
	json.WriteJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

// skipBot drops consent intents from crawler traffic: bots never see a banner
// and must never mint a consent record.
func (h *Handler) skipBot(w http.ResponseWriter, r *http.Request) bool {
	if !middleware.IsBot(r.Context()) {
		return false
	}
	h.logger.Debug("ignoring consent intent from crawler", "path", r.URL.Path)
	w.WriteHeader(http.StatusNoContent)
	return true
}

// writeError centralizes domain error translation to HTTP responses, keeping
// the JSON error envelope consistent.
func writeError(w http.ResponseWriter, err error) {
	status, code := httpErrors.StatusFor(err)
	json.WriteJSON(w, status, map[string]string{
		"error": string(code),
	})
}
