package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maxpert/xidledger/ledger"
	"github.com/maxpert/xidledger/notify"
	"github.com/maxpert/xidledger/txn"
	"github.com/rs/zerolog/log"
)

// Ledger is the read side of a transaction manager exposed over HTTP
type Ledger interface {
	Status(xid uint64) (ledger.Status, error)
	Counter() uint64
	Path() string
	Size() (int64, error)
	Verify() (ledger.VerifyReport, error)
	Digest() (uint64, error)
	Snapshot(w io.Writer) (ledger.SnapshotManifest, error)
	Err() error
}

// Subscriber streams transitions; satisfied by *notify.Hub
type Subscriber interface {
	Subscribe(filter notify.Filter) (<-chan notify.Transition, func())
}

// AdminHandlers handles admin API endpoints for the ledger
type AdminHandlers struct {
	ledger Ledger
	hub    Subscriber
}

// NewAdminHandlers creates a new AdminHandlers instance. hub may be nil, in
// which case the transition stream is not served.
func NewAdminHandlers(l Ledger, hub Subscriber) *AdminHandlers {
	return &AdminHandlers{
		ledger: l,
		hub:    hub,
	}
}

// handleLedger returns the ledger summary
func (h *AdminHandlers) handleLedger(w http.ResponseWriter, r *http.Request) {
	counter := h.ledger.Counter()
	size, err := h.ledger.Size()
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]interface{}{
		"path":          h.ledger.Path(),
		"counter":       counter,
		"size":          size,
		"expected_size": ledger.ExpectedSize(counter),
		"healthy":       true,
	}
	if err := h.ledger.Err(); err != nil {
		response["healthy"] = false
		response["error"] = err.Error()
	}

	writeJSONResponse(w, response)
}

// handleVerify scans the whole ledger and fingerprints it
func (h *AdminHandlers) handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	report, err := h.ledger.Verify()
	if err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	digest, err := h.ledger.Digest()
	if err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"report":      report,
		"ok":          report.OK(),
		"digest":      strconv.FormatUint(digest, 16),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// handleSnapshot streams a snapshot of the ledger
func (h *AdminHandlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Err(); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	name := fmt.Sprintf("xidledger-%d.snap", time.Now().Unix())
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	manifest, err := h.ledger.Snapshot(w)
	if err != nil {
		// Headers are already sent; the truncated body fails restore checks.
		log.Error().Err(err).Msg("Snapshot stream failed")
		return
	}

	log.Info().
		Uint64("counter", manifest.Counter).
		Int64("size", manifest.Size).
		Str("remote", r.RemoteAddr).
		Msg("Served ledger snapshot")
}

// handleXID returns the status of a single xid
func (h *AdminHandlers) handleXID(w http.ResponseWriter, r *http.Request, xid uint64) {
	status, err := h.ledger.Status(xid)
	if err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"xid":    xid,
		"status": status.String(),
		"super":  xid == ledger.SuperXID,
	})
}

// handleTransitions streams transitions as server-sent events until the
// client disconnects
func (h *AdminHandlers) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeErrorResponse(w, http.StatusNotFound, "transition stream is not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorResponse(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	transitions, cancel := h.hub.Subscribe(filter)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			data, err := json.Marshal(map[string]interface{}{
				"xid":    t.XID,
				"status": t.Status.String(),
			})
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode transition")
				return
			}
			if _, err := fmt.Fprintf(w, "event: transition\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// statusFor maps ledger errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, txn.ErrUnknownXID):
		return http.StatusNotFound
	case txn.IsFatal(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseXID parses an xid path parameter
func parseXID(raw string) (uint64, error) {
	if raw == "" {
		return 0, fmt.Errorf("xid is required")
	}

	xid, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid xid: %w", err)
	}

	return xid, nil
}

// parseFilter reads the comma separated status query parameter
func parseFilter(r *http.Request) (notify.Filter, error) {
	var filter notify.Filter
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return filter, nil
	}

	for _, name := range strings.Split(raw, ",") {
		switch strings.TrimSpace(name) {
		case "active":
			filter.Statuses = append(filter.Statuses, ledger.Active)
		case "committed":
			filter.Statuses = append(filter.Statuses, ledger.Committed)
		case "aborted":
			filter.Statuses = append(filter.Statuses, ledger.Aborted)
		default:
			return filter, fmt.Errorf("unknown status %q", name)
		}
	}
	return filter, nil
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"data": data,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
