package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/Spec-DY/Drone-Panel/internal/httpx"
	"github.com/Spec-DY/Drone-Panel/internal/ingest"
	"github.com/Spec-DY/Drone-Panel/internal/model"
	"github.com/Spec-DY/Drone-Panel/internal/query"
)

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)
	mux.HandleFunc("/api/telemetry", a.handleTelemetry)
	mux.HandleFunc("/api/telemetry/batch", a.handleTelemetryBatch)
	mux.HandleFunc("/api/journal", a.handleJournal)
	return httpx.RequestID(mux)
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		a.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		a.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	a.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *App) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.queryTelemetry(w, r)
	case http.MethodPost:
		body, ok := a.readBody(w, r)
		if !ok {
			return
		}
		a.writeReceipt(w, r, a.ingest.AcceptOne(r.Context(), body, ""))
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *App) handleTelemetryBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	a.writeReceipt(w, r, a.ingest.AcceptBatch(r.Context(), body))
}

func (a *App) queryTelemetry(w http.ResponseWriter, r *http.Request) {
	params, err := query.ParamsFromQuery(r.URL.Query())
	if err != nil {
		a.writeJSON(w, r, http.StatusBadRequest, ingest.ReceiptFor(err))
		return
	}

	res, err := a.query.Resolve(r.Context(), params)
	if err != nil {
		receipt := ingest.ReceiptFor(err)
		a.writeJSON(w, r, statusFor(receipt), receipt)
		return
	}
	a.writeJSON(w, r, http.StatusOK, res)
}

func (a *App) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	body, ok := a.readBody(w, r)
	if !ok {
		return
	}

	var line bytes.Buffer
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Compact(&line, trimmed) != nil {
		a.writeJSON(w, r, http.StatusBadRequest, ingest.ReceiptFor(model.Invalid("body", "must be a JSON object")))
		return
	}

	path, err := a.journal.Append(json.RawMessage(line.Bytes()))
	if err != nil {
		a.logger.Error("journal append failed", "error", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		a.writeJSON(w, r, http.StatusInternalServerError, ingest.ReceiptFor(err))
		return
	}

	a.writeJSON(w, r, http.StatusCreated, map[string]string{"status": ingest.StatusAccepted, "file": filepath.Base(path)})
}

// readBody reads the request body within the configured cap. On failure the
// response has already been written.
func (a *App) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes))
	if err == nil {
		return body, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		reason := fmt.Sprintf("exceeds %d bytes", tooLarge.Limit)
		a.writeJSON(w, r, http.StatusRequestEntityTooLarge, ingest.ReceiptFor(model.Invalid("body", reason)))
		return nil, false
	}
	a.writeJSON(w, r, http.StatusBadRequest, ingest.ReceiptFor(model.Invalid("body", "could not be read")))
	return nil, false
}

func (a *App) writeReceipt(w http.ResponseWriter, r *http.Request, receipt ingest.Receipt) {
	a.writeJSON(w, r, statusFor(receipt), receipt)
}

func statusFor(receipt ingest.Receipt) int {
	switch {
	case receipt.Status == ingest.StatusAccepted:
		return http.StatusCreated
	case receipt.Kind == ingest.KindValidation:
		return http.StatusBadRequest
	case receipt.Kind == ingest.KindStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", "path", r.URL.Path, "error", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	}
}
