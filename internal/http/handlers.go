package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/blitzfilter/item/internal/db"
	"github.com/blitzfilter/item/internal/events"
	"github.com/blitzfilter/item/internal/model"
	"github.com/blitzfilter/item/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ItemService is the service surface the handlers call into
type ItemService interface {
	Ingest(ctx context.Context, item model.Item) (service.IngestResult, error)
	Get(ctx context.Context, sourceID, itemID string) (model.Item, error)
	History(ctx context.Context, sourceID, itemID string) ([]db.ItemEvent, error)
	Hashes(ctx context.Context, sourceID string) ([]db.EventHash, error)
}

// HealthChecker reports whether the service dependencies are reachable
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Handlers serves the item API
type Handlers struct {
	items  ItemService
	health HealthChecker
	log    *zap.Logger
}

// NewHandlers creates the item API handlers
func NewHandlers(items ItemService, health HealthChecker, log *zap.Logger) *Handlers {
	return &Handlers{items: items, health: health, log: log}
}

type ingestResponse struct {
	EventID string `json:"eventId"`
	Hash    string `json:"hash"`
	Changed bool   `json:"changed"`
}

func (h *Handlers) postItem(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return
	}

	var item model.Item
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ctx := events.WithCorrelationID(r.Context(), middleware.GetReqID(r.Context()))
	res, err := h.items.Ingest(ctx, item)
	if err != nil {
		h.logFailure(r, "ingest", err)
		writeServiceError(w, err)
		return
	}

	resp := ingestResponse{Hash: res.Event.Hash, Changed: res.Changed}
	if res.Event.EventID != nil {
		resp.EventID = *res.Event.EventID
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Get(r.Context(), param(r, "sourceId"), param(r, "itemId"))
	if err != nil {
		h.logFailure(r, "get", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.items.History(r.Context(), param(r, "sourceId"), param(r, "itemId"))
	if err != nil {
		h.logFailure(r, "history", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handlers) getHashes(w http.ResponseWriter, r *http.Request) {
	hashes, err := h.items.Hashes(r.Context(), param(r, "sourceId"))
	if err != nil {
		h.logFailure(r, "hashes", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hashes)
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Check(r.Context()); err != nil {
		h.log.Error("Health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy: " + err.Error()))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("healthy"))
}

// param returns the decoded path parameter; chi matches on the escaped path
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func (h *Handlers) logFailure(r *http.Request, op string, err error) {
	h.log.Warn("Request failed",
		zap.String("op", op),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
}
