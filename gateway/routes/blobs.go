package routes

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FranchuFranchu/kelili/block"
	"github.com/FranchuFranchu/kelili/dht"
)

type handlers struct {
	overlay Overlay
	maxBody int64
	logger  *slog.Logger
}

type storedResponse struct {
	Hash string `json:"hash"`
	Size int    `json:"size"`
}

type statusResponse struct {
	Node string `json:"node"`
}

type blockPayload struct {
	Index     uint64 `json:"index"`
	ManaLimit uint64 `json:"manaLimit"`
	MemoLimit uint64 `json:"memoLimit"`
	Code      []byte `json:"code"`
	Name      string `json:"name,omitempty"`
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Node: h.overlay.Info().ID.String()})
}

func (h *handlers) putBlob(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readBody(w, r)
	if !ok {
		return
	}
	id, err := h.overlay.Store(r.Context(), data)
	if err != nil {
		h.fail(w, r, "store blob", err)
		return
	}
	writeJSON(w, http.StatusCreated, storedResponse{Hash: id.String(), Size: len(data)})
}

func (h *handlers) getBlob(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseHash(w, r)
	if !ok {
		return
	}
	data, found, err := h.overlay.Find(r.Context(), hash)
	if err != nil {
		h.fail(w, r, "find blob", err)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) putBlock(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var payload blockPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid block: "+err.Error(), http.StatusBadRequest)
		return
	}
	b := &block.Block{
		Index:     payload.Index,
		ManaLimit: payload.ManaLimit,
		MemoLimit: payload.MemoLimit,
		Code:      payload.Code,
		Name:      payload.Name,
	}
	id, err := block.Put(r.Context(), h.overlay, b)
	if err != nil {
		h.fail(w, r, "store block", err)
		return
	}
	writeJSON(w, http.StatusCreated, storedResponse{Hash: id.String(), Size: len(b.Code)})
}

func (h *handlers) getBlock(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseHash(w, r)
	if !ok {
		return
	}
	b, found, err := block.Get(r.Context(), h.overlay, hash)
	if err != nil {
		h.fail(w, r, "find block", err)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, blockPayload{
		Index:     b.Index,
		ManaLimit: b.ManaLimit,
		MemoLimit: b.MemoLimit,
		Code:      b.Code,
		Name:      b.Name,
	})
}

func (h *handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, "read body", http.StatusBadRequest)
		return nil, false
	}
	if len(data) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return nil, false
	}
	return data, true
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusBadGateway
	if dht.IsPeerStopped(err) {
		status = http.StatusServiceUnavailable
	}
	if r.Context().Err() != nil {
		status = http.StatusGatewayTimeout
	}
	h.logger.Warn("gateway: "+op+" failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	http.Error(w, op+" failed", status)
}

func parseHash(w http.ResponseWriter, r *http.Request) (dht.ID, bool) {
	hash, err := dht.ParseID(chi.URLParam(r, "hash"))
	if err != nil {
		http.Error(w, "invalid hash", http.StatusBadRequest)
		return dht.ID{}, false
	}
	return hash, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
