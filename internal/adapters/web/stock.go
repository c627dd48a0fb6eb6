package web

import (
	"net/http"

	"backoffice/internal/app"
	"backoffice/internal/core"
)

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListInventoryItems(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req core.InventoryItemInput
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.svc.CreateInventoryItem(r.Context(), owner, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, item)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "itemID")
	if !ok {
		return
	}

	item, err := h.svc.GetInventoryItem(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, item)
}

func (h *Handler) listReorderCandidates(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListReorderCandidates(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "itemID")
	if !ok {
		return
	}

	var req app.StockMovementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.svc.AddStock(r.Context(), owner, id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, item)
}

func (h *Handler) reduceStock(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "itemID")
	if !ok {
		return
	}

	var req app.StockMovementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.svc.ReduceStock(r.Context(), owner, id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, item)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "itemID")
	if !ok {
		return
	}

	var req app.StockAdjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.svc.AdjustStock(r.Context(), owner, id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, item)
}
