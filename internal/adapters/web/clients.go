package web

import (
	"net/http"

	"backoffice/internal/core"
)

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	clients, err := h.svc.ListClients(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"clients": clients})
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req core.ClientInput
	if !decodeJSON(w, r, &req) {
		return
	}

	client, err := h.svc.CreateClient(r.Context(), owner, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, client)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "clientID")
	if !ok {
		return
	}

	client, err := h.svc.GetClient(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, client)
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "clientID")
	if !ok {
		return
	}

	var req core.ClientInput
	if !decodeJSON(w, r, &req) {
		return
	}

	client, err := h.svc.UpdateClient(r.Context(), owner, id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, client)
}
