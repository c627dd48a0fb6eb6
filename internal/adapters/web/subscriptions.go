package web

import (
	"net/http"

	"backoffice/internal/core"

	"github.com/shopspring/decimal"
)

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	sub, err := h.svc.GetSubscription(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, sub)
}

func (h *Handler) startSubscription(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req struct {
		PlanType core.PlanType   `json:"planType"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	checkout, err := h.svc.StartSubscription(r.Context(), owner, req.PlanType, req.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, checkout)
}

func (h *Handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := h.svc.CancelSubscription(r.Context(), owner, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, sub)
}

func (h *Handler) suspendSubscription(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := h.svc.SuspendSubscription(r.Context(), owner, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, sub)
}
