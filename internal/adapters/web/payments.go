package web

import (
	"net/http"

	"backoffice/internal/app"
	"backoffice/internal/core"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var status *core.PaymentState
	if s := r.URL.Query().Get("status"); s != "" {
		st := core.PaymentState(s)
		status = &st
	}

	payments, err := h.svc.ListPayments(r.Context(), owner, status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"payments": payments})
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req core.PaymentInput
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, err := h.svc.CreatePayment(r.Context(), owner, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, payment)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "paymentID")
	if !ok {
		return
	}

	payment, err := h.svc.GetPayment(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) completePayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "paymentID")
	if !ok {
		return
	}

	payment, err := h.svc.CompletePayment(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) failPayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "paymentID")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, err := h.svc.FailPayment(r.Context(), owner, id, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "paymentID")
	if !ok {
		return
	}

	var req app.RefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, err := h.svc.RefundPayment(r.Context(), owner, id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

func (h *Handler) startCheckout(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "paymentID")
	if !ok {
		return
	}

	var req core.GatewayCustomer
	if !decodeJSON(w, r, &req) {
		return
	}

	link, err := h.svc.StartCheckout(r.Context(), owner, id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"paymentLink": link})
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	ref := chi.URLParam(r, "transactionRef")
	if ref == "" {
		writeError(w, r, "missing transaction reference", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	payment, err := h.svc.VerifyPayment(r.Context(), owner, ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}
