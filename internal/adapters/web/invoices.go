package web

import (
	"net/http"

	"backoffice/internal/core"
)

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var status *core.InvoiceStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := core.InvoiceStatus(s)
		status = &st
	}

	invoices, err := h.svc.ListInvoices(r.Context(), owner, status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"invoices": invoices})
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req core.InvoiceInput
	if !decodeJSON(w, r, &req) {
		return
	}

	invoice, err := h.svc.CreateInvoice(r.Context(), owner, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, invoice)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "invoiceID")
	if !ok {
		return
	}

	invoice, err := h.svc.GetInvoice(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "invoiceID")
	if !ok {
		return
	}

	var req core.InvoiceInput
	if !decodeJSON(w, r, &req) {
		return
	}

	invoice, err := h.svc.UpdateInvoice(r.Context(), owner, id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "invoiceID")
	if !ok {
		return
	}

	if err := h.svc.DeleteInvoice(r.Context(), owner, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markInvoiceSent(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "invoiceID")
	if !ok {
		return
	}

	invoice, err := h.svc.MarkInvoiceSent(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "invoiceID")
	if !ok {
		return
	}

	invoice, err := h.svc.CancelInvoice(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}

func (h *Handler) markInvoiceViewed(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "invoiceID")
	if !ok {
		return
	}

	invoice, err := h.svc.MarkInvoiceViewed(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, invoice)
}
