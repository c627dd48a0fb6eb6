package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"backoffice/internal/app"

	"github.com/go-chi/chi/v5"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Route("/api/owners/{ownerID}", func(r chi.Router) {
			// Clients
			r.Get("/clients", h.listClients)
			r.Post("/clients", h.createClient)
			r.Get("/clients/{clientID}", h.getClient)
			r.Put("/clients/{clientID}", h.updateClient)

			// Invoices
			r.Get("/invoices", h.listInvoices)
			r.Post("/invoices", h.createInvoice)
			r.Get("/invoices/{invoiceID}", h.getInvoice)
			r.Put("/invoices/{invoiceID}", h.updateInvoice)
			r.Delete("/invoices/{invoiceID}", h.deleteInvoice)
			r.Post("/invoices/{invoiceID}/send", h.markInvoiceSent)
			r.Post("/invoices/{invoiceID}/view", h.markInvoiceViewed)
			r.Post("/invoices/{invoiceID}/cancel", h.cancelInvoice)

			// Inventory
			r.Get("/items", h.listItems)
			r.Post("/items", h.createItem)
			r.Get("/items/reorder", h.listReorderCandidates)
			r.Get("/items/{itemID}", h.getItem)
			r.Post("/items/{itemID}/add-stock", h.addStock)
			r.Post("/items/{itemID}/reduce-stock", h.reduceStock)
			r.Post("/items/{itemID}/adjust-stock", h.adjustStock)

			// Payments
			r.Get("/payments", h.listPayments)
			r.Post("/payments", h.createPayment)
			r.Get("/payments/{paymentID}", h.getPayment)
			r.Post("/payments/{paymentID}/complete", h.completePayment)
			r.Post("/payments/{paymentID}/fail", h.failPayment)
			r.Post("/payments/{paymentID}/refund", h.refundPayment)
			r.Post("/payments/{paymentID}/checkout", h.startCheckout)
			r.Get("/payments/verify/{transactionRef}", h.verifyPayment)

			// Subscription
			r.Get("/subscription", h.getSubscription)
			r.Post("/subscription", h.startSubscription)
			r.Post("/subscription/cancel", h.cancelSubscription)
			r.Post("/subscription/suspend", h.suspendSubscription)
		})

		// Reconciliation sweeps (operator endpoint)
		r.Post("/api/sweeps/run", h.runSweeps)
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

func (h *Handler) runSweeps(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunSweeps(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// ownerID extracts and validates the {ownerID} URL parameter.
func ownerID(w http.ResponseWriter, r *http.Request) (int, bool) {
	return intParam(w, r, "ownerID")
}

// intParam extracts a positive integer URL parameter, writing a 400 on failure.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		writeError(w, r, "invalid "+name, "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
