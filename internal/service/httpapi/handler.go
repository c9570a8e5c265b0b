package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/marketplace/internal/service/webhook"
)

// Заголовки протокола.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderActorID        = "X-Actor-Id"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 1 << 20

// Handler связывает HTTP-поверхность с оркестратором и webhook-ingestor'ом.
type Handler struct {
	orchestrator    *lifecycle.Orchestrator
	ingestor        *webhook.Ingestor
	guard           *idempotency.Guard
	signatureHeader string
	logger          *log.Entry
}

// NewHandler создаёт HTTP-обработчик. signatureHeader — имя заголовка
// с подписью webhook-запросов провайдера.
func NewHandler(orchestrator *lifecycle.Orchestrator, ingestor *webhook.Ingestor, guard *idempotency.Guard, signatureHeader string, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	if signatureHeader == "" {
		signatureHeader = "X-Signature"
	}
	return &Handler{
		orchestrator:    orchestrator,
		ingestor:        ingestor,
		guard:           guard,
		signatureHeader: signatureHeader,
		logger:          logger,
	}
}

// Router собирает маршруты сервиса.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("GET /orders/{id}/timeline", h.getTimeline)
	mux.HandleFunc("POST /orders/{id}/payment-intent", h.createPaymentIntent)
	mux.HandleFunc("POST /orders/{id}/transition", h.transition)
	mux.HandleFunc("POST /orders/{id}/accept", h.accept)
	mux.HandleFunc("POST /orders/{id}/reject", h.reject)
	mux.HandleFunc("POST /orders/{id}/assign", h.assignDriver)
	mux.HandleFunc("POST /webhooks/payment", h.paymentWebhook)

	return mux
}

type createOrderRequest struct {
	VendorID         string `json:"vendor_id"`
	Currency         string `json:"currency"`
	SubtotalMinor    int64  `json:"subtotal_minor"`
	TaxMinor         int64  `json:"tax_minor"`
	DeliveryFeeMinor int64  `json:"delivery_fee_minor"`
}

type transitionRequest struct {
	TargetStatus string `json:"target_status"`
	Reason       string `json:"reason,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type assignRequest struct {
	DriverID string `json:"driver_id"`
}

type orderResponse struct {
	ID                 string `json:"id"`
	CustomerID         string `json:"customer_id"`
	VendorID           string `json:"vendor_id"`
	DriverID           string `json:"driver_id,omitempty"`
	Status             string `json:"status"`
	Currency           string `json:"currency"`
	SubtotalMinor      int64  `json:"subtotal_minor"`
	TaxMinor           int64  `json:"tax_minor"`
	DeliveryFeeMinor   int64  `json:"delivery_fee_minor"`
	TotalMinor         int64  `json:"total_minor"`
	PaymentID          string `json:"payment_id,omitempty"`
	PaymentStatus      string `json:"payment_status,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	Version            int64  `json:"version"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
	DeliveredAt        string `json:"delivered_at,omitempty"`
}

type paymentResponse struct {
	ID                string `json:"id"`
	OrderID           string `json:"order_id"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Status            string `json:"status"`
	AmountMinor       int64  `json:"amount_minor"`
	Currency          string `json:"currency"`
}

type timelineEventResponse struct {
	ID        string            `json:"id"`
	ActorID   string            `json:"actor_id,omitempty"`
	ActorRole string            `json:"actor_role,omitempty"`
	Type      string            `json:"type"`
	OldStatus string            `json:"old_status,omitempty"`
	NewStatus string            `json:"new_status,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Occurred  string            `json:"occurred_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get(HeaderActorID)
	body, err := readBody(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.executeGuarded(r, "POST /orders", actorID, body, func() (int, []byte, error) {
		var req createOrderRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return 0, nil, badRequest(err)
		}
		order, err := h.orchestrator.CreateOrder(r.Context(), lifecycle.CreateOrderInput{
			CustomerID:       actorID,
			VendorID:         req.VendorID,
			Currency:         req.Currency,
			SubtotalMinor:    req.SubtotalMinor,
			TaxMinor:         req.TaxMinor,
			DeliveryFeeMinor: req.DeliveryFeeMinor,
		})
		if err != nil {
			return 0, nil, err
		}
		payload, err := json.Marshal(toOrderResponse(order))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, payload, nil
	})
	h.writeGuardResult(w, result, err)
}

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	actorID := r.Header.Get(HeaderActorID)

	result, err := h.executeGuarded(r, "POST /orders/{id}/payment-intent", actorID, []byte(orderID), func() (int, []byte, error) {
		payment, err := h.orchestrator.CreatePaymentIntent(r.Context(), orderID, actorID)
		if err != nil {
			return 0, nil, err
		}
		payload, err := json.Marshal(paymentResponse{
			ID:                payment.ID,
			OrderID:           payment.OrderID,
			Provider:          payment.Provider,
			ProviderPaymentID: payment.ProviderPaymentID,
			Status:            string(payment.Status),
			AmountMinor:       payment.AmountMinor,
			Currency:          payment.Currency,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, payload, nil
	})
	h.writeGuardResult(w, result, err)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orchestrator.GetOrder(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.orchestrator.Timeline(r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	response := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, timelineEventResponse{
			ID:        event.ID,
			ActorID:   event.ActorID,
			ActorRole: string(event.ActorRole),
			Type:      event.Type,
			OldStatus: string(event.OldStatus),
			NewStatus: string(event.NewStatus),
			Reason:    event.Reason,
			Metadata:  event.Metadata,
			Occurred:  event.Occurred.Format(time.RFC3339Nano),
		})
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.TargetStatus == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("target_status is required"))
		return
	}

	order, err := h.orchestrator.Transition(r.Context(), r.PathValue("id"), domain.OrderStatus(req.TargetStatus), r.Header.Get(HeaderActorID), req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	order, err := h.orchestrator.Accept(r.Context(), r.PathValue("id"), r.Header.Get(HeaderActorID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	order, err := h.orchestrator.Reject(r.Context(), r.PathValue("id"), r.Header.Get(HeaderActorID), req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) assignDriver(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.DriverID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("driver_id is required"))
		return
	}

	order, err := h.orchestrator.AssignDriver(r.Context(), r.PathValue("id"), req.DriverID, r.Header.Get(HeaderActorID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	duplicate, err := h.ingestor.Ingest(r.Context(), body, r.Header.Get(h.signatureHeader))
	switch {
	case errors.Is(err, webhook.ErrSignatureInvalid):
		h.writeError(w, http.StatusUnauthorized, err)
		return
	case errors.Is(err, webhook.ErrMalformedPayload):
		h.writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		h.logger.WithError(err).Error("webhook ingest failed")
		h.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"received": true, "duplicate": duplicate})
}

// executeGuarded прогоняет операцию через idempotency guard с ключом
// из заголовков запроса.
func (h *Handler) executeGuarded(r *http.Request, endpoint, actorID string, body []byte, fn func() (int, []byte, error)) (idempotency.Result, error) {
	key := domain.IdempotencyKey{
		Key:         r.Header.Get(HeaderIdempotencyKey),
		PrincipalID: actorID,
		Endpoint:    endpoint,
	}
	return h.guard.Execute(key, idempotency.RequestHash(endpoint, body), fn)
}

// writeGuardResult мапит исход guard'а в HTTP-ответ.
func (h *Handler) writeGuardResult(w http.ResponseWriter, result idempotency.Result, err error) {
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if result.Replayed {
		w.Header().Set("Idempotency-Replayed", "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)
}

// writeDomainError переводит доменные ошибки в HTTP-статусы.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var badReq *badRequestError
	switch {
	case errors.As(err, &badReq):
		h.writeError(w, http.StatusBadRequest, badReq.cause)
	case domain.IsPermissionDenied(err):
		h.writeError(w, http.StatusForbidden, err)
	case domain.IsTransitionDenied(err), domain.IsVersionConflict(err):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrIdempotencyInFlight):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		h.writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrActorNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case isValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.WithError(err).Error("request failed")
		h.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrCustomerRequired,
		domain.ErrVendorRequired,
		domain.ErrCurrencyRequired,
		domain.ErrAmountNegative,
		domain.ErrTotalMismatch,
		domain.ErrOrderIDRequired,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

type badRequestError struct {
	cause error
}

func (e *badRequestError) Error() string { return e.cause.Error() }

func badRequest(err error) error {
	return &badRequestError{cause: err}
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readBody(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("encode response failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:                 order.ID,
		CustomerID:         order.CustomerID,
		VendorID:           order.VendorID,
		DriverID:           order.DriverID,
		Status:             string(order.Status),
		Currency:           order.Currency,
		SubtotalMinor:      order.SubtotalMinor,
		TaxMinor:           order.TaxMinor,
		DeliveryFeeMinor:   order.DeliveryFeeMinor,
		TotalMinor:         order.TotalMinor,
		PaymentID:          order.PaymentID,
		PaymentStatus:      string(order.PaymentStatus),
		CancellationReason: order.CancellationReason,
		Version:            order.Version,
		CreatedAt:          order.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:          order.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !order.DeliveredAt.IsZero() {
		resp.DeliveredAt = order.DeliveredAt.Format(time.RFC3339Nano)
	}
	return resp
}
