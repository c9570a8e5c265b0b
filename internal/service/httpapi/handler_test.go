package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/driver"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
	"github.com/vladislavdragonenkov/marketplace/internal/service/webhook"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

const webhookSecret = "test-secret"

type apiEnv struct {
	router   http.Handler
	payments domain.PaymentRepository
	orders   domain.OrderRepository
	provider *payment.MockProvider
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	actors := memory.NewActorDirectory()
	actors.Register(domain.Actor{ID: "c-1", Role: domain.RoleCustomer})
	actors.Register(domain.Actor{ID: "v-1", Role: domain.RoleVendor})
	actors.Register(domain.Actor{ID: "d-1", Role: domain.RoleDriver})

	env := &apiEnv{
		payments: memory.NewPaymentRepository(),
		orders:   memory.NewOrderRepository(),
		provider: payment.NewMockProvider(),
	}
	timeline := memory.NewTimelineRepository()

	orchestrator := lifecycle.NewOrchestrator(lifecycle.Dependencies{
		Orders:   env.orders,
		Payments: env.payments,
		Timeline: timeline,
		Actors:   actors,
		Provider: env.provider,
		Drivers:  driver.NewMockLocator(),
	}, nil)

	verifier, err := webhook.NewVerifier("generic-hmac", webhookSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	processor := webhook.NewProcessor(env.payments, env.orders, nil)
	ingestor := webhook.NewIngestor(memory.NewWebhookEventRepository(), processor, verifier, nil)
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), nil)

	env.router = NewHandler(orchestrator, ingestor, guard, "X-Signature", nil).Router()
	return env
}

func (env *apiEnv) do(t *testing.T, method, path, actorID, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actorID != "" {
		req.Header.Set(HeaderActorID, actorID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	return recorder
}

func (env *apiEnv) placeOrder(t *testing.T) string {
	t.Helper()

	resp := env.do(t, http.MethodPost, "/orders", "c-1",
		`{"vendor_id":"v-1","currency":"RUB","subtotal_minor":10000,"tax_minor":800,"delivery_fee_minor":200}`, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create order: status %d body %s", resp.Code, resp.Body.String())
	}

	var order orderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	return order.ID
}

func TestCreateOrder(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodPost, "/orders", "c-1",
		`{"vendor_id":"v-1","currency":"RUB","subtotal_minor":10000,"tax_minor":800,"delivery_fee_minor":200}`, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", resp.Code, resp.Body.String())
	}

	var order orderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.Status != "placed" || order.TotalMinor != 11000 || order.CustomerID != "c-1" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestCreateOrder_ValidationError(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodPost, "/orders", "c-1",
		`{"currency":"RUB","subtotal_minor":-1}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateOrder_IdempotencyReplay(t *testing.T) {
	env := newAPIEnv(t)

	body := `{"vendor_id":"v-1","currency":"RUB","subtotal_minor":10000,"tax_minor":800,"delivery_fee_minor":200}`
	headers := map[string]string{HeaderIdempotencyKey: "idem-1"}

	first := env.do(t, http.MethodPost, "/orders", "c-1", body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("first: status %d", first.Code)
	}
	second := env.do(t, http.MethodPost, "/orders", "c-1", body, headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: status %d", second.Code)
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("replay must be marked")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatal("replay must return the stored response")
	}

	// Тот же ключ с другим телом — конфликт.
	other := env.do(t, http.MethodPost, "/orders", "c-1",
		`{"vendor_id":"v-1","currency":"RUB","subtotal_minor":500,"tax_minor":0,"delivery_fee_minor":0}`, headers)
	if other.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on hash mismatch, got %d", other.Code)
	}
}

func TestTransitionEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	orderID := env.placeOrder(t)

	// Покупатель не может принять заказ.
	resp := env.do(t, http.MethodPost, "/orders/"+orderID+"/accept", "c-1", "", nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodPost, "/orders/"+orderID+"/accept", "v-1", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", resp.Code, resp.Body.String())
	}
	var order orderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.Status != "accepted" {
		t.Fatalf("expected accepted, got %s", order.Status)
	}

	// Структурно недопустимый переход — конфликт.
	resp = env.do(t, http.MethodPost, "/orders/"+orderID+"/transition", "v-1",
		`{"target_status":"delivered"}`, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodPost, "/orders/"+orderID+"/transition", "v-1",
		`{"target_status":"preparing"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("transition: status %d body %s", resp.Code, resp.Body.String())
	}

	// Неизвестный заказ.
	resp = env.do(t, http.MethodPost, "/orders/ghost/transition", "v-1",
		`{"target_status":"preparing"}`, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRejectWithReason(t *testing.T) {
	env := newAPIEnv(t)
	orderID := env.placeOrder(t)

	resp := env.do(t, http.MethodPost, "/orders/"+orderID+"/reject", "v-1",
		`{"reason":"out of stock"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("reject: status %d body %s", resp.Code, resp.Body.String())
	}

	var order orderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.Status != "cancelled" || order.CancellationReason != "out of stock" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestAssignDriverEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	orderID := env.placeOrder(t)

	for _, target := range []string{"accepted", "preparing", "ready"} {
		resp := env.do(t, http.MethodPost, "/orders/"+orderID+"/transition", "v-1",
			`{"target_status":"`+target+`"}`, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("transition to %s: status %d", target, resp.Code)
		}
	}

	resp := env.do(t, http.MethodPost, "/orders/"+orderID+"/assign", "d-1",
		`{"driver_id":"d-1"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("assign: status %d body %s", resp.Code, resp.Body.String())
	}

	var order orderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.Status != "assigned" || order.DriverID != "d-1" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestCreatePaymentIntentEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	orderID := env.placeOrder(t)
	env.provider.CreateIntentID = "pi_test"

	resp := env.do(t, http.MethodPost, "/orders/"+orderID+"/payment-intent", "c-1", "", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("intent: status %d body %s", resp.Code, resp.Body.String())
	}

	var pay paymentResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &pay); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pay.ProviderPaymentID != "pi_test" || pay.AmountMinor != 11000 || pay.Status != "pending" {
		t.Fatalf("unexpected payment: %+v", pay)
	}
}

func TestTimelineEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	orderID := env.placeOrder(t)

	resp := env.do(t, http.MethodPost, "/orders/"+orderID+"/accept", "v-1", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("accept: status %d", resp.Code)
	}

	resp = env.do(t, http.MethodGet, "/orders/"+orderID+"/timeline", "c-1", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("timeline: status %d", resp.Code)
	}

	var events []timelineEventResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != domain.TimelineEventOrderPlaced || events[1].NewStatus != "accepted" {
		t.Fatalf("unexpected timeline: %+v", events)
	}
}

func TestPaymentWebhookEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	orderID := env.placeOrder(t)
	env.provider.CreateIntentID = "pi_wh"

	if resp := env.do(t, http.MethodPost, "/orders/"+orderID+"/payment-intent", "c-1", "", nil); resp.Code != http.StatusCreated {
		t.Fatalf("intent: status %d", resp.Code)
	}

	body := `{"id":"evt_1","type":"payment.captured","data":{"payment_id":"pi_wh"}}`
	signature := webhook.Sign(webhookSecret, []byte(body))

	resp := env.do(t, http.MethodPost, "/webhooks/payment", "", body, map[string]string{"X-Signature": signature})
	if resp.Code != http.StatusOK {
		t.Fatalf("webhook: status %d body %s", resp.Code, resp.Body.String())
	}

	pay, err := env.payments.GetByProviderPaymentID("pi_wh")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if pay.Status != domain.PaymentStatusCaptured {
		t.Fatalf("expected captured, got %s", pay.Status)
	}

	// Повторная доставка подтверждается как дубликат.
	resp = env.do(t, http.MethodPost, "/webhooks/payment", "", body, map[string]string{"X-Signature": signature})
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"duplicate":true`) {
		t.Fatalf("duplicate delivery: status %d body %s", resp.Code, resp.Body.String())
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	env := newAPIEnv(t)

	body := `{"id":"evt_1","type":"payment.captured","data":{}}`
	resp := env.do(t, http.MethodPost, "/webhooks/payment", "", body, map[string]string{"X-Signature": "deadbeef"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp = env.do(t, http.MethodPost, "/webhooks/payment", "", "not-json", map[string]string{"X-Signature": webhook.Sign(webhookSecret, []byte("not-json"))})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on malformed payload, got %d", resp.Code)
	}
}
