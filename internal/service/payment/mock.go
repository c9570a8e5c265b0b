package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// MockProvider — конфигурируемая заглушка PaymentProvider для тестов и
// локальной разработки без реального платёжного провайдера.
type MockProvider struct {
	mu sync.Mutex

	CreateIntentID  string // пустая строка — генерировать "pi_<uuid>"
	CreateIntentErr error
	CaptureErr      error
	RefundErr       error
	ReleaseErr      error

	CreateIntentCalls int
	CaptureCalls      int
	RefundCalls       int
	ReleaseCalls      int

	LastCaptureAmount int64
	LastRefundAmount  int64
}

// NewMockProvider возвращает mock с успешным сценарием по умолчанию.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// CreateIntent возвращает настроенный идентификатор платежа и считает вызовы.
func (m *MockProvider) CreateIntent(ctx context.Context, orderID string, amountMinor int64, currency string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateIntentCalls++
	if m.CreateIntentErr != nil {
		return "", m.CreateIntentErr
	}
	if m.CreateIntentID != "" {
		return m.CreateIntentID, nil
	}
	return "pi_" + uuid.NewString(), nil
}

// Capture возвращает настроенную ошибку и считает вызовы.
func (m *MockProvider) Capture(ctx context.Context, providerPaymentID string, amountMinor int64, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls++
	m.LastCaptureAmount = amountMinor
	return m.CaptureErr
}

// Refund возвращает настроенную ошибку и считает вызовы.
func (m *MockProvider) Refund(ctx context.Context, providerPaymentID string, amountMinor int64, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefundCalls++
	m.LastRefundAmount = amountMinor
	return m.RefundErr
}

// Release возвращает настроенную ошибку и считает вызовы.
func (m *MockProvider) Release(ctx context.Context, providerPaymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReleaseCalls++
	return m.ReleaseErr
}

var _ domain.PaymentProvider = (*MockProvider)(nil)
