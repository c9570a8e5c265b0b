package driver

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// MockLocator — конфигурируемая заглушка DriverLocator для тестов.
// Пустой DriverID означает «свободных курьеров нет».
type MockLocator struct {
	mu sync.Mutex

	DriverID string
	Err      error

	Calls int
}

// NewMockLocator возвращает mock без доступных курьеров.
func NewMockLocator() *MockLocator {
	return &MockLocator{}
}

// NearestDriver возвращает настроенного курьера и считает вызовы.
func (m *MockLocator) NearestDriver(ctx context.Context, vendorID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.DriverID, nil
}

var _ domain.DriverLocator = (*MockLocator)(nil)
