package domain

import (
	"errors"
	"testing"
	"time"
)

func validOrder() Order {
	now := time.Now().UTC()
	return Order{
		ID:               "order-1",
		CustomerID:       "customer-1",
		VendorID:         "vendor-1",
		Status:           OrderStatusPlaced,
		Currency:         "USD",
		SubtotalMinor:    10000,
		TaxMinor:         800,
		DeliveryFeeMinor: 200,
		TotalMinor:       11000,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestOrderValidateInvariants_OK(t *testing.T) {
	order := validOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Violations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Order)
		want   error
	}{
		{"missing customer", func(o *Order) { o.CustomerID = "" }, ErrCustomerRequired},
		{"missing vendor", func(o *Order) { o.VendorID = "" }, ErrVendorRequired},
		{"missing currency", func(o *Order) { o.Currency = "" }, ErrCurrencyRequired},
		{"negative subtotal", func(o *Order) { o.SubtotalMinor = -1 }, ErrAmountNegative},
		{"total mismatch", func(o *Order) { o.TotalMinor = 9999 }, ErrTotalMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := validOrder()
			tc.mutate(&order)
			errs := order.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("expected %s terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderStatusPlaced, OrderStatusReady, OrderStatusEnroute} {
		if s.Terminal() {
			t.Fatalf("expected %s non-terminal", s)
		}
	}
}

func TestPaymentValidate(t *testing.T) {
	p := Payment{OrderID: "order-1", Provider: "stripe", AmountMinor: 100}
	if errs := p.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid payment, got %v", errs)
	}

	p = Payment{Provider: "stripe", AmountMinor: -5}
	errs := p.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}
