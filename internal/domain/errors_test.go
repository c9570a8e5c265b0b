package domain

import (
	"fmt"
	"strings"
	"testing"
)

func TestTransitionErrorMessages(t *testing.T) {
	terminal := &TerminalStateError{From: OrderStatusDelivered, To: OrderStatusCancelled}
	if !strings.Contains(terminal.Error(), "terminal") {
		t.Fatalf("unexpected message: %s", terminal.Error())
	}

	structural := &StructuralTransitionError{From: OrderStatusPlaced, To: OrderStatusDelivered}
	if !strings.Contains(structural.Error(), string(OrderStatusPlaced)) ||
		!strings.Contains(structural.Error(), string(OrderStatusDelivered)) {
		t.Fatalf("message must carry the edge: %s", structural.Error())
	}

	roleErr := &RolePermissionError{Role: RoleCustomer, From: OrderStatusReady, To: OrderStatusPickedUp}
	if !strings.Contains(roleErr.Error(), string(RoleCustomer)) {
		t.Fatalf("message must carry the role: %s", roleErr.Error())
	}
}

func TestIsTransitionDenied(t *testing.T) {
	denials := []error{
		&TerminalStateError{From: OrderStatusDelivered, To: OrderStatusCancelled},
		&StructuralTransitionError{From: OrderStatusPlaced, To: OrderStatusDelivered},
		&RolePermissionError{Role: RoleDriver, From: OrderStatusPlaced, To: OrderStatusAccepted},
		fmt.Errorf("wrapped: %w", &StructuralTransitionError{From: OrderStatusReady, To: OrderStatusPlaced}),
	}
	for _, err := range denials {
		if !IsTransitionDenied(err) {
			t.Fatalf("expected denial for %v", err)
		}
	}

	if IsTransitionDenied(ErrOrderNotFound) {
		t.Fatal("ErrOrderNotFound is not a transition denial")
	}
}

func TestIsPermissionDenied(t *testing.T) {
	if !IsPermissionDenied(&RolePermissionError{Role: RoleVendor, From: OrderStatusReady, To: OrderStatusPickedUp}) {
		t.Fatal("role error must be a permission denial")
	}
	if !IsPermissionDenied(ErrVendorMismatch) || !IsPermissionDenied(ErrDriverMismatch) {
		t.Fatal("ownership mismatches must be permission denials")
	}
	if IsPermissionDenied(&StructuralTransitionError{From: OrderStatusPlaced, To: OrderStatusReady}) {
		t.Fatal("structural denial is not a permission denial")
	}
}

func TestIsVersionConflict(t *testing.T) {
	if !IsVersionConflict(fmt.Errorf("save: %w", ErrOrderVersionConflict)) {
		t.Fatal("wrapped version conflict must be detected")
	}
	if IsVersionConflict(ErrOrderNotFound) {
		t.Fatal("not found is not a version conflict")
	}
}
