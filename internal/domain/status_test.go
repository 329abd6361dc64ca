package domain

import "testing"

func TestOrderStatusCanTransitionTo(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
		OrderStatusConfirmed: {OrderStatusShipped},
		OrderStatusShipped:   {OrderStatusDelivered},
		OrderStatusDelivered: {},
		OrderStatusCancelled: {},
	}

	all := []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled,
	}

	for from, nexts := range allowed {
		want := map[OrderStatus]bool{}
		for _, n := range nexts {
			want[n] = true
		}
		for _, to := range all {
			if got := from.CanTransitionTo(to); got != want[to] {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want[to])
			}
		}
	}
}

func TestOrderStatusSelfTransitionRejected(t *testing.T) {
	for _, s := range []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled,
	} {
		if s.CanTransitionTo(s) {
			t.Errorf("%s -> %s should be rejected", s, s)
		}
	}
}

func TestOrderStatusValid(t *testing.T) {
	if !OrderStatusShipped.Valid() {
		t.Error("shipped should be valid")
	}
	if OrderStatus("SHIPPED").Valid() {
		t.Error("statuses are case sensitive at the boundary")
	}
	if OrderStatus("processing").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestPaymentStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentStatusPending, PaymentStatusSuccess, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusCancelled, true},
		{PaymentStatusPending, PaymentStatusRefunded, false},
		{PaymentStatusSuccess, PaymentStatusRefunded, true},
		{PaymentStatusSuccess, PaymentStatusFailed, false},
		{PaymentStatusSuccess, PaymentStatusPending, false},
		{PaymentStatusFailed, PaymentStatusSuccess, false},
		{PaymentStatusRefunded, PaymentStatusPending, false},
		{PaymentStatusCancelled, PaymentStatusFailed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
