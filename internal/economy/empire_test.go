package economy

import (
	"errors"
	"testing"
)

func TestProcessPaymentFromCash(t *testing.T) {
	e := NewEmpire("p1", 1_000_000, 0)

	if err := e.ProcessPayment(600_000); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if got := e.Balance(); got != 400_000 {
		t.Errorf("balance = %v, want 400000", got)
	}
	if e.TotalExpenses != 600_000 {
		t.Errorf("total expenses = %v, want 600000", e.TotalExpenses)
	}
	if e.LastTransaction.IsZero() {
		t.Error("expected transaction timestamp to be recorded")
	}
}

func TestProcessPaymentInsufficient(t *testing.T) {
	e := NewEmpire("p1", 100, 50)

	err := e.ProcessPayment(200)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if e.Balance() != 100 || e.CreditUsed != 0 || e.TotalExpenses != 0 {
		t.Error("failed payment must have no side effects")
	}
}

func TestProcessPaymentDrawsCredit(t *testing.T) {
	e := NewEmpire("p1", 100, 500)

	if err := e.ProcessPayment(300); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if e.Balance() != 0 {
		t.Errorf("balance = %v, want 0", e.Balance())
	}
	if e.OutstandingCredit() != 200 {
		t.Errorf("credit used = %v, want 200", e.OutstandingCredit())
	}
}

func TestReceivePaymentRoundTrip(t *testing.T) {
	e := NewEmpire("p1", 1000, 0)

	if err := e.ProcessPayment(400); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	e.ReceivePayment(400)

	if e.Balance() != 1000 {
		t.Errorf("balance after round trip = %v, want 1000", e.Balance())
	}
}

func TestReceivePaymentRetiresCredit(t *testing.T) {
	e := NewEmpire("p1", 100, 500)

	// Draws 200 of credit.
	if err := e.ProcessPayment(300); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	// Incoming 150 should retire min(150, 200) = 150 of credit.
	e.ReceivePayment(150)
	if e.Balance() != 0 {
		t.Errorf("balance = %v, want 0", e.Balance())
	}
	if e.OutstandingCredit() != 50 {
		t.Errorf("credit used = %v, want 50", e.OutstandingCredit())
	}

	// Next payment clears the rest and keeps the remainder as cash.
	e.ReceivePayment(100)
	if e.Balance() != 50 {
		t.Errorf("balance = %v, want 50", e.Balance())
	}
	if e.OutstandingCredit() != 0 {
		t.Errorf("credit used = %v, want 0", e.OutstandingCredit())
	}
}

func TestCanAffordWithCredit(t *testing.T) {
	e := NewEmpire("p1", 100, 500)

	if !e.CanAfford(600) {
		t.Error("expected 600 affordable with 100 cash + 500 credit")
	}
	if e.CanAfford(601) {
		t.Error("expected 601 to exceed cash + credit")
	}
}

func TestAdjustReputationClamps(t *testing.T) {
	e := NewEmpire("p1", 0, 0)

	e.AdjustReputation(1000)
	if e.Reputation != 100 {
		t.Errorf("reputation = %v, want 100", e.Reputation)
	}
	e.AdjustReputation(-1000)
	if e.Reputation != 0 {
		t.Errorf("reputation = %v, want 0", e.Reputation)
	}
}

func TestRefundReversesPayment(t *testing.T) {
	e := NewEmpire("p1", 100, 500)

	// 100 cash, 200 from credit.
	if err := e.ProcessPayment(300); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if e.Balance() != 0 || e.OutstandingCredit() != 200 {
		t.Fatalf("after payment: cash %v credit %v", e.Balance(), e.OutstandingCredit())
	}

	e.Refund(300)

	if e.OutstandingCredit() != 0 {
		t.Errorf("credit after refund = %v, want 0", e.OutstandingCredit())
	}
	if e.Balance() != 100 {
		t.Errorf("cash after refund = %v, want 100", e.Balance())
	}
	if e.TotalExpenses != 0 {
		t.Errorf("expenses after refund = %v, want 0", e.TotalExpenses)
	}
}

func TestRefundIgnoresNonPositive(t *testing.T) {
	e := NewEmpire("p1", 100, 0)
	e.Refund(0)
	e.Refund(-50)
	if e.Balance() != 100 {
		t.Errorf("balance = %v, want 100", e.Balance())
	}
}
