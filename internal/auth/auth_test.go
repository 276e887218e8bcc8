package auth

import (
	"errors"
	"testing"
)

func TestCaller_Has(t *testing.T) {
	c := NewCaller("acct", CapAdmin)

	if !c.Has(CapAdmin) {
		t.Error("caller should hold admin capability")
	}
	if c.Has(CapLedger) {
		t.Error("caller should not hold ledger capability")
	}
}

func TestCaller_Require(t *testing.T) {
	c := NewCaller("acct", CapLedger)

	if err := c.Require(CapLedger); err != nil {
		t.Errorf("Require(CapLedger) = %v, want nil", err)
	}
	if err := c.Require(CapAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Require(CapAdmin) = %v, want ErrUnauthorized", err)
	}
}

func TestCaller_NoCapabilities(t *testing.T) {
	c := NewCaller("acct")

	if err := c.Require(CapAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Require on plain caller = %v, want ErrUnauthorized", err)
	}
}
