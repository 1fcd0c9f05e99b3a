package loop

import (
	"errors"
	"testing"
)

func TestCaptureOutcomeRoundTrip(t *testing.T) {
	out := CaptureOutcome(func() (any, error) { return 42, nil })
	v, err := out.Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("got (%v, %v), want (42, nil)", v, err)
	}

	boom := errors.New("boom")
	out = CaptureOutcome(func() (any, error) { return nil, boom })
	if _, err := out.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("Unwrap lost the cause: %v", err)
	}
}

func TestCombineOutcomeNeverLosesACause(t *testing.T) {
	e1 := errors.New("first")
	e2 := errors.New("second")

	combined := CombineOutcome(ErrorOutcome(e1), ErrorOutcome(e2))
	if !errors.Is(combined.Err(), e1) || !errors.Is(combined.Err(), e2) {
		t.Fatalf("combined outcome lost a cause: %v", combined.Err())
	}

	combined = CombineOutcome(ValueOutcome(1), ErrorOutcome(e2))
	if !errors.Is(combined.Err(), e2) {
		t.Fatalf("single-error combine lost the cause: %v", combined.Err())
	}

	combined = CombineOutcome(ValueOutcome(1), ValueOutcome(2))
	if combined.IsError() || combined.Value() != 2 {
		t.Fatalf("two-value combine should keep b's value, got %v", combined.Value())
	}
}

func TestNewAggregateErrorCollapses(t *testing.T) {
	if NewAggregateError() != nil {
		t.Fatal("empty causes should collapse to nil")
	}
	e1 := errors.New("one")
	if got := NewAggregateError(nil, e1, nil); got != e1 {
		t.Fatalf("singleton causes should collapse to the sole member, got %v", got)
	}
	e2 := errors.New("two")
	agg, ok := NewAggregateError(e1, e2).(*AggregateError)
	if !ok || len(agg.Errs) != 2 {
		t.Fatalf("expected a 2-member AggregateError, got %#v", agg)
	}

	flattened := NewAggregateError(agg, errors.New("three"))
	fagg, ok := flattened.(*AggregateError)
	if !ok || len(fagg.Errs) != 3 {
		t.Fatalf("nested AggregateError should flatten one level, got %#v", fagg)
	}
}
