package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSweep(t *testing.T) {
	swept := testutil.ToFloat64(SweptEvents)
	errs := testutil.ToFloat64(SweepErrors)

	ObserveSweep(3, nil)
	ObserveSweep(0, errors.New("db down"))

	if got := testutil.ToFloat64(SweptEvents) - swept; got != 3 {
		t.Errorf("swept delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(SweepErrors) - errs; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()
}
