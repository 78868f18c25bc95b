package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesFieldsAndCause(t *testing.T) {
	err := New(
		"tracker/apply",
		CodeInvalid,
		WithMessage("report claims kinematic facet without position fields"),
		WithMMSI(123456789),
		WithField("source", "chanA"),
		WithRemediation("inspect the upstream decoder output"),
		WithCause(errors.New("missing cog")),
	)

	out := err.Error()
	if !strings.Contains(out, "component=tracker/apply") {
		t.Fatalf("expected component marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=invalid_request") {
		t.Fatalf("expected code in error string: %s", out)
	}
	expectedFields := "fields=mmsi=\"123456789\",source=\"chanA\""
	if !strings.Contains(out, expectedFields) {
		t.Fatalf("expected fields %q in error string: %s", expectedFields, out)
	}
	if !strings.Contains(out, "remediation=\"inspect the upstream decoder output\"") {
		t.Fatalf("expected remediation guidance in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"missing cog\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestWithFieldIgnoresEmptyKey(t *testing.T) {
	err := New("store/memory", CodeConflict, WithField("   ", "value"))
	if len(err.Fields) != 0 {
		t.Fatalf("expected empty-key field to be dropped, got %v", err.Fields)
	}
}

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	inner := New("store/memory", CodeConflict, WithMessage("version mismatch"))
	wrapped := fmt.Errorf("apply target: %w", inner)
	if got := CodeOf(wrapped); got != CodeConflict {
		t.Fatalf("expected conflict code from wrapped chain, got %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code for unstructured error, got %q", got)
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}
