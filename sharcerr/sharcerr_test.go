package sharcerr

import (
	"errors"
	"testing"
)

func TestErrorsIsMatchesKindSentinel(t *testing.T) {
	cause := errors.New("short read")
	err := Wrap(KindIOFailure, "reading page 4", cause)

	if !errors.Is(err, ErrIOFailure) {
		t.Error("expected errors.Is to match ErrIOFailure")
	}
	if errors.Is(err, ErrBusy) {
		t.Error("did not expect errors.Is to match ErrBusy")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestOfKind(t *testing.T) {
	err := New(KindCorruptPage, "cell pointer out of bounds")
	if !OfKind(err, KindCorruptPage) {
		t.Error("expected OfKind(KindCorruptPage) to be true")
	}
	if OfKind(err, KindBusy) {
		t.Error("expected OfKind(KindBusy) to be false")
	}
}

func TestErrorMessageFormat(t *testing.T) {
	err := New(KindInvalidArgument, "rowid 0 is not valid")
	want := "sharc: invalid_argument: rowid 0 is not valid"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKindStringUnknown(t *testing.T) {
	if got := Kind(99).String(); got != "unknown" {
		t.Errorf("Kind(99).String() = %q, want %q", got, "unknown")
	}
}
