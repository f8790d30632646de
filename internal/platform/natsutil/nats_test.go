package natsutil

import (
	"errors"
	"testing"

	"github.com/socialstream/platform/internal/faults"
)

func TestDispositionSuccessAcks(t *testing.T) {
	if got := disposition(nil, 1); got != ackMessage {
		t.Fatalf("disposition(nil, 1) = %v", got)
	}
	// A clean redelivery still acks.
	if got := disposition(nil, 2); got != ackMessage {
		t.Fatalf("disposition(nil, 2) = %v", got)
	}
}

func TestDispositionUnprocessableNeverRetries(t *testing.T) {
	err := faults.New(faults.Validation, "bad payload")
	if got := disposition(err, 1); got != termUnprocessable {
		t.Fatalf("first delivery = %v", got)
	}
	wrapped := faults.Wrap(faults.Validation, errors.New("json: unexpected end"), "decode")
	if got := disposition(wrapped, 1); got != termUnprocessable {
		t.Fatalf("wrapped validation = %v", got)
	}
}

func TestDispositionTransientRetriesOnce(t *testing.T) {
	err := faults.New(faults.StoreUnavailable, "store down")

	if got := disposition(err, 1); got != nakForRetry {
		t.Fatalf("first delivery = %v, want redelivery", got)
	}
	if got := disposition(err, 2); got != termRetriesExhausted {
		t.Fatalf("second delivery = %v, want drop", got)
	}
	if got := disposition(err, 5); got != termRetriesExhausted {
		t.Fatalf("over-delivered = %v, want drop", got)
	}
}

func TestDispositionUncategorizedErrorRetries(t *testing.T) {
	if got := disposition(errors.New("boom"), 1); got != nakForRetry {
		t.Fatalf("plain error = %v, want redelivery", got)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	err, panicked := invoke(func(string, []byte) error {
		panic("poisoned event")
	}, "post.created", nil)
	if panicked == nil {
		t.Fatal("expected panic to be captured")
	}
	if err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestInvokePassesThrough(t *testing.T) {
	want := errors.New("handler error")
	var gotKey string
	var gotPayload []byte

	err, panicked := invoke(func(routingKey string, payload []byte) error {
		gotKey = routingKey
		gotPayload = payload
		return want
	}, "post.deleted", []byte(`{}`))
	if panicked != nil {
		t.Fatalf("unexpected panic: %v", panicked)
	}
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
	if gotKey != "post.deleted" || string(gotPayload) != "{}" {
		t.Fatalf("handler saw %q %q", gotKey, gotPayload)
	}
}
