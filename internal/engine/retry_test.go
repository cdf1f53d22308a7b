package engine

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"http 429", &httpStatusError{429}, true},
		{"http 502", &httpStatusError{502}, true},
		{"http 503", &httpStatusError{503}, true},
		{"regular error", errors.New("something"), false},
		{"timeout", &net.DNSError{IsTimeout: true}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryDoSuccess(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	got, err := RetryDo(context.Background(), rc, func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RetryDo: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want ok after 1", got, calls)
	}
}

func TestRetryDoRecovers(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	got, err := RetryDo(context.Background(), rc, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &httpStatusError{503}
		}
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("got %d, %v", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryDoNonRetryableStops(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	permanent := errors.New("bad request")
	_, err := RetryDo(context.Background(), rc, func() (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryDoCanceled(t *testing.T) {
	rc := RetryConfig{MaxRetries: 5, InitialWait: 50 * time.Millisecond, MaxWait: time.Second, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := RetryDo(ctx, rc, func() (int, error) {
		calls++
		return 0, &httpStatusError{503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls > 2 {
		t.Errorf("calls = %d, retries continued after cancel", calls)
	}
}
