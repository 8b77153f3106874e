package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ads-marketplace/faultline/internal/errclass"
	"github.com/ads-marketplace/faultline/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRetryWithBackoffDefaultsSucceedImmediately(t *testing.T) {
	calls := 0
	start := time.Now()
	got, err := RetryWithBackoff(context.Background(), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, 0, 0)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q", got)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("success should resolve without waiting")
	}
}

func TestRetryWithBackoffTiming(t *testing.T) {
	var times []time.Time
	got, err := RetryWithBackoff(context.Background(), func(context.Context) (int, error) {
		times = append(times, time.Now())
		if len(times) < 3 {
			return 0, errors.New("temporary error")
		}
		return 42, nil
	}, 3, 100*time.Millisecond)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d", got)
	}
	if len(times) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(times))
	}
	if d := times[1].Sub(times[0]); d < 100*time.Millisecond {
		t.Errorf("second call after %v, want >= 100ms", d)
	}
	if d := times[2].Sub(times[0]); d < 300*time.Millisecond {
		t.Errorf("third call after %v, want >= 300ms", d)
	}
}

func TestRetryWithBackoffNonRetryableStatus(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 422} {
		calls := 0
		notFound := &errclass.HTTPError{Status: status}
		_, err := RetryWithBackoff(context.Background(), func(context.Context) (any, error) {
			calls++
			return nil, notFound
		}, 5, 10*time.Millisecond)

		if calls != 1 {
			t.Errorf("status %d: expected 1 call, got %d", status, calls)
		}
		if err != notFound {
			t.Errorf("status %d: error must be returned unchanged, got %v", status, err)
		}
	}
}

func TestRetryWithBackoffRetriesTimeoutAndRateLimit(t *testing.T) {
	for _, status := range []int{408, 429, 500, 503} {
		calls := 0
		_, err := RetryWithBackoff(context.Background(), func(context.Context) (any, error) {
			calls++
			return nil, &errclass.HTTPError{Status: status}
		}, 3, time.Millisecond)

		if err == nil {
			t.Errorf("status %d: expected error", status)
		}
		if calls != 3 {
			t.Errorf("status %d: expected 3 calls, got %d", status, calls)
		}
	}
}

func TestRetryWithBackoffReturnsLastErrorUnwrapped(t *testing.T) {
	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}
	i := 0
	_, err := RetryWithBackoff(context.Background(), func(context.Context) (any, error) {
		e := errs[i]
		i++
		return nil, e
	}, 3, time.Millisecond)

	if err != errs[2] {
		t.Errorf("expected last error verbatim, got %v", err)
	}
}

func TestRetryWithBackoffContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := RetryWithBackoff(ctx, func(context.Context) (any, error) {
		return nil, errors.New("down")
	}, 10, time.Second)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryWithBackoffLogsAttempts(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logging.NewZap(zap.New(core))

	_, _ = RetryWithBackoff(context.Background(), func(context.Context) (any, error) {
		return nil, errors.New("down")
	}, 2, time.Millisecond, WithRetryLogger(log, "fetch_users"))

	if n := logs.FilterMessage("attempt failed").Len(); n != 2 {
		t.Errorf("expected 2 attempt logs, got %d", n)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), true},
		{"canceled", context.Canceled, false},
		{"404", &errclass.HTTPError{Status: 404}, false},
		{"408", &errclass.HTTPError{Status: 408}, true},
		{"429", &errclass.HTTPError{Status: 429}, true},
		{"502", &errclass.HTTPError{Status: 502}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
