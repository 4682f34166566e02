package reliability

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	if cb.failureThreshold != 5 {
		t.Errorf("failureThreshold = %d, want 5 (default)", cb.failureThreshold)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s (default)", cb.resetTimeout)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %q, want %q", cb.State(), StateClosed)
	}
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
			return nil, fmt.Errorf("failure %d", i)
		})
	}
	if cb.State() != StateOpen {
		t.Errorf("State() = %q, want %q after 3 failures", cb.State(), StateOpen)
	}
}

func TestCircuitBreaker_OpenRejectsRequests(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return nil, fmt.Errorf("fail")
	})
	if cb.State() != StateOpen {
		t.Fatalf("State() = %q, want %q", cb.State(), StateOpen)
	}
	_, err := cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		t.Error("fn should not be called when circuit is open")
		return nil, nil
	})
	if err != ErrCircuitOpen {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_OpenToHalfOpenToClosed(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return nil, fmt.Errorf("fail")
	})
	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %q, want %q after reset timeout", cb.State(), StateHalfOpen)
	}
	result, err := cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != "recovered" {
		t.Errorf("result = %v, want %q", result, "recovered")
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %q, want %q after successful probe", cb.State(), StateClosed)
	}
}

func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return nil, fmt.Errorf("fail")
	})
	time.Sleep(20 * time.Millisecond)
	_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return nil, fmt.Errorf("probe failed")
	})
	if cb.State() != StateOpen {
		t.Errorf("State() = %q, want %q after failed probe", cb.State(), StateOpen)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return nil, fmt.Errorf("fail")
	})
	if cb.State() != StateOpen {
		t.Fatalf("State() = %q, want %q", cb.State(), StateOpen)
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("State() = %q, want %q after Reset()", cb.State(), StateClosed)
	}
	result, err := cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return "after reset", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != "after reset" {
		t.Errorf("result = %v, want %q", result, "after reset")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Second)
	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
			return nil, fmt.Errorf("fail")
		})
	}
	_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return "ok", nil
	})
	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
			return nil, fmt.Errorf("fail")
		})
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %q, want %q (failure counter was reset by success)", cb.State(), StateClosed)
	}
	_, _ = cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return nil, fmt.Errorf("fail")
	})
	if cb.State() != StateOpen {
		t.Errorf("State() = %q, want %q (3rd consecutive failure)", cb.State(), StateOpen)
	}
}

func TestCircuitBreaker_ErrorPassedThrough(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Second)
	expectedErr := fmt.Errorf("specific error")
	_, err := cb.Execute(context.Background(), func(_ context.Context) (any, error) {
		return nil, expectedErr
	})
	if err != expectedErr {
		t.Errorf("error = %v, want %v", err, expectedErr)
	}
}
