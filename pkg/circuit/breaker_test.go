package circuit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/terminal-bench/remitter/pkg/circuit"
)

func TestBreakerClosed(t *testing.T) {
	t.Run("should allow requests when closed", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 3,
			Timeout:     time.Second,
		})

		err := breaker.Execute(context.Background(), func() error {
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, circuit.StateClosed, breaker.State())
	})

	t.Run("should track failures", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 3,
			Timeout:     time.Second,
		})

		breaker.Execute(context.Background(), func() error {
			return errors.New("failure")
		})

		assert.Equal(t, 1, breaker.Failures())
		assert.Equal(t, circuit.StateClosed, breaker.State())
	})
}

func TestBreakerOpen(t *testing.T) {
	t.Run("should open after max failures", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 3,
			Timeout:     time.Second,
		})

		for i := 0; i < 3; i++ {
			breaker.Execute(context.Background(), func() error {
				return errors.New("failure")
			})
		}

		assert.Equal(t, circuit.StateOpen, breaker.State())
	})

	t.Run("should reject requests when open", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 3,
			Timeout:     time.Second,
		})

		for i := 0; i < 3; i++ {
			breaker.Execute(context.Background(), func() error {
				return errors.New("failure")
			})
		}

		err := breaker.Execute(context.Background(), func() error {
			return nil
		})

		assert.Equal(t, circuit.ErrCircuitOpen, err)
	})
}

func TestBreakerHalfOpen(t *testing.T) {
	t.Run("should close after successful half-open probes", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 1,
			Timeout:     100 * time.Millisecond,
			HalfOpenMax: 2,
		})

		breaker.Execute(context.Background(), func() error {
			return errors.New("failure")
		})
		assert.Equal(t, circuit.StateOpen, breaker.State())

		time.Sleep(150 * time.Millisecond)

		for i := 0; i < 2; i++ {
			breaker.Execute(context.Background(), func() error {
				return nil
			})
		}

		assert.Equal(t, circuit.StateClosed, breaker.State())
	})

	t.Run("should re-open on failure in half-open", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 1,
			Timeout:     100 * time.Millisecond,
			HalfOpenMax: 2,
		})

		breaker.Execute(context.Background(), func() error {
			return errors.New("failure")
		})

		time.Sleep(150 * time.Millisecond)

		breaker.Execute(context.Background(), func() error {
			return errors.New("failure")
		})

		assert.Equal(t, circuit.StateOpen, breaker.State())
	})
}

func TestBreakerReset(t *testing.T) {
	t.Run("should reset to closed", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 1,
			Timeout:     time.Second,
		})

		breaker.Execute(context.Background(), func() error {
			return errors.New("failure")
		})
		assert.Equal(t, circuit.StateOpen, breaker.State())

		breaker.Reset()

		assert.Equal(t, circuit.StateClosed, breaker.State())
		assert.Equal(t, 0, breaker.Failures())
	})
}

func TestBreakerForceOpen(t *testing.T) {
	t.Run("should force open", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 10,
			Timeout:     time.Second,
		})

		breaker.ForceOpen()

		assert.Equal(t, circuit.StateOpen, breaker.State())
	})
}

func TestBreakerStateChange(t *testing.T) {
	t.Run("should call state change callback", func(t *testing.T) {
		changes := make([]circuit.State, 0)
		var mu sync.Mutex

		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 1,
			Timeout:     100 * time.Millisecond,
			OnStateChange: func(from, to circuit.State) {
				mu.Lock()
				changes = append(changes, to)
				mu.Unlock()
			},
		})

		breaker.Execute(context.Background(), func() error {
			return errors.New("failure")
		})

		time.Sleep(150 * time.Millisecond)

		breaker.Execute(context.Background(), func() error {
			return nil
		})

		mu.Lock()
		defer mu.Unlock()
		assert.Contains(t, changes, circuit.StateOpen)
	})
}

func TestBreakerConcurrency(t *testing.T) {
	t.Run("should handle concurrent requests", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			MaxFailures: 100,
			Timeout:     time.Second,
			HalfOpenMax: 10,
		})

		var wg sync.WaitGroup

		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				breaker.Execute(context.Background(), func() error {
					if time.Now().UnixNano()%2 == 0 {
						return errors.New("failure")
					}
					return nil
				})
			}()
		}

		wg.Wait()
	})
}
