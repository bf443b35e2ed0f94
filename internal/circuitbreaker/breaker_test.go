package circuitbreaker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clinicflow/circuitguard/internal/circuitbreaker"
)

var errValidation = errors.New("patient name is required")

var _ = Describe("Breaker", func() {
	var (
		clock *fakeClock
		cb    *circuitbreaker.Breaker
	)

	BeforeEach(func() {
		clock = newFakeClock()
		cb = circuitbreaker.New("evolution_api",
			circuitbreaker.WithFailureThreshold(3),
			circuitbreaker.WithRecoveryTimeout(60*time.Second),
			circuitbreaker.WithClock(clock),
		)
	})

	Describe("New", func() {
		It("should start in CLOSED state with zero failures", func() {
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.FailureCount()).To(BeZero())
		})
	})

	Context("when in CLOSED state", func() {
		It("should allow calls", func() {
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should remain CLOSED for any failure run shorter than the threshold", func() {
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.FailureCount()).To(Equal(2))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should open on the threshold-th classified failure", func() {
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should reset the failure count on success even when it was above zero", func() {
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.FailureCount()).To(Equal(2))

			cb.RecordSuccess()
			Expect(cb.FailureCount()).To(BeZero())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))

			// One more failure must not open the circuit
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should ignore unclassified errors entirely", func() {
			cb.RecordFailure(errValidation)
			cb.RecordFailure(errValidation)
			cb.RecordFailure(errValidation)
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.FailureCount()).To(BeZero())
		})
	})

	Context("when in OPEN state", func() {
		BeforeEach(func() {
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should reject calls before the recovery timeout", func() {
			clock.Advance(59 * time.Second)
			Expect(cb.Allow()).To(BeFalse())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should not change state on rejected calls", func() {
			for i := 0; i < 10; i++ {
				Expect(cb.Allow()).To(BeFalse())
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.FailureCount()).To(Equal(3))
		})

		It("should admit a single trial once the recovery timeout elapses", func() {
			clock.Advance(60 * time.Second)
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("should reject a second caller while the trial is in flight", func() {
			clock.Advance(61 * time.Second)
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.Allow()).To(BeFalse())
		})

		It("should ignore unclassified errors while open", func() {
			cb.RecordFailure(errValidation)
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.FailureCount()).To(Equal(3))
		})
	})

	Context("when in HALF_OPEN state", func() {
		BeforeEach(func() {
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			clock.Advance(61 * time.Second)
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("should close on a successful trial and reset the failure count", func() {
			cb.RecordSuccess()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.FailureCount()).To(BeZero())
		})

		It("should reopen on a single failed trial regardless of the threshold", func() {
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should refresh the failure time on a failed trial", func() {
			cb.RecordFailure(context.DeadlineExceeded)

			// The new open window starts from the failed trial, not from
			// the original trip.
			clock.Advance(59 * time.Second)
			Expect(cb.Allow()).To(BeFalse())
			clock.Advance(2 * time.Second)
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should release the trial slot on an unclassified error without reopening", func() {
			cb.RecordFailure(errValidation)
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))

			// Slot is free again, so a fresh trial is admitted
			Expect(cb.Allow()).To(BeTrue())
		})
	})

	Describe("concurrent trial admission", func() {
		It("should admit exactly one of K concurrent callers at the recovery boundary", func() {
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			clock.Advance(61 * time.Second)

			const callers = 64

			var admitted atomic.Int32
			var wg sync.WaitGroup
			wg.Add(callers)

			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				go func() {
					defer wg.Done()
					<-start
					if cb.Allow() {
						admitted.Add(1)
					}
				}()
			}

			close(start)
			wg.Wait()

			Expect(admitted.Load()).To(Equal(int32(1)))
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})
	})

	Describe("Reset", func() {
		It("should force the breaker back to its initial state", func() {
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			cb.Reset()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.FailureCount()).To(BeZero())
			Expect(cb.Allow()).To(BeTrue())
		})
	})

	Describe("OnStateChange", func() {
		It("should report every transition with a consistent from/to pair", func() {
			type change struct{ from, to circuitbreaker.State }
			var (
				mutex   sync.Mutex
				changes []change
			)

			cb := circuitbreaker.New("llm_service",
				circuitbreaker.WithFailureThreshold(1),
				circuitbreaker.WithRecoveryTimeout(30*time.Second),
				circuitbreaker.WithClock(clock),
				circuitbreaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
					mutex.Lock()
					defer mutex.Unlock()
					changes = append(changes, change{from: from, to: to})
				}),
			)

			cb.RecordFailure(context.DeadlineExceeded)
			clock.Advance(31 * time.Second)
			Expect(cb.Allow()).To(BeTrue())
			cb.RecordSuccess()

			mutex.Lock()
			defer mutex.Unlock()
			Expect(changes).To(Equal([]change{
				{from: circuitbreaker.StateClosed, to: circuitbreaker.StateOpen},
				{from: circuitbreaker.StateOpen, to: circuitbreaker.StateHalfOpen},
				{from: circuitbreaker.StateHalfOpen, to: circuitbreaker.StateClosed},
			}))
		})
	})

	Describe("ExpireTrial", func() {
		It("should reopen the circuit when a trial exceeds its max age", func() {
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			clock.Advance(61 * time.Second)
			Expect(cb.Allow()).To(BeTrue())

			clock.Advance(31 * time.Second)
			Expect(cb.ExpireTrial(30 * time.Second)).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should leave a fresh trial alone", func() {
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			cb.RecordFailure(context.DeadlineExceeded)
			clock.Advance(61 * time.Second)
			Expect(cb.Allow()).To(BeTrue())

			clock.Advance(5 * time.Second)
			Expect(cb.ExpireTrial(30 * time.Second)).To(BeFalse())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("should do nothing outside HALF_OPEN", func() {
			Expect(cb.ExpireTrial(time.Second)).To(BeFalse())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("State.String", func() {
		It("should return the canonical state names", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF_OPEN"))
		})
	})
})

var _ = Describe("Scheduling backend scenarios", func() {
	var clock *fakeClock

	BeforeEach(func() {
		clock = newFakeClock()
	})

	It("walks the WhatsApp gateway breaker through trip, rejection and recovery", func() {
		cb := circuitbreaker.New("evolution_api",
			circuitbreaker.WithFailureThreshold(5),
			circuitbreaker.WithRecoveryTimeout(60*time.Second),
			circuitbreaker.WithClock(clock),
		)

		for i := 0; i < 4; i++ {
			cb.RecordFailure(context.DeadlineExceeded)
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		}
		cb.RecordFailure(context.DeadlineExceeded)
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

		Expect(cb.Allow()).To(BeFalse())

		clock.Advance(61 * time.Second)
		Expect(cb.Allow()).To(BeTrue())
		Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		Expect(cb.Allow()).To(BeFalse())

		cb.RecordSuccess()
		Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		Expect(cb.FailureCount()).To(BeZero())
	})

	It("keeps LLM validation errors out of the breaker's health", func() {
		cb := circuitbreaker.New("llm_service",
			circuitbreaker.WithFailureThreshold(3),
			circuitbreaker.WithClock(clock),
		)

		cb.RecordFailure(context.DeadlineExceeded)
		cb.RecordFailure(context.DeadlineExceeded)
		Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		Expect(cb.FailureCount()).To(Equal(2))

		cb.RecordFailure(errValidation)
		Expect(cb.FailureCount()).To(Equal(2))

		cb.RecordFailure(context.DeadlineExceeded)
		Expect(cb.FailureCount()).To(Equal(3))
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
	})
})
