package wallet_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

var _ = Describe("Run", func() {
	var (
		policy wallet.RetryPolicy
		ctx    context.Context
	)

	BeforeEach(func() {
		policy = wallet.DefaultRetryPolicy()
		policy.BaseDelay = time.Millisecond
		policy.MaxDelay = 2 * time.Millisecond
		ctx = context.Background()
	})

	It("returns the first success", func() {
		var calls int32
		value, err := wallet.Run(ctx, quietLogger(), policy, time.Second, func(ctx context.Context) (string, error) {
			if atomic.AddInt32(&calls, 1) < 2 {
				return "", errors.New("network error")
			}
			return "ok", nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("ok"))
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(2)))
	})

	It("calls a non-retryable failure exactly once", func() {
		var calls int32
		_, err := wallet.Run(ctx, quietLogger(), policy, time.Second, func(ctx context.Context) (int, error) {
			atomic.AddInt32(&calls, 1)
			return 0, errors.New("execution reverted: not the owner")
		})

		Expect(wallet.IsKind(err, wallet.KindContract)).To(BeTrue())
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
	})

	It("stops after max attempts and returns the last failure", func() {
		var calls int32
		var last error
		_, err := wallet.Run(ctx, quietLogger(), policy, time.Second, func(ctx context.Context) (int, error) {
			n := atomic.AddInt32(&calls, 1)
			last = fmt.Errorf("connection refused (attempt %d)", n)
			return 0, last
		})

		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(policy.MaxAttempts)))
		env, ok := wallet.AsEnvelope(err)
		Expect(ok).To(BeTrue())
		Expect(env.Kind).To(Equal(wallet.KindNetwork))
		Expect(env.Err).To(BeIdenticalTo(last))
	})

	It("passes envelopes raised by the operation through unchanged", func() {
		original := wallet.NewValidationError("taskId", "must be a non-negative integer")
		_, err := wallet.Run(ctx, quietLogger(), policy, time.Second, func(ctx context.Context) (int, error) {
			return 0, original
		})
		Expect(err).To(BeIdenticalTo(original))
	})

	It("times out with a Network envelope and cancels the operation", func() {
		opCancelled := make(chan struct{})
		start := time.Now()

		_, err := wallet.Run(ctx, quietLogger(), policy, 20*time.Millisecond, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			close(opCancelled)
			return 0, ctx.Err()
		})

		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		env, ok := wallet.AsEnvelope(err)
		Expect(ok).To(BeTrue())
		Expect(env.Kind).To(Equal(wallet.KindNetwork))
		Expect(env.Message).To(Equal("Operation timeout"))
		Expect(errors.Is(err, wallet.ErrOperationTimeout)).To(BeTrue())
		Eventually(opCancelled).Should(BeClosed())
	})

	It("does not wait for an operation that ignores its context", func() {
		release := make(chan struct{})
		defer close(release)

		_, err := wallet.Run(ctx, quietLogger(), policy, 10*time.Millisecond, func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		})
		Expect(errors.Is(err, wallet.ErrOperationTimeout)).To(BeTrue())
	})

	It("reports caller cancellation as non-retryable", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := wallet.Run(cancelled, quietLogger(), policy, time.Second, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

		env, ok := wallet.AsEnvelope(err)
		Expect(ok).To(BeTrue())
		Expect(env.Retryable).To(BeFalse())
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})

	It("rejects an invalid policy", func() {
		policy.MaxAttempts = 0
		_, err := wallet.Run(ctx, quietLogger(), policy, time.Second, func(ctx context.Context) (int, error) {
			return 0, nil
		})
		expectValidation(err, "retryPolicy")
	})

	It("grows the delay geometrically up to the cap", func() {
		p := wallet.DefaultRetryPolicy()
		Expect(p.Delay(1)).To(Equal(time.Second))
		Expect(p.Delay(2)).To(Equal(2 * time.Second))
		Expect(p.Delay(3)).To(Equal(4 * time.Second))
		Expect(p.Delay(10)).To(Equal(10 * time.Second))
	})

	It("requires a delay cap", func() {
		policy.MaxDelay = 0
		Expect(policy.Validate()).To(MatchError(ContainSubstring("max delay")))
	})

	It("never overflows the delay", func() {
		p := wallet.DefaultRetryPolicy()
		p.MaxDelay = 0
		Expect(p.Delay(500)).To(Equal(time.Duration(math.MaxInt64)))

		p.MaxDelay = time.Minute
		Expect(p.Delay(500)).To(Equal(time.Minute))
	})
})
