package wallet_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

var _ = Describe("Classify", func() {
	DescribeTable("maps raw failures onto the taxonomy",
		func(err error, kind wallet.ErrorKind, retryable bool) {
			env := wallet.Classify(err)
			Expect(env.Kind).To(Equal(kind))
			Expect(env.Retryable).To(Equal(retryable))
			Expect(errors.Unwrap(env)).To(Equal(err))
		},
		Entry("revert", errors.New("execution reverted: insufficient balance"), wallet.KindContract, false),
		Entry("refused connection", errors.New("dial tcp 127.0.0.1:8545: connect: ECONNREFUSED"), wallet.KindNetwork, true),
		Entry("network error", errors.New("network error while reading"), wallet.KindNetwork, true),
		Entry("deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), wallet.KindNetwork, true),
		Entry("cancellation", context.Canceled, wallet.KindNetwork, false),
		Entry("nonce too low", errors.New("nonce too low: next nonce 5, tx nonce 4"), wallet.KindBlockchain, true),
		Entry("insufficient funds", errors.New("insufficient funds for gas * price + value"), wallet.KindBlockchain, true),
		Entry("unknown node failure", errors.New("invalid sender"), wallet.KindBlockchain, false),
		Entry("rate limited endpoint", rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, wallet.KindNetwork, true),
		Entry("unauthorized endpoint", rpc.HTTPError{StatusCode: 401, Status: "401 Unauthorized"}, wallet.KindBlockchain, false),
	)

	It("returns an existing envelope unchanged", func() {
		original := wallet.NewValidationError("amount", "must be greater than zero")
		wrapped := fmt.Errorf("creating task: %w", original)

		Expect(wallet.Classify(wrapped)).To(BeIdenticalTo(original))
	})

	It("honours custom retryable patterns", func() {
		classifier := wallet.NewClassifier([]string{"replacement transaction underpriced"})

		Expect(classifier.Classify(errors.New("replacement transaction underpriced")).Retryable).To(BeTrue())
		Expect(classifier.Classify(errors.New("nonce too low")).Retryable).To(BeFalse())
	})

	It("formats the field of validation failures", func() {
		err := wallet.NewValidationError("score", "must be between 0 and 100")
		Expect(err.Error()).To(Equal("[Validation] score: must be between 0 and 100"))
		Expect(wallet.IsKind(err, wallet.KindValidation)).To(BeTrue())
		Expect(wallet.IsKind(errors.New("plain"), wallet.KindValidation)).To(BeFalse())
	})
})
