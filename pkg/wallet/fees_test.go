package wallet_test

import (
	"context"
	"errors"
	"math/big"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1000000000))
}

var _ = Describe("FeeEstimator", func() {
	var (
		node      *fakeNode
		estimator *wallet.FeeEstimator
		policy    wallet.GasPolicy
		ctx       context.Context
	)

	BeforeEach(func() {
		node = newFakeNode()
		estimator = wallet.NewFeeEstimator(node, quietLogger())
		policy = wallet.DefaultGasPolicy()
		ctx = context.Background()
	})

	Context("legacy chains", func() {
		It("adds the safety margin to the node gas price", func() {
			node.gasPrice = gwei(10)

			quote, err := estimator.Quote(ctx, policy)
			Expect(err).NotTo(HaveOccurred())
			Expect(quote.Kind).To(Equal(wallet.FeeLegacy))
			Expect(quote.GasPrice).To(Equal(gwei(12)))
			Expect(quote.FeeCap()).To(Equal(gwei(12)))
			Expect(quote.Fallback).To(BeFalse())
		})

		It("never exceeds the fee cap", func() {
			node.gasPrice = gwei(10)
			policy.MaxFeePerGas = gwei(11)

			quote, err := estimator.Quote(ctx, policy)
			Expect(err).NotTo(HaveOccurred())
			Expect(quote.GasPrice).To(Equal(gwei(11)))
		})
	})

	Context("EIP-1559 chains", func() {
		It("quotes twice the base fee plus tip, with margins and caps", func() {
			node.baseFee = gwei(10)
			node.tip = gwei(1)

			quote, err := estimator.Quote(ctx, policy)
			Expect(err).NotTo(HaveOccurred())
			Expect(quote.Kind).To(Equal(wallet.FeeEIP1559))
			// (2 × 10 + 1) × 1.2
			Expect(quote.MaxFeePerGas).To(Equal(big.NewInt(25200000000)))
			Expect(quote.MaxPriorityFeePerGas).To(Equal(big.NewInt(1200000000)))
		})

		It("caps the tip and keeps it below the fee cap", func() {
			node.baseFee = gwei(1)
			node.tip = gwei(5)
			policy.MaxFeePerGas = gwei(3)

			quote, err := estimator.Quote(ctx, policy)
			Expect(err).NotTo(HaveOccurred())
			Expect(quote.MaxFeePerGas).To(Equal(gwei(3)))
			Expect(quote.MaxPriorityFeePerGas).To(Equal(gwei(2)))
			Expect(quote.MaxPriorityFeePerGas.Cmp(quote.MaxFeePerGas)).To(BeNumerically("<=", 0))
		})

		It("falls back to legacy pricing when the tip method is unsupported", func() {
			node.baseFee = gwei(10)
			node.tipErr = errors.New("the method eth_maxPriorityFeePerGas does not exist/is not available")
			node.gasPrice = gwei(10)

			quote, err := estimator.Quote(ctx, policy)
			Expect(err).NotTo(HaveOccurred())
			Expect(quote.Kind).To(Equal(wallet.FeeLegacy))
			Expect(quote.GasPrice).To(Equal(gwei(12)))
		})
	})

	It("quotes the default gas price when the node is unreachable", func() {
		node.headerErr = errors.New("dial tcp: connection refused")

		quote, err := estimator.Quote(ctx, policy)
		Expect(err).NotTo(HaveOccurred())
		Expect(quote.Fallback).To(BeTrue())
		Expect(quote.Kind).To(Equal(wallet.FeeLegacy))
		Expect(quote.GasPrice).To(Equal(gwei(20)))
	})

	It("does not fall back once the caller gave up", func() {
		node.headerErr = context.Canceled
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := estimator.Quote(cancelled, policy)
		Expect(err).To(HaveOccurred())
	})
})
