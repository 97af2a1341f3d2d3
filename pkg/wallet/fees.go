package wallet

import (
	"context"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"
)

// FeeKind distinguishes the two fee models.
type FeeKind string

const (
	// FeeLegacy is a single gas price
	FeeLegacy FeeKind = "legacy"
	// FeeEIP1559 is a fee cap plus priority tip
	FeeEIP1559 FeeKind = "eip1559"
)

const (
	// FeeSafetyMarginPercent is added to every fee component read from the node
	FeeSafetyMarginPercent = 20
)

// DefaultLegacyGasPrice is quoted when the node cannot be reached, so fee
// lookup never blocks a submission attempt.
var DefaultLegacyGasPrice = big.NewInt(20000000000) // 20 gwei

// FeeQuote is the fee configuration for one execution. It is never cached.
type FeeQuote struct {
	Kind FeeKind

	// GasPrice is set for legacy quotes
	GasPrice *big.Int

	// MaxFeePerGas and MaxPriorityFeePerGas are set for EIP-1559 quotes
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	// Fallback is true when the quote is the unreachable-node default
	Fallback bool
}

// FeeCap returns the highest price per gas this quote may pay.
func (q *FeeQuote) FeeCap() *big.Int {
	if q.Kind == FeeEIP1559 {
		return q.MaxFeePerGas
	}
	return q.GasPrice
}

// FeeEstimator prices transactions from live node fee data.
type FeeEstimator struct {
	node NodeClient
	log  *logrus.Logger
}

// NewFeeEstimator creates a fee estimator.
func NewFeeEstimator(node NodeClient, log *logrus.Logger) *FeeEstimator {
	return &FeeEstimator{node: node, log: log}
}

// Quote reads current fee conditions and returns a capped quote.
//
// When the latest header carries a base fee the quote is EIP-1559:
// maxFee = 2 × baseFee + tip, both components raised by
// FeeSafetyMarginPercent and capped by the policy, the tip never above the
// fee cap. Otherwise the legacy gas price is raised and capped the same way.
// If the node is unreachable the quote is DefaultLegacyGasPrice.
func (f *FeeEstimator) Quote(ctx context.Context, policy GasPolicy) (*FeeQuote, error) {
	quote, err := f.quote(ctx, policy)
	if err == nil {
		return quote, nil
	}

	env := Classify(err)
	if !feeDataUnavailable(ctx, env) {
		return nil, env
	}

	f.log.WithFields(logrus.Fields{
		"error":     err,
		"kind":      env.Kind,
		"gas_price": DefaultLegacyGasPrice.String(),
	}).Warn("Fee data unavailable, using default legacy gas price")

	return &FeeQuote{
		Kind:     FeeLegacy,
		GasPrice: capAt(new(big.Int).Set(DefaultLegacyGasPrice), policy.MaxFeePerGas),
		Fallback: true,
	}, nil
}

func (f *FeeEstimator) quote(ctx context.Context, policy GasPolicy) (*FeeQuote, error) {
	head, err := f.node.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}

	if head.BaseFee != nil {
		tip, err := f.node.SuggestGasTipCap(ctx)
		if err != nil && !methodUnsupported(err) {
			return nil, err
		}
		if err == nil {
			return eip1559Quote(head.BaseFee, tip, policy), nil
		}
		f.log.WithError(err).Debug("Node does not expose a priority fee, falling back to legacy pricing")
	}

	gasPrice, err := f.node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	quote := &FeeQuote{
		Kind:     FeeLegacy,
		GasPrice: capAt(withSafetyMargin(gasPrice), policy.MaxFeePerGas),
	}

	f.log.WithField("gas_price", quote.GasPrice.String()).Debug("Quoted legacy fee")
	return quote, nil
}

func eip1559Quote(baseFee, tip *big.Int, policy GasPolicy) *FeeQuote {
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	maxFee = capAt(withSafetyMargin(maxFee), policy.MaxFeePerGas)
	priority := capAt(withSafetyMargin(tip), policy.MaxPriorityFee)
	priority = capAt(priority, maxFee)

	return &FeeQuote{
		Kind:                 FeeEIP1559,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: priority,
	}
}

// withSafetyMargin returns v × (100 + FeeSafetyMarginPercent) / 100.
func withSafetyMargin(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(100+FeeSafetyMarginPercent))
	return out.Div(out, big.NewInt(100))
}

func capAt(v, ceiling *big.Int) *big.Int {
	if ceiling != nil && v.Cmp(ceiling) > 0 {
		return new(big.Int).Set(ceiling)
	}
	return v
}

// feeDataUnavailable selects the failures that trigger the default quote:
// the node could not be reached or failed transiently.
func feeDataUnavailable(ctx context.Context, env *ErrorEnvelope) bool {
	if ctx.Err() != nil {
		return false
	}
	return env.Kind == KindNetwork || (env.Kind == KindBlockchain && env.Retryable)
}

func methodUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not supported")
}
