package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
)

// GasPolicy bounds gas limits and fee caps for submitted transactions.
// The process-wide policy is built once at startup; per-call overrides go
// through ExecOptions and never mutate it.
type GasPolicy struct {
	// BufferPercentage is added on top of the simulated gas, 20 adds 20%
	BufferPercentage uint64

	// MinGasLimit and MaxGasLimit clamp every gas limit
	MinGasLimit uint64
	MaxGasLimit uint64

	// MaxPriorityFee caps the EIP-1559 tip in wei
	MaxPriorityFee *big.Int

	// MaxFeePerGas caps the EIP-1559 fee cap or the legacy gas price in wei
	MaxFeePerGas *big.Int
}

// DefaultGasPolicy returns the default policy:
//   - 20% buffer over simulated gas
//   - gas limits clamped to [21000, 10000000]
//   - tip capped at 2 gwei, fee per gas capped at 100 gwei
func DefaultGasPolicy() GasPolicy {
	return GasPolicy{
		BufferPercentage: 20,
		MinGasLimit:      21000,
		MaxGasLimit:      10000000,
		MaxPriorityFee:   big.NewInt(2000000000),   // 2 gwei
		MaxFeePerGas:     big.NewInt(100000000000), // 100 gwei
	}
}

// Validate checks the policy invariants.
func (p GasPolicy) Validate() error {
	if p.MinGasLimit >= p.MaxGasLimit {
		return fmt.Errorf("min gas limit %d must be below max gas limit %d", p.MinGasLimit, p.MaxGasLimit)
	}
	if p.BufferPercentage > 100 {
		return fmt.Errorf("buffer percentage %d must be within [0, 100]", p.BufferPercentage)
	}
	if p.MaxFeePerGas == nil || p.MaxFeePerGas.Sign() <= 0 {
		return fmt.Errorf("max fee per gas must be positive")
	}
	if p.MaxPriorityFee == nil || p.MaxPriorityFee.Sign() <= 0 {
		return fmt.Errorf("max priority fee must be positive")
	}
	return nil
}

// DefaultGasFallback is used for methods missing from MethodDefaultTable.
const DefaultGasFallback uint64 = 200000

// MethodDefaultTable holds conservative gas limits used when simulation is
// skipped or unavailable.
var MethodDefaultTable = map[contracts.Method]uint64{
	contracts.MethodCreateTask:      300000,
	contracts.MethodAssignTask:      150000,
	contracts.MethodSubmitTask:      200000,
	contracts.MethodCompleteTask:    250000,
	contracts.MethodCancelTask:      100000,
	contracts.MethodRegisterCompany: 200000,
	contracts.MethodVerifyCompany:   80000,
	contracts.MethodRegisterStudent: 200000,
	contracts.MethodMint:            100000,
	contracts.MethodTransfer:        65000,
	contracts.MethodApprove:         50000,
}

// DefaultGasFor returns the table entry for method or DefaultGasFallback.
func DefaultGasFor(method contracts.Method) uint64 {
	if gas, ok := MethodDefaultTable[method]; ok {
		return gas
	}
	return DefaultGasFallback
}

// ApplyBuffer returns gas × (100 + bufferPercentage) / 100 using integer arithmetic.
func ApplyBuffer(gas uint64, bufferPercentage uint64) *big.Int {
	buffered := new(big.Int).SetUint64(gas)
	buffered.Mul(buffered, new(big.Int).SetUint64(100+bufferPercentage))
	return buffered.Div(buffered, big.NewInt(100))
}

// Clamp bounds gas to [policy.MinGasLimit, policy.MaxGasLimit].
func (p GasPolicy) Clamp(gas *big.Int) uint64 {
	if gas.Cmp(new(big.Int).SetUint64(p.MinGasLimit)) < 0 {
		return p.MinGasLimit
	}
	if gas.Cmp(new(big.Int).SetUint64(p.MaxGasLimit)) > 0 {
		return p.MaxGasLimit
	}
	return gas.Uint64()
}

// GasEstimator sizes gas limits by simulating calls against the node.
type GasEstimator struct {
	node       NodeClient
	registry   *contracts.Registry
	from       common.Address
	classifier *Classifier
	log        *logrus.Logger
}

// NewGasEstimator creates an estimator simulating calls from the given sender.
func NewGasEstimator(node NodeClient, registry *contracts.Registry, from common.Address, log *logrus.Logger) *GasEstimator {
	return &GasEstimator{
		node:       node,
		registry:   registry,
		from:       from,
		classifier: defaultClassifier,
		log:        log,
	}
}

// Estimate returns a gas limit for op, always within the policy bounds.
//
// With opts.SkipSimulation the method default is used directly. When the
// simulation fails, opts.Strict propagates the classified failure; otherwise
// the method default is used only if the node could not simulate at all
// (Network or Blockchain kinds). A contract revert is never papered over.
//
// Example:
//
//	gas, err := estimator.Estimate(ctx, contracts.Mint(to, amount), ExecOptions{})
//	if err != nil {
//	    return err
//	}
func (g *GasEstimator) Estimate(ctx context.Context, op contracts.Operation, opts ExecOptions) (uint64, error) {
	policy := opts.gasPolicy()
	if err := policy.Validate(); err != nil {
		return 0, NewValidationError("gasPolicy", err.Error())
	}

	log := g.log.WithFields(logrus.Fields{
		"contract": op.Contract,
		"method":   op.Method,
	})

	if opts.SkipSimulation {
		gas := policy.Clamp(new(big.Int).SetUint64(DefaultGasFor(op.Method)))
		log.WithField("gas_limit", gas).Debug("Using default gas limit without simulation")
		return gas, nil
	}

	to, data, err := g.registry.Pack(op)
	if err != nil {
		return 0, NewValidationError("operation", err.Error())
	}

	simulated, err := g.node.EstimateGas(ctx, ethereum.CallMsg{
		From:  g.from,
		To:    &to,
		Data:  data,
		Value: opts.Value,
	})
	if err != nil {
		env := g.classifier.Classify(err)
		if opts.Strict || !simulationUnavailable(ctx, env) {
			return 0, env
		}

		gas := policy.Clamp(new(big.Int).SetUint64(DefaultGasFor(op.Method)))
		log.WithFields(logrus.Fields{
			"error":     err,
			"kind":      env.Kind,
			"gas_limit": gas,
		}).Warn("Gas simulation unavailable, using method default")
		return gas, nil
	}

	gas := policy.Clamp(ApplyBuffer(simulated, policy.BufferPercentage))

	log.WithFields(logrus.Fields{
		"simulated_gas": simulated,
		"buffer":        policy.BufferPercentage,
		"gas_limit":     gas,
	}).Debug("Estimated gas limit")

	return gas, nil
}

// simulationUnavailable is the only branch allowed to substitute a default
// gas limit: the node could not simulate, as opposed to the call reverting
// or the caller giving up.
func simulationUnavailable(ctx context.Context, env *ErrorEnvelope) bool {
	if ctx.Err() != nil {
		return false
	}
	return env.Kind == KindNetwork || env.Kind == KindBlockchain
}
