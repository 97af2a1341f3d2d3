package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

// RewardTokenDecimals is the precision of the reward token.
const RewardTokenDecimals = 18

// ChainExecutor runs contract operations. *wallet.Client satisfies it.
type ChainExecutor interface {
	Execute(ctx context.Context, op contracts.Operation, opts *wallet.ExecOptions) (*wallet.ExecutionResult, error)
	Call(ctx context.Context, op contracts.Operation, opts *wallet.ExecOptions) ([]interface{}, error)
}

// Limiter throttles writes per caller identity. *ratelimit.Store satisfies it.
type Limiter interface {
	Allow(identity string) error
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Chain   ChainExecutor
	Limiter Limiter
	Logger  *logrus.Logger
	Now     func() time.Time
}

type base struct {
	chain   ChainExecutor
	limiter Limiter
	log     *logrus.Logger
	now     func() time.Time
}

func newBase(deps Deps) base {
	b := base{
		chain:   deps.Chain,
		limiter: deps.Limiter,
		log:     deps.Logger,
		now:     deps.Now,
	}
	if b.log == nil {
		b.log = logrus.StandardLogger()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// WriteResult describes a confirmed state change.
type WriteResult struct {
	OperationID    string `json:"operationId"`
	TxHash         string `json:"txHash"`
	Nonce          uint64 `json:"nonce"`
	GasLimit       uint64 `json:"gasLimit"`
	GasUsed        uint64 `json:"gasUsed"`
	FeePerGas      string `json:"feePerGas"`
	TotalCostWei   string `json:"totalCostWei"`
	TotalCostEther string `json:"totalCostEther"`
}

func newWriteResult(result *wallet.ExecutionResult) *WriteResult {
	return &WriteResult{
		OperationID:    result.OperationID,
		TxHash:         result.TransactionHash.Hex(),
		Nonce:          result.Nonce,
		GasLimit:       result.GasLimit,
		GasUsed:        result.GasUsed,
		FeePerGas:      result.EffectiveFeePerGas.String(),
		TotalCostWei:   result.TotalCost.String(),
		TotalCostEther: result.TotalCostEther().String(),
	}
}

// write throttles identity, executes op and formats the outcome.
func (b *base) write(ctx context.Context, identity string, op contracts.Operation, status int) Response {
	log := b.log.WithFields(logrus.Fields{
		"identity":  identity,
		"operation": op.String(),
	})

	if b.limiter != nil {
		if err := b.limiter.Allow(identity); err != nil {
			log.Warn("Write throttled")
			return Failure(err)
		}
	}

	result, err := b.chain.Execute(ctx, op, nil)
	if err != nil {
		log.WithError(err).Warn("Operation failed")
		return Failure(err)
	}

	log.WithField("tx_hash", result.TransactionHash.Hex()).Info("Operation confirmed")
	return Success(status, newWriteResult(result))
}

// read runs a read-only op and returns its raw outputs.
func (b *base) read(ctx context.Context, op contracts.Operation) ([]interface{}, error) {
	out, err := b.chain.Call(ctx, op, nil)
	if err != nil {
		b.log.WithError(err).WithField("operation", op.String()).Debug("Read failed")
		return nil, err
	}
	return out, nil
}

func notFound(format string, args ...interface{}) error {
	return &wallet.ErrorEnvelope{
		Kind:    wallet.KindContract,
		Message: fmt.Sprintf(format, args...),
	}
}

// decoder reads positional contract outputs, remembering the first mismatch.
type decoder struct {
	op  contracts.Operation
	out []interface{}
	err error
}

func newDecoder(op contracts.Operation, out []interface{}, want int) *decoder {
	d := &decoder{op: op, out: out}
	if len(out) != want {
		d.err = fmt.Errorf("%s returned %d values, expected %d", op, len(out), want)
	}
	return d
}

func (d *decoder) value(i int) interface{} {
	if d.err != nil || i >= len(d.out) {
		return nil
	}
	return d.out[i]
}

func (d *decoder) mismatch(i int, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("%s output %d is %T, expected %s", d.op, i, d.out[i], want)
	}
}

func (d *decoder) bigInt(i int) *big.Int {
	v, ok := d.value(i).(*big.Int)
	if !ok {
		d.mismatch(i, "uint256")
		return new(big.Int)
	}
	return v
}

func (d *decoder) address(i int) common.Address {
	v, ok := d.value(i).(common.Address)
	if !ok {
		d.mismatch(i, "address")
	}
	return v
}

func (d *decoder) str(i int) string {
	v, ok := d.value(i).(string)
	if !ok {
		d.mismatch(i, "string")
	}
	return v
}

func (d *decoder) u8(i int) uint8 {
	v, ok := d.value(i).(uint8)
	if !ok {
		d.mismatch(i, "uint8")
	}
	return v
}

func (d *decoder) boolean(i int) bool {
	v, ok := d.value(i).(bool)
	if !ok {
		d.mismatch(i, "bool")
	}
	return v
}

// Err returns a Blockchain envelope describing the first mismatch.
func (d *decoder) Err() error {
	if d.err == nil {
		return nil
	}
	return &wallet.ErrorEnvelope{
		Kind:    wallet.KindBlockchain,
		Message: "unexpected contract output",
		Err:     d.err,
	}
}
