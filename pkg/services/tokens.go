package services

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

// TokenAmount reports an amount both in base units and in tokens.
type TokenAmount struct {
	Wei    string `json:"wei"`
	Tokens string `json:"tokens"`
}

func newTokenAmount(v *big.Int) TokenAmount {
	return TokenAmount{
		Wei:    v.String(),
		Tokens: decimal.NewFromBigInt(v, -RewardTokenDecimals).String(),
	}
}

// TokenService operates the reward token.
type TokenService struct {
	base
}

// NewTokenService creates a token service.
func NewTokenService(deps Deps) *TokenService {
	return &TokenService{base: newBase(deps)}
}

// Mint issues amount tokens to the recipient.
func (s *TokenService) Mint(ctx context.Context, identity, to, amount string) Response {
	addr, value, err := recipientAndAmount(to, amount)
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.Mint(addr, value), http.StatusOK)
}

// Transfer sends amount tokens from the signing account.
func (s *TokenService) Transfer(ctx context.Context, identity, to, amount string) Response {
	addr, value, err := recipientAndAmount(to, amount)
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.Transfer(addr, value), http.StatusOK)
}

// Approve lets spender move amount tokens of the signing account.
func (s *TokenService) Approve(ctx context.Context, identity, spender, amount string) Response {
	addr, err := wallet.ValidateAddress(spender, "spender")
	if err != nil {
		return Failure(err)
	}
	value, err := wallet.ValidateTokenAmount(amount, RewardTokenDecimals, "amount")
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.Approve(addr, value), http.StatusOK)
}

// Balance reads the token balance of owner.
func (s *TokenService) Balance(ctx context.Context, owner string) Response {
	addr, err := wallet.ValidateAddress(owner, "owner")
	if err != nil {
		return Failure(err)
	}
	return s.amount(ctx, contracts.BalanceOf(addr))
}

// TotalSupply reads the token supply.
func (s *TokenService) TotalSupply(ctx context.Context) Response {
	return s.amount(ctx, contracts.TotalSupply())
}

func (s *TokenService) amount(ctx context.Context, op contracts.Operation) Response {
	out, err := s.read(ctx, op)
	if err != nil {
		return Failure(err)
	}

	d := newDecoder(op, out, 1)
	value := d.bigInt(0)
	if err := d.Err(); err != nil {
		return Failure(err)
	}
	return Success(http.StatusOK, newTokenAmount(value))
}

func recipientAndAmount(to, amount string) (common.Address, *big.Int, error) {
	addr, err := wallet.ValidateAddress(to, "to")
	if err != nil {
		return common.Address{}, nil, err
	}
	value, err := wallet.ValidateTokenAmount(amount, RewardTokenDecimals, "amount")
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, value, nil
}
