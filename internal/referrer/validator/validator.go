package validator

import (
	"context"
	"regexp"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ReasonMismatch        = "proof does not match"
	ReasonReplayed        = "transaction already redeemed"
	ReasonLookupFailed    = "transaction lookup failed"
	ReasonUnknownContract = "transaction does not target a trusted contract"
	ReasonAmountTooLow    = "token transfer value is too low"
)

type Verdict struct {
	Accepted bool
	Reason   string
}

func accept() Verdict {
	return Verdict{Accepted: true}
}

func reject(reason string) Verdict {
	return Verdict{Reason: reason}
}

// MatchPattern reports whether the whole text matches expression.
func MatchPattern(expression, text string) (bool, error) {
	re, err := regexp.Compile(`^(?:` + expression + `)$`)
	if err != nil {
		return false, errors.Wrap(err, "regexp.Compile failed: ")
	}
	return re.MatchString(text), nil
}

// CheckPattern turns MatchPattern into a verdict. A broken expression rejects the proof.
func CheckPattern(expression string, proof *types.Proof) Verdict {
	if proof == nil || proof.TextAnswer == nil {
		return reject(ReasonMismatch)
	}
	ok, err := MatchPattern(expression, *proof.TextAnswer)
	if err != nil || !ok {
		return reject(ReasonMismatch)
	}
	return accept()
}

type explorer interface {
	GetTransaction(ctx context.Context, hash, chain string) (*types.ChainTransaction, error)
}

type contractRegistry interface {
	IsTrustedContract(ctx context.Context, addresses []string) (bool, error)
}

type replayStore interface {
	IsTransactionRedeemed(ctx context.Context, hash string) (bool, error)
}

type priceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type TransactionChecker struct {
	explorer  explorer
	contracts contractRegistry
	replay    replayStore
	prices    priceSource
	symbol    string
	minValue  decimal.Decimal
	timeout   time.Duration
	logger    *zap.Logger
}

func NewTransactionChecker(e explorer, c contractRegistry, r replayStore, p priceSource, symbol string, minValue decimal.Decimal, timeout time.Duration, logger *zap.Logger) *TransactionChecker {
	return &TransactionChecker{
		explorer:  e,
		contracts: c,
		replay:    r,
		prices:    p,
		symbol:    symbol,
		minValue:  minValue,
		timeout:   timeout,
		logger:    logger.Named("validator"),
	}
}

// Check evaluates a transaction proof. Every failure of a collaborator ends in a
// rejecting verdict; the returned error is only informational.
func (c *TransactionChecker) Check(ctx context.Context, hash, chain string) (Verdict, error) {
	if hash == "" {
		return reject(ReasonLookupFailed), nil
	}
	redeemed, err := c.replay.IsTransactionRedeemed(ctx, hash)
	if err != nil {
		return reject(ReasonLookupFailed), errors.Wrap(err, "replay.IsTransactionRedeemed failed: ")
	}
	if redeemed {
		return reject(ReasonReplayed), nil
	}

	lookupCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	trx, err := c.explorer.GetTransaction(lookupCtx, hash, chain)
	if err != nil {
		return reject(ReasonLookupFailed), errors.Wrap(err, "explorer.GetTransaction failed: ")
	}
	if trx == nil {
		return reject(ReasonLookupFailed), nil
	}

	addresses := make([]string, 0, len(trx.OutputDetails))
	for _, o := range trx.OutputDetails {
		if o.OutputHash != "" {
			addresses = append(addresses, o.OutputHash)
		}
	}
	if len(addresses) == 0 {
		return reject(ReasonUnknownContract), nil
	}
	trusted, err := c.contracts.IsTrustedContract(ctx, addresses)
	if err != nil {
		return reject(ReasonLookupFailed), errors.Wrap(err, "contracts.IsTrustedContract failed: ")
	}
	if !trusted {
		return reject(ReasonUnknownContract), nil
	}

	price, err := c.prices.Price(ctx, c.symbol)
	if err != nil {
		return reject(ReasonLookupFailed), errors.Wrap(err, "prices.Price failed: ")
	}
	for _, transfer := range trx.TokenTransferDetails {
		if transfer.Symbol != c.symbol {
			continue
		}
		if transfer.Amount.Mul(price).GreaterThan(c.minValue) {
			return accept(), nil
		}
	}
	c.logger.Debug("transaction value below threshold", zap.String("hash", hash), zap.String("price", price.String()))
	return reject(ReasonAmountTooLow), nil
}
