package controller

import (
	"context"

	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/metrics"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
)

// RequestWithdrawal debits the client and opens an unpaid order.
func (c *Controller) RequestWithdrawal(ctx context.Context, request *types.WithdrawalRequest) (*types.WithdrawalOrder, error) {
	if !request.WithdrawalSum.IsPositive() {
		metrics.WithdrawalsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidWithdrawalSum
	}
	minAmount := c.settings.Get().WithdrawalMinAmount
	order := &types.WithdrawalOrder{ClientID: request.ClientID, WithdrawalSum: request.WithdrawalSum}
	err := c.repo.InTx(ctx, func(tx ledger.Tx) error {
		client, err := tx.LockClient(ctx, request.ClientID)
		if err != nil {
			return err
		}
		if request.WithdrawalSum.GreaterThan(client.Balance) {
			metrics.WithdrawalsTotal.WithLabelValues("not_enough_balance").Inc()
			return ErrNotEnoughBalance
		}
		if request.WithdrawalSum.LessThan(minAmount) {
			metrics.WithdrawalsTotal.WithLabelValues("too_small_sum").Inc()
			return ErrTooSmallSum
		}
		if err := ledger.Debit(client, request.WithdrawalSum); err != nil {
			return err
		}
		if err := tx.SaveClient(ctx, client); err != nil {
			return err
		}
		return tx.CreateWithdrawalOrder(ctx, order)
	})
	if err != nil {
		return nil, errors.Wrap(err, "repo.InTx failed: ")
	}
	metrics.WithdrawalsTotal.WithLabelValues("created").Inc()
	return order, nil
}
