package controller

import (
	"context"

	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/metrics"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
)

// confirmReferral pays the affiliate the bonus snapshotted at registration the
// first time the referred client gets a task accepted. The affiliate row is
// locked after the client row.
func (c *Controller) confirmReferral(ctx context.Context, tx ledger.Tx, client *types.Client) error {
	if !ledger.ConfirmReferral(client) {
		return nil
	}
	affiliate, err := tx.LockClient(ctx, *client.AffiliateID)
	if err != nil {
		return errors.Wrap(err, "tx.LockClient failed: ")
	}
	if err := ledger.AddRefAmountToBalance(affiliate, client.ReferralBonus); err != nil {
		return err
	}
	if err := tx.SaveClient(ctx, affiliate); err != nil {
		return err
	}
	metrics.ReferralPayoutsTotal.Inc()
	return nil
}
