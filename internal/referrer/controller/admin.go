package controller

import (
	"context"

	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
)

func (c *Controller) CreateTask(ctx context.Context, task *types.Task) (int64, error) {
	if err := c.resolveValidator(ctx, task); err != nil {
		return 0, err
	}
	if err := task.Validate(); err != nil {
		return 0, errors.Wrap(err, "task.Validate failed: ")
	}
	id, err := c.repo.CreateTask(ctx, task)
	if err != nil {
		return 0, errors.Wrap(err, "repo.CreateTask failed: ")
	}
	return id, nil
}

func (c *Controller) UpdateTask(ctx context.Context, task *types.Task) error {
	if err := c.resolveValidator(ctx, task); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return errors.Wrap(err, "task.Validate failed: ")
	}
	if err := c.repo.UpdateTask(ctx, task); err != nil {
		return errors.Wrap(err, "repo.UpdateTask failed: ")
	}
	return nil
}

// resolveValidator replaces a validator reference by id with the stored one.
func (c *Controller) resolveValidator(ctx context.Context, task *types.Task) error {
	if task.Validator == nil || task.Validator.ID == 0 {
		return nil
	}
	v, err := c.repo.GetValidator(ctx, task.Validator.ID)
	if err != nil {
		return errors.Wrap(err, "repo.GetValidator failed: ")
	}
	task.Validator = v
	return nil
}

func (c *Controller) CreateValidator(ctx context.Context, v *types.Validator) (int64, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}
	id, err := c.repo.CreateValidator(ctx, v)
	if err != nil {
		return 0, errors.Wrap(err, "repo.CreateValidator failed: ")
	}
	return id, nil
}

func (c *Controller) AddContract(ctx context.Context, contract *types.Contract) (int64, error) {
	if err := contract.Validate(); err != nil {
		return 0, err
	}
	id, err := c.repo.AddContract(ctx, contract)
	if err != nil {
		return 0, errors.Wrap(err, "repo.AddContract failed: ")
	}
	return id, nil
}

// SetUserTaskCompleted is the administrative correction of an attempt. It moves
// the attempt's credit between balance and unverified balance and never confirms a referral.
func (c *Controller) SetUserTaskCompleted(ctx context.Context, id int64, completed bool) (*types.UserTask, error) {
	ut, err := c.repo.GetUserTask(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "repo.GetUserTask failed: ")
	}
	err = c.repo.InTx(ctx, func(tx ledger.Tx) error {
		client, err := tx.LockClient(ctx, ut.ClientID)
		if err != nil {
			return err
		}
		ut, err = tx.LockUserTask(ctx, id)
		if err != nil {
			return err
		}
		if ut.Completed == completed {
			return nil
		}
		task, err := tx.GetTask(ctx, ut.TaskID)
		if err != nil {
			return err
		}
		if completed {
			if ut.ProofState == types.ProofRecorded {
				err = ledger.TransferFromUnverified(client, ut)
			} else {
				ledger.AddTaskAmount(client, task, ut)
				ledger.RecordProof(ut)
			}
		} else {
			err = ledger.TransferToUnverified(client, ut)
		}
		if err != nil {
			return err
		}
		ut.Completed = completed
		if err := tx.SaveUserTask(ctx, ut); err != nil {
			return err
		}
		return tx.SaveClient(ctx, client)
	})
	if err != nil {
		return nil, errors.Wrap(err, "repo.InTx failed: ")
	}
	return ut, nil
}

func (c *Controller) ListWithdrawalOrders(ctx context.Context, payed *bool) ([]*types.WithdrawalOrder, error) {
	orders, err := c.repo.ListWithdrawalOrders(ctx, payed)
	if err != nil {
		return nil, errors.Wrap(err, "repo.ListWithdrawalOrders failed: ")
	}
	return orders, nil
}

func (c *Controller) MarkWithdrawalPayed(ctx context.Context, id int64) error {
	if err := c.repo.MarkWithdrawalPayed(ctx, id); err != nil {
		return errors.Wrap(err, "repo.MarkWithdrawalPayed failed: ")
	}
	return nil
}

func (c *Controller) GetSettings() types.SiteSettings {
	return c.settings.Get()
}

func (c *Controller) UpdateSettings(ctx context.Context, s types.SiteSettings) error {
	if err := c.settings.Update(ctx, s); err != nil {
		return errors.Wrap(err, "settings.Update failed: ")
	}
	return nil
}

// Broadcast sends text to every registered client and returns the delivered count.
func (c *Controller) Broadcast(ctx context.Context, text string) (int, error) {
	ids, err := c.repo.ListClientIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "repo.ListClientIDs failed: ")
	}
	sent, err := c.notifier.Broadcast(ctx, ids, text)
	if err != nil {
		return sent, errors.Wrap(err, "notifier.Broadcast failed: ")
	}
	return sent, nil
}
