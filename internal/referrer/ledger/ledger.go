// Package ledger holds the balance state machine of a client. Transitions
// mutate a client that the caller has locked inside a Tx; persisting the
// client is the caller's job.
package ledger

import (
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var ErrNegativeBalance = errors.New("transition would make balance negative")

const (
	transitionFromUnverified = "transfer_from_unverified"
	transitionToUnverified   = "transfer_to_unverified"
	transitionIncUnverified  = "increment_unverified_balance"
	transitionAddTask        = "add_task_amount"
	transitionRemoveTask     = "remove_task_amount"
	transitionRefToBalance   = "add_ref_amount_to_balance"
	transitionRefCount       = "increment_ref_count"
	transitionDebit          = "debit"
)

// TransferFromUnverified confirms the pending credit of an attempt. The amount is
// the one credited at submission time, whatever the task price is now.
func TransferFromUnverified(c *types.Client, ut *types.UserTask) error {
	unverified := c.UnverifiedBalance.Sub(ut.Credit)
	if unverified.IsNegative() {
		return errors.Wrap(ErrNegativeBalance, "unverified_balance")
	}
	c.UnverifiedBalance = unverified
	c.Balance = c.Balance.Add(ut.Credit)
	c.TaskSum++
	observe(transitionFromUnverified)
	return nil
}

// TransferToUnverified moves the confirmed credit of an attempt back to pending.
func TransferToUnverified(c *types.Client, ut *types.UserTask) error {
	balance := c.Balance.Sub(ut.Credit)
	if balance.IsNegative() {
		return errors.Wrap(ErrNegativeBalance, "balance")
	}
	c.Balance = balance
	c.UnverifiedBalance = c.UnverifiedBalance.Add(ut.Credit)
	c.TaskSum--
	observe(transitionToUnverified)
	return nil
}

// IncrementUnverifiedBalance credits the task price as pending and pins it on the attempt.
func IncrementUnverifiedBalance(c *types.Client, task *types.Task, ut *types.UserTask) {
	ut.Credit = task.Price
	c.UnverifiedBalance = c.UnverifiedBalance.Add(task.Price)
	observe(transitionIncUnverified)
}

func AddTaskAmount(c *types.Client, task *types.Task, ut *types.UserTask) {
	ut.Credit = task.Price
	c.Balance = c.Balance.Add(task.Price)
	c.TaskSum++
	observe(transitionAddTask)
}

func RemoveTaskAmount(c *types.Client, ut *types.UserTask) error {
	balance := c.Balance.Sub(ut.Credit)
	if balance.IsNegative() {
		return errors.Wrap(ErrNegativeBalance, "balance")
	}
	c.Balance = balance
	c.TaskSum--
	ut.Credit = decimal.Zero
	observe(transitionRemoveTask)
	return nil
}

// AddRefAmountToBalance confirms the speculative referral credit of an affiliate.
func AddRefAmountToBalance(affiliate *types.Client, amount decimal.Decimal) error {
	unverified := affiliate.UnverifiedBalance.Sub(amount)
	if unverified.IsNegative() {
		return errors.Wrap(ErrNegativeBalance, "unverified_balance")
	}
	affiliate.UnverifiedBalance = unverified
	affiliate.Balance = affiliate.Balance.Add(amount)
	observe(transitionRefToBalance)
	return nil
}

func IncrementRefCount(affiliate *types.Client, cost decimal.Decimal) {
	affiliate.Referrals++
	affiliate.UnverifiedBalance = affiliate.UnverifiedBalance.Add(cost)
	observe(transitionRefCount)
}

func Debit(c *types.Client, amount decimal.Decimal) error {
	balance := c.Balance.Sub(amount)
	if balance.IsNegative() {
		return errors.Wrap(ErrNegativeBalance, "balance")
	}
	c.Balance = balance
	observe(transitionDebit)
	return nil
}

// ConfirmReferral latches the referral of c. It reports false if the referral
// bonus was already paid or c has no affiliate.
func ConfirmReferral(c *types.Client) bool {
	if c.AffiliateID == nil || c.ReferralState == types.ReferralConfirmed {
		return false
	}
	c.ReferralState = types.ReferralConfirmed
	return true
}

// RecordProof latches the proof state of an attempt and reports whether it changed.
func RecordProof(ut *types.UserTask) bool {
	if ut.ProofState == types.ProofRecorded {
		return false
	}
	ut.ProofState = types.ProofRecorded
	return true
}
