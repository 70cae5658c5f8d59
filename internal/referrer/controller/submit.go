package controller

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SakuraBurst/rewardbot/internal/referrer/database"
	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/metrics"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/SakuraBurst/rewardbot/internal/referrer/validator"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// SubmitProof attaches a proof to the client's open attempt on a task and runs
// it through the task policy. Rejections are outcomes, not errors.
func (c *Controller) SubmitProof(ctx context.Context, request *types.ProofRequest) (*types.SubmissionOutcome, error) {
	allowed, err := c.locker.AllowSubmission(ctx, request.ClientID)
	if err != nil {
		return nil, errors.Wrap(err, "locker.AllowSubmission failed: ")
	}
	if !allowed {
		return nil, ErrTooManySubmissions
	}
	unlock, err := c.locker.LockClient(ctx, request.ClientID)
	if err != nil {
		return nil, errors.Wrap(err, "locker.LockClient failed: ")
	}
	defer unlock()

	if _, err := c.repo.GetClient(ctx, request.ClientID); err != nil {
		return nil, errors.Wrap(err, "repo.GetClient failed: ")
	}
	task, err := c.repo.GetTaskById(ctx, request.TaskID)
	if err != nil {
		return nil, errors.Wrap(err, "repo.GetTaskById failed: ")
	}
	text := strings.TrimSpace(request.TextAnswer)
	if task.ProofType == types.ProofTypePhoto && len(request.Image) == 0 {
		return nil, ErrEmptyProof
	}
	if task.ProofType == types.ProofTypeText && text == "" {
		return nil, ErrEmptyProof
	}
	if utf8.RuneCountInString(text) > types.MaxProofTextLength {
		return nil, ErrProofTooLong
	}

	policy := task.Policy()
	var verdict validator.Verdict
	if policy.Kind == types.PolicyTransactionProof {
		if err := c.ensureTaskOpen(ctx, request.ClientID, task); err != nil {
			return nil, err
		}
		verdict, err = c.checker.Check(ctx, text, policy.Chain)
		if err != nil {
			c.logger.Warn("checker.Check failed", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	}

	proof := &types.Proof{}
	if text != "" {
		proof.TextAnswer = &text
	}
	if len(request.Image) > 0 {
		path, err := c.files.Save(ctx, request.Image, request.ImageType)
		if err != nil {
			return nil, errors.Wrap(err, "files.Save failed: ")
		}
		proof.ImageAnswer = &path
	}

	outcome := &types.SubmissionOutcome{}
	var replacedFile *string
	err = c.repo.InTx(ctx, func(tx ledger.Tx) error {
		client, err := tx.LockClient(ctx, request.ClientID)
		if err != nil {
			return err
		}
		ut, err := openUserTask(ctx, tx, client.UserID, task)
		if err != nil {
			return err
		}
		var replaced *int64
		if ut.ProofID != nil {
			old, err := tx.GetProof(ctx, *ut.ProofID)
			if err != nil && !errors.Is(err, database.ErrProofNotExist) {
				return err
			}
			if old != nil {
				replaced = &old.ID
				replacedFile = old.ImageAnswer
			}
		}
		if err := tx.CreateProof(ctx, proof); err != nil {
			return err
		}
		ut.ProofID = &proof.ID
		now := time.Now()
		client.LastSubmissionAt = &now

		switch policy.Kind {
		case types.PolicyPatternMatch:
			verdict = validator.CheckPattern(policy.Expression, proof)
		case types.PolicyTransactionProof:
			if verdict.Accepted {
				verdict, err = recordTransaction(ctx, tx, text, policy.Chain, client.UserID)
				if err != nil {
					return err
				}
			}
		}

		switch {
		case policy.Kind == types.PolicyNone:
			outcome.Status = types.SubmissionPending
			unverifiedFallback(client, task, ut)
		case verdict.Accepted:
			outcome.Status = types.SubmissionAccepted
			outcome.Message = task.SuccessText
			if err := c.acceptAttempt(ctx, tx, client, task, ut); err != nil {
				return err
			}
		default:
			outcome.Status = types.SubmissionRejected
			outcome.Reason = verdict.Reason
			outcome.Message = task.FailText
			unverifiedFallback(client, task, ut)
		}

		if err := tx.SaveUserTask(ctx, ut); err != nil {
			return err
		}
		if replaced != nil {
			if err := tx.DeleteProof(ctx, *replaced); err != nil {
				return err
			}
		}
		outcome.UserTaskID = ut.ID
		return tx.SaveClient(ctx, client)
	})
	if err != nil {
		if proof.ImageAnswer != nil {
			c.releaseFile(*proof.ImageAnswer)
		}
		return nil, errors.Wrap(err, "repo.InTx failed: ")
	}
	if replacedFile != nil {
		c.releaseFile(*replacedFile)
	}
	metrics.SubmissionsTotal.WithLabelValues(string(outcome.Status), policy.Kind.String()).Inc()
	return outcome, nil
}

// ensureTaskOpen rejects a finished non repeatable task before any external lookup.
// openUserTask repeats the check under the row lock.
func (c *Controller) ensureTaskOpen(ctx context.Context, clientID int64, task *types.Task) error {
	if task.Repeatable {
		return nil
	}
	var completed bool
	err := c.repo.InTx(ctx, func(tx ledger.Tx) error {
		ut, err := tx.FindUserTask(ctx, clientID, task.ID)
		if errors.Is(err, database.ErrUserTaskNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		completed = ut.Completed
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "repo.InTx failed: ")
	}
	if completed {
		return ErrTaskAlreadyCompleted
	}
	return nil
}

// recordTransaction stores the redeemed hash; a hash stored concurrently turns the verdict into a replay.
func recordTransaction(ctx context.Context, tx ledger.Tx, hash, chain string, clientID int64) (validator.Verdict, error) {
	err := tx.RecordTransaction(ctx, &types.StoredTransaction{Hash: hash, Chain: chain, ClientID: clientID})
	if errors.Is(err, database.ErrTransactionAlreadyRedeemed) {
		return validator.Verdict{Reason: validator.ReasonReplayed}, nil
	}
	if err != nil {
		return validator.Verdict{}, err
	}
	return validator.Verdict{Accepted: true}, nil
}

// acceptAttempt credits the task price. A pending unverified credit of the same
// attempt is moved at the amount it was credited with instead of paying twice.
func (c *Controller) acceptAttempt(ctx context.Context, tx ledger.Tx, client *types.Client, task *types.Task, ut *types.UserTask) error {
	ut.Completed = true
	if ut.ProofState == types.ProofRecorded {
		if err := ledger.TransferFromUnverified(client, ut); err != nil {
			return err
		}
	} else {
		ledger.AddTaskAmount(client, task, ut)
		ledger.RecordProof(ut)
	}
	return c.confirmReferral(ctx, tx, client)
}

// unverifiedFallback credits the price as unverified once per attempt.
func unverifiedFallback(client *types.Client, task *types.Task, ut *types.UserTask) {
	if ledger.RecordProof(ut) {
		ledger.IncrementUnverifiedBalance(client, task, ut)
	}
}

func (c *Controller) releaseFile(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.files.Delete(ctx, path); err != nil {
		c.logger.Warn("files.Delete failed", zap.String("path", path), zap.Error(err))
	}
}
