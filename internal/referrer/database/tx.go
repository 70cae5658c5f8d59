package database

import (
	"context"

	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
)

// Tx implements ledger.Tx on top of a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) LockClient(ctx context.Context, userID int64) (*types.Client, error) {
	return scanClient(t.tx.QueryRow(ctx, "select "+clientColumns+" from clients where user_id = $1 for update", userID))
}

func (t *Tx) CreateClient(ctx context.Context, c *types.Client) error {
	row := t.tx.QueryRow(ctx, `insert into clients (user_id, affiliate_id, tg_username, phone, referral_bonus)
		values ($1, $2, nullif($3, ''), nullif($4, ''), $5) on conflict (user_id) do nothing returning user_id`,
		c.UserID, c.AffiliateID, c.TgUsername, c.Phone, c.ReferralBonus)
	var id int64
	err := row.Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrClientAlreadyExist
	}
	if err != nil {
		return errors.Wrap(err, "row.Scan failed: ")
	}
	return nil
}

func (t *Tx) SaveClient(ctx context.Context, c *types.Client) error {
	_, err := t.tx.Exec(ctx, `update clients set referrals = $2, task_sum = $3, balance = $4, unverified_balance = $5,
		is_verified_referral = $6, last_submission_at = $7 where user_id = $1`,
		c.UserID, c.Referrals, c.TaskSum, c.Balance, c.UnverifiedBalance,
		c.ReferralState == types.ReferralConfirmed, c.LastSubmissionAt)
	if err != nil {
		return errors.Wrap(err, "tx.Exec failed: ")
	}
	return nil
}

func (t *Tx) GetTask(ctx context.Context, taskID int64) (*types.Task, error) {
	return scanTask(t.tx.QueryRow(ctx, "select "+taskColumns+taskFrom+" where t.id = $1", taskID))
}

const userTaskColumns = "id, client_id, task_id, completed, proof_id, proof_exists, credit, created"

func scanUserTask(row pgx.Row) (*types.UserTask, error) {
	ut := &types.UserTask{}
	var proofExists bool
	err := row.Scan(&ut.ID, &ut.ClientID, &ut.TaskID, &ut.Completed, &ut.ProofID, &proofExists, &ut.Credit, &ut.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserTaskNotExist
	}
	if err != nil {
		return nil, errors.Wrap(err, "row.Scan failed: ")
	}
	if proofExists {
		ut.ProofState = types.ProofRecorded
	}
	return ut, nil
}

func (t *Tx) FindUserTask(ctx context.Context, clientID, taskID int64) (*types.UserTask, error) {
	return scanUserTask(t.tx.QueryRow(ctx, "select "+userTaskColumns+` from user_tasks
		where client_id = $1 and task_id = $2 order by completed, id desc limit 1 for update`, clientID, taskID))
}

func (t *Tx) LockUserTask(ctx context.Context, id int64) (*types.UserTask, error) {
	return scanUserTask(t.tx.QueryRow(ctx, "select "+userTaskColumns+" from user_tasks where id = $1 for update", id))
}

func (t *Tx) CreateUserTask(ctx context.Context, ut *types.UserTask) error {
	row := t.tx.QueryRow(ctx, `insert into user_tasks (client_id, task_id, completed, proof_id, proof_exists, credit)
		values ($1, $2, $3, $4, $5, $6) returning id, created`,
		ut.ClientID, ut.TaskID, ut.Completed, ut.ProofID, ut.ProofState == types.ProofRecorded, ut.Credit)
	if err := row.Scan(&ut.ID, &ut.Created); err != nil {
		return errors.Wrap(err, "row.Scan failed: ")
	}
	return nil
}

func (t *Tx) SaveUserTask(ctx context.Context, ut *types.UserTask) error {
	_, err := t.tx.Exec(ctx, "update user_tasks set completed = $2, proof_id = $3, proof_exists = $4, credit = $5 where id = $1",
		ut.ID, ut.Completed, ut.ProofID, ut.ProofState == types.ProofRecorded, ut.Credit)
	if err != nil {
		return errors.Wrap(err, "tx.Exec failed: ")
	}
	return nil
}

func (t *Tx) GetProof(ctx context.Context, id int64) (*types.Proof, error) {
	p := &types.Proof{}
	err := t.tx.QueryRow(ctx, "select id, text_answer, image_answer from proofs where id = $1", id).Scan(&p.ID, &p.TextAnswer, &p.ImageAnswer)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProofNotExist
	}
	if err != nil {
		return nil, errors.Wrap(err, "row.Scan failed: ")
	}
	return p, nil
}

func (t *Tx) CreateProof(ctx context.Context, p *types.Proof) error {
	row := t.tx.QueryRow(ctx, "insert into proofs (text_answer, image_answer) values ($1, $2) returning id", p.TextAnswer, p.ImageAnswer)
	if err := row.Scan(&p.ID); err != nil {
		return errors.Wrap(err, "row.Scan failed: ")
	}
	return nil
}

func (t *Tx) DeleteProof(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, "delete from proofs where id = $1", id)
	if err != nil {
		return errors.Wrap(err, "tx.Exec failed: ")
	}
	return nil
}

func (t *Tx) RecordTransaction(ctx context.Context, trx *types.StoredTransaction) error {
	row := t.tx.QueryRow(ctx, `insert into stored_transactions (hash, chain, client_id) values (lower($1), $2, $3)
		on conflict (hash) do nothing returning created`, trx.Hash, trx.Chain, trx.ClientID)
	err := row.Scan(&trx.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTransactionAlreadyRedeemed
	}
	if isUniqueViolation(err) {
		return ErrTransactionAlreadyRedeemed
	}
	if err != nil {
		return errors.Wrap(err, "row.Scan failed: ")
	}
	return nil
}

func (t *Tx) CreateWithdrawalOrder(ctx context.Context, o *types.WithdrawalOrder) error {
	row := t.tx.QueryRow(ctx, "insert into withdrawal_orders (client_id, withdrawal_sum, payed) values ($1, $2, $3) returning id, created",
		o.ClientID, o.WithdrawalSum, o.Payed)
	if err := row.Scan(&o.ID, &o.Created); err != nil {
		return errors.Wrap(err, "row.Scan failed: ")
	}
	return nil
}
