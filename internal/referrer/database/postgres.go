package database

import (
	"context"
	"strings"

	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// Pool is the part of pgxpool.Pool the database works with.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

type DB struct {
	Conn   Pool
	logger *zap.Logger
}

func newDB(conn Pool, logger *zap.Logger) *DB {
	return &DB{Conn: conn, logger: logger.Named("database")}
}

func NewDB(cfg *config.Config, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.ParseConfig failed: ")
	}
	if cfg.Postgres.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Postgres.MaxConns
	}
	conn, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.NewWithConfig failed: ")
	}
	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "conn.Ping failed: ")
	}
	return newDB(conn, logger), nil
}

// InTx runs fn inside one transaction. The transaction is committed only if fn
// returns nil.
func (d *DB) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := d.Conn.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "conn.Begin failed: ")
	}

	rollback := func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			d.logger.Error("tx.Rollback failed", zap.Error(err))
		}
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		rollback()
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "tx.Commit failed: ")
	}
	return nil
}

const clientColumns = `user_id, affiliate_id, coalesce(tg_username, ''), coalesce(phone, ''), coalesce(discord_username, ''),
	referrals, task_sum, balance, unverified_balance, is_verified_referral, referral_bonus, coalesce(wallet, ''),
	welcome_passed, last_submission_at`

func scanClient(row pgx.Row) (*types.Client, error) {
	c := &types.Client{}
	var verified bool
	err := row.Scan(&c.UserID, &c.AffiliateID, &c.TgUsername, &c.Phone, &c.DiscordUsername,
		&c.Referrals, &c.TaskSum, &c.Balance, &c.UnverifiedBalance, &verified, &c.ReferralBonus, &c.Wallet,
		&c.WelcomePassed, &c.LastSubmissionAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClientNotExist
	}
	if err != nil {
		return nil, errors.Wrap(err, "row.Scan failed: ")
	}
	if verified {
		c.ReferralState = types.ReferralConfirmed
	}
	return c, nil
}

func (d *DB) GetClient(ctx context.Context, userID int64) (*types.Client, error) {
	return scanClient(d.Conn.QueryRow(ctx, "select "+clientColumns+" from clients where user_id = $1", userID))
}

func (d *DB) ListClientIDs(ctx context.Context) ([]int64, error) {
	rows, err := d.Conn.Query(ctx, "select user_id from clients order by user_id")
	if err != nil {
		return nil, errors.Wrap(err, "conn.Query failed: ")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows failed: ")
	}
	return ids, nil
}

func (d *DB) UpdateClientProfile(ctx context.Context, userID int64, profile *types.ClientProfile) (*types.Client, error) {
	row := d.Conn.QueryRow(ctx, `update clients set
		discord_username = coalesce($2, discord_username),
		wallet = coalesce($3, wallet),
		welcome_passed = coalesce($4, welcome_passed)
		where user_id = $1 returning `+clientColumns,
		userID, profile.DiscordUsername, profile.Wallet, profile.WelcomePassed)
	return scanClient(row)
}

const taskColumns = `t.id, t.name, t.description, t.price, t.success_text, t.fail_text, t.proof_type, t.published,
	t.need_validation, v.id, v.name, v.expression, t.need_trx_proof, coalesce(t.trx_proof_chain, ''), t.repeatable`

const taskFrom = ` from tasks t left join validators v on v.id = t.validator_id`

func scanTask(row pgx.Row) (*types.Task, error) {
	t := &types.Task{}
	var validatorID *int64
	var validatorName, validatorExpr *string
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Price, &t.SuccessText, &t.FailText, &t.ProofType, &t.Published,
		&t.NeedValidation, &validatorID, &validatorName, &validatorExpr, &t.NeedTrxProof, &t.TrxProofChain, &t.Repeatable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotExist
	}
	if err != nil {
		return nil, errors.Wrap(err, "row.Scan failed: ")
	}
	if validatorID != nil {
		t.Validator = &types.Validator{ID: *validatorID}
		if validatorName != nil {
			t.Validator.Name = *validatorName
		}
		if validatorExpr != nil {
			t.Validator.Expression = *validatorExpr
		}
	}
	return t, nil
}

func collectTasks(rows pgx.Rows) ([]*types.Task, error) {
	defer rows.Close()
	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows.Err: ")
	}
	return tasks, nil
}

func validatorID(t *types.Task) *int64 {
	if t.Validator == nil {
		return nil
	}
	return &t.Validator.ID
}

func (d *DB) CreateTask(ctx context.Context, task *types.Task) (int64, error) {
	row := d.Conn.QueryRow(ctx, `insert into tasks (name, description, price, success_text, fail_text, proof_type,
		need_validation, validator_id, need_trx_proof, trx_proof_chain, repeatable)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, nullif($10, ''), $11) returning id, published`,
		task.Name, task.Description, task.Price, task.SuccessText, task.FailText, task.ProofType,
		task.NeedValidation, validatorID(task), task.NeedTrxProof, task.TrxProofChain, task.Repeatable)
	if err := row.Scan(&task.ID, &task.Published); err != nil {
		return 0, errors.Wrap(err, "row.Scan failed: ")
	}
	return task.ID, nil
}

func (d *DB) UpdateTask(ctx context.Context, task *types.Task) error {
	tag, err := d.Conn.Exec(ctx, `update tasks set name = $2, description = $3, price = $4, success_text = $5,
		fail_text = $6, proof_type = $7, need_validation = $8, validator_id = $9, need_trx_proof = $10,
		trx_proof_chain = nullif($11, ''), repeatable = $12 where id = $1`,
		task.ID, task.Name, task.Description, task.Price, task.SuccessText, task.FailText, task.ProofType,
		task.NeedValidation, validatorID(task), task.NeedTrxProof, task.TrxProofChain, task.Repeatable)
	if err != nil {
		return errors.Wrap(err, "conn.Exec failed: ")
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotExist
	}
	return nil
}

func (d *DB) GetTaskById(ctx context.Context, taskID int64) (*types.Task, error) {
	return scanTask(d.Conn.QueryRow(ctx, "select "+taskColumns+taskFrom+" where t.id = $1", taskID))
}

// ListAvailableTasks skips non-repeatable tasks the client already completed.
func (d *DB) ListAvailableTasks(ctx context.Context, clientID int64) ([]*types.Task, error) {
	rows, err := d.Conn.Query(ctx, "select "+taskColumns+taskFrom+` where t.repeatable or not exists (
		select 1 from user_tasks ut where ut.task_id = t.id and ut.client_id = $1 and ut.completed
	) order by t.published desc, t.id`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "conn.Query failed: ")
	}
	return collectTasks(rows)
}

func (d *DB) CreateValidator(ctx context.Context, v *types.Validator) (int64, error) {
	row := d.Conn.QueryRow(ctx, "insert into validators (name, expression) values ($1, $2) returning id", v.Name, v.Expression)
	if err := row.Scan(&v.ID); err != nil {
		return 0, errors.Wrap(err, "row.Scan failed: ")
	}
	return v.ID, nil
}

func (d *DB) GetValidator(ctx context.Context, id int64) (*types.Validator, error) {
	v := &types.Validator{}
	err := d.Conn.QueryRow(ctx, "select id, name, expression from validators where id = $1", id).Scan(&v.ID, &v.Name, &v.Expression)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrValidatorNotExist
	}
	if err != nil {
		return nil, errors.Wrap(err, "row.Scan failed: ")
	}
	return v, nil
}

func (d *DB) AddContract(ctx context.Context, c *types.Contract) (int64, error) {
	row := d.Conn.QueryRow(ctx, "insert into contracts (chain, address) values ($1, lower($2)) on conflict do nothing returning id", c.Chain, c.Address)
	err := row.Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrContractAlreadyExist
	}
	if err != nil {
		return 0, errors.Wrap(err, "row.Scan failed: ")
	}
	return c.ID, nil
}

// IsTrustedContract reports whether any of the addresses is an allow-listed contract on any chain.
func (d *DB) IsTrustedContract(ctx context.Context, addresses []string) (bool, error) {
	lowered := make([]string, 0, len(addresses))
	for _, a := range addresses {
		lowered = append(lowered, strings.ToLower(a))
	}
	var trusted bool
	err := d.Conn.QueryRow(ctx, "select exists (select 1 from contracts where address = any($1))", lowered).Scan(&trusted)
	if err != nil {
		return false, errors.Wrap(err, "row.Scan failed: ")
	}
	return trusted, nil
}

func (d *DB) IsTransactionRedeemed(ctx context.Context, hash string) (bool, error) {
	var redeemed bool
	err := d.Conn.QueryRow(ctx, "select exists (select 1 from stored_transactions where hash = lower($1))", hash).Scan(&redeemed)
	if err != nil {
		return false, errors.Wrap(err, "row.Scan failed: ")
	}
	return redeemed, nil
}

func (d *DB) GetTokenPrice(ctx context.Context, name string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := d.Conn.QueryRow(ctx, "select price from token_prices where name = $1", name).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrTokenPriceNotExist
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "row.Scan failed: ")
	}
	return price, nil
}

func (d *DB) SaveTokenPrices(ctx context.Context, prices []types.TokenPrice) error {
	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue("insert into token_prices (name, price) values ($1, $2) on conflict (name) do update set price = excluded.price", p.Name, p.Price)
	}
	if err := d.Conn.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "batch.Close failed: ")
	}
	return nil
}

// LoadSettings creates the settings row with the given defaults if it is absent.
func (d *DB) LoadSettings(ctx context.Context, defaults types.SiteSettings) (types.SiteSettings, error) {
	_, err := d.Conn.Exec(ctx, "insert into site_settings (id, withdrawal_min_amount, referral_cost) values (1, $1, $2) on conflict (id) do nothing",
		defaults.WithdrawalMinAmount, defaults.ReferralCost)
	if err != nil {
		return types.SiteSettings{}, errors.Wrap(err, "conn.Exec failed: ")
	}
	var s types.SiteSettings
	err = d.Conn.QueryRow(ctx, "select withdrawal_min_amount, referral_cost from site_settings where id = 1").Scan(&s.WithdrawalMinAmount, &s.ReferralCost)
	if err != nil {
		return types.SiteSettings{}, errors.Wrap(err, "row.Scan failed: ")
	}
	return s, nil
}

func (d *DB) SaveSettings(ctx context.Context, s types.SiteSettings) error {
	_, err := d.Conn.Exec(ctx, `insert into site_settings (id, withdrawal_min_amount, referral_cost) values (1, $1, $2)
		on conflict (id) do update set withdrawal_min_amount = excluded.withdrawal_min_amount, referral_cost = excluded.referral_cost`,
		s.WithdrawalMinAmount, s.ReferralCost)
	if err != nil {
		return errors.Wrap(err, "conn.Exec failed: ")
	}
	return nil
}

func (d *DB) ListWithdrawalOrders(ctx context.Context, payed *bool) ([]*types.WithdrawalOrder, error) {
	rows, err := d.Conn.Query(ctx, `select id, client_id, withdrawal_sum, created, payed from withdrawal_orders
		where $1::bool is null or payed = $1 order by created`, payed)
	if err != nil {
		return nil, errors.Wrap(err, "conn.Query failed: ")
	}
	defer rows.Close()
	var orders []*types.WithdrawalOrder
	for rows.Next() {
		o := &types.WithdrawalOrder{}
		if err := rows.Scan(&o.ID, &o.ClientID, &o.WithdrawalSum, &o.Created, &o.Payed); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed: ")
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows.Err: ")
	}
	return orders, nil
}

func (d *DB) MarkWithdrawalPayed(ctx context.Context, id int64) error {
	tag, err := d.Conn.Exec(ctx, "update withdrawal_orders set payed = true where id = $1", id)
	if err != nil {
		return errors.Wrap(err, "conn.Exec failed: ")
	}
	if tag.RowsAffected() == 0 {
		return ErrWithdrawalOrderNotExist
	}
	return nil
}

func (d *DB) GetUserTask(ctx context.Context, id int64) (*types.UserTask, error) {
	return scanUserTask(d.Conn.QueryRow(ctx, "select "+userTaskColumns+" from user_tasks where id = $1", id))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
