package ledger

import (
	"context"

	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
)

// Tx is the unit of work in which ledger transitions run. LockClient must keep
// the returned row locked until the transaction ends.
type Tx interface {
	LockClient(ctx context.Context, userID int64) (*types.Client, error)
	CreateClient(ctx context.Context, client *types.Client) error
	SaveClient(ctx context.Context, client *types.Client) error

	GetTask(ctx context.Context, taskID int64) (*types.Task, error)
	// FindUserTask returns the latest attempt of the client on the task.
	FindUserTask(ctx context.Context, clientID, taskID int64) (*types.UserTask, error)
	LockUserTask(ctx context.Context, id int64) (*types.UserTask, error)
	CreateUserTask(ctx context.Context, ut *types.UserTask) error
	SaveUserTask(ctx context.Context, ut *types.UserTask) error

	GetProof(ctx context.Context, id int64) (*types.Proof, error)
	CreateProof(ctx context.Context, proof *types.Proof) error
	DeleteProof(ctx context.Context, id int64) error

	// RecordTransaction fails with a replay error if the hash is already stored.
	RecordTransaction(ctx context.Context, trx *types.StoredTransaction) error
	CreateWithdrawalOrder(ctx context.Context, order *types.WithdrawalOrder) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
