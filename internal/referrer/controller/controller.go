package controller

import (
	"context"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/SakuraBurst/rewardbot/internal/referrer/database"
	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/SakuraBurst/rewardbot/internal/referrer/validator"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTaskAlreadyCompleted = errors.New("task already completed")
	ErrNotEnoughBalance     = errors.New("Not enough balance")
	ErrTooSmallSum          = errors.New("Too small sum")
	ErrInvalidWithdrawalSum = errors.New("withdrawal sum must be positive")
	ErrAffiliateNotExist    = errors.New("affiliate does not exist")
	ErrTooManySubmissions   = errors.New("too many submissions")
	ErrEmptyProof           = errors.New("proof is empty")
	ErrProofTooLong         = errors.New("proof is too long")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

type clientDatabase interface {
	GetClient(ctx context.Context, userID int64) (*types.Client, error)
	ListClientIDs(ctx context.Context) ([]int64, error)
	UpdateClientProfile(ctx context.Context, userID int64, profile *types.ClientProfile) (*types.Client, error)
}

type taskDatabase interface {
	CreateTask(ctx context.Context, task *types.Task) (int64, error)
	UpdateTask(ctx context.Context, task *types.Task) error
	GetTaskById(ctx context.Context, taskID int64) (*types.Task, error)
	ListAvailableTasks(ctx context.Context, clientID int64) ([]*types.Task, error)
	GetUserTask(ctx context.Context, id int64) (*types.UserTask, error)
	CreateValidator(ctx context.Context, v *types.Validator) (int64, error)
	GetValidator(ctx context.Context, id int64) (*types.Validator, error)
	AddContract(ctx context.Context, c *types.Contract) (int64, error)
}

type withdrawalDatabase interface {
	ListWithdrawalOrders(ctx context.Context, payed *bool) ([]*types.WithdrawalOrder, error)
	MarkWithdrawalPayed(ctx context.Context, id int64) error
}

// Repository is everything the controller reads and writes.
type Repository interface {
	ledger.Store
	clientDatabase
	taskDatabase
	withdrawalDatabase
}

type transactionChecker interface {
	Check(ctx context.Context, hash, chain string) (validator.Verdict, error)
}

type fileStore interface {
	Save(ctx context.Context, body []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

type clientLocker interface {
	LockClient(ctx context.Context, userID int64) (func(), error)
	AllowSubmission(ctx context.Context, userID int64) (bool, error)
}

type settingsHolder interface {
	Get() types.SiteSettings
	Update(ctx context.Context, s types.SiteSettings) error
}

type broadcaster interface {
	Broadcast(ctx context.Context, chatIDs []int64, text string) (int, error)
}

// Collaborators are the services the controller calls outside the database.
type Collaborators struct {
	Checker  transactionChecker
	Files    fileStore
	Locker   clientLocker
	Settings settingsHolder
	Notifier broadcaster
}

type Controller struct {
	repo          Repository
	checker       transactionChecker
	files         fileStore
	locker        clientLocker
	settings      settingsHolder
	notifier      broadcaster
	admin         config.Admin
	jwtSecret     []byte
	logger        *zap.Logger
	databaseClose func() error
}

func NewController(cfg *config.Config, repo Repository, deps Collaborators, logger *zap.Logger, dbClose func() error) *Controller {
	return &Controller{
		repo:          repo,
		checker:       deps.Checker,
		files:         deps.Files,
		locker:        deps.Locker,
		settings:      deps.Settings,
		notifier:      deps.Notifier,
		admin:         cfg.Admin,
		jwtSecret:     []byte(cfg.JWTSecret),
		logger:        logger.Named("controller"),
		databaseClose: dbClose,
	}
}

// GetOrCreateClient returns the client, registering it on first contact. A new
// client that came through an affiliate bumps the affiliate referral counter.
func (c *Controller) GetOrCreateClient(ctx context.Context, userID int64, affiliateID *int64, tgUsername string) (*types.Client, bool, error) {
	client, err := c.repo.GetClient(ctx, userID)
	if err == nil {
		return client, false, nil
	}
	if !errors.Is(err, database.ErrClientNotExist) {
		return nil, false, errors.Wrap(err, "repo.GetClient failed: ")
	}

	if err := types.CheckLength("tg_username", tgUsername, types.MaxUsernameLength); err != nil {
		return nil, false, err
	}
	client = &types.Client{UserID: userID, TgUsername: tgUsername}
	err = c.repo.InTx(ctx, func(tx ledger.Tx) error {
		if affiliateID == nil {
			return tx.CreateClient(ctx, client)
		}
		if *affiliateID == userID {
			return ErrAffiliateNotExist
		}
		affiliate, err := tx.LockClient(ctx, *affiliateID)
		if errors.Is(err, database.ErrClientNotExist) {
			return ErrAffiliateNotExist
		}
		if err != nil {
			return errors.Wrap(err, "tx.LockClient failed: ")
		}
		cost := c.settings.Get().ReferralCost
		client.AffiliateID = affiliateID
		client.ReferralBonus = cost
		if err := tx.CreateClient(ctx, client); err != nil {
			return err
		}
		ledger.IncrementRefCount(affiliate, cost)
		return tx.SaveClient(ctx, affiliate)
	})
	if errors.Is(err, database.ErrClientAlreadyExist) {
		// lost a race with a concurrent registration
		client, err = c.repo.GetClient(ctx, userID)
		if err != nil {
			return nil, false, errors.Wrap(err, "repo.GetClient failed: ")
		}
		return client, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "repo.InTx failed: ")
	}
	return client, true, nil
}

func (c *Controller) UpdateClient(ctx context.Context, userID int64, profile *types.ClientProfile) (*types.Client, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	client, err := c.repo.UpdateClientProfile(ctx, userID, profile)
	if err != nil {
		return nil, errors.Wrap(err, "repo.UpdateClientProfile failed: ")
	}
	return client, nil
}

func (c *Controller) ListAvailableTasks(ctx context.Context, userID int64) ([]*types.Task, error) {
	if _, err := c.repo.GetClient(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "repo.GetClient failed: ")
	}
	tasks, err := c.repo.ListAvailableTasks(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "repo.ListAvailableTasks failed: ")
	}
	return tasks, nil
}

// OpenTask returns the task with the attempt the client works on, creating the
// attempt if needed. A finished non repeatable task comes back with its completed attempt.
func (c *Controller) OpenTask(ctx context.Context, userID, taskID int64) (*types.Task, *types.UserTask, error) {
	var task *types.Task
	var ut *types.UserTask
	err := c.repo.InTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.LockClient(ctx, userID); err != nil {
			return err
		}
		var err error
		task, err = tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		ut, err = openUserTask(ctx, tx, userID, task)
		if errors.Is(err, ErrTaskAlreadyCompleted) {
			ut, err = tx.FindUserTask(ctx, userID, taskID)
		}
		return err
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "repo.InTx failed: ")
	}
	return task, ut, nil
}

// openUserTask returns the attempt a new proof belongs to.
func openUserTask(ctx context.Context, tx ledger.Tx, userID int64, task *types.Task) (*types.UserTask, error) {
	ut, err := tx.FindUserTask(ctx, userID, task.ID)
	switch {
	case errors.Is(err, database.ErrUserTaskNotExist):
	case err != nil:
		return nil, err
	case !ut.Completed:
		return ut, nil
	case !task.Repeatable:
		return nil, ErrTaskAlreadyCompleted
	}
	ut = &types.UserTask{ClientID: userID, TaskID: task.ID}
	if err := tx.CreateUserTask(ctx, ut); err != nil {
		return nil, err
	}
	return ut, nil
}

func (c *Controller) AuthorizeAdmin(_ context.Context, request *types.AdminRequest) (string, error) {
	if request.UserName != c.admin.UserName || c.admin.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	err := bcrypt.CompareHashAndPassword([]byte(c.admin.PasswordHash), []byte(request.Password))
	if err != nil {
		return "", errors.Wrap(ErrInvalidCredentials, err.Error())
	}
	return c.createJWT(request.UserName)
}

func (c *Controller) Close() error {
	return c.databaseClose()
}

func (c *Controller) createJWT(name string) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["name"] = name
	claims["admin"] = true
	claims["exp"] = time.Now().Add(c.admin.TokenTTL).Unix()

	return token.SignedString(c.jwtSecret)
}
