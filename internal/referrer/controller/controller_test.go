package controller

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/SakuraBurst/rewardbot/internal/referrer/database"
	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger/ledgertest"
	"github.com/SakuraBurst/rewardbot/internal/referrer/settings"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/SakuraBurst/rewardbot/internal/referrer/validator"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeLocker struct {
	denied bool
	locked int
}

func (l *fakeLocker) LockClient(_ context.Context, _ int64) (func(), error) {
	l.locked++
	return func() { l.locked-- }, nil
}

func (l *fakeLocker) AllowSubmission(_ context.Context, _ int64) (bool, error) {
	return !l.denied, nil
}

type mockFiles struct {
	mock.Mock
}

func (m *mockFiles) Save(ctx context.Context, body []byte, contentType string) (string, error) {
	args := m.Called(ctx, body, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockFiles) Delete(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Broadcast(ctx context.Context, chatIDs []int64, text string) (int, error) {
	args := m.Called(ctx, chatIDs, text)
	return args.Int(0), args.Error(1)
}

type fakeExplorer struct {
	trx     map[string]*types.ChainTransaction
	lookups int
}

func (e *fakeExplorer) GetTransaction(_ context.Context, hash, _ string) (*types.ChainTransaction, error) {
	e.lookups++
	trx, ok := e.trx[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return trx, nil
}

type storePrices struct {
	store *ledgertest.Store
}

func (p storePrices) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return p.store.GetTokenPrice(ctx, symbol)
}

type fixture struct {
	c        *Controller
	store    *ledgertest.Store
	locker   *fakeLocker
	files    *mockFiles
	notifier *mockNotifier
	explorer *fakeExplorer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledgertest.NewStore()
	holder := settings.NewHolder(store, types.DefaultSiteSettings())
	require.NoError(t, holder.Load(context.Background()))
	explorer := &fakeExplorer{trx: map[string]*types.ChainTransaction{}}
	checker := validator.NewTransactionChecker(explorer, store, store, storePrices{store}, "ALM", decimal.NewFromInt(10), time.Second, zap.NewNop())
	f := &fixture{
		store:    store,
		locker:   &fakeLocker{},
		files:    &mockFiles{},
		notifier: &mockNotifier{},
		explorer: explorer,
	}
	cfg := &config.Config{JWTSecret: "secret", Admin: config.Admin{UserName: "admin", TokenTTL: time.Hour}}
	f.c = NewController(cfg, store, Collaborators{
		Checker:  checker,
		Files:    f.files,
		Locker:   f.locker,
		Settings: holder,
		Notifier: f.notifier,
	}, zap.NewNop(), func() error { return nil })
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, actual.Equal(dec(expected)), "expected %s, got %s", expected, actual)
}

func (f *fixture) submit(t *testing.T, clientID, taskID int64, text string) *types.SubmissionOutcome {
	t.Helper()
	outcome, err := f.c.SubmitProof(context.Background(), &types.ProofRequest{ClientID: clientID, TaskID: taskID, TextAnswer: text})
	require.NoError(t, err)
	return outcome
}

func textTask(price string) types.Task {
	return types.Task{Name: "task", Price: dec(price), ProofType: types.ProofTypeText, SuccessText: "ok", FailText: "no"}
}

func TestSubmitWithoutValidationIsPending(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	taskID := f.store.AddTask(textTask("10"))

	outcome := f.submit(t, 1, taskID, "done")
	assert.Equal(t, types.SubmissionPending, outcome.Status)
	client := f.store.Client(1)
	assertMoney(t, "10", client.UnverifiedBalance)
	assertMoney(t, "0", client.Balance)
	assert.NotNil(t, client.LastSubmissionAt)

	// a second proof on the same attempt replaces the first without a second credit
	f.submit(t, 1, taskID, "done again")
	assertMoney(t, "10", f.store.Client(1).UnverifiedBalance)
	assert.Equal(t, 1, f.store.Proofs())
	assert.Len(t, f.store.UserTasks(1), 1)
	assert.Zero(t, f.locker.locked)
}

func TestSubmitPatternMatch(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	task := textTask("5")
	task.NeedValidation = true
	task.Validator = &types.Validator{ID: 1, Name: "code", Expression: `^\d{6}$`}
	taskID := f.store.AddTask(task)

	outcome := f.submit(t, 1, taskID, "123456")
	assert.Equal(t, types.SubmissionAccepted, outcome.Status)
	assert.Equal(t, "ok", outcome.Message)
	client := f.store.Client(1)
	assertMoney(t, "5", client.Balance)
	assertMoney(t, "0", client.UnverifiedBalance)
	assert.Equal(t, 1, client.TaskSum)
}

func TestSubmitPatternMismatchThenMatch(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	task := textTask("5")
	task.NeedValidation = true
	task.Validator = &types.Validator{ID: 1, Name: "code", Expression: `^\d{6}$`}
	taskID := f.store.AddTask(task)

	outcome := f.submit(t, 1, taskID, "12345")
	assert.Equal(t, types.SubmissionRejected, outcome.Status)
	assert.Equal(t, validator.ReasonMismatch, outcome.Reason)
	assert.Equal(t, "no", outcome.Message)
	assertMoney(t, "5", f.store.Client(1).UnverifiedBalance)

	f.submit(t, 1, taskID, "abc")
	assertMoney(t, "5", f.store.Client(1).UnverifiedBalance)

	outcome = f.submit(t, 1, taskID, "123456")
	assert.Equal(t, types.SubmissionAccepted, outcome.Status)
	client := f.store.Client(1)
	assertMoney(t, "5", client.Balance)
	assertMoney(t, "0", client.UnverifiedBalance)
	assert.Equal(t, 1, client.TaskSum)
}

func TestSubmitAcceptAfterPriceChange(t *testing.T) {
	tests := []struct {
		name     string
		newPrice string
	}{
		{"price raised", "20"},
		{"price lowered", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.store.AddClient(types.Client{UserID: 1})
			pending := f.store.AddTask(textTask("10"))
			task := textTask("5")
			task.NeedValidation = true
			task.Validator = &types.Validator{Name: "code", Expression: `^\d{6}$`}
			taskID := f.store.AddTask(task)

			f.submit(t, 1, pending, "done")
			outcome := f.submit(t, 1, taskID, "12345")
			assert.Equal(t, types.SubmissionRejected, outcome.Status)
			assertMoney(t, "15", f.store.Client(1).UnverifiedBalance)

			task.ID = taskID
			task.Price = dec(tt.newPrice)
			require.NoError(t, f.c.UpdateTask(ctx, &task))

			outcome = f.submit(t, 1, taskID, "123456")
			assert.Equal(t, types.SubmissionAccepted, outcome.Status)
			client := f.store.Client(1)
			// the attempt confirms the 5 it was credited with, the other pending credit stays intact
			assertMoney(t, "5", client.Balance)
			assertMoney(t, "10", client.UnverifiedBalance)
			assert.Equal(t, 1, client.TaskSum)
		})
	}
}

func TestSubmitCompletedTask(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	task := textTask("5")
	task.NeedValidation = true
	task.Validator = &types.Validator{ID: 1, Expression: `.+`}
	taskID := f.store.AddTask(task)
	f.submit(t, 1, taskID, "x")
	before := f.store.Client(1)

	_, err := f.c.SubmitProof(context.Background(), &types.ProofRequest{ClientID: 1, TaskID: taskID, TextAnswer: "y"})
	assert.ErrorIs(t, err, ErrTaskAlreadyCompleted)
	after := f.store.Client(1)
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, before.LastSubmissionAt, after.LastSubmissionAt)
	assert.Equal(t, 1, f.store.Proofs())
}

func TestSubmitRepeatableTaskOpensNewAttempt(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	task := textTask("2")
	task.Repeatable = true
	task.NeedValidation = true
	task.Validator = &types.Validator{ID: 1, Expression: `.+`}
	taskID := f.store.AddTask(task)

	f.submit(t, 1, taskID, "a")
	f.submit(t, 1, taskID, "b")
	client := f.store.Client(1)
	assertMoney(t, "4", client.Balance)
	assert.Equal(t, 2, client.TaskSum)
	assert.Len(t, f.store.UserTasks(1), 2)
}

func TestSubmitErrors(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	taskID := f.store.AddTask(textTask("1"))

	tests := []struct {
		name    string
		request *types.ProofRequest
		err     error
	}{
		{"unknown client", &types.ProofRequest{ClientID: 2, TaskID: taskID, TextAnswer: "a"}, database.ErrClientNotExist},
		{"unknown task", &types.ProofRequest{ClientID: 1, TaskID: 99, TextAnswer: "a"}, database.ErrTaskNotExist},
		{"empty text", &types.ProofRequest{ClientID: 1, TaskID: taskID, TextAnswer: "  "}, ErrEmptyProof},
		{"long text", &types.ProofRequest{ClientID: 1, TaskID: taskID, TextAnswer: strings.Repeat("a", types.MaxProofTextLength+1)}, ErrProofTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.c.SubmitProof(context.Background(), tt.request)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.Empty(t, f.store.UserTasks(1))
	assert.Zero(t, f.store.Proofs())

	// the limit counts characters, not bytes
	outcome := f.submit(t, 1, taskID, strings.Repeat("я", types.MaxProofTextLength))
	assert.Equal(t, types.SubmissionPending, outcome.Status)

	f.locker.denied = true
	_, err := f.c.SubmitProof(context.Background(), &types.ProofRequest{ClientID: 1, TaskID: taskID, TextAnswer: "a"})
	assert.ErrorIs(t, err, ErrTooManySubmissions)
}

func TestSubmitPhotoProofFiles(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	task := textTask("3")
	task.ProofType = types.ProofTypePhoto
	taskID := f.store.AddTask(task)
	f.files.On("Save", mock.Anything, []byte("one"), "image/jpeg").Return("photos/one.jpg", nil).Once()
	f.files.On("Save", mock.Anything, []byte("two"), "image/jpeg").Return("photos/two.jpg", nil).Once()
	f.files.On("Delete", mock.Anything, "photos/one.jpg").Return(nil).Once()

	for _, body := range []string{"one", "two"} {
		outcome, err := f.c.SubmitProof(context.Background(), &types.ProofRequest{ClientID: 1, TaskID: taskID, Image: []byte(body), ImageType: "image/jpeg"})
		require.NoError(t, err)
		assert.Equal(t, types.SubmissionPending, outcome.Status)
	}
	f.files.AssertExpectations(t)

	_, err := f.c.SubmitProof(context.Background(), &types.ProofRequest{ClientID: 1, TaskID: taskID})
	assert.ErrorIs(t, err, ErrEmptyProof)
}

func TestSubmitPhotoReleasedOnFailure(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	task := textTask("3")
	task.ProofType = types.ProofTypePhoto
	task.NeedValidation = true
	task.Validator = &types.Validator{ID: 1, Expression: `.+`}
	taskID := f.store.AddTask(task)
	f.files.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("photos/a.jpg", nil).Once()
	f.files.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("photos/b.jpg", nil).Once()
	f.files.On("Delete", mock.Anything, "photos/b.jpg").Return(nil).Once()

	request := &types.ProofRequest{ClientID: 1, TaskID: taskID, TextAnswer: "caption", Image: []byte("img")}
	outcome, err := f.c.SubmitProof(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, outcome.Accepted())

	_, err = f.c.SubmitProof(context.Background(), request)
	assert.ErrorIs(t, err, ErrTaskAlreadyCompleted)
	f.files.AssertExpectations(t)
}

func (f *fixture) addTransactionTask(t *testing.T) int64 {
	t.Helper()
	_, err := f.c.AddContract(context.Background(), &types.Contract{Chain: "BSC", Address: "0xABC"})
	require.NoError(t, err)
	f.store.SetPrice("ALM", dec("0.5"))
	task := textTask("7")
	task.NeedTrxProof = true
	task.TrxProofChain = "BSC"
	return f.store.AddTask(task)
}

func chainTransaction(amount string) *types.ChainTransaction {
	return &types.ChainTransaction{
		OutputDetails:        []types.OutputDetail{{OutputHash: "0xabc"}},
		TokenTransferDetails: []types.TokenTransfer{{Symbol: "ALM", Amount: dec(amount)}},
	}
}

func TestSubmitTransactionProofReplay(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	f.store.AddClient(types.Client{UserID: 2})
	taskID := f.addTransactionTask(t)
	f.explorer.trx["0xhash"] = chainTransaction("100")

	outcome := f.submit(t, 1, taskID, "0xhash")
	assert.Equal(t, types.SubmissionAccepted, outcome.Status)
	assertMoney(t, "7", f.store.Client(1).Balance)

	outcome = f.submit(t, 2, taskID, "0xHASH")
	assert.Equal(t, types.SubmissionRejected, outcome.Status)
	assert.Equal(t, validator.ReasonReplayed, outcome.Reason)
	assertMoney(t, "0", f.store.Client(2).Balance)
	assertMoney(t, "7", f.store.Client(2).UnverifiedBalance)
}

func TestSubmitTransactionProofCompletedTaskSkipsLookup(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	taskID := f.addTransactionTask(t)
	f.explorer.trx["0xhash"] = chainTransaction("100")
	f.explorer.trx["0xnext"] = chainTransaction("100")

	outcome := f.submit(t, 1, taskID, "0xhash")
	assert.Equal(t, types.SubmissionAccepted, outcome.Status)
	assert.Equal(t, 1, f.explorer.lookups)

	_, err := f.c.SubmitProof(context.Background(), &types.ProofRequest{ClientID: 1, TaskID: taskID, TextAnswer: "0xnext"})
	assert.ErrorIs(t, err, ErrTaskAlreadyCompleted)
	assert.Equal(t, 1, f.explorer.lookups)
	assertMoney(t, "7", f.store.Client(1).Balance)
}

func TestSubmitTransactionProofRejections(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 1})
	taskID := f.addTransactionTask(t)
	f.explorer.trx["0xsmall"] = chainTransaction("20")
	f.explorer.trx["0xother"] = &types.ChainTransaction{
		OutputDetails:        []types.OutputDetail{{OutputHash: "0xdef"}},
		TokenTransferDetails: []types.TokenTransfer{{Symbol: "ALM", Amount: dec("100")}},
	}

	tests := []struct {
		hash   string
		reason string
	}{
		{"0xsmall", validator.ReasonAmountTooLow},
		{"0xother", validator.ReasonUnknownContract},
		{"0xmissing", validator.ReasonLookupFailed},
	}
	for _, tt := range tests {
		t.Run(tt.hash, func(t *testing.T) {
			outcome := f.submit(t, 1, taskID, tt.hash)
			assert.Equal(t, types.SubmissionRejected, outcome.Status)
			assert.Equal(t, tt.reason, outcome.Reason)
		})
	}
	// the fallback credits the attempt once
	assertMoney(t, "7", f.store.Client(1).UnverifiedBalance)
}

func TestReferralPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, created, err := f.c.GetOrCreateClient(ctx, 10, nil, "affiliate")
	require.NoError(t, err)
	assert.True(t, created)
	affiliateID := int64(10)
	client, created, err := f.c.GetOrCreateClient(ctx, 11, &affiliateID, "referred")
	require.NoError(t, err)
	assert.True(t, created)
	assertMoney(t, "0.15", client.ReferralBonus)

	affiliate := f.store.Client(10)
	assert.Equal(t, 1, affiliate.Referrals)
	assertMoney(t, "0.15", affiliate.UnverifiedBalance)

	// the bonus paid later is the one in effect at registration
	require.NoError(t, f.c.UpdateSettings(ctx, types.SiteSettings{WithdrawalMinAmount: dec("5"), ReferralCost: dec("1")}))

	task := textTask("1")
	task.Repeatable = true
	task.NeedValidation = true
	task.Validator = &types.Validator{ID: 1, Expression: `.+`}
	taskID := f.store.AddTask(task)
	f.submit(t, 11, taskID, "a")
	f.submit(t, 11, taskID, "b")

	affiliate = f.store.Client(10)
	assertMoney(t, "0.15", affiliate.Balance)
	assertMoney(t, "0", affiliate.UnverifiedBalance)
	assert.Equal(t, types.ReferralConfirmed, f.store.Client(11).ReferralState)
}

func TestReferralNotConfirmedByPendingProof(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 10})
	affiliateID := int64(10)
	_, _, err := f.c.GetOrCreateClient(context.Background(), 11, &affiliateID, "")
	require.NoError(t, err)
	taskID := f.store.AddTask(textTask("1"))

	f.submit(t, 11, taskID, "a")
	assertMoney(t, "0", f.store.Client(10).Balance)
	assert.Equal(t, types.ReferralUnconfirmed, f.store.Client(11).ReferralState)
}

func TestGetOrCreateClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddClient(types.Client{UserID: 1, TgUsername: "known"})

	client, created, err := f.c.GetOrCreateClient(ctx, 1, nil, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "known", client.TgUsername)

	missing := int64(404)
	_, _, err = f.c.GetOrCreateClient(ctx, 2, &missing, "")
	assert.ErrorIs(t, err, ErrAffiliateNotExist)
	self := int64(3)
	_, _, err = f.c.GetOrCreateClient(ctx, 3, &self, "")
	assert.ErrorIs(t, err, ErrAffiliateNotExist)
	_, err = f.store.GetClient(ctx, 2)
	assert.ErrorIs(t, err, database.ErrClientNotExist)

	_, _, err = f.c.GetOrCreateClient(ctx, 4, nil, strings.Repeat("u", types.MaxUsernameLength+1))
	assert.ErrorIs(t, err, types.ErrFieldTooLong)
	_, err = f.store.GetClient(ctx, 4)
	assert.ErrorIs(t, err, database.ErrClientNotExist)

	wallet := strings.Repeat("w", types.MaxWalletLength+1)
	_, err = f.c.UpdateClient(ctx, 1, &types.ClientProfile{Wallet: &wallet})
	assert.ErrorIs(t, err, types.ErrFieldTooLong)
	assert.Empty(t, f.store.Client(1).Wallet)
}

func TestRequestWithdrawal(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		sum     string
		err     error
		left    string
	}{
		{"below minimum", "3", "3", ErrTooSmallSum, "3"},
		{"above balance", "3", "4", ErrNotEnoughBalance, "3"},
		{"not positive", "3", "0", ErrInvalidWithdrawalSum, "3"},
		{"exact balance", "10", "10", nil, "0"},
		{"at minimum", "10", "5", nil, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.AddClient(types.Client{UserID: 1, Balance: dec(tt.balance)})

			order, err := f.c.RequestWithdrawal(context.Background(), &types.WithdrawalRequest{ClientID: 1, WithdrawalSum: dec(tt.sum)})
			assertMoney(t, tt.left, f.store.Client(1).Balance)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Empty(t, f.store.Orders())
				return
			}
			require.NoError(t, err)
			assert.False(t, order.Payed)
			assert.Len(t, f.store.Orders(), 1)
		})
	}
}

func TestSetUserTaskCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddClient(types.Client{UserID: 1})
	taskID := f.store.AddTask(textTask("4"))
	outcome := f.submit(t, 1, taskID, "proof")

	ut, err := f.c.SetUserTaskCompleted(ctx, outcome.UserTaskID, true)
	require.NoError(t, err)
	assert.True(t, ut.Completed)
	client := f.store.Client(1)
	assertMoney(t, "4", client.Balance)
	assertMoney(t, "0", client.UnverifiedBalance)

	_, err = f.c.SetUserTaskCompleted(ctx, outcome.UserTaskID, false)
	require.NoError(t, err)
	client = f.store.Client(1)
	assertMoney(t, "0", client.Balance)
	assertMoney(t, "4", client.UnverifiedBalance)
	assert.Equal(t, 0, client.TaskSum)

	// repeating the same state is a no-op
	_, err = f.c.SetUserTaskCompleted(ctx, outcome.UserTaskID, false)
	require.NoError(t, err)
	assertMoney(t, "4", f.store.Client(1).UnverifiedBalance)

	_, err = f.c.SetUserTaskCompleted(ctx, 999, true)
	assert.ErrorIs(t, err, database.ErrUserTaskNotExist)
}

func TestSetUserTaskCompletedAfterPriceChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddClient(types.Client{UserID: 1})
	task := textTask("4")
	taskID := f.store.AddTask(task)
	outcome := f.submit(t, 1, taskID, "proof")

	task.ID = taskID
	task.Price = dec("9")
	require.NoError(t, f.c.UpdateTask(ctx, &task))

	ut, err := f.c.SetUserTaskCompleted(ctx, outcome.UserTaskID, true)
	require.NoError(t, err)
	assertMoney(t, "4", ut.Credit)
	client := f.store.Client(1)
	assertMoney(t, "4", client.Balance)
	assertMoney(t, "0", client.UnverifiedBalance)

	_, err = f.c.SetUserTaskCompleted(ctx, outcome.UserTaskID, false)
	require.NoError(t, err)
	client = f.store.Client(1)
	assertMoney(t, "0", client.Balance)
	assertMoney(t, "4", client.UnverifiedBalance)
}

func TestSetUserTaskCompletedWithoutProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddClient(types.Client{UserID: 1})
	taskID := f.store.AddTask(textTask("4"))
	_, ut, err := f.c.OpenTask(ctx, 1, taskID)
	require.NoError(t, err)

	_, err = f.c.SetUserTaskCompleted(ctx, ut.ID, true)
	require.NoError(t, err)
	assertMoney(t, "4", f.store.Client(1).Balance)
	_, err = f.c.SetUserTaskCompleted(ctx, ut.ID, false)
	require.NoError(t, err)
	_, err = f.c.SetUserTaskCompleted(ctx, ut.ID, true)
	require.NoError(t, err)
	client := f.store.Client(1)
	assertMoney(t, "4", client.Balance)
	assertMoney(t, "0", client.UnverifiedBalance)
}

func TestOpenTaskAndListAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddClient(types.Client{UserID: 1})
	once := textTask("1")
	once.NeedValidation = true
	once.Validator = &types.Validator{ID: 1, Expression: `.+`}
	onceID := f.store.AddTask(once)
	repeatable := once
	repeatable.Repeatable = true
	repeatableID := f.store.AddTask(repeatable)

	task, ut, err := f.c.OpenTask(ctx, 1, onceID)
	require.NoError(t, err)
	assert.Equal(t, onceID, task.ID)
	assert.False(t, ut.Completed)
	_, again, err := f.c.OpenTask(ctx, 1, onceID)
	require.NoError(t, err)
	assert.Equal(t, ut.ID, again.ID)

	f.submit(t, 1, onceID, "a")
	f.submit(t, 1, repeatableID, "a")
	_, done, err := f.c.OpenTask(ctx, 1, onceID)
	require.NoError(t, err)
	assert.True(t, done.Completed)

	tasks, err := f.c.ListAvailableTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, repeatableID, tasks[0].ID)

	_, err = f.c.ListAvailableTasks(ctx, 2)
	assert.ErrorIs(t, err, database.ErrClientNotExist)
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	validatorID, err := f.c.CreateValidator(ctx, &types.Validator{Name: "code", Expression: `\d+`})
	require.NoError(t, err)
	_, err = f.c.CreateValidator(ctx, &types.Validator{Name: "broken", Expression: `(`})
	assert.ErrorIs(t, err, types.ErrBadExpression)

	task := textTask("1")
	task.NeedValidation = true
	task.Validator = &types.Validator{ID: validatorID}
	id, err := f.c.CreateTask(ctx, &task)
	require.NoError(t, err)
	stored, err := f.store.GetTaskById(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `\d+`, stored.Validator.Expression)

	bad := textTask("1")
	bad.NeedValidation = true
	bad.NeedTrxProof = true
	bad.TrxProofChain = "BSC"
	bad.Validator = &types.Validator{ID: validatorID}
	_, err = f.c.CreateTask(ctx, &bad)
	assert.ErrorIs(t, err, types.ErrConflictingPolicies)

	missing := textTask("1")
	missing.ID = 404
	assert.ErrorIs(t, f.c.UpdateTask(ctx, &missing), database.ErrTaskNotExist)
}

func TestAuthorizeAdmin(t *testing.T) {
	f := newFixture(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.MinCost)
	require.NoError(t, err)
	f.c.admin.PasswordHash = string(hash)

	token, err := f.c.AuthorizeAdmin(context.Background(), &types.AdminRequest{UserName: "admin", Password: "pass"})
	require.NoError(t, err)
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	assert.True(t, parsed.Valid)

	_, err = f.c.AuthorizeAdmin(context.Background(), &types.AdminRequest{UserName: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.c.AuthorizeAdmin(context.Background(), &types.AdminRequest{UserName: "root", Password: "pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestBroadcast(t *testing.T) {
	f := newFixture(t)
	f.store.AddClient(types.Client{UserID: 2})
	f.store.AddClient(types.Client{UserID: 1})
	f.notifier.On("Broadcast", mock.Anything, []int64{1, 2}, "news").Return(2, nil)

	sent, err := f.c.Broadcast(context.Background(), "news")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	f.notifier.AssertExpectations(t)
}

func TestWithdrawalOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddClient(types.Client{UserID: 1, Balance: dec("20")})
	order, err := f.c.RequestWithdrawal(ctx, &types.WithdrawalRequest{ClientID: 1, WithdrawalSum: dec("6")})
	require.NoError(t, err)

	require.NoError(t, f.c.MarkWithdrawalPayed(ctx, order.ID))
	payed := true
	orders, err := f.c.ListWithdrawalOrders(ctx, &payed)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Payed)
	assert.ErrorIs(t, f.c.MarkWithdrawalPayed(ctx, 999), database.ErrWithdrawalOrderNotExist)
}
