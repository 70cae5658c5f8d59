// Package ledgertest provides an in-memory store with the same contract as the
// postgres layer. Transactions are serialized and rolled back on error.
package ledgertest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/database"
	"github.com/SakuraBurst/rewardbot/internal/referrer/ledger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu           sync.Mutex
	clients      map[int64]types.Client
	tasks        map[int64]types.Task
	userTasks    map[int64]types.UserTask
	proofs       map[int64]types.Proof
	validators   map[int64]types.Validator
	contracts    map[int64]types.Contract
	transactions map[string]types.StoredTransaction
	orders       map[int64]types.WithdrawalOrder
	prices       map[string]decimal.Decimal
	settings     *types.SiteSettings
	nextID       int64
}

func NewStore() *Store {
	return &Store{
		clients:      map[int64]types.Client{},
		tasks:        map[int64]types.Task{},
		userTasks:    map[int64]types.UserTask{},
		proofs:       map[int64]types.Proof{},
		validators:   map[int64]types.Validator{},
		contracts:    map[int64]types.Contract{},
		transactions: map[string]types.StoredTransaction{},
		orders:       map[int64]types.WithdrawalOrder{},
		prices:       map[string]decimal.Decimal{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddClient seeds a client as is.
func (s *Store) AddClient(c types.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.UserID] = c
}

// AddTask seeds a task and returns its id.
func (s *Store) AddTask(t types.Task) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	s.tasks[t.ID] = t
	return t.ID
}

func (s *Store) Client(userID int64) types.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[userID]
}

func (s *Store) UserTasks(clientID int64) []types.UserTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []types.UserTask
	for _, ut := range s.userTasks {
		if ut.ClientID == clientID {
			res = append(res, ut)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *Store) Proofs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.proofs)
}

func (s *Store) Orders() []types.WithdrawalOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]types.WithdrawalOrder, 0, len(s.orders))
	for _, o := range s.orders {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *Store) SetPrice(name string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[name] = price
}

type snapshot struct {
	clients      map[int64]types.Client
	userTasks    map[int64]types.UserTask
	proofs       map[int64]types.Proof
	transactions map[string]types.StoredTransaction
	orders       map[int64]types.WithdrawalOrder
	nextID       int64
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	res := make(map[K]V, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

func (s *Store) InTx(_ context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		clients:      clone(s.clients),
		userTasks:    clone(s.userTasks),
		proofs:       clone(s.proofs),
		transactions: clone(s.transactions),
		orders:       clone(s.orders),
		nextID:       s.nextID,
	}
	if err := fn(&tx{s: s}); err != nil {
		s.clients = snap.clients
		s.userTasks = snap.userTasks
		s.proofs = snap.proofs
		s.transactions = snap.transactions
		s.orders = snap.orders
		s.nextID = snap.nextID
		return err
	}
	return nil
}

type tx struct {
	s *Store
}

func (t *tx) LockClient(_ context.Context, userID int64) (*types.Client, error) {
	c, ok := t.s.clients[userID]
	if !ok {
		return nil, database.ErrClientNotExist
	}
	return &c, nil
}

func (t *tx) CreateClient(_ context.Context, c *types.Client) error {
	if _, ok := t.s.clients[c.UserID]; ok {
		return database.ErrClientAlreadyExist
	}
	t.s.clients[c.UserID] = *c
	return nil
}

func (t *tx) SaveClient(_ context.Context, c *types.Client) error {
	if c.Balance.IsNegative() || c.UnverifiedBalance.IsNegative() {
		return ledger.ErrNegativeBalance
	}
	t.s.clients[c.UserID] = *c
	return nil
}

func (t *tx) GetTask(_ context.Context, taskID int64) (*types.Task, error) {
	task, ok := t.s.tasks[taskID]
	if !ok {
		return nil, database.ErrTaskNotExist
	}
	return &task, nil
}

func (t *tx) FindUserTask(_ context.Context, clientID, taskID int64) (*types.UserTask, error) {
	var found *types.UserTask
	for _, ut := range t.s.userTasks {
		if ut.ClientID != clientID || ut.TaskID != taskID {
			continue
		}
		ut := ut
		switch {
		case found == nil:
			found = &ut
		case found.Completed && !ut.Completed:
			found = &ut
		case found.Completed == ut.Completed && ut.ID > found.ID:
			found = &ut
		}
	}
	if found == nil {
		return nil, database.ErrUserTaskNotExist
	}
	return found, nil
}

func (t *tx) LockUserTask(_ context.Context, id int64) (*types.UserTask, error) {
	ut, ok := t.s.userTasks[id]
	if !ok {
		return nil, database.ErrUserTaskNotExist
	}
	return &ut, nil
}

func (t *tx) CreateUserTask(_ context.Context, ut *types.UserTask) error {
	ut.ID = t.s.id()
	ut.Created = time.Now()
	t.s.userTasks[ut.ID] = *ut
	return nil
}

func (t *tx) SaveUserTask(_ context.Context, ut *types.UserTask) error {
	if _, ok := t.s.userTasks[ut.ID]; !ok {
		return database.ErrUserTaskNotExist
	}
	t.s.userTasks[ut.ID] = *ut
	return nil
}

func (t *tx) GetProof(_ context.Context, id int64) (*types.Proof, error) {
	p, ok := t.s.proofs[id]
	if !ok {
		return nil, database.ErrProofNotExist
	}
	return &p, nil
}

func (t *tx) CreateProof(_ context.Context, p *types.Proof) error {
	p.ID = t.s.id()
	t.s.proofs[p.ID] = *p
	return nil
}

func (t *tx) DeleteProof(_ context.Context, id int64) error {
	delete(t.s.proofs, id)
	return nil
}

func (t *tx) RecordTransaction(_ context.Context, trx *types.StoredTransaction) error {
	hash := strings.ToLower(trx.Hash)
	if _, ok := t.s.transactions[hash]; ok {
		return database.ErrTransactionAlreadyRedeemed
	}
	trx.Created = time.Now()
	stored := *trx
	stored.Hash = hash
	t.s.transactions[hash] = stored
	return nil
}

func (t *tx) CreateWithdrawalOrder(_ context.Context, o *types.WithdrawalOrder) error {
	o.ID = t.s.id()
	o.Created = time.Now()
	t.s.orders[o.ID] = *o
	return nil
}

func (s *Store) GetClient(_ context.Context, userID int64) (*types.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[userID]
	if !ok {
		return nil, database.ErrClientNotExist
	}
	return &c, nil
}

func (s *Store) ListClientIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) UpdateClientProfile(_ context.Context, userID int64, profile *types.ClientProfile) (*types.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[userID]
	if !ok {
		return nil, database.ErrClientNotExist
	}
	if profile.DiscordUsername != nil {
		c.DiscordUsername = *profile.DiscordUsername
	}
	if profile.Wallet != nil {
		c.Wallet = *profile.Wallet
	}
	if profile.WelcomePassed != nil {
		c.WelcomePassed = *profile.WelcomePassed
	}
	s.clients[userID] = c
	return &c, nil
}

func (s *Store) CreateTask(_ context.Context, task *types.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = s.id()
	task.Published = time.Now()
	s.tasks[task.ID] = *task
	return task.ID, nil
}

func (s *Store) UpdateTask(_ context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tasks[task.ID]
	if !ok {
		return database.ErrTaskNotExist
	}
	task.Published = old.Published
	s.tasks[task.ID] = *task
	return nil
}

func (s *Store) GetTaskById(_ context.Context, taskID int64) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, database.ErrTaskNotExist
	}
	return &task, nil
}

func (s *Store) ListAvailableTasks(_ context.Context, clientID int64) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed := map[int64]bool{}
	for _, ut := range s.userTasks {
		if ut.ClientID == clientID && ut.Completed {
			completed[ut.TaskID] = true
		}
	}
	var res []*types.Task
	for _, task := range s.tasks {
		if task.Repeatable || !completed[task.ID] {
			task := task
			res = append(res, &task)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) GetUserTask(_ context.Context, id int64) (*types.UserTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ut, ok := s.userTasks[id]
	if !ok {
		return nil, database.ErrUserTaskNotExist
	}
	return &ut, nil
}

func (s *Store) CreateValidator(_ context.Context, v *types.Validator) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = s.id()
	s.validators[v.ID] = *v
	return v.ID, nil
}

func (s *Store) GetValidator(_ context.Context, id int64) (*types.Validator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[id]
	if !ok {
		return nil, database.ErrValidatorNotExist
	}
	return &v, nil
}

func (s *Store) AddContract(_ context.Context, c *types.Contract) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address := strings.ToLower(c.Address)
	for _, existing := range s.contracts {
		if existing.Chain == c.Chain && existing.Address == address {
			return 0, database.ErrContractAlreadyExist
		}
	}
	c.ID = s.id()
	c.Address = address
	s.contracts[c.ID] = *c
	return c.ID, nil
}

func (s *Store) IsTrustedContract(_ context.Context, addresses []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range addresses {
		for _, c := range s.contracts {
			if c.Address == strings.ToLower(a) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) IsTransactionRedeemed(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.transactions[strings.ToLower(hash)]
	return ok, nil
}

func (s *Store) GetTokenPrice(_ context.Context, name string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[name]
	if !ok {
		return decimal.Zero, database.ErrTokenPriceNotExist
	}
	return p, nil
}

func (s *Store) LoadSettings(_ context.Context, defaults types.SiteSettings) (types.SiteSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		s.settings = &defaults
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings types.SiteSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}

func (s *Store) ListWithdrawalOrders(_ context.Context, payed *bool) ([]*types.WithdrawalOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*types.WithdrawalOrder
	for _, o := range s.orders {
		if payed == nil || o.Payed == *payed {
			o := o
			res = append(res, &o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) MarkWithdrawalPayed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return database.ErrWithdrawalOrderNotExist
	}
	o.Payed = true
	s.orders[id] = o
	return nil
}
