package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReferralState int

const (
	ReferralUnconfirmed ReferralState = iota
	ReferralConfirmed
)

type ProofState int

const (
	ProofAbsent ProofState = iota
	ProofRecorded
)

type ProofType string

const (
	ProofTypeText  ProofType = "text"
	ProofTypePhoto ProofType = "photo"
)

type Client struct {
	UserID            int64           `json:"user_id"`
	AffiliateID       *int64          `json:"affiliate"`
	TgUsername        string          `json:"tg_username"`
	Phone             string          `json:"phone,omitempty"`
	DiscordUsername   string          `json:"discord_username,omitempty"`
	Referrals         int             `json:"referrals"`
	TaskSum           int             `json:"task_sum"`
	Balance           decimal.Decimal `json:"balance"`
	UnverifiedBalance decimal.Decimal `json:"unverified_balance"`
	ReferralState     ReferralState   `json:"-"`
	// ReferralBonus is the referral cost in effect when the client registered through an affiliate.
	ReferralBonus    decimal.Decimal `json:"-"`
	Wallet           string          `json:"wallet,omitempty"`
	WelcomePassed    bool            `json:"welcome_passed"`
	LastSubmissionAt *time.Time      `json:"-"`
}

type ClientProfile struct {
	DiscordUsername *string `json:"discord_username"`
	Wallet          *string `json:"wallet"`
	WelcomePassed   *bool   `json:"welcome_passed"`
}

type Validator struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

type Task struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	SuccessText    string          `json:"success_text"`
	FailText       string          `json:"fail_text"`
	ProofType      ProofType       `json:"proof_type"`
	Published      time.Time       `json:"published"`
	NeedValidation bool            `json:"need_validation"`
	Validator      *Validator      `json:"validator,omitempty"`
	NeedTrxProof   bool            `json:"need_trx_proof"`
	TrxProofChain  string          `json:"trx_proof_chain,omitempty"`
	Repeatable     bool            `json:"repeatable"`
}

type Proof struct {
	ID          int64   `json:"id"`
	TextAnswer  *string `json:"text_answer"`
	ImageAnswer *string `json:"image_answer"`
}

// Text returns the text answer or an empty string.
func (p *Proof) Text() string {
	if p == nil || p.TextAnswer == nil {
		return ""
	}
	return *p.TextAnswer
}

type UserTask struct {
	ID         int64      `json:"id"`
	ClientID   int64      `json:"client_id"`
	TaskID     int64      `json:"task_id"`
	Completed  bool       `json:"completed"`
	ProofID    *int64     `json:"proof_id"`
	ProofState ProofState `json:"-"`
	// Credit is the task price credited to the client for this attempt.
	Credit  decimal.Decimal `json:"credit"`
	Created time.Time       `json:"created"`
}

type Contract struct {
	ID      int64  `json:"id"`
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

type TokenPrice struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type StoredTransaction struct {
	Hash     string    `json:"hash"`
	Chain    string    `json:"chain"`
	ClientID int64     `json:"client_id"`
	Created  time.Time `json:"created"`
}

type WithdrawalOrder struct {
	ID            int64           `json:"id"`
	ClientID      int64           `json:"client"`
	WithdrawalSum decimal.Decimal `json:"withdrawal_sum"`
	Created       time.Time       `json:"created"`
	Payed         bool            `json:"payed"`
}

type SiteSettings struct {
	WithdrawalMinAmount decimal.Decimal `json:"withdrawal_min_amount"`
	ReferralCost        decimal.Decimal `json:"referral_cost"`
}

func DefaultSiteSettings() SiteSettings {
	return SiteSettings{
		WithdrawalMinAmount: decimal.NewFromInt(5),
		ReferralCost:        decimal.RequireFromString("0.15"),
	}
}

type SubmissionStatus string

const (
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
	SubmissionPending  SubmissionStatus = "pending"
)

type SubmissionOutcome struct {
	Status     SubmissionStatus `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Message    string           `json:"message,omitempty"`
	UserTaskID int64            `json:"user_task_id"`
}

func (o *SubmissionOutcome) Accepted() bool {
	return o.Status == SubmissionAccepted
}

type ProofRequest struct {
	ClientID   int64  `json:"client_id" form:"client_id"`
	TaskID     int64  `json:"task_id" form:"task_id"`
	TextAnswer string `json:"text_answer" form:"text_answer"`
	Image      []byte `json:"-"`
	ImageType  string `json:"-"`
}

type WithdrawalRequest struct {
	ClientID      int64           `json:"client"`
	WithdrawalSum decimal.Decimal `json:"withdrawal_sum"`
}

type UserTaskRequest struct {
	Completed bool `json:"completed"`
}

type AdminRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

type BroadcastRequest struct {
	Message string `json:"message"`
}

// ChainTransaction is the part of an explorer transaction used by transaction proofs.
type ChainTransaction struct {
	TxID                 string          `json:"txid"`
	OutputDetails        []OutputDetail  `json:"outputDetails"`
	TokenTransferDetails []TokenTransfer `json:"tokenTransferDetails"`
}

type OutputDetail struct {
	OutputHash string `json:"outputHash"`
}

type TokenTransfer struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}
