package types

import (
	"regexp"

	"github.com/go-faster/errors"
)

type PolicyKind int

const (
	PolicyNone PolicyKind = iota
	PolicyPatternMatch
	PolicyTransactionProof
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyPatternMatch:
		return "pattern_match"
	case PolicyTransactionProof:
		return "transaction_proof"
	default:
		return "none"
	}
}

// TaskPolicy is the verification rule of a task. Expression is set for
// PolicyPatternMatch, Chain for PolicyTransactionProof.
type TaskPolicy struct {
	Kind       PolicyKind
	Expression string
	Chain      string
}

var (
	ErrConflictingPolicies = errors.New("task can not require both validation and transaction proof")
	ErrValidatorRequired   = errors.New("validator is required iff need_validation is set")
	ErrChainRequired       = errors.New("trx_proof_chain is required iff need_trx_proof is set")
	ErrBadExpression       = errors.New("validator expression does not compile")
	ErrBadPrice            = errors.New("task price must be positive")
	ErrBadProofType        = errors.New("unknown proof type")
)

// Policy assumes the task passed Validate.
func (t *Task) Policy() TaskPolicy {
	switch {
	case t.NeedValidation && t.Validator != nil:
		return TaskPolicy{Kind: PolicyPatternMatch, Expression: t.Validator.Expression}
	case t.NeedTrxProof && t.TrxProofChain != "":
		return TaskPolicy{Kind: PolicyTransactionProof, Chain: t.TrxProofChain}
	default:
		return TaskPolicy{Kind: PolicyNone}
	}
}

func (t *Task) Validate() error {
	if err := CheckLength("name", t.Name, MaxTaskNameLength); err != nil {
		return err
	}
	if err := CheckLength("trx_proof_chain", t.TrxProofChain, MaxChainLength); err != nil {
		return err
	}
	if t.NeedValidation && t.NeedTrxProof {
		return ErrConflictingPolicies
	}
	if t.NeedValidation != (t.Validator != nil) {
		return ErrValidatorRequired
	}
	if t.NeedTrxProof != (t.TrxProofChain != "") {
		return ErrChainRequired
	}
	if t.Validator != nil {
		if err := t.Validator.Validate(); err != nil {
			return err
		}
	}
	if !t.Price.IsPositive() {
		return ErrBadPrice
	}
	switch t.ProofType {
	case ProofTypeText, ProofTypePhoto:
	default:
		return ErrBadProofType
	}
	return nil
}

func (v *Validator) Validate() error {
	if err := CheckLength("name", v.Name, MaxValidatorNameLength); err != nil {
		return err
	}
	if err := CheckLength("expression", v.Expression, MaxExpressionLength); err != nil {
		return err
	}
	if _, err := regexp.Compile(v.Expression); err != nil {
		return errors.Wrap(ErrBadExpression, err.Error())
	}
	return nil
}
