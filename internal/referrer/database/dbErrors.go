package database

import "github.com/go-faster/errors"

var ErrClientAlreadyExist = errors.New("client already exist")
var ErrClientNotExist = errors.New("client not exist")
var ErrTaskNotExist = errors.New("task not exist")
var ErrUserTaskNotExist = errors.New("user task not exist")
var ErrProofNotExist = errors.New("proof not exist")
var ErrValidatorNotExist = errors.New("validator not exist")
var ErrContractAlreadyExist = errors.New("contract already exist")
var ErrTransactionAlreadyRedeemed = errors.New("transaction already redeemed")
var ErrTokenPriceNotExist = errors.New("token price not exist")
var ErrWithdrawalOrderNotExist = errors.New("withdrawal order not exist")
