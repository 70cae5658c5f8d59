package types

import (
	"unicode/utf8"

	"github.com/go-faster/errors"
)

// Column widths of the schema, in characters.
const (
	MaxTaskNameLength        = 30
	MaxChainLength           = 20
	MaxValidatorNameLength   = 30
	MaxExpressionLength      = 50
	MaxProofTextLength       = 100
	MaxUsernameLength        = 32
	MaxWalletLength          = 250
	MaxContractAddressLength = 100
)

var ErrFieldTooLong = errors.New("value is too long")

// CheckLength fails with ErrFieldTooLong when value has more than limit characters.
func CheckLength(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return errors.Wrap(ErrFieldTooLong, field)
	}
	return nil
}

func (p *ClientProfile) Validate() error {
	if p.DiscordUsername != nil {
		if err := CheckLength("discord_username", *p.DiscordUsername, MaxUsernameLength); err != nil {
			return err
		}
	}
	if p.Wallet != nil {
		if err := CheckLength("wallet", *p.Wallet, MaxWalletLength); err != nil {
			return err
		}
	}
	return nil
}

func (c *Contract) Validate() error {
	if err := CheckLength("chain", c.Chain, MaxChainLength); err != nil {
		return err
	}
	return CheckLength("address", c.Address, MaxContractAddressLength)
}
