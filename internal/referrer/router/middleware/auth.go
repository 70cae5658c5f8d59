package middleware

import (
	"crypto/subtle"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
)

const BotTokenHeader = "X-Bot-Token"

func Protected(jwtSecret []byte) func(*fiber.Ctx) error {
	return jwtware.New(jwtware.Config{
		SigningKey:   jwtware.SigningKey{Key: jwtSecret},
		ErrorHandler: authError,
	})
}

// BotToken admits requests carrying the static token shared with the bot.
func BotToken(token string) func(*fiber.Ctx) error {
	return keyauth.New(keyauth.Config{
		KeyLookup: "header:" + BotTokenHeader,
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			if token != "" && subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
				return true, nil
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: authError,
	})
}

func authError(c *fiber.Ctx, _ error) error {

	c.Status(fiber.StatusUnauthorized)
	return c.JSON(fiber.Map{"status": "error", "message": "Необходима авторизация"})

}
