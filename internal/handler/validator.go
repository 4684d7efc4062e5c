package handler

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Wallet-style addresses: 0x prefix plus 1-64 alphanumerics. Uniqueness and
// comparisons elsewhere are case-insensitive.
var walletAddrPattern = regexp.MustCompile(`^0x[0-9a-zA-Z]{1,64}$`)

// RegisterValidators installs custom binding rules on gin's validator
// engine. Call once at startup before serving requests.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("walletaddr", func(fl validator.FieldLevel) bool {
		return walletAddrPattern.MatchString(fl.Field().String())
	})
}
