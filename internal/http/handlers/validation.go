package handlers

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

// RegisterValidators installs the custom binding tags used by request
// structs on gin's validator. Safe to call more than once.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("script_option", validScriptOption)
}

// validScriptOption accepts "gpt" or "custom", case-insensitively.
func validScriptOption(fl validator.FieldLevel) bool {
	switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
	case domain.ScriptOptionGPT, domain.ScriptOptionCustom:
		return true
	}
	return false
}
