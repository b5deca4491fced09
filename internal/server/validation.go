package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/chipledger/internal/failure"
	"github.com/MarcoPoloResearchLab/chipledger/internal/rooms"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const roomKeyTag = "roomkey"

var (
	registerOnce sync.Once
	registerErr  error
)

func registerValidators() error {
	registerOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
			return
		}
		registerErr = engine.RegisterValidation(roomKeyTag, func(fl validator.FieldLevel) bool {
			return rooms.ValidateRoomKey(fl.Field().String()) == nil
		})
	})
	return registerErr
}

// bindingFailureCode maps a bind error to the code of the first failing field.
// Fields not listed fall back to invalid-request.
func bindingFailureCode(err error, fieldCodes map[string]failure.Code) failure.Code {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			if code, ok := fieldCodes[fieldError.Field()]; ok {
				return code
			}
		}
	}
	return failure.CodeInvalidRequest
}
