package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/Armour007/parcelclaims-backend/internal/normalize"
)

var registerOnce sync.Once

// registerValidators installs the custom binding rules on gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(f reflect.StructField) string {
				name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
				if name == "-" {
					return ""
				}
				return name
			})
			_ = v.RegisterValidation("ruphone", func(fl validator.FieldLevel) bool {
				return normalize.ValidPhone(fl.Field().String())
			})
			_ = v.RegisterValidation("notblank", validators.NotBlank)
		}
	})
}

// fieldErrors lists the JSON field names that failed validation.
func fieldErrors(err error) []string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, fe.Field())
	}
	return out
}
