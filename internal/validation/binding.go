// Package validation registers the request binding rules shared by the API
// handlers and renders validator failures as client-facing messages.
//
// Rules are installed on gin's default validator engine, so struct tags such
// as `binding:"required,role"` work with ShouldBindJSON and ShouldBindQuery.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var brandColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var (
	registerOnce sync.Once
	registerErr  error
)

// Register installs the custom rules on gin's binding validator. Repeated
// calls are no-ops.
func Register() error {
	registerOnce.Do(func() {
		registerErr = register(binding.Validator.Engine())
	})
	return registerErr
}

func register(engine any) error {
	v, ok := engine.(*validator.Validate)
	if !ok {
		return fmt.Errorf("unsupported binding engine %T", engine)
	}

	v.RegisterTagNameFunc(jsonFieldName)

	rules := map[string]validator.Func{
		"role":              isRole,
		"invitation_status": isInvitationStatus,
		"brand_color":       isBrandColor,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %q validation: %w", tag, err)
		}
	}
	return nil
}

// jsonFieldName reports fields by their json (or form) name.
func jsonFieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

func isRole(fl validator.FieldLevel) bool {
	_, err := models.ParseRole(fl.Field().String())
	return err == nil
}

func isInvitationStatus(fl validator.FieldLevel) bool {
	_, err := models.ParseInvitationStatus(fl.Field().String())
	return err == nil
}

func isBrandColor(fl validator.FieldLevel) bool {
	return brandColorPattern.MatchString(fl.Field().String())
}

// Message turns a binding error into a short message for the response body.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "role":
		return field + " must be one of owner, admin, member"
	case "invitation_status":
		return field + " must be one of pending, accepted, rejected, cancelled"
	case "brand_color":
		return field + " must be a hex color like #1a2b3c"
	case "email":
		return field + " must be a valid email address"
	case "oneof":
		return field + " must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	}
	return field + " is invalid"
}
