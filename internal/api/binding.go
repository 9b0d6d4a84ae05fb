package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

var registerOnce sync.Once

// registerValidators adds the priority and role tags to gin's validator and
// makes field errors report json names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
			return schema.Priority(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return schema.Role(fl.Field().String()).Valid()
		})
	})
}

// bindJSON decodes the body into dst and converts binding failures into
// validation errors.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return bindError(err)
	}
	return nil
}

func bindQuery(c *gin.Context, dst any) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return bindError(err)
	}
	return nil
}

func bindError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return apperr.Validation("Invalid request body")
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation("%s is required", fe.Field())
	case "email":
		return apperr.Validation("Please provide a valid email")
	case "priority":
		return apperr.Validation("Priority must be one of %s, %s, %s", schema.PriorityLow, schema.PriorityMedium, schema.PriorityHigh)
	case "role":
		return apperr.Validation("Invalid role")
	case "min":
		return apperr.Validation("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return apperr.Validation("Invalid value for %s", fe.Field())
	}
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("%s must be a date", field)
}
