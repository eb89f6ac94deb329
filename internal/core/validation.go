package core

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError carries field-level problems from the form path.
// Fields maps the JSON field name to the failed rule.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s %s", name, describeRule(e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func describeRule(tag string) string {
	switch tag {
	case "required":
		return "is a required field"
	case "modulestatus":
		return "is an invalid enum value"
	case "max":
		return "is too long"
	default:
		return "failed " + tag
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func moduleValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("modulestatus", func(fl validator.FieldLevel) bool {
			return Status(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

// ValidateModule checks a module submitted through the form path: moduleNo,
// yard and location are required and the status must be one of Statuses.
func ValidateModule(m Module) error {
	err := moduleValidator().Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = fe.Tag()
	}
	return out
}

// checkImportStatus coerces an unrecognized status to StatusPending and
// reports it as a validation warning. Imports never store an invalid enum.
func checkImportStatus(raw string, line int, key string) (Status, *ImportError) {
	st, ok := ParseStatus(raw)
	if ok {
		return st, nil
	}
	return StatusPending, &ImportError{
		Line:     line,
		ModuleNo: key,
		Field:    "rfloDateStatus",
		Kind:     KindValidation,
		Message:  fmt.Sprintf("invalid enum value %q, using %q", raw, StatusPending),
	}
}
