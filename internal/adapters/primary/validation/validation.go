package validation

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	apperrors "github.com/lorrc/clinical-event-relay/internal/core/errors"
)

// maxBodyBytes caps request bodies accepted by DecodeAndValidate.
const maxBodyBytes = 1 << 20

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// entityid: an id that can be embedded in a room key.
	_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return domain.ValidateEntityID(fl.Field().String()) == nil
	})

	// roomkey: a fully formed room key of any namespace.
	_ = v.RegisterValidation("roomkey", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseRoomKey(fl.Field().String())
		return err == nil
	})

	return v
}

// Validator validates request data
type Validator struct {
	errors *apperrors.ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: apperrors.NewValidationErrors(),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Errors returns the validation errors
func (v *Validator) Errors() *apperrors.ValidationErrors {
	return v.errors
}

// Struct runs the `validate` tags of s and records each failure under the
// field's JSON path.
func (v *Validator) Struct(s any) *Validator {
	err := structValidator.Struct(s)
	if err == nil {
		return v
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.errors.Add("body", err.Error())
		return v
	}

	for _, fe := range fieldErrs {
		v.errors.Add(fieldPath(fe), messageFor(fe))
	}
	return v
}

// Custom adds a custom validation
func (v *Validator) Custom(field string, valid bool, message string) *Validator {
	if !valid {
		v.errors.Add(field, message)
	}
	return v
}

// DecodeAndValidate decodes the JSON request body into T and validates its
// struct tags. Decode failures are bad requests; tag failures are returned
// as *apperrors.ValidationErrors.
func DecodeAndValidate[T any](w http.ResponseWriter, r *http.Request) (*T, error) {
	var req T

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return nil, apperrors.NewBadRequestError(err, "Invalid request body")
	}

	v := NewValidator().Struct(&req)
	if v.HasErrors() {
		return nil, v.Errors()
	}

	return &req, nil
}

// fieldPath drops the top-level struct name: "PublishRequest.event.type"
// becomes "event.type".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "entityid":
		return "Must start with a letter or digit and contain only letters, digits and dashes"
	case "roomkey":
		return "Must be a valid room key"
	case "min":
		return "Must have at least " + fe.Param() + " item(s)"
	case "max":
		return "Must be at most " + fe.Param()
	case "gte":
		return "Must be at least " + fe.Param()
	case "oneof":
		return "Must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "Failed the " + fe.Tag() + " check"
	}
}
