// Package validation checks request input against per-use-case schemas with
// go-playground/validator.
//
// A schema is a struct type registered for a use case. Input maps are decoded
// into a fresh value of that type and validated by struct tags:
//
//	type ChangePassword struct {
//	    Current string `json:"current" validate:"required"`
//	    Next    string `json:"next" validate:"required,min=10"`
//	}
//	reg.Register("/auth/password", ChangePassword{})
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report fields by their json names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// FieldError describes one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Error collects every failed rule of one validation.
type Error struct {
	UseCase string
	Fields  []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validator is the collaborator the request context calls.
type Validator interface {
	Validate(data map[string]any, useCase string) (any, error)
}

// Registry maps use cases to schema types.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]reflect.Type
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]reflect.Type)}
}

// Register binds the struct type of schema to useCase. schema may be a value
// or a pointer to a struct.
func (r *Registry) Register(useCase string, schema any) error {
	t := reflect.TypeOf(schema)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("validation: schema for %s must be a struct", useCase)
	}
	r.mu.Lock()
	r.schemas[useCase] = t
	r.mu.Unlock()
	return nil
}

// Validate decodes data into the schema of useCase and checks it. The result
// is a pointer to the populated schema value. A use case without a schema
// passes data through unchanged.
func (r *Registry) Validate(data map[string]any, useCase string) (any, error) {
	r.mu.RLock()
	t, ok := r.schemas[useCase]
	r.mu.RUnlock()
	if !ok {
		return data, nil
	}

	dst := reflect.New(t).Interface()
	if err := Decode(data, dst); err != nil {
		return nil, &Error{UseCase: useCase, Fields: []FieldError{{
			Field:   "",
			Tag:     "type",
			Message: err.Error(),
		}}}
	}
	if err := Struct(dst); err != nil {
		err.UseCase = useCase
		return nil, err
	}
	return dst, nil
}

// Decode copies a loosely typed input map into dst through JSON.
func Decode(data map[string]any, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Struct runs tag validation on v.
func Struct(v any) *Error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &Error{Fields: []FieldError{{Tag: "invalid", Message: err.Error()}}}
	}
	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
