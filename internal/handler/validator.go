package handler

import (
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
)

// RequestValidator adapts go-playground/validator to echo.Validator so
// handlers can call c.Validate on bound request bodies.
type RequestValidator struct {
    v *validator.Validate
}

// NewRequestValidator returns a validator using `validate` struct tags.
func NewRequestValidator() *RequestValidator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    return &RequestValidator{v: v}
}

// Validate implements echo.Validator.  Field errors are flattened into a
// single readable message.
func (rv *RequestValidator) Validate(i interface{}) error {
    err := rv.v.Struct(i)
    if err == nil {
        return nil
    }
    verrs, ok := err.(validator.ValidationErrors)
    if !ok {
        return err
    }
    msgs := make([]string, 0, len(verrs))
    for _, fe := range verrs {
        msgs = append(msgs, fieldMessage(fe))
    }
    return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return fe.Field() + " is required"
    case "min":
        return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
    case "max":
        return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
    case "gt":
        return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
    case "unique":
        return fe.Field() + " must not contain duplicates"
    }
    return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}
