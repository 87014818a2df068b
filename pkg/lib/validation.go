package lib

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// ValidateStruct runs go-playground/validator tag checks on s.
// Returns nil when validation passes.
func ValidateStruct(s any) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.ActualTag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}
