package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProcessValidationErrors maps each failed field to the tag that rejected it.
// Errors that are not validation errors come back as nil.
func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// ValidationMessage renders a binding error as one human-readable line.
func ValidationMessage(err error) string {
	fields := ProcessValidationErrors(err)
	if len(fields) == 0 {
		return "Invalid request body: " + err.Error()
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s is %s", name, fields[name]))
	}
	return "Invalid request body: " + strings.Join(parts, ", ")
}
