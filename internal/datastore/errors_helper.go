// Package datastore provides error handling helpers for database operations
package datastore

import (
	"fmt"

	"github.com/tphakala/occupancy-go/internal/errors"
	"gorm.io/gorm"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// notFoundError reports a missing row of the given kind
func notFoundError(kind string, id uint) error {
	return errors.Newf("%s %d not found", kind, id).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("id", id).
		Build()
}

// lookupError maps gorm.ErrRecordNotFound to a not-found error and anything else to a database error
func lookupError(err error, kind string, id uint, operation string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError(kind, id)
	}
	return dbError(err, operation, errors.PriorityMedium, kind+"_id", id)
}
