package scheduling

import (
	"errors"
	"strings"
)

var (
	// ErrNothingToGenerate means a valid request produced zero slots.
	ErrNothingToGenerate = errors.New("no slots to generate for the given range")

	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotAlreadyAssigned = errors.New("slot already has a patient")
	ErrSlotInPast          = errors.New("cannot book a slot in the past")
	ErrSlotBooked          = errors.New("cannot delete a slot that has a patient")
	ErrInvalidStatus       = errors.New("invalid slot status")
)

// ValidationError is a single rejected field of a request.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every violation found in a request.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

func (v *ValidationErrors) add(field, msg string) {
	*v = append(*v, ValidationError{Field: field, Message: msg})
}

// Err returns v as an error, or nil when empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
