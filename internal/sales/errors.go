package sales

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrNotFound is returned when a sale or beneficiary with the given ID does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyID is returned when trying to store a record with an empty ID.
	ErrEmptyID = errors.New("empty ID")

	// ErrVersionConflict is returned by a compare-and-swap write when the stored
	// record changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when input is rejected before any write happens.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PersistenceError is returned when the sale itself could not be written.
// No ledger has been touched when this error is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// LedgerFailure is one beneficiary whose ledger could not be updated.
type LedgerFailure struct {
	Kind          Kind
	BeneficiaryID string
	Err           error
}

// LedgerUpdateError is returned when the sale was persisted but at least one
// ledger side could not be applied. Sale holds the persisted record, with its
// settled flags showing which sides did get applied.
type LedgerUpdateError struct {
	Sale     *Sale
	Failures []LedgerFailure
}

func (e *LedgerUpdateError) Error() string {
	var err error
	for _, f := range e.Failures {
		err = multierr.Append(err, fmt.Errorf("%s %s: %w", f.Kind, f.BeneficiaryID, f.Err))
	}
	return fmt.Sprintf("ledger update failed for sale %s: %v", e.Sale.ID, err)
}

func (e *LedgerUpdateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// SettlementStateError is returned when ledger sides were applied but the
// sale's settled flags could not be saved. Sale carries the flags as they are
// stored. Settling the sale again is safe: applied sides are skipped.
type SettlementStateError struct {
	Sale     *Sale
	Applied  []Kind
	Failures []LedgerFailure
	Err      error
}

func (e *SettlementStateError) Error() string {
	msg := fmt.Sprintf("settlement state of sale %s not persisted: %v", e.Sale.ID, e.Err)
	if len(e.Failures) > 0 {
		lerr := &LedgerUpdateError{Sale: e.Sale, Failures: e.Failures}
		msg += "; " + lerr.Error()
	}
	return msg
}

func (e *SettlementStateError) Unwrap() error {
	return e.Err
}
