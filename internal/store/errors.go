package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Kind classifies a store failure for callers.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindReference  Kind = "reference"
	KindConflict   Kind = "conflict"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrReference  = errors.New("dangling reference")
	ErrConflict   = errors.New("conflict")
)

// Error carries the kind of failure and the entity it concerns.
// errors.Is matches it against the sentinel of its kind.
type Error struct {
	Kind    Kind
	Entity  string
	ID      string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.ID != "":
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.sentinel())
	default:
		return fmt.Sprintf("%s: %s", e.Entity, e.sentinel())
	}
}

func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindReference:
		return ErrReference
	case KindConflict:
		return ErrConflict
	}
	return nil
}

// KindOf returns the kind of a store error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id}
}

func invalid(entity, format string, args ...any) error {
	return &Error{Kind: KindValidation, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

func badReference(entity, id, format string, args ...any) error {
	return &Error{Kind: KindReference, Entity: entity, ID: id, Message: fmt.Sprintf(format, args...)}
}

func conflict(entity, id, format string, args ...any) error {
	return &Error{Kind: KindConflict, Entity: entity, ID: id, Message: fmt.Sprintf(format, args...)}
}

// classify turns driver errors into the store taxonomy. Unknown errors are wrapped unchanged.
func classify(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity, id)
	}
	if isUniqueViolation(err) {
		return conflict(entity, id, "%s %s already exists", entity, id)
	}
	if isForeignKeyViolation(err) {
		return badReference(entity, id, "%s %s refers to a row that no longer exists", entity, id)
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// asReference converts a NotFound into a ReferenceError, for ids supplied in a payload.
func asReference(err error, entity, id string) error {
	if KindOf(err) == KindNotFound {
		return badReference(entity, id, "%s %s does not exist", entity, id)
	}
	return err
}
