package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every lookup miss. Storage implementations
// return a *NotFoundError that wraps it.
var ErrNotFound = errors.New("not found")

var (
	// ErrInvalidName is returned for project or service names that are not
	// kebab-case.
	ErrInvalidName = errors.New("invalid name")

	// ErrAlreadyExists is returned when creating a project or service whose
	// name is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTimestamp is returned when no usable timestamp can be
	// obtained for an observation.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidMeasurement is returned for execution times that cannot be
	// stored.
	ErrInvalidMeasurement = errors.New("invalid measurement")
)

// EntityKind names the catalog entity a lookup was for.
type EntityKind string

const (
	KindProject EntityKind = "project"
	KindService EntityKind = "service"
	KindRecord  EntityKind = "record"
)

// NotFoundError reports a missing project, service or record.
type NotFoundError struct {
	Kind EntityKind
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// Is makes errors.Is(err, ErrNotFound) true for every kind.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func ProjectNotFound(name string) error {
	return &NotFoundError{Kind: KindProject, Name: name}
}

func ServiceNotFound(name string) error {
	return &NotFoundError{Kind: KindService, Name: name}
}

func RecordNotFound(name string) error {
	return &NotFoundError{Kind: KindRecord, Name: name}
}

// IsNotFoundKind reports whether err is a miss for the given entity kind.
func IsNotFoundKind(err error, kind EntityKind) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Kind == kind
}
