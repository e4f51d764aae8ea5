package snapshots

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDatabase indicates the service was built without a database handle.
	ErrMissingDatabase = errors.New("snapshots: database handle is required")
	// ErrMissingInventory indicates the service was built without an inventory source.
	ErrMissingInventory = errors.New("snapshots: inventory source is required")
	// ErrInvalidRange indicates a range whose start is after its end.
	ErrInvalidRange = errors.New("snapshots: range start is after range end")
	// ErrSnapshotNotFound indicates no header exists for the requested identifier.
	ErrSnapshotNotFound = errors.New("snapshots: snapshot not found")
)

const (
	opServiceNew   = "snapshots.service.new"
	opGenerate     = "snapshots.generate"
	opListByDate   = "snapshots.list_by_date"
	opListByRange  = "snapshots.list_by_range"
	opCompare      = "snapshots.compare"
	opListDetails  = "snapshots.list_details"
	opUnitHistory  = "snapshots.unit_history"
	opProjectWrite = "snapshots.write_project"
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
