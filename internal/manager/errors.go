package manager

import (
	"fmt"
	"strings"
)

// MissingFieldsError reports every mandatory field absent from a submission.
// Missing fields are collected across both parse passes and reported in one
// batch so clients can fix a submission in a single round trip.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("Following data fields are required: %s", strings.Join(e.Fields, ", "))
}

// DataParsingError is the client-facing parse failure family. Lower-level
// manager failures are mapped into it at the parse boundary so callers see
// one consistent error shape.
type DataParsingError struct {
	Message string
}

func (e *DataParsingError) Error() string {
	return e.Message
}

// ManagerError reports an internal manager failure such as a reference to a
// missing record.
type ManagerError struct {
	Message string
}

func (e *ManagerError) Error() string {
	return e.Message
}

// UnsupportedCallError reports an unknown named listing hook.
type UnsupportedCallError struct {
	Call string
}

func (e *UnsupportedCallError) Error() string {
	return fmt.Sprintf("Unsupported call value: %s", e.Call)
}
