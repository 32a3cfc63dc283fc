package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// RegistrarError wraps every failed registrar call: transport failures,
// authentication problems and non-2xx responses alike.
type RegistrarError struct {
	Op         string
	Domain     string
	StatusCode int
	Message    string
	Cause      error
}

func NewRegistrarError(op, domain string, statusCode int, message string, cause error) *RegistrarError {
	return &RegistrarError{Op: op, Domain: domain, StatusCode: statusCode, Message: message, Cause: cause}
}

func (e *RegistrarError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("registrar %s %s: %v", e.Op, e.Domain, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("registrar %s %s: status %d: %s", e.Op, e.Domain, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("registrar %s %s: status %d", e.Op, e.Domain, e.StatusCode)
	}
}

func (e *RegistrarError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err is a registrar response saying the record or
// domain does not exist.
func IsNotFound(err error) bool {
	var regErr *RegistrarError
	return errors.As(err, &regErr) && regErr.StatusCode == http.StatusNotFound
}
