package app

import "fmt"

// DomainError is the typed failure every service operation returns for
// expected error conditions. Code is one of UNAUTHENTICATED, FORBIDDEN,
// NOT_FOUND, VALIDATION_ERROR, INVALID_STATE, CONFLICT, or SERVER_ERROR;
// Status is the HTTP status mapError writes for it.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
