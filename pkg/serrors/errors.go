package serrors

import "fmt"

// BaseError is the standard error shape for service boundaries. Code is a
// stable machine-readable identifier, Message a developer-facing default,
// LocaleKey an optional translation key for user-facing surfaces.
type BaseError struct {
	Code         string
	Message      string
	LocaleKey    string
	TemplateData map[string]string
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithTemplateData returns a copy carrying template data for localization
// and structured error responses. The receiver is not mutated so package
// level sentinel errors stay safe for concurrent use.
func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	clone := *e
	clone.TemplateData = make(map[string]string, len(data))
	for k, v := range data {
		clone.TemplateData[k] = v
	}
	return &clone
}

// Is makes sentinel BaseErrors match their WithTemplateData copies under
// errors.Is.
func (e *BaseError) Is(target error) bool {
	other, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}
