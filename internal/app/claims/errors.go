package claims

import (
	"errors"
	"net/http"
)

const (
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeValidation    = "VALIDATION_ERROR"
	CodeDuplicate     = "DUPLICATE_CLAIM"
	CodeStore         = "STORE_ERROR"
)

// User-facing messages. The campaign runs in Indonesian.
const (
	MsgNotConfigured  = "Supabase belum dikonfigurasi."
	MsgFieldsRequired = "Divisi dan email wajib diisi."
	MsgDuplicate      = "Divisi ini sudah pernah claim. Silakan hubungi admin."
	MsgInvalidID      = "ID tidak valid."
	MsgSubmitFailed   = "Gagal mengirim data."
	MsgListFailed     = "Gagal memuat data."
	MsgDeleteFailed   = "Gagal menghapus data."
)

// Error is an application-layer error that can be mapped to an HTTP response.
// Message is safe to show to the user verbatim.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any

	// Err is the underlying store fault, if any. Never shown to users.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func configurationError() *Error {
	return &Error{
		Status:  http.StatusServiceUnavailable,
		Code:    CodeConfiguration,
		Message: MsgNotConfigured,
		Details: map[string]any{"required": RequiredSettings},
	}
}

// RequiredSettings names the connection parameters the hosted store needs.
var RequiredSettings = []string{"SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_TABLE"}

func validationError(message string, details map[string]any) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Code: CodeValidation, Message: message, Details: details}
}

func storeError(message string, err error) *Error {
	return &Error{Status: http.StatusBadGateway, Code: CodeStore, Message: message, Err: err}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}
