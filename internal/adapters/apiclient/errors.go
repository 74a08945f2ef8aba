package apiclient

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/kominfo-unma/canva-claim-api/internal/adapters/httpapi"
	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
)

// decodeError turns an error envelope back into the application error the server mapped
// it from, so flows show the server's message verbatim.
func decodeError(resp *http.Response, fallback string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env httpapi.ErrorResponse
	if err := json.Unmarshal(raw, &env); err != nil || env.Error.Code == "" {
		msg := fallback
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &claims.Error{Status: resp.StatusCode, Code: claims.CodeStore, Message: msg}
	}

	body := env.Error
	switch body.Code {
	case sessions.CodeAuth, httpapi.CodeUnauthorized:
		return &sessions.Error{Status: resp.StatusCode, Code: sessions.CodeAuth, Message: body.Message}
	}
	ce := &claims.Error{Status: resp.StatusCode, Code: body.Code, Message: body.Message}
	if d, err := body.Details.Get(); err == nil {
		ce.Details = d
	}
	return ce
}

// transportError wraps a network or decoding failure with the operation's user message.
func transportError(message string, err error) error {
	return &claims.Error{Status: http.StatusBadGateway, Code: claims.CodeStore, Message: message, Err: err}
}
