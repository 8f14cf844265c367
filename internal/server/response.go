package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/store"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// renderJSON writes v as JSON with the given status
func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// renderDocument writes a template or feature in the format the request asks for
func renderDocument(w http.ResponseWriter, r *http.Request, status int, v any) {
	format := document.FormatJSON
	if r.URL.Query().Get("format") == string(document.FormatYAML) {
		format = document.FormatYAML
	}
	data, err := document.Encode(v, format)
	if err != nil {
		renderError(w, err)
		return
	}
	contentType := "application/json; charset=utf-8"
	if format == document.FormatYAML {
		contentType = "application/yaml; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(data)
}

// renderArchive writes a zip archive as an attachment
func renderArchive(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.zip"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// renderError maps err onto a status code and writes it
func renderError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	response := ErrorResponse{
		Error:   errorCodeFromStatus(status),
		Message: err.Error(),
	}
	var te *terrors.TemplaterError
	if errors.As(err, &te) {
		response.Code = string(te.Code)
		response.Suggestion = te.Suggestion
	}
	renderJSON(w, status, response)
}

func renderBadRequest(w http.ResponseWriter, message string) {
	renderJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   errorCodeFromStatus(http.StatusBadRequest),
		Message: message,
	})
}

func statusFor(err error) int {
	if errors.Is(err, store.ErrInvalidName) {
		return http.StatusBadRequest
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	code, ok := terrors.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case terrors.NotFound:
		return http.StatusNotFound
	case terrors.AlreadyExists, terrors.FeatureAlreadyApplied, terrors.FeatureNotApplied:
		return http.StatusConflict
	case terrors.NoConvertingFormat, terrors.MalformedBundle, terrors.MalformedText, terrors.UnknownProfile:
		return http.StatusBadRequest
	case terrors.PluginFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	default:
		return "internal_error"
	}
}
