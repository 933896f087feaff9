// Package errs provides coded errors shared by every layer of the pipeline.
//
// Codes follow a "component.operation.reason" layout. The trailing reason
// drives the HTTP status the server reports for the error.
package errs

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigInvalid Code = "config.validate.invalid_value"
	CodeConfigRead    Code = "config.load.read.failure"

	CodeLoaderNotFound    Code = "loader.file.not_found"
	CodeLoaderUnsupported Code = "loader.file.invalid_format"
	CodeLoaderEmpty       Code = "loader.content.invalid_input"
	CodeLoaderFailure     Code = "loader.read.failure"

	CodeChunkerFailure Code = "chunker.split.failure"

	CodeEmbeddingInvalidInput Code = "embedding.request.invalid_input"
	CodeEmbeddingUnauthorized Code = "embedding.auth.unauthorized"
	CodeEmbeddingUpstream     Code = "embedding.upstream.failure"
	CodeEmbeddingBadResponse  Code = "embedding.upstream.bad_response"

	CodeStoreInvalidInput Code = "vectorstore.request.invalid_input"
	CodeStoreFailure      Code = "vectorstore.backend.failure"

	CodeIndexInvalidInput Code = "index.query.invalid_input"
	CodeIndexEmpty        Code = "index.build.invalid_input"

	CodeLLMUnauthorized  Code = "llm.auth.unauthorized"
	CodeLLMUpstream      Code = "llm.upstream.failure"
	CodeLLMEmptyResponse Code = "llm.upstream.empty_response"
	CodeLLMPrompt        Code = "llm.prompt.failure"

	CodeServiceInvalidInput Code = "service.request.invalid_input"
	CodeServiceMissingKey   Code = "service.auth.unauthorized"

	CodeServerInvalidInput Code = "server.request.invalid_input"
	CodeServerTooLarge     Code = "server.upload.too_large"
	CodeServerInternal     Code = "server.internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the deepest code in the chain, or "" for plain errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	switch reason(CodeOf(err)) {
	case "invalid_input", "invalid_value", "invalid_format":
		return true
	}
	return false
}

func IsUnauthorized(err error) bool {
	return reason(CodeOf(err)) == "unauthorized"
}

func IsUpstream(err error) bool {
	return strings.Contains(string(CodeOf(err)), ".upstream.")
}

// HTTPStatus maps an error to the status the HTTP front end reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case HasCode(err, CodeServerTooLarge):
		return http.StatusRequestEntityTooLarge
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func reason(code Code) string {
	s := string(code)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func flatten(fields []Attr) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}
