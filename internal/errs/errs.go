// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs defines the stable error taxonomy returned across internal
// component boundaries. Codes are externally observable; messages are not.
package errs

import "fmt"

// Code is a stable error classification. See spec §7.
type Code string

const (
	CodeValidation          Code = "VALIDATION"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeDuplicateName       Code = "DUPLICATE_NAME"
	CodeRuntime             Code = "RUNTIME_ERROR"
	CodeBuildFailed         Code = "BUILD_FAILED"
	CodeCloneFailed         Code = "CLONE_FAILED"
	CodeTemplateNotFound    Code = "TEMPLATE_NOT_FOUND"
	CodePortExhausted       Code = "PORT_EXHAUSTED"
	CodeWorkspaceSetupError Code = "WORKSPACE_SETUP_FAILED"
	CodeIO                  Code = "IO_ERROR"
	CodeNoContainer         Code = "NO_CONTAINER"
	CodeInternal            Code = "INTERNAL"
)

// Error is the sum-type result carried across component boundaries instead
// of ad-hoc wrapped errors. Context always includes the sandbox id where
// relevant.
type Error struct {
	Code    Code
	Message string
	Context map[string]string
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Context)
}

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithContext returns a copy of e with the given context key set.
func (e *Error) WithContext(key, value string) *Error {
	ctx := make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Code: e.Code, Message: e.Message, Context: ctx}
}

// Wrap turns a plain error into an internal Error, preserving any existing
// Error's code.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if As(err, &e) {
		return e
	}
	return &Error{Code: code, Message: err.Error()}
}

// As mirrors errors.As for *Error without importing errors in callers that
// only deal with this package.
func As(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
