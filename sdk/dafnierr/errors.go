// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

// Package dafnierr defines the error taxonomy shared by the SDK services
// and turns raw platform responses into typed errors.
package dafnierr

import (
	"fmt"
)

// LoginError indicates rejected credentials or a terminally failed token
// refresh. Interactive flows loop instead of surfacing it; non-interactive
// flows print it and exit.
type LoginError struct {
	Message string
}

func (e *LoginError) Error() string {
	return "login failed: " + e.Message
}

// EndpointNotFoundError is raised for any 404 from the platform.
type EndpointNotFoundError struct {
	URL string
}

func (e *EndpointNotFoundError) Error() string {
	return fmt.Sprintf("could not find %s", e.URL)
}

// DAFNIError carries a human-readable error message reported by the
// platform itself. It is surfaced to the user verbatim. StatusCode keeps
// the original HTTP status so callers can tell a client-side rejection
// from a server-side failure.
type DAFNIError struct {
	Message    string
	StatusCode int
}

// IsRejection reports whether the platform refused the request itself (a
// 4xx), as opposed to failing while handling it.
func (e *DAFNIError) IsRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func (e *DAFNIError) Error() string {
	return e.Message
}

// ValidationError is raised when the platform reports a submitted metadata
// or definition document as invalid. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// HTTPError preserves the original status of a non-success response whose
// body yielded no platform error message.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s failed: %s", e.URL, e.Status)
}

// AuthenticationError indicates that a request failed authentication again
// after one refresh-and-retry cycle. Fatal to the current command.
type AuthenticationError struct {
	Detail string
}

func (e *AuthenticationError) Error() string {
	if e.Detail == "" {
		return "could not authenticate request after token refresh"
	}
	return "could not authenticate request after token refresh: " + e.Detail
}

// FileUploadError indicates a single file's upload failed beyond the retry
// budget. Fatal to the whole dataset upload.
type FileUploadError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *FileUploadError) Error() string {
	return fmt.Sprintf("upload of %s failed after %d attempts: %v", e.Name, e.Attempts, e.Err)
}

func (e *FileUploadError) Unwrap() error {
	return e.Err
}
