// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"errors"
	"fmt"
)

// Error classes surfaced by the analyser. Callers classify with errors.Is; the
// presentation layer maps them onto status codes (404, 422, 409, 500).
var (
	// ErrNotFound is returned when a referenced media object, index record or
	// keyframe does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed caller input, such as an empty
	// search phrase.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned by the record store when a write is made against
	// a stale revision. It is retried locally and never reaches a caller.
	ErrConflict = errors.New("revision conflict")
	// ErrInProgress is returned when an analysis for the same media name is
	// still running in this process.
	ErrInProgress = errors.New("analysis already in progress")
	// ErrRateLimited is returned by a record store that enforces a write ceiling.
	ErrRateLimited = errors.New("write rate exceeded")
)

// CollaboratorError wraps a failure returned by one of the external
// collaborators (object store, record store, classifier, transcoder,
// recognizer) with the operation that was being attempted.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError returns nil when err is nil, which lets call sites wrap
// unconditionally.
func NewCollaboratorError(collaborator string, op string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Collaborator: collaborator, Op: op, Err: err}
}

// NotFound builds an ErrNotFound for a media object name, using the message
// shown to API callers.
func NotFound(name string) error {
	return fmt.Errorf("an object with the name '%s' was not found in the object storage: %w", name, ErrNotFound)
}

// Validation builds an ErrValidation carrying a caller facing reason.
func Validation(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrValidation)
}
