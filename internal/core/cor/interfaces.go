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

// Package cor (Chain of Responsibility) is the small workflow framework the
// analysis pipelines are assembled from. A Chain runs Commands in order over a
// shared Context, piping each command's output into the next command's input
// and stopping at the first failure.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Keys of the primary data flow between the commands of a chain.
const (
	// CtxIn holds the input of the command about to run. The chain fills it
	// with the previous command's output.
	CtxIn = "__IN__"
	// CtxOut is where a command leaves its output.
	CtxOut = "__OUT__"
)

// Context is the property bag shared by the commands of one workflow run:
// values keyed by name, the failures recorded so far and the scratch files
// to delete when the run ends. It is safe for concurrent goroutines, since
// the keyframe workers record into it in parallel.
type Context interface {
	SetContext(context context.Context)
	GetContext() context.Context

	// Add stores value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context
	Get(key string) interface{}
	Remove(key string)

	// AddError records a failure against the command that hit it. Err joins
	// every recorded failure, or is nil.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
	Err() error

	// AddTempFile registers a scratch file for Close to delete.
	AddTempFile(file string)
	GetTempFiles() []string
	Close()
}

// Executable is anything that can run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one named step of a workflow. It reads GetInputParam, writes
// GetOutputParam, and reports its result through Succeed or Fail so the
// per-command counters stay in step with the recorded errors.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable reports whether the context holds what the command needs.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	Succeed(context Context)
	Fail(context Context, err error)
}

// Chain is a Command made of other commands.
type Chain interface {
	Command

	// ContinueOnFailure makes the chain keep running after a failed command.
	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
