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

package cor

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
)

// BaseChain runs its commands in order.
//
// Logic Flow:
//  1. A span named "<chain>_execute" wraps the run.
//  2. Before each command, if an earlier command failed and the chain does
//     not continue on failure, the run stops.
//  3. A command that is executable runs under its own child span; one that is
//     not is skipped and its span marked as an error.
//  4. After each command its CtxOut value becomes the next command's CtxIn.
//     A failed command that left no output keeps its CtxIn in place, so with
//     ContinueOnFailure the next command runs on the same input.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// IsExecutable only needs a Go context; the first command checks the input.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context.GetContext() != nil
}

func (c *BaseChain) Execute(chCtx Context) {
	outerCtx, chainSpan := c.Tracer.Start(chCtx.GetContext(), fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()

	for _, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			slog.DebugContext(outerCtx, "chain stopped after failure", "chain", c.GetName(), "skipped", command.GetName())
			break
		}

		errorsBefore := len(chCtx.GetErrors())
		commandCtx, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		if command.IsExecutable(chCtx) {
			chCtx.SetContext(commandCtx)
			command.Execute(chCtx)
			chCtx.SetContext(outerCtx)
		} else {
			commandSpan.SetStatus(codes.Error, fmt.Sprintf("command not executable: %s", command.GetName()))
		}
		if chCtx.HasErrors() {
			commandSpan.SetStatus(codes.Error, "command failed")
		} else {
			commandSpan.SetStatus(codes.Ok, "")
		}
		commandSpan.End()

		// A failed command without output leaves its input for the next one.
		failed := len(chCtx.GetErrors()) > errorsBefore
		if output := chCtx.Get(CtxOut); output != nil {
			chCtx.Add(CtxIn, output)
		} else if !failed {
			chCtx.Remove(CtxIn)
		}
		chCtx.Remove(CtxOut)
	}

	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed")
	} else {
		chainSpan.SetStatus(codes.Ok, "")
	}
}
