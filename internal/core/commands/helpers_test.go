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

package commands_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyser/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"github.com/stretchr/testify/require"
)

// newContext returns a chain context holding in as the command input.
func newContext(in interface{}) cor.Context {
	ctx := cor.NewBaseContext()
	ctx.SetContext(context.Background())
	if in != nil {
		ctx.Add(cor.CtxIn, in)
	}
	return ctx
}

// withParent stores the parent id the persisters write against.
func withParent(ctx cor.Context, parent string) cor.Context {
	return ctx.Add(commands.GetParentParameterName(), parent)
}

// writeFile creates a file with content in a test temp directory.
func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}
