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

package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelSelector() Selector {
	return ElemMatch("classification", Or(Eq("class", "cat"), Eq("class", "dog")))
}

func TestBigQueryTranslation(t *testing.T) {
	tr := newTranslator(bigQueryDialect{})
	where, err := tr.where("doc", labelSelector())
	require.NoError(t, err)
	assert.Equal(t,
		"EXISTS(SELECT 1 FROM UNNEST(JSON_QUERY_ARRAY(doc, '$.classification')) AS e0 WHERE (JSON_VALUE(e0, '$.class') = @p0 OR JSON_VALUE(e0, '$.class') = @p1))",
		where)
	assert.Equal(t, []any{"cat", "dog"}, tr.args)

	tr = newTranslator(bigQueryDialect{})
	where, err = tr.where("doc", Eq("analysing.frames", true))
	require.NoError(t, err)
	assert.Equal(t, "JSON_VALUE(doc, '$.analysing.frames') = @p0", where)
	assert.Equal(t, []any{"true"}, tr.args)
}

func TestPostgresTranslation(t *testing.T) {
	tr := newTranslator(postgresDialect{})
	where, err := tr.where("doc", labelSelector())
	require.NoError(t, err)
	assert.Equal(t,
		"EXISTS(SELECT 1 FROM jsonb_array_elements(COALESCE(doc #> '{classification}', '[]'::jsonb)) AS e0(elem) WHERE (e0.elem #>> '{class}' = $1 OR e0.elem #>> '{class}' = $2))",
		where)

	tr = newTranslator(postgresDialect{})
	where, err = tr.where("doc", Exists("uuid"))
	require.NoError(t, err)
	assert.Equal(t, "doc #> '{uuid}' IS NOT NULL", where)
	assert.Empty(t, tr.args)
}

func TestTranslationEdgeCases(t *testing.T) {
	tr := newTranslator(postgresDialect{})

	where, err := tr.where("doc", All())
	require.NoError(t, err)
	assert.Equal(t, "TRUE", where)

	where, err = tr.where("doc", Or())
	require.NoError(t, err)
	assert.Equal(t, "FALSE", where)

	_, err = tr.where("doc", Eq("name'; DROP TABLE x; --", "a"))
	assert.Error(t, err)

	_, err = tr.where("doc", Eq("name", []string{"a"}))
	assert.Error(t, err)
}
