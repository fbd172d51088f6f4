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
	"fmt"
	"regexp"
	"strings"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dialect renders the JSON operators of one SQL engine.
type dialect interface {
	// placeholder returns the n-th (zero based) bind parameter.
	placeholder(n int) string
	// text extracts a scalar at path from a JSON expression as text.
	text(expr string, path []string) string
	// present tests that path exists in a JSON expression.
	present(expr string, path []string) string
	// elements returns a FROM item iterating the array at path, and the
	// expression naming the current element.
	elements(expr string, path []string, alias string) (from string, element string)
}

// bigQueryDialect targets GoogleSQL with a JSON column.
type bigQueryDialect struct{}

func (bigQueryDialect) placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (bigQueryDialect) text(expr string, path []string) string {
	return fmt.Sprintf("JSON_VALUE(%s, '$.%s')", expr, strings.Join(path, "."))
}

func (bigQueryDialect) present(expr string, path []string) string {
	return fmt.Sprintf("JSON_QUERY(%s, '$.%s') IS NOT NULL", expr, strings.Join(path, "."))
}

func (bigQueryDialect) elements(expr string, path []string, alias string) (string, string) {
	return fmt.Sprintf("UNNEST(JSON_QUERY_ARRAY(%s, '$.%s')) AS %s", expr, strings.Join(path, "."), alias), alias
}

// postgresDialect targets PostgreSQL with a JSONB column.
type postgresDialect struct{}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n+1) }

func (postgresDialect) text(expr string, path []string) string {
	return fmt.Sprintf("%s #>> '{%s}'", expr, strings.Join(path, ","))
}

func (postgresDialect) present(expr string, path []string) string {
	return fmt.Sprintf("%s #> '{%s}' IS NOT NULL", expr, strings.Join(path, ","))
}

func (postgresDialect) elements(expr string, path []string, alias string) (string, string) {
	from := fmt.Sprintf("jsonb_array_elements(COALESCE(%s #> '{%s}', '[]'::jsonb)) AS %s(elem)", expr, strings.Join(path, ","), alias)
	return from, alias + ".elem"
}

// translator turns a Selector into a WHERE clause and its bind arguments.
type translator struct {
	dialect dialect
	args    []any
	aliases int
}

func newTranslator(d dialect) *translator {
	return &translator{dialect: d}
}

// where renders sel against the JSON column.
func (t *translator) where(column string, sel Selector) (string, error) {
	if sel == nil {
		return "TRUE", nil
	}
	switch s := sel.(type) {
	case allSelector:
		return "TRUE", nil
	case eqSelector:
		path, err := splitField(s.field)
		if err != nil {
			return "", err
		}
		value, ok := scalarText(s.value)
		if !ok {
			return "", fmt.Errorf("unsupported value %T for field %q", s.value, s.field)
		}
		t.args = append(t.args, value)
		return fmt.Sprintf("%s = %s", t.dialect.text(column, path), t.dialect.placeholder(len(t.args)-1)), nil
	case existsSelector:
		path, err := splitField(s.field)
		if err != nil {
			return "", err
		}
		return t.dialect.present(column, path), nil
	case orSelector:
		if len(s.selectors) == 0 {
			return "FALSE", nil
		}
		parts := make([]string, 0, len(s.selectors))
		for _, inner := range s.selectors {
			clause, err := t.where(column, inner)
			if err != nil {
				return "", err
			}
			parts = append(parts, clause)
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case elemMatchSelector:
		path, err := splitField(s.field)
		if err != nil {
			return "", err
		}
		alias := fmt.Sprintf("e%d", t.aliases)
		t.aliases++
		from, element := t.dialect.elements(column, path, alias)
		inner, err := t.where(element, s.inner)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("EXISTS(SELECT 1 FROM %s WHERE %s)", from, inner), nil
	}
	return "", fmt.Errorf("unsupported selector %T", sel)
}

func splitField(field string) ([]string, error) {
	parts := strings.Split(field, ".")
	for _, p := range parts {
		if !fieldPattern.MatchString(p) {
			return nil, fmt.Errorf("invalid field name %q", field)
		}
	}
	return parts, nil
}
