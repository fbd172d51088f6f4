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
	"strconv"
)

// Selector filters documents. Build one with Eq, Or, ElemMatch, Exists or All.
type Selector interface {
	Match(doc Document) bool
	selector()
}

type eqSelector struct {
	field string
	value any
}

type orSelector struct {
	selectors []Selector
}

type elemMatchSelector struct {
	field string
	inner Selector
}

type existsSelector struct {
	field string
}

type allSelector struct{}

// Eq matches documents whose field equals value. Values compare by their
// scalar text form, so "true" and true are equal.
func Eq(field string, value any) Selector {
	return eqSelector{field: field, value: value}
}

// Or matches documents matching any of the selectors. An empty Or matches
// nothing.
func Or(selectors ...Selector) Selector {
	return orSelector{selectors: selectors}
}

// ElemMatch matches documents whose array field holds at least one object
// element matching inner. Paths inside inner are relative to the element.
func ElemMatch(field string, inner Selector) Selector {
	return elemMatchSelector{field: field, inner: inner}
}

// Exists matches documents where the field is present.
func Exists(field string) Selector {
	return existsSelector{field: field}
}

// All matches every document.
func All() Selector {
	return allSelector{}
}

func (eqSelector) selector()        {}
func (orSelector) selector()        {}
func (elemMatchSelector) selector() {}
func (existsSelector) selector()    {}
func (allSelector) selector()       {}

func (s eqSelector) Match(doc Document) bool {
	v, ok := doc.Lookup(s.field)
	if !ok {
		return false
	}
	left, lok := scalarText(v)
	right, rok := scalarText(s.value)
	return lok && rok && left == right
}

func (s orSelector) Match(doc Document) bool {
	for _, sel := range s.selectors {
		if sel.Match(doc) {
			return true
		}
	}
	return false
}

func (s elemMatchSelector) Match(doc Document) bool {
	v, ok := doc.Lookup(s.field)
	if !ok {
		return false
	}
	elements, ok := v.([]any)
	if !ok {
		return false
	}
	for _, e := range elements {
		if obj, ok := asObject(e); ok && s.inner.Match(Document(obj)) {
			return true
		}
	}
	return false
}

func (s existsSelector) Match(doc Document) bool {
	_, ok := doc.Lookup(s.field)
	return ok
}

func (allSelector) Match(Document) bool {
	return true
}

// scalarText renders a JSON scalar the way JSON_VALUE and #>> do.
func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}
