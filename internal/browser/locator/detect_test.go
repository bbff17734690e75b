package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFields(t *testing.T) {
	doc := parseDoc(t, `<form>
		<label for="e">Email</label><input id="e" name="email" type="EMAIL">
		<label>Phone <input name="phone" type="tel"></label>
		<label>Country</label><select name="country"><option>DE</option></select>
		<textarea></textarea>
		<div contenteditable="true"><p>rich <b>text</b></p></div>
		<div contenteditable="false"></div>
		<input type="hidden" name="csrf"><input type="submit"><input type="button"><input type="reset"><input type="image">
		<input type="checkbox" name="agree"><input type="radio" name="plan">
		<label for="n">   </label><input id="n" name="nick">
		<input name="untyped">
		<template><input name="inert"></template>
	</form>`)

	fields := DetectFields(doc)

	type summary struct {
		Kind      FieldKind
		Tag       string
		InputKind string
		Name      *string
		Label     *string
	}
	var got []summary
	for _, f := range fields {
		got = append(got, summary{f.Kind, f.Tag, f.InputKind, f.Name, f.Label})
	}

	want := []summary{
		{KindInput, "input", "email", strPtr("email"), strPtr("Email")},
		{KindInput, "input", "tel", strPtr("phone"), strPtr("Phone")},
		{KindSelect, "select", "select", strPtr("country"), strPtr("Country")},
		{KindTextArea, "textarea", "textarea", nil, nil},
		{KindEditable, "div", "div", nil, nil},
		{KindInput, "input", "checkbox", strPtr("agree"), nil},
		{KindInput, "input", "radio", strPtr("plan"), nil},
		{KindInput, "input", "input", strPtr("nick"), nil},
		{KindInput, "input", "input", strPtr("untyped"), nil},
	}
	assert.Equal(t, want, got)
}

func TestDetectFields_LabelPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   *string
	}{
		{
			name:   "explicit beats enclosing",
			markup: `<label for="x">Explicit</label><label>Wrapper <input id="x"></label>`,
			want:   strPtr("Explicit"),
		},
		{
			name:   "enclosing beats preceding sibling",
			markup: `<label>Before</label><label>Around <input></label>`,
			want:   strPtr("Around"),
		},
		{
			name:   "first explicit label wins",
			markup: `<label for="x">One</label><label for="x">Two</label><input id="x">`,
			want:   strPtr("One"),
		},
		{
			name:   "whitespace is normalised",
			markup: "<label for=\"x\">\n  First\t\tname  </label><input id=\"x\">",
			want:   strPtr("First name"),
		},
		{
			name:   "nested control text is not part of the label",
			markup: `<label>Pick <select><option>Alpha</option></select></label>`,
			want:   strPtr("Pick"),
		},
		{
			name:   "only the immediately preceding element counts",
			markup: `<label>Far</label><span></span><input>`,
			want:   nil,
		},
		{
			name:   "text between label and control is skipped",
			markup: `<label>Near</label> some text <input>`,
			want:   strPtr("Near"),
		},
		{
			name:   "empty enclosing label is not a match",
			markup: `<label>Sibling</label><label><input></label>`,
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := DetectFields(parseDoc(t, tt.markup))
			require.Len(t, fields, 1)
			assert.Equal(t, tt.want, fields[0].Label)
		})
	}
}

func TestDetectFields_EditableValues(t *testing.T) {
	doc := parseDoc(t, `<div contenteditable></div><div contenteditable="PLAINTEXT-ONLY"></div><div contenteditable="inherit"></div>`)
	fields := DetectFields(doc)
	require.Len(t, fields, 2)
	for _, f := range fields {
		assert.Equal(t, KindEditable, f.Kind)
	}
}

func TestFieldKindString(t *testing.T) {
	assert.Equal(t, "input", KindInput.String())
	assert.Equal(t, "select", KindSelect.String())
	assert.Equal(t, "textarea", KindTextArea.String())
	assert.Equal(t, "editable", KindEditable.String())
}
