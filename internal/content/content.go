package content

import (
	"bytes"
	"errors"
	"html/template"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const MaxDisplayNameLength = 64

var (
	policy = bluemonday.UGCPolicy()
	md     = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Escape escapes special characters like "<" to become "&lt;".
// It matches the behavior of html/template and is safe for use in HTML attributes.
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// Render converts message Markdown to sanitized HTML. Raw HTML in the
// source is dropped by goldmark, the sanitizer handles what Markdown itself
// can produce (links with javascript: targets and the like).
func Render(text string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return Escape(text)
	}
	return strings.TrimSpace(Sanitize(buf.String()))
}

// DisplayName trims the name and checks it is usable. Names are not
// unique and not verified.
func DisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("display name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", errors.New("display name is too long")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", errors.New("display name contains control characters")
		}
	}
	return name, nil
}
