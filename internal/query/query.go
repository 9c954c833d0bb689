// Package query registers dataset files on the engine connection and runs
// queries against them.
package query

import (
	"fmt"
	"strings"
	"text/template"
)

// Query produces SQL for a registered alias.
type Query interface {
	render(alias string) (string, error)
}

// Template builds SQL from the alias.
type Template func(alias string) string

func (t Template) render(alias string) (string, error) {
	if t == nil {
		return "", fmt.Errorf("nil query template")
	}
	return t(alias), nil
}

// Literal is SQL used as is.
type Literal string

func (l Literal) render(string) (string, error) {
	return string(l), nil
}

// SQLTemplate is a text/template with the alias available as {{.Alias}}.
type SQLTemplate string

func (s SQLTemplate) render(alias string) (string, error) {
	tmpl, err := template.New("query").Option("missingkey=error").Parse(string(s))
	if err != nil {
		return "", fmt.Errorf("failed to parse query template: %w", err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Alias string }{alias}); err != nil {
		return "", fmt.Errorf("failed to render query template: %w", err)
	}
	return b.String(), nil
}

// Render returns the SQL q produces for alias.
func Render(q Query, alias string) (string, error) {
	if q == nil {
		return "", fmt.Errorf("nil query")
	}
	return q.render(alias)
}

// CountSQL counts the rows behind an alias.
var CountSQL = Template(func(alias string) string {
	return "SELECT COUNT(*) AS n FROM " + alias
})
