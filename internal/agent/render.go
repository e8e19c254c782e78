package agent

import (
	"fmt"
	"strings"
	"text/template"
)

// Render substitutes fields into a prompt template. Placeholders use
// text/template syntax keyed by field name, e.g. {{.summary}}. Unknown
// placeholders render as the empty string.
func Render(tmpl string, fields Fields) (string, error) {
	t, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	data := make(map[string]string, len(fields))
	for k, v := range fields {
		data[k] = v
	}

	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return b.String(), nil
}
