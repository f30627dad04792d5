// Package templates renders the release notes, release email and per-output
// build info files. Built-in templates are embedded; a file of the same name
// under templates/ in the search paths overrides one.
package templates

import (
	"embed"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"text/template"

	"fwrelease/pkg/fileutil"
)

const (
	ReleaseNotes = "release-notes"
	EmailBody    = "email-body"
	BuildInfo    = "build-info"
)

//go:embed files/*.template
var builtin embed.FS

// TemplateData holds values for {{KEY}} placeholders.
type TemplateData map[string]string

// OverridePaths lists where an override for name is looked for, in order:
// ./templates, ./config/templates and /etc/fwrelease/templates.
func OverridePaths(name string) []string {
	return fileutil.ConfigSearchPaths(path.Join("templates", name+".template"))
}

// GetTemplate returns the source of the named template, preferring the first
// override found on disk.
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, p := range OverridePaths(name) {
		if content, err := os.ReadFile(p); err == nil {
			return string(content), nil
		}
	}

	content, err := builtin.ReadFile(path.Join("files", name+".template"))
	if err != nil {
		return "", fmt.Errorf("built-in template %s: %w", name, err)
	}
	return string(content), nil
}

// RenderString fills {{KEY}} placeholders in an inline template such as the
// configured mail subject. Unknown placeholders are left as they are.
func RenderString(tmpl string, data TemplateData) string {
	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Render executes the named text/template with data.
func Render(name string, data any) (string, error) {
	src, err := GetTemplate(name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Parse(src)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return sb.String(), nil
}

// ListTemplates returns the names of the built-in templates.
func ListTemplates() []string {
	return []string{ReleaseNotes, EmailBody, BuildInfo}
}

func ValidateTemplate(name string) bool {
	return slices.Contains(ListTemplates(), name)
}
