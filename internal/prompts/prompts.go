// Package prompts resolves the prompt template for each agent.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"agentarium/internal/agent"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Provider returns the template text for an agent name.
type Provider interface {
	Get(name string) (string, error)
}

// Map is a Provider backed by an in-memory map.
type Map map[string]string

// Get returns the template for name.
func (m Map) Get(name string) (string, error) {
	t, ok := m[name]
	if !ok {
		return "", &agent.TemplateNotFoundError{Name: name}
	}
	return t, nil
}

// Names returns the template names in sorted order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Embedded returns the built-in templates for every role.
func Embedded() Map {
	entries, err := fs.ReadDir(builtin, "templates")
	if err != nil {
		panic(fmt.Sprintf("prompts: reading embedded templates: %v", err))
	}

	m := make(Map, len(entries))
	for _, e := range entries {
		data, err := builtin.ReadFile("templates/" + e.Name())
		if err != nil {
			panic(fmt.Sprintf("prompts: reading %s: %v", e.Name(), err))
		}
		m[strings.TrimSuffix(e.Name(), ".tmpl")] = string(data)
	}
	return m
}

// DirProvider reads templates from a directory. For template "writer" it
// tries writer_agent_prompt.txt, then writer.tmpl. Files are Go templates
// keyed by role name, not plain system prompts.
type DirProvider struct {
	dir string
}

// NewDirProvider creates a provider rooted at dir.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

// Get returns the template for name.
func (p *DirProvider) Get(name string) (string, error) {
	for _, file := range []string{name + "_agent_prompt.txt", name + ".tmpl"} {
		data, err := os.ReadFile(filepath.Join(p.dir, file))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", &agent.TemplateNotFoundError{Name: name, Err: err}
		}
	}
	return "", &agent.TemplateNotFoundError{Name: name}
}

type bundleFile struct {
	Templates map[string]string `yaml:"templates"`
}

// LoadBundle reads a YAML file of the form
//
//	templates:
//	  writer: |
//	    Write about {{.problem}} ...
func LoadBundle(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt bundle: %w", err)
	}

	var b bundleFile
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse prompt bundle %s: %w", path, err)
	}
	if len(b.Templates) == 0 {
		return nil, fmt.Errorf("prompt bundle %s has no templates", path)
	}
	return Map(b.Templates), nil
}

// chain tries each provider in order.
type chain []Provider

// Chain returns a Provider that asks each provider in turn and returns the
// first template found. Errors other than a missing template stop the search.
func Chain(providers ...Provider) Provider {
	return chain(providers)
}

func (c chain) Get(name string) (string, error) {
	for _, p := range c {
		t, err := p.Get(name)
		if err == nil {
			return t, nil
		}
		var notFound *agent.TemplateNotFoundError
		if !errors.As(err, &notFound) || notFound.Err != nil {
			return "", err
		}
	}
	return "", &agent.TemplateNotFoundError{Name: name}
}

// Validate checks that every name resolves and parses as a template.
func Validate(p Provider, names ...string) error {
	var errs []error
	for _, name := range names {
		t, err := p.Get(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := agent.Render(t, agent.Fields{}); err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateRoles checks each role's template like Validate and also that it
// renders every field the role requires, both on a first pass and with all
// optional fields set.
func ValidateRoles(p Provider, roles ...agent.Role) error {
	var errs []error
	for _, role := range roles {
		t, err := p.Get(role.Template)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, names := range [][]string{role.Requires, role.Reads()} {
			out, err := agent.Render(t, markers(names))
			if err != nil {
				errs = append(errs, fmt.Errorf("template %s: %w", role.Template, err))
				break
			}
			if missing := firstUnused(out, role.Requires); missing != "" {
				errs = append(errs, fmt.Errorf("template %s does not use required field %q", role.Template, missing))
				break
			}
		}
	}
	return errors.Join(errs...)
}

func markers(names []string) agent.Fields {
	fields := make(agent.Fields, len(names))
	for _, name := range names {
		fields[name] = marker(name)
	}
	return fields
}

func marker(name string) string { return "<<" + name + ">>" }

func firstUnused(rendered string, names []string) string {
	for _, name := range names {
		if !strings.Contains(rendered, marker(name)) {
			return name
		}
	}
	return ""
}
