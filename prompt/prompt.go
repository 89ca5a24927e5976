// Package prompt assembles everything the model sees: the instruction
// preamble with the directive protocol and tool catalog, the per-user
// context, relevant memories and the trimmed conversation history.
package prompt

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Template represents a prompt template with variables
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate creates a new prompt template
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// Render renders the template with given variables
func (t *Template) Render(vars map[string]any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// Manager manages prompt templates
// All operations are thread-safe using RWMutex protection
type Manager struct {
	mu        sync.RWMutex // Protects templates map
	templates map[string]*Template
}

// NewManager creates a manager preloaded with the default templates.
func NewManager() *Manager {
	m := &Manager{
		templates: make(map[string]*Template),
	}
	for name, content := range defaultTemplates {
		// Defaults are compile-time constants; a parse failure is a bug.
		if err := m.RegisterString(name, content); err != nil {
			panic(fmt.Sprintf("prompt: bad default template %s: %v", name, err))
		}
	}
	return m
}

// Register adds a template to the manager, replacing any previous version.
func (m *Manager) Register(tmpl *Template) error {
	if tmpl == nil || tmpl.Name == "" {
		return fmt.Errorf("template name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tmpl.Name] = tmpl
	return nil
}

// RegisterString registers a template from string content
func (m *Manager) RegisterString(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	return m.Register(tmpl)
}

// Get retrieves a template by name
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %s not found", name)
	}
	return tmpl, nil
}

// Render renders a template by name with given variables
func (m *Manager) Render(name string, vars map[string]any) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(vars)
}

// List returns all registered template names
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	return names
}

// Default template names.
const (
	TemplateBasePrompt      = "base_prompt"
	TemplateSearchInjection = "search_injection"
)

var defaultTemplates = map[string]string{
	TemplateBasePrompt: `És o {{.Name}}, um assistente pessoal que fala português de Portugal. Responde de forma curta, natural e útil.

Quando precisares de executar uma ação, termina a resposta com uma única linha no formato:
ACTION: {"tool": "<nome>", "args": {<argumentos>}}

A linha ACTION tem de ser a última coisa na resposta e nunca deve aparecer sem necessidade.

Ferramentas disponíveis:
{{.Tools}}`,

	TemplateSearchInjection: `Aqui estão os resultados da pesquisa que encontraste. Usa APENAS estes dados para responder à pergunta do utilizador, em português de Portugal:

{{.Results}}`,
}
