// Package board holds the column template and the provisioning plan
// logic for project boards. Everything here is pure; the store applies
// the plans it produces.
package board

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Stage is one column of the template: a title at a fixed position.
type Stage struct {
	Title    string
	Position int
}

// Template is the ordered set of lifecycle columns every project
// board must carry. It is read-only configuration.
type Template []Stage

// defaultStages is the nine-stage lifecycle used by the studio.
var defaultStages = []string{
	"Início",
	"Discussão",
	"Tipo de Projeto",
	"1ª Fase",
	"2ª Fase",
	"Finalização",
	"Faturamento",
	"Concluído",
	"Não aceito",
}

// legacyTitles maps the old three-stage naming scheme onto the current
// template. Columns carrying these titles are renamed in place so
// their cards survive the migration.
var legacyTitles = map[string]string{
	"A fazer":      "Início",
	"Em andamento": "1ª Fase",
	"Finalizado":   "Concluído",
}

// DefaultTemplate returns the built-in lifecycle template.
func DefaultTemplate() Template {
	return fromTitles(defaultStages)
}

// LoadTemplate reads a template from a JSON file holding an array of
// stage titles, in display order. An empty path yields the default.
func LoadTemplate(path string) (Template, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTemplate(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board template: %w", err)
	}
	var titles []string
	if err := json.Unmarshal(raw, &titles); err != nil {
		return nil, fmt.Errorf("parse board template: %w", err)
	}
	seen := make(map[string]struct{}, len(titles))
	cleaned := make([]string, 0, len(titles))
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, fmt.Errorf("board template: blank stage title")
		}
		if _, dup := seen[title]; dup {
			return nil, fmt.Errorf("board template: duplicate stage %q", title)
		}
		seen[title] = struct{}{}
		cleaned = append(cleaned, title)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("board template: no stages")
	}
	return fromTitles(cleaned), nil
}

func fromTitles(titles []string) Template {
	stages := make(Template, 0, len(titles))
	for i, title := range titles {
		stages = append(stages, Stage{Title: title, Position: i})
	}
	return stages
}

// Contains reports whether title is one of the template stages.
func (t Template) Contains(title string) bool {
	for _, stage := range t {
		if stage.Title == title {
			return true
		}
	}
	return false
}

// CanonicalFor resolves a legacy column title to its current stage. The
// bool is false when the title is not part of the legacy scheme.
func CanonicalFor(title string, t Template) (Stage, bool) {
	canonical, ok := legacyTitles[title]
	if !ok {
		return Stage{}, false
	}
	for _, stage := range t {
		if stage.Title == canonical {
			return stage, true
		}
	}
	return Stage{}, false
}
