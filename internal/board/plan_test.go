package board

import (
	"fmt"
	"sort"
	"testing"
)

func stateFromTemplate(t Template) []ColumnState {
	columns := make([]ColumnState, 0, len(t))
	for i, stage := range t {
		columns = append(columns, ColumnState{ID: fmt.Sprintf("col_%02d", i), Title: stage.Title, Position: stage.Position})
	}
	return columns
}

func sortedByPosition(columns []ColumnState) []ColumnState {
	out := make([]ColumnState, len(columns))
	copy(out, columns)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func TestBuildPlanFreshProjectInsertsFullTemplate(t *testing.T) {
	template := DefaultTemplate()
	plan := BuildPlan(nil, template)

	if len(plan.Inserts) != len(template) {
		t.Fatalf("expected %d inserts, got %d", len(template), len(plan.Inserts))
	}
	if len(plan.Renames) != 0 || len(plan.Repositions) != 0 || len(plan.PruneIDs) != 0 {
		t.Fatalf("fresh project plan should only insert: %+v", plan)
	}
	for i, insert := range plan.Inserts {
		if insert.Title != template[i].Title || insert.Position != template[i].Position {
			t.Fatalf("insert %d = %+v, want %+v", i, insert, template[i])
		}
	}
}

func TestBuildPlanIsIdempotentOnTemplatedProject(t *testing.T) {
	template := DefaultTemplate()
	columns := stateFromTemplate(template)

	plan := BuildPlan(columns, template)
	if !plan.Empty() {
		t.Fatalf("templated project should produce an empty plan, got %+v", plan)
	}
}

func TestBuildPlanMigratesLegacyColumnsInPlace(t *testing.T) {
	template := DefaultTemplate()
	columns := []ColumnState{
		{ID: "col_a", Title: "A fazer", Position: 0},
		{ID: "col_b", Title: "Em andamento", Position: 1},
		{ID: "col_c", Title: "Finalizado", Position: 2},
	}

	plan := BuildPlan(columns, template)

	wantRenames := map[string]Rename{
		"col_a": {ID: "col_a", Title: "Início", Position: 0},
		"col_b": {ID: "col_b", Title: "1ª Fase", Position: 3},
		"col_c": {ID: "col_c", Title: "Concluído", Position: 7},
	}
	if len(plan.Renames) != len(wantRenames) {
		t.Fatalf("expected %d renames, got %+v", len(wantRenames), plan.Renames)
	}
	for _, rename := range plan.Renames {
		want, ok := wantRenames[rename.ID]
		if !ok || rename != want {
			t.Fatalf("rename %+v, want %+v", rename, want)
		}
	}
	if len(plan.Inserts) != len(template)-3 {
		t.Fatalf("expected %d inserts for the missing stages, got %d", len(template)-3, len(plan.Inserts))
	}
	if len(plan.PruneIDs) != 0 {
		t.Fatalf("legacy columns must never be pruned, got %v", plan.PruneIDs)
	}
}

func TestBuildPlanSkipsLegacyRenameWhenStageExists(t *testing.T) {
	template := DefaultTemplate()
	columns := []ColumnState{
		{ID: "col_new", Title: "Início", Position: 0},
		{ID: "col_old", Title: "A fazer", Position: 1},
	}

	plan := BuildPlan(columns, template)

	for _, rename := range plan.Renames {
		if rename.ID == "col_old" {
			t.Fatalf("legacy column must not steal an existing stage: %+v", rename)
		}
	}
	found := false
	for _, id := range plan.PruneIDs {
		if id == "col_old" {
			found = true
		}
	}
	if !found {
		t.Fatalf("unrenamed legacy column should be prunable, got %v", plan.PruneIDs)
	}
}

func TestBuildPlanRepositionsDriftedColumns(t *testing.T) {
	template := DefaultTemplate()
	columns := stateFromTemplate(template)
	columns[4].Position = 42

	plan := BuildPlan(columns, template)

	if len(plan.Repositions) != 1 {
		t.Fatalf("expected one reposition, got %+v", plan.Repositions)
	}
	if plan.Repositions[0].ID != columns[4].ID || plan.Repositions[0].Position != template[4].Position {
		t.Fatalf("reposition %+v, want id=%s position=%d", plan.Repositions[0], columns[4].ID, template[4].Position)
	}
}

func TestBuildPlanMarksNonTemplateColumnsPrunable(t *testing.T) {
	template := DefaultTemplate()
	columns := append(stateFromTemplate(template), ColumnState{ID: "col_extra", Title: "Rascunhos", Position: 9})

	plan := BuildPlan(columns, template)

	if len(plan.PruneIDs) != 1 || plan.PruneIDs[0] != "col_extra" {
		t.Fatalf("expected col_extra prunable, got %v", plan.PruneIDs)
	}
	if len(plan.Inserts) != 0 || len(plan.Renames) != 0 || len(plan.Repositions) != 0 {
		t.Fatalf("only pruning expected, got %+v", plan)
	}
}

func TestBuildPlanPrunesDuplicateTemplateColumns(t *testing.T) {
	template := DefaultTemplate()
	columns := append(stateFromTemplate(template), ColumnState{ID: "col_dup", Title: "Início", Position: 12})

	plan := BuildPlan(columns, template)

	if len(plan.PruneIDs) != 1 || plan.PruneIDs[0] != "col_dup" {
		t.Fatalf("duplicate stage column should be pruned, got %v", plan.PruneIDs)
	}
}

func TestApplyEstablishesTemplateInvariant(t *testing.T) {
	template := DefaultTemplate()
	columns := []ColumnState{
		{ID: "col_a", Title: "A fazer", Position: 0},
		{ID: "col_junk", Title: "Ideias antigas", Position: 1},
		{ID: "col_keep", Title: "Notas do cliente", Position: 2},
	}
	cardCounts := map[string]int{"col_a": 2, "col_keep": 1}

	nextID := 0
	newID := func() string {
		nextID++
		return fmt.Sprintf("gen_%02d", nextID)
	}

	plan := BuildPlan(columns, template)
	after := Apply(columns, plan, cardCounts, newID)

	byTitle := make(map[string]ColumnState, len(after))
	for _, column := range after {
		byTitle[column.Title] = column
	}
	for _, stage := range template {
		column, ok := byTitle[stage.Title]
		if !ok {
			t.Fatalf("stage %q missing after apply", stage.Title)
		}
		if column.Position != stage.Position {
			t.Fatalf("stage %q at position %d, want %d", stage.Title, column.Position, stage.Position)
		}
	}
	if byTitle["Início"].ID != "col_a" {
		t.Fatalf("legacy column with cards should have become Início, got %+v", byTitle["Início"])
	}
	if _, kept := byTitle["Notas do cliente"]; !kept {
		t.Fatal("non-template column with cards must survive pruning")
	}
	for _, column := range after {
		if column.ID == "col_junk" {
			t.Fatal("empty non-template column should have been pruned")
		}
	}
}

func TestApplyTwiceIsStable(t *testing.T) {
	template := DefaultTemplate()
	nextID := 0
	newID := func() string {
		nextID++
		return fmt.Sprintf("gen_%02d", nextID)
	}

	first := Apply(nil, BuildPlan(nil, template), nil, newID)
	first = sortedByPosition(first)

	secondPlan := BuildPlan(first, template)
	if !secondPlan.Empty() {
		t.Fatalf("second provisioning pass should be a no-op, got %+v", secondPlan)
	}
	second := Apply(first, secondPlan, nil, newID)
	if len(second) != len(first) {
		t.Fatalf("column count changed on second apply: %d -> %d", len(first), len(second))
	}
	for i := range second {
		if second[i] != first[i] {
			t.Fatalf("column %d changed on second apply: %+v -> %+v", i, first[i], second[i])
		}
	}
}
