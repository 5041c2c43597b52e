package board

// ColumnState is the slice of a stored column the planner needs,
// ordered the way the store reads them: (position asc, id asc).
type ColumnState struct {
	ID       string
	Title    string
	Position int
}

// Rename migrates a legacy column in place, keeping its id and cards.
type Rename struct {
	ID       string
	Title    string
	Position int
}

// Insert adds a missing template column.
type Insert struct {
	Title    string
	Position int
}

// Reposition corrects the position of a template column that drifted.
type Reposition struct {
	ID       string
	Position int
}

// Plan is the set of changes that reconciles a project's columns with
// the template. Applying an empty plan is a no-op; applying the same
// plan twice produces the same column set.
type Plan struct {
	Renames     []Rename
	Inserts     []Insert
	Repositions []Reposition
	// PruneIDs are non-template columns that may be deleted, but only
	// while they still hold zero cards. The store re-checks the card
	// count at apply time; columns with cards always survive.
	PruneIDs []string
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.Renames) == 0 && len(p.Inserts) == 0 && len(p.Repositions) == 0 && len(p.PruneIDs) == 0
}

// BuildPlan reconciles the existing columns of one project with the
// template. With no existing columns it plans the full template. The
// caller must pass columns ordered by (position asc, id asc) so that
// repositioning picks stable winners when titles repeat.
func BuildPlan(existing []ColumnState, template Template) Plan {
	var plan Plan

	if len(existing) == 0 {
		for _, stage := range template {
			plan.Inserts = append(plan.Inserts, Insert{Title: stage.Title, Position: stage.Position})
		}
		return plan
	}

	titles := make(map[string]struct{}, len(existing))
	for _, column := range existing {
		titles[column.Title] = struct{}{}
	}

	// Legacy migration first: rename old-scheme columns onto their
	// template stage, unless that stage already exists. A legacy
	// column that loses the race keeps its title and falls through to
	// pruning (where its cards, if any, protect it).
	effective := make([]ColumnState, len(existing))
	copy(effective, existing)
	for i, column := range effective {
		stage, isLegacy := CanonicalFor(column.Title, template)
		if !isLegacy {
			continue
		}
		if _, taken := titles[stage.Title]; taken {
			continue
		}
		delete(titles, column.Title)
		titles[stage.Title] = struct{}{}
		effective[i].Title = stage.Title
		effective[i].Position = stage.Position
		plan.Renames = append(plan.Renames, Rename{ID: column.ID, Title: stage.Title, Position: stage.Position})
	}

	// Template reconciliation: insert missing stages, snap the first
	// column of each present stage back to the stage position.
	claimed := make(map[string]struct{}, len(template))
	for _, stage := range template {
		if _, present := titles[stage.Title]; !present {
			plan.Inserts = append(plan.Inserts, Insert{Title: stage.Title, Position: stage.Position})
			continue
		}
		for _, column := range effective {
			if column.Title != stage.Title {
				continue
			}
			if _, alreadyClaimed := claimed[column.ID]; alreadyClaimed {
				continue
			}
			claimed[column.ID] = struct{}{}
			if column.Position != stage.Position {
				plan.Repositions = append(plan.Repositions, Reposition{ID: column.ID, Position: stage.Position})
			}
			break
		}
	}

	// Everything left over is prunable while empty.
	for _, column := range effective {
		if _, isTemplate := claimed[column.ID]; isTemplate {
			continue
		}
		if template.Contains(column.Title) {
			// Duplicate of a template stage; the first one claimed the
			// stage, this one is an orphan.
			plan.PruneIDs = append(plan.PruneIDs, column.ID)
			continue
		}
		plan.PruneIDs = append(plan.PruneIDs, column.ID)
	}

	return plan
}

// Apply runs the plan over the column states, the way the store does
// against Postgres. It exists so the plan semantics can be exercised
// without a database; cardCounts guards pruning like the SQL does.
func Apply(existing []ColumnState, plan Plan, cardCounts map[string]int, newID func() string) []ColumnState {
	byID := make(map[string]*ColumnState, len(existing))
	result := make([]ColumnState, len(existing))
	copy(result, existing)
	for i := range result {
		byID[result[i].ID] = &result[i]
	}

	for _, rename := range plan.Renames {
		if column, ok := byID[rename.ID]; ok {
			column.Title = rename.Title
			column.Position = rename.Position
		}
	}
	for _, reposition := range plan.Repositions {
		if column, ok := byID[reposition.ID]; ok {
			column.Position = reposition.Position
		}
	}
	for _, insert := range plan.Inserts {
		result = append(result, ColumnState{ID: newID(), Title: insert.Title, Position: insert.Position})
	}

	prunable := make(map[string]struct{}, len(plan.PruneIDs))
	for _, id := range plan.PruneIDs {
		if cardCounts[id] == 0 {
			prunable[id] = struct{}{}
		}
	}
	kept := result[:0]
	for _, column := range result {
		if _, prune := prunable[column.ID]; !prune {
			kept = append(kept, column)
		}
	}
	return kept
}
