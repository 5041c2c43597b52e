package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vetor/api/internal/board"
	"vetor/api/internal/util"
)

// EnsureColumns reconciles a project's columns with the template. It
// runs inside one transaction under an advisory lock keyed by the
// project id, so two requests provisioning the same project at once
// serialize instead of double-inserting stages.
func (s *PostgresStore) EnsureColumns(ctx context.Context, projectID string, template board.Template) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin provisioning tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, projectID); err != nil {
		return fmt.Errorf("lock project %s: %w", projectID, err)
	}

	existing, err := columnStates(ctx, tx, projectID)
	if err != nil {
		return err
	}

	plan := board.BuildPlan(existing, template)
	if plan.Empty() {
		return tx.Commit()
	}

	for _, rename := range plan.Renames {
		if _, err := tx.ExecContext(ctx, `
			UPDATE board_columns SET title=$2, position=$3 WHERE id=$1
		`, rename.ID, rename.Title, rename.Position); err != nil {
			return fmt.Errorf("migrate column %s: %w", rename.ID, err)
		}
	}
	for _, reposition := range plan.Repositions {
		if _, err := tx.ExecContext(ctx, `
			UPDATE board_columns SET position=$2 WHERE id=$1
		`, reposition.ID, reposition.Position); err != nil {
			return fmt.Errorf("reposition column %s: %w", reposition.ID, err)
		}
	}
	for _, insert := range plan.Inserts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_columns (id, project_id, title, position)
			VALUES ($1, $2, $3, $4)
		`, util.NewID("col"), projectID, insert.Title, insert.Position); err != nil {
			return fmt.Errorf("insert column %q: %w", insert.Title, err)
		}
	}
	for _, pruneID := range plan.PruneIDs {
		// The zero-card guard lives here, not in the plan: a card may
		// have arrived since the plan was built.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM board_columns c
			WHERE c.id=$1
			  AND c.project_id=$2
			  AND NOT EXISTS (SELECT 1 FROM cards WHERE column_id=c.id)
		`, pruneID, projectID); err != nil {
			return fmt.Errorf("prune column %s: %w", pruneID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit provisioning: %w", err)
	}
	return nil
}

func columnStates(ctx context.Context, tx *sql.Tx, projectID string) ([]board.ColumnState, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, title, position
		FROM board_columns
		WHERE project_id=$1
		ORDER BY position ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	defer rows.Close()

	states := make([]board.ColumnState, 0)
	for rows.Next() {
		var state board.ColumnState
		if err := rows.Scan(&state.ID, &state.Title, &state.Position); err != nil {
			return nil, fmt.Errorf("scan column state: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column states: %w", err)
	}
	return states, nil
}

func (s *PostgresStore) ListColumns(ctx context.Context, projectID string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, position
		FROM board_columns
		WHERE project_id=$1
		ORDER BY position ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	items := make([]Column, 0)
	for rows.Next() {
		var item Column
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Position); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetColumn(ctx context.Context, columnID string) (Column, error) {
	var column Column
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, position
		FROM board_columns
		WHERE id=$1
	`, columnID).Scan(&column.ID, &column.ProjectID, &column.Title, &column.Position)
	if err != nil {
		return Column{}, err
	}
	return column, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, cardID string) (Card, error) {
	var card Card
	err := s.db.QueryRowContext(ctx, `
		SELECT id, column_id, title, description, position
		FROM cards
		WHERE id=$1
	`, cardID).Scan(&card.ID, &card.ColumnID, &card.Title, &card.Description, &card.Position)
	if err != nil {
		return Card{}, err
	}
	return card, nil
}

func (s *PostgresStore) CountColumns(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM board_columns WHERE project_id=$1`, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count columns: %w", err)
	}
	return count, nil
}

// InsertColumnAppend creates a column at the end of the board and
// returns it. Position is the current column count.
func (s *PostgresStore) InsertColumnAppend(ctx context.Context, projectID, title string) (Column, error) {
	column := Column{ID: util.NewID("col"), ProjectID: projectID, Title: title}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO board_columns (id, project_id, title, position)
		SELECT $1, $2, $3, COUNT(*)
		FROM board_columns
		WHERE project_id=$2
		RETURNING position
	`, column.ID, projectID, title).Scan(&column.Position)
	if err != nil {
		return Column{}, fmt.Errorf("insert column: %w", err)
	}
	return column, nil
}

// ColumnBelongsToProject reports whether the column exists under the
// given project.
func (s *PostgresStore) ColumnBelongsToProject(ctx context.Context, columnID, projectID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM board_columns WHERE id=$1 AND project_id=$2)
	`, columnID, projectID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check column ownership: %w", err)
	}
	return ok, nil
}

func (s *PostgresStore) ListCardsForColumns(ctx context.Context, projectID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cd.id, cd.column_id, cd.title, cd.description, cd.position
		FROM cards cd
		JOIN board_columns c ON c.id = cd.column_id
		WHERE c.project_id=$1
		ORDER BY cd.position ASC, cd.id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	items := make([]Card, 0)
	for rows.Next() {
		var item Card
		if err := rows.Scan(&item.ID, &item.ColumnID, &item.Title, &item.Description, &item.Position); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return items, nil
}

// InsertCardAppend creates a card at the end of its column and returns
// it. Description is stored as NULL when empty.
func (s *PostgresStore) InsertCardAppend(ctx context.Context, columnID, title, description string) (Card, error) {
	card := Card{ID: util.NewID("crd"), ColumnID: columnID, Title: title}
	var stored sql.NullString
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cards (id, column_id, title, description, position)
		SELECT $1, $2, $3, NULLIF($4, ''), COUNT(*)
		FROM cards
		WHERE column_id=$2
		RETURNING description, position
	`, card.ID, columnID, title, description).Scan(&stored, &card.Position)
	if err != nil {
		return Card{}, fmt.Errorf("insert card: %w", err)
	}
	if stored.Valid {
		card.Description = &stored.String
	}
	return card, nil
}

// MoveCard relocates a card to a destination column and position in a
// single transaction. The moving card's row is locked first; the
// destination is shifted to make room, the card is placed, and both
// affected columns are renumbered to a dense zero-based sequence.
// Out-of-range target positions are tolerated because of the final
// compaction. Destination ownership is the caller's responsibility.
func (s *PostgresStore) MoveCard(ctx context.Context, cardID, toColumnID string, toPosition int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fromColumnID string
	err = tx.QueryRowContext(ctx, `
		SELECT column_id FROM cards WHERE id=$1 FOR UPDATE
	`, cardID).Scan(&fromColumnID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock card %s: %w", cardID, err)
	}

	// Make room. The moving card may be shifted too when it already
	// lives in the destination column; the relocation below overwrites
	// its position regardless.
	if _, err := tx.ExecContext(ctx, `
		UPDATE cards SET position = position + 1
		WHERE column_id=$1 AND position >= $2
	`, toColumnID, toPosition); err != nil {
		return fmt.Errorf("shift destination: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cards SET column_id=$2, position=$3 WHERE id=$1
	`, cardID, toColumnID, toPosition); err != nil {
		return fmt.Errorf("relocate card: %w", err)
	}

	if fromColumnID != toColumnID {
		if err := compactColumn(ctx, tx, fromColumnID); err != nil {
			return err
		}
	}
	if err := compactColumn(ctx, tx, toColumnID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit move: %w", err)
	}
	return nil
}

// compactColumn renumbers a column's cards to 0..n-1. Ties on position
// break by ascending id, which is insertion order.
func compactColumn(ctx context.Context, tx *sql.Tx, columnID string) error {
	_, err := tx.ExecContext(ctx, `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY position ASC, id ASC) - 1 AS dense_position
			FROM cards
			WHERE column_id=$1
		)
		UPDATE cards
		SET position = ranked.dense_position
		FROM ranked
		WHERE cards.id = ranked.id
	`, columnID)
	if err != nil {
		return fmt.Errorf("compact column %s: %w", columnID, err)
	}
	return nil
}

// DeleteCard removes a card after re-checking that its column belongs
// to the project, then closes the position gap it leaves behind.
func (s *PostgresStore) DeleteCard(ctx context.Context, cardID, projectID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var columnID string
	err = tx.QueryRowContext(ctx, `
		SELECT cd.column_id
		FROM cards cd
		JOIN board_columns c ON c.id = cd.column_id
		WHERE cd.id=$1 AND c.project_id=$2
		FOR UPDATE OF cd
	`, cardID, projectID).Scan(&columnID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock card %s for delete: %w", cardID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id=$1`, cardID); err != nil {
		return fmt.Errorf("delete card %s: %w", cardID, err)
	}

	if err := compactColumn(ctx, tx, columnID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}
