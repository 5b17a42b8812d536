package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/DocLoom/internal/types"
)

// ListTasks returns every task row. Tasks belong to an external
// collaborator; the core only reads them for the drift and gap analyzers.
func (s *Store) ListTasks(ctx context.Context) ([]types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, status, task_type, parent_id, epic_key, source_doc_id,
			COALESCE(project, ''), created_at, updated_at
		FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []types.Task{}
	for rows.Next() {
		var t types.Task
		var createdAt, updatedAt string
		var parentID, sourceDocID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Title, &t.Status, &t.Type, &parentID, &t.EpicKey,
			&sourceDocID, &t.Project, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			t.ParentID = &parentID.Int64
		}
		if sourceDocID.Valid {
			t.SourceDocID = &sourceDocID.Int64
		}
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
