package store

import (
	"context"
	"fmt"

	"github.com/qngenius/qngenius/internal/model"
)

// ExportedQuestion pairs a question with the name of its unit.
type ExportedQuestion struct {
	model.Question
	UnitName string
}

// ExportSubjectQuestions returns every question of a subject together with
// its unit name, ordered by unit then question.
func (s *Store) ExportSubjectQuestions(ctx context.Context, subjectID int64) ([]ExportedQuestion, error) {
	sub, err := s.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("get subject %d: %w", subjectID, err)
	}
	if sub == nil {
		return nil, fmt.Errorf("subject %d not found", subjectID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+`, u.name
		 FROM questions q JOIN units u ON q.unit_id = u.id
		 WHERE u.subject_id = ? ORDER BY u.id, q.id`, subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExportedQuestion
	for rows.Next() {
		var e ExportedQuestion
		q := &e.Question
		if err := rows.Scan(&q.ID, &q.UnitID, &q.Text, &q.Type, &q.Marks, &q.Difficulty,
			&q.BloomLevel, &q.Keywords, &q.CreatedBy, &e.UnitName); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
