package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/qngenius/qngenius/internal/model"
)

// CreateBlueprint stores a blueprint with its sections and criteria in one
// transaction. Section and criterion order is preserved.
func (s *Store) CreateBlueprint(ctx context.Context, bp model.Blueprint) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO blueprints (subject_id, exam_type_id, title, total_marks, duration_minutes, is_custom)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bp.SubjectID, bp.ExamTypeID, bp.Title, bp.TotalMarks, bp.DurationMinutes, bp.Custom,
	)
	if err != nil {
		return 0, err
	}
	bpID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, sec := range bp.Sections {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO blueprint_sections (blueprint_id, name, position) VALUES (?, ?, ?)`,
			bpID, sec.Name, i,
		)
		if err != nil {
			return 0, fmt.Errorf("insert section %d: %w", i+1, err)
		}
		secID, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		for j, c := range sec.Criteria {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO blueprint_criteria
				 (section_id, position, question_type, number_of_questions, marks_per_question, difficulty, bloom_level)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				secID, j, c.QuestionType, c.Count, c.MarksPerQuestion, c.Difficulty, c.BloomLevel,
			)
			if err != nil {
				return 0, fmt.Errorf("insert criterion %d of section %d: %w", j+1, i+1, err)
			}
		}
	}

	return bpID, tx.Commit()
}

// GetBlueprint returns a blueprint with sections and criteria in paper order,
// or nil if it does not exist.
func (s *Store) GetBlueprint(ctx context.Context, id int64) (*model.Blueprint, error) {
	var bp model.Blueprint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, exam_type_id, title, total_marks, duration_minutes, is_custom
		 FROM blueprints WHERE id = ?`, id,
	).Scan(&bp.ID, &bp.SubjectID, &bp.ExamTypeID, &bp.Title, &bp.TotalMarks, &bp.DurationMinutes, &bp.Custom)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sections, err := s.listSections(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	criteria, err := s.GetCriteria(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}

	index := make(map[int64]int, len(sections))
	for i, sec := range sections {
		index[sec.ID] = i
	}
	for _, c := range criteria {
		if i, ok := index[c.SectionID]; ok {
			sections[i].Criteria = append(sections[i].Criteria, c)
		}
	}
	bp.Sections = sections
	return &bp, nil
}

func (s *Store) listSections(ctx context.Context, blueprintID int64) ([]model.BlueprintSection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, blueprint_id, name, position FROM blueprint_sections
		 WHERE blueprint_id = ? ORDER BY position, id`, blueprintID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sections []model.BlueprintSection
	for rows.Next() {
		var sec model.BlueprintSection
		if err := rows.Scan(&sec.ID, &sec.BlueprintID, &sec.Name, &sec.Position); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// GetCriteria returns every criterion of a blueprint in paper order.
func (s *Store) GetCriteria(ctx context.Context, blueprintID int64) ([]model.BlueprintCriterion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bc.id, bc.section_id, bc.question_type, bc.number_of_questions,
		        bc.marks_per_question, bc.difficulty, bc.bloom_level
		 FROM blueprint_criteria bc
		 JOIN blueprint_sections bs ON bc.section_id = bs.id
		 WHERE bs.blueprint_id = ?
		 ORDER BY bs.position, bs.id, bc.position, bc.id`, blueprintID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var criteria []model.BlueprintCriterion
	for rows.Next() {
		var c model.BlueprintCriterion
		if err := rows.Scan(&c.ID, &c.SectionID, &c.QuestionType, &c.Count,
			&c.MarksPerQuestion, &c.Difficulty, &c.BloomLevel); err != nil {
			return nil, err
		}
		criteria = append(criteria, c)
	}
	return criteria, rows.Err()
}

// ListBlueprints returns the blueprints of a subject without their sections.
// A non-zero examTypeID narrows the list to that exam type.
func (s *Store) ListBlueprints(ctx context.Context, subjectID, examTypeID int64) ([]model.Blueprint, error) {
	query := `SELECT id, subject_id, exam_type_id, title, total_marks, duration_minutes, is_custom
		FROM blueprints WHERE subject_id = ?`
	args := []any{subjectID}
	if examTypeID != 0 {
		query += ` AND exam_type_id = ?`
		args = append(args, examTypeID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bps []model.Blueprint
	for rows.Next() {
		var bp model.Blueprint
		if err := rows.Scan(&bp.ID, &bp.SubjectID, &bp.ExamTypeID, &bp.Title,
			&bp.TotalMarks, &bp.DurationMinutes, &bp.Custom); err != nil {
			return nil, err
		}
		bps = append(bps, bp)
	}
	return bps, rows.Err()
}
