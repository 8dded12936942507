package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/qngenius/qngenius/internal/model"
)

const questionColumns = `q.id, q.unit_id, q.text, q.question_type, q.marks, q.difficulty, q.bloom_level, q.keywords, q.created_by`

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (model.Question, error) {
	var q model.Question
	err := sc.Scan(&q.ID, &q.UnitID, &q.Text, &q.Type, &q.Marks, &q.Difficulty, &q.BloomLevel, &q.Keywords, &q.CreatedBy)
	return q, err
}

func collectQuestions(rows *sql.Rows) ([]model.Question, error) {
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// InsertQuestion stores a single question.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (unit_id, text, question_type, marks, difficulty, bloom_level, keywords, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.UnitID, q.Text, q.Type, q.Marks, q.Difficulty, q.BloomLevel, q.Keywords, q.CreatedBy, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertBatch stores questions in a single transaction: either all of them
// are committed or none are.
func (s *Store) InsertBatch(ctx context.Context, questions []model.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (unit_id, text, question_type, marks, difficulty, bloom_level, keywords, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, q := range questions {
		if _, err := stmt.ExecContext(ctx,
			q.UnitID, q.Text, q.Type, q.Marks, q.Difficulty, q.BloomLevel, q.Keywords, q.CreatedBy, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	return scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions q WHERE q.id = ?`, id,
	))
}

// QueryByCriteria returns up to limit random questions of a subject with the
// exact marks, difficulty and Bloom level.
func (s *Store) QueryByCriteria(ctx context.Context, subjectID int64, marks int, difficulty model.Difficulty, bloom model.BloomLevel, limit int) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+`
		 FROM questions q JOIN units u ON q.unit_id = u.id
		 WHERE u.subject_id = ? AND q.marks = ? AND q.difficulty = ? AND q.bloom_level = ?
		 ORDER BY RANDOM() LIMIT ?`,
		subjectID, marks, difficulty, bloom, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// AllQuestions returns every question filed under any unit of the subject.
func (s *Store) AllQuestions(ctx context.Context, subjectID int64) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+`
		 FROM questions q JOIN units u ON q.unit_id = u.id
		 WHERE u.subject_id = ? ORDER BY q.id`, subjectID,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// SearchQuestions returns a subject's questions matching every set filter.
// Each whitespace-separated keyword term must appear, case-insensitively, in
// the question text or its keywords.
func (s *Store) SearchQuestions(ctx context.Context, subjectID int64, f model.QuestionSearch) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + `
		FROM questions q JOIN units u ON q.unit_id = u.id
		WHERE u.subject_id = ?`
	args := []any{subjectID}
	if f.UnitID != 0 {
		query += ` AND q.unit_id = ?`
		args = append(args, f.UnitID)
	}
	if f.Type != "" {
		query += ` AND q.question_type = ?`
		args = append(args, f.Type)
	}
	if f.Difficulty != "" {
		query += ` AND q.difficulty = ?`
		args = append(args, f.Difficulty)
	}
	if f.MinMarks != nil {
		query += ` AND q.marks >= ?`
		args = append(args, *f.MinMarks)
	}
	if f.MaxMarks != nil {
		query += ` AND q.marks <= ?`
		args = append(args, *f.MaxMarks)
	}
	for _, term := range strings.Fields(strings.ToLower(f.Keywords)) {
		query += ` AND (instr(lower(q.text), ?) > 0 OR instr(lower(q.keywords), ?) > 0)`
		args = append(args, term, term)
	}
	query += ` ORDER BY q.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// QuestionStats computes totals and distributions over a subject's questions.
func (s *Store) QuestionStats(ctx context.Context, subjectID int64) (model.QuestionStats, error) {
	qs, err := s.AllQuestions(ctx, subjectID)
	if err != nil {
		return model.QuestionStats{}, err
	}
	return Summarize(qs), nil
}

// Summarize builds statistics from a list of questions.
func Summarize(qs []model.Question) model.QuestionStats {
	st := model.QuestionStats{
		ByType:       make(map[model.QuestionType]int),
		ByDifficulty: make(map[model.Difficulty]int),
		ByBloom:      make(map[model.BloomLevel]int),
	}
	for _, q := range qs {
		st.Total++
		st.TotalMarks += q.Marks
		st.ByType[q.Type]++
		st.ByDifficulty[q.Difficulty]++
		if q.BloomLevel != "" {
			st.ByBloom[q.BloomLevel]++
		}
	}
	if st.Total > 0 {
		st.AverageMarks = float64(st.TotalMarks) / float64(st.Total)
	}
	return st
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
