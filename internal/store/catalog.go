package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/qngenius/qngenius/internal/model"
)

// CreateCourse inserts a course.
func (s *Store) CreateCourse(ctx context.Context, c model.Course) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO courses (code, name, created_at) VALUES (?, ?, ?)`,
		c.Code, c.Name, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListCourses returns all courses ordered by name.
func (s *Store) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, name, created_at FROM courses ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// GetCourse returns a course by ID, or nil if it does not exist.
func (s *Store) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	var c model.Course
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM courses WHERE id = ?`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateSubject inserts a subject under a course.
func (s *Store) CreateSubject(ctx context.Context, sub model.Subject) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (course_id, code, name) VALUES (?, ?, ?)`,
		sub.CourseID, sub.Code, sub.Name,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListSubjects returns the subjects of a course ordered by name.
func (s *Store) ListSubjects(ctx context.Context, courseID int64) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, code, name FROM subjects WHERE course_id = ? ORDER BY name`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []model.Subject
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.CourseID, &sub.Code, &sub.Name); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// GetSubject returns a subject by ID, or nil if it does not exist.
func (s *Store) GetSubject(ctx context.Context, id int64) (*model.Subject, error) {
	var sub model.Subject
	err := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, code, name FROM subjects WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.CourseID, &sub.Code, &sub.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateUnit inserts a unit under a subject.
func (s *Store) CreateUnit(ctx context.Context, u model.Unit) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO units (subject_id, name) VALUES (?, ?)`, u.SubjectID, u.Name,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListUnits returns the units of a subject in creation order.
func (s *Store) ListUnits(ctx context.Context, subjectID int64) ([]model.Unit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, name FROM units WHERE subject_id = ? ORDER BY id`, subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []model.Unit
	for rows.Next() {
		var u model.Unit
		if err := rows.Scan(&u.ID, &u.SubjectID, &u.Name); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// GetUnit returns a unit by ID, or nil if it does not exist.
func (s *Store) GetUnit(ctx context.Context, id int64) (*model.Unit, error) {
	var u model.Unit
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, name FROM units WHERE id = ?`, id,
	).Scan(&u.ID, &u.SubjectID, &u.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateExamType inserts an exam type.
func (s *Store) CreateExamType(ctx context.Context, et model.ExamType) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO exam_types (name) VALUES (?)`, et.Name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListExamTypes returns all exam types ordered by name.
func (s *Store) ListExamTypes(ctx context.Context) ([]model.ExamType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM exam_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []model.ExamType
	for rows.Next() {
		var et model.ExamType
		if err := rows.Scan(&et.ID, &et.Name); err != nil {
			return nil, err
		}
		types = append(types, et)
	}
	return types, rows.Err()
}
