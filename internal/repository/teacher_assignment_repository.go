package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

// TeacherAssignmentRepository reads teacher-class-discipline assignments.
type TeacherAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeacherAssignmentRepository constructs the repository.
func NewTeacherAssignmentRepository(db *sqlx.DB) *TeacherAssignmentRepository {
	return &TeacherAssignmentRepository{db: db}
}

// ListReviewerIDs returns the distinct teachers assigned to the discipline in classes of
// the grade level.
func (r *TeacherAssignmentRepository) ListReviewerIDs(ctx context.Context, disciplineID, gradeLevel string) ([]string, error) {
	const query = `
SELECT DISTINCT ta.teacher_id
FROM teacher_assignments ta
JOIN classes c ON c.id = ta.class_id
WHERE ta.subject_id = $1 AND c.grade = $2
ORDER BY ta.teacher_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, disciplineID, gradeLevel); err != nil {
		return nil, fmt.Errorf("list reviewer ids: %w", err)
	}
	return ids, nil
}

// ListSubjectGroupsByTeacher returns the discipline/grade pairs the teacher reviews.
func (r *TeacherAssignmentRepository) ListSubjectGroupsByTeacher(ctx context.Context, teacherID string) ([]models.SubjectGroupKey, error) {
	const query = `
SELECT DISTINCT ta.subject_id AS discipline_id, c.grade AS grade_level
FROM teacher_assignments ta
JOIN classes c ON c.id = ta.class_id
WHERE ta.teacher_id = $1
ORDER BY ta.subject_id, c.grade`
	var rows []struct {
		DisciplineID string `db:"discipline_id"`
		GradeLevel   string `db:"grade_level"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher subject groups: %w", err)
	}
	keys := make([]models.SubjectGroupKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, models.SubjectGroupKey{DisciplineID: row.DisciplineID, GradeLevel: row.GradeLevel})
	}
	return keys, nil
}
