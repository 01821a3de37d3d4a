package models

import (
	"fmt"
	"strings"
)

// SubjectGroupKey identifies the teachers sharing a discipline and grade level. Period is
// the bimester an objective is planned for; zero means the key spans all periods.
type SubjectGroupKey struct {
	DisciplineID string `json:"discipline_id"`
	GradeLevel   string `json:"grade_level"`
	Period       int    `json:"period"`
}

// Empty reports whether the discipline or grade level is missing.
func (k SubjectGroupKey) Empty() bool {
	return strings.TrimSpace(k.DisciplineID) == "" || strings.TrimSpace(k.GradeLevel) == ""
}

// String renders a stable key usable in cache keys and logs.
func (k SubjectGroupKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.DisciplineID, k.GradeLevel, k.Period)
}

// QuorumGroup describes the reviewers entitled to vote for a subject group.
type QuorumGroup struct {
	SubjectGroup SubjectGroupKey `json:"subject_group"`
	ReviewerIDs  []string        `json:"reviewer_ids"`
	Quorum       int             `json:"quorum"`
}
