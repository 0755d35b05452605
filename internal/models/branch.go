package models

import "time"

// Branch is a teacher-owned grouping of subjects.
type Branch struct {
	ID          string    `db:"id" json:"id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	BranchName  string    `db:"branch_name" json:"branch_name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
