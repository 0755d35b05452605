package models

import "time"

// Subject is a joinable class under a branch, identified by a unique
// class code students use to enroll.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	BranchID    string    `db:"branch_id" json:"branch_id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	ClassName   string    `db:"class_name" json:"class_name"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	Description string    `db:"description" json:"description"`
	ClassCode   string    `db:"class_code" json:"class_code"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
