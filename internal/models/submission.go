package models

import "time"

// Submission is a student's file response to an assignment.
// Marks stay null until the submission is graded; re-grading
// overwrites marks and graded_at.
type Submission struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	FileURL      string     `db:"file_url" json:"file_url"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	Graded       bool       `db:"graded" json:"graded"`
	Marks        *float64   `db:"marks" json:"marks"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
}

// SubmissionDetail joins a submission with the submitting student's name.
type SubmissionDetail struct {
	Submission
	StudentName string `db:"student_name" json:"student_name"`
}
