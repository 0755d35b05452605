package models

import "time"

// StudyMaterial is a file shared with a subject's students.
type StudyMaterial struct {
	ID          string    `db:"id" json:"id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	FileURL     string    `db:"file_url" json:"file_url"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
