package models

import "time"

// SubjectMember records one student's enrollment in a subject.
// The (subject_id, student_id) pair is unique.
type SubjectMember struct {
	ID        string    `db:"id" json:"id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

// RosterEntry is a roster row: the student's profile plus the
// membership id needed to remove them.
type RosterEntry struct {
	MemberID  string    `db:"member_id" json:"member_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}
