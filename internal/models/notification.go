package models

import "time"

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Content      string    `db:"content" json:"content"`
	TargetUserID string    `db:"target_user_id" json:"target_user_id"`
	URL          string    `db:"url" json:"url"`
	Read         bool      `db:"read" json:"read"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
