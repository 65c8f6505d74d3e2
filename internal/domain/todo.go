package domain

import "time"

// Todo is a single to-do entry.
type Todo struct {
	ID          int64
	Title       string
	Description string
	CreatedAt   time.Time
}
