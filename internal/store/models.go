package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type Project struct {
	ID        string
	UserID    string
	Title     string
	Status    string
	Progress  int
	CreatedAt time.Time
}

type Column struct {
	ID        string
	ProjectID string
	Title     string
	Position  int
}

type Card struct {
	ID          string
	ColumnID    string
	Title       string
	Description *string
	Position    int
}

// Asset is an uploaded project file kept in object storage; only the
// metadata lives in Postgres.
type Asset struct {
	ID          string
	ProjectID   string
	ObjectKey   string
	Filename    string
	ContentType string
	Size        int64
	UploadedBy  string
	CreatedAt   time.Time
}
