package models

import "time"

// Material is a file uploaded to a class by a teacher or admin.
type Material struct {
	ID          string    `db:"id" json:"id"`
	ClassID     string    `db:"class_id" json:"class_id"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	FileName    string    `db:"file_name" json:"file_name"`
	StoragePath string    `db:"storage_path" json:"-"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MaterialInfo is the listing shape including a signed download URL.
type MaterialInfo struct {
	Material
	DownloadURL string    `json:"download_url"`
	URLExpires  time.Time `json:"url_expires"`
}
