package domain

import "time"

// FileEvent announces that a producer's file has been stored and can be fetched.
type FileEvent struct {
	ProducerID    string    `json:"patientId"`
	FileName      string    `json:"fileName"`
	SavedFileName string    `json:"savedFileName"`
	FileSize      int64     `json:"fileSize"`
	FileType      string    `json:"fileType"`
	Description   string    `json:"description"`
	FilePath      string    `json:"filePath"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

func (FileEvent) EventName() string { return "file" }

// StoredFile describes a file already present in the store.
type StoredFile struct {
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploadedAt"`
	FilePath   string    `json:"filePath"`
}
