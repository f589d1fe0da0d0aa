package models

import "time"

// RecordSource tells which pipeline produced a stored record.
type RecordSource string

const (
	RecordSourceAuto    RecordSource = "auto"
	RecordSourceCapture RecordSource = "capture"
	RecordSourceHistory RecordSource = "history"
)

// UnknownLabel is used when the model answers without a label.
const UnknownLabel = "Unknown"

// Detection is a classification result; Confidence is a percentage in [0,100].
type Detection struct {
	Label      string
	Confidence float64
}

type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type StoredRecord struct {
	ID              string
	ImageURL        string
	AnimalDetected  string
	ConfidenceScore float64
	UserID          *string
	Source          RecordSource
	CreatedAt       time.Time
}
