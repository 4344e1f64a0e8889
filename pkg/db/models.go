package db

import "time"

// Kinds of frequency table rows.
const (
	KindEmission   = "emission"
	KindTransition = "transition"
)

// ModelInfo describes a stored model.
type ModelInfo struct {
	ID          int64
	Name        string
	RecordCount int
	CreatedAt   time.Time
}

// Correction is one logged word whose decoded form differed from what was typed.
type Correction struct {
	ID        int64
	ModelID   int64
	Typed     string
	Decoded   string
	Source    string
	CreatedAt time.Time
}
