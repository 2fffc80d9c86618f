package database

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the storage format of images.dateTaken.
const DateLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrDuplicatePath is returned by Insert when the relative path is
	// already indexed.
	ErrDuplicatePath = errors.New("image already indexed")

	// ErrNotFound is returned when an image id does not exist.
	ErrNotFound = errors.New("image not found")
)

// StoreError wraps a driver error with the store operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Image is an indexed file.
type Image struct {
	ID           int64     `json:"id"`
	RelativePath string    `json:"relativePath"`
	DateTaken    time.Time `json:"dateTaken"`
	Tags         []string  `json:"tags,omitempty"`
}

// TagCount is a tag with the number of images carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

func formatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err == nil {
		return t, nil
	}
	// rows written by other tools may carry a different precision
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid dateTaken %q: %w", s, err)
	}
	return t.UTC(), nil
}
