package handlers

import (
	"photo-tagger/internal/database"
	"photo-tagger/internal/filesystem"
	"photo-tagger/internal/ingest"
	"photo-tagger/internal/startup"
)

type Handlers struct {
	db           *database.Database
	coordinator  *ingest.Coordinator
	mediaDir     string
	thumbnailDir string
	retry        filesystem.RetryConfig
}

func New(db *database.Database, coordinator *ingest.Coordinator, config *startup.Config) *Handlers {
	return &Handlers{
		db:           db,
		coordinator:  coordinator,
		mediaDir:     config.MediaDir,
		thumbnailDir: config.ThumbnailDir,
		retry:        filesystem.DefaultRetryConfig(),
	}
}
