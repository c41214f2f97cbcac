package schema

// SyncChapterSourceTable represents the 'sync.chaptersource' table
type SyncChapterSourceTable struct {
	Table             string
	ID                string
	ChapterID         string
	SeriesSourceID    string
	SourceChapterID   string
	SourceChapterURL  string
	IsAvailable       string
	DetectedAt        string
	SourcePublishedAt string
	DeletedAt         string
}

var SyncChapterSource = SyncChapterSourceTable{
	Table:             "sync.chaptersource",
	ID:                "id",
	ChapterID:         "chapterid",
	SeriesSourceID:    "seriessourceid",
	SourceChapterID:   "sourcechapterid",
	SourceChapterURL:  "sourcechapterurl",
	IsAvailable:       "isavailable",
	DetectedAt:        "detectedat",
	SourcePublishedAt: "sourcepublishedat",
	DeletedAt:         "deletedat",
}
