package schema

// SyncLogicalChapterTable represents the 'sync.logicalchapter' table
type SyncLogicalChapterTable struct {
	Table         string
	ID            string
	SeriesID      string
	NumberBand    string
	NumberWhole   string
	NumberFrac    string
	DisplayNumber string
	ChapterTitle  string
	VolumeNumber  string
	PublishedAt   string
	FirstSeenAt   string
	DeletedAt     string
}

var SyncLogicalChapter = SyncLogicalChapterTable{
	Table:         "sync.logicalchapter",
	ID:            "id",
	SeriesID:      "seriesid",
	NumberBand:    "numberband",
	NumberWhole:   "numberwhole",
	NumberFrac:    "numberfrac",
	DisplayNumber: "displaynumber",
	ChapterTitle:  "chaptertitle",
	VolumeNumber:  "volumenumber",
	PublishedAt:   "publishedat",
	FirstSeenAt:   "firstseenat",
	DeletedAt:     "deletedat",
}
