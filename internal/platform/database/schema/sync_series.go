package schema

// SyncSeriesTable represents the 'sync.series' table
type SyncSeriesTable struct {
	Table                 string
	ID                    string
	Title                 string
	AlternativeTitles     string
	Creators              string
	Language              string
	PublicationYear       string
	Status                string
	MetadataSchemaVersion string
	MetadataRank          string
	FollowerCount         string
	NeedsReview           string
	CanonicalSeriesID     string
	CreatedAt             string
	UpdatedAt             string
}

var SyncSeries = SyncSeriesTable{
	Table:                 "sync.series",
	ID:                    "id",
	Title:                 "title",
	AlternativeTitles:     "alternativetitles",
	Creators:              "creators",
	Language:              "language",
	PublicationYear:       "publicationyear",
	Status:                "status",
	MetadataSchemaVersion: "metadataschemaversion",
	MetadataRank:          "metadatarank",
	FollowerCount:         "followercount",
	NeedsReview:           "needsreview",
	CanonicalSeriesID:     "canonicalseriesid",
	CreatedAt:             "createdat",
	UpdatedAt:             "updatedat",
}
