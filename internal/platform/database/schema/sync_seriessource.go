package schema

// SyncSeriesSourceTable represents the 'sync.seriessource' table
type SyncSeriesSourceTable struct {
	Table               string
	ID                  string
	SeriesID            string
	SourceName          string
	SourceID            string
	SourceURL           string
	URLHash             string
	TrustScore          string
	SyncTier            string
	LastSuccessAt       string
	LastAttemptAt       string
	ConsecutiveFailures string
	MetadataStatus      string
	MetadataRetryCount  string
	CreatedAt           string
	UpdatedAt           string
}

var SyncSeriesSource = SyncSeriesSourceTable{
	Table:               "sync.seriessource",
	ID:                  "id",
	SeriesID:            "seriesid",
	SourceName:          "sourcename",
	SourceID:            "sourceid",
	SourceURL:           "sourceurl",
	URLHash:             "urlhash",
	TrustScore:          "trustscore",
	SyncTier:            "synctier",
	LastSuccessAt:       "lastsuccessat",
	LastAttemptAt:       "lastattemptat",
	ConsecutiveFailures: "consecutivefailures",
	MetadataStatus:      "metadatastatus",
	MetadataRetryCount:  "metadataretrycount",
	CreatedAt:           "createdat",
	UpdatedAt:           "updatedat",
}
