package schema

// SyncMergeEventTable represents the 'sync.mergeevent' table
type SyncMergeEventTable struct {
	Table           string
	ID              string
	PrimarySeriesID string
	MergedSeriesID  string
	Confidence      string
	Reason          string
	DecidedAt       string
}

var SyncMergeEvent = SyncMergeEventTable{
	Table:           "sync.mergeevent",
	ID:              "id",
	PrimarySeriesID: "primaryseriesid",
	MergedSeriesID:  "mergedseriesid",
	Confidence:      "confidence",
	Reason:          "reason",
	DecidedAt:       "decidedat",
}
