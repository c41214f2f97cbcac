package schema

// SyncReviewQueueTable represents the 'sync.reviewqueue' table
type SyncReviewQueueTable struct {
	Table             string
	ID                string
	SeriesID          string
	CandidateSeriesID string
	Confidence        string
	Reason            string
	Status            string
	CreatedAt         string
	ResolvedAt        string
}

var SyncReviewQueue = SyncReviewQueueTable{
	Table:             "sync.reviewqueue",
	ID:                "id",
	SeriesID:          "seriesid",
	CandidateSeriesID: "candidateseriesid",
	Confidence:        "confidence",
	Reason:            "reason",
	Status:            "status",
	CreatedAt:         "createdat",
	ResolvedAt:        "resolvedat",
}
