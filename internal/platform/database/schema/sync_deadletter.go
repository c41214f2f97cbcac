package schema

// SyncDeadLetterTable represents the 'sync.deadletter' table
type SyncDeadLetterTable struct {
	Table          string
	ID             string
	IdempotencyKey string
	Payload        string
	ErrorClass     string
	LastError      string
	Attempts       string
	History        string
	CreatedAt      string
}

var SyncDeadLetter = SyncDeadLetterTable{
	Table:          "sync.deadletter",
	ID:             "id",
	IdempotencyKey: "idempotencykey",
	Payload:        "payload",
	ErrorClass:     "errorclass",
	LastError:      "lasterror",
	Attempts:       "attempts",
	History:        "history",
	CreatedAt:      "createdat",
}
