package batch

import (
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/records"
)

// Operation is the kind of batch
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpUpsert Operation = "upsert"
)

// State is a batch lifecycle state
type State string

const (
	StateValidating  State = "validating"
	StateApplying    State = "applying"
	StateCommitted   State = "committed"
	StateRollingBack State = "rolling_back"
	StateRejected    State = "rejected"
)

// Request is one batch call
type Request struct {
	Operation Operation
	Table     string
	Session   *rbac.SessionContext

	// Records holds the input rows for create, update and upsert. Update
	// rows must carry the primary key.
	Records []map[string]interface{}

	// IDs holds the primary keys for delete
	IDs []string

	// FieldsToMergeOn names the columns an upsert matches existing rows on
	FieldsToMergeOn []string

	// ReturnRecords echoes the written rows in Result.Records. When false
	// Records is empty.
	ReturnRecords bool
}

// Result summarizes a committed batch. Records echo the inputs in order,
// masked for the caller.
type Result struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Deleted int              `json:"deleted"`
	Records []records.Record `json:"records"`
}

func (r *Request) size() int {
	if r.Operation == OpDelete {
		return len(r.IDs)
	}
	return len(r.Records)
}
