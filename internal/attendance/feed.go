package attendance

// ChangeKind is the type of a change-feed event.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is one document-level event on a day's change feed.
// Record is nil for a tombstone.
type Change struct {
	Seq    int64
	Date   string
	RollNo string
	Kind   ChangeKind
	Record *Record
	Writer string
}

// Tombstone reports whether the change deletes its document.
func (c Change) Tombstone() bool {
	return c.Kind == ChangeRemoved || c.Record == nil
}

// Subscription is a cancelable, non-restartable stream of changes for one date.
//
// Changes is closed after Cancel, or when the feed fails; in the latter case
// Err returns the cause.
type Subscription interface {
	Changes() <-chan Change
	Cancel()
	Err() error
}

// Batch is the unit of atomic write.
//
// When CreateOnly is set, the batch applies only if no Day document exists for
// Date yet; otherwise nothing is written and CommitResult.Applied is false.
type Batch struct {
	ID         string
	Date       string
	Day        *Day
	Records    []Record
	CreateOnly bool
	Writer     string
}

// CommitResult reports the outcome of a committed batch.
type CommitResult struct {
	Applied bool
	Changed int
	LastSeq int64
}
