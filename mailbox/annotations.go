package mailbox

import "context"

// Annotation is one per-message annotation entry (IMAP METADATA-style),
// attached to a UID.
type Annotation struct {
	UID    uint32
	Entry  string
	UserID string // "" for the shared ("/shared") value
	Value  string
}

// AnnotationStore is the external per-message annotation collaborator
// (§4.10). annot_changed drives both mailbox counters (quota_annot_used)
// and the sync-CRC v2 annotation fingerprint contribution.
type AnnotationStore interface {
	// Changed records that old was replaced by new for the same
	// (uid, entry, userid) key; either may be the zero value to represent
	// "did not exist".
	Changed(ctx context.Context, old, new Annotation) error

	// ForUID lists every annotation attached to uid, for sync-CRC v2.
	ForUID(ctx context.Context, uid uint32) ([]Annotation, error)

	// All lists every annotation in the mailbox sorted by UID, for
	// reconstruct's annotation enumeration (§4.7 step 3).
	All(ctx context.Context) ([]Annotation, error)

	// DeleteUIDs removes every annotation for the given UIDs (reconstruct's
	// delannots, §4.7 step 7).
	DeleteUIDs(ctx context.Context, uids []uint32) error
}

type noopAnnotations struct{}

func (noopAnnotations) Changed(context.Context, Annotation, Annotation) error { return nil }
func (noopAnnotations) ForUID(context.Context, uint32) ([]Annotation, error)  { return nil, nil }
func (noopAnnotations) All(context.Context) ([]Annotation, error)            { return nil, nil }
func (noopAnnotations) DeleteUIDs(context.Context, []uint32) error           { return nil }
