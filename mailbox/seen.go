package mailbox

import "context"

// SeenState is one user's \Seen bookkeeping for a mailbox, keyed externally
// by (userid, uniqueid) per §4.10.
type SeenState struct {
	LastRead    int64
	LastUID     uint32
	SeenUIDs    string // compact UID-set string, e.g. "1:5,9,12:20"
	LastChanged int64
}

// SeenStore is the external seen-state collaborator. Non-owner and
// shared-seen readers are served entirely through this interface; the
// engine itself only touches it during a v12-boundary-crossing repack
// (§4.5 step 3) to fold the owner's seen state into/out of per-record
// system_flags.
type SeenStore interface {
	Get(ctx context.Context, userID, uniqueID string) (SeenState, error)
	Set(ctx context.Context, userID, uniqueID string, state SeenState) error
}

type noopSeen struct{}

func (noopSeen) Get(context.Context, string, string) (SeenState, error) { return SeenState{}, nil }
func (noopSeen) Set(context.Context, string, string, SeenState) error   { return nil }
