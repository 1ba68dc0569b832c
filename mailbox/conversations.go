package mailbox

import "context"

// ConvoDelta is the set of per-conversation counter adjustments driven by a
// single append/rewrite, per §4.10 "Conversations".
type ConvoDelta struct {
	NumRecords int
	Exists     int
	Unseen     int
	Size       int64
	Answered   int
	Flagged    int
	Deleted    int
	Senders    []string // appended to the conversation's senders list
}

// ConversationStore is the external conversation-threading collaborator,
// keyed by CID (conversation id). Updates are applied on every append and
// rewrite when conversations are enabled for the mailbox.
type ConversationStore interface {
	Update(ctx context.Context, cid uint64, delta ConvoDelta) error

	// Rename moves delta's effect from oldCID to newCID: remove from the
	// old conversation, add to the new one.
	Rename(ctx context.Context, oldCID, newCID uint64, delta ConvoDelta) error
}

type noopConversations struct{}

func (noopConversations) Update(context.Context, uint64, ConvoDelta) error          { return nil }
func (noopConversations) Rename(context.Context, uint64, uint64, ConvoDelta) error { return nil }
