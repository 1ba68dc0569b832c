package mailbox

import "context"

// QuotaStore tracks usage against a quota root (§4.10 "Quota"). The engine
// pushes usage deltas on commit; a failed update is logged, not fatal, per
// §4.10.
type QuotaStore interface {
	// Usage returns the current storage and annotation usage in bytes for
	// root.
	Usage(ctx context.Context, root string) (storage, annotation int64, err error)

	// AdjustUsage applies deltaStorage/deltaAnnotation bytes to root's
	// running totals. A negative delta reduces usage (e.g. on expunge
	// cleanup / unlink).
	AdjustUsage(ctx context.Context, root string, deltaStorage, deltaAnnotation int64) error

	// CheckLimit reports QuotaExceeded if adding addBytes to root's current
	// storage usage would exceed its configured limit. Only append-time
	// preconditions check quota; rewrites never fail for quota (§7).
	CheckLimit(ctx context.Context, root string, addBytes int64) error
}

// noopQuota is used when a handle is opened without a quota collaborator
// (e.g. tests, or mailboxes with no quota root configured).
type noopQuota struct{}

func (noopQuota) Usage(context.Context, string) (int64, int64, error) { return 0, 0, nil }
func (noopQuota) AdjustUsage(context.Context, string, int64, int64) error { return nil }
func (noopQuota) CheckLimit(context.Context, string, int64) error { return nil }
