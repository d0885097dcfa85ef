// Package inbox keeps a local projection of in-app notifications and applies
// user actions optimistically, restoring the previous state when the server
// rejects them.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"wellcheck/internal/domain"
)

var logger = slog.Default().With("service", "inbox")

// Remote is the authoritative notification store.
type Remote interface {
	ListNotifications(ctx context.Context, unreadOnly bool) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	DeleteNotification(ctx context.Context, id string) error
}

// preImage is the state of one notification before a local mutation.
type preImage struct {
	id      string
	item    domain.Notification
	existed bool
	index   int
	rev     uint64
}

type Inbox struct {
	remote Remote
	now    func() time.Time

	mu    sync.Mutex
	items []domain.Notification
	revs  map[string]uint64
}

func New(remote Remote) *Inbox {
	return &Inbox{remote: remote, now: time.Now, revs: make(map[string]uint64)}
}

// Sync replaces the projection with the server's view.
func (in *Inbox) Sync(ctx context.Context) error {
	items, err := in.remote.ListNotifications(ctx, false)
	if err != nil {
		return err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = slices.Clone(items)
	for _, n := range in.items {
		in.revs[n.ID]++
	}
	return nil
}

// Items returns the projection, newest first.
func (in *Inbox) Items() []domain.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.items)
}

func (in *Inbox) Unread() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, it := range in.items {
		if !it.Read() {
			n++
		}
	}
	return n
}

// MarkRead flags id as read locally, then on the server.
func (in *Inbox) MarkRead(ctx context.Context, id string) error {
	return in.apply(ctx, id, "mark read", func(idx int) {
		if in.items[idx].ReadAt == nil {
			at := in.now().UTC()
			in.items[idx].ReadAt = &at
		}
	}, in.remote.MarkNotificationRead)
}

// Delete removes id locally, then on the server.
func (in *Inbox) Delete(ctx context.Context, id string) error {
	return in.apply(ctx, id, "delete", func(idx int) {
		in.items = slices.Delete(in.items, idx, idx+1)
	}, in.remote.DeleteNotification)
}

func (in *Inbox) apply(ctx context.Context, id, op string, mutate func(idx int), call func(context.Context, string) error) error {
	pre, err := in.mutate(id, mutate)
	if err != nil {
		return err
	}
	if err := call(ctx, id); err != nil {
		restored := in.restore(pre)
		logger.Warn("notification update rejected",
			"op", op,
			"notification_id", id,
			"restored", restored,
			"error", err)
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

func (in *Inbox) mutate(id string, fn func(idx int)) (preImage, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	idx := slices.IndexFunc(in.items, func(n domain.Notification) bool { return n.ID == id })
	if idx < 0 {
		return preImage{}, domain.ValidationError{Field: "id", Reason: fmt.Sprintf("notification %s not in inbox", id)}
	}
	pre := preImage{id: id, item: in.items[idx], existed: true, index: idx}
	if pre.item.ReadAt != nil {
		at := *pre.item.ReadAt
		pre.item.ReadAt = &at
	}
	fn(idx)
	in.revs[id]++
	pre.rev = in.revs[id]
	return pre, nil
}

// restore puts the pre-image back unless a later action already touched the
// same notification. It reports whether anything was restored.
func (in *Inbox) restore(pre preImage) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.revs[pre.id] != pre.rev {
		return false
	}
	in.revs[pre.id]++
	if idx := slices.IndexFunc(in.items, func(n domain.Notification) bool { return n.ID == pre.id }); idx >= 0 {
		in.items[idx] = pre.item
		return true
	}
	at := min(pre.index, len(in.items))
	in.items = slices.Insert(in.items, at, pre.item)
	return true
}
