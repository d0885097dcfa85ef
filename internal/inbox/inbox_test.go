package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellcheck/internal/domain"
)

type fakeRemote struct {
	mu      sync.Mutex
	items   []domain.Notification
	fail    error
	calls   []string
	release chan struct{}
}

func (f *fakeRemote) ListNotifications(ctx context.Context, unreadOnly bool) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.items...), nil
}

func (f *fakeRemote) MarkNotificationRead(ctx context.Context, id string) error {
	return f.record("read:" + id)
}

func (f *fakeRemote) DeleteNotification(ctx context.Context, id string) error {
	return f.record("delete:" + id)
}

func (f *fakeRemote) record(call string) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.fail
}

func seeded(t *testing.T, remote *fakeRemote) *Inbox {
	t.Helper()
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	remote.items = []domain.Notification{
		{ID: "n-3", Kind: "critical-alert", Title: "third", CreatedAt: created.Add(2 * time.Hour)},
		{ID: "n-2", Kind: "plan-decided", Title: "second", CreatedAt: created.Add(time.Hour)},
		{ID: "n-1", Kind: "critical-alert", Title: "first", CreatedAt: created},
	}
	in := New(remote)
	in.now = func() time.Time { return created.Add(24 * time.Hour) }
	require.NoError(t, in.Sync(context.Background()))
	return in
}

func TestMarkReadAppliesLocally(t *testing.T) {
	remote := &fakeRemote{}
	in := seeded(t, remote)
	require.Equal(t, 3, in.Unread())

	require.NoError(t, in.MarkRead(context.Background(), "n-2"))
	assert.Equal(t, 2, in.Unread())
	assert.True(t, in.Items()[1].Read())
	assert.Equal(t, []string{"read:n-2"}, remote.calls)
}

func TestMarkReadRestoresOnRejection(t *testing.T) {
	remote := &fakeRemote{fail: errors.New("503")}
	in := seeded(t, remote)

	err := in.MarkRead(context.Background(), "n-2")
	require.Error(t, err)
	assert.Equal(t, 3, in.Unread())
	assert.Nil(t, in.Items()[1].ReadAt)
}

func TestDeleteRestoresPosition(t *testing.T) {
	remote := &fakeRemote{fail: errors.New("boom")}
	in := seeded(t, remote)

	require.Error(t, in.Delete(context.Background(), "n-2"))
	items := in.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"n-3", "n-2", "n-1"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestDeleteSucceeds(t *testing.T) {
	remote := &fakeRemote{}
	in := seeded(t, remote)

	require.NoError(t, in.Delete(context.Background(), "n-3"))
	items := in.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "n-2", items[0].ID)
}

func TestUnknownNotificationSkipsRemote(t *testing.T) {
	remote := &fakeRemote{}
	in := seeded(t, remote)

	err := in.MarkRead(context.Background(), "missing")
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, remote.calls)
}

func TestStaleRollbackDoesNotClobberNewerAction(t *testing.T) {
	remote := &fakeRemote{fail: errors.New("rejected"), release: make(chan struct{})}
	in := seeded(t, remote)

	errs := make(chan error, 1)
	go func() { errs <- in.MarkRead(context.Background(), "n-1") }()

	require.Eventually(t, func() bool { return in.Unread() == 2 }, time.Second, 5*time.Millisecond)

	// A fresh sync bumps the revision while the first call is still in flight.
	remote.mu.Lock()
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	remote.items[2].ReadAt = &at
	remote.mu.Unlock()
	require.NoError(t, in.Sync(context.Background()))

	close(remote.release)
	require.Error(t, <-errs)
	assert.True(t, in.Items()[2].Read())
}
