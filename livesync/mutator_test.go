package livesync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talad/livesync"
	"talad/store"
)

func newPostView(t *testing.T, mem *store.Memory) (*livesync.Subscription, *livesync.Mutator) {
	t.Helper()
	sub, err := livesync.Subscribe(context.Background(), mem, "posts",
		livesync.OrderSpec{Field: "createdAt", Descending: true}, nil)
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)
	return sub, livesync.NewMutator(sub, mem)
}

func likedBy(t *testing.T, sub *livesync.Subscription, id string) []any {
	t.Helper()
	doc, ok := sub.Get(id)
	require.True(t, ok)
	list, _ := doc["likedBy"].([]any)
	return list
}

func awaitReport(t *testing.T, reports <-chan error) error {
	t.Helper()
	select {
	case err := <-reports:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mutation report")
		return nil
	}
}

func TestToggleAppliesLocallyBeforeRemoteConfirms(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Create(context.Background(), "posts",
		livesync.Document{"_id": "p1", "likedBy": []any{}, "createdAt": int64(100)})
	require.NoError(t, err)

	sub, mut := newPostView(t, mem)
	<-sub.C

	reports := make(chan error, 1)
	mut.ToggleMembership("p1", "likedBy", "alice", false, func(err error) { reports <- err })

	// The local view flips before the background write lands.
	assert.Contains(t, likedBy(t, sub, "p1"), "alice")

	require.NoError(t, awaitReport(t, reports))
	mut.Wait()

	stored, ok := mem.Get("posts", "p1")
	require.True(t, ok)
	assert.Contains(t, stored["likedBy"], "alice")
}

func TestToggleRemovesMembership(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Create(context.Background(), "posts",
		livesync.Document{"_id": "p1", "likedBy": []any{"alice", "bob"}, "createdAt": int64(100)})
	require.NoError(t, err)

	sub, mut := newPostView(t, mem)
	<-sub.C

	reports := make(chan error, 1)
	mut.ToggleMembership("p1", "likedBy", "alice", true, func(err error) { reports <- err })

	assert.NotContains(t, likedBy(t, sub, "p1"), "alice")

	require.NoError(t, awaitReport(t, reports))
	mut.Wait()

	stored, _ := mem.Get("posts", "p1")
	assert.Equal(t, []any{"bob"}, stored["likedBy"])
}

func TestToggleReplayIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Create(context.Background(), "posts",
		livesync.Document{"_id": "p1", "likedBy": []any{}, "createdAt": int64(100)})
	require.NoError(t, err)

	sub, mut := newPostView(t, mem)
	<-sub.C

	// The same intent delivered twice: membership ends up present once.
	reports := make(chan error, 2)
	mut.ToggleMembership("p1", "likedBy", "alice", false, func(err error) { reports <- err })
	mut.ToggleMembership("p1", "likedBy", "alice", false, func(err error) { reports <- err })

	require.NoError(t, awaitReport(t, reports))
	require.NoError(t, awaitReport(t, reports))
	mut.Wait()

	assert.Equal(t, []any{"alice"}, likedBy(t, sub, "p1"))
	stored, _ := mem.Get("posts", "p1")
	assert.Equal(t, []any{"alice"}, stored["likedBy"])
}

func TestToggleRollsBackOnRemoteFailure(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Create(context.Background(), "posts",
		livesync.Document{"_id": "p1", "likedBy": []any{}, "createdAt": int64(100)})
	require.NoError(t, err)

	sub, mut := newPostView(t, mem)
	<-sub.C

	writeErr := errors.New("write denied")
	mem.WriteErr = writeErr

	reports := make(chan error, 1)
	mut.ToggleMembership("p1", "likedBy", "alice", false, func(err error) { reports <- err })

	assert.ErrorIs(t, awaitReport(t, reports), writeErr)
	mut.Wait()

	// Rollback happens before the report fires.
	assert.Empty(t, likedBy(t, sub, "p1"))
}

func TestAppendAppliesLocallyAndConfirms(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Create(context.Background(), "posts",
		livesync.Document{"_id": "p1", "comments": []any{}, "createdAt": int64(100)})
	require.NoError(t, err)

	sub, mut := newPostView(t, mem)
	<-sub.C

	comment := map[string]any{"username": "alice", "text": "still available?", "timestamp": int64(123)}
	reports := make(chan error, 1)
	mut.AppendItem("p1", "comments", comment, func(err error) { reports <- err })

	doc, _ := sub.Get("p1")
	comments, _ := doc["comments"].([]any)
	require.Len(t, comments, 1)
	assert.Equal(t, comment, comments[0])

	require.NoError(t, awaitReport(t, reports))
	mut.Wait()

	stored, _ := mem.Get("posts", "p1")
	storedComments, _ := stored["comments"].([]any)
	assert.Len(t, storedComments, 1)
}

func TestAppendRetractsOnRemoteFailure(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Create(context.Background(), "posts",
		livesync.Document{"_id": "p1", "comments": []any{}, "createdAt": int64(100)})
	require.NoError(t, err)

	sub, mut := newPostView(t, mem)
	<-sub.C

	writeErr := errors.New("write denied")
	mem.WriteErr = writeErr

	comment := map[string]any{"username": "alice", "text": "still available?", "timestamp": int64(123)}
	reports := make(chan error, 1)
	mut.AppendItem("p1", "comments", comment, func(err error) { reports <- err })

	assert.ErrorIs(t, awaitReport(t, reports), writeErr)
	mut.Wait()

	doc, _ := sub.Get("p1")
	comments, _ := doc["comments"].([]any)
	assert.Empty(t, comments)
}

func TestMutationOnUnknownDocumentReports(t *testing.T) {
	mem := store.NewMemory()
	sub, mut := newPostView(t, mem)
	<-sub.C

	reports := make(chan error, 1)
	mut.ToggleMembership("missing", "likedBy", "alice", false, func(err error) { reports <- err })
	assert.Error(t, awaitReport(t, reports))
}

func TestMutationSurvivesUnsubscribe(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Create(context.Background(), "posts",
		livesync.Document{"_id": "p1", "likedBy": []any{}, "createdAt": int64(100)})
	require.NoError(t, err)

	sub, mut := newPostView(t, mem)
	<-sub.C

	reports := make(chan error, 1)
	mut.ToggleMembership("p1", "likedBy", "alice", false, func(err error) { reports <- err })
	sub.Unsubscribe()

	// The remote write still completes after the view is gone.
	require.NoError(t, awaitReport(t, reports))
	mut.Wait()

	stored, _ := mem.Get("posts", "p1")
	assert.Contains(t, stored["likedBy"], "alice")
}
