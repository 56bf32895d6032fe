package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *FilePostRepository {
	t.Helper()
	repo, err := NewFilePostRepository(filepath.Join(t.TempDir(), "posts.json"))
	require.NoError(t, err)
	return repo
}

func TestFilePostRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posts.json")

	repo, err := NewFilePostRepository(path)
	require.NoError(t, err)

	first, err := repo.Create(ctx, "Hello World", "the body")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)

	second, err := repo.Create(ctx, "Goodbye", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)

	_, err = repo.Update(ctx, first.ID, "Hello Again", "edited body")
	require.NoError(t, err)

	// A fresh load from disk must equal the in-memory state.
	reloaded, err := NewFilePostRepository(path)
	require.NoError(t, err)

	want, err := repo.List(ctx, "")
	require.NoError(t, err)
	got, err := reloaded.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCreateEmptyTitle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Create(ctx, "keep me", "body")
	require.NoError(t, err)

	_, err = repo.Create(ctx, "   ", "body")
	require.ErrorIs(t, err, ErrValidation)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "rejected create must not alter the collection")
}

func TestUpdateValidationAndImmutability(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	repo.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }

	p, err := repo.Create(ctx, "original", "body")
	require.NoError(t, err)

	_, err = repo.Update(ctx, p.ID, "", "new body")
	require.ErrorIs(t, err, ErrValidation)

	repo.now = func() time.Time { return time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC) }
	updated, err := repo.Update(ctx, p.ID, "renamed", "new body")
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt, "created_at is immutable")
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	_, err = repo.Update(ctx, 999, "title", "body")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetAndDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Get(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, repo.Delete(ctx, 42), ErrNotFound)

	p, err := repo.Create(ctx, "short lived", "")
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, p.ID))
	// Second delete of the same id fails, it does not silently succeed.
	require.ErrorIs(t, repo.Delete(ctx, p.ID), ErrNotFound)
}

func TestIDsAreNeverReused(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posts.json")
	repo, err := NewFilePostRepository(path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, fmt.Sprintf("post %d", i), "")
		require.NoError(t, err)
	}
	require.NoError(t, repo.Delete(ctx, 3))

	p, err := repo.Create(ctx, "after delete", "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.ID, "a freed id must not be handed out again")

	// The counter survives deleting everything and restarting the process.
	for _, id := range []int64{1, 2, 4} {
		require.NoError(t, repo.Delete(ctx, id))
	}
	reloaded, err := NewFilePostRepository(path)
	require.NoError(t, err)
	p, err = reloaded.Create(ctx, "fresh start", "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.ID)
}

func TestConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posts.json")
	repo, err := NewFilePostRepository(path)
	require.NoError(t, err)

	const n = 25
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := repo.Create(ctx, fmt.Sprintf("concurrent %d", i), "")
			if err != nil {
				t.Errorf("create %d: %v", i, err)
				return
			}
			ids <- p.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	reloaded, err := NewFilePostRepository(path)
	require.NoError(t, err)
	count, err := reloaded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count, "no lost updates")
}

func TestListSearchAndOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"Hello World", "Goodbye", "hello again"} {
		i := i
		repo.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		_, err := repo.Create(ctx, title, "")
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "hello again", all[0].Title, "newest first")
	assert.Equal(t, "Hello World", all[2].Title)

	matches, err := repo.List(ctx, "HELLO")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "hello again", matches[0].Title)
	assert.Equal(t, "Hello World", matches[1].Title)

	none, err := repo.List(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Create(ctx, "stable", "body")
	require.NoError(t, err)

	snapshot, err := repo.List(ctx, "")
	require.NoError(t, err)
	snapshot[0].Title = "mutated by caller"

	p, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "stable", p.Title)
}

func TestCorruptFileSurfacesError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posts.json")

	for _, corrupt := range []string{
		"not json at all",
		`{"version":1,"next_id":1,"posts":[],"extra":true}`,
		`{"version":9,"next_id":1,"posts":[]}`,
		`{"version":1,"next_id":0,"posts":[]}`,
		`{"version":1,"next_id":3,"posts":[{"id":1,"title":"a","body":"","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"},{"id":1,"title":"b","body":"","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"}]}`,
		`{"version":1,"next_id":1,"posts":[{"id":1,"title":"a","body":"","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"}]}`,
	} {
		require.NoError(t, os.WriteFile(path, []byte(corrupt), 0o644))
		_, err := NewFilePostRepository(path)
		require.ErrorIs(t, err, ErrStorageCorrupt, "input: %s", corrupt)

		// The corrupt file must be left for the operator, not overwritten.
		data, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.Equal(t, corrupt, string(data))
	}
}

// Simulates a crash between the temp-file write and the rename: a stray
// .tmp file next to a valid collection must not affect loading, and the
// named file must still hold the last complete state.
func TestStrayTempFileFromCrash(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posts.json")

	repo, err := NewFilePostRepository(path)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "survives the crash", "body")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path+".tmp", []byte("{half writt"), 0o644))

	reloaded, err := NewFilePostRepository(path)
	require.NoError(t, err)
	posts, err := reloaded.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "survives the crash", posts[0].Title)

	// The next successful write replaces the stray temp file.
	_, err = reloaded.Create(ctx, "after recovery", "")
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReplaceAll(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Create(ctx, "old", "")
	require.NoError(t, err)

	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	incoming := []Post{
		{ID: 7, Title: "imported", Body: "b", CreatedAt: now, UpdatedAt: now},
		{ID: 3, Title: "also imported", CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, repo.ReplaceAll(ctx, incoming))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Counter moves past the largest imported id.
	p, err := repo.Create(ctx, "next", "")
	require.NoError(t, err)
	assert.Equal(t, int64(8), p.ID)

	// Invalid collections are rejected wholesale.
	err = repo.ReplaceAll(ctx, []Post{{ID: 1, Title: "", CreatedAt: now}})
	require.ErrorIs(t, err, ErrValidation)
	err = repo.ReplaceAll(ctx, []Post{
		{ID: 1, Title: "a", CreatedAt: now},
		{ID: 1, Title: "b", CreatedAt: now},
	})
	require.ErrorIs(t, err, ErrValidation)
}
