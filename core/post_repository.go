package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Post is a single blog entry.
type Post struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context, search string) ([]Post, error)
	Get(ctx context.Context, id int64) (*Post, error)
	Create(ctx context.Context, title, body string) (*Post, error)
	Update(ctx context.Context, id int64, title, body string) (*Post, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
	ReplaceAll(ctx context.Context, posts []Post) error
}

const postsFileVersion = 1

// postsFile is the on-disk shape of the collection. NextID is persisted so
// id assignment stays monotonic across deletes and restarts; a freed id is
// never handed out again.
type postsFile struct {
	Version int    `json:"version"`
	NextID  int64  `json:"next_id"`
	Posts   []Post `json:"posts"`
}

// FilePostRepository implements PostRepository on a single JSON file. It is
// the sole reader and writer of that file. Mutations are serialized through
// a mutex and persisted with a temp-write/fsync/rename cycle, so the named
// file always holds a complete collection even if the process dies mid-write.
type FilePostRepository struct {
	path string

	mu     sync.RWMutex
	posts  []Post
	nextID int64

	now func() time.Time
}

// NewFilePostRepository loads the collection from path, creating an empty
// collection file when none exists. An existing file that does not parse as
// a valid collection yields ErrStorageCorrupt and is left untouched.
func NewFilePostRepository(path string) (*FilePostRepository, error) {
	r := &FilePostRepository{path: path, nextID: 1, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create posts dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := r.persistLocked(nil, 1); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read posts file %s: %w", path, err)
	}

	pf, err := decodePostsFile(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorageCorrupt, path, err)
	}

	r.posts = pf.Posts
	r.nextID = pf.NextID
	return r, nil
}

// decodePostsFile validates the wrapper shape. Malformed JSON, an unknown
// version, non-positive or duplicate ids, and a counter behind the highest
// id are all rejected rather than partially accepted.
func decodePostsFile(data []byte) (*postsFile, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var pf postsFile
	if err := dec.Decode(&pf); err != nil {
		return nil, err
	}
	if pf.Version != postsFileVersion {
		return nil, fmt.Errorf("unsupported version %d", pf.Version)
	}
	if pf.NextID < 1 {
		return nil, fmt.Errorf("invalid next_id %d", pf.NextID)
	}
	seen := make(map[int64]struct{}, len(pf.Posts))
	for _, p := range pf.Posts {
		if p.ID < 1 {
			return nil, fmt.Errorf("invalid post id %d", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate post id %d", p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.Title) == "" {
			return nil, fmt.Errorf("post %d has empty title", p.ID)
		}
		if p.ID >= pf.NextID {
			return nil, fmt.Errorf("next_id %d not past post id %d", pf.NextID, p.ID)
		}
	}
	return &pf, nil
}

// List returns posts newest-first, optionally filtered by a case-insensitive
// substring match against the title. The returned slice is a snapshot; the
// caller never shares memory with the live collection.
func (r *FilePostRepository) List(ctx context.Context, search string) ([]Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]Post, 0, len(r.posts))
	for _, p := range r.posts {
		if needle != "" && !strings.Contains(strings.ToLower(p.Title), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *FilePostRepository) Get(ctx context.Context, id int64) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.posts {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: post %d", ErrNotFound, id)
}

func (r *FilePostRepository) Create(ctx context.Context, title, body string) (*Post, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	p := Post{
		ID:        r.nextID,
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	next := append(append([]Post(nil), r.posts...), p)
	if err := r.persistLocked(next, r.nextID+1); err != nil {
		return nil, err
	}
	r.posts = next
	r.nextID++
	return &p, nil
}

func (r *FilePostRepository) Update(ctx context.Context, id int64, title, body string) (*Post, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, p := range r.posts {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}

	next := append([]Post(nil), r.posts...)
	// id and created_at are immutable.
	next[idx].Title = title
	next[idx].Body = body
	next[idx].UpdatedAt = r.now().UTC()
	if err := r.persistLocked(next, r.nextID); err != nil {
		return nil, err
	}
	r.posts = next
	cp := next[idx]
	return &cp, nil
}

func (r *FilePostRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]Post, 0, len(r.posts))
	found := false
	for _, p := range r.posts {
		if p.ID == id {
			found = true
			continue
		}
		next = append(next, p)
	}
	if !found {
		return fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if err := r.persistLocked(next, r.nextID); err != nil {
		return err
	}
	r.posts = next
	return nil
}

func (r *FilePostRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.posts), nil
}

// ReplaceAll swaps in a whole new collection (archive restore). The id
// counter only ever moves forward: it is advanced past the largest imported
// id but never lowered.
func (r *FilePostRepository) ReplaceAll(ctx context.Context, posts []Post) error {
	next := append([]Post(nil), posts...)
	seen := make(map[int64]struct{}, len(next))
	for _, p := range next {
		if p.ID < 1 {
			return fmt.Errorf("%w: invalid post id %d", ErrValidation, p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate post id %d", ErrValidation, p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.Title) == "" {
			return fmt.Errorf("%w: post %d has empty title", ErrValidation, p.ID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nextID := r.nextID
	for _, p := range next {
		if p.ID >= nextID {
			nextID = p.ID + 1
		}
	}
	if err := r.persistLocked(next, nextID); err != nil {
		return err
	}
	r.posts = next
	r.nextID = nextID
	return nil
}

// Path returns the backing file location (used by the status endpoint).
func (r *FilePostRepository) Path() string {
	return r.path
}

// persistLocked writes the given state to a temporary file in the same
// directory, syncs it, and renames it over the target. Readers only ever
// open the named file, so they see the complete prior version or the
// complete new one, never a mix. Caller must hold the write lock.
func (r *FilePostRepository) persistLocked(posts []Post, nextID int64) error {
	pf := postsFile{Version: postsFileVersion, NextID: nextID, Posts: posts}
	if pf.Posts == nil {
		pf.Posts = []Post{}
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode posts: %w", err)
	}
	data = append(data, '\n')

	tmp := r.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp posts file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp posts file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp posts file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp posts file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace posts file: %w", err)
	}

	// Best-effort directory sync so the rename survives power loss.
	if dir, err := os.Open(filepath.Dir(r.path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}
