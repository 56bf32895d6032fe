package core

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	maxArchiveEntries   = 2000
	maxArchiveTotalSize = 32 * 1024 * 1024
	maxArchiveFileSize  = 4 * 1024 * 1024
)

// Archive layout:
//
//	posts.yaml (required) — collection metadata, one entry per post
//	posts/<id>.md         — post body, referenced from posts.yaml
//
// Files may be placed directly under the archive root or under a single
// top-level folder.

type archiveDoc struct {
	Version int                `yaml:"version"`
	Posts   []archivePostEntry `yaml:"posts"`
}

type archivePostEntry struct {
	ID        int64     `yaml:"id"`
	Title     string    `yaml:"title"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
	BodyFile  string    `yaml:"body_file"`
}

// BuildPostsArchive packs the collection into a zip backup the admin can
// download and later restore through ParsePostsArchive.
func BuildPostsArchive(posts []Post) ([]byte, error) {
	doc := archiveDoc{Version: postsFileVersion}
	for _, p := range posts {
		doc.Posts = append(doc.Posts, archivePostEntry{
			ID:        p.ID,
			Title:     p.Title,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
			BodyFile:  bodyFileName(p.ID),
		})
	}
	meta, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	write := func(name string, content []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(content)
		return err
	}

	if err := write("posts.yaml", meta); err != nil {
		return nil, err
	}
	for _, p := range posts {
		if err := write(bodyFileName(p.ID), []byte(p.Body)); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func bodyFileName(id int64) string {
	return fmt.Sprintf("posts/%d.md", id)
}

// ParsePostsArchive converts an uploaded zip backup into a post collection.
// Malformed packages are rejected as a whole; a partially valid archive is
// never imported.
func ParsePostsArchive(data []byte) ([]Post, error) {
	if len(data) == 0 {
		return nil, errors.New("archive is empty")
	}
	// Accept zip only
	if len(data) < 4 || !bytes.Equal(data[:4], []byte{'P', 'K', 0x03, 0x04}) {
		return nil, errors.New("only zip archives are supported")
	}

	files := map[string][]byte{}
	if err := collectFromZip(data, files); err != nil {
		return nil, err
	}

	metaBytes, ok := files["posts.yaml"]
	if !ok {
		return nil, errors.New("posts.yaml not found in archive")
	}

	var doc archiveDoc
	if err := yaml.Unmarshal(metaBytes, &doc); err != nil {
		return nil, fmt.Errorf("posts.yaml is malformed: %w", err)
	}
	if doc.Version != postsFileVersion {
		return nil, fmt.Errorf("unsupported archive version %d", doc.Version)
	}

	seen := map[int64]struct{}{}
	posts := make([]Post, 0, len(doc.Posts))
	for _, e := range doc.Posts {
		if e.ID < 1 {
			return nil, fmt.Errorf("invalid post id %d", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("duplicate post id %d", e.ID)
		}
		seen[e.ID] = struct{}{}
		title := strings.TrimSpace(e.Title)
		if title == "" {
			return nil, fmt.Errorf("post %d has empty title", e.ID)
		}
		if e.CreatedAt.IsZero() {
			return nil, fmt.Errorf("post %d has no created_at", e.ID)
		}
		updatedAt := e.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = e.CreatedAt
		}

		body := ""
		if e.BodyFile != "" {
			content, ok := files[normalizeArchivePath(e.BodyFile)]
			if !ok {
				return nil, fmt.Errorf("body file %s missing for post %d", e.BodyFile, e.ID)
			}
			body = string(content)
		}

		posts = append(posts, Post{
			ID:        e.ID,
			Title:     title,
			Body:      body,
			CreatedAt: e.CreatedAt.UTC(),
			UpdatedAt: updatedAt.UTC(),
		})
	}

	sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
	return posts, nil
}

// collectFromZip reads zip entries into files map with size/entry/path
// validation. A single top-level folder is tolerated and stripped.
func collectFromZip(data []byte, files map[string][]byte) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("cannot open zip: %w", err)
	}
	var total int64
	type entry struct {
		name    string
		content []byte
	}
	var entries []entry

	for i, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if i+1 > maxArchiveEntries {
			return fmt.Errorf("too many archive entries (max %d)", maxArchiveEntries)
		}
		norm := normalizeArchivePath(f.Name)
		if strings.HasPrefix(norm, "/") || strings.Contains(norm, "../") {
			return errors.New("archive contains an unsafe path")
		}
		if f.UncompressedSize64 > maxArchiveFileSize {
			return fmt.Errorf("file %s is too large (max %d bytes)", f.Name, maxArchiveFileSize)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("cannot open %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxArchiveFileSize+1))
		rc.Close()
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", f.Name, err)
		}
		if int64(len(content)) > maxArchiveFileSize {
			return fmt.Errorf("file %s is too large (max %d bytes)", f.Name, maxArchiveFileSize)
		}
		total += int64(len(content))
		if total > maxArchiveTotalSize {
			return fmt.Errorf("archive too large when extracted (max %d bytes)", maxArchiveTotalSize)
		}
		entries = append(entries, entry{name: norm, content: content})
	}

	// Strip a single common top-level folder when posts.yaml lives under it.
	root := ""
	foundAtRoot := false
	for _, e := range entries {
		if e.name == "posts.yaml" {
			foundAtRoot = true
			break
		}
		if parts := strings.SplitN(e.name, "/", 2); len(parts) == 2 && parts[1] == "posts.yaml" {
			root = parts[0] + "/"
		}
	}

	for _, e := range entries {
		name := e.name
		if !foundAtRoot && root != "" && strings.HasPrefix(name, root) {
			name = strings.TrimPrefix(name, root)
		}
		if name == "" {
			continue
		}
		files[name] = e.content
	}
	return nil
}

func normalizeArchivePath(p string) string {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "./")
	cleaned = strings.TrimPrefix(cleaned, "/")
	return cleaned
}
