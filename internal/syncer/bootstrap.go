package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hay-kot/vgloss/internal/core/gallery"
)

// GalleryPath is the backend endpoint serving the bootstrap payload.
const GalleryPath = "/api/gallery"

// FilePath is the backend endpoint serving the files of a folder.
const FilePath = "/api/file/"

// LoadBootstrap fetches the initial tags and folders from server. The request
// also primes the CSRF cookie used by later commits.
func LoadBootstrap(ctx context.Context, t Transport, server string) (gallery.Bootstrap, error) {
	u, err := url.JoinPath(server, GalleryPath)
	if err != nil {
		return gallery.Bootstrap{}, fmt.Errorf("build gallery url: %w", err)
	}

	raw, err := t.Send(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return gallery.Bootstrap{}, fmt.Errorf("load gallery: %w", err)
	}

	var b gallery.Bootstrap
	if err := json.Unmarshal(raw, &b); err != nil {
		return gallery.Bootstrap{}, fmt.Errorf("decode gallery: %w", err)
	}
	b.Tags = gallery.CloneTags(b.Tags)
	b.Folders = gallery.CloneFolders(b.Folders)
	b.Files = gallery.CloneFiles(b.Files)
	return b, nil
}

// LoadFiles fetches the files of folder ("" for the root).
func LoadFiles(ctx context.Context, t Transport, server, folder string) ([]gallery.FileInfo, error) {
	u, err := url.JoinPath(server, FilePath)
	if err != nil {
		return nil, fmt.Errorf("build file url: %w", err)
	}
	u += "?" + url.Values{"path": {folder}}.Encode()

	raw, err := t.Send(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}

	var files []gallery.FileInfo
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	return gallery.CloneFiles(files), nil
}

// LoadFile fetches a single file by content hash.
func LoadFile(ctx context.Context, t Transport, server, hash string) (gallery.FileInfo, error) {
	u, err := url.JoinPath(server, FilePath, hash)
	if err != nil {
		return gallery.FileInfo{}, fmt.Errorf("build file url: %w", err)
	}

	raw, err := t.Send(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return gallery.FileInfo{}, fmt.Errorf("load file %s: %w", hash, err)
	}

	var f gallery.FileInfo
	if err := json.Unmarshal(raw, &f); err != nil {
		return gallery.FileInfo{}, fmt.Errorf("decode file: %w", err)
	}
	return f.Clone(), nil
}
