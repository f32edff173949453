package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"talion/internal/common/fsutil"
	"talion/pkg/types"
)

// ErrModelNotFound is returned by Resolve when no GGUF file matches the model id.
var ErrModelNotFound = errors.New("model not found")

// Scan lists *.gguf files under dir, at the top level and one directory deep
// (the org/name layout hub downloads use). ID is the slash-separated path
// relative to dir; Path is absolute.
func Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.AbsPath(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(abs, p)
		if d.IsDir() {
			// root, org, org/name
			if rel != "." && strings.Count(filepath.ToSlash(rel), "/") >= 2 {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".gguf") {
			return nil
		}
		id := filepath.ToSlash(rel)
		models = append(models, types.Model{ID: id, Name: d.Name(), Path: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", abs, err)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve finds the GGUF file backing modelID. modelID may be a direct file
// path, a scanned ID, a hub repository name ("org/name") stored as a
// directory under dir, or a hub name whose last segment prefixes a file name
// (e.g. "Equall/Saul-7B-Instruct-v1" matches "saul-7b-instruct-v1.Q4_K_M.gguf").
// The lexically first match wins.
func Resolve(dir, modelID string) (types.Model, error) {
	if strings.TrimSpace(modelID) == "" {
		return types.Model{}, fmt.Errorf("%w: empty model id", ErrModelNotFound)
	}
	if p, err := fsutil.AbsPath(modelID); err == nil && strings.HasSuffix(strings.ToLower(p), ".gguf") && fsutil.IsFile(p) {
		return types.Model{ID: modelID, Name: filepath.Base(p), Path: p}, nil
	}
	models, err := Scan(dir)
	if err != nil {
		return types.Model{}, err
	}
	slug := hubSlug(modelID)
	for _, m := range models {
		switch {
		case m.ID == modelID,
			strings.HasPrefix(m.ID, modelID+"/"),
			strings.HasPrefix(strings.ToLower(m.Name), slug):
			return types.Model{ID: modelID, Name: m.Name, Path: m.Path}, nil
		}
	}
	return types.Model{}, fmt.Errorf("%w: %s (searched %s)", ErrModelNotFound, modelID, dir)
}

// Matches reports whether the GGUF file at path plausibly backs modelID,
// using the same rules as Resolve. path may come from another host, so only
// its slash-separated components are inspected.
func Matches(modelID, path string) bool {
	if strings.TrimSpace(modelID) == "" || strings.TrimSpace(path) == "" {
		return false
	}
	p := strings.ReplaceAll(path, "\\", "/")
	base := strings.ToLower(p[strings.LastIndex(p, "/")+1:])
	if strings.HasSuffix(strings.ToLower(modelID), ".gguf") {
		id := strings.ReplaceAll(modelID, "\\", "/")
		return base == strings.ToLower(id[strings.LastIndex(id, "/")+1:])
	}
	if strings.Contains(p, "/"+modelID+"/") {
		return true
	}
	return strings.HasPrefix(base, hubSlug(modelID))
}

// hubSlug is the lowercased last segment of a hub id ("org/name" -> "name").
func hubSlug(modelID string) string {
	slug := strings.ToLower(modelID)
	if i := strings.LastIndex(slug, "/"); i >= 0 {
		slug = slug[i+1:]
	}
	return slug
}
