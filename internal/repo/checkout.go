package repo

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"sit/internal/tree"
)

// writeFileAtomic writes content to absPath by writing to a uuid-named
// temp file in the same directory, then renaming over the destination,
// so a crash mid-checkout never leaves a half-written file where a
// caller might read it.
func writeFileAtomic(absPath string, content []byte) error {
	dir := filepath.Dir(absPath)
	tmp := filepath.Join(dir, "."+uuid.NewString()+".sit-tmp")

	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, absPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	return nil
}

// applyCheckout reconciles root's live filesystem with target, per
// spec.md §4.R's checkout procedure: delete tracked files absent from
// target, remove directories left empty, then (re)write every
// directory and file/binary present in target.
func applyCheckout(root string, current tree.State, target tree.State) error {
	trackedFiles := make([]string, 0)
	trackedDirs := make([]string, 0)
	for path, node := range current {
		switch node.Kind {
		case tree.KindFile, tree.KindBinary:
			trackedFiles = append(trackedFiles, path)
		case tree.KindDirectory:
			trackedDirs = append(trackedDirs, path)
		}
	}

	for _, path := range trackedFiles {
		if _, ok := target[path]; ok {
			continue
		}
		absPath := filepath.Join(root, path)
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %q: %w", path, err)
		}
	}

	sort.Slice(trackedDirs, func(i, j int) bool {
		return strings.Count(trackedDirs[i], "/") > strings.Count(trackedDirs[j], "/")
	})
	for _, path := range trackedDirs {
		absPath := filepath.Join(root, path)
		entries, err := os.ReadDir(absPath)
		if err != nil {
			continue
		}
		if len(entries) == 0 {
			_ = os.Remove(absPath)
		}
	}

	dirPaths := make([]string, 0)
	filePaths := make([]string, 0)
	for path, node := range target {
		if node.Kind == tree.KindDirectory {
			dirPaths = append(dirPaths, path)
		} else {
			filePaths = append(filePaths, path)
		}
	}
	sort.Strings(dirPaths)
	sort.Strings(filePaths)

	for _, path := range dirPaths {
		absPath := filepath.Join(root, path)
		if err := os.MkdirAll(absPath, 0755); err != nil {
			return fmt.Errorf("creating directory %q: %w", path, err)
		}
	}
	for _, path := range filePaths {
		node := target[path]
		absPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return fmt.Errorf("creating parent directory for %q: %w", path, err)
		}

		var content []byte
		if node.Kind == tree.KindBinary {
			decoded, err := base64.StdEncoding.DecodeString(node.ContentBase64)
			if err != nil {
				return fmt.Errorf("decoding binary content for %q: %w", path, err)
			}
			content = decoded
		} else {
			content = []byte(node.Content)
		}

		if err := writeFileAtomic(absPath, content); err != nil {
			return fmt.Errorf("writing %q: %w", path, err)
		}
	}

	return nil
}
