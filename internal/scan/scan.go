// Package scan walks a working directory into a Tree State, classifies
// files as text or binary, and diffs a Tree State against the live
// filesystem to produce the minimal operation list the Repository
// appends.
package scan

import (
	"encoding/base64"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"sit/internal/hashutil"
	"sit/internal/patch"
	"sit/internal/sitlog"
	"sit/internal/tree"
	"sit/internal/validation"
)

// Config mirrors the "Scanner ignore rules... expose them as an
// enumerated configuration" design note in spec.md §9.
type Config struct {
	ExtraIgnores         []string
	BinaryExtensions     []string
	BinaryProbeBytes     int
	PatchThresholdRatio  float64
}

// DefaultConfig returns the scanner's hard-coded defaults.
func DefaultConfig() Config {
	return Config{
		BinaryExtensions: []string{
			".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp",
			".pdf", ".zip", ".gz", ".tar", ".exe", ".dll", ".so", ".dylib",
			".mp3", ".mp4", ".mov", ".avi", ".woff", ".woff2", ".ttf",
		},
		BinaryProbeBytes:   8000,
		PatchThresholdRatio: 0.5,
	}
}

var defaultIgnoreDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".DS_Store":    true,
}

func (c Config) shouldIgnoreName(name string) bool {
	if defaultIgnoreDirs[name] {
		return true
	}
	// Disposable accelerator directories (commit index, durable scan
	// cache) live inside the repository root for convenience but are
	// never tracked content.
	if strings.HasPrefix(name, ".sit-") {
		return true
	}
	for _, extra := range c.ExtraIgnores {
		if name == extra {
			return true
		}
	}
	return false
}

// ShouldIgnoreName reports whether a directory or file entry named name
// falls under this Config's ignore rules, for callers outside this
// package that need to walk the same tree the Scanner does (the
// Repository's recursive watch setup, in particular).
func (c Config) ShouldIgnoreName(name string) bool {
	return c.shouldIgnoreName(name)
}

func (c Config) isBinaryExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range c.BinaryExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Scanner walks a working directory and builds a Tree State from what it
// finds, memoizing blob hashes per path via Cache.
type Scanner struct {
	Root   string
	Config Config
	Cache  *Cache
}

// New creates a Scanner rooted at root. If cache is nil, scanning always
// rehashes.
func New(root string, cfg Config, cache *Cache) *Scanner {
	return &Scanner{Root: root, Config: cfg, Cache: cache}
}

// Walk scans every included file under s.Root and returns the resulting
// Tree State.
func (s *Scanner) Walk() (tree.State, error) {
	return s.walkFrom(s.Root)
}

// WalkPath scans just the file or directory at relPath (relative to
// s.Root) and returns a Tree State keyed by full paths relative to
// s.Root, still only s.Root, not absRoot — used by addFiles to scan
// only the arguments it was given rather than the whole working
// directory.
func (s *Scanner) WalkPath(relPath string) (tree.State, error) {
	return s.walkFrom(filepath.Join(s.Root, relPath))
}

func (s *Scanner) walkFrom(absRoot string) (tree.State, error) {
	state := tree.State{}

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == s.Root {
			return nil
		}

		relPath, relErr := filepath.Rel(s.Root, path)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.Config.shouldIgnoreName(d.Name()) {
				return filepath.SkipDir
			}
			state[relPath] = tree.Node{Kind: tree.KindDirectory}
			return nil
		}

		// The history file and its advisory-lock sidecar (<name>.sit.lock)
		// are never tracked content.
		if strings.HasSuffix(d.Name(), ".sit") || strings.HasSuffix(d.Name(), ".sit.lock") || s.Config.shouldIgnoreName(d.Name()) {
			return nil
		}

		node, err := s.classifyFile(path, relPath)
		if err != nil {
			return err
		}
		state[relPath] = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

func (s *Scanner) classifyFile(absPath, relPath string) (tree.Node, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return tree.Node{}, err
	}

	if s.Cache != nil {
		if node, ok := s.Cache.Lookup(relPath, info.Size(), info.ModTime()); ok {
			return node, nil
		}
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return tree.Node{}, err
	}

	isBinary := s.Config.isBinaryExt(filepath.Ext(relPath)) || containsZeroByte(content, s.Config.BinaryProbeBytes)

	var node tree.Node
	if isBinary {
		node = tree.Node{
			Kind:          tree.KindBinary,
			Hash:          hashutil.BlobHashBinary(content),
			ContentBase64: base64.StdEncoding.EncodeToString(content),
			Size:          info.Size(),
		}
	} else {
		text := string(content)
		if len(content) == 0 {
			node = tree.Node{Kind: tree.KindFile, Content: "", Hash: hashutil.EmptyBlobHash}
		} else {
			node = tree.Node{Kind: tree.KindFile, Content: text, Hash: hashutil.BlobHashText(content)}
		}
	}

	if s.Cache != nil {
		s.Cache.Store(relPath, info.Size(), info.ModTime(), node)
	}

	return node, nil
}

func containsZeroByte(content []byte, probeBytes int) bool {
	n := len(content)
	if probeBytes > 0 && probeBytes < n {
		n = probeBytes
	}
	for i := 0; i < n; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// Diff compares an old Tree State (committed or staged, per caller) to a
// new Tree State (usually a live scan) and returns the minimal change
// list per spec.md §4.D, including rename detection. selector, if
// non-nil, restricts which old-tree-only paths are eligible to emit
// delete/rename records (addFiles only wants deletes for the paths it was
// asked to scan). Every path that would reach an operation record is
// checked against validation.ValidatePath first; a malformed path fails
// the whole diff rather than being silently folded in.
func Diff(old, new tree.State, cfg Config, selector map[string]bool) ([]sitlog.Record, error) {
	var creates []sitlog.Record
	var deletes []sitlog.Record

	newPaths := sortedKeys(new)
	for _, path := range newPaths {
		if err := validation.ValidatePath(path); err != nil {
			return nil, err
		}
		newNode := new[path]
		oldNode, existed := old[path]

		switch {
		case !existed:
			creates = append(creates, emitCreate(path, newNode))

		case oldNode.Kind != newNode.Kind:
			creates = append(creates, emitCreate(path, newNode))

		case newNode.Kind == tree.KindDirectory:
			// directories never change once present

		case newNode.Kind == tree.KindBinary:
			if oldNode.Hash != newNode.Hash {
				creates = append(creates, emitCreate(path, newNode))
			}

		case newNode.Kind == tree.KindFile:
			if oldNode.Content != newNode.Content {
				ops := patch.Diff(oldNode.Content, newNode.Content)
				ratio := cfg.PatchThresholdRatio
				if ratio <= 0 {
					ratio = DefaultConfig().PatchThresholdRatio
				}
				oldLen := len([]rune(oldNode.Content))
				if oldLen > 0 && float64(patch.ChangedLength(ops)) < ratio*float64(oldLen) {
					creates = append(creates, sitlog.NewRecord("patch", path, newNode.Hash).WithBody(patch.Serialize(ops)))
				} else {
					creates = append(creates, emitCreate(path, newNode))
				}
			}
		}
	}

	oldPaths := sortedKeys(old)
	for _, path := range oldPaths {
		if _, stillPresent := new[path]; stillPresent {
			continue
		}
		if selector != nil && !selector[path] {
			continue
		}
		if err := validation.ValidatePath(path); err != nil {
			return nil, err
		}
		deletes = append(deletes, sitlog.NewRecord("delete", path))
	}

	creates, deletes, renames := detectRenames(old, creates, deletes)

	out := make([]sitlog.Record, 0, len(creates)+len(deletes)+len(renames))
	out = append(out, creates...)
	out = append(out, deletes...)
	out = append(out, renames...)
	return out, nil
}

func emitCreate(path string, node tree.Node) sitlog.Record {
	switch node.Kind {
	case tree.KindDirectory:
		return sitlog.NewRecord("mkdir", path)
	case tree.KindBinary:
		return sitlog.NewRecord("binary", path, node.Hash, strconv.FormatInt(node.Size, 10)).WithBody(node.ContentBase64)
	default:
		if node.Content == "" {
			return sitlog.NewRecord("touch", path)
		}
		return sitlog.NewRecord("write", path, node.Hash).WithBody(node.Content)
	}
}

// detectRenames pairs a delete(a) whose old-tree content equals the
// content of some create(b) (write or binary only) into a single
// rename(a, b), replacing both. Each delete and create participates in at
// most one pairing. Exact content equality only; no near-match detection
// is performed (spec.md §9 Open Question, resolved as stated). Renames
// are returned separately so Diff can place them after deletes, per
// spec.md §4.D's "creates/updates first, deletes next, renames last"
// output-order contract.
func detectRenames(old tree.State, creates, deletes []sitlog.Record) (remainingCreates, remainingDeletes, renames []sitlog.Record) {
	usedCreate := make([]bool, len(creates))
	remainingDeletes = make([]sitlog.Record, 0, len(deletes))

	for _, del := range deletes {
		fromPath := del.Atoms[0]
		oldNode := old[fromPath]
		if oldNode.Kind != tree.KindFile && oldNode.Kind != tree.KindBinary {
			remainingDeletes = append(remainingDeletes, del)
			continue
		}

		pairedIdx := -1
		for i, c := range creates {
			if usedCreate[i] {
				continue
			}
			if !contentEquals(oldNode, c) {
				continue
			}
			pairedIdx = i
			break
		}

		if pairedIdx == -1 {
			remainingDeletes = append(remainingDeletes, del)
			continue
		}

		usedCreate[pairedIdx] = true
		toPath := creates[pairedIdx].Atoms[0]
		renames = append(renames, sitlog.NewRecord("rename", fromPath, toPath))
	}

	remainingCreates = make([]sitlog.Record, 0, len(creates))
	for i, c := range creates {
		if !usedCreate[i] {
			remainingCreates = append(remainingCreates, c)
		}
	}

	return remainingCreates, remainingDeletes, renames
}

func contentEquals(oldNode tree.Node, create sitlog.Record) bool {
	switch create.Cue {
	case "write":
		return oldNode.Kind == tree.KindFile && oldNode.Content == create.Body
	case "binary":
		return oldNode.Kind == tree.KindBinary && oldNode.ContentBase64 == create.Body
	case "touch":
		return oldNode.Kind == tree.KindFile && oldNode.Content == ""
	default:
		return false
	}
}

func sortedKeys(state tree.State) []string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
