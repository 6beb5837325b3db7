// Package tree folds an operation-record prefix into a virtual filesystem
// tree: the deterministic replay that both checkout and the differ build
// on top of.
package tree

import (
	"fmt"
	"strings"

	"sit/internal/hashutil"
	"sit/internal/patch"
	"sit/internal/sitlog"
)

// NodeKind tags which variant a Node is.
type NodeKind int

const (
	KindFile NodeKind = iota
	KindBinary
	KindDirectory
)

// Node is a tagged value at one path in a State.
type Node struct {
	Kind NodeKind

	// File
	Content string
	Hash    string

	// Binary
	ContentBase64 string
	Size          int64
}

// State is the path → node mapping obtained by folding an operation
// prefix. Insertion order is irrelevant for correctness.
type State map[string]Node

// Clone returns a shallow copy safe to mutate independently of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// StopFunc is evaluated on each commit record during a fold; folding halts
// before applying operations past the first commit for which it returns
// true.
type StopFunc func(commit sitlog.Record) bool

// StopAfterCommitID halts folding just after sealing the commit with the
// given id (i.e. it folds through that commit's operations, then stops).
// Passed to Fold to compute the committed tree as of a specific commit.
func StopAfterCommitID(id string) StopFunc {
	return func(commit sitlog.Record) bool {
		return commitField(commit, "id") == id
	}
}

// Fold replays records left to right into a Tree State. If stop is
// non-nil, folding halts before applying any operation that appears after
// the commit record for which stop first returns true; that commit's own
// preceding operations are still applied (they are what it seals).
func Fold(records []sitlog.Record, stop StopFunc) (State, error) {
	state := State{}

	for _, r := range records {
		switch r.Cue {
		case "commit":
			if stop != nil && stop(r) {
				return state, nil
			}
			continue
		case "stash":
			continue // inert with respect to the tree, per spec.md §3 invariant 5
		}

		if err := applyOp(state, r); err != nil {
			return nil, err
		}
	}

	return state, nil
}

// CommittedTree folds up to but not past the most recent commit: every
// commit in records contributes its operations, nothing staged after the
// last commit does.
func CommittedTree(records []sitlog.Record) (State, error) {
	lastCommitIdx := -1
	for i, r := range records {
		if r.Cue == "commit" {
			lastCommitIdx = i
		}
	}
	if lastCommitIdx == -1 {
		return State{}, nil
	}
	return Fold(records[:lastCommitIdx+1], nil)
}

// StagedTree folds the entire record sequence, including any operations
// appended after the last commit.
func StagedTree(records []sitlog.Record) (State, error) {
	return Fold(records, nil)
}

func applyOp(state State, r sitlog.Record) error {
	switch r.Cue {
	case "write":
		if len(r.Atoms) != 2 {
			return fmt.Errorf("malformed write record: %v", r.Atoms)
		}
		path, hash := r.Atoms[0], r.Atoms[1]
		state[path] = Node{Kind: KindFile, Content: r.Body, Hash: hash}

	case "binary":
		if len(r.Atoms) != 3 {
			return fmt.Errorf("malformed binary record: %v", r.Atoms)
		}
		path, hash, sizeStr := r.Atoms[0], r.Atoms[1], r.Atoms[2]
		var size int64
		if _, err := fmt.Sscanf(sizeStr, "%d", &size); err != nil {
			return fmt.Errorf("malformed binary size %q: %w", sizeStr, err)
		}
		state[path] = Node{Kind: KindBinary, ContentBase64: r.Body, Hash: hash, Size: size}

	case "touch":
		if len(r.Atoms) != 1 {
			return fmt.Errorf("malformed touch record: %v", r.Atoms)
		}
		state[r.Atoms[0]] = Node{Kind: KindFile, Content: "", Hash: hashutil.EmptyBlobHash}

	case "mkdir":
		if len(r.Atoms) != 1 {
			return fmt.Errorf("malformed mkdir record: %v", r.Atoms)
		}
		state[r.Atoms[0]] = Node{Kind: KindDirectory}

	case "delete":
		if len(r.Atoms) != 1 {
			return fmt.Errorf("malformed delete record: %v", r.Atoms)
		}
		path := r.Atoms[0]
		if _, ok := state[path]; !ok {
			return fmt.Errorf("malformed record: delete of absent path %q", path)
		}
		delete(state, path)

	case "rename":
		if len(r.Atoms) != 2 {
			return fmt.Errorf("malformed rename record: %v", r.Atoms)
		}
		from, to := r.Atoms[0], r.Atoms[1]
		node, ok := state[from]
		if !ok {
			return fmt.Errorf("malformed record: rename of absent path %q", from)
		}
		state[to] = node
		delete(state, from)

	case "patch":
		if len(r.Atoms) != 2 {
			return fmt.Errorf("malformed patch record: %v", r.Atoms)
		}
		path, hash := r.Atoms[0], r.Atoms[1]
		existing, ok := state[path]
		if !ok || existing.Kind != KindFile {
			return fmt.Errorf("malformed record: patch of non-existent text file %q", path)
		}
		ops, err := patch.Deserialize(r.Body)
		if err != nil {
			return fmt.Errorf("malformed patch body for %q: %w", path, err)
		}
		newContent, err := patch.Apply(existing.Content, ops)
		if err != nil {
			return fmt.Errorf("applying patch to %q: %w", path, err)
		}
		state[path] = Node{Kind: KindFile, Content: newContent, Hash: hash}

	default:
		return fmt.Errorf("malformed record: unknown cue %q", r.Cue)
	}

	return nil
}

func commitField(commit sitlog.Record, name string) string {
	if !commit.HasBody {
		return ""
	}
	for _, line := range strings.Split(commit.Body, "\n") {
		key, value, ok := strings.Cut(line, " ")
		if ok && key == name {
			return value
		}
	}
	return ""
}
