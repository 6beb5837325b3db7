// Package hashutil computes the two hash spaces the history file relies on:
// blob hashes over file content, and commit hashes over commit metadata
// plus the operations a commit seals.
package hashutil

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// EmptyBlobHash is the blob hash of zero-length text content, used by the
// Tree Folder for touch operations.
var EmptyBlobHash = BlobHashText(nil)

// BlobHashText hashes text content using the git blob convention so the
// result matches `git hash-object` for the same bytes.
func BlobHashText(content []byte) string {
	prefix := fmt.Sprintf("blob %d\x00", len(content))
	h := sha1.New()
	h.Write([]byte(prefix))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// BlobHashBinary hashes raw binary bytes directly, with no git-style
// prefix. This intentionally diverges from git blob hashing.
func BlobHashBinary(raw []byte) string {
	h := sha1.Sum(raw)
	return hex.EncodeToString(h[:])
}

// CommitInput carries the fields that go into a commit hash.
type CommitInput struct {
	Author         string
	Timestamp      string
	Message        string
	Parent         string // empty if no parent
	StagedOpsText  string // serialized staged-operations block, no trailing newline; empty if none
}

// CommitHash computes the SHA-1 over the canonical line sequence described
// in spec.md §4.H: author, timestamp, message, optional parent, optional
// staged-ops text, joined by "\n" in that exact order.
func CommitHash(in CommitInput) string {
	lines := []string{
		"author " + in.Author,
		"timestamp " + in.Timestamp,
		"message " + in.Message,
	}
	if in.Parent != "" {
		lines = append(lines, "parent "+in.Parent)
	}
	if in.StagedOpsText != "" {
		lines = append(lines, in.StagedOpsText)
	}

	h := sha1.New()
	h.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// IsHash reports whether s looks like a 40-char lowercase hex hash.
func IsHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
