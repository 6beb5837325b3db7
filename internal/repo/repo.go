// Package repo orchestrates the history file: staging, committing,
// stashing, resetting, and checkout, all guarded by the advisory lock
// in lock.go and all derived by re-folding the log rather than keeping
// any object graph that could diverge from it.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sit/internal/errors"
	"sit/internal/hashutil"
	"sit/internal/scan"
	"sit/internal/sitlog"
	"sit/internal/tree"
)

// Repository holds everything needed to operate on a working
// directory's history file. It never caches parsed records across
// calls: every method re-reads the file, per spec.md §9's "log as
// source of truth" design note.
type Repository struct {
	root        string
	historyPath string
	config      scan.Config
	logger      *zap.Logger
	cache       *scan.Cache
	index       *CommitIndex
	closers     []func() error
}

// Option configures a Repository at Open/Init time.
type Option func(*Repository)

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

func WithConfig(cfg scan.Config) Option {
	return func(r *Repository) { r.config = cfg }
}

func WithCache(c *scan.Cache) Option {
	return func(r *Repository) { r.cache = c }
}

func WithCommitIndex(ix *CommitIndex) Option {
	return func(r *Repository) { r.index = ix }
}

// WithCloser registers a cleanup function run by Close, for accelerators
// (a durable scan cache's badger handle) that Open itself didn't create
// and so doesn't otherwise know how to release.
func WithCloser(fn func() error) Option {
	return func(r *Repository) { r.closers = append(r.closers, fn) }
}

// HistoryPath returns the path sit uses for dir's history file: the
// directory's own basename with a ".sit" extension, living inside dir
// itself (so the Scanner's "ignore any file ending in .sit" rule in
// spec.md §4.D has something to ignore).
func HistoryPath(dir string) string {
	return filepath.Join(dir, filepath.Base(dir)+".sit")
}

// Open attaches a Repository to an existing history file under dir.
func Open(dir string, opts ...Option) (*Repository, error) {
	historyPath := HistoryPath(dir)
	if _, err := os.Stat(historyPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotARepository(dir)
		}
		return nil, errors.IO("checking for history file", err)
	}

	r := &Repository{root: dir, historyPath: historyPath, config: scan.DefaultConfig()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Init creates a new history file under dir containing exactly one
// initial commit, per spec.md §4.R.
func Init(dir string, opts ...Option) (*Repository, error) {
	historyPath := HistoryPath(dir)
	if _, err := os.Stat(historyPath); err == nil {
		return nil, errors.AlreadyExists(historyPath)
	} else if !os.IsNotExist(err) {
		return nil, errors.IO("checking for existing history file", err)
	}

	lock, err := acquireLock(historyPath, true)
	if err != nil {
		return nil, errors.IO("locking history file", err)
	}
	defer lock.release()

	author := resolveAuthor()
	timestamp := time.Now().UTC().Format(time.RFC3339)
	id := hashutil.CommitHash(hashutil.CommitInput{
		Author:    author,
		Timestamp: timestamp,
		Message:   "Initial commit",
	})
	body := buildCommitBody(author, timestamp, 1, "Initial commit", "", id)
	commitRecord := sitlog.NewRecord("commit").WithBody(body)

	if err := sitlog.AppendRecords(historyPath, []sitlog.Record{commitRecord}); err != nil {
		return nil, errors.IO("writing initial commit", err)
	}

	return Open(dir, opts...)
}

// Close releases any durable accelerators the Repository holds open.
func (r *Repository) Close() error {
	var errs []string
	if r.index != nil {
		if err := r.index.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing repository: %s", strings.Join(errs, "; "))
	}
	return nil
}

func resolveAuthor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "Unknown"
}

func buildCommitBody(author, timestamp string, order int, message, parent, id string) string {
	lines := []string{
		"author " + author,
		"timestamp " + timestamp,
		"order " + strconv.Itoa(order),
		"message " + message,
	}
	if parent != "" {
		lines = append(lines, "parent "+parent)
	}
	lines = append(lines, "id "+id)
	return strings.Join(lines, "\n")
}

func (r *Repository) records() ([]sitlog.Record, error) {
	records, err := sitlog.ParseFile(r.historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotARepository(r.root)
		}
		return nil, errors.IO("reading history file", err)
	}
	return records, nil
}

func (r *Repository) positioned() ([]sitlog.Positioned, error) {
	data, err := os.ReadFile(r.historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotARepository(r.root)
		}
		return nil, errors.IO("reading history file", err)
	}
	positioned, err := sitlog.ParseRecordsWithOffsets(data)
	if err != nil {
		return nil, errors.MalformedRecord("parsing history file", err)
	}
	return positioned, nil
}

func lastCommitIndex(positioned []sitlog.Positioned) int {
	idx := -1
	for i, p := range positioned {
		if p.Record.Cue == "commit" {
			idx = i
		}
	}
	return idx
}

func commitCount(positioned []sitlog.Positioned) int {
	n := 0
	for _, p := range positioned {
		if p.Record.Cue == "commit" {
			n++
		}
	}
	return n
}

func (r *Repository) scanner() *scan.Scanner {
	return scan.New(r.root, r.config, r.cache)
}

// Status returns the operations that addFiles would emit if invoked
// over the entire working directory right now: the unstaged diff
// between the staged tree and a fresh scan.
func (r *Repository) Status() ([]sitlog.Record, error) {
	lock, err := acquireLock(r.historyPath, false)
	if err != nil {
		return nil, errors.IO("locking history file", err)
	}
	defer lock.release()

	records, err := r.records()
	if err != nil {
		return nil, err
	}
	staged, err := tree.StagedTree(records)
	if err != nil {
		return nil, errors.MalformedRecord("folding staged tree", err)
	}
	live, err := r.scanner().Walk()
	if err != nil {
		return nil, errors.IO("scanning working directory", err)
	}
	return scan.Diff(staged, live, r.config, nil)
}

// StagedTree returns the tree folded from every record in the history
// file, staged operations included, per spec.md §3's StagedTree view.
func (r *Repository) StagedTree() (tree.State, error) {
	lock, err := acquireLock(r.historyPath, false)
	if err != nil {
		return nil, errors.IO("locking history file", err)
	}
	defer lock.release()

	records, err := r.records()
	if err != nil {
		return nil, err
	}
	staged, err := tree.StagedTree(records)
	if err != nil {
		return nil, errors.MalformedRecord("folding staged tree", err)
	}
	return staged, nil
}

// Stats summarizes the history file and the current staged/tracked
// state, a feature spec.md's CLI surface names but doesn't detail.
type Stats struct {
	CommitCount      int
	StagedOpCount    int
	TrackedFiles     int
	TrackedDirs      int
	HistorySizeBytes int64
}

func (r *Repository) Stats() (Stats, error) {
	lock, err := acquireLock(r.historyPath, false)
	if err != nil {
		return Stats{}, errors.IO("locking history file", err)
	}
	defer lock.release()

	positioned, err := r.positioned()
	if err != nil {
		return Stats{}, err
	}
	lastIdx := lastCommitIndex(positioned)
	staged := 0
	if lastIdx >= 0 {
		for _, p := range positioned[lastIdx+1:] {
			if p.Record.Cue != "stash" {
				staged++
			}
		}
	}

	records := make([]sitlog.Record, len(positioned))
	for i, p := range positioned {
		records[i] = p.Record
	}
	trackedTree, err := tree.StagedTree(records)
	if err != nil {
		return Stats{}, errors.MalformedRecord("folding staged tree", err)
	}

	files, dirs := 0, 0
	for _, node := range trackedTree {
		if node.Kind == tree.KindDirectory {
			dirs++
		} else {
			files++
		}
	}

	info, err := os.Stat(r.historyPath)
	if err != nil {
		return Stats{}, errors.IO("stating history file", err)
	}

	return Stats{
		CommitCount:      commitCount(positioned),
		StagedOpCount:    staged,
		TrackedFiles:     files,
		TrackedDirs:      dirs,
		HistorySizeBytes: info.Size(),
	}, nil
}

// AddFiles scans the given paths (relative to the repository root) and
// appends the minimal operation list that reconciles them against the
// staged tree.
func (r *Repository) AddFiles(paths []string) ([]sitlog.Record, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	lock, err := acquireLock(r.historyPath, true)
	if err != nil {
		return nil, errors.IO("locking history file", err)
	}
	defer lock.release()

	records, err := r.records()
	if err != nil {
		return nil, err
	}
	staged, err := tree.StagedTree(records)
	if err != nil {
		return nil, errors.MalformedRecord("folding staged tree", err)
	}

	scanner := r.scanner()
	newState := tree.State{}
	selector := map[string]bool{}

	for _, raw := range paths {
		relPath := filepath.ToSlash(filepath.Clean(raw))
		absPath := filepath.Join(r.root, relPath)

		if _, statErr := os.Stat(absPath); statErr == nil {
			sub, walkErr := scanner.WalkPath(relPath)
			if walkErr != nil {
				return nil, errors.IO("scanning "+relPath, walkErr)
			}
			for k, v := range sub {
				newState[k] = v
				selector[k] = true
			}
		} else if !os.IsNotExist(statErr) {
			return nil, errors.IO("scanning "+relPath, statErr)
		}

		selector[relPath] = true
		prefix := relPath + "/"
		for k := range staged {
			if k == relPath || strings.HasPrefix(k, prefix) {
				selector[k] = true
			}
		}
	}

	ops, err := scan.Diff(staged, newState, r.config, selector)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	if err := sitlog.AppendRecords(r.historyPath, ops); err != nil {
		return nil, errors.IO("appending operations", err)
	}
	return ops, nil
}

// Reset drops every staged operation by truncating the history file
// back to the end of the last commit.
func (r *Repository) Reset() error {
	lock, err := acquireLock(r.historyPath, true)
	if err != nil {
		return errors.IO("locking history file", err)
	}
	defer lock.release()

	positioned, err := r.positioned()
	if err != nil {
		return err
	}
	lastIdx := lastCommitIndex(positioned)
	if lastIdx < 0 {
		return errors.MalformedRecord("history file has no commit records", nil)
	}
	endOffset := positioned[lastIdx].EndOffset
	if err := sitlog.TruncateFile(r.historyPath, endOffset); err != nil {
		return errors.IO("truncating history file", err)
	}
	return nil
}

// Stash collects all staged operations, removes them from the staged
// tail, and appends a single stash record carrying them as its body.
// A no-op when nothing is staged.
func (r *Repository) Stash() error {
	lock, err := acquireLock(r.historyPath, true)
	if err != nil {
		return errors.IO("locking history file", err)
	}
	defer lock.release()

	positioned, err := r.positioned()
	if err != nil {
		return err
	}
	lastIdx := lastCommitIndex(positioned)
	if lastIdx < 0 {
		return errors.MalformedRecord("history file has no commit records", nil)
	}

	staged := positioned[lastIdx+1:]
	var stagedRecords, keptStashes []sitlog.Record
	for _, p := range staged {
		if p.Record.Cue == "stash" {
			keptStashes = append(keptStashes, p.Record)
		} else {
			stagedRecords = append(stagedRecords, p.Record)
		}
	}
	if len(stagedRecords) == 0 {
		return nil
	}
	body := strings.TrimSuffix(string(sitlog.SerializeAll(stagedRecords)), "\n")

	stashCount := 0
	for _, p := range positioned {
		if p.Record.Cue == "stash" {
			stashCount++
		}
	}
	stashRecord := sitlog.NewRecord("stash", strconv.Itoa(stashCount+1)).WithBody(body)

	if err := sitlog.TruncateFile(r.historyPath, staged[0].StartOffset); err != nil {
		return errors.IO("truncating history file", err)
	}
	if err := sitlog.AppendRecords(r.historyPath, append(keptStashes, stashRecord)); err != nil {
		return errors.IO("appending stash record", err)
	}
	return nil
}

// Unstash restores the last stash record's children as staged
// operations, in place of the stash record.
func (r *Repository) Unstash() error {
	lock, err := acquireLock(r.historyPath, true)
	if err != nil {
		return errors.IO("locking history file", err)
	}
	defer lock.release()

	positioned, err := r.positioned()
	if err != nil {
		return err
	}
	if len(positioned) == 0 || positioned[len(positioned)-1].Record.Cue != "stash" {
		return errors.UnknownTarget("stash")
	}

	last := positioned[len(positioned)-1]
	children, err := sitlog.ParseRecords([]byte(last.Record.Body))
	if err != nil {
		return errors.MalformedRecord("parsing stash body", err)
	}

	if err := sitlog.TruncateFile(r.historyPath, last.StartOffset); err != nil {
		return errors.IO("truncating history file", err)
	}
	if err := sitlog.AppendRecords(r.historyPath, children); err != nil {
		return errors.IO("restoring stashed operations", err)
	}
	return nil
}

// Commit seals every currently staged operation into a new commit
// record, chained to the prior commit.
func (r *Repository) Commit(message string) (string, error) {
	lock, err := acquireLock(r.historyPath, true)
	if err != nil {
		return "", errors.IO("locking history file", err)
	}
	defer lock.release()

	positioned, err := r.positioned()
	if err != nil {
		return "", err
	}
	lastIdx := lastCommitIndex(positioned)
	if lastIdx < 0 {
		return "", errors.MalformedRecord("history file has no commit records", nil)
	}

	staged := positioned[lastIdx+1:]
	hasOp := false
	for _, p := range staged {
		hasOp = hasOp || p.Record.Cue != "stash"
	}
	if !hasOp {
		return "", errors.EmptyStage()
	}

	stagedRecords := make([]sitlog.Record, len(staged))
	for i, p := range staged {
		stagedRecords[i] = p.Record
	}
	stagedOpsText := strings.TrimSuffix(string(sitlog.SerializeAll(stagedRecords)), "\n")

	parent := commitRecordField(positioned[lastIdx].Record, "id")
	order := commitCount(positioned) + 1
	author := resolveAuthor()
	timestamp := time.Now().UTC().Format(time.RFC3339)

	id := hashutil.CommitHash(hashutil.CommitInput{
		Author:        author,
		Timestamp:     timestamp,
		Message:       message,
		Parent:        parent,
		StagedOpsText: stagedOpsText,
	})
	body := buildCommitBody(author, timestamp, order, message, parent, id)
	commitRecord := sitlog.NewRecord("commit").WithBody(body)

	if err := sitlog.AppendRecords(r.historyPath, []sitlog.Record{commitRecord}); err != nil {
		return "", errors.IO("appending commit record", err)
	}

	if r.index != nil {
		if refreshed, rerr := r.positioned(); rerr == nil {
			_ = r.index.Rebuild(refreshed)
		}
	}

	return id, nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FindCommit resolves query to a commit record and its 1-based order,
// per spec.md §4.R: a pure-digit query matches by order, otherwise the
// first commit whose id contains query as a substring. When a commit
// index is attached, it is tried first so a lookup costs a byte-range
// read instead of a full linear scan; any miss or absent index falls
// back to scanning the file from byte 0, per §5's degradation rule.
func (r *Repository) FindCommit(query string) (sitlog.Record, int, error) {
	if r.index != nil {
		var entry commitEntry
		var ok bool
		if digitsOnly(query) {
			want, _ := strconv.Atoi(query)
			entry, ok = r.index.FindByOrder(want)
		} else {
			entry, ok = r.index.FindByIDSubstring(query)
		}
		if ok {
			rec, err := r.recordAt(entry.StartOffset, entry.EndOffset)
			if err == nil {
				return rec, entry.Order, nil
			}
		}
	}

	positioned, err := r.positioned()
	if err != nil {
		return sitlog.Record{}, 0, err
	}

	order := 0
	if digitsOnly(query) {
		want, _ := strconv.Atoi(query)
		for _, p := range positioned {
			if p.Record.Cue != "commit" {
				continue
			}
			order++
			if order == want {
				return p.Record, order, nil
			}
		}
		return sitlog.Record{}, 0, errors.UnknownTarget(query)
	}

	for _, p := range positioned {
		if p.Record.Cue != "commit" {
			continue
		}
		order++
		id := commitRecordField(p.Record, "id")
		if strings.Contains(id, query) {
			return p.Record, order, nil
		}
	}
	return sitlog.Record{}, 0, errors.UnknownTarget(query)
}

// recordAt parses the single record occupying [start, end) of the
// history file, the byte range a CommitIndex entry carries, so a
// successful index lookup never has to parse the rest of the file.
func (r *Repository) recordAt(start, end int64) (sitlog.Record, error) {
	f, err := os.Open(r.historyPath)
	if err != nil {
		return sitlog.Record{}, err
	}
	defer f.Close()

	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, start); err != nil {
		return sitlog.Record{}, err
	}
	records, err := sitlog.ParseRecords(buf)
	if err != nil || len(records) != 1 {
		return sitlog.Record{}, errors.MalformedRecord("parsing indexed commit record", err)
	}
	return records[0], nil
}

// Checkout reconciles the working directory with a target tree: the
// staged tree when query is empty, or the committed tree as of the
// commit query resolves to. Refuses when there are unstaged changes.
func (r *Repository) Checkout(query string) error {
	lock, err := acquireLock(r.historyPath, false)
	if err != nil {
		return errors.IO("locking history file", err)
	}
	defer lock.release()

	records, err := r.records()
	if err != nil {
		return err
	}
	staged, err := tree.StagedTree(records)
	if err != nil {
		return errors.MalformedRecord("folding staged tree", err)
	}

	live, err := r.scanner().Walk()
	if err != nil {
		return errors.IO("scanning working directory", err)
	}
	unstaged, err := scan.Diff(staged, live, r.config, nil)
	if err != nil {
		return err
	}
	if len(unstaged) > 0 {
		names := make([]string, 0, len(unstaged))
		for _, op := range unstaged {
			if len(op.Atoms) > 0 {
				names = append(names, op.Cue+" "+op.Atoms[0])
			}
		}
		sort.Strings(names)
		return errors.DirtyWorkingTree(strings.Join(names, ", "))
	}

	target := staged
	if query != "" {
		commitRecord, _, err := r.FindCommit(query)
		if err != nil {
			return err
		}
		id := commitRecordField(commitRecord, "id")
		target, err = tree.Fold(records, tree.StopAfterCommitID(id))
		if err != nil {
			return errors.MalformedRecord("folding target tree", err)
		}
	}

	if err := applyCheckout(r.root, staged, target); err != nil {
		return errors.IO("reconciling working directory", err)
	}
	return nil
}
