// Package journal keeps an append-only git history of saved report
// snapshots, one repository per report.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"

	"dossier/api/internal/report"
)

const snapshotFile = "report.json"

// ErrNoHistory is returned for reports that have never been journaled.
var ErrNoHistory = errors.New("report has no journal")

// Entry is one journaled snapshot.
type Entry struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	author  string
	log     logrus.FieldLogger
	now     func() time.Time

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(baseDir, author string, log logrus.FieldLogger) *Service {
	if author == "" {
		author = "dossier"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		baseDir: baseDir,
		author:  author,
		log:     log,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// ReportSaved journals doc after a successful save. Failures are logged;
// the journal never blocks a save.
func (s *Service) ReportSaved(_ context.Context, doc *report.Document) {
	if _, err := s.Record(doc); err != nil {
		s.log.WithFields(logrus.Fields{"report_id": doc.ID, "revision": doc.Revision}).
			WithError(err).Warn("journal: record snapshot failed")
	}
}

// Record commits doc as the next snapshot of its report. Recording an
// unchanged snapshot returns the current head without a new commit.
func (s *Service) Record(doc *report.Document) (Entry, error) {
	lock := s.reportLock(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(doc.ID)
	if err != nil {
		return Entry{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Entry{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	root := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(root, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return Entry{}, fmt.Errorf("write %s: %w", snapshotFile, err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return Entry{}, fmt.Errorf("git add snapshot: %w", err)
	}

	message := fmt.Sprintf("Save %s (%s, %d/%d sections)\n\nrevision: %d",
		doc.CaseNumber, doc.Status, doc.AgentsCompleted, doc.AgentsTotal, doc.Revision)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.author,
			Email: fmt.Sprintf("%s@local.dossier.dev", sanitizeEmail(s.author)),
			When:  s.now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return s.head(repo)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Entry{}, fmt.Errorf("read commit object: %w", err)
	}
	return toEntry(commitObj), nil
}

// History lists snapshots newest first. limit <= 0 returns all of them.
func (s *Service) History(reportID string, limit int) ([]Entry, error) {
	lock := s.reportLock(reportID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(reportID)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Entry, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toEntry(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Snapshot returns the document as it was recorded in commit hash. hash may
// be abbreviated.
func (s *Service) Snapshot(reportID, hash string) (*report.Document, error) {
	lock := s.reportLock(reportID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(reportID)
	if err != nil {
		return nil, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSnapshot(commitObj)
}

// Tag names a snapshot, typically the one an export was rendered from.
// Re-tagging with an existing name is a no-op.
func (s *Service) Tag(reportID, hash, name string) error {
	lock := s.reportLock(reportID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(reportID)
	if err != nil {
		return err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}
	_, err = repo.CreateTag(name, resolved, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  s.author,
			Email: fmt.Sprintf("%s@local.dossier.dev", sanitizeEmail(s.author)),
			When:  s.now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// ChangedSections lists, in canonical order, the sections whose block
// differs between two snapshots.
func ChangedSections(from, to *report.Document) ([]report.SectionID, error) {
	before, err := sectionBlocks(from)
	if err != nil {
		return nil, err
	}
	after, err := sectionBlocks(to)
	if err != nil {
		return nil, err
	}
	changed := make([]report.SectionID, 0)
	for _, id := range report.Sections() {
		if !bytes.Equal(before[string(id)], after[string(id)]) {
			changed = append(changed, id)
		}
	}
	return changed, nil
}

// sectionBlocks relies on each block's JSON key matching its section id.
func sectionBlocks(doc *report.Document) (map[string][]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out := make(map[string][]byte, len(fields))
	for k, v := range fields {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *Service) ensureRepo(reportID string) (*git.Repository, error) {
	path := s.repoPath(reportID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) open(reportID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(reportID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) head(repo *git.Repository) (Entry, error) {
	ref, err := repo.Head()
	if err != nil {
		return Entry{}, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Entry{}, fmt.Errorf("read head commit: %w", err)
	}
	return toEntry(commitObj), nil
}

func (s *Service) repoPath(reportID string) string {
	return filepath.Join(s.baseDir, filepath.Base(filepath.Clean("/"+reportID)))
}

func (s *Service) reportLock(reportID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[reportID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[reportID] = lock
	return lock
}

func readSnapshot(commitObj *object.Commit) (*report.Document, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var doc report.Document
	if err := json.Unmarshal([]byte(contents), &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &doc, nil
}

func toEntry(commitObj *object.Commit) Entry {
	return Entry{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.SplitN(commitObj.Message, "\n", 2)[0],
		Author:    commitObj.Author.Name,
		Revision:  revisionTrailer(commitObj.Message),
		CreatedAt: commitObj.Author.When,
	}
}

func revisionTrailer(message string) int64 {
	for _, line := range strings.Split(message, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "revision: "); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
