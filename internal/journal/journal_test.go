package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/api/internal/report"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	log := logrus.New()
	log.SetOutput(os.Stderr)
	svc := New(dir, "Report Desk", log)
	svc.now = func() time.Time { return fixedNow }
	return svc, dir
}

func TestRecordAndHistory(t *testing.T) {
	svc, dir := newTestService(t)

	doc := report.New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	doc.Revision = 1
	first, err := svc.Record(doc)
	require.NoError(t, err)
	assert.Len(t, first.Hash, 7)
	assert.Equal(t, int64(1), first.Revision)
	assert.Equal(t, "Report Desk", first.Author)

	_, err = os.Stat(filepath.Join(dir, "rep-1", snapshotFile))
	require.NoError(t, err)

	next, err := report.ApplySectionUpdate(doc, report.SectionFinancial, report.Patch{"netWorth": "$1M"}, fixedNow)
	require.NoError(t, err)
	next.Revision = 2
	second, err := svc.Record(next)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, second.Hash)

	history, err := svc.History("rep-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.Hash, history[0].Hash)
	assert.Equal(t, int64(2), history[0].Revision)
	assert.True(t, strings.HasPrefix(history[1].Message, "Save IR-1"))

	limited, err := svc.History("rep-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordUnchangedSnapshotIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	doc := report.New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)

	first, err := svc.Record(doc)
	require.NoError(t, err)
	again, err := svc.Record(doc)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, again.Hash)

	history, err := svc.History("rep-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSnapshotRestoresDocument(t *testing.T) {
	svc, _ := newTestService(t)
	doc := report.New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	entry, err := svc.Record(doc)
	require.NoError(t, err)

	next, err := report.ApplySectionUpdate(doc, report.SectionLegal, report.Patch{"sanctions": []any{"OFAC"}}, fixedNow)
	require.NoError(t, err)
	_, err = svc.Record(next)
	require.NoError(t, err)

	old, err := svc.Snapshot("rep-1", entry.Hash)
	require.NoError(t, err)
	assert.Empty(t, old.Legal.Sanctions)
	assert.Equal(t, "Jane Doe", old.TargetName)

	require.NoError(t, svc.Tag("rep-1", entry.Hash, "export-r1"))
	require.NoError(t, svc.Tag("rep-1", entry.Hash, "export-r1"), "re-tagging is a no-op")
}

func TestHistoryWithoutJournal(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.History("never-saved", 10)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestReportSavedObserverRecords(t *testing.T) {
	svc, _ := newTestService(t)
	doc := report.New("rep-7", "IR-7", "Jane Doe", nil, fixedNow)
	svc.ReportSaved(context.Background(), doc)

	history, err := svc.History("rep-7", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRepoPathCannotEscapeBaseDir(t *testing.T) {
	svc, dir := newTestService(t)
	assert.Equal(t, filepath.Join(dir, "passwd"), svc.repoPath("../../etc/passwd"))
}

func TestChangedSections(t *testing.T) {
	doc := report.New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	next, err := report.ApplySectionUpdate(doc, report.SectionFinancial, report.Patch{"netWorth": "$1M"}, fixedNow)
	require.NoError(t, err)
	next, err = report.ApplySectionUpdate(next, report.SectionPersonal, report.Patch{"dob": "1980-01-01"}, fixedNow)
	require.NoError(t, err)

	changed, err := ChangedSections(doc, next)
	require.NoError(t, err)
	assert.Equal(t, []report.SectionID{report.SectionPersonal, report.SectionFinancial}, changed)

	none, err := ChangedSections(next, next.Clone())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSanitizeEmail(t *testing.T) {
	assert.Equal(t, "Report.Desk", sanitizeEmail("Report Desk"))
	assert.Equal(t, "user", sanitizeEmail("!!!"))
}
