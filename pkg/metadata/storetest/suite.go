package storetest

import (
	"sync"
	"testing"
	"time"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// StoreFactory creates a fresh, empty store for each test. Stores needing
// teardown register it with t.Cleanup.
type StoreFactory func(t *testing.T, opts metadata.Options) metadata.Store

// RunConformanceSuite runs every conformance test against stores produced by
// factory.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("Filesystems", func(t *testing.T) { runFilesystemTests(t, factory) })
	t.Run("Tree", func(t *testing.T) { runTreeTests(t, factory) })
	t.Run("Files", func(t *testing.T) { runFileTests(t, factory) })
	t.Run("Permissions", func(t *testing.T) { runPermissionTests(t, factory) })
	t.Run("Reclaim", func(t *testing.T) { runReclaimTests(t, factory) })
}

// Clock is a settable clock for expiry tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store metadata.Store
	clock *Clock
	fs    *metadata.Filesystem
	owner metadata.AttributeSet
}

var ownerCriterion = metadata.Criterion{Issuer: "idp", Attribute: "_subject", Value: "owner"}

func newFixture(t *testing.T, factory StoreFactory) *fixture {
	t.Helper()

	clock := NewClock()
	store := factory(t, metadata.Options{Now: clock.Now})

	fs, err := store.CreateFilesystem(t.Context(), []metadata.FilesystemGrant{{
		Criterion:   ownerCriterion,
		Permissions: metadata.AllFilesystemPermissions(),
	}}, "Docs", "docs")
	if err != nil {
		t.Fatalf("CreateFilesystem() failed: %v", err)
	}

	return &fixture{
		store: store,
		clock: clock,
		fs:    fs,
		owner: metadata.AttributeSet{Issuer: "idp", Values: map[string][]string{"_subject": {"owner"}}},
	}
}

func (f *fixture) mkdir(t *testing.T, parent *metadata.EntryID, name string) *metadata.Entry {
	t.Helper()
	e, err := f.store.CreateDirectory(t.Context(), f.fs.ID, parent, name)
	if err != nil {
		t.Fatalf("CreateDirectory(%v, %q) failed: %v", parent, name, err)
	}
	return e
}

// upload creates and finishes a file named name under parent.
func (f *fixture) upload(t *testing.T, parent *metadata.EntryID, name string, replace bool) (*metadata.Entry, error) {
	t.Helper()
	files, err := f.store.CreatePendingFileRecords(t.Context(), f.fs.ID, []metadata.PendingFileSpec{{
		Bytes: 10, Mimetype: "text/plain", BackendID: "default", BackendURI: "uri-" + name,
	}})
	if err != nil {
		t.Fatalf("CreatePendingFileRecords() failed: %v", err)
	}
	return f.store.FinishFileUpload(t.Context(), f.fs.ID, metadata.FinishUpload{
		FileID: files[0].ID, ParentID: parent, Name: name, Replace: replace,
	})
}

func (f *fixture) mustUpload(t *testing.T, parent *metadata.EntryID, name string) *metadata.Entry {
	t.Helper()
	e, err := f.upload(t, parent, name, false)
	if err != nil {
		t.Fatalf("upload(%q) failed: %v", name, err)
	}
	return e
}

func expectCode(t *testing.T, err error, code metadata.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := metadata.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func equalPath(a, b []metadata.EntryID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
