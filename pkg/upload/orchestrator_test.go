package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagebox/pkg/access"
	"github.com/marmos91/storagebox/pkg/backend"
	membackend "github.com/marmos91/storagebox/pkg/backend/memory"
	"github.com/marmos91/storagebox/pkg/backend/repository"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metadata/store/memory"
	"github.com/marmos91/storagebox/pkg/uploadtoken"
)

const testBackend = "mem"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	clock   *clock
	store   *memory.MemoryMetadataStore
	objects *membackend.Store
	repo    *repository.Repository
	signer  *uploadtoken.Signer
	orch    *Orchestrator
	fsID    metadata.FilesystemID
	owner   *identity.UserContext
	guest   *identity.UserContext
}

func newEnv(t *testing.T) *env {
	t.Helper()

	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewMemoryMetadataStore(metadata.Options{Now: clk.Now})
	t.Cleanup(func() { _ = store.Close() })

	objects := membackend.New()
	repo := repository.New(nil, repository.Options{})
	repo.Register(testBackend, objects)
	t.Cleanup(func() { _ = repo.Close() })

	signer, err := uploadtoken.NewSigner(testSecret)
	require.NoError(t, err)
	signer = signer.WithClock(clk.Now)

	owner := identity.New("idp", "owner", nil, true)
	guest := identity.New("idp", "guest", nil, false)

	fs, err := store.CreateFilesystem(context.Background(), []metadata.FilesystemGrant{{
		Criterion:   owner.DefaultCriterion(),
		Permissions: metadata.AllFilesystemPermissions(),
	}}, "Docs", "docs")
	require.NoError(t, err)

	e := &env{
		clock:   clk,
		store:   store,
		objects: objects,
		repo:    repo,
		signer:  signer,
		fsID:    fs.ID,
		owner:   owner,
		guest:   guest,
	}
	e.orch = e.newOrchestrator(t, store)
	return e
}

func (e *env) newOrchestrator(t *testing.T, store Store) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Store:    store,
		Access:   access.NewResolver(e.store),
		Selector: backend.StaticSelector(testBackend),
		Backends: e.repo,
		Signer:   e.signer,
		Now:      e.clock.Now,
	})
	require.NoError(t, err)
	return o
}

// upload plans and finishes one file as the owner.
func (e *env) upload(t *testing.T, parentID *metadata.EntryID, name, content string, replace bool) *metadata.Entry {
	t.Helper()
	ctx := context.Background()
	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{
		Bytes: int64(len(content)), Mimetype: "text/plain", ParentID: parentID, Name: name, Replace: replace,
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, DecisionUpload, results[0].Decision)

	entry, err := e.orch.UploadFile(ctx, e.owner, e.fsID, results[0].Token, strings.NewReader(content))
	require.NoError(t, err)
	return entry
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestUploadSingleFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	content := strings.Repeat("x", 1000)

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{
		Bytes: 1000, Mimetype: "text/plain", Name: "a.txt",
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, DecisionUpload, results[0].Decision)
	assert.NotEmpty(t, results[0].Token)
	assert.Nil(t, results[0].ExistingEntry)

	entry, err := e.orch.UploadFile(ctx, e.owner, e.fsID, results[0].Token, strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, metadata.EntryTypeFile, entry.Type)
	assert.Equal(t, "a.txt", entry.Name)
	assert.Nil(t, entry.ParentID)
	require.NotNil(t, entry.FileID)

	file, err := e.store.GetFile(ctx, e.fsID, *entry.FileID)
	require.NoError(t, err)
	assert.True(t, file.UploadFinished)
	assert.Equal(t, "text/plain", file.Mimetype)
	assert.True(t, e.objects.Has(file.BackendURI))

	_, err = e.orch.UploadFile(ctx, e.owner, e.fsID, results[0].Token, strings.NewReader(content))
	assert.True(t, metadata.HasCode(err, metadata.ErrFileAlreadyUploaded), "got %v", err)
}

func TestStartFileUploadEmptyBatch(t *testing.T) {
	e := newEnv(t)

	results, err := e.orch.StartFileUpload(context.Background(), e.owner, e.fsID, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStartFileUploadDefaultsMimetype(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{Bytes: 0, Name: "empty"}})
	require.NoError(t, err)

	payload, err := e.signer.Verify(e.fsID, results[0].Token)
	require.NoError(t, err)
	file, err := e.store.GetFile(ctx, e.fsID, payload.FileID)
	require.NoError(t, err)
	assert.Equal(t, DefaultMimetype, file.Mimetype)
	assert.Equal(t, testBackend, file.BackendID)
}

func TestDuplicateWithoutReplace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	existing := e.upload(t, nil, "a.txt", "old", false)

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{
		Bytes: 3, Mimetype: "text/plain", Name: "a.txt",
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, DecisionDuplicate, results[0].Decision)
	assert.Empty(t, results[0].Token)
	require.NotNil(t, results[0].ExistingEntry)
	assert.Equal(t, existing.ID, results[0].ExistingEntry.ID)

	// No pending record was allocated: the next file takes the next ID.
	next, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{Bytes: 1, Name: "b.txt"}})
	require.NoError(t, err)
	payload, err := e.signer.Verify(e.fsID, next[0].Token)
	require.NoError(t, err)
	assert.Equal(t, *existing.FileID+1, payload.FileID)

	listing, err := e.store.ListDirectory(ctx, e.fsID, nil)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, existing.ID, listing[0].ID)
}

func TestReplaceExistingFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	old := e.upload(t, nil, "a.txt", "old", false)

	replaced := e.upload(t, nil, "a.txt", "newer", true)
	assert.Equal(t, "a.txt", replaced.Name)
	assert.NotEqual(t, *old.FileID, *replaced.FileID)

	listing, err := e.store.ListDirectory(ctx, e.fsID, nil)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, replaced.ID, listing[0].ID)

	oldFile, err := e.store.GetFile(ctx, e.fsID, *old.FileID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), oldFile.ReferenceCount)
}

func TestCannotReplaceDirectoryWithFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.store.CreateDirectory(ctx, e.fsID, nil, "docs")
	require.NoError(t, err)

	for _, replace := range []bool{false, true} {
		_, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{
			Bytes: 1, Name: "docs", Replace: replace,
		}})
		assert.True(t, metadata.HasCode(err, metadata.ErrCannotReplaceDirectoryWithFile), "replace=%v: %v", replace, err)
	}
}

func TestResultsFollowInputOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dir, err := e.store.CreateDirectory(ctx, e.fsID, nil, "dir")
	require.NoError(t, err)
	e.upload(t, nil, "dup.txt", "x", false)
	e.upload(t, &dir.ID, "nested.txt", "y", false)

	files := []FileRequest{
		{Bytes: 1, Name: "new-1.txt"},
		{Bytes: 1, Name: "dup.txt"},
		{Bytes: 1, ParentID: &dir.ID, Name: "new-2.txt"},
		{Bytes: 1, ParentID: &dir.ID, Name: "nested.txt"},
		{Bytes: 1, ParentID: &dir.ID, Name: "nested.txt", Replace: true},
	}
	// The last two target the same name; split them across batches.
	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, files[:4])
	require.NoError(t, err)
	require.Len(t, results, 4)

	want := []Decision{DecisionUpload, DecisionDuplicate, DecisionUpload, DecisionDuplicate}
	for i, r := range results {
		assert.Equal(t, want[i], r.Decision, "file %d", i)
		if r.Decision == DecisionUpload {
			payload, err := e.signer.Verify(e.fsID, r.Token)
			require.NoError(t, err)
			assert.Equal(t, files[i].Name, payload.Name)
			assert.True(t, metadata.SameParent(files[i].ParentID, payload.ParentID))
		} else {
			assert.Equal(t, files[i].Name, r.ExistingEntry.Name)
		}
	}

	results, err = e.orch.StartFileUpload(ctx, e.owner, e.fsID, files[4:])
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, DecisionUpload, results[0].Decision)
}

func TestRejectsSameNameTwiceInBatch(t *testing.T) {
	e := newEnv(t)

	_, err := e.orch.StartFileUpload(context.Background(), e.owner, e.fsID, []FileRequest{
		{Bytes: 1, Name: "a.txt"},
		{Bytes: 2, Name: "a.txt"},
	})
	assert.True(t, metadata.HasCode(err, metadata.ErrInvalidArgument), "got %v", err)
}

func TestRejectsInvalidRequests(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		file FileRequest
	}{
		{"empty name", FileRequest{Bytes: 1}},
		{"slash in name", FileRequest{Bytes: 1, Name: "a/b"}},
		{"negative size", FileRequest{Bytes: -1, Name: "a"}},
		{"header injection", FileRequest{Bytes: 1, Name: "a", Mimetype: "text/plain\r\nX-Evil: 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.orch.StartFileUpload(context.Background(), e.owner, e.fsID, []FileRequest{tt.file})
			assert.True(t, metadata.HasCode(err, metadata.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestStartFileUploadRequiresWriteOnEveryParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	open, err := e.store.CreateDirectory(ctx, e.fsID, nil, "open")
	require.NoError(t, err)
	closed, err := e.store.CreateDirectory(ctx, e.fsID, nil, "closed")
	require.NoError(t, err)
	require.NoError(t, e.store.UpsertEntryPermission(ctx, metadata.EntryGrant{
		FilesystemID:        e.fsID,
		EntryID:             open.ID,
		Criterion:           e.guest.DefaultCriterion(),
		RevocationCriterion: e.owner.DefaultCriterion(),
		Permissions:         metadata.EntryPermissions{CanWrite: true},
	}))

	_, err = e.orch.StartFileUpload(ctx, e.guest, e.fsID, []FileRequest{
		{Bytes: 1, ParentID: &open.ID, Name: "ok.txt"},
		{Bytes: 1, ParentID: &closed.ID, Name: "no.txt"},
	})
	assert.True(t, metadata.IsPermissionDenied(err), "got %v", err)

	_, err = e.orch.StartFileUpload(ctx, e.guest, e.fsID, []FileRequest{{Bytes: 1, Name: "root.txt"}})
	assert.True(t, metadata.IsPermissionDenied(err), "got %v", err)

	results, err := e.orch.StartFileUpload(ctx, e.guest, e.fsID, []FileRequest{
		{Bytes: 1, ParentID: &open.ID, Name: "ok.txt"},
	})
	require.NoError(t, err)

	entry, err := e.orch.UploadFile(ctx, e.guest, e.fsID, results[0].Token, strings.NewReader("z"))
	require.NoError(t, err)
	assert.Equal(t, open.ID, *entry.ParentID)
}

func TestUploadFileRequiresWriteOnParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{Bytes: 1, Name: "a.txt"}})
	require.NoError(t, err)

	_, err = e.orch.UploadFile(ctx, e.guest, e.fsID, results[0].Token, strings.NewReader("a"))
	assert.True(t, metadata.IsPermissionDenied(err), "got %v", err)
	assert.Equal(t, 0, e.objects.Len())
}

func TestUploadFileRejectsTamperedToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{Bytes: 1, Name: "a.txt"}})
	require.NoError(t, err)
	token := results[0].Token
	tampered := token[:len(token)/2] + string(token[len(token)/2]^1) + token[len(token)/2+1:]

	_, err = e.orch.UploadFile(ctx, e.owner, e.fsID, tampered, strings.NewReader("a"))
	assert.True(t, errors.Is(err, uploadtoken.ErrInvalidToken), "got %v", err)
	assert.Equal(t, 0, e.objects.Len())
}

func TestUploadFileRejectsOtherFilesystem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other, err := e.store.CreateFilesystem(ctx, []metadata.FilesystemGrant{{
		Criterion:   e.owner.DefaultCriterion(),
		Permissions: metadata.AllFilesystemPermissions(),
	}}, "Other", "other")
	require.NoError(t, err)

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{Bytes: 1, Name: "a.txt"}})
	require.NoError(t, err)

	_, err = e.orch.UploadFile(ctx, e.owner, other.ID, results[0].Token, strings.NewReader("a"))
	assert.True(t, errors.Is(err, uploadtoken.ErrInvalidToken), "got %v", err)
}

func TestUploadFileAfterExpiry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{Bytes: 1, Name: "a.txt"}})
	require.NoError(t, err)

	e.clock.Advance(metadata.DefaultUploadDeadline().Allowance(1) + time.Second)

	_, err = e.orch.UploadFile(ctx, e.owner, e.fsID, results[0].Token, strings.NewReader("a"))
	assert.True(t, errors.Is(err, uploadtoken.ErrInvalidToken), "got %v", err)
	assert.Equal(t, 0, e.objects.Len())
}

func TestUploadFileSizeMismatchLeavesPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{Bytes: 10, Name: "a.txt"}})
	require.NoError(t, err)
	payload, err := e.signer.Verify(e.fsID, results[0].Token)
	require.NoError(t, err)

	_, err = e.orch.UploadFile(ctx, e.owner, e.fsID, results[0].Token, strings.NewReader("short"))
	var mismatch *backend.SizeMismatchError
	assert.True(t, errors.As(err, &mismatch), "got %v", err)

	file, err := e.store.GetFile(ctx, e.fsID, payload.FileID)
	require.NoError(t, err)
	assert.True(t, file.Pending())

	listing, err := e.store.ListDirectory(ctx, e.fsID, nil)
	require.NoError(t, err)
	assert.Empty(t, listing)
}

type failingBackend struct {
	*membackend.Store
	err error
}

func (f *failingBackend) UploadStream(ctx context.Context, uri string, r io.Reader, size int64) error {
	_, _ = io.Copy(io.Discard, r)
	return f.err
}

func TestUploadFileBackendFailureLeavesPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	boom := errors.New("backend unavailable")
	e.repo.Register(testBackend, &failingBackend{Store: membackend.New(), err: boom})

	results, err := e.orch.StartFileUpload(ctx, e.owner, e.fsID, []FileRequest{{Bytes: 3, Name: "a.txt"}})
	require.NoError(t, err)
	payload, err := e.signer.Verify(e.fsID, results[0].Token)
	require.NoError(t, err)

	_, err = e.orch.UploadFile(ctx, e.owner, e.fsID, results[0].Token, bytes.NewReader([]byte("abc")))
	assert.ErrorIs(t, err, boom)

	file, err := e.store.GetFile(ctx, e.fsID, payload.FileID)
	require.NoError(t, err)
	assert.True(t, file.Pending())
	assert.NotNil(t, file.Expires)
}

// shortStore drops the last pending record it creates.
type shortStore struct {
	Store
}

func (s shortStore) CreatePendingFileRecords(ctx context.Context, fsID metadata.FilesystemID, specs []metadata.PendingFileSpec) ([]metadata.File, error) {
	files, err := s.Store.CreatePendingFileRecords(ctx, fsID, specs)
	if err != nil {
		return nil, err
	}
	return files[:len(files)-1], nil
}

func TestPendingCountMismatchIsBug(t *testing.T) {
	e := newEnv(t)
	o := e.newOrchestrator(t, shortStore{Store: e.store})

	_, err := o.StartFileUpload(context.Background(), e.owner, e.fsID, []FileRequest{
		{Bytes: 1, Name: "a.txt"},
		{Bytes: 1, Name: "b.txt"},
	})
	assert.True(t, metadata.IsBug(err), "got %v", err)
}

func TestUnknownBackendFails(t *testing.T) {
	e := newEnv(t)
	o, err := New(Config{
		Store:    e.store,
		Access:   access.NewResolver(e.store),
		Selector: backend.StaticSelector("missing"),
		Backends: e.repo,
		Signer:   e.signer,
	})
	require.NoError(t, err)

	_, err = o.StartFileUpload(context.Background(), e.owner, e.fsID, []FileRequest{{Bytes: 1, Name: "a.txt"}})
	assert.ErrorIs(t, err, backend.ErrBackendNotFound)
}
