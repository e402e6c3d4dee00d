package cleanup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	membackend "github.com/marmos91/storagebox/pkg/backend/memory"
	"github.com/marmos91/storagebox/pkg/backend/repository"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metadata/store/memory"
)

const testBackend = "mem"

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
	repo    *repository.Repository
	objects *membackend.Store
	fsID    metadata.FilesystemID
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

	fs, err := store.CreateFilesystem(context.Background(), []metadata.FilesystemGrant{{
		Criterion:   metadata.Criterion{Issuer: "idp", Attribute: "_subject", Value: "owner"},
		Permissions: metadata.AllFilesystemPermissions(),
	}}, "Docs", "docs")
	require.NoError(t, err)

	return &env{clock: clk, store: store, repo: repo, objects: objects, fsID: fs.ID}
}

func (e *env) scheduler() *Scheduler {
	return NewScheduler(e.store, e.repo, DefaultConfig(), nil).WithClock(e.clock.Now)
}

// pending creates a pending file whose bytes already reached the backend.
func (e *env) pending(t *testing.T, content string) metadata.File {
	t.Helper()
	ctx := context.Background()
	b, err := e.repo.Get(ctx, testBackend)
	require.NoError(t, err)
	uri, err := b.ObtainObjectURI(ctx)
	require.NoError(t, err)
	require.NoError(t, b.UploadStream(ctx, uri, strings.NewReader(content), int64(len(content))))

	files, err := e.store.CreatePendingFileRecords(ctx, e.fsID, []metadata.PendingFileSpec{{
		Bytes: int64(len(content)), Mimetype: "text/plain", BackendID: testBackend, BackendURI: uri,
	}})
	require.NoError(t, err)
	return files[0]
}

func (e *env) expire() {
	e.clock.Advance(metadata.DefaultMinimumWindow + time.Hour)
}

func TestDefaults(t *testing.T) {
	s := NewScheduler(nil, nil, Config{}, nil)
	assert.Equal(t, 15*time.Second, s.cfg.Interval)
	assert.Equal(t, 20, s.cfg.BatchSize)
}

func TestReclaimsExpiredPendingFileOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	file := e.pending(t, "abandoned")
	s := e.scheduler()

	result, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Selected, "not expired yet")
	assert.True(t, e.objects.Has(file.BackendURI))

	e.expire()

	result, err = s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, metadata.ReclaimResult{Selected: 1, Reclaimed: 1}, result)
	assert.False(t, e.objects.Has(file.BackendURI))

	_, err = e.store.GetFile(ctx, e.fsID, file.ID)
	assert.True(t, metadata.HasCode(err, metadata.ErrFileNotFound))

	result, err = s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Selected)

	passes, reclaimed, failed := s.Stats()
	assert.Equal(t, 3, passes)
	assert.Equal(t, 1, reclaimed)
	assert.Equal(t, 0, failed)
}

func TestReclaimsFileWhoseBytesNeverArrived(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	files, err := e.store.CreatePendingFileRecords(ctx, e.fsID, []metadata.PendingFileSpec{{
		Bytes: 10, Mimetype: "text/plain", BackendID: testBackend, BackendURI: "never-uploaded",
	}})
	require.NoError(t, err)
	e.expire()

	result, err := e.scheduler().RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)

	_, err = e.store.GetFile(ctx, e.fsID, files[0].ID)
	assert.True(t, metadata.IsNotFound(err))
}

// observingBackend records whether the metadata row still existed when the
// object was deleted.
type observingBackend struct {
	*membackend.Store
	store      *memory.MemoryMetadataStore
	fsID       metadata.FilesystemID
	fileID     metadata.FileID
	rowPresent bool
	err        error
}

func (o *observingBackend) DeleteFile(ctx context.Context, uri string) error {
	_, err := o.store.GetFile(ctx, o.fsID, o.fileID)
	o.rowPresent = err == nil
	if o.err != nil {
		return o.err
	}
	return o.Store.DeleteFile(ctx, uri)
}

func TestObjectRemovedBeforeRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	obs := &observingBackend{Store: membackend.New(), store: e.store, fsID: e.fsID}
	e.repo.Register(testBackend, obs)
	file := e.pending(t, "data")
	obs.fileID = file.ID
	e.expire()

	result, err := e.scheduler().RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)
	assert.True(t, obs.rowPresent)
}

func TestFailedRemovalKeepsRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	obs := &observingBackend{Store: membackend.New(), store: e.store, fsID: e.fsID, err: errors.New("bucket unreachable")}
	e.repo.Register(testBackend, obs)
	file := e.pending(t, "data")
	obs.fileID = file.ID
	e.expire()
	s := e.scheduler()

	result, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, metadata.ReclaimResult{Selected: 1, Failed: 1}, result)

	stored, err := e.store.GetFile(ctx, e.fsID, file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.ID, stored.ID)

	// The next pass retries it.
	obs.err = nil
	result, err = s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)
}

func TestUnknownBackendCountsAsFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.store.CreatePendingFileRecords(ctx, e.fsID, []metadata.PendingFileSpec{{
		Bytes: 1, BackendID: "gone", BackendURI: "x",
	}})
	require.NoError(t, err)
	e.expire()

	result, err := e.scheduler().RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestReclaimsUnreferencedFinishedFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	file := e.pending(t, "kept")
	entry, err := e.store.FinishFileUpload(ctx, e.fsID, metadata.FinishUpload{FileID: file.ID, Name: "kept.txt"})
	require.NoError(t, err)
	s := e.scheduler()

	e.expire()
	result, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Selected, "referenced files stay")

	require.NoError(t, e.store.DeleteEntry(ctx, e.fsID, entry.ID))
	result, err = s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)
	assert.False(t, e.objects.Has(file.BackendURI))
}

func TestBatchSizeLimitsPass(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for range 3 {
		e.pending(t, "x")
	}
	e.expire()
	s := NewScheduler(e.store, e.repo, Config{BatchSize: 2}, nil).WithClock(e.clock.Now)

	result, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Reclaimed)

	result, err = s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)
}

func TestStartAndStop(t *testing.T) {
	e := newEnv(t)
	file := e.pending(t, "loop")
	e.expire()

	s := NewScheduler(e.store, e.repo, Config{Interval: 10 * time.Millisecond}, nil).WithClock(e.clock.Now)
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return !e.objects.Has(file.BackendURI)
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestStopWithoutStart(t *testing.T) {
	e := newEnv(t)
	assert.NoError(t, e.scheduler().Stop(context.Background()))
}
