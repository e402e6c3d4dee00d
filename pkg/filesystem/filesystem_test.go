package filesystem

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagebox/pkg/access"
	"github.com/marmos91/storagebox/pkg/backend"
	membackend "github.com/marmos91/storagebox/pkg/backend/memory"
	"github.com/marmos91/storagebox/pkg/backend/repository"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metadata/store/memory"
	"github.com/marmos91/storagebox/pkg/upload"
	"github.com/marmos91/storagebox/pkg/uploadtoken"
)

const testBackend = "mem"

type env struct {
	svc     *Service
	store   *memory.MemoryMetadataStore
	repo    *repository.Repository
	objects *membackend.Store
	fs      *Filesystem
	owner   *identity.UserContext
	guest   *identity.UserContext
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	store := memory.NewMemoryMetadataStoreWithDefaults()
	t.Cleanup(func() { _ = store.Close() })

	objects := membackend.New()
	repo := repository.New(nil, repository.Options{})
	repo.Register(testBackend, objects)
	t.Cleanup(func() { _ = repo.Close() })

	signer, err := uploadtoken.NewSigner([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	uploads, err := upload.New(upload.Config{
		Store:    store,
		Access:   access.NewResolver(store),
		Selector: backend.StaticSelector(testBackend),
		Backends: repo,
		Signer:   signer,
	})
	require.NoError(t, err)

	svc, err := New(Config{Store: store, Uploads: uploads, Backends: repo})
	require.NoError(t, err)

	owner := identity.New("idp", "owner", nil, true)
	guest := identity.New("idp", "guest", map[string][]string{"team": {"blue"}}, false)

	_, err = svc.CreateFilesystem(ctx, owner, "Docs", "docs")
	require.NoError(t, err)
	fs, err := svc.Open(ctx, "docs")
	require.NoError(t, err)

	return &env{svc: svc, store: store, repo: repo, objects: objects, fs: fs, owner: owner, guest: guest}
}

func (e *env) mkdir(t *testing.T, parentID *metadata.EntryID, name string) *metadata.Entry {
	t.Helper()
	dir, err := e.fs.CreateDirectory(context.Background(), e.owner, parentID, name)
	require.NoError(t, err)
	return dir
}

func (e *env) put(t *testing.T, parentID *metadata.EntryID, name, content string) *metadata.Entry {
	t.Helper()
	ctx := context.Background()
	results, err := e.fs.StartFileUpload(ctx, e.owner, []upload.FileRequest{{
		Bytes: int64(len(content)), Mimetype: "text/plain", ParentID: parentID, Name: name,
	}})
	require.NoError(t, err)
	entry, err := e.fs.UploadFile(ctx, e.owner, results[0].Token, strings.NewReader(content))
	require.NoError(t, err)
	return entry
}

func (e *env) share(t *testing.T, entryID metadata.EntryID, user *identity.UserContext, perms metadata.EntryPermissions) {
	t.Helper()
	require.NoError(t, e.fs.SetEntryPermission(context.Background(), e.owner, entryID, perms, user.DefaultCriterion(), ""))
}

func TestCreateFilesystemGrantsCreatorEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	perms, err := e.fs.Permissions(ctx, e.owner)
	require.NoError(t, err)
	assert.Equal(t, metadata.AllFilesystemPermissions(), perms)

	_, err = e.fs.ListDirectory(ctx, e.guest, nil)
	assert.True(t, metadata.IsPermissionDenied(err), "got %v", err)

	listed, err := e.svc.ListFilesystems(ctx, e.owner)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "docs", listed[0].Alias)

	listed, err = e.svc.ListFilesystems(ctx, e.guest)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestCreateFilesystemRequiresCapability(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.CreateFilesystem(context.Background(), e.guest, "Mine", "mine")
	assert.True(t, metadata.HasCode(err, metadata.ErrNoCapability), "got %v", err)
}

func TestCreateFilesystemValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateFilesystem(ctx, e.owner, "", "empty")
	assert.True(t, metadata.HasCode(err, metadata.ErrInvalidArgument))

	_, err = e.svc.CreateFilesystem(ctx, e.owner, "Bad", "Bad Alias")
	assert.True(t, metadata.HasCode(err, metadata.ErrInvalidArgument))

	_, err = e.svc.CreateFilesystem(ctx, e.owner, "Again", "docs")
	assert.True(t, metadata.HasCode(err, metadata.ErrDuplicateAlias))
}

func TestOpenUnknownAlias(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Open(context.Background(), "nope")
	assert.True(t, metadata.HasCode(err, metadata.ErrFilesystemNotFound))
}

func TestCreateAndListDirectories(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b := e.mkdir(t, nil, "b")
	e.mkdir(t, nil, "a")
	inner := e.mkdir(t, &b.ID, "inner")
	assert.Equal(t, []metadata.EntryID{b.ID, inner.ID}, inner.Path)

	root, err := e.fs.ListDirectory(ctx, e.owner, nil)
	require.NoError(t, err)
	require.Len(t, root, 2)
	assert.Equal(t, "a", root[0].Name)
	assert.Equal(t, "b", root[1].Name)

	_, err = e.fs.CreateDirectory(ctx, e.owner, nil, "a")
	assert.True(t, metadata.HasCode(err, metadata.ErrDuplicateEntryName))

	_, err = e.fs.CreateDirectory(ctx, e.owner, nil, "..")
	assert.True(t, metadata.HasCode(err, metadata.ErrInvalidArgument))
}

func TestGuestWithEntryGrant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	shared := e.mkdir(t, nil, "shared")
	e.mkdir(t, nil, "private")
	e.share(t, shared.ID, e.guest, metadata.EntryPermissions{CanRead: true, CanWrite: true})

	_, err := e.fs.ListDirectory(ctx, e.guest, &shared.ID)
	require.NoError(t, err)

	sub, err := e.fs.CreateDirectory(ctx, e.guest, &shared.ID, "sub")
	require.NoError(t, err)

	// Inherited from the shared ancestor.
	_, err = e.fs.CreateDirectory(ctx, e.guest, &sub.ID, "deeper")
	require.NoError(t, err)

	_, err = e.fs.CreateDirectory(ctx, e.guest, nil, "top")
	assert.True(t, metadata.IsPermissionDenied(err))
}

func TestDeleteEntry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dir := e.mkdir(t, nil, "dir")
	file := e.put(t, &dir.ID, "a.txt", "hello")

	err := e.fs.DeleteEntry(ctx, e.owner, dir.ID)
	assert.True(t, metadata.HasCode(err, metadata.ErrDirectoryNotEmpty), "got %v", err)

	require.NoError(t, e.fs.DeleteEntry(ctx, e.owner, file.ID))
	require.NoError(t, e.fs.DeleteEntry(ctx, e.owner, dir.ID))

	stored, err := e.store.GetFile(ctx, e.fs.ID(), *file.FileID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.ReferenceCount)
	assert.NotNil(t, stored.Expires)
}

func TestDeleteRequiresWriteOnParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dir := e.mkdir(t, nil, "dir")
	child := e.mkdir(t, &dir.ID, "child")

	// Write on the entry itself is not enough.
	e.share(t, child.ID, e.guest, metadata.EntryPermissions{CanWrite: true})
	err := e.fs.DeleteEntry(ctx, e.guest, child.ID)
	assert.True(t, metadata.IsPermissionDenied(err))

	e.share(t, dir.ID, e.guest, metadata.EntryPermissions{CanWrite: true})
	require.NoError(t, e.fs.DeleteEntry(ctx, e.guest, child.ID))
}

func TestMissingEntryLooksForbiddenToOutsiders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.fs.DeleteEntry(ctx, e.guest, 999)
	assert.True(t, metadata.IsPermissionDenied(err), "got %v", err)

	err = e.fs.DeleteEntry(ctx, e.owner, 999)
	assert.True(t, metadata.IsNotFound(err), "got %v", err)
}

func TestMoveEntry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.mkdir(t, nil, "a")
	b := e.mkdir(t, nil, "b")
	child := e.mkdir(t, &a.ID, "child")
	grandchild := e.mkdir(t, &child.ID, "grandchild")

	moved, err := e.fs.MoveEntry(ctx, e.owner, child.ID, &b.ID)
	require.NoError(t, err)
	assert.Equal(t, []metadata.EntryID{b.ID, child.ID}, moved.Path)

	gc, err := e.store.GetEntry(ctx, e.fs.ID(), grandchild.ID)
	require.NoError(t, err)
	assert.Equal(t, []metadata.EntryID{b.ID, child.ID, grandchild.ID}, gc.Path)

	moved, err = e.fs.MoveEntry(ctx, e.owner, child.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
	assert.Equal(t, []metadata.EntryID{child.ID}, moved.Path)
}

func TestMoveEntryCycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.mkdir(t, nil, "a")
	child := e.mkdir(t, &a.ID, "child")
	grandchild := e.mkdir(t, &child.ID, "grandchild")

	for _, target := range []metadata.EntryID{a.ID, child.ID, grandchild.ID} {
		_, err := e.fs.MoveEntry(ctx, e.owner, a.ID, &target)
		assert.True(t, metadata.HasCode(err, metadata.ErrDirectoryCycle), "target %d: %v", target, err)
	}

	// Moving into a sibling's subtree is fine.
	_, err := e.fs.MoveEntry(ctx, e.owner, grandchild.ID, &a.ID)
	require.NoError(t, err)
}

func TestMoveEntryTargetIsNotDirectory(t *testing.T) {
	e := newEnv(t)
	dir := e.mkdir(t, nil, "dir")
	file := e.put(t, nil, "a.txt", "x")

	_, err := e.fs.MoveEntry(context.Background(), e.owner, dir.ID, &file.ID)
	assert.True(t, metadata.HasCode(err, metadata.ErrTargetIsNotDirectory), "got %v", err)
}

func TestMoveEntryNeedsBothWrites(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src := e.mkdir(t, nil, "src")
	dst := e.mkdir(t, nil, "dst")
	item := e.mkdir(t, &src.ID, "item")

	e.share(t, src.ID, e.guest, metadata.EntryPermissions{CanWrite: true})
	_, err := e.fs.MoveEntry(ctx, e.guest, item.ID, &dst.ID)
	assert.True(t, metadata.IsPermissionDenied(err), "source only: %v", err)

	e.share(t, dst.ID, e.guest, metadata.EntryPermissions{CanWrite: true})
	_, err = e.fs.MoveEntry(ctx, e.guest, item.ID, &dst.ID)
	require.NoError(t, err)
}

func TestDownloadStreams(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	file := e.put(t, nil, "a.txt", "hello world")

	dl, err := e.fs.DownloadFileOrRedirect(ctx, e.owner, file.ID, backend.DispositionAttachment)
	require.NoError(t, err)
	require.False(t, dl.Redirect())
	defer dl.Data.Close()

	assert.Equal(t, FileInfo{Name: "a.txt", Mimetype: "text/plain", Bytes: 11}, dl.Info)
	body, err := io.ReadAll(dl.Data)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
}

func TestDownloadDirectoryFails(t *testing.T) {
	e := newEnv(t)
	dir := e.mkdir(t, nil, "dir")

	_, err := e.fs.DownloadFileOrRedirect(context.Background(), e.owner, dir.ID, backend.DispositionAttachment)
	assert.True(t, metadata.HasCode(err, metadata.ErrCannotDownloadDirectory), "got %v", err)
}

func TestDownloadRequiresRead(t *testing.T) {
	e := newEnv(t)
	file := e.put(t, nil, "a.txt", "secret")

	_, err := e.fs.DownloadFileOrRedirect(context.Background(), e.guest, file.ID, backend.DispositionAttachment)
	assert.True(t, metadata.IsPermissionDenied(err))
}

// urlBackend serves downloads by URL.
type urlBackend struct {
	*membackend.Store
	enabled bool
}

func (u *urlBackend) DownloadURLsEnabled() bool { return u.enabled }

func (u *urlBackend) GetDownloadURL(_ context.Context, uri, name string, disposition backend.Disposition, mimetype string) (string, error) {
	return fmt.Sprintf("https://objects.example/%s?cd=%s&ct=%s", uri, backend.ContentDisposition(disposition, name), mimetype), nil
}

func TestDownloadRedirectsWhenEnabled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ub := &urlBackend{Store: membackend.New(), enabled: true}
	e.repo.Register(testBackend, ub)
	file := e.put(t, nil, "a.txt", "hello")

	dl, err := e.fs.DownloadFileOrRedirect(ctx, e.owner, file.ID, backend.DispositionInline)
	require.NoError(t, err)
	require.True(t, dl.Redirect())
	assert.Nil(t, dl.Data)
	assert.Contains(t, dl.URL, "https://objects.example/")
	assert.Contains(t, dl.URL, "inline")

	ub.enabled = false
	dl, err = e.fs.DownloadFileOrRedirect(ctx, e.owner, file.ID, backend.DispositionInline)
	require.NoError(t, err)
	require.False(t, dl.Redirect())
	_ = dl.Data.Close()
}
