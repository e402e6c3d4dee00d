package metadata

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDeadlineAllowance(t *testing.T) {
	d := DefaultUploadDeadline()

	tests := []struct {
		name  string
		bytes int64
		want  time.Duration
	}{
		{"empty", 0, 5 * time.Minute},
		{"one byte rounds up", 1, 5*time.Minute + time.Second},
		{"exact second", 125000, 5*time.Minute + time.Second},
		{"just over", 125001, 5*time.Minute + 2*time.Second},
		{"one gigabyte", 1_000_000_000, 5*time.Minute + 8000*time.Second},
		{"negative treated as zero", -10, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Allowance(tt.bytes))
		})
	}
}

func TestUploadDeadlineSharedExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	specs := []PendingFileSpec{{Bytes: 100000}, {Bytes: 150000}}

	got := DefaultUploadDeadline().ExpiresAt(now, specs)
	assert.Equal(t, now.Add(5*time.Minute+2*time.Second), got)
}

func TestAttributeSetMatches(t *testing.T) {
	attrs := AttributeSet{
		Issuer: "idp",
		Values: map[string][]string{"group": {"staff", "admins"}},
	}

	assert.True(t, attrs.Matches(Criterion{"idp", "group", "admins"}))
	assert.False(t, attrs.Matches(Criterion{"other", "group", "admins"}))
	assert.False(t, attrs.Matches(Criterion{"idp", "group", "guests"}))
	assert.False(t, attrs.Matches(Criterion{"idp", "team", "staff"}))
}

func TestAttributeSetCriteriaStableOrder(t *testing.T) {
	attrs := AttributeSet{
		Issuer: "idp",
		Values: map[string][]string{"b": {"2"}, "a": {"1", "3"}},
	}
	assert.Equal(t, []Criterion{
		{"idp", "a", "1"},
		{"idp", "a", "3"},
		{"idp", "b", "2"},
	}, attrs.Criteria())
}

func TestAttributeSetWithCopies(t *testing.T) {
	orig := AttributeSet{Issuer: "idp", Values: map[string][]string{"a": {"1"}}}
	next := orig.With("a", "2").With("a", "2")

	assert.Equal(t, []string{"1"}, orig.Values["a"])
	assert.Equal(t, []string{"1", "2"}, next.Values["a"])
}

func TestPermissionsAlgebra(t *testing.T) {
	r := EntryPermissions{CanRead: true}
	w := EntryPermissions{CanWrite: true}

	rw := r.Or(w)
	assert.True(t, rw.Has(PermissionRead))
	assert.True(t, rw.Has(PermissionWrite))
	assert.False(t, rw.Has(PermissionShare))
	assert.False(t, rw.Has(PermissionManage))
	assert.True(t, rw.Covers(r))
	assert.False(t, r.Covers(rw))
	assert.True(t, r.Covers(EntryPermissions{}))

	all := AllFilesystemPermissions()
	assert.True(t, all.Has(PermissionManage))
	assert.Equal(t, EntryPermissions{CanRead: true, CanWrite: true, CanShare: true}, all.Entry())
	assert.False(t, FilesystemPermissions{}.Any())
}

// Adding a grant never removes an allowed decision.
func TestPermissionsOrIsMonotonic(t *testing.T) {
	var grants []EntryPermissions
	for i := 0; i < 8; i++ {
		grants = append(grants, EntryPermissions{CanRead: i&1 != 0, CanWrite: i&2 != 0, CanShare: i&4 != 0})
	}
	bits := []Permission{PermissionRead, PermissionWrite, PermissionShare}

	for _, base := range grants {
		for _, extra := range grants {
			merged := base.Or(extra)
			for _, b := range bits {
				if base.Has(b) {
					assert.True(t, merged.Has(b), "base=%+v extra=%+v bit=%s", base, extra, b)
				}
			}
		}
	}
}

func TestEntryHelpers(t *testing.T) {
	e := &Entry{ID: 3, ParentID: Ref(EntryID(2)), Path: []EntryID{1, 2, 3}, Type: EntryTypeDirectory}

	assert.True(t, e.HasAncestor(3))
	assert.True(t, e.HasAncestor(1))
	assert.False(t, e.HasAncestor(4))
	assert.Equal(t, []EntryID{1, 2}, e.ParentPath())
	assert.True(t, e.IsDirectory())

	c := e.Clone()
	c.Path[0] = 99
	*c.ParentID = 42
	assert.Equal(t, EntryID(1), e.Path[0])
	assert.Equal(t, EntryID(2), *e.ParentID)

	root := &Entry{ID: 1, Path: []EntryID{1}}
	assert.Nil(t, root.ParentPath())
}

func TestEntryLocatorMatches(t *testing.T) {
	e := &Entry{Name: "a.txt", ParentID: Ref(EntryID(5))}

	assert.True(t, EntryLocator{ParentID: Ref(EntryID(5)), Name: "a.txt"}.Matches(e))
	assert.False(t, EntryLocator{ParentID: nil, Name: "a.txt"}.Matches(e))
	assert.False(t, EntryLocator{ParentID: Ref(EntryID(5)), Name: "b.txt"}.Matches(e))
	assert.True(t, SameParent(nil, nil))
}

func TestFileReclaimable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	assert.True(t, (&File{Expires: &past}).Reclaimable(now))
	assert.True(t, (&File{Expires: &now}).Reclaimable(now))
	assert.False(t, (&File{Expires: &future}).Reclaimable(now))
	assert.False(t, (&File{}).Reclaimable(now))
	assert.False(t, (&File{Expires: &past, ReferenceCount: 1}).Reclaimable(now))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{NewEntryNotFoundError(1), KindNotFound},
		{NewNoParentDirectoryError(nil), KindNotFound},
		{NewNoFilesystemPermissionError(PermissionWrite), KindPermissionDenied},
		{NewNoCapabilityError("create-fs"), KindPermissionDenied},
		{NewDuplicateEntryNameError(nil, "a"), KindConflict},
		{NewDirectoryCycleError(1, 2), KindConflict},
		{NewPermissionDoesNotExistError(1), KindConflict},
		{NewInvalidArgumentError("bad"), KindInvalid},
		{NewBugError("count mismatch"), KindInternal},
		{errors.New("plain"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestErrorsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("finish upload: %w", NewFileAlreadyUploadedError(7))

	assert.True(t, IsConflict(err))
	assert.True(t, HasCode(err, ErrFileAlreadyUploaded))
	assert.False(t, IsNotFound(err))
	assert.False(t, HasCode(nil, ErrFileAlreadyUploaded))

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, FileID(7), se.Data["fileID"])
}

func TestWrapInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapInternal("insert entry", cause)

	assert.True(t, IsBug(err))
	assert.ErrorIs(t, err, cause)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("report.pdf"))
	for _, bad := range []string{"", ".", "..", "a/b", "nul\x00", string(make([]byte, 256))} {
		assert.Error(t, ValidateName(bad), "%q", bad)
	}
}

func TestValidateAlias(t *testing.T) {
	assert.NoError(t, ValidateAlias("docs"))
	assert.NoError(t, ValidateAlias("team-2_archive"))
	for _, bad := range []string{"", "Docs", "-docs", "a b", "ünï"} {
		assert.Error(t, ValidateAlias(bad), "%q", bad)
	}
}
