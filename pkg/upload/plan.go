package upload

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/identity"
	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/metrics"
	"github.com/marmos91/storagebox/pkg/uploadtoken"
)

// Decision tells the client what to do with one requested file.
type Decision string

const (
	// DecisionUpload: send the bytes with the returned token.
	DecisionUpload Decision = "upload"
	// DecisionDuplicate: a file already exists under that name and the
	// request did not ask to replace it.
	DecisionDuplicate Decision = "duplicate"
)

// FileRequest declares one file of a batch.
type FileRequest struct {
	Bytes    int64             `json:"bytes" validate:"gte=0"`
	Mimetype string            `json:"type"`
	ParentID *metadata.EntryID `json:"parentID"`
	Name     string            `json:"name" validate:"required"`
	Replace  bool              `json:"replace,omitempty"`
}

func (r FileRequest) locator() metadata.EntryLocator {
	return metadata.EntryLocator{ParentID: r.ParentID, Name: r.Name}
}

// Result is the outcome for one requested file.
type Result struct {
	Decision      Decision        `json:"decision"`
	Token         string          `json:"token,omitempty"`
	ExistingEntry *metadata.Entry `json:"existingEntry,omitempty"`
}

// StartFileUpload plans a batch of uploads. Results follow the order of
// files one to one.
func (o *Orchestrator) StartFileUpload(ctx context.Context, user *identity.UserContext, fsID metadata.FilesystemID, files []FileRequest) ([]Result, error) {
	if len(files) == 0 {
		return []Result{}, nil
	}
	if err := validateBatch(files); err != nil {
		return nil, err
	}

	checked := make(map[metadata.EntryID]bool)
	rootChecked := false
	for _, f := range files {
		if f.ParentID == nil {
			if rootChecked {
				continue
			}
			rootChecked = true
		} else {
			if checked[*f.ParentID] {
				continue
			}
			checked[*f.ParentID] = true
		}
		if err := o.access.CheckEntry(ctx, user, fsID, f.ParentID, metadata.PermissionWrite); err != nil {
			return nil, err
		}
	}

	locators := make([]metadata.EntryLocator, len(files))
	for i, f := range files {
		locators[i] = f.locator()
	}
	existing, err := o.store.GetEntriesByPaths(ctx, fsID, locators)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(files))
	var uploading []int
	for i, f := range files {
		found := findEntry(existing, locators[i])
		switch {
		case found != nil && found.IsDirectory():
			return nil, metadata.NewCannotReplaceDirectoryWithFileError(f.ParentID, f.Name)
		case found != nil && !f.Replace:
			results[i] = Result{Decision: DecisionDuplicate, ExistingEntry: found}
		default:
			results[i] = Result{Decision: DecisionUpload}
			uploading = append(uploading, i)
		}
	}

	if len(uploading) > 0 {
		if err := o.issueTokens(ctx, fsID, files, uploading, results); err != nil {
			return nil, err
		}
	}

	for i, r := range results {
		switch r.Decision {
		case DecisionUpload:
			if r.Token == "" {
				return nil, metadata.NewBugError("file %d of the batch has no upload token", i)
			}
		case DecisionDuplicate:
		default:
			return nil, metadata.NewBugError("unrecognized upload decision %q", r.Decision)
		}
	}

	metrics.RecordPlanned(o.metrics, string(DecisionUpload), len(uploading))
	metrics.RecordPlanned(o.metrics, string(DecisionDuplicate), len(files)-len(uploading))
	o.log.DebugContext(ctx, "Upload planned",
		logger.FilesystemID(int64(fsID)), "files", len(files), "uploading", len(uploading))
	return results, nil
}

// issueTokens places every uploading file on one backend, creates their
// pending records in one call and signs a token for each.
func (o *Orchestrator) issueTokens(ctx context.Context, fsID metadata.FilesystemID, files []FileRequest, uploading []int, results []Result) error {
	var total int64
	for _, i := range uploading {
		total += files[i].Bytes
	}

	backendID, err := o.selector.SelectBackend(ctx, total)
	if err != nil {
		return fmt.Errorf("select backend: %w", err)
	}
	b, err := o.backends.Get(ctx, backendID)
	if err != nil {
		return fmt.Errorf("resolve backend %s: %w", backendID, err)
	}

	specs := make([]metadata.PendingFileSpec, len(uploading))
	for k, i := range uploading {
		uri, err := b.ObtainObjectURI(ctx)
		if err != nil {
			return fmt.Errorf("obtain object uri on %s: %w", backendID, err)
		}
		mimetype := files[i].Mimetype
		if mimetype == "" {
			mimetype = DefaultMimetype
		}
		specs[k] = metadata.PendingFileSpec{
			Bytes:      files[i].Bytes,
			Mimetype:   mimetype,
			BackendID:  backendID,
			BackendURI: uri,
		}
	}

	created, err := o.store.CreatePendingFileRecords(ctx, fsID, specs)
	if err != nil {
		return err
	}
	if len(created) != len(specs) {
		return metadata.NewBugError("created %d pending files for %d uploads", len(created), len(specs))
	}

	for k, i := range uploading {
		file := created[k]
		if file.Expires == nil {
			return metadata.NewBugError("pending file %d has no expiry", file.ID)
		}
		token, err := o.signer.Sign(fsID, uploadtoken.Payload{
			ParentID: files[i].ParentID,
			Name:     files[i].Name,
			FileID:   file.ID,
			Replace:  files[i].Replace,
		}, *file.Expires)
		if err != nil {
			return err
		}
		results[i].Token = token
	}
	return nil
}

func validateBatch(files []FileRequest) error {
	seen := make(map[string]int, len(files))
	for i, f := range files {
		if err := metadata.ValidateName(f.Name); err != nil {
			return err
		}
		if f.Bytes < 0 {
			return metadata.NewInvalidArgumentError("file %q declares a negative size", f.Name)
		}
		if strings.ContainsAny(f.Mimetype, "\r\n") {
			return metadata.NewInvalidArgumentError("file %q declares an invalid type", f.Name)
		}
		key := batchKey(f)
		if j, dup := seen[key]; dup {
			return metadata.NewInvalidArgumentError("files %d and %d of the batch target the same name %q", j, i, f.Name)
		}
		seen[key] = i
	}
	return nil
}

func batchKey(f FileRequest) string {
	if f.ParentID == nil {
		return "/" + f.Name
	}
	return fmt.Sprintf("%d/%s", *f.ParentID, f.Name)
}

func findEntry(entries []metadata.Entry, loc metadata.EntryLocator) *metadata.Entry {
	for i := range entries {
		if loc.Matches(&entries[i]) {
			e := entries[i]
			return &e
		}
	}
	return nil
}
