package apiclient

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/marmos91/storagebox/pkg/metadata"
	"github.com/marmos91/storagebox/pkg/upload"
)

// StartUpload plans a batch of uploads. Results follow the order of files.
func (f *FilesystemClient) StartUpload(files []upload.FileRequest) ([]upload.Result, error) {
	var results []upload.Result
	body := struct {
		Files []upload.FileRequest `json:"files"`
	}{files}
	if err := f.c.post(f.prefix+"/upload", body, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// FinishUpload streams the content of a planned file. size must equal the
// declared size; the server rejects anything else.
func (f *FilesystemClient) FinishUpload(token string, content io.Reader, size int64) (*metadata.Entry, error) {
	req, err := f.c.newRequest(http.MethodPost, f.prefix+"/upload/finish?token="+url.QueryEscape(token), content)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := f.c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var entry metadata.Entry
	if err := decodeResponse(resp, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Download describes a file being downloaded. Close Body when done.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	Disposition string
}

// Download fetches a file. Redirects to a backend URL are followed.
func (f *FilesystemClient) Download(id metadata.EntryID, inline bool) (*Download, error) {
	path := fmt.Sprintf("%s/download/%d", f.prefix, id)
	if inline {
		path += "?inline=true"
	}
	req, err := f.c.newRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeResponse(resp, nil)
	}

	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	return &Download{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        size,
		Disposition: resp.Header.Get("Content-Disposition"),
	}, nil
}
