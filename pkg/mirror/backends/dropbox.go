package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dxforge/forge/pkg/mirror"
)

const dropboxName = "dropbox"

// Dropbox uploads via the content API. One request carries both the
// payload bytes and, in the Dropbox-API-Arg header, the JSON upload
// arguments.
type Dropbox struct {
	Creds   CredentialSource
	Client  *http.Client
	BaseURL string // defaults to https://content.dropboxapi.com
}

func (d *Dropbox) Name() string { return dropboxName }

func (d *Dropbox) CanHandle(string) bool { return true }

func (d *Dropbox) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Dropbox) baseURL() string {
	if d.BaseURL != "" {
		return strings.TrimRight(d.BaseURL, "/")
	}
	return "https://content.dropboxapi.com"
}

func (d *Dropbox) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	bundle, err := loadBundle(d.Creds, dropboxName)
	if err != nil {
		return nil, err
	}

	arg, err := json.Marshal(map[string]any{
		"path": "/" + strings.TrimPrefix(meta.Filename, "/"),
		"mode": "overwrite",
		"mute": true,
	})
	if err != nil {
		return nil, &mirror.UploadError{Backend: dropboxName, Step: "upload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL()+"/2/files/upload", data)
	if err != nil {
		return nil, &mirror.UploadError{Backend: dropboxName, Step: "upload", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = meta.Size

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, &mirror.UploadError{Backend: dropboxName, Step: "upload", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: dropboxName, Step: "upload", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &mirror.UploadError{
			Backend: dropboxName, Step: "upload",
			Err: fmt.Errorf("status %s: %s", resp.Status, body),
		}
	}

	var file struct {
		ID          string `json:"id"`
		PathDisplay string `json:"path_display"`
	}
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, &mirror.UploadError{Backend: dropboxName, Step: "upload", Err: err}
	}
	return &mirror.Target{
		Backend: dropboxName,
		Key:     file.ID,
		URL:     file.PathDisplay,
		Raw:     body,
	}, nil
}
