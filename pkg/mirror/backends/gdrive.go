package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/dxforge/forge/pkg/mirror"
)

const gdriveName = "gdrive"

// GDrive uploads through the Drive v3 multipart endpoint: one
// multipart/related body with a JSON metadata part followed by the
// payload part.
type GDrive struct {
	Creds   CredentialSource
	Client  *http.Client
	BaseURL string // defaults to https://www.googleapis.com
}

func (g *GDrive) Name() string { return gdriveName }

func (g *GDrive) CanHandle(string) bool { return true }

func (g *GDrive) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *GDrive) baseURL() string {
	if g.BaseURL != "" {
		return strings.TrimRight(g.BaseURL, "/")
	}
	return "https://www.googleapis.com"
}

func (g *GDrive) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	bundle, err := loadBundle(g.Creds, gdriveName)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}
	if err := json.NewEncoder(metaPart).Encode(map[string]string{"name": meta.Filename}); err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Type", meta.MediaType)
	filePart, err := writer.CreatePart(fileHeader)
	if err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}
	if _, err := io.Copy(filePart, data); err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}

	endpoint := g.baseURL() + "/upload/drive/v3/files?uploadType=multipart"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &mirror.UploadError{
			Backend: gdriveName, Step: "upload",
			Err: fmt.Errorf("status %s: %s", resp.Status, raw),
		}
	}

	var file struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, &mirror.UploadError{Backend: gdriveName, Step: "upload", Err: err}
	}
	return &mirror.Target{
		Backend: gdriveName,
		Key:     file.ID,
		URL:     "https://drive.google.com/file/d/" + file.ID,
		Raw:     raw,
	}, nil
}
