package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dxforge/forge/pkg/mirror"
)

const sketchfabName = "sketchfab"

// Sketchfab uploads 3D models as one multipart form post to the v3
// models endpoint. The API key travels in a Token authorization
// header.
type Sketchfab struct {
	Creds   CredentialSource
	Client  *http.Client
	BaseURL string // defaults to https://api.sketchfab.com
}

func (s *Sketchfab) Name() string { return sketchfabName }

// CanHandle accepts 3D model payloads only.
func (s *Sketchfab) CanHandle(mediaType string) bool {
	return strings.HasPrefix(mediaType, "model/")
}

func (s *Sketchfab) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *Sketchfab) baseURL() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return "https://api.sketchfab.com"
}

func (s *Sketchfab) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	bundle, err := loadBundle(s.Creds, sketchfabName)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("name", meta.Filename); err != nil {
		return nil, &mirror.UploadError{Backend: sketchfabName, Step: "upload", Err: err}
	}
	part, err := writer.CreateFormFile("modelFile", meta.Filename)
	if err != nil {
		return nil, &mirror.UploadError{Backend: sketchfabName, Step: "upload", Err: err}
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, &mirror.UploadError{Backend: sketchfabName, Step: "upload", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &mirror.UploadError{Backend: sketchfabName, Step: "upload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL()+"/v3/models", &body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: sketchfabName, Step: "upload", Err: err}
	}
	req.Header.Set("Authorization", "Token "+bundle.AccessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, &mirror.UploadError{Backend: sketchfabName, Step: "upload", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: sketchfabName, Step: "upload", Err: err}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &mirror.UploadError{
			Backend: sketchfabName, Step: "upload",
			Err: fmt.Errorf("status %s: %s", resp.Status, raw),
		}
	}

	var model struct {
		UID string `json:"uid"`
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(raw, &model); err != nil {
		return nil, &mirror.UploadError{Backend: sketchfabName, Step: "upload", Err: err}
	}
	return &mirror.Target{
		Backend: sketchfabName,
		Key:     model.UID,
		URL:     model.URI,
		Raw:     raw,
	}, nil
}
