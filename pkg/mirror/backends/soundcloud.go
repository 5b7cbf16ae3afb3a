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

const soundcloudName = "soundcloud"

// SoundCloud uploads audio tracks as one multipart form post.
type SoundCloud struct {
	Creds   CredentialSource
	Client  *http.Client
	BaseURL string // defaults to https://api.soundcloud.com
}

func (s *SoundCloud) Name() string { return soundcloudName }

// CanHandle accepts audio payloads only.
func (s *SoundCloud) CanHandle(mediaType string) bool {
	return strings.HasPrefix(mediaType, "audio/")
}

func (s *SoundCloud) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *SoundCloud) baseURL() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return "https://api.soundcloud.com"
}

func (s *SoundCloud) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	bundle, err := loadBundle(s.Creds, soundcloudName)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("track[title]", meta.Filename); err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}
	if err := writer.WriteField("track[sharing]", "private"); err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}
	part, err := writer.CreateFormFile("track[asset_data]", meta.Filename)
	if err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL()+"/tracks", &body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}
	req.Header.Set("Authorization", "OAuth "+bundle.AccessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &mirror.UploadError{
			Backend: soundcloudName, Step: "upload",
			Err: fmt.Errorf("status %s: %s", resp.Status, raw),
		}
	}

	var track struct {
		ID           int64  `json:"id"`
		PermalinkURL string `json:"permalink_url"`
	}
	if err := json.Unmarshal(raw, &track); err != nil {
		return nil, &mirror.UploadError{Backend: soundcloudName, Step: "upload", Err: err}
	}
	return &mirror.Target{
		Backend: soundcloudName,
		Key:     fmt.Sprintf("%d", track.ID),
		URL:     track.PermalinkURL,
		Raw:     raw,
	}, nil
}
