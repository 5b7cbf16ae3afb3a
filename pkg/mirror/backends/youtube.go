package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dxforge/forge/pkg/mirror"
)

const youtubeName = "youtube"

// YouTube uploads videos through the resumable upload flow: an initial
// request registers the video and yields a session URL, then the bytes
// go to that URL in one shot.
type YouTube struct {
	Creds   CredentialSource
	Client  *http.Client
	BaseURL string // defaults to https://www.googleapis.com
}

func (y *YouTube) Name() string { return youtubeName }

// CanHandle accepts video payloads only.
func (y *YouTube) CanHandle(mediaType string) bool {
	return strings.HasPrefix(mediaType, "video/")
}

func (y *YouTube) client() *http.Client {
	if y.Client != nil {
		return y.Client
	}
	return http.DefaultClient
}

func (y *YouTube) baseURL() string {
	if y.BaseURL != "" {
		return strings.TrimRight(y.BaseURL, "/")
	}
	return "https://www.googleapis.com"
}

func (y *YouTube) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	bundle, err := loadBundle(y.Creds, youtubeName)
	if err != nil {
		return nil, err
	}

	session, err := y.startSession(ctx, bundle.AccessToken, meta)
	if err != nil {
		return nil, err
	}
	return y.uploadBytes(ctx, bundle.AccessToken, session, data, meta)
}

// startSession registers the video and returns the session URL from
// the Location header.
func (y *YouTube) startSession(ctx context.Context, token string, meta mirror.Metadata) (string, error) {
	snippet, err := json.Marshal(map[string]any{
		"snippet": map[string]any{"title": meta.Filename},
		"status":  map[string]any{"privacyStatus": "unlisted"},
	})
	if err != nil {
		return "", &mirror.UploadError{Backend: youtubeName, Step: "session", Err: err}
	}

	endpoint := y.baseURL() + "/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(snippet))
	if err != nil {
		return "", &mirror.UploadError{Backend: youtubeName, Step: "session", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Type", meta.MediaType)
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", meta.Size))

	resp, err := y.client().Do(req)
	if err != nil {
		return "", &mirror.UploadError{Backend: youtubeName, Step: "session", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &mirror.UploadError{
			Backend: youtubeName, Step: "session",
			Err: fmt.Errorf("status %s: %s", resp.Status, body),
		}
	}
	session := resp.Header.Get("Location")
	if session == "" {
		return "", &mirror.UploadError{Backend: youtubeName, Step: "session", Err: fmt.Errorf("no session url")}
	}
	return session, nil
}

func (y *YouTube) uploadBytes(ctx context.Context, token, session string, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, data)
	if err != nil {
		return nil, &mirror.UploadError{Backend: youtubeName, Step: "upload", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", meta.MediaType)
	req.ContentLength = meta.Size

	resp, err := y.client().Do(req)
	if err != nil {
		return nil, &mirror.UploadError{Backend: youtubeName, Step: "upload", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: youtubeName, Step: "upload", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &mirror.UploadError{
			Backend: youtubeName, Step: "upload",
			Err: fmt.Errorf("status %s: %s", resp.Status, raw),
		}
	}

	var video struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &video); err != nil {
		return nil, &mirror.UploadError{Backend: youtubeName, Step: "upload", Err: err}
	}
	return &mirror.Target{
		Backend: youtubeName,
		Key:     video.ID,
		URL:     "https://youtu.be/" + video.ID,
		Raw:     raw,
	}, nil
}
