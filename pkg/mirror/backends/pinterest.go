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

const pinterestName = "pinterest"

// Pinterest uploads images through the v5 media API: register an
// upload to obtain a signed destination and form parameters, then post
// the bytes there as multipart form data.
type Pinterest struct {
	Creds   CredentialSource
	Client  *http.Client
	BaseURL string // defaults to https://api.pinterest.com

	// UploadBaseURL overrides the host of the signed upload URL the
	// register step returns, for tests.
	UploadBaseURL string
}

func (p *Pinterest) Name() string { return pinterestName }

// CanHandle accepts image payloads only.
func (p *Pinterest) CanHandle(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

func (p *Pinterest) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *Pinterest) baseURL() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return "https://api.pinterest.com"
}

type pinterestRegistration struct {
	MediaID    string            `json:"media_id"`
	UploadURL  string            `json:"upload_url"`
	Parameters map[string]string `json:"upload_parameters"`
}

func (p *Pinterest) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	bundle, err := loadBundle(p.Creds, pinterestName)
	if err != nil {
		return nil, err
	}

	reg, err := p.register(ctx, bundle.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := p.uploadBytes(ctx, reg, data, meta); err != nil {
		return nil, err
	}
	return &mirror.Target{Backend: pinterestName, Key: reg.MediaID}, nil
}

func (p *Pinterest) register(ctx context.Context, token string) (*pinterestRegistration, error) {
	body, _ := json.Marshal(map[string]string{"media_type": "image"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL()+"/v5/media", bytes.NewReader(body))
	if err != nil {
		return nil, &mirror.UploadError{Backend: pinterestName, Step: "register", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, &mirror.UploadError{Backend: pinterestName, Step: "register", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: pinterestName, Step: "register", Err: err}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &mirror.UploadError{
			Backend: pinterestName, Step: "register",
			Err: fmt.Errorf("status %s: %s", resp.Status, raw),
		}
	}

	var reg pinterestRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, &mirror.UploadError{Backend: pinterestName, Step: "register", Err: err}
	}
	if reg.MediaID == "" || reg.UploadURL == "" {
		return nil, &mirror.UploadError{Backend: pinterestName, Step: "register", Err: fmt.Errorf("incomplete registration")}
	}
	if p.UploadBaseURL != "" {
		reg.UploadURL = strings.TrimRight(p.UploadBaseURL, "/") + "/upload"
	}
	return &reg, nil
}

func (p *Pinterest) uploadBytes(ctx context.Context, reg *pinterestRegistration, data io.Reader, meta mirror.Metadata) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range reg.Parameters {
		if err := writer.WriteField(key, value); err != nil {
			return &mirror.UploadError{Backend: pinterestName, Step: "upload", Err: err}
		}
	}
	part, err := writer.CreateFormFile("file", meta.Filename)
	if err != nil {
		return &mirror.UploadError{Backend: pinterestName, Step: "upload", Err: err}
	}
	if _, err := io.Copy(part, data); err != nil {
		return &mirror.UploadError{Backend: pinterestName, Step: "upload", Err: err}
	}
	if err := writer.Close(); err != nil {
		return &mirror.UploadError{Backend: pinterestName, Step: "upload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.UploadURL, &body)
	if err != nil {
		return &mirror.UploadError{Backend: pinterestName, Step: "upload", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client().Do(req)
	if err != nil {
		return &mirror.UploadError{Backend: pinterestName, Step: "upload", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return &mirror.UploadError{
			Backend: pinterestName, Step: "upload",
			Err: fmt.Errorf("status %s: %s", resp.Status, raw),
		}
	}
	return nil
}
