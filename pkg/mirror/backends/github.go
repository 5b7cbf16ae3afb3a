package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dxforge/forge/pkg/mirror"
)

const githubName = "github"

// GitHub uploads payloads as release assets. The bundle's AccessToken
// is a personal access token; Extra names the repository and release:
// {"owner", "repo", "release_id"}.
type GitHub struct {
	Creds   CredentialSource
	Client  *http.Client
	BaseURL string // defaults to https://uploads.github.com
}

type githubTarget struct {
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	ReleaseID int64  `json:"release_id"`
}

func (g *GitHub) Name() string { return githubName }

func (g *GitHub) CanHandle(string) bool { return true }

func (g *GitHub) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *GitHub) baseURL() string {
	if g.BaseURL != "" {
		return strings.TrimRight(g.BaseURL, "/")
	}
	return "https://uploads.github.com"
}

func (g *GitHub) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	bundle, err := loadBundle(g.Creds, githubName)
	if err != nil {
		return nil, err
	}
	var dest githubTarget
	if len(bundle.Extra) == 0 || json.Unmarshal(bundle.Extra, &dest) != nil || dest.Owner == "" || dest.Repo == "" {
		return nil, &mirror.UploadError{
			Backend: githubName, Step: "credentials",
			Err: fmt.Errorf("extra must carry owner, repo and release_id"),
		}
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		g.baseURL(), dest.Owner, dest.Repo, dest.ReleaseID, url.QueryEscape(meta.Filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, data)
	if err != nil {
		return nil, &mirror.UploadError{Backend: githubName, Step: "upload", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	req.Header.Set("Content-Type", meta.MediaType)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.ContentLength = meta.Size

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, &mirror.UploadError{Backend: githubName, Step: "upload", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mirror.UploadError{Backend: githubName, Step: "upload", Err: err}
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, &mirror.UploadError{
			Backend: githubName, Step: "upload",
			Err: fmt.Errorf("status %s: %s", resp.Status, body),
		}
	}

	var asset struct {
		ID                 int64  `json:"id"`
		BrowserDownloadURL string `json:"browser_download_url"`
	}
	if err := json.Unmarshal(body, &asset); err != nil {
		return nil, &mirror.UploadError{Backend: githubName, Step: "upload", Err: err}
	}
	return &mirror.Target{
		Backend: githubName,
		Key:     fmt.Sprintf("%d", asset.ID),
		URL:     asset.BrowserDownloadURL,
		Raw:     body,
	}, nil
}
