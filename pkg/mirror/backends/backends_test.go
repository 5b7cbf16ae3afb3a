package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dxforge/forge/pkg/auth"
	"github.com/dxforge/forge/pkg/mirror"
	"github.com/dxforge/forge/pkg/mirror/mirrortest"
)

// mapCreds is an in-memory CredentialSource.
type mapCreds map[string]auth.TokenBundle

func (m mapCreds) Load(backend string) (auth.TokenBundle, error) {
	bundle, ok := m[backend]
	if !ok {
		return auth.TokenBundle{}, fmt.Errorf("%w: %s", auth.ErrMissing, backend)
	}
	return bundle, nil
}

func strptr(s string) *string { return &s }

var testMeta = mirror.Metadata{
	Filename:  "asset.bin",
	MediaType: "application/octet-stream",
	Size:      4,
}

func TestBackendContracts(t *testing.T) {
	suites := []*mirrortest.BackendTestSuite{
		{
			Name:       "dropbox",
			NewBackend: func(t *testing.T) mirror.Backend { return &Dropbox{Creds: mapCreds{}} },
			Accepts:    []string{"application/zip", "video/mp4"},
		},
		{
			Name:       "gdrive",
			NewBackend: func(t *testing.T) mirror.Backend { return &GDrive{Creds: mapCreds{}} },
			Accepts:    []string{"application/zip", "image/png"},
		},
		{
			Name:       "github",
			NewBackend: func(t *testing.T) mirror.Backend { return &GitHub{Creds: mapCreds{}} },
			Accepts:    []string{"application/octet-stream"},
		},
		{
			Name:       "mega",
			NewBackend: func(t *testing.T) mirror.Backend { return &Mega{Creds: mapCreds{}} },
			Accepts:    []string{"video/mp4", "application/zip"},
		},
		{
			Name:       "pinterest",
			NewBackend: func(t *testing.T) mirror.Backend { return &Pinterest{Creds: mapCreds{}} },
			Accepts:    []string{"image/png", "image/jpeg"},
			Rejects:    []string{"video/mp4", "audio/ogg"},
		},
		{
			Name:       "r2",
			NewBackend: func(t *testing.T) mirror.Backend { return &R2{Creds: mapCreds{}} },
			Accepts:    []string{"image/png", "video/mp4"},
		},
		{
			Name:       "sketchfab",
			NewBackend: func(t *testing.T) mirror.Backend { return &Sketchfab{Creds: mapCreds{}} },
			Accepts:    []string{"model/gltf+json", "model/obj"},
			Rejects:    []string{"audio/ogg", "image/png"},
		},
		{
			Name:       "soundcloud",
			NewBackend: func(t *testing.T) mirror.Backend { return &SoundCloud{Creds: mapCreds{}} },
			Accepts:    []string{"audio/ogg", "audio/mpeg"},
			Rejects:    []string{"model/gltf+json", "video/mp4"},
		},
		{
			Name:       "youtube",
			NewBackend: func(t *testing.T) mirror.Backend { return &YouTube{Creds: mapCreds{}} },
			Accepts:    []string{"video/mp4", "video/webm"},
			Rejects:    []string{"image/png", "audio/ogg"},
		},
	}
	for _, suite := range suites {
		t.Run(suite.Name, suite.Run)
	}
}

func TestRegisterAll(t *testing.T) {
	reg := mirror.NewRegistry()
	require.NoError(t, RegisterAll(reg, mapCreds{}))
	require.Equal(t, Names, reg.Names())
}

func TestMegaHandshake(t *testing.T) {
	var steps []string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/up/") {
			steps = append(steps, "bytes")
			body, _ := io.ReadAll(r.Body)
			require.Equal(t, "data", string(body))
			fmt.Fprint(w, "HANDLE1")
			return
		}

		require.Equal(t, "/cs", r.URL.Path)
		var cmds []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmds))
		require.Len(t, cmds, 1)
		cmd := cmds[0]

		switch cmd["a"] {
		case "us":
			steps = append(steps, "login")
			require.Empty(t, r.URL.Query().Get("sid"))
			require.Equal(t, "user@example.com", cmd["user"])
			require.NotEmpty(t, cmd["uh"])
			fmt.Fprint(w, `[{"csid":"SID123"}]`)
		case "u":
			steps = append(steps, "slot")
			require.Equal(t, "SID123", r.URL.Query().Get("sid"))
			require.EqualValues(t, 4, cmd["s"])
			fmt.Fprintf(w, `[{"p":%q}]`, server.URL+"/up")
		case "p":
			steps = append(steps, "attach")
			require.Equal(t, "SID123", r.URL.Query().Get("sid"))
			nodes := cmd["n"].([]any)
			node := nodes[0].(map[string]any)
			require.Equal(t, "HANDLE1", node["h"])
			require.Equal(t, "", node["k"])
			fmt.Fprint(w, `[{"f":[{"h":"NODE1"}]}]`)
		default:
			t.Fatalf("unexpected command %v", cmd["a"])
		}
	}))
	defer server.Close()

	mega := &Mega{
		Creds: mapCreds{"mega": {
			AccessToken:  "User@Example.com",
			RefreshToken: strptr("hunter2"),
		}},
		Client: server.Client(),
		APIURL: server.URL,
	}

	target, err := mega.Upload(context.Background(), strings.NewReader("data"), testMeta)
	require.NoError(t, err)
	require.Equal(t, "NODE1", target.Key)

	// The handshake is strictly sequential.
	require.Equal(t, []string{"login", "slot", "bytes", "attach"}, steps)
}

func TestMegaLogsInWithEmailPasswordBundle(t *testing.T) {
	sawLogin := false
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/up/") {
			fmt.Fprint(w, "H")
			return
		}
		var cmds []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmds))
		switch cmds[0]["a"] {
		case "us":
			sawLogin = true
			fmt.Fprint(w, `[{"csid":"FRESH"}]`)
		case "u":
			// The email must never travel as a session id.
			require.Equal(t, "FRESH", r.URL.Query().Get("sid"))
			fmt.Fprintf(w, `[{"p":%q}]`, server.URL+"/up")
		case "p":
			fmt.Fprint(w, `[{"f":[{"h":"N"}]}]`)
		}
	}))
	defer server.Close()

	mega := &Mega{
		Creds: mapCreds{"mega": {
			AccessToken:  "user@example.com",
			RefreshToken: strptr("hunter2"),
		}},
		Client: server.Client(),
		APIURL: server.URL,
	}
	_, err := mega.Upload(context.Background(), strings.NewReader("data"), testMeta)
	require.NoError(t, err)
	require.True(t, sawLogin)
}

func TestMegaReusesStoredSession(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/up/") {
			fmt.Fprint(w, "H")
			return
		}
		var cmds []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmds))
		switch cmds[0]["a"] {
		case "us":
			t.Fatal("login must be skipped when a session id is stored")
		case "u":
			require.Equal(t, "stored-sid", r.URL.Query().Get("sid"))
			fmt.Fprintf(w, `[{"p":%q}]`, server.URL+"/up")
		case "p":
			fmt.Fprint(w, `[{"f":[{"h":"N"}]}]`)
		}
	}))
	defer server.Close()

	mega := &Mega{
		Creds: mapCreds{"mega": {
			AccessToken:  "user@example.com",
			RefreshToken: strptr("hunter2"),
			Extra:        json.RawMessage(`{"sid":"stored-sid"}`),
		}},
		Client: server.Client(),
		APIURL: server.URL,
	}
	_, err := mega.Upload(context.Background(), strings.NewReader("data"), testMeta)
	require.NoError(t, err)
}

func TestMegaAPIErrorSurfacesStep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[-9]`)
	}))
	defer server.Close()

	mega := &Mega{
		Creds:  mapCreds{"mega": {Extra: json.RawMessage(`{"sid":"sid"}`)}},
		Client: server.Client(),
		APIURL: server.URL,
	}
	_, err := mega.Upload(context.Background(), strings.NewReader("data"), testMeta)
	var ue *mirror.UploadError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "mega", ue.Backend)
	require.Equal(t, "slot", ue.Step)
}

func TestGitHubReleaseAssetUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/dxforge/assets/releases/7/assets", r.URL.Path)
		require.Equal(t, "asset.bin", r.URL.Query().Get("name"))
		require.Equal(t, "Bearer ghp_token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "data", string(body))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":42,"browser_download_url":"https://example.com/asset.bin"}`)
	}))
	defer server.Close()

	gh := &GitHub{
		Creds: mapCreds{"github": {
			AccessToken: "ghp_token",
			Extra:       json.RawMessage(`{"owner":"dxforge","repo":"assets","release_id":7}`),
		}},
		Client:  server.Client(),
		BaseURL: server.URL,
	}
	target, err := gh.Upload(context.Background(), strings.NewReader("data"), testMeta)
	require.NoError(t, err)
	require.Equal(t, "42", target.Key)
	require.Equal(t, "https://example.com/asset.bin", target.URL)
}

func TestDropboxUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/files/upload", r.URL.Path)
		require.Equal(t, "Bearer db-token", r.Header.Get("Authorization"))

		var arg struct {
			Path string `json:"path"`
			Mode string `json:"mode"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg))
		require.Equal(t, "/asset.bin", arg.Path)
		require.Equal(t, "overwrite", arg.Mode)

		fmt.Fprint(w, `{"id":"id:abc","path_display":"/asset.bin"}`)
	}))
	defer server.Close()

	dropbox := &Dropbox{
		Creds:   mapCreds{"dropbox": {AccessToken: "db-token"}},
		Client:  server.Client(),
		BaseURL: server.URL,
	}
	target, err := dropbox.Upload(context.Background(), strings.NewReader("data"), testMeta)
	require.NoError(t, err)
	require.Equal(t, "id:abc", target.Key)
}

func TestGDriveMultipartUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/drive/v3/files", r.URL.Path)
		require.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		require.Equal(t, "Bearer g-token", r.Header.Get("Authorization"))
		require.Contains(t, r.Header.Get("Content-Type"), "multipart/related")

		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), `"name":"asset.bin"`)
		require.Contains(t, string(body), "data")

		fmt.Fprint(w, `{"id":"file-1"}`)
	}))
	defer server.Close()

	gdrive := &GDrive{
		Creds:   mapCreds{"gdrive": {AccessToken: "g-token"}},
		Client:  server.Client(),
		BaseURL: server.URL,
	}
	target, err := gdrive.Upload(context.Background(), strings.NewReader("data"), testMeta)
	require.NoError(t, err)
	require.Equal(t, "file-1", target.Key)
}

func TestYouTubeResumableUpload(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			require.Equal(t, "/upload/youtube/v3/videos", r.URL.Path)
			require.Equal(t, "resumable", r.URL.Query().Get("uploadType"))
			var snippet struct {
				Snippet struct {
					Title string `json:"title"`
				} `json:"snippet"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&snippet))
			require.Equal(t, "clip.mp4", snippet.Snippet.Title)
			w.Header().Set("Location", server.URL+"/session/1")
		case r.Method == http.MethodPut:
			require.Equal(t, "/session/1", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			require.Equal(t, "data", string(body))
			fmt.Fprint(w, `{"id":"vid123"}`)
		}
	}))
	defer server.Close()

	youtube := &YouTube{
		Creds:   mapCreds{"youtube": {AccessToken: "yt-token"}},
		Client:  server.Client(),
		BaseURL: server.URL,
	}
	target, err := youtube.Upload(context.Background(), strings.NewReader("data"), mirror.Metadata{
		Filename:  "clip.mp4",
		MediaType: "video/mp4",
		Size:      4,
	})
	require.NoError(t, err)
	require.Equal(t, "vid123", target.Key)
	require.Equal(t, "https://youtu.be/vid123", target.URL)
}

func TestPinterestTwoStepUpload(t *testing.T) {
	var uploaded bool
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/media":
			require.Equal(t, "Bearer p-token", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"media_id":"m-1","upload_url":%q,"upload_parameters":{"sig":"xyz"}}`,
				server.URL+"/signed")
		case "/upload":
			uploaded = true
			require.NoError(t, r.ParseMultipartForm(1<<20))
			require.Equal(t, "xyz", r.FormValue("sig"))
			file, _, err := r.FormFile("file")
			require.NoError(t, err)
			body, _ := io.ReadAll(file)
			require.Equal(t, "data", string(body))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	pinterest := &Pinterest{
		Creds:         mapCreds{"pinterest": {AccessToken: "p-token"}},
		Client:        server.Client(),
		BaseURL:       server.URL,
		UploadBaseURL: server.URL,
	}
	target, err := pinterest.Upload(context.Background(), strings.NewReader("data"), mirror.Metadata{
		Filename:  "pic.png",
		MediaType: "image/png",
		Size:      4,
	})
	require.NoError(t, err)
	require.Equal(t, "m-1", target.Key)
	require.True(t, uploaded)
}

func TestSoundCloudUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tracks", r.URL.Path)
		require.Equal(t, "OAuth sc-token", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "song.ogg", r.FormValue("track[title]"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":99,"permalink_url":"https://soundcloud.com/u/song"}`)
	}))
	defer server.Close()

	soundcloud := &SoundCloud{
		Creds:   mapCreds{"soundcloud": {AccessToken: "sc-token"}},
		Client:  server.Client(),
		BaseURL: server.URL,
	}
	target, err := soundcloud.Upload(context.Background(), strings.NewReader("data"), mirror.Metadata{
		Filename:  "song.ogg",
		MediaType: "audio/ogg",
		Size:      4,
	})
	require.NoError(t, err)
	require.Equal(t, "99", target.Key)
}

func TestSketchfabUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/models", r.URL.Path)
		require.Equal(t, "Token sf-token", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "mesh.gltf", r.FormValue("name"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"uid":"u-7","uri":"https://api.sketchfab.com/v3/models/u-7"}`)
	}))
	defer server.Close()

	sketchfab := &Sketchfab{
		Creds:   mapCreds{"sketchfab": {AccessToken: "sf-token"}},
		Client:  server.Client(),
		BaseURL: server.URL,
	}
	target, err := sketchfab.Upload(context.Background(), strings.NewReader("data"), mirror.Metadata{
		Filename:  "mesh.gltf",
		MediaType: "model/gltf+json",
		Size:      4,
	})
	require.NoError(t, err)
	require.Equal(t, "u-7", target.Key)
}

func TestUploadFailureReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	dropbox := &Dropbox{
		Creds:   mapCreds{"dropbox": {AccessToken: "t"}},
		Client:  server.Client(),
		BaseURL: server.URL,
	}
	_, err := dropbox.Upload(context.Background(), strings.NewReader("data"), testMeta)
	var ue *mirror.UploadError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "dropbox", ue.Backend)
	require.Contains(t, ue.Error(), "403")
}
