package backends

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/dxforge/forge/pkg/auth"
	"github.com/dxforge/forge/pkg/chunk"
	"github.com/dxforge/forge/pkg/mirror"
)

const megaName = "mega"

// Mega uploads to MEGA through its JSON command API. The protocol is a
// strict sequence of dependent steps, modeled as an explicit state
// machine: each step consumes the previous step's output and no step
// may be reordered or parallelized.
//
//	loggedOut -> loggedIn(sid) -> slotAcquired(url) ->
//	uploaded(handle) -> attached(node)
//
// Credentials are the account email in AccessToken and the password
// in RefreshToken; a previously captured session id in the Extra blob
// ({"sid": ...}) short-circuits the login step. The per-file AES
// envelope of the native clients is not implemented, so node key
// material is left empty on attach.
type Mega struct {
	Creds  CredentialSource
	Client *http.Client
	APIURL string // defaults to https://g.api.mega.co.nz

	seq atomic.Int64 // API request sequence id
}

// megaState carries the handshake products between steps.
type megaState struct {
	sid       string
	uploadURL string
	handle    string
	node      string
}

func (m *Mega) Name() string { return megaName }

// CanHandle accepts everything; MEGA is general-purpose storage.
func (m *Mega) CanHandle(string) bool { return true }

func (m *Mega) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return http.DefaultClient
}

func (m *Mega) apiURL() string {
	if m.APIURL != "" {
		return strings.TrimRight(m.APIURL, "/")
	}
	return "https://g.api.mega.co.nz"
}

// Upload runs the full handshake. Between steps only the accumulated
// state advances; a failure at any step aborts with the step's name in
// the error.
func (m *Mega) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	bundle, err := loadBundle(m.Creds, megaName)
	if err != nil {
		return nil, err
	}

	var state megaState

	if sid := storedSession(bundle.Extra); sid != "" {
		state.sid = sid
	} else if err := m.login(ctx, bundle, &state); err != nil {
		return nil, err
	}
	if err := m.acquireSlot(ctx, meta.Size, &state); err != nil {
		return nil, err
	}
	if err := m.uploadBytes(ctx, data, &state); err != nil {
		return nil, err
	}
	if err := m.attach(ctx, meta.Filename, &state); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(map[string]string{"node": state.node, "handle": state.handle})
	return &mirror.Target{
		Backend: megaName,
		Key:     state.node,
		Raw:     raw,
	}, nil
}

// storedSession extracts a previously captured session id from the
// bundle's Extra blob.
func storedSession(extra json.RawMessage) string {
	if len(extra) == 0 {
		return ""
	}
	var session struct {
		SID string `json:"sid"`
	}
	if json.Unmarshal(extra, &session) != nil {
		return ""
	}
	return session.SID
}

// login exchanges email and password for a session id ({"a":"us"}).
func (m *Mega) login(ctx context.Context, bundle auth.TokenBundle, state *megaState) error {
	email := bundle.AccessToken
	var password string
	if bundle.RefreshToken != nil {
		password = *bundle.RefreshToken
	}
	if email == "" || password == "" {
		return &mirror.UploadError{
			Backend: megaName, Step: "login",
			Err: fmt.Errorf("bundle has neither session id nor email and password"),
		}
	}

	var reply struct {
		SID string `json:"csid"`
	}
	err := m.command(ctx, "", map[string]any{
		"a":    "us",
		"user": strings.ToLower(email),
		"uh":   megaLoginHash(email, password),
	}, &reply)
	if err != nil {
		return &mirror.UploadError{Backend: megaName, Step: "login", Err: err}
	}
	if reply.SID == "" {
		return &mirror.UploadError{Backend: megaName, Step: "login", Err: fmt.Errorf("no session id in reply")}
	}
	state.sid = reply.SID
	return nil
}

// acquireSlot requests an upload URL sized for the payload ({"a":"u"}).
func (m *Mega) acquireSlot(ctx context.Context, size int64, state *megaState) error {
	var reply struct {
		URL string `json:"p"`
	}
	err := m.command(ctx, state.sid, map[string]any{"a": "u", "s": size}, &reply)
	if err != nil {
		return &mirror.UploadError{Backend: megaName, Step: "slot", Err: err}
	}
	if reply.URL == "" {
		return &mirror.UploadError{Backend: megaName, Step: "slot", Err: fmt.Errorf("no upload url in reply")}
	}
	state.uploadURL = reply.URL
	return nil
}

// uploadBytes posts the payload to the slot; the response body is the
// completion handle.
func (m *Mega) uploadBytes(ctx context.Context, data io.Reader, state *megaState) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, state.uploadURL+"/0", data)
	if err != nil {
		return &mirror.UploadError{Backend: megaName, Step: "upload", Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := m.client().Do(req)
	if err != nil {
		return &mirror.UploadError{Backend: megaName, Step: "upload", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &mirror.UploadError{Backend: megaName, Step: "upload", Err: fmt.Errorf("status %s", resp.Status)}
	}
	handle, err := io.ReadAll(resp.Body)
	if err != nil {
		return &mirror.UploadError{Backend: megaName, Step: "upload", Err: err}
	}
	if len(handle) == 0 {
		return &mirror.UploadError{Backend: megaName, Step: "upload", Err: fmt.Errorf("empty completion handle")}
	}
	state.handle = string(handle)
	return nil
}

// attach creates the node from the completion handle ({"a":"p"}). The
// display name travels as a base64-encoded JSON attribute block; the
// key field stays empty because the AES envelope is not implemented.
func (m *Mega) attach(ctx context.Context, filename string, state *megaState) error {
	attrs, _ := json.Marshal(map[string]string{"n": filename})
	var reply struct {
		Nodes []struct {
			Handle string `json:"h"`
		} `json:"f"`
	}
	err := m.command(ctx, state.sid, map[string]any{
		"a": "p",
		"t": "root",
		"n": []map[string]any{{
			"h": state.handle,
			"t": 0,
			"a": base64.RawURLEncoding.EncodeToString(attrs),
			"k": "",
		}},
	}, &reply)
	if err != nil {
		return &mirror.UploadError{Backend: megaName, Step: "attach", Err: err}
	}
	if len(reply.Nodes) == 0 || reply.Nodes[0].Handle == "" {
		return &mirror.UploadError{Backend: megaName, Step: "attach", Err: fmt.Errorf("no node in reply")}
	}
	state.node = reply.Nodes[0].Handle
	return nil
}

// command posts one request to the /cs endpoint. The API wraps both
// request and reply in single-element JSON arrays.
func (m *Mega) command(ctx context.Context, sid string, cmd map[string]any, reply any) error {
	body, err := json.Marshal([]map[string]any{cmd})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/cs?id=%d", m.apiURL(), m.seq.Add(1))
	if sid != "" {
		url += "&sid=" + sid
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	// Replies are [result] for success or a bare negative error code.
	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil {
		var code int
		if json.Unmarshal(raw, &code) == nil {
			return fmt.Errorf("api error %d", code)
		}
		return fmt.Errorf("unexpected reply %q", raw)
	}
	if len(results) == 0 {
		return fmt.Errorf("empty reply")
	}
	var code int
	if json.Unmarshal(results[0], &code) == nil {
		return fmt.Errorf("api error %d", code)
	}
	return json.Unmarshal(results[0], reply)
}

// megaLoginHash derives the v2 login proof from the lowered email and
// the password.
func megaLoginHash(email, password string) string {
	sum := chunk.Sum([]byte(strings.ToLower(email) + "\x00" + password))
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
