package mirror

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeBackend is a scriptable in-memory backend.
type fakeBackend struct {
	name    string
	accepts string // empty accepts everything
	fail    error
	delay   time.Duration
	calls   atomic.Int64
	seen    atomic.Value // last payload bytes
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) CanHandle(mediaType string) bool {
	return f.accepts == "" || f.accepts == mediaType
}

func (f *fakeBackend) Upload(ctx context.Context, data io.Reader, meta Metadata) (*Target, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, uploadErr(f.name, "upload", ctx.Err())
		}
	}
	if f.fail != nil {
		return nil, uploadErr(f.name, "upload", f.fail)
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return nil, uploadErr(f.name, "read", err)
	}
	f.seen.Store(payload)
	return &Target{Backend: f.name, Key: meta.Filename}, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeBackend{name: "r2"}))
	require.NoError(t, reg.Register(&fakeBackend{name: "mega"}))
	require.Error(t, reg.Register(&fakeBackend{name: "r2"}))

	b, ok := reg.Get("mega")
	require.True(t, ok)
	require.Equal(t, "mega", b.Name())

	_, ok = reg.Get("nope")
	require.False(t, ok)

	require.Equal(t, []string{"mega", "r2"}, reg.Names())
}

func TestRegistryHandlingFilters(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeBackend{name: "youtube", accepts: "video/mp4"}))
	require.NoError(t, reg.Register(&fakeBackend{name: "r2"}))

	matched := reg.Handling("video/mp4")
	require.Len(t, matched, 2)

	matched = reg.Handling("image/png")
	require.Len(t, matched, 1)
	require.Equal(t, "r2", matched[0].Name())
}

func TestPushFansOutToAllBackends(t *testing.T) {
	a := &fakeBackend{name: "a"}
	b := &fakeBackend{name: "b"}
	orch := &Orchestrator{}
	payload := []byte("chunk data")
	meta := Metadata{Filename: "asset.bin", MediaType: "application/octet-stream", Size: int64(len(payload))}

	results, err := orch.Push(context.Background(), payload, meta, []Backend{a, b}, All())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, "asset.bin", r.Target.Key)
	}

	// Each backend got its own reader over the same payload.
	require.Equal(t, payload, a.seen.Load())
	require.Equal(t, payload, b.seen.Load())
}

func TestPushIsolatesFailures(t *testing.T) {
	good := &fakeBackend{name: "good"}
	bad := &fakeBackend{name: "bad", fail: errors.New("remote exploded")}
	orch := &Orchestrator{}

	results, err := orch.Push(context.Background(), []byte("x"), Metadata{Filename: "f"}, []Backend{bad, good}, Any())
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Results arrive in input order regardless of completion order.
	require.Equal(t, "bad", results[0].Backend)
	var ue *UploadError
	require.ErrorAs(t, results[0].Err, &ue)
	require.Equal(t, "bad", ue.Backend)

	require.Equal(t, "good", results[1].Backend)
	require.NoError(t, results[1].Err)
	require.EqualValues(t, 1, good.calls.Load())
}

func TestPushPolicies(t *testing.T) {
	good := &fakeBackend{name: "good"}
	good2 := &fakeBackend{name: "good2"}
	bad := &fakeBackend{name: "bad", fail: errors.New("boom")}
	orch := &Orchestrator{}
	ctx := context.Background()

	_, err := orch.Push(ctx, []byte("x"), Metadata{}, []Backend{good, bad}, All())
	require.ErrorIs(t, err, ErrPolicy)

	_, err = orch.Push(ctx, []byte("x"), Metadata{}, []Backend{good, bad}, Any())
	require.NoError(t, err)

	_, err = orch.Push(ctx, []byte("x"), Metadata{}, []Backend{good, good2, bad}, Quorum(2))
	require.NoError(t, err)

	_, err = orch.Push(ctx, []byte("x"), Metadata{}, []Backend{good, bad}, Quorum(2))
	require.ErrorIs(t, err, ErrPolicy)

	_, err = orch.Push(ctx, []byte("x"), Metadata{}, nil, Any())
	require.ErrorIs(t, err, ErrPolicy)
}

func TestPushTimeoutHitsOnlySlowBackend(t *testing.T) {
	slow := &fakeBackend{name: "slow", delay: 500 * time.Millisecond}
	fast := &fakeBackend{name: "fast"}
	orch := &Orchestrator{Timeout: 50 * time.Millisecond}

	results, err := orch.Push(context.Background(), []byte("x"), Metadata{}, []Backend{slow, fast}, Any())
	require.NoError(t, err)
	require.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
	require.NoError(t, results[1].Err)
}

func TestPushSkipsBackendRejectingMediaType(t *testing.T) {
	video := &fakeBackend{name: "youtube", accepts: "video/mp4"}
	orch := &Orchestrator{}

	results, err := orch.Push(context.Background(), []byte("x"),
		Metadata{MediaType: "image/png"}, []Backend{video}, Any())
	require.ErrorIs(t, err, ErrPolicy)
	var ue *UploadError
	require.ErrorAs(t, results[0].Err, &ue)
	require.Equal(t, "select", ue.Step)
	require.EqualValues(t, 0, video.calls.Load())
}

func TestParsePolicy(t *testing.T) {
	for spelling, want := range map[string]Policy{
		"all":      All(),
		"any":      Any(),
		"":         Any(),
		"quorum:3": Quorum(3),
	} {
		got, err := ParsePolicy(spelling)
		require.NoError(t, err, spelling)
		require.Equal(t, want, got, spelling)
	}

	_, err := ParsePolicy("most")
	require.Error(t, err)
	_, err = ParsePolicy("quorum:0")
	require.Error(t, err)
}

func TestJournalRecordsSuccesses(t *testing.T) {
	journal, err := OpenJournal(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	backend := &fakeBackend{name: "r2"}
	orch := &Orchestrator{Journal: journal}

	_, err = orch.Push(context.Background(), []byte("x"),
		Metadata{ID: "manifest-1", Filename: "asset.bin"}, []Backend{backend}, Any())
	require.NoError(t, err)

	target, ok, err := journal.Lookup("r2", "manifest-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "asset.bin", target.Key)

	_, ok, err = journal.Lookup("r2", "manifest-2")
	require.NoError(t, err)
	require.False(t, ok)

	items, err := journal.Items("r2")
	require.NoError(t, err)
	require.Equal(t, []string{"manifest-1"}, items)

	count, err := journal.Uploads("r2")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, err = journal.Uploads("mega")
	require.NoError(t, err)
	require.Zero(t, count)
}
