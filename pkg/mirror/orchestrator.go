package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dxforge/forge/internal/logger"
)

// Policy decides whether a fan-out counts as successful.
type Policy struct {
	kind   policyKind
	quorum int
}

type policyKind int

const (
	policyAll policyKind = iota
	policyAny
	policyQuorum
)

// All requires every backend to succeed.
func All() Policy { return Policy{kind: policyAll} }

// Any requires at least one backend to succeed.
func Any() Policy { return Policy{kind: policyAny} }

// Quorum requires at least n backends to succeed.
func Quorum(n int) Policy { return Policy{kind: policyQuorum, quorum: n} }

// ParsePolicy reads a policy from its config/flag spelling: "all",
// "any" or "quorum:<n>".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "all":
		return All(), nil
	case "any", "":
		return Any(), nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "quorum:%d", &n); err == nil && n > 0 {
		return Quorum(n), nil
	}
	return Policy{}, fmt.Errorf("mirror: unknown policy %q", s)
}

// Satisfied evaluates the policy over a completed result set.
func (p Policy) Satisfied(results []Result) bool {
	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	switch p.kind {
	case policyAll:
		return len(results) > 0 && ok == len(results)
	case policyAny:
		return ok >= 1
	case policyQuorum:
		return ok >= p.quorum
	default:
		return false
	}
}

func (p Policy) String() string {
	switch p.kind {
	case policyAll:
		return "all"
	case policyAny:
		return "any"
	case policyQuorum:
		return fmt.Sprintf("quorum:%d", p.quorum)
	default:
		return "invalid"
	}
}

// Result is the outcome of one backend's upload attempt.
type Result struct {
	Backend string
	Target  *Target
	Err     error
}

// ErrPolicy is returned by Push when the success policy is not met.
// The per-backend results are still returned alongside it.
var ErrPolicy = errors.New("mirror: success policy not satisfied")

// Orchestrator fans uploads out to multiple backends.
type Orchestrator struct {
	// Timeout bounds each backend's upload independently. Zero means
	// no per-backend deadline beyond the caller's context.
	Timeout time.Duration

	// Journal, when set, records successful uploads.
	Journal *Journal
}

// Push uploads the payload to every listed backend concurrently and
// returns one Result per backend in input order. A failing backend
// never affects the others; the error return reflects only the policy
// verdict over the full result set. Local repository state is never
// modified, so a cancelled push is always safe.
func (o *Orchestrator) Push(ctx context.Context, payload []byte, meta Metadata, backends []Backend, policy Policy) ([]Result, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no backends selected", ErrPolicy)
	}

	results := make([]Result, len(backends))
	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			results[i] = o.pushOne(ctx, payload, meta, b)
		}(i, b)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			logger.Warn("mirror: %s failed: %v", r.Backend, r.Err)
		} else {
			logger.Info("mirror: %s stored %s as %s", r.Backend, meta.Filename, r.Target.Key)
		}
	}

	if !policy.Satisfied(results) {
		return results, fmt.Errorf("%w: policy %s over %d backends", ErrPolicy, policy, len(backends))
	}
	return results, nil
}

func (o *Orchestrator) pushOne(ctx context.Context, payload []byte, meta Metadata, b Backend) Result {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	if !b.CanHandle(meta.MediaType) {
		return Result{
			Backend: b.Name(),
			Err:     uploadErr(b.Name(), "select", fmt.Errorf("media type %q not accepted", meta.MediaType)),
		}
	}

	target, err := b.Upload(ctx, bytes.NewReader(payload), meta)
	if err != nil {
		return Result{Backend: b.Name(), Err: err}
	}

	if o.Journal != nil {
		item := meta.ID
		if item == "" {
			item = meta.Filename
		}
		if jerr := o.Journal.Record(b.Name(), item, target); jerr != nil {
			logger.Warn("mirror: journal write for %s failed: %v", b.Name(), jerr)
		}
	}
	return Result{Backend: b.Name(), Target: target}
}
