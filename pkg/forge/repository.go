// Package forge implements the on-disk repository: the .forge control
// directory with its config, HEAD, refs, manifests and the embedded
// metadata database, plus the ingestion pipeline that ties the chunker,
// the object store and the index together.
//
// All repository state lives under a single .forge directory inside the
// working tree. Multiple repositories never share state; opening two
// different working trees yields fully isolated instances.
package forge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dxforge/forge/pkg/chunk"
	"github.com/dxforge/forge/pkg/metadb"
	"github.com/dxforge/forge/pkg/object"
)

const (
	// ControlDir is the name of the repository control directory.
	ControlDir = ".forge"

	configFile   = "config.toml"
	headFile     = "HEAD"
	metadataFile = "metadata.redb"

	chunksDir       = "objects/chunks"
	packsDir        = "objects/packs"
	headsDir        = "refs/heads"
	remotesDir      = "refs/remotes"
	manifestsDir    = "manifests"
	dictionariesDir = "dictionaries"

	// DefaultBranch is the branch HEAD points at after Init.
	DefaultBranch = "main"
)

// Repository is an open forge repository.
type Repository struct {
	// Workdir is the root of the working tree.
	Workdir string

	// Root is the .forge control directory.
	Root string

	cfg     Config
	meta    *metadb.DB
	objects *object.Store
}

// Discover walks from start upward looking for a .forge directory and
// opens the repository that owns it. It returns ErrNotARepository when
// the filesystem root is reached without finding one.
func Discover(start string) (*Repository, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", start, err)
	}

	for {
		control := filepath.Join(dir, ControlDir)
		info, err := os.Stat(control)
		if err == nil && info.IsDir() {
			return Open(dir)
		}
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", control, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w: no %s directory above %s", ErrNotARepository, ControlDir, start)
		}
		dir = parent
	}
}

// Init creates a new repository rooted at workdir. It fails with
// ErrAlreadyExists if a .forge directory is already present.
func Init(workdir string) (*Repository, error) {
	workdir, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", workdir, err)
	}
	root := filepath.Join(workdir, ControlDir)

	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, root)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	for _, sub := range []string{chunksDir, packsDir, headsDir, remotesDir, manifestsDir, dictionariesDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	if err := writeConfig(filepath.Join(root, configFile), DefaultConfig()); err != nil {
		return nil, err
	}

	// A fresh HEAD points at an unborn default branch, matching the
	// behaviour of an empty git repository.
	if err := writeFileAtomic(filepath.Join(root, headFile), []byte("ref: refs/heads/"+DefaultBranch+"\n")); err != nil {
		return nil, fmt.Errorf("write HEAD: %w", err)
	}

	db, err := metadb.Create(filepath.Join(root, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("create metadata db: %w", err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("close metadata db: %w", err)
	}

	return Open(workdir)
}

// Open opens an existing repository whose working tree is workdir.
func Open(workdir string) (*Repository, error) {
	workdir, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", workdir, err)
	}
	root := filepath.Join(workdir, ControlDir)

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotARepository, root)
	}

	cfg, err := readConfig(filepath.Join(root, configFile))
	if err != nil {
		return nil, err
	}

	meta, err := metadb.Open(filepath.Join(root, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	opts := object.Options{Level: cfg.CompressionLevel}
	if dict, err := os.ReadFile(filepath.Join(root, dictionariesDir, "chunks.dict")); err == nil {
		opts.Dictionary = dict
	}

	objects, err := object.NewStore(filepath.Join(root, chunksDir), opts)
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("open object store: %w", err)
	}

	return &Repository{
		Workdir: workdir,
		Root:    root,
		cfg:     cfg,
		meta:    meta,
		objects: objects,
	}, nil
}

// Close releases the repository's database and store handles.
func (r *Repository) Close() error {
	if r.objects != nil {
		r.objects.Close()
	}
	if r.meta != nil {
		if err := r.meta.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the repository configuration as read at open time.
func (r *Repository) Config() Config { return r.cfg }

// Metadata exposes the metadata database for read transactions.
func (r *Repository) Metadata() *metadb.DB { return r.meta }

// Objects exposes the chunk object store.
func (r *Repository) Objects() *object.Store { return r.objects }

// ChunkPath returns the object path a chunk hash maps to inside this
// repository. It performs no I/O.
func (r *Repository) ChunkPath(h chunk.Hash) string {
	return object.PathFor(filepath.Join(r.Root, chunksDir), h)
}

// writeFileAtomic writes data to path via a temp file and rename so a
// crash never leaves a half-written control file behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
