package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

var versionFile = regexp.MustCompile(`^v(\d{6,})\.json$`)

// FSStore stores artifacts as <root>/<taxonomy>/<stage>/v000001.json.
type FSStore struct {
	root string
	// mu serializes version allocation within this process.
	mu sync.Mutex
}

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("artifact store location is empty")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the store directory.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) dir(key Key) string {
	return filepath.Join(s.root, key.Taxonomy, key.Stage)
}

func fileName(version int) string {
	return fmt.Sprintf("v%06d.json", version)
}

// Put writes payload to a temp file in the target directory, syncs it, then links it
// to the next free version name. A link never replaces an existing file, so stores in
// other processes sharing the root cannot overwrite a published version; on a name
// collision the next version is tried.
func (s *FSStore) Put(ctx context.Context, key Key, payload []byte) (int, error) {
	if err := key.validate(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir(key)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, fmt.Errorf("create artifact dir %s: %w", dir, err)
	}

	tmpName, err := writeTemp(dir, payload)
	if err != nil {
		return 0, err
	}
	defer func() { _ = os.Remove(tmpName) }()

	next := 0
	for {
		if err = ctx.Err(); err != nil {
			return 0, err
		}
		versions, listErr := s.versions(dir)
		if listErr != nil {
			return 0, listErr
		}
		if len(versions) > 0 && versions[len(versions)-1] >= next {
			next = versions[len(versions)-1]
		}
		next++

		final := filepath.Join(dir, fileName(next))
		err = os.Link(tmpName, final)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("publish artifact %s: %w", final, err)
		}
	}
	syncDir(dir)

	return next, nil
}

func writeTemp(dir string, payload []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(format string, err error) (string, error) {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf(format, err)
	}

	if _, err = tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fail("write temp artifact: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fail("sync temp artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fail("close temp artifact: %w", err)
	}
	if err = os.Chmod(tmpName, filePerm); err != nil {
		return fail("chmod temp artifact: %w", err)
	}
	return tmpName, nil
}

// syncDir flushes the rename to disk where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Get reads a published version.
func (s *FSStore) Get(ctx context.Context, key Key, version int) ([]byte, int, error) {
	if err := key.validate(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if version == Latest {
		versions, err := s.versions(s.dir(key))
		if err != nil {
			return nil, 0, err
		}
		if len(versions) == 0 {
			return nil, 0, &domain.ArtifactNotFoundError{Taxonomy: key.Taxonomy, Stage: key.Stage}
		}
		version = versions[len(versions)-1]
	}

	data, err := os.ReadFile(filepath.Join(s.dir(key), fileName(version)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, &domain.ArtifactNotFoundError{Taxonomy: key.Taxonomy, Stage: key.Stage, Version: version}
		}
		return nil, 0, fmt.Errorf("read artifact %s v%d: %w", key, version, err)
	}
	return data, version, nil
}

// Versions lists published versions. Temp files are ignored.
func (s *FSStore) Versions(ctx context.Context, key Key) ([]int, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.versions(s.dir(key))
}

func (s *FSStore) versions(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts in %s: %w", dir, err)
	}

	var versions []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := versionFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}
