package fetch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/catalogsync/internal/config"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/spf13/afero"
)

const stockSuffix = ".stock"

// ArtifactStore keeps raw payloads under <dir>/<supplier>/<ulid>.<ext>. The
// stock feed, when present, sits next to it with a ".stock" suffix.
type ArtifactStore struct {
	fs  afero.Fs
	dir string
}

func NewArtifactStore(cfg config.Config) *ArtifactStore {
	return NewArtifactStoreWithFs(afero.NewOsFs(), cfg.Ingest.DataDir)
}

func NewArtifactStoreWithFs(fs afero.Fs, dir string) *ArtifactStore {
	if strings.TrimSpace(dir) == "" {
		dir = "data"
	}
	return &ArtifactStore{fs: fs, dir: filepath.Clean(dir)}
}

func (s *ArtifactStore) Save(supplierID int64, payload *Payload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("%w: empty payload", ingestdomain.ErrInvalidArtifact)
	}
	ext := strings.Trim(payload.Ext, ".")
	if ext == "" {
		ext = "bin"
	}

	supplierDir := filepath.Join(s.dir, strconv.FormatInt(supplierID, 10))
	if err := s.fs.MkdirAll(supplierDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	name := filepath.Join(supplierDir, ulid.Make().String()+"."+ext)
	if err := afero.WriteFile(s.fs, name, payload.Data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if len(payload.Stock) > 0 {
		if err := afero.WriteFile(s.fs, name+stockSuffix, payload.Stock, 0o644); err != nil {
			return "", fmt.Errorf("write stock artifact: %w", err)
		}
	}
	return name, nil
}

// Load reads an artifact previously written for supplierID. Paths outside the
// supplier's directory are rejected.
func (s *ArtifactStore) Load(supplierID int64, name string) (*Payload, error) {
	name = filepath.Clean(strings.TrimSpace(name))
	supplierDir := filepath.Join(s.dir, strconv.FormatInt(supplierID, 10))
	if !filepath.IsAbs(name) && !strings.HasPrefix(name, s.dir+string(filepath.Separator)) {
		name = filepath.Join(supplierDir, name)
	}
	rel, err := filepath.Rel(supplierDir, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("%w: %s is not an artifact of supplier %d", ingestdomain.ErrInvalidArtifact, name, supplierID)
	}

	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ingestdomain.ErrInvalidArtifact, name)
		}
		return nil, err
	}
	payload := &Payload{Data: data, Ext: strings.TrimPrefix(filepath.Ext(name), ".")}

	stock, err := afero.ReadFile(s.fs, name+stockSuffix)
	switch {
	case err == nil:
		payload.Stock = stock
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	return payload, nil
}
