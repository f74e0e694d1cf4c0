package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/util"
)

const (
	versionsDir = "versions"
	currentFile = "CURRENT"
)

// FileArtifactStore keeps every artifact version in its own directory and
// publishes by swapping the CURRENT pointer with a rename. Readers resolve
// CURRENT once and then read an immutable directory, so they always see a
// complete (predictor, scaler) pair.
type FileArtifactStore struct {
	dir           string
	predictorFile string
	scalerFile    string
	keep          int
	l             *applogger.Logger
}

func NewFileArtifactStore(cfg config.Model, l *applogger.Logger) *FileArtifactStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &FileArtifactStore{
		dir:           cfg.Dir,
		predictorFile: cfg.PredictorFile,
		scalerFile:    cfg.ScalerFile,
		keep:          cfg.KeepVersions,
		l:             l.Named("artifact_store"),
	}
}

// Publish writes a new version and makes it current.
func (s *FileArtifactStore) Publish(ctx context.Context, a models.ModelArtifact) error {
	if a.Version == "" {
		return fmt.Errorf("publish: artifact has no version")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	vdir := filepath.Join(s.dir, versionsDir, a.Version)
	if err := os.MkdirAll(filepath.Dir(vdir), 0o755); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := os.Mkdir(vdir, 0o755); err != nil {
		return fmt.Errorf("publish %s: %w", a.Version, err)
	}

	if err := writeJSONSync(filepath.Join(vdir, s.predictorFile), a.Predictor); err != nil {
		_ = os.RemoveAll(vdir)
		return fmt.Errorf("publish predictor: %w", err)
	}
	meta := struct {
		models.ScalerParams
		Version   string `json:"version"`
		TrainedAt string `json:"trained_at"`
	}{a.Scaler, a.Version, a.TrainedAt.Format(time.RFC3339Nano)}
	if err := writeJSONSync(filepath.Join(vdir, s.scalerFile), meta); err != nil {
		_ = os.RemoveAll(vdir)
		return fmt.Errorf("publish scaler: %w", err)
	}
	if err := syncDir(vdir); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	if err := atomicWrite(filepath.Join(s.dir, currentFile), []byte(a.Version+"\n")); err != nil {
		return fmt.Errorf("publish pointer: %w", err)
	}
	s.l.Info("artifact published", applogger.String("version", a.Version), applogger.String("dir", vdir))

	if err := s.prune(a.Version); err != nil {
		s.l.Warn("artifact prune failed", applogger.Error(err))
	}
	return nil
}

// Current returns the published version.
func (s *FileArtifactStore) Current(_ context.Context) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", errs.ErrModelMissing
	}
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", errs.ErrModelMissing
	}
	return v, nil
}

// Load reads the current (predictor, scaler) pair.
func (s *FileArtifactStore) Load(ctx context.Context) (models.ModelArtifact, error) {
	v, err := s.Current(ctx)
	if err != nil {
		return models.ModelArtifact{}, err
	}
	vdir := filepath.Join(s.dir, versionsDir, v)

	var a models.ModelArtifact
	if err := readJSON(filepath.Join(vdir, s.predictorFile), &a.Predictor); err != nil {
		return models.ModelArtifact{}, err
	}
	var meta struct {
		models.ScalerParams
		TrainedAt string `json:"trained_at"`
	}
	if err := readJSON(filepath.Join(vdir, s.scalerFile), &meta); err != nil {
		return models.ModelArtifact{}, err
	}
	a.Version = v
	a.Scaler = meta.ScalerParams
	if t, ok := util.ParseTime(meta.TrainedAt); ok {
		a.TrainedAt = t
	}
	return a, nil
}

// Versions lists stored versions, oldest first.
func (s *FileArtifactStore) Versions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, versionsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileArtifactStore) prune(current string) error {
	if s.keep <= 0 {
		return nil
	}
	versions, err := s.Versions()
	if err != nil || len(versions) <= s.keep {
		return err
	}
	for _, v := range versions[:len(versions)-s.keep] {
		if v == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, versionsDir, v)); err != nil {
			return err
		}
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", filepath.Base(path), errs.ErrModelMissing)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSONSync(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// atomicWrite replaces path with data via a synced temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(name, path); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// best effort: some filesystems refuse fsync on directories
	_ = d.Sync()
	return nil
}
