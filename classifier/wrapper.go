package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/KathiaMedinaRodriguez23/api-reciclaje/modelcache"
)

const wrapperName = "wrapped_model.json"

// ImageNet channel statistics, applied after rescaling to unit range.
var (
	defaultMean     = [3]float32{0.485, 0.456, 0.406}
	defaultVariance = [3]float32{0.229 * 0.229, 0.224 * 0.224, 0.225 * 0.225}
)

const defaultImageSize = 224

// Wrapper is the cached composition manifest: it pins the core
// artifact together with the fixed preprocessing stages so later
// process starts skip re-composition.
type Wrapper struct {
	CorePath  string     `json:"core_path"`
	ImageSize int        `json:"image_size"`
	Rescale   float32    `json:"rescale"`
	Mean      [3]float32 `json:"mean"`
	Variance  [3]float32 `json:"variance"`
	Classes   []string   `json:"classes"`
}

func newWrapper(corePath string, classes []string) Wrapper {
	return Wrapper{
		CorePath:  corePath,
		ImageSize: defaultImageSize,
		Rescale:   1.0 / 255.0,
		Mean:      defaultMean,
		Variance:  defaultVariance,
		Classes:   classes,
	}
}

type Config struct {
	ModelURI string
	CacheDir string
	Classes  []string
}

var (
	loadMu sync.Mutex
	loaded *Classifier
)

// LoadOrBuild returns the process-wide classifier, building and
// caching the wrapped model on first call. A second call returns the
// existing instance without touching disk.
func LoadOrBuild(ctx context.Context, cfg Config) (*Classifier, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if loaded != nil {
		return loaded, nil
	}

	wrapper, err := ensureWrapper(ctx, cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("loading wrapped model", "core", wrapper.CorePath, "classes", len(wrapper.Classes))
	runner, err := newORTRunner(wrapper.CorePath, wrapper.ImageSize, len(wrapper.Classes))
	if err != nil {
		return nil, &ModelLoadError{Path: wrapper.CorePath, Err: err}
	}

	loaded = New(wrapper, runner)
	return loaded, nil
}

// ensureWrapper returns a usable wrapper manifest, reusing the cached
// one when it is intact and building it from the core artifact
// otherwise.
func ensureWrapper(ctx context.Context, cfg Config) (Wrapper, error) {
	manifestPath := filepath.Join(cfg.CacheDir, wrapperName)

	if info, err := os.Stat(manifestPath); err == nil && info.Size() > 0 {
		wrapper, err := readWrapper(manifestPath)
		if err != nil {
			return Wrapper{}, &ModelLoadError{Path: manifestPath, Err: err}
		}
		if !slices.Equal(wrapper.Classes, cfg.Classes) {
			return Wrapper{}, &ModelLoadError{
				Path: manifestPath,
				Err:  fmt.Errorf("cached vocabulary %v does not match configured %v", wrapper.Classes, cfg.Classes),
			}
		}
		if coreInfo, err := os.Stat(wrapper.CorePath); err == nil && coreInfo.Size() > 0 {
			slog.Info("wrapped model cached", "path", manifestPath)
			return wrapper, nil
		}
		slog.Warn("cached wrapper references missing core, rebuilding", "core", wrapper.CorePath)
	}

	corePath, err := modelcache.EnsureAvailable(ctx, cfg.ModelURI, cfg.CacheDir)
	if err != nil {
		return Wrapper{}, err
	}

	wrapper := newWrapper(corePath, cfg.Classes)
	if err := writeWrapper(manifestPath, wrapper); err != nil {
		return Wrapper{}, &ModelLoadError{Path: manifestPath, Err: err}
	}
	slog.Info("wrapped model built", "path", manifestPath)
	return wrapper, nil
}

func readWrapper(path string) (Wrapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Wrapper{}, err
	}
	var wrapper Wrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return Wrapper{}, fmt.Errorf("parse wrapper manifest: %w", err)
	}
	return wrapper, nil
}

// writeWrapper writes to a temporary file and renames so a concurrent
// first-time build never observes a partial manifest.
func writeWrapper(path string, wrapper Wrapper) error {
	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".wrapper-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
