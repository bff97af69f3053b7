// Package configutil loads the collector's json5 configuration. A
// deployment keeps broker credentials and machine-local paths in a
// `<name>.local.<ext>` file that overlays the checked-in defaults, so
// secrets never end up next to the committed config.
package configutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

func localVariant(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// readLayer decodes one config file into out. A missing or empty file
// is not an error, it just reports absent.
func readLayer[T any](path string, out *T) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	return true, json5.Unmarshal(raw, out)
}

// ReadConfig loads `name` and merges its local variant on top, local
// values winning. When neither file exists the error is os.ErrNotExist
// so callers can distinguish "unconfigured" from "broken".
func ReadConfig[T any](name string) (T, error) {
	var out T

	found, err := readLayer(name, &out)
	if err != nil {
		return out, err
	}

	localPath := localVariant(name)
	var overlay T
	foundLocal, err := readLayer(localPath, &overlay)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, overlay, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("applied local config overrides", "path", localPath)
	}

	if !found && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively walks from the working directory toward the
// filesystem root until ReadConfig succeeds. Lets the daemon and the
// cli share one telemetry.json5 no matter where inside a deployment
// they are started from.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	current, err := os.Getwd()
	if err != nil {
		return zero, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if !os.IsNotExist(err) {
			return config, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return zero, os.ErrNotExist
		}
		current = parent
	}
}
