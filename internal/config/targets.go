package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/andres10976/ticketwatch/internal/model"
)

// DefaultCheckInterval applies when check_interval is missing or not positive.
const DefaultCheckInterval = 300 * time.Second

// TargetFile is the operator-editable part of the configuration. It is read
// again on every cycle.
type TargetFile struct {
	TargetTickets []model.Target `json:"target_tickets"`
	CheckInterval int            `json:"check_interval"`
}

// Interval returns the sleep between cycles.
func (f TargetFile) Interval() time.Duration {
	if f.CheckInterval <= 0 {
		return DefaultCheckInterval
	}
	return time.Duration(f.CheckInterval) * time.Second
}

// ReadTargets parses name as JSON5 and merges <name>.local.<ext> over it when
// present. It returns os.ErrNotExist when neither file exists.
func ReadTargets(name string) (TargetFile, error) {
	var out TargetFile
	found := false

	base, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return TargetFile{}, err
	}
	if len(base) > 0 {
		if err := json5.Unmarshal(base, &out); err != nil {
			return TargetFile{}, fmt.Errorf("parse %s: %w", name, err)
		}
		found = true
	}

	localName := localPath(name)
	local, err := os.ReadFile(localName)
	if err != nil && !os.IsNotExist(err) {
		return TargetFile{}, err
	}
	if len(local) > 0 {
		var override TargetFile
		if err := json5.Unmarshal(local, &override); err != nil {
			return TargetFile{}, fmt.Errorf("parse %s: %w", localName, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return TargetFile{}, fmt.Errorf("merge %s: %w", localName, err)
		}
		slog.Debug("merged target file with local overrides", "local", localName)
		found = true
	}

	if !found {
		return TargetFile{}, os.ErrNotExist
	}
	return out, nil
}

// LoadTargets is ReadTargets for the monitor loop: any failure is logged and
// yields an empty file, so the cycle continues with defaults.
func LoadTargets(name string) TargetFile {
	f, err := ReadTargets(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("target file not found, using empty config", "path", name)
		} else {
			slog.Error("failed to load target file, using empty config", "path", name, "error", err)
		}
		return TargetFile{}
	}
	return f
}

func localPath(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}
