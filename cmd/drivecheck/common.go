package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/drivecheck/pkg/attrdb"
	"github.com/mscrnt/drivecheck/pkg/config"
	"github.com/mscrnt/drivecheck/pkg/db"
	"github.com/mscrnt/drivecheck/pkg/device"
	"github.com/mscrnt/drivecheck/pkg/schedule"
	"github.com/mscrnt/drivecheck/pkg/transport"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	cfg    = config.Default()
	logger = logrus.New()
)

// loadConfig resolves the settings and applies the command line overrides.
func loadConfig(path, dbPath, logLevel string) error {
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.DB.Path = dbPath
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if err := loaded.Log.Apply(logger); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// openDB opens the history database, creating its directory.
func openDB() (*db.DB, error) {
	if dir := filepath.Dir(cfg.DB.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// attributeNames loads the configured overlay, or the built-in table.
func attributeNames() (*attrdb.DB, error) {
	if cfg.AttrDB.Path == "" {
		return attrdb.Default(), nil
	}
	names, err := attrdb.Open(cfg.AttrDB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load attribute names: %w", err)
	}
	return names, nil
}

// describeError turns device and transport failures into a line a user can
// act on.
func describeError(path string, err error) error {
	switch {
	case errors.Is(err, device.ErrUnsupportedOperation):
		return fmt.Errorf("%s: not supported by this device", path)
	case errors.Is(err, device.ErrDeviceNotFound):
		return fmt.Errorf("%s: no such device", path)
	case errors.Is(err, device.ErrUnsupportedDeviceType):
		return fmt.Errorf("%s: neither SCSI nor NVMe pass-through is available", path)
	case transport.IsKind(err, transport.PermissionDenied):
		return fmt.Errorf("%s: permission denied (pass-through usually needs root)", path)
	case transport.IsKind(err, transport.DeviceBusy):
		return fmt.Errorf("%s: device busy, try again", path)
	}
	return err
}

// parseParams converts key=value flags to typed values.
func parseParams(values map[string]string) db.JSONData {
	params := make(db.JSONData, len(values))
	for k, v := range values {
		if n, err := json.Number(v).Int64(); err == nil {
			params[k] = int(n)
		} else if f, err := json.Number(v).Float64(); err == nil {
			params[k] = f
		} else if v == "true" || v == "false" {
			params[k] = v == "true"
		} else {
			params[k] = v
		}
	}
	return params
}

// findSchedule accepts an ID or a name.
func findSchedule(store *schedule.Store, identifier string) (*schedule.Schedule, error) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		s, err := store.Get(id)
		if err != nil {
			return nil, fmt.Errorf("schedule with ID %d not found", id)
		}
		return s, nil
	}
	s, err := store.GetByName(identifier)
	if err != nil {
		return nil, fmt.Errorf("schedule '%s' not found", identifier)
	}
	return s, nil
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run ID: %s", s)
	}
	return id, nil
}

func formatStatus(run *db.Run) string {
	switch run.GetStatus() {
	case db.RunStatusPending, db.RunStatusRunning:
		return warnStyle.Render("RUNNING")
	case db.RunStatusComplete:
		return okStyle.Render("PASSED")
	default:
		return critStyle.Render("FAILED")
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// parseDuration accepts time.ParseDuration input plus whole days ("7d").
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
