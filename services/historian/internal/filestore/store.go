// Package filestore persists history and average documents as JSON files in
// a directory tree and answers day/zone queries by scanning that tree.
//
// Layout below the root:
//
//	{PM10|PM25}/{zone}/{date}/data.json          history, one file per zone and day
//	dailyAverage/{PM10|PM25}/{sensorId}/data.json  per-sensor daily averages
//
// Writes are plain create-or-truncate writes. A crash mid-write can leave a
// truncated file, and readers may observe a day whose ingestion is still
// writing its zone files.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/logging"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/utils"
)

var log = logging.Component("filestore")

const (
	dataFile     = "data.json"
	averagesRoot = "dailyAverage"
)

// Store is a JSON document store rooted at a directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created lazily on the
// first write.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the data directory.
func (s *Store) Root() string {
	return s.root
}

// HistoryPath is the relative path of one zone's history for a day.
func HistoryPath(phenomenon models.Phenomenon, zone, date string) string {
	return filepath.Join(phenomenon.Dir(), zone, date, dataFile)
}

// AveragePath is the relative path of a sensor's average document.
func AveragePath(phenomenon models.Phenomenon, sensorID int) string {
	return filepath.Join(averagesRoot, phenomenon.Dir(), strconv.Itoa(sensorID), dataFile)
}

// Write serializes doc as JSON to the relative path, creating parent
// directories as needed.
func (s *Store) Write(rel string, doc any) error {
	full := filepath.Join(s.root, rel)

	data, err := json.Marshal(doc)
	if err != nil {
		return &errs.PersistError{Path: rel, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &errs.PersistError{Path: rel, Err: err}
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return &errs.PersistError{Path: rel, Err: err}
	}

	log.Debug("document written", "path", rel, "bytes", len(data))
	return nil
}

// Read decodes the document at the relative path into v. A missing file
// yields errs.ErrNotFound.
func (s *Store) Read(rel string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", rel, errs.ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", rel, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &errs.ParseError{Source: rel, Err: err}
	}
	return nil
}

// Exists reports whether a regular file exists at the relative path.
func (s *Store) Exists(rel string) bool {
	info, err := os.Stat(filepath.Join(s.root, rel))
	return err == nil && info.Mode().IsRegular()
}

// ReadHistory loads one zone's history for a day.
func (s *Store) ReadHistory(phenomenon models.Phenomenon, zone, date string) ([]models.SensorRecord, error) {
	var records []models.SensorRecord
	if err := s.Read(HistoryPath(phenomenon, zone, date), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadAverages loads a sensor's average document.
func (s *Store) ReadAverages(phenomenon models.Phenomenon, sensorID int) (*models.SensorAverageDocument, error) {
	var doc models.SensorAverageDocument
	if err := s.Read(AveragePath(phenomenon, sensorID), &doc); err != nil {
		return nil, err
	}
	if doc.DailyAverages == nil {
		doc.DailyAverages = []models.DailyAverage{}
	}
	return &doc, nil
}

// IsDayAlreadyProcessed reports whether any zone holds a directory for date.
func (s *Store) IsDayAlreadyProcessed(date string) (bool, error) {
	days, err := s.scanDays()
	if err != nil {
		return false, err
	}
	_, ok := days[date]
	return ok, nil
}

// AvailableDays returns every stored day, sorted.
func (s *Store) AvailableDays() ([]string, error) {
	days, err := s.scanDays()
	if err != nil {
		return nil, err
	}
	return sortedKeys(days), nil
}

// LocationsForDay returns the zones that hold a directory named date, sorted.
func (s *Store) LocationsForDay(date string) ([]string, error) {
	if _, err := utils.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %q", errs.ErrInvalidDate, date)
	}
	zones := make(map[string]struct{})
	err := s.walkZones(func(zone, zoneDir string) error {
		info, err := os.Stat(filepath.Join(zoneDir, date))
		if err == nil && info.IsDir() {
			zones[zone] = struct{}{}
			return nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedKeys(zones), nil
}

func (s *Store) scanDays() (map[string]struct{}, error) {
	days := make(map[string]struct{})
	err := s.walkZones(func(_, zoneDir string) error {
		entries, err := os.ReadDir(zoneDir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				days[e.Name()] = struct{}{}
			}
		}
		return nil
	})
	return days, err
}

// walkZones visits every zone directory of every phenomenon. A missing root
// is treated as an empty store.
func (s *Store) walkZones(fn func(zone, zoneDir string) error) error {
	for _, p := range models.Phenomena {
		phenomenonDir := filepath.Join(s.root, p.Dir())
		zones, err := os.ReadDir(phenomenonDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("scan %s: %w", phenomenonDir, err)
		}
		for _, z := range zones {
			if !z.IsDir() {
				continue
			}
			if err := fn(z.Name(), filepath.Join(phenomenonDir, z.Name())); err != nil {
				return fmt.Errorf("scan %s: %w", z.Name(), err)
			}
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
