package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/tanq16/chunkget/internal/utils"
)

const (
	CacheDirName   = utils.CacheDirName
	StatusFileName = "download_status.json"
)

// CacheKey is the hex xxhash64 of the source URL. Distinct URLs can in theory
// collide and would then share a cache directory.
func CacheKey(url string) string {
	return fmt.Sprintf("%x", xxhash.Sum64String(url))
}

// CacheDir returns <dest parent>/.cache/<hash(url)>.
func CacheDir(dest, url string) string {
	return filepath.Join(filepath.Dir(dest), CacheDirName, CacheKey(url))
}

// CacheFile returns the cache file path of chunk index for dest.
func CacheFile(cacheDir, dest string, index int) string {
	return filepath.Join(cacheDir, fmt.Sprintf("%s.%d", filepath.Base(dest), index))
}

// LoadStatus reads the status file in cacheDir. A missing file yields no
// states and no error; an unreadable or malformed file yields ErrStateDecode.
func LoadStatus(cacheDir string) ([]ChunkState, error) {
	data, err := os.ReadFile(filepath.Join(cacheDir, StatusFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateDecode, err)
	}
	var states []ChunkState
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateDecode, err)
	}
	return states, nil
}

// SaveStatus writes states to a temp file in cacheDir and renames it over the
// status file, so readers see either the old or the new contents.
func SaveStatus(cacheDir string, states []ChunkState) error {
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	tmp, err := os.CreateTemp(cacheDir, StatusFileName+".*.tmp")
	if err != nil {
		return ioError("create status temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ioError("write status temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ioError("sync status temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ioError("close status temp file", err)
	}
	if err := os.Rename(tmpName, filepath.Join(cacheDir, StatusFileName)); err != nil {
		os.Remove(tmpName)
		return ioError("replace status file", err)
	}
	return nil
}

// persister periodically serializes the tracker to the status file.
type persister struct {
	cacheDir string
	tracker  *Tracker
	interval time.Duration
	log      zerolog.Logger
}

// run writes a snapshot every interval until every chunk is finished or ctx is
// cancelled, then writes one final snapshot. Write failures are only logged.
func (p *persister) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.tracker.AllFinished() {
				return
			}
			p.flush()
		}
	}
}

func (p *persister) flush() {
	if err := SaveStatus(p.cacheDir, States(p.tracker.Snapshot())); err != nil {
		p.log.Warn().Err(err).Str("dir", p.cacheDir).Msg("Failed to persist download status")
	}
}

func newPersister(cacheDir string, tracker *Tracker, interval time.Duration) *persister {
	return &persister{
		cacheDir: cacheDir,
		tracker:  tracker,
		interval: interval,
		log:      utils.GetLogger("persister"),
	}
}
