// Package storage persists uploaded producer files on local disk.
//
// Files live under <root>/Patient_<producerID>/<unixMillis>_<name>. The store
// does not index anything; listings read the directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wardwatch/internal/adapter/metrics"
	"github.com/pscheid92/wardwatch/internal/domain"
	"golang.org/x/sync/singleflight"
)

// URLPrefix is the path under which stored files are served.
const URLPrefix = "/uploads"

var (
	ErrInvalidProducerID = errors.New("invalid producer id")
	ErrInvalidFileName   = errors.New("invalid file name")
	ErrTooLarge          = errors.New("file exceeds size limit")
)

// SavedFile is the result of a successful Save.
type SavedFile struct {
	OriginalName string
	SavedName    string
	Size         int64
	// URLPath is where the file is served, e.g. /uploads/Patient_101/1709283600000_scan.png.
	URLPath string
}

type DiskStore struct {
	root    string
	clock   clockwork.Clock
	metrics *metrics.UploadMetrics
	group   singleflight.Group
}

// NewDiskStore creates root if needed. m may be nil.
func NewDiskStore(root string, clock clockwork.Clock, m *metrics.UploadMetrics) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", root, err)
	}
	return &DiskStore{root: root, clock: clock, metrics: m}, nil
}

func (s *DiskStore) Root() string { return s.root }

func producerDir(producerID string) string {
	return "Patient_" + producerID
}

// validProducerID rejects ids that would escape the upload root or could not
// be served back from the /uploads path.
func validProducerID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\#?%`+"\x00")
}

// servableName replaces characters the static handler cannot round-trip.
var servableName = strings.NewReplacer("%", "_", "#", "_", "?", "_")

func urlPath(producerID, savedName string) string {
	return URLPrefix + "/" + url.PathEscape(producerDir(producerID)) + "/" + url.PathEscape(savedName)
}

// cleanFileName strips any directory part a client may have sent.
func cleanFileName(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" || name == ".." || strings.ContainsRune(name, 0) {
		return "", false
	}
	return name, true
}

// Save streams r to a new file for producerID. Reading more than maxBytes
// aborts the save and removes the partial file.
func (s *DiskStore) Save(ctx context.Context, producerID, originalName string, r io.Reader, maxBytes int64) (SavedFile, error) {
	if !validProducerID(producerID) {
		s.reject("invalid_producer")
		return SavedFile{}, fmt.Errorf("%q: %w", producerID, ErrInvalidProducerID)
	}
	name, ok := cleanFileName(originalName)
	if !ok {
		s.reject("invalid_name")
		return SavedFile{}, fmt.Errorf("%q: %w", originalName, ErrInvalidFileName)
	}
	if err := ctx.Err(); err != nil {
		return SavedFile{}, err
	}

	dir := filepath.Join(s.root, producerDir(producerID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SavedFile{}, fmt.Errorf("create producer dir: %w", err)
	}

	savedName := strconv.FormatInt(s.clock.Now().UnixMilli(), 10) + "_" + servableName.Replace(name)
	full := filepath.Join(dir, savedName)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return SavedFile{}, fmt.Errorf("create %s: %w", savedName, err)
	}

	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(full)
		return SavedFile{}, fmt.Errorf("write %s: %w", savedName, err)
	case n > maxBytes:
		_ = os.Remove(full)
		s.reject("too_large")
		return SavedFile{}, fmt.Errorf("%s: %w (%d bytes)", name, ErrTooLarge, maxBytes)
	case closeErr != nil:
		_ = os.Remove(full)
		return SavedFile{}, fmt.Errorf("close %s: %w", savedName, closeErr)
	}

	if s.metrics != nil {
		s.metrics.FilesStored.Inc()
		s.metrics.BytesStored.Add(float64(n))
	}

	return SavedFile{
		OriginalName: name,
		SavedName:    savedName,
		Size:         n,
		URLPath:      urlPath(producerID, savedName),
	}, nil
}

// List returns the stored files of producerID, oldest first. An unknown
// producer yields an empty list. Concurrent calls for the same producer share
// one directory scan.
func (s *DiskStore) List(ctx context.Context, producerID string) ([]domain.StoredFile, error) {
	if !validProducerID(producerID) {
		return nil, fmt.Errorf("%q: %w", producerID, ErrInvalidProducerID)
	}

	ch := s.group.DoChan(producerID, func() (any, error) {
		return s.scan(producerID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		files := res.Val.([]domain.StoredFile)
		out := make([]domain.StoredFile, len(files))
		copy(out, files)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *DiskStore) scan(producerID string) ([]domain.StoredFile, error) {
	dir := filepath.Join(s.root, producerDir(producerID))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.StoredFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	files := make([]domain.StoredFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, domain.StoredFile{
			FileName:   entry.Name(),
			FileSize:   info.Size(),
			UploadedAt: info.ModTime().UTC(),
			FilePath:   urlPath(producerID, entry.Name()),
		})
	}

	// saved names start with the upload time in millis
	sort.SliceStable(files, func(i, j int) bool {
		return savedMillis(files[i].FileName) < savedMillis(files[j].FileName)
	})
	return files, nil
}

func savedMillis(name string) int64 {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

func (s *DiskStore) reject(reason string) {
	if s.metrics != nil {
		s.metrics.UploadsRejected.WithLabelValues(reason).Inc()
	}
}
