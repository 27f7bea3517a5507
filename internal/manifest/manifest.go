package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/lexgo/blobstore"
)

const (
	// CurrentFileName names the pointer blob holding the latest manifest's name.
	CurrentFileName = "CURRENT"
	// FilePrefix starts every manifest blob name.
	FilePrefix = "segments_"
	// CurrentVersion is the manifest format version.
	CurrentVersion = 1
)

// Manifest is one commit point: the segments that make up the index and the
// counter new segment names are drawn from.
type Manifest struct {
	Version    int               `json:"version"`
	Generation uint64            `json:"generation"`
	CreatedAt  time.Time         `json:"created_at"`
	Counter    int64             `json:"counter"`
	Segments   []SegmentInfo     `json:"segments"`
	UserData   map[string]string `json:"user_data,omitempty"`
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{Version: CurrentVersion, CreatedAt: time.Now()}
}

// NextSegmentName allocates the next segment name, "_0", "_1", ...
func (m *Manifest) NextSegmentName() string {
	name := "_" + strconv.FormatInt(m.Counter, 36)
	m.Counter++
	return name
}

// TotalDocs returns the live docs over all segments.
func (m *Manifest) TotalDocs() int {
	var n int
	for _, s := range m.Segments {
		n += s.MaxDoc - s.DelCount
	}
	return n
}

// Files returns every blob the manifest references, sorted.
func (m *Manifest) Files() []string {
	var files []string
	for _, s := range m.Segments {
		files = append(files, s.Files()...)
	}
	slices.Sort(files)
	return files
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Segments = slices.Clone(m.Segments)
	if m.UserData != nil {
		c.UserData = make(map[string]string, len(m.UserData))
		for k, v := range m.UserData {
			c.UserData[k] = v
		}
	}
	return &c
}

// SegmentInfo describes one committed segment.
type SegmentInfo struct {
	Name        string `json:"name"`
	MaxDoc      int    `json:"max_doc"`
	DelCount    int    `json:"del_count"`
	DelGen      int64  `json:"del_gen"`
	DVGen       int64  `json:"dv_gen"`
	Compression string `json:"compression"`
	Size        int64  `json:"size"`
}

// SegmentFile names the blob with postings and doc values. A doc-values
// update rewrites it under a new generation.
func (s SegmentInfo) SegmentFile() string {
	if s.DVGen == 0 {
		return s.Name + ".seg"
	}
	return s.Name + "_" + strconv.FormatInt(s.DVGen, 36) + ".seg"
}

// LiveDocsFile names the deletions blob, or "" when nothing is deleted.
func (s SegmentInfo) LiveDocsFile() string {
	if s.DelGen == 0 {
		return ""
	}
	return s.Name + "_" + strconv.FormatInt(s.DelGen, 36) + ".del"
}

// Files returns the blobs backing the segment.
func (s SegmentInfo) Files() []string {
	files := []string{s.SegmentFile()}
	if f := s.LiveDocsFile(); f != "" {
		files = append(files, f)
	}
	return files
}

// FileName returns the manifest blob name for generation gen.
func FileName(gen uint64) string {
	return FilePrefix + strconv.FormatUint(gen, 36)
}

// ParseGeneration extracts the generation from a manifest blob name.
func ParseGeneration(name string) (uint64, bool) {
	name = path.Base(name)
	if !strings.HasPrefix(name, FilePrefix) {
		return 0, false
	}
	s := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), ".json")
	gen, err := strconv.ParseUint(s, 36, 64)
	return gen, err == nil
}

// Store reads and commits manifests in a blob store. Commit writes
// segments_N first and then replaces CURRENT, so a reader never sees a
// pointer to a missing manifest.
type Store struct {
	store blobstore.BlobStore
	json  bool
	mu    sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithJSON writes manifests as indented JSON instead of the binary format.
// Loading accepts either.
func WithJSON() StoreOption {
	return func(s *Store) { s.json = true }
}

// NewStore returns a manifest store.
func NewStore(store blobstore.BlobStore, opts ...StoreOption) *Store {
	s := &Store{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load loads the manifest CURRENT points to.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := blobstore.ReadAll(ctx, s.store, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("manifest: read %s: %w", CurrentFileName, err)
	}
	return s.load(ctx, strings.TrimSpace(string(current)))
}

// LoadGeneration loads a specific commit.
func (s *Store) LoadGeneration(ctx context.Context, gen uint64) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := FileName(gen)
	if s.json {
		name += ".json"
	}
	return s.load(ctx, name)
}

func (s *Store) load(ctx context.Context, name string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, s.store, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", name, err)
	}
	if path.Ext(name) == ".json" {
		m := &Manifest{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
		}
		if m.Version > CurrentVersion {
			return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, m.Version)
		}
		return m, nil
	}
	return ReadBinary(bytes.NewReader(data))
}

// Generations lists the committed generations in ascending order.
func (s *Store) Generations(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.store.List(ctx, FilePrefix)
	if err != nil {
		return nil, fmt.Errorf("manifest: list: %w", err)
	}
	var gens []uint64
	for _, name := range names {
		if gen, ok := ParseGeneration(name); ok {
			gens = append(gens, gen)
		}
	}
	slices.Sort(gens)
	return slices.Compact(gens), nil
}

// Commit stores m as the next generation and points CURRENT at it. m's
// Generation and CreatedAt are updated in place.
func (s *Store) Commit(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.Generation++
	m.CreatedAt = time.Now()

	name := FileName(m.Generation)
	var buf bytes.Buffer
	if s.json {
		name += ".json"
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m); err != nil {
			return err
		}
	} else if err := m.WriteBinary(&buf); err != nil {
		return err
	}

	if err := s.store.Put(ctx, name, buf.Bytes()); err != nil {
		m.Generation--
		return fmt.Errorf("manifest: write %s: %w", name, err)
	}
	if err := s.store.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		m.Generation--
		return fmt.Errorf("manifest: update %s: %w", CurrentFileName, err)
	}
	return nil
}

// DeleteGeneration removes the manifest blob of gen.
func (s *Store) DeleteGeneration(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, FileName(gen)); err != nil {
		return err
	}
	return s.store.Delete(ctx, FileName(gen)+".json")
}
