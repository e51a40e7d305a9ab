package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/regrada-ai/tracemark/internal/util"
)

// ErrNotFound is returned by Read for unknown trace IDs.
var ErrNotFound = errors.New("trace not found")

// Meta describes one stored trace document.
type Meta struct {
	ID         string    `json:"id"`
	CapturedAt time.Time `json:"captured_at"`
	Source     string    `json:"source,omitempty"`
	Model      string    `json:"model,omitempty"`
	URL        string    `json:"url,omitempty"`
	File       string    `json:"file,omitempty"`
}

type Filter struct {
	IDs   []string
	Since *time.Time
	Until *time.Time
	Limit int
}

type Store interface {
	Save(doc *Document, meta Meta) (Meta, error)
	List(filter Filter) ([]Meta, error)
	Read(id string) (*Document, Meta, error)
}

// LocalStore keeps one JSON document file per trace under date directories,
// with an index.jsonl per day carrying the metadata. Document files hold the
// bare event array, so they can be passed straight to view or annotate.
type LocalStore struct {
	baseDir string
	mu      sync.Mutex
}

func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{baseDir: baseDir}
}

func (s *LocalStore) Save(doc *Document, meta Meta) (Meta, error) {
	if meta.ID == "" {
		meta.ID = util.NewID()
	}
	if meta.CapturedAt.IsZero() {
		meta.CapturedAt = time.Now().UTC()
	}

	day := meta.CapturedAt.Format("2006-01-02")
	dateDir := filepath.Join(s.baseDir, day)
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return Meta{}, err
	}
	meta.File = filepath.Join(day, meta.ID+".json")

	data, err := doc.Marshal()
	if err != nil {
		return Meta{}, err
	}
	line, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(filepath.Join(s.baseDir, meta.File), append(data, '\n'), 0644); err != nil {
		return Meta{}, err
	}

	f, err := os.OpenFile(filepath.Join(dateDir, "index.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return Meta{}, err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

func (s *LocalStore) List(filter Filter) ([]Meta, error) {
	if _, err := os.Stat(s.baseDir); err != nil {
		return nil, err
	}

	ids := make(map[string]bool)
	for _, id := range filter.IDs {
		ids[id] = true
	}

	var metas []Meta
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, "index.jsonl") {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var m Meta
			if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
				return fmt.Errorf("parse trace index: %w", err)
			}
			if len(ids) > 0 && !ids[m.ID] {
				continue
			}
			if filter.Since != nil && m.CapturedAt.Before(*filter.Since) {
				continue
			}
			if filter.Until != nil && m.CapturedAt.After(*filter.Until) {
				continue
			}
			metas = append(metas, m)
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CapturedAt.Before(metas[j].CapturedAt)
	})
	if filter.Limit > 0 && len(metas) > filter.Limit {
		metas = metas[len(metas)-filter.Limit:]
	}
	return metas, nil
}

func (s *LocalStore) Read(id string) (*Document, Meta, error) {
	metas, err := s.List(Filter{IDs: []string{id}})
	if err != nil {
		return nil, Meta{}, err
	}
	if len(metas) == 0 {
		return nil, Meta{}, fmt.Errorf("trace %s: %w", id, ErrNotFound)
	}

	meta := metas[0]
	doc, err := Load(filepath.Join(s.baseDir, meta.File))
	if err != nil {
		return nil, Meta{}, err
	}
	return doc, meta, nil
}
