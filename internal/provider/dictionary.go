package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/addresolve/internal/address"
	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
)

// DictionaryName is the registered name of the YAML dictionary provider.
const DictionaryName = "dictionary"

// DictionaryEntry is one curated address in the dictionary file.
type DictionaryEntry struct {
	Key        string            `yaml:"key"`
	Value      string            `yaml:"value"`
	Aliases    []string          `yaml:"aliases,omitempty"`
	Country    string            `yaml:"country,omitempty"`
	Region     string            `yaml:"region,omitempty"`
	Area       string            `yaml:"area,omitempty"`
	City       string            `yaml:"city,omitempty"`
	Settlement string            `yaml:"settlement,omitempty"`
	Street     string            `yaml:"street,omitempty"`
	House      string            `yaml:"house,omitempty"`
	Block      string            `yaml:"block,omitempty"`
	PostalCode string            `yaml:"postal_code,omitempty"`
	Latitude   float64           `yaml:"latitude,omitempty"`
	Longitude  float64           `yaml:"longitude,omitempty"`
	Overrides  map[string]string `yaml:"overrides,omitempty"`
}

// Address converts the entry to a canonical address without provider or
// unit fields.
func (e DictionaryEntry) Address() address.Address {
	return address.Address{
		Key:        e.Key,
		Value:      e.Value,
		Country:    e.Country,
		Region:     e.Region,
		Area:       e.Area,
		City:       e.City,
		Settlement: e.Settlement,
		Street:     e.Street,
		House:      e.House,
		Block:      e.Block,
		PostalCode: e.PostalCode,
		Latitude:   e.Latitude,
		Longitude:  e.Longitude,
	}
}

type dictionaryFile struct {
	Entries []DictionaryEntry `yaml:"entries"`
}

type dictionaryDoc struct {
	Text string `json:"text"`
}

// dictionarySnapshot is immutable once built; Reload swaps it whole.
type dictionarySnapshot struct {
	entries []DictionaryEntry
	exact   map[string]int
	index   bleve.Index
}

// Dictionary matches items against a curated YAML file: first by exact
// normalized text of the value or an alias, then by a full-text query that
// requires every query term to appear.
type Dictionary struct {
	path     string
	minScore float64

	mu   sync.RWMutex
	snap *dictionarySnapshot
}

// LoadDictionary reads and indexes the file at path.
func LoadDictionary(path string, minScore float64) (*Dictionary, error) {
	d := &Dictionary{path: path, minScore: minScore}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the file. On failure the previous snapshot stays active.
func (d *Dictionary) Reload() error {
	snap, err := buildDictionarySnapshot(d.path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	old := d.snap
	d.snap = snap
	d.mu.Unlock()

	if old != nil {
		_ = old.index.Close()
	}
	slog.Info("dictionary_loaded",
		slog.String("path", d.path),
		slog.Int("entries", len(snap.entries)))
	return nil
}

// ReadEntries parses an address file ({entries: [...]}) without indexing
// it. The same layout feeds the dictionary and 'store import'.
func ReadEntries(path string) ([]DictionaryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.New(rerrors.ErrCodeFileNotFound, "address file not found", err).
				WithDetail("path", path)
		}
		return nil, rerrors.StorageError("read address file", err)
	}

	var file dictionaryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeFileCorrupt, "parse address file", err).
			WithDetail("path", path)
	}
	return file.Entries, nil
}

func buildDictionarySnapshot(path string) (*dictionarySnapshot, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return nil, err
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, rerrors.InternalError("create dictionary index", err)
	}

	snap := &dictionarySnapshot{
		entries: make([]DictionaryEntry, 0, len(entries)),
		exact:   make(map[string]int),
		index:   idx,
	}
	batch := idx.NewBatch()
	for i, e := range entries {
		if strings.TrimSpace(e.Value) == "" {
			slog.Warn("dictionary_entry_skipped",
				slog.Int("position", i),
				slog.String("reason", "empty value"))
			continue
		}
		if e.Key == "" {
			e.Key = address.DeriveKey(e.Value)
		}
		pos := len(snap.entries)
		snap.entries = append(snap.entries, e)

		texts := append([]string{e.Value}, e.Aliases...)
		for _, t := range texts {
			n := NormalizeQuery(t)
			if n == "" {
				continue
			}
			// first entry wins on collisions
			if _, dup := snap.exact[n]; !dup {
				snap.exact[n] = pos
			}
		}
		if err := batch.Index(strconv.Itoa(pos), dictionaryDoc{Text: strings.Join(texts, " ")}); err != nil {
			_ = idx.Close()
			return nil, rerrors.InternalError(fmt.Sprintf("index dictionary entry %q", e.Key), err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, rerrors.InternalError("index dictionary", err)
	}
	return snap, nil
}

// Len returns the number of loaded entries.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snap == nil {
		return 0
	}
	return len(d.snap.entries)
}

// Match returns the best entry for q, or nil.
func (d *Dictionary) Match(ctx context.Context, q string) (*DictionaryEntry, error) {
	norm := NormalizeQuery(q)
	if norm == "" {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	snap := d.snap
	if snap == nil {
		return nil, rerrors.New(rerrors.ErrCodeStoreUnavailable, "dictionary is closed", nil)
	}

	if pos, ok := snap.exact[norm]; ok {
		e := snap.entries[pos]
		return &e, nil
	}

	mq := bleve.NewMatchQuery(norm)
	mq.SetField("text")
	mq.SetOperator(query.MatchQueryOperatorAnd)
	req := bleve.NewSearchRequest(mq)
	req.Size = 1

	res, err := snap.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, rerrors.ProviderError(DictionaryName, "dictionary search failed", err)
	}
	if len(res.Hits) == 0 || res.Hits[0].Score < d.minScore {
		return nil, nil
	}
	pos, err := strconv.Atoi(res.Hits[0].ID)
	if err != nil || pos < 0 || pos >= len(snap.entries) {
		return nil, rerrors.InternalError("dictionary hit has unknown id "+res.Hits[0].ID, err)
	}
	e := snap.entries[pos]
	return &e, nil
}

// Watch reloads the dictionary whenever its file changes, until ctx ends.
// The parent directory is watched so editors that replace the file by
// rename are picked up.
func (d *Dictionary) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return rerrors.StorageError("create dictionary watcher", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(d.path)
	if err != nil {
		return rerrors.StorageError("resolve dictionary path", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return rerrors.StorageError("watch dictionary directory", err)
	}

	const debounce = 200 * time.Millisecond
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := d.Reload(); err != nil {
				slog.Warn("dictionary_reload_failed",
					slog.String("path", d.path),
					slog.String("error", err.Error()))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("dictionary_watch_error", slog.String("error", err.Error()))
		}
	}
}

// Close releases the index.
func (d *Dictionary) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snap == nil {
		return nil
	}
	err := d.snap.index.Close()
	d.snap = nil
	return err
}

// Name implements Provider.
func (d *Dictionary) Name() string { return DictionaryName }

// IsEnabled implements Provider.
func (d *Dictionary) IsEnabled(item string, _ Scope) bool {
	return NormalizeQuery(item) != ""
}

// Prepare implements Provider.
func (d *Dictionary) Prepare(context.Context, Scope) (Searcher, error) {
	return SearcherFunc(func(ctx context.Context, q string) (*Result, error) {
		e, err := d.Match(ctx, q)
		if err != nil || e == nil {
			return nil, err
		}
		return &Result{Provider: DictionaryName, Raw: e, Overrides: e.Overrides}, nil
	}), nil
}

// Normalize implements Provider.
func (d *Dictionary) Normalize(res *Result) []address.Address {
	if res == nil {
		return nil
	}
	e, ok := res.Raw.(*DictionaryEntry)
	if !ok || e == nil {
		return nil
	}
	a := e.Address()
	a.Provider = DictionaryName
	return address.Filter([]address.Address{a})
}
