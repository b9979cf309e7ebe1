package hops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/kango/idgen"
	"github.com/hazyhaar/kango/watch"
)

// ErrMalformedImport is returned by LoadFromJSON when the payload is not a
// JSON array of hops. The store is left unchanged.
var ErrMalformedImport = errors.New("hops: malformed import")

// Store is the Annotation Store. Every operation reads or rewrites the
// whole collection under StorageKey; there is no isolation between
// concurrent read-modify-write cycles, the last writer wins.
type Store struct {
	backend Backend
	logger  *slog.Logger
	newID   idgen.Generator

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithIDGenerator overrides the UUIDv7 generator used by GenerateID.
func WithIDGenerator(g idgen.Generator) Option { return func(s *Store) { s.newID = g } }

// NewStore returns a Store persisting into b.
func NewStore(b Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		logger:  slog.Default(),
		newID:   idgen.Default,
		subs:    make(map[*subscriber]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetHops returns the hops selected by filter: nothing for "", the whole
// collection in stored order for All, otherwise the hops whose URL equals
// filter exactly, sorted by Order. Read failures are logged and yield an
// empty result.
func (s *Store) GetHops(ctx context.Context, filter string) []Hop {
	if filter == "" {
		return []Hop{}
	}
	all, err := s.load(ctx)
	if err != nil {
		s.logger.Error("hops: get", "filter", filter, "error", err)
		return []Hop{}
	}
	if filter == All {
		return all
	}
	out := ForURL(all, filter)
	if out == nil {
		out = []Hop{}
	}
	return out
}

// Update runs one read-modify-write cycle: fn receives the current
// collection and returns the one to persist. A read failure aborts the
// cycle instead of overwriting the stored collection with a partial view.
//
// Cycles are not isolated across stores or processes sharing a backend:
// two interleaved cycles both persist and the last one wins.
func (s *Store) Update(ctx context.Context, fn func(all []Hop) ([]Hop, error)) error {
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(all)
	if err != nil {
		return err
	}
	return s.SetHops(ctx, next)
}

// AddHop appends h to the collection.
func (s *Store) AddHop(ctx context.Context, h Hop) error {
	return s.Update(ctx, func(all []Hop) ([]Hop, error) {
		return append(all, h), nil
	})
}

// RemoveHop deletes every hop with the given id. Removing an unknown id
// rewrites the collection unchanged.
func (s *Store) RemoveHop(ctx context.Context, id string) error {
	return s.Update(ctx, func(all []Hop) ([]Hop, error) {
		return slices.DeleteFunc(all, func(h Hop) bool { return h.ID == id }), nil
	})
}

// SetHops replaces the whole collection.
func (s *Store) SetHops(ctx context.Context, all []Hop) error {
	if all == nil {
		all = []Hop{}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("hops: encode: %w", err)
	}
	if err := s.backend.Save(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("hops: save: %w", err)
	}
	s.Notify()
	return nil
}

// LoadFromJSON merges a JSON array of hops into the collection: imported
// hops whose id is already stored (or empty, or repeated within the
// import) are dropped, the union is sorted by URL then Order.
func (s *Store) LoadFromJSON(ctx context.Context, data []byte) error {
	var in *[]Hop
	if err := json.Unmarshal(bytes.TrimSpace(data), &in); err != nil {
		s.logger.Error("hops: parse import", "error", err)
		return fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if in == nil {
		s.logger.Error("hops: parse import", "error", "not an array")
		return fmt.Errorf("%w: not an array", ErrMalformedImport)
	}

	return s.Update(ctx, func(all []Hop) ([]Hop, error) {
		seen := make(map[string]bool, len(all))
		for _, h := range all {
			seen[h.ID] = true
		}
		merged := make([]Hop, 0, len(*in)+len(all))
		for _, h := range *in {
			if h.ID == "" || seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			merged = append(merged, h)
		}
		merged = append(merged, all...)
		slices.SortStableFunc(merged, func(a, b Hop) int {
			if c := strings.Compare(a.URL, b.URL); c != 0 {
				return c
			}
			switch {
			case a.Order < b.Order:
				return -1
			case a.Order > b.Order:
				return 1
			}
			return 0
		})
		return merged, nil
	})
}

// SaveToJSON returns the whole collection as a JSON array ("[]" when
// empty).
func (s *Store) SaveToJSON(ctx context.Context) ([]byte, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(all)
	if err != nil {
		return nil, fmt.Errorf("hops: encode: %w", err)
	}
	return data, nil
}

// GenerateID returns a fresh hop id (UUIDv7 unless overridden).
func (s *Store) GenerateID() string {
	return s.newID()
}

func (s *Store) load(ctx context.Context) ([]Hop, error) {
	data, err := s.backend.Load(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("hops: load: %w", err)
	}
	all := []Hop{}
	if len(bytes.TrimSpace(data)) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("hops: decode stored collection: %w", err)
	}
	if all == nil {
		all = []Hop{}
	}
	return all, nil
}

type subscriber struct {
	fn     func()
	signal chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// Subscribe registers fn to run after every successful write and every
// change seen by Watch. fn runs on its own goroutine; notifications that
// arrive while it is busy collapse into one further call. The returned
// cancel stops the goroutine and waits for it; it must not be called from
// inside fn.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	sub := &subscriber{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(sub.exited)
		for {
			select {
			case <-sub.done:
				return
			case <-sub.signal:
				sub.fn()
			}
		}
	}()

	return func() {
		sub.once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(sub.done)
		})
		<-sub.exited
	}
}

// Notify signals every subscriber without blocking.
func (s *Store) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// Watch polls a Versioned backend every interval and notifies subscribers
// when another connection or process changed the data. It blocks until ctx
// is done. Backends without a version token have nothing to watch; Watch
// then just waits for ctx.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	v, ok := s.backend.(Versioned)
	if !ok {
		s.logger.Debug("hops: backend not versioned, watch idle")
		<-ctx.Done()
		return nil
	}
	w := watch.New(v.DataVersion, watch.Options{Interval: interval, Logger: s.logger})
	w.OnChange(ctx, func() error {
		s.logger.Debug("hops: external change")
		s.Notify()
		return nil
	})
	return nil
}
