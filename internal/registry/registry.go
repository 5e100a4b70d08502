package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/proxyforge/proxy-rotator/internal/endpoint"
)

var (
	// ErrDuplicateID is returned by Add when the endpoint ID already exists.
	ErrDuplicateID = errors.New("endpoint id already registered")

	// ErrNotFound is returned when an endpoint ID is not in the registry.
	ErrNotFound = errors.New("endpoint not found")

	// ErrPersistence wraps state-file read/write failures. Mutations still
	// take effect in memory when Save fails; callers may treat this as a
	// soft failure.
	ErrPersistence = errors.New("registry persistence failure")
)

// document is the persisted JSON shape: gateways keyed by region, plus
// bookkeeping metadata.
type document struct {
	Gateways map[string][]*endpoint.Endpoint `json:"gateways"`
	Metadata metadata                        `json:"metadata"`
}

type metadata struct {
	LastUpdated string `json:"last_updated"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status endpoint.Status
	Region string
}

// Registry is the durable, ordered collection of upstream endpoints.
// Mutations are serialized and persisted after every change; readers get
// copied slices and may observe a snapshot that is stale between writes.
type Registry struct {
	mutex       sync.RWMutex
	path        string
	backup      bool
	logger      *slog.Logger
	regionOrder []string
	gateways    map[string][]*endpoint.Endpoint
}

// New creates a registry persisting to path. When backup is true every save
// first copies the previous file contents to path+".bak".
func New(path string, backup bool, logger *slog.Logger) *Registry {
	return &Registry{
		path:     path,
		backup:   backup,
		logger:   logger,
		gateways: make(map[string][]*endpoint.Endpoint),
	}
}

// Load reads the persisted state. A missing or corrupt primary falls back to
// the backup copy, then to an empty registry with a logged warning. Load
// never fails the caller.
func (r *Registry) Load() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	doc, order, err := readDocument(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("state file unreadable, trying backup",
				slog.String("path", r.path),
				slog.Any("err", err))
			if backupDoc, backupOrder, backupErr := readDocument(r.path + ".bak"); backupErr == nil {
				r.install(backupDoc, backupOrder)
				r.logger.Info("registry restored from backup",
					slog.String("path", r.path+".bak"),
					slog.Int("endpoints", r.lenLocked()))
				return
			}
		}
		r.logger.Warn("starting with empty registry",
			slog.String("path", r.path))
		r.install(&document{Gateways: map[string][]*endpoint.Endpoint{}}, nil)
		return
	}

	r.install(doc, order)
	r.logger.Info("registry loaded",
		slog.String("path", r.path),
		slog.Int("endpoints", r.lenLocked()))
}

func readDocument(path string) (*document, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if doc.Gateways == nil {
		doc.Gateways = make(map[string][]*endpoint.Endpoint)
	}

	order, err := gatewayRegionOrder(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &doc, order, nil
}

// gatewayRegionOrder extracts the gateways object's keys in file order.
// Decoding into a map loses it, and rotation follows region order.
func gatewayRegionOrder(data []byte) ([]string, error) {
	var raw struct {
		Gateways json.RawMessage `json:"gateways"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.Gateways) == 0 || string(raw.Gateways) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Gateways))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("gateways must be a JSON object")
	}

	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("gateways key must be a string")
		}
		order = append(order, key)

		var skipped json.RawMessage
		if err := dec.Decode(&skipped); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// install replaces in-memory state from a decoded document, keeping the
// regions in file order.
func (r *Registry) install(doc *document, order []string) {
	r.regionOrder = order
	r.gateways = doc.Gateways
}

// Save serializes the current state with an atomic temp-file-then-rename
// write, keeping a .bak copy of the previous contents when configured.
// Failures are logged and reported, never fatal. The write lock keeps a
// single writer on the fixed .tmp path.
func (r *Registry) Save() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	gateways, err := r.encodeGatewaysLocked()
	if err != nil {
		r.logger.Error("failed to encode registry state", slog.Any("err", err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	doc := struct {
		Gateways json.RawMessage `json:"gateways"`
		Metadata metadata        `json:"metadata"`
	}{
		Gateways: gateways,
		Metadata: metadata{LastUpdated: time.Now().Format(time.RFC3339)},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		r.logger.Error("failed to encode registry state", slog.Any("err", err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.logger.Error("failed to create state directory", slog.Any("err", err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if r.backup {
		if prev, err := os.ReadFile(r.path); err == nil {
			if err := os.WriteFile(r.path+".bak", prev, 0o644); err != nil {
				r.logger.Warn("failed to write backup copy",
					slog.String("path", r.path+".bak"),
					slog.Any("err", err))
			}
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		r.logger.Error("failed to write state file",
			slog.String("path", tmp),
			slog.Any("err", err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := os.Rename(tmp, r.path); err != nil {
		r.logger.Error("failed to replace state file",
			slog.String("path", r.path),
			slog.Any("err", err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return nil
}

// encodeGatewaysLocked writes the gateways object with regions in registry
// order; json.Marshal on the map would sort the keys and reorder rotation
// on the next load.
func (r *Registry) encodeGatewaysLocked() (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, region := range r.regionOrder {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(region)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		eps, err := json.Marshal(r.gateways[region])
		if err != nil {
			return nil, err
		}
		buf.Write(eps)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Add validates and appends an endpoint, then persists. An empty ID is
// assigned a fresh UUID. Duplicate IDs are rejected with ErrDuplicateID.
// A persistence failure after a successful in-memory mutation is returned
// wrapped in ErrPersistence.
func (r *Registry) Add(ep *endpoint.Endpoint) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	ep.BaseURL = endpoint.NormalizeBaseURL(ep.BaseURL)
	if ep.Status == "" {
		ep.Status = endpoint.StatusActive
	}

	now := time.Now().UTC()
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	ep.UpdatedAt = now

	if err := ep.Validate(); err != nil {
		return err
	}

	if r.findLocked(ep.ID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateID, ep.ID)
	}

	if _, ok := r.gateways[ep.Region]; !ok {
		r.regionOrder = append(r.regionOrder, ep.Region)
	}
	r.gateways[ep.Region] = append(r.gateways[ep.Region], ep)

	r.logger.Info("endpoint added",
		slog.String("id", ep.ID),
		slog.String("region", ep.Region),
		slog.String("base_url", ep.BaseURL))

	return r.saveLocked()
}

// Remove deletes the endpoint with the given ID from every region and
// reports whether anything was removed.
func (r *Registry) Remove(id string) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed := false
	for region, eps := range r.gateways {
		kept := eps[:0]
		for _, ep := range eps {
			if ep.ID == id {
				removed = true
				continue
			}
			kept = append(kept, ep)
		}
		r.gateways[region] = kept
	}

	if !removed {
		return false, nil
	}

	r.logger.Info("endpoint removed", slog.String("id", id))
	return true, r.saveLocked()
}

// UpdateStatus changes the status of the endpoint with the given ID and
// persists the change.
func (r *Registry) UpdateStatus(id string, status endpoint.Status) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ep := r.findLocked(id)
	if ep == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ep.Status = status
	ep.UpdatedAt = time.Now().UTC()

	r.logger.Info("endpoint status updated",
		slog.String("id", id),
		slog.String("status", string(status)))

	return r.saveLocked()
}

// List returns an ordered read-only view of endpoints matching the filter.
// Order is region insertion order, then per-region insertion order.
func (r *Registry) List(filter Filter) []*endpoint.Endpoint {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*endpoint.Endpoint, 0, r.lenLocked())
	for _, region := range r.regionOrder {
		if filter.Region != "" && region != filter.Region {
			continue
		}
		for _, ep := range r.gateways[region] {
			if filter.Status != "" && ep.Status != filter.Status {
				continue
			}
			copied := *ep
			out = append(out, &copied)
		}
	}

	return out
}

// Active is shorthand for List restricted to active endpoints.
func (r *Registry) Active() []*endpoint.Endpoint {
	return r.List(Filter{Status: endpoint.StatusActive})
}

// Len returns the total endpoint count across all regions.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.lenLocked()
}

func (r *Registry) lenLocked() int {
	n := 0
	for _, eps := range r.gateways {
		n += len(eps)
	}
	return n
}

func (r *Registry) findLocked(id string) *endpoint.Endpoint {
	for _, eps := range r.gateways {
		for _, ep := range eps {
			if ep.ID == id {
				return ep
			}
		}
	}
	return nil
}

// Path returns the state file location, used by the watcher.
func (r *Registry) Path() string {
	return r.path
}
