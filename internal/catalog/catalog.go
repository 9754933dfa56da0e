package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
)

// Meta describes one event log and its retention policy. Zero limits mean
// the log is never trimmed by policy.
type Meta struct {
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"createdAtMs"`
	RetentionMs int64  `json:"retentionMs,omitempty"`
	MaxBytes    int64  `json:"maxBytes,omitempty"`
}

// Retention returns the age limit as a duration.
func (m Meta) Retention() time.Duration { return time.Duration(m.RetentionMs) * time.Millisecond }

// HasPolicy reports whether either retention limit is set.
func (m Meta) HasPolicy() bool { return m.RetentionMs > 0 || m.MaxBytes > 0 }

var (
	catalogPrefix = []byte("catalog/")
	catalogEnd    = []byte("catalog0") // '0' follows '/'
)

// metaKey builds the catalog key of a log.
func metaKey(name string) []byte {
	k := make([]byte, 0, len(catalogPrefix)+len(name))
	k = append(k, catalogPrefix...)
	k = append(k, name...)
	return k
}

// Ensure registers name if absent and returns its meta.
// Idempotent: returns existing if already present.
func Ensure(db *pebblestore.DB, name string) (Meta, error) {
	m, ok, err := Get(db, name)
	if err != nil || ok {
		return m, err
	}
	m = Meta{Name: name, CreatedAtMs: time.Now().UnixMilli()}
	return m, Put(db, m)
}

// Get loads the meta of name. ok is false when the log is not registered.
func Get(db *pebblestore.DB, name string) (m Meta, ok bool, err error) {
	b, err := db.Get(metaKey(name))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, false, fmt.Errorf("catalog: %s: %w", name, err)
	}
	return m, true, nil
}

// Put stores m, replacing any previous meta for m.Name.
func Put(db *pebblestore.DB, m Meta) error {
	if m.Name == "" {
		return errors.New("catalog: empty name")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return db.Set(metaKey(m.Name), b)
}

// SetRetention updates the retention policy of a registered log.
func SetRetention(db *pebblestore.DB, name string, retention time.Duration, maxBytes int64) (Meta, error) {
	m, err := Ensure(db, name)
	if err != nil {
		return Meta{}, err
	}
	m.RetentionMs = retention.Milliseconds()
	m.MaxBytes = maxBytes
	return m, Put(db, m)
}

// List returns every registered log sorted by name.
func List(db *pebblestore.DB) ([]Meta, error) {
	it, err := db.NewIter(&pebble.IterOptions{LowerBound: catalogPrefix, UpperBound: catalogEnd})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []Meta
	for it.First(); it.Valid(); it.Next() {
		var m Meta
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", it.Key()[len(catalogPrefix):], err)
		}
		out = append(out, m)
	}
	return out, it.Error()
}
