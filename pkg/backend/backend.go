// Package backend provides the generic plumbing shared by data-collection
// backends: the provenance envelope attached to every fetched record and
// the metadata stage that builds it.
package backend

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Item is the provenance envelope around one raw record. Every item a
// backend yields carries the same set of metadata fields so downstream
// consumers can route and order items without inspecting Data.
type Item struct {
	// BackendName identifies the backend that produced the item.
	BackendName string `json:"backend_name"`

	// BackendVersion is the backend's version string.
	BackendVersion string `json:"backend_version"`

	// Timestamp is the fetch time, in Unix seconds.
	Timestamp float64 `json:"timestamp"`

	// Origin is the URL the item was fetched from.
	Origin string `json:"origin"`

	// UUID is the item's deterministic identifier, derived from the
	// origin and the item id so repeated fetches of the same record
	// produce the same value.
	UUID string `json:"uuid"`

	// UpdatedOn is the item's last update time, in Unix seconds.
	UpdatedOn float64 `json:"updated_on"`

	// Category is the item's logical type.
	Category string `json:"category"`

	// Tag is the caller-supplied label, defaulting to the origin.
	Tag string `json:"tag"`

	// Data is the raw record as returned by the service.
	Data map[string]any `json:"data"`
}

// Source describes what the metadata stage needs from a concrete
// backend: its identity plus the pure extraction functions over a raw
// record.
type Source interface {
	// Origin returns the URL the backend fetches from.
	Origin() string

	// Version returns the backend version string.
	Version() string

	// ItemID extracts the unique identifier from a raw record.
	ItemID(data map[string]any) (string, error)

	// ItemUpdatedOn extracts the last update time from a raw record.
	ItemUpdatedOn(data map[string]any) (time.Time, error)

	// ItemCategory returns the logical type of a raw record.
	ItemCategory(data map[string]any) string
}

// Wrap stamps one raw record with provenance metadata. Extraction
// errors (missing id, unparsable update time) propagate unchanged.
func Wrap(src Source, tag string, fetchedAt time.Time, data map[string]any) (Item, error) {
	id, err := src.ItemID(data)
	if err != nil {
		return Item{}, err
	}

	updatedOn, err := src.ItemUpdatedOn(data)
	if err != nil {
		return Item{}, err
	}

	origin := src.Origin()
	if tag == "" {
		tag = origin
	}

	return Item{
		BackendName:    backendName(src),
		BackendVersion: src.Version(),
		Timestamp:      unixFloat(fetchedAt),
		Origin:         origin,
		UUID:           UUID(origin, id),
		UpdatedOn:      unixFloat(updatedOn),
		Category:       src.ItemCategory(data),
		Tag:            tag,
		Data:           data,
	}, nil
}

// UUID builds the deterministic item identifier: the SHA1 hex digest of
// the arguments joined by ':'. Identical inputs always map to the same
// uuid, which is what lets downstream storage recognize re-fetched
// records.
func UUID(args ...string) string {
	sum := sha1.Sum([]byte(strings.Join(args, ":")))
	return hex.EncodeToString(sum[:])
}

// unixFloat renders a time as Unix seconds with a fractional part.
// Seconds and nanoseconds are converted separately: a single UnixNano
// division would round whole seconds off by a few hundred nanoseconds.
func unixFloat(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// Namer is implemented by backends that report their own name.
type Namer interface {
	Name() string
}

func backendName(src Source) string {
	if n, ok := src.(Namer); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", src)
}
