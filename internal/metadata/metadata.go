// Package metadata resolves cameras to rooms and rooms to the conduct rules
// that apply in them.
//
// Three stores implement Store: StaticStore (an in-memory catalog, usually
// loaded from YAML), SQLStore (the local SQLite database) and PostgresStore.
// Every store is a direct single-shot lookup; nothing is retried or cached.
package metadata

import (
	"context"
	"errors"
	"slices"
)

// ErrNotFound is returned when a camera does not resolve to a room and the
// store's MissingPolicy is Fail.
var ErrNotFound = errors.New("camera not found")

// Camera is a camera and the room it watches.
type Camera struct {
	ID   string `json:"id" yaml:"id"`
	Room string `json:"room" yaml:"room"`
}

// Rule is a code-of-conduct rule. A shared rule applies in every room; a
// room-scoped rule applies only in the rooms it lists. A rule with an OwnerID
// is only visible to that user.
type Rule struct {
	ID      string   `json:"id" yaml:"id"`
	Text    string   `json:"text" yaml:"text"`
	Shared  bool     `json:"shared" yaml:"shared"`
	Rooms   []string `json:"rooms,omitempty" yaml:"rooms,omitempty"`
	OwnerID string   `json:"owner_id,omitempty" yaml:"owner,omitempty"`
}

// AppliesTo reports whether the rule is in force in room.
func (r Rule) AppliesTo(room string) bool {
	return r.Shared || slices.Contains(r.Rooms, room)
}

// RuleSet is the result of an applicable-rules lookup.
type RuleSet struct {
	Room  string `json:"room"`
	Rules []Rule `json:"rules"`
}

// Store is the metadata lookup used by the annotation and analysis stages.
type Store interface {
	// RoomName returns the room watched by cameraID.
	RoomName(ctx context.Context, cameraID string) (string, error)
	// ApplicableRules returns the room for cameraID together with the rules
	// visible to userID that apply in that room, in store order.
	ApplicableRules(ctx context.Context, cameraID, userID string) (*RuleSet, error)
}

// Importer is a Store that can be seeded from a Catalog.
type Importer interface {
	Store
	ImportCatalog(ctx context.Context, cat Catalog) error
}

// FilterApplicable returns the rules that apply in room, preserving order.
func FilterApplicable(room string, rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.AppliesTo(room) {
			out = append(out, r)
		}
	}
	return out
}

