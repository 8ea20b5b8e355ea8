package metadata

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// CatalogCamera is one camera entry in a static catalog.
type CatalogCamera struct {
	Room  string `yaml:"room"`
	Rules []Rule `yaml:"rules,omitempty"`
}

// Catalog is the static camera/rule mapping, keyed by camera id.
type Catalog struct {
	Cameras map[string]CatalogCamera `yaml:"cameras"`
}

var errEmptyCatalog = errors.New("catalog has no cameras")

// DefaultCatalog returns the built-in demo catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Cameras: map[string]CatalogCamera{
			"camera1": {
				Room: "backyard",
				Rules: []Rule{
					{ID: "1", Text: "No unauthorized entry."},
					{ID: "2", Text: "Do not obstruct walkways."},
					{ID: "3", Text: "No throwing packages into the lawn."},
				},
			},
			"camera2": {
				Room: "main lobby",
				Rules: []Rule{
					{ID: "3", Text: "Maintain professional behavior."},
					{ID: "4", Text: "No loitering in the corridors."},
				},
			},
			"camera3": {
				Room: "parking lot",
			},
		},
	}
}

// LoadCatalog reads a YAML catalog from path and validates it.
func LoadCatalog(path string) (Catalog, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(contents, &cat); err != nil {
		return Catalog{}, fmt.Errorf("unmarshal catalog: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return Catalog{}, err
	}

	return cat, nil
}

// Validate checks that every camera has a room and every rule has an id and
// text.
func (c Catalog) Validate() error {
	if len(c.Cameras) == 0 {
		return errEmptyCatalog
	}

	for id, cam := range c.Cameras {
		if cam.Room == "" {
			return fmt.Errorf("camera %q: room is required", id)
		}
		for i, r := range cam.Rules {
			if r.ID == "" || r.Text == "" {
				return fmt.Errorf("camera %q: rule %d needs both id and text", id, i)
			}
		}
	}

	return nil
}

// Flatten turns the per-camera catalog into the camera and rule rows of a
// database store. Cameras come out sorted by id. A rule that is neither
// shared nor scoped is scoped to the room of the camera it is listed under.
// A rule id listed under several cameras must carry the same text
// everywhere; its room lists are merged.
func (c Catalog) Flatten() ([]Camera, []Rule, error) {
	ids := slices.Sorted(maps.Keys(c.Cameras))

	cameras := make([]Camera, 0, len(ids))
	merged := make(map[string]Rule)
	var order []string
	for _, id := range ids {
		cam := c.Cameras[id]
		cameras = append(cameras, Camera{ID: id, Room: cam.Room})

		for _, r := range cam.Rules {
			r.Rooms = slices.Clone(r.Rooms)
			if !r.Shared && len(r.Rooms) == 0 {
				r.Rooms = []string{cam.Room}
			}
			prev, seen := merged[r.ID]
			if !seen {
				order = append(order, r.ID)
				merged[r.ID] = r
				continue
			}
			if prev.Text != r.Text {
				return nil, nil, fmt.Errorf("import rule %q: conflicting texts under camera %q", r.ID, id)
			}
			prev.Shared = prev.Shared || r.Shared
			for _, room := range r.Rooms {
				if !slices.Contains(prev.Rooms, room) {
					prev.Rooms = append(prev.Rooms, room)
				}
			}
			merged[r.ID] = prev
		}
	}

	rules := make([]Rule, 0, len(order))
	for _, id := range order {
		rules = append(rules, merged[id])
	}
	return cameras, rules, nil
}

// StaticStore serves lookups from an in-memory Catalog. All rules configured
// for a camera are applicable to it; no visibility or room filter is applied.
type StaticStore struct {
	catalog Catalog
	policy  MissingPolicy
}

func NewStaticStore(catalog Catalog, policy MissingPolicy) *StaticStore {
	return &StaticStore{catalog: catalog, policy: policy}
}

func (s *StaticStore) RoomName(_ context.Context, cameraID string) (string, error) {
	cam, ok := s.catalog.Cameras[cameraID]
	if !ok {
		return s.policy.resolve(cameraID)
	}
	return cam.Room, nil
}

func (s *StaticStore) ApplicableRules(_ context.Context, cameraID, _ string) (*RuleSet, error) {
	cam, ok := s.catalog.Cameras[cameraID]
	if !ok {
		room, err := s.policy.resolve(cameraID)
		if err != nil {
			return nil, err
		}
		return &RuleSet{Room: room, Rules: []Rule{}}, nil
	}

	return &RuleSet{Room: cam.Room, Rules: append([]Rule{}, cam.Rules...)}, nil
}

