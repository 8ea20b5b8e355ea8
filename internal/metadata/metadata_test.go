package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterApplicable_RoomScoped(t *testing.T) {
	t.Parallel()

	lobbyOnly := Rule{ID: "1", Text: "No running.", Rooms: []string{"lobby"}}

	require.Equal(t, []Rule{lobbyOnly}, FilterApplicable("lobby", []Rule{lobbyOnly}))
	require.Empty(t, FilterApplicable("kitchen", []Rule{lobbyOnly}))
	require.Empty(t, FilterApplicable("Lobby", []Rule{lobbyOnly}))
}

func TestFilterApplicable_SharedAlwaysIncluded(t *testing.T) {
	t.Parallel()

	shared := Rule{ID: "2", Text: "Be polite.", Shared: true}
	for _, room := range []string{"lobby", "backyard", ""} {
		require.Equal(t, []Rule{shared}, FilterApplicable(room, []Rule{shared}), "room %q", room)
	}
}

func TestFilterApplicable_PreservesOrder(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{ID: "9", Shared: true},
		{ID: "1", Rooms: []string{"hall"}},
		{ID: "5", Rooms: []string{"yard"}},
		{ID: "3", Rooms: []string{"yard", "hall"}},
	}

	got := FilterApplicable("hall", rules)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	require.Equal(t, []string{"9", "1", "3"}, ids)
}

func TestParseMissingPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseMissingPolicy("", DefaultTo("x"))
	require.NoError(t, err)
	require.Equal(t, "default:x", p.String())

	p, err = ParseMissingPolicy("FAIL", DefaultTo("x"))
	require.NoError(t, err)
	require.False(t, p.Defaults())

	p, err = ParseMissingPolicy("default: front desk", Fail())
	require.NoError(t, err)
	require.True(t, p.Defaults())
	require.Equal(t, "default:front desk", p.String())

	_, err = ParseMissingPolicy("default:", Fail())
	require.Error(t, err)

	_, err = ParseMissingPolicy("retry", Fail())
	require.Error(t, err)
}

func TestStaticStore_RoomName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := NewStaticStore(DefaultCatalog(), DefaultTo(DefaultStubRoom))
	room, err := store.RoomName(ctx, "camera2")
	require.NoError(t, err)
	require.Equal(t, "main lobby", room)

	room, err = store.RoomName(ctx, "camera99")
	require.NoError(t, err)
	require.Equal(t, DefaultStubRoom, room)

	strict := NewStaticStore(DefaultCatalog(), Fail())
	_, err = strict.RoomName(ctx, "camera99")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStaticStore_ApplicableRules_AllCameraRules(t *testing.T) {
	t.Parallel()

	cat := Catalog{Cameras: map[string]CatalogCamera{
		"cam": {Room: "lobby", Rules: []Rule{
			{ID: "1", Text: "a", Rooms: []string{"elsewhere"}},
			{ID: "2", Text: "b", OwnerID: "someone-else"},
		}},
	}}
	store := NewStaticStore(cat, Fail())

	set, err := store.ApplicableRules(context.Background(), "cam", "user")
	require.NoError(t, err)
	require.Equal(t, "lobby", set.Room)
	require.Len(t, set.Rules, 2)
}

func TestStaticStore_ApplicableRules_Unknown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	set, err := NewStaticStore(DefaultCatalog(), DefaultTo("shop front")).ApplicableRules(ctx, "nope", "u")
	require.NoError(t, err)
	require.Equal(t, "shop front", set.Room)
	require.Empty(t, set.Rules)

	_, err = NewStaticStore(DefaultCatalog(), Fail()).ApplicableRules(ctx, "nope", "u")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cameras:
  cam-a:
    room: lobby
    rules:
      - id: "1"
        text: No running.
        shared: true
      - id: "2"
        text: Staff only.
        rooms: [lobby, office]
        owner: manager
`), 0o600))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Equal(t, "lobby", cat.Cameras["cam-a"].Room)
	require.Equal(t, []Rule{
		{ID: "1", Text: "No running.", Shared: true},
		{ID: "2", Text: "Staff only.", Rooms: []string{"lobby", "office"}, OwnerID: "manager"},
	}, cat.Cameras["cam-a"].Rules)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("cameras: {}\n"), 0o600))
	_, err := LoadCatalog(empty)
	require.Error(t, err)

	noRoom := filepath.Join(dir, "noroom.yaml")
	require.NoError(t, os.WriteFile(noRoom, []byte("cameras:\n  c1:\n    rules: []\n"), 0o600))
	_, err = LoadCatalog(noRoom)
	require.Error(t, err)

	_, err = LoadCatalog(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestCatalog_Flatten(t *testing.T) {
	t.Parallel()

	cat := Catalog{Cameras: map[string]CatalogCamera{
		"b": {Room: "yard", Rules: []Rule{{ID: "1", Text: "Quiet."}}},
		"a": {Room: "hall", Rules: []Rule{
			{ID: "1", Text: "Quiet."},
			{ID: "2", Text: "Tidy.", Shared: true},
			{ID: "3", Text: "Badges.", Rooms: []string{"office"}},
		}},
	}}

	cameras, rules, err := cat.Flatten()
	require.NoError(t, err)
	require.Equal(t, []Camera{{ID: "a", Room: "hall"}, {ID: "b", Room: "yard"}}, cameras)
	require.Len(t, rules, 3)
	require.Equal(t, "1", rules[0].ID)
	require.Equal(t, []string{"hall", "yard"}, rules[0].Rooms)
	require.True(t, rules[1].Shared)
	require.Empty(t, rules[1].Rooms)
	require.Equal(t, []string{"office"}, rules[2].Rooms)

	// the catalog itself is left untouched
	require.Nil(t, cat.Cameras["b"].Rules[0].Rooms)
}

func TestCatalog_Flatten_Conflict(t *testing.T) {
	t.Parallel()

	_, _, err := DefaultCatalog().Flatten()
	require.ErrorContains(t, err, `rule "3"`)
}
