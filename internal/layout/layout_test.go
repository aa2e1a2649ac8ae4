package layout

import "testing"

func TestOrderedSortsByZAndDefaultsFit(t *testing.T) {
	l := Layout{Regions: []Region{
		{ID: "b", Z: 2, PlaylistID: "P1"},
		{ID: "a", Z: 2},
		{ID: "c", Z: 0, Fit: "contain", PlaylistID: "P2"},
	}}
	got := l.Ordered()
	want := []string{"c", "a", "b"}
	for i, region := range got {
		if region.ID != want[i] {
			t.Fatalf("position %d: got %s want %s", i, region.ID, want[i])
		}
	}
	if got[1].Fit != DefaultFit {
		t.Fatalf("expected default fit, got %q", got[1].Fit)
	}
	if got[0].Fit != "contain" {
		t.Fatalf("expected explicit fit kept, got %q", got[0].Fit)
	}
	if l.Regions[1].Fit != "" {
		t.Fatal("Ordered must not mutate the layout")
	}
}

func TestAssignedPlaylistsDistinct(t *testing.T) {
	l := Layout{Regions: []Region{
		{ID: "r1", PlaylistID: "P1"},
		{ID: "r2"},
		{ID: "r3", PlaylistID: "P1"},
		{ID: "r4", PlaylistID: "P2"},
	}}
	got := l.AssignedPlaylists()
	if len(got) != 2 || got[0] != "P1" || got[1] != "P2" {
		t.Fatalf("unexpected playlists: %v", got)
	}
}
