package app

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func keysOf(photos []Photo) []string {
	keys := make([]string, 0, len(photos))
	for _, p := range photos {
		keys = append(keys, p.Key)
	}
	return keys
}

func TestSortByUploadedDesc(t *testing.T) {
	photos := []Photo{
		{Key: "none"},
		{Key: "old", UploadedAt: at("2023-05-01T00:00:00Z")},
		{Key: "new", UploadedAt: at("2024-05-01T00:00:00Z")},
	}
	SortByUploadedDesc(photos)
	assert.Equal(t, []string{"new", "old", "none"}, keysOf(photos))
}

func TestFilterPhotos(t *testing.T) {
	photos := []Photo{
		{Key: "a", Description: "Sunset in Paris"},
		{Key: "b", Labels: []string{"Dog", "Grass"}},
		{Key: "c", Description: "receipt"},
	}
	tests := []struct {
		term string
		want []string
	}{
		{"", []string{"a", "b", "c"}},
		{"paris", []string{"a"}},
		{"GRASS", []string{"b"}},
		{"s", []string{"a", "b"}},
		{"zebra", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got := keysOf(FilterPhotos(photos, tt.term))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FilterPhotos(%q) mismatch (-want +got):\n%s", tt.term, diff)
			}
		})
	}
}

func TestGroupByDay(t *testing.T) {
	photos := []Photo{
		{Key: "p1", UploadedAt: at("2024-03-02T22:00:00Z")},
		{Key: "p2", UploadedAt: at("2024-03-02T08:00:00Z")},
		{Key: "p3", UploadedAt: at("2024-03-01T12:00:00Z")},
		{Key: "p4"},
	}

	got := GroupByDay(photos, time.UTC)
	want := []DayGroup{
		{Day: "2024-03-02", Photos: []Photo{photos[0], photos[1]}},
		{Day: "2024-03-01", Photos: []Photo{photos[2]}},
		{Day: "", Photos: []Photo{photos[3]}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GroupByDay mismatch (-want +got):\n%s", diff)
	}

	// The calendar day depends on the viewer's zone.
	tokyo := time.FixedZone("JST", 9*60*60)
	days := []string{}
	for _, g := range GroupByDay(photos, tokyo) {
		days = append(days, g.Day)
	}
	assert.Equal(t, []string{"2024-03-03", "2024-03-02", "2024-03-01", ""}, days)
}

func TestDayLabel(t *testing.T) {
	assert.Equal(t, "Saturday 2 March 2024", DayLabel("2024-03-02"))
	assert.Equal(t, "Monday 3 June 2024", DayLabel("2024-06-03"))
	assert.Equal(t, "unknown date", DayLabel(""))
	assert.Equal(t, "someday", DayLabel("someday"))
}

func TestFavorites(t *testing.T) {
	photos := []Photo{
		{Key: "a", IsFavorite: true, UploadedAt: at("2024-01-01T00:00:00Z")},
		{Key: "b"},
		{Key: "c", IsFavorite: true, UploadedAt: at("2024-02-01T00:00:00Z")},
	}
	assert.Equal(t, []string{"c", "a"}, keysOf(Favorites(photos)))
}

func TestNormalizePhotoKey(t *testing.T) {
	assert.Equal(t, "photo/abc123", NormalizePhotoKey("abc123"))
	assert.Equal(t, "photo/abc123", NormalizePhotoKey("photo/abc123"))
	assert.True(t, sameKey("abc", "photo/abc"))
}

func TestAlbumRef(t *testing.T) {
	assert.False(t, AlbumRef("").Valid)
	ref := AlbumRef("a1")
	assert.True(t, ref.Valid)
	assert.True(t, Photo{AlbumID: ref}.InAlbum("a1"))
	assert.False(t, Photo{}.InAlbum(""))
}
