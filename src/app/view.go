package app

import (
	"sort"
	"strings"
	"time"
)

// DayLayout formats bucket keys (year-month-day).
const DayLayout = "2006-01-02"

// DayLabelLayout is the long form shown above a day group.
const DayLabelLayout = "Monday 2 January 2006"

// DayLabel turns a DayGroup key into its long form, e.g. "Saturday 2 March
// 2024".
func DayLabel(day string) string {
	if day == "" {
		return "unknown date"
	}
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return day
	}
	return t.Format(DayLabelLayout)
}

// DayGroup is a set of photos uploaded on the same calendar day.
type DayGroup struct {
	Day    string
	Photos []Photo
}

// SortByUploadedDesc orders photos newest first. Photos without an upload
// time sort last.
func SortByUploadedDesc(photos []Photo) {
	sort.SliceStable(photos, func(i, j int) bool {
		return uploadedUnix(photos[i]) > uploadedUnix(photos[j])
	})
}

func uploadedUnix(p Photo) int64 {
	if !p.UploadedAt.Valid {
		return 0
	}
	return p.UploadedAt.Time.UnixNano()
}

// FilterPhotos keeps photos whose description or any label contains term,
// ignoring case. An empty term keeps everything.
func FilterPhotos(photos []Photo, term string) []Photo {
	term = strings.ToLower(term)
	out := make([]Photo, 0, len(photos))
	for _, p := range photos {
		if matches(p, term) {
			out = append(out, p)
		}
	}
	return out
}

func matches(p Photo, term string) bool {
	if strings.Contains(strings.ToLower(p.Description), term) {
		return true
	}
	for _, l := range p.Labels {
		if strings.Contains(strings.ToLower(l), term) {
			return true
		}
	}
	return false
}

// GroupByDay buckets photos by the calendar day of their upload time in
// loc, keeping the input order inside and across buckets. Photos without
// an upload time land in a bucket with an empty day.
func GroupByDay(photos []Photo, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	var groups []DayGroup
	index := make(map[string]int)
	for _, p := range photos {
		day := ""
		if p.UploadedAt.Valid {
			day = p.UploadedAt.Time.In(loc).Format(DayLayout)
		}
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, DayGroup{Day: day})
		}
		groups[i].Photos = append(groups[i].Photos, p)
	}
	return groups
}

// Favorites returns the favorite photos, newest first.
func Favorites(photos []Photo) []Photo {
	out := make([]Photo, 0, len(photos))
	for _, p := range photos {
		if p.IsFavorite {
			out = append(out, p)
		}
	}
	SortByUploadedDesc(out)
	return out
}
