package domain

import (
	"fmt"
	"strings"
	"time"

	"climatemap-server/internal/modules/climate/types"
)

// DefaultSeasons returns the southern hemisphere seasons for the July 2023 to
// June 2024 window. Winter straddles both ends of the window.
func DefaultSeasons() []types.Season {
	return []types.Season{
		season("Winter", "2023-07-01", "2023-08-31"),
		season("Spring", "2023-09-01", "2023-11-30"),
		season("Summer", "2023-12-01", "2024-02-29"),
		season("Autumn", "2024-03-01", "2024-05-31"),
		season("Winter", "2024-06-01", "2024-06-30"),
	}
}

func season(name, start, end string) types.Season {
	s, err := ParseDate(start)
	if err != nil {
		panic(err)
	}
	e, err := ParseDate(end)
	if err != nil {
		panic(err)
	}
	return types.Season{Name: name, Start: s, End: e}
}

// SeasonResolver maps dates onto a fixed, ordered season table.
type SeasonResolver struct {
	seasons []types.Season
}

func NewSeasonResolver(seasons []types.Season) *SeasonResolver {
	cp := make([]types.Season, len(seasons))
	for i, s := range seasons {
		cp[i] = types.Season{Name: s.Name, Start: Day(s.Start), End: Day(s.End)}
	}
	return &SeasonResolver{seasons: cp}
}

func (r *SeasonResolver) Seasons() []types.Season {
	out := make([]types.Season, len(r.seasons))
	copy(out, r.seasons)
	return out
}

// SeasonOf returns the first season whose interval contains date. Both ends
// are inclusive at day granularity.
func (r *SeasonResolver) SeasonOf(date time.Time) (types.Season, bool) {
	d := Day(date)
	for _, s := range r.seasons {
		if !d.Before(s.Start) && !d.After(s.End) {
			return s, true
		}
	}
	return types.Season{}, false
}

// CSSClass is the lowercase season name used by the season label and slider.
func CSSClass(s types.Season) string {
	return strings.ToLower(s.Name)
}

// ValidateSeasons checks that every day of r falls in exactly one season.
func ValidateSeasons(seasons []types.Season, r DateRange) error {
	res := NewSeasonResolver(seasons)
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		n := 0
		for _, s := range res.seasons {
			if !d.Before(s.Start) && !d.After(s.End) {
				n++
			}
		}
		switch {
		case n == 0:
			return fmt.Errorf("no season covers %s", FormatKey(d))
		case n > 1:
			return fmt.Errorf("%d seasons overlap on %s", n, FormatKey(d))
		}
	}
	return nil
}
