package schoolyear

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestSchoolYearStatus(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		year SchoolYear
		want Status
	}{
		{
			name: "explicitly active",
			year: SchoolYear{Name: "2025-2026", StartYear: 2025, EndYear: 2026, IsActive: true},
			want: StatusActive,
		},
		{
			name: "active wins over passed transition date",
			year: SchoolYear{Name: "2025-2026", IsActive: true, TransitionDate: datePtr(2025, time.July, 1)},
			want: StatusActive,
		},
		{
			name: "future transition date is upcoming",
			year: SchoolYear{Name: "2026-2027", StartYear: 2026, EndYear: 2027, TransitionDate: datePtr(2026, time.July, 1)},
			want: StatusUpcoming,
		},
		{
			name: "ended year is archived",
			year: SchoolYear{Name: "2024-2025", StartYear: 2024, EndYear: 2025},
			want: StatusArchived,
		},
		{
			name: "ended year with future transition date stays upcoming",
			year: SchoolYear{Name: "2024-2025", StartYear: 2024, EndYear: 2025, TransitionDate: datePtr(2027, time.January, 1)},
			want: StatusUpcoming,
		},
		{
			name: "inactive current year defaults to upcoming",
			year: SchoolYear{Name: "2025-2026", StartYear: 2025, EndYear: 2026},
			want: StatusUpcoming,
		},
		{
			name: "no years set defaults to upcoming",
			year: SchoolYear{Name: "2026-2027"},
			want: StatusUpcoming,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.year.Status(now))
		})
	}
}

func TestParseYearLabel(t *testing.T) {
	tests := []struct {
		name      string
		label     string
		wantStart int
		wantEnd   int
	}{
		{name: "valid", label: "2025-2026", wantStart: 2025, wantEnd: 2026},
		{name: "empty", label: ""},
		{name: "no dash", label: "2025"},
		{name: "garbage", label: "abcd-efgh"},
		{name: "extra parts", label: "2025-2026-2027"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := ParseYearLabel(tt.label)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestYearLabel(t *testing.T) {
	assert.Equal(t, "2026-2027", YearLabel(2026))
}
