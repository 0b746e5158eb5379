package timeofday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Minute
		ok   bool
	}{
		{"09:00", 540, true},
		{"9:05", 545, true},
		{"00:00", 0, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"1200", 0, false},
		{"12:5", 0, false},
		{"ab:cd", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringIsZeroPadded(t *testing.T) {
	assert.Equal(t, "09:05", MustParse("9:05").String())
	assert.Equal(t, "16:30", Minute(990).String())
}

func TestWindowOverlapIsHalfOpen(t *testing.T) {
	brk := Window{Start: MustParse("12:00"), End: MustParse("13:00")}

	assert.True(t, Window{Start: MustParse("11:55"), End: MustParse("12:25")}.Overlaps(brk))
	assert.False(t, Window{Start: MustParse("11:30"), End: MustParse("12:00")}.Overlaps(brk))
	assert.False(t, Window{Start: MustParse("13:00"), End: MustParse("13:30")}.Overlaps(brk))
}

func TestOn(t *testing.T) {
	loc := time.FixedZone("clinic", 3*3600)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	got := MustParse("10:30").On(date, loc)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, loc), got)
}
