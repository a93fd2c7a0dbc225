package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var flairByColor = map[string]string{
	"#9c59d1": "Early Bird",
	"#4287f5": "Cautious",
	"#42f5a7": "Moderate",
	"#f5e642": "Risk Taker",
	"#f5a442": "Daredevil",
	"#f54242": "Madlad",
}

func TestTierMappingIsTotal(t *testing.T) {
	for timerAt := 0.0; timerAt <= FullTimerSeconds; timerAt += 0.25 {
		color := PresserColor(timerAt)
		flair := FlairName(timerAt)
		assert.NotEmpty(t, color, "timerAt=%v", timerAt)
		assert.NotEmpty(t, flair, "timerAt=%v", timerAt)
		assert.Equal(t, flairByColor[color], flair, "color and flair must belong to the same tier at timerAt=%v", timerAt)
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		timerAt float64
		flair   string
	}{
		{60, "Early Bird"},
		{50.01, "Early Bird"},
		{50, "Cautious"}, // boundary value belongs to the lower bucket
		{40.01, "Cautious"},
		{40, "Moderate"},
		{30, "Risk Taker"},
		{20, "Daredevil"},
		{10.01, "Daredevil"},
		{10, "Madlad"},
		{0, "Madlad"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.flair, FlairName(tc.timerAt), "timerAt=%v", tc.timerAt)
	}
}

func TestTierIsDeterministic(t *testing.T) {
	for _, v := range []float64{0, 9.99, 10, 25.5, 50, 59.9, 60} {
		assert.Equal(t, PresserColor(v), PresserColor(v))
		assert.Equal(t, FlairName(v), FlairName(v))
	}
}
