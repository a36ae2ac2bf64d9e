package giveaway

import (
	"testing"

	"guildpulse/internal/engagement"
)

func TestEntryWeight(t *testing.T) {
	cases := []struct {
		name  string
		tier  engagement.BoosterTier
		level int
		want  int
	}{
		{"baseline", engagement.TierNone, 1, 1},
		{"level 24 no bonus", engagement.TierNone, 24, 1},
		{"level 25 bonus", engagement.TierNone, 25, 2},
		{"level 35 bonus", engagement.TierNone, 35, 3},
		{"level 60 bonus", engagement.TierNone, 60, 4},
		{"level 80 bonus", engagement.TierNone, 80, 5},
		{"only highest threshold applies", engagement.TierNone, 99, 5},
		{"server booster", engagement.TierServer, 1, 3},
		{"super booster", engagement.TierSuper, 1, 5},
		{"mega booster", engagement.TierMega, 1, 7},
		{"server booster with level bonus", engagement.TierServer, 35, 5},
		{"capped at max", engagement.TierMega, 80, 10},
	}
	for _, tc := range cases {
		if got := EntryWeight(tc.tier, tc.level, 10); got != tc.want {
			t.Errorf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestEntryWeightMonotonic(t *testing.T) {
	tiers := []engagement.BoosterTier{
		engagement.TierNone, engagement.TierServer, engagement.TierSuper, engagement.TierMega,
	}
	for _, tier := range tiers {
		prev := 0
		for level := 1; level <= 100; level++ {
			w := EntryWeight(tier, level, 0)
			if w < prev {
				t.Fatalf("weight decreased at tier %v level %d: %d -> %d", tier, level, prev, w)
			}
			if w < 1 {
				t.Fatalf("weight below 1 at tier %v level %d", tier, level)
			}
			prev = w
		}
	}
	for level := 1; level <= 100; level += 10 {
		prev := 0
		for _, tier := range tiers {
			w := EntryWeight(tier, level, 0)
			if w < prev {
				t.Fatalf("weight decreased across tiers at level %d", level)
			}
			prev = w
		}
	}
}
