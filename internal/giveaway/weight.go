package giveaway

import "guildpulse/internal/engagement"

// levelBonuses maps level thresholds to bonus entries. Only the highest
// threshold the member has reached applies.
var levelBonuses = []struct {
	level int
	bonus int
}{
	{80, 4},
	{60, 3},
	{35, 2},
	{25, 1},
}

// EntryWeight converts a member's booster tier and level into their
// number of giveaway entries. The result is always at least 1 and never
// exceeds maxWeight.
func EntryWeight(tier engagement.BoosterTier, level, maxWeight int) int {
	weight := tier.EntryMultiplier()
	for _, b := range levelBonuses {
		if level >= b.level {
			weight += b.bonus
			break
		}
	}
	if weight < 1 {
		weight = 1
	}
	if maxWeight > 0 && weight > maxWeight {
		weight = maxWeight
	}
	return weight
}
