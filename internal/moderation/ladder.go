package moderation

import "time"

// Action is the automatic escalation applied when a warning count hits a
// ladder threshold.
type Action int

const (
	ActionNone Action = iota
	ActionMute
	ActionTempban
	ActionBan
)

func (a Action) String() string {
	switch a {
	case ActionMute:
		return "mute"
	case ActionTempban:
		return "tempban"
	case ActionBan:
		return "ban"
	default:
		return "none"
	}
}

const day = 24 * time.Hour

// muteLadder maps warning-count thresholds to mute lengths, highest
// threshold first.
var muteLadder = []struct {
	count    int
	duration time.Duration
}{
	{25, 30 * day},
	{20, 10 * day},
	{15, 5 * day},
	{10, 3 * day},
	{5, 1 * day},
}

const (
	tempbanThreshold = 30
	tempbanDuration  = 30 * day
	banThreshold     = 40
)

// ladderAction returns the escalation for a warning count. Every count
// at or above a threshold re-applies the highest punishment it clears,
// so a user who keeps earning warnings keeps getting re-muted.
func ladderAction(count int) (Action, time.Duration) {
	if count >= banThreshold {
		return ActionBan, 0
	}
	if count >= tempbanThreshold {
		return ActionTempban, tempbanDuration
	}
	for _, step := range muteLadder {
		if count >= step.count {
			return ActionMute, step.duration
		}
	}
	return ActionNone, 0
}
