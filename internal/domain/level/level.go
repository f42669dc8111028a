// Package level computes a user's level and progress from cumulative XP.
//
// All functions are pure and total for xp >= 0. Negative XP is a
// precondition violation rejected upstream on the award path; behavior for
// negative input is unspecified.
package level

// XPPerLevel is the fixed XP span of a single level.
const XPPerLevel = 500

// Level returns the level for a cumulative XP total.
// Level 1 spans XP 0-499, level 2 spans 500-999, and so on.
func Level(xp int64) int {
	return int(xp/XPPerLevel) + 1
}

// XPToNext returns the XP still missing to reach the next level.
func XPToNext(xp int64) int64 {
	return int64(Level(xp))*XPPerLevel - xp
}

// Progress returns how far into the current level xp sits, in [0, 1).
func Progress(xp int64) float64 {
	lvl := int64(Level(xp))
	return float64(xp-(lvl-1)*XPPerLevel) / float64(XPPerLevel)
}
