package domain

import "time"

// Trader represents a wallet's accumulated launchpad activity.
type Trader struct {
	Address       string
	Points        int64
	Level         TraderLevel
	VolumeXLM     string
	TokensCreated int
	TradeCount    int
	UpdatedAt     time.Time
}

// TraderCredit is one handler's contribution to a trader's stats.
// Zero-valued fields leave the corresponding counter untouched.
type TraderCredit struct {
	Points        int64
	VolumeXLM     string
	Trades        int
	TokensCreated int
}

type TraderLevel string

const (
	TraderLevelBronze  TraderLevel = "bronze"
	TraderLevelSilver  TraderLevel = "silver"
	TraderLevelGold    TraderLevel = "gold"
	TraderLevelDiamond TraderLevel = "diamond"
)

// Points awarded per action.
const (
	PointsCreate    int64 = 50
	PointsTrade     int64 = 10
	PointsLiquidity int64 = 15
	PointsSwap      int64 = 5
)

// LevelForPoints returns the level a lifetime point total lands in.
func LevelForPoints(points int64) TraderLevel {
	switch {
	case points >= 10000:
		return TraderLevelDiamond
	case points >= 2500:
		return TraderLevelGold
	case points >= 500:
		return TraderLevelSilver
	default:
		return TraderLevelBronze
	}
}
