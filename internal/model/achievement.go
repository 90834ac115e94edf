package model

import (
	"fmt"
	"time"
)

// Rarity is ordered: Common < Rare < Epic < Legendary.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityRare
	RarityEpic
	RarityLegendary
)

var rarityNames = map[Rarity]string{
	RarityCommon:    "common",
	RarityRare:      "rare",
	RarityEpic:      "epic",
	RarityLegendary: "legendary",
}

var rarityFromName = map[string]Rarity{
	"common":    RarityCommon,
	"rare":      RarityRare,
	"epic":      RarityEpic,
	"legendary": RarityLegendary,
}

func (r Rarity) String() string {
	if name, ok := rarityNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rarity(%d)", int(r))
}

// ParseRarity converts a stored or submitted rarity name.
func ParseRarity(s string) (Rarity, error) {
	r, ok := rarityFromName[s]
	if !ok {
		return 0, fmt.Errorf("unknown rarity %q", s)
	}
	return r, nil
}

func (r Rarity) MarshalText() ([]byte, error) {
	name, ok := rarityNames[r]
	if !ok {
		return nil, fmt.Errorf("invalid rarity %d", int(r))
	}
	return []byte(name), nil
}

func (r *Rarity) UnmarshalText(b []byte) error {
	parsed, err := ParseRarity(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

const (
	AchievementCompletion = "completion"
	AchievementStreak     = "streak"
	AchievementSpeed      = "speed"
	AchievementVariety    = "variety"
	AchievementSpecial    = "special"
)

// ValidAchievementCategory reports whether c is one of the known categories.
func ValidAchievementCategory(c string) bool {
	switch c {
	case AchievementCompletion, AchievementStreak, AchievementSpeed, AchievementVariety, AchievementSpecial:
		return true
	}
	return false
}

type Achievement struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Category    string     `json:"category"`
	Requirement int        `json:"requirement"`
	Progress    int        `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Rarity      Rarity     `json:"rarity"`
	Points      int        `json:"points"`
	CreatedAt   time.Time  `json:"created_at"`
}
