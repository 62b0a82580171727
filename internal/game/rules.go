// internal/game/rules.go
package game

import "fmt"

// Rules holds the tunable constants of a table.
type Rules struct {
	WinThreshold  int `json:"winThreshold"`  // cumulative total that triggers the final round
	StarsToWin    int `json:"starsToWin"`    // stars that end the game on the spot
	MinPlayers    int `json:"minPlayers"`    // smallest roster that can start
	MaxPlayers    int `json:"maxPlayers"`    // largest roster setup accepts
	MaxNameLength int `json:"maxNameLength"` // player names are truncated to this many runes
}

// DefaultRules returns the standard 10,000 point / 5 star table.
func DefaultRules() Rules {
	return Rules{
		WinThreshold:  10000,
		StarsToWin:    5,
		MinPlayers:    2,
		MaxPlayers:    10,
		MaxNameLength: 20,
	}
}

// Update will update the rules with the new values provided.
// Keys that are absent or null are ignored and the old value persists.
func (rules *Rules) Update(newRules map[string]interface{}) error {
	assignInt := func(field *int, key string, minVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var v int
		switch n := val.(type) {
		case float64:
			// JSON numbers decode as float64
			v = int(n)
		case int:
			v = n
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if v < minVal {
			return fmt.Errorf("%s must be at least %d", key, minVal)
		}
		*field = v
		return nil
	}

	if err := assignInt(&rules.WinThreshold, "winThreshold", 1); err != nil {
		return err
	}
	if err := assignInt(&rules.StarsToWin, "starsToWin", 1); err != nil {
		return err
	}
	if err := assignInt(&rules.MinPlayers, "minPlayers", 2); err != nil {
		return err
	}
	if err := assignInt(&rules.MaxPlayers, "maxPlayers", 2); err != nil {
		return err
	}
	if err := assignInt(&rules.MaxNameLength, "maxNameLength", 1); err != nil {
		return err
	}
	if rules.MaxPlayers < rules.MinPlayers {
		return fmt.Errorf("maxPlayers must not be below minPlayers")
	}
	return nil
}

// ParseRules applies a map of overrides to a copy of current. It will ensure the types are valid.
func ParseRules(overrides map[string]interface{}, current Rules) (Rules, error) {
	rules := current
	err := rules.Update(overrides)
	return rules, err
}
