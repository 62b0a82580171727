package models

// Player is one seat at the table. ID is assigned at game start and never changes.
type Player struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
	Stars int    `json:"stars"`
}

// PlayerSeed carries a finished game's roster into the next setup screen.
type PlayerSeed struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}
