package model

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Planet is a catalog entry refreshed from the external planet API.
// Name is the natural key.
type Planet struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Population *int64    `json:"population"` // nil when unknown
	Terrains   []string  `json:"terrains"`
	Climates   []string  `json:"climates"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PlanetUpdate carries the fields to change on an existing planet.
// Nil fields are left unchanged.
type PlanetUpdate struct {
	Name       *string   `json:"name,omitempty"`
	Population *int64    `json:"population,omitempty"`
	Terrains   *[]string `json:"terrains,omitempty"`
	Climates   *[]string `json:"climates,omitempty"`
}

// Apply copies the set fields of u onto p.
func (u PlanetUpdate) Apply(p *Planet) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Population != nil {
		p.Population = u.Population
	}
	if u.Terrains != nil {
		p.Terrains = *u.Terrains
	}
	if u.Climates != nil {
		p.Climates = *u.Climates
	}
}

// Normalize replaces nil slices with empty ones so they encode as [].
func (p *Planet) Normalize() {
	if p.Terrains == nil {
		p.Terrains = []string{}
	}
	if p.Climates == nil {
		p.Climates = []string{}
	}
}

// MaxPlanetNameLen is the width of the planets.name column, in characters.
const MaxPlanetNameLen = 100

// Validate checks the planet fits the catalog table.
func (p *Planet) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("planet name is required")
	}
	if utf8.RuneCountInString(p.Name) > MaxPlanetNameLen {
		return fmt.Errorf("planet name %q exceeds %d characters", p.Name, MaxPlanetNameLen)
	}
	if p.Population != nil && *p.Population < 0 {
		return fmt.Errorf("planet population must not be negative")
	}
	return nil
}
