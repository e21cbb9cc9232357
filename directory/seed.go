package directory

import (
	"fmt"
	"strings"
)

// Seed is one demo user parsed from a DEMO_USERS entry.
type Seed struct {
	ID         string
	Identifier string
	Password   string
	TeamID     string
}

// ParseSeeds parses a comma separated list of
// "id:identifier:password[:team]" entries. Blank entries are skipped.
func ParseSeeds(raw string) ([]Seed, error) {
	var seeds []Seed
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("directory: malformed seed %q: want id:identifier:password[:team]", entry)
		}
		seed := Seed{
			ID:         strings.TrimSpace(parts[0]),
			Identifier: strings.TrimSpace(parts[1]),
			Password:   parts[2],
		}
		if len(parts) == 4 {
			seed.TeamID = strings.TrimSpace(parts[3])
		}
		if seed.ID == "" || seed.Identifier == "" || seed.Password == "" {
			return nil, fmt.Errorf("directory: malformed seed %q: empty field", entry)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// Load hashes and inserts every seed.
func (d *Directory) Load(seeds []Seed) error {
	for _, s := range seeds {
		err := d.AddWithPassword(User{
			ID:          s.ID,
			Identifier:  s.Identifier,
			DisplayName: s.Identifier,
			TeamID:      s.TeamID,
		}, s.Password)
		if err != nil {
			return err
		}
	}
	return nil
}
