package rooms

import (
	"regexp"
	"strings"
)

var (
	leadingTokenRe = regexp.MustCompile(`^([A-Za-z0-9]+)`)
	parenRe        = regexp.MustCompile(`\(([^()]*)\)`)
)

// Directory is an immutable, deduplicated view over the directory file.
type Directory struct {
	rooms   []Room
	byID    map[int]int
	aliases map[string]int
}

// Load reads the directory file at path and builds a Directory from it.
func Load(path string) *Directory {
	return NewDirectory(LoadRooms(path))
}

// NewDirectory deduplicates raw by id, keeping the first occurrence, and
// indexes the survivors by name and alias.
func NewDirectory(raw []RawRoom) *Directory {
	d := &Directory{
		byID:    make(map[int]int, len(raw)),
		aliases: make(map[string]int),
	}
	for _, r := range raw {
		if _, seen := d.byID[r.ID]; seen {
			continue
		}
		d.byID[r.ID] = len(d.rooms)
		d.rooms = append(d.rooms, r.normalize())
	}

	// Full names take precedence over every alias, so index them first.
	for _, room := range d.rooms {
		d.addAlias(room.Name, room.ID)
	}
	for _, room := range d.rooms {
		for _, alias := range Aliases(room.Name) {
			d.addAlias(alias, room.ID)
		}
	}
	return d
}

func (d *Directory) addAlias(alias string, id int) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return
	}
	if _, taken := d.aliases[alias]; taken {
		return
	}
	d.aliases[alias] = id
}

// Aliases returns the short names a room is also known by: its leading
// alphanumeric token, its first whitespace-delimited token and every
// parenthesized part of the name.
func Aliases(name string) []string {
	var out []string
	if m := leadingTokenRe.FindStringSubmatch(name); m != nil {
		out = append(out, m[1])
	}
	if fields := strings.Fields(name); len(fields) > 0 {
		out = append(out, fields[0])
	}
	for _, m := range parenRe.FindAllStringSubmatch(name, -1) {
		if inner := strings.TrimSpace(m[1]); inner != "" {
			out = append(out, inner)
		}
	}
	return out
}

// Rooms returns the unique rooms in file order.
func (d *Directory) Rooms() []Room {
	out := make([]Room, len(d.rooms))
	copy(out, d.rooms)
	return out
}

// Len reports the number of unique rooms.
func (d *Directory) Len() int { return len(d.rooms) }

// Get returns the room with the given id.
func (d *Directory) Get(id int) (Room, bool) {
	idx, ok := d.byID[id]
	if !ok {
		return Room{}, false
	}
	return d.rooms[idx], true
}

// ByName returns a copy of the name and alias index.
func (d *Directory) ByName() map[string]int {
	out := make(map[string]int, len(d.aliases))
	for k, v := range d.aliases {
		out[k] = v
	}
	return out
}

// Lookup resolves a user-supplied room name. Exact names and aliases win,
// then a case-insensitive alias match, then the first room whose full name
// contains name.
func (d *Directory) Lookup(name string) (Room, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Room{}, false
	}
	if id, ok := d.aliases[name]; ok {
		return d.Get(id)
	}

	for _, room := range d.rooms {
		if strings.EqualFold(room.Name, name) {
			return room, true
		}
		for _, alias := range Aliases(room.Name) {
			if strings.EqualFold(alias, name) {
				return room, true
			}
		}
	}

	lower := strings.ToLower(name)
	for _, room := range d.rooms {
		if strings.Contains(strings.ToLower(room.Name), lower) {
			return room, true
		}
	}
	return Room{}, false
}
