// Package rooms loads the portal's room directory export and answers name
// lookups against it.
//
// The export is not a single JSON document: it is a run of JSON objects glued
// together, sometimes with stray bytes in between. ParseRooms recovers every
// object it can and drops the rest.
package rooms

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
)

// Defaults applied to optional fields by Directory.Rooms.
const (
	DefaultType = "Unknown"
)

// RawRoom is one room object as found in the directory file. Optional fields
// stay nil when the export omits them.
type RawRoom struct {
	ID         int     `json:"id"`
	Name       string  `json:"nom"`
	Type       *string `json:"type"`
	Capacity   *int    `json:"capacite"`
	Accessible *bool   `json:"accessibilite"`
	Site       *string `json:"site"`
	Building   *string `json:"batiment"`
}

// Room is the normalized, API-facing room record.
type Room struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Capacity   int    `json:"capacity"`
	Accessible bool   `json:"accessible"`
	Site       string `json:"site"`
	Building   string `json:"building"`
}

// LoadRooms reads and parses the directory file at path. A file that cannot be
// read is logged and produces an empty result.
func LoadRooms(path string) []RawRoom {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[ERROR] rooms: read directory file %s: %v", path, err)
		return nil
	}
	return ParseRooms(data)
}

// ParseRooms scans data left to right and decodes one JSON value at a time.
// When no value can be decoded at the current offset it moves forward a
// single byte and tries again. Only objects carrying both "id" and "nom" are
// kept, in file order.
func ParseRooms(data []byte) []RawRoom {
	var out []RawRoom
	pos := 0
	for pos < len(data) {
		for pos < len(data) && isSpace(data[pos]) {
			pos++
		}
		if pos >= len(data) {
			break
		}

		dec := json.NewDecoder(bytes.NewReader(data[pos:]))
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			pos++
			continue
		}
		consumed := int(dec.InputOffset())
		if consumed <= 0 {
			consumed = 1
		}
		pos += consumed

		if room, ok := roomFromJSON(value); ok {
			out = append(out, room)
		}
	}
	return out
}

// roomFromJSON requires an integer "id" and a string "nom". Optional fields
// with an unexpected type are treated as absent rather than dropping the room.
func roomFromJSON(value json.RawMessage) (RawRoom, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return RawRoom{}, false
	}

	var room RawRoom
	if err := unmarshalField(fields, "id", &room.ID); err != nil {
		return RawRoom{}, false
	}
	if err := unmarshalField(fields, "nom", &room.Name); err != nil {
		return RawRoom{}, false
	}

	room.Type = optionalField[string](fields, "type")
	room.Capacity = optionalField[int](fields, "capacite")
	room.Accessible = optionalField[bool](fields, "accessibilite")
	room.Site = optionalField[string](fields, "site")
	room.Building = optionalField[string](fields, "batiment")
	return room, true
}

var errMissingField = errors.New("missing field")

func unmarshalField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return errMissingField
	}
	return json.Unmarshal(raw, dst)
}

// optionalField returns nil when key is absent, null or of another type.
func optionalField[T any](fields map[string]json.RawMessage, key string) *T {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func (r RawRoom) normalize() Room {
	room := Room{
		ID:   r.ID,
		Name: r.Name,
		Type: DefaultType,
	}
	if r.Type != nil {
		room.Type = *r.Type
	}
	if r.Capacity != nil {
		room.Capacity = *r.Capacity
	}
	if r.Accessible != nil {
		room.Accessible = *r.Accessible
	}
	if r.Site != nil {
		room.Site = *r.Site
	}
	if r.Building != nil {
		room.Building = *r.Building
	}
	return room
}
