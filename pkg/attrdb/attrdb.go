// Package attrdb maps ATA SMART attribute IDs to names and units.
package attrdb

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
)

// UnknownName is reported for IDs the database does not list.
const UnknownName = "Unknown_Attribute"

//go:embed attributes.toml
var builtin string

// Attribute describes one SMART attribute ID.
type Attribute struct {
	ID   uint8  `toml:"id"`
	Name string `toml:"name"`
	Unit string `toml:"unit"`
}

type file struct {
	Attribute []Attribute `toml:"attribute"`
}

// DB is an immutable ID index.
type DB struct {
	byID map[uint8]Attribute
}

var (
	defaultOnce sync.Once
	defaultDB   *DB
)

// Default returns the built-in database.
func Default() *DB {
	defaultOnce.Do(func() {
		db := &DB{byID: make(map[uint8]Attribute)}
		if err := db.decode(builtin); err != nil {
			panic(fmt.Sprintf("attrdb: built-in table: %v", err))
		}
		defaultDB = db
	})
	return defaultDB
}

// Open loads the built-in table and overlays the entries in path. Entries in
// the file replace built-in entries with the same ID; a missing name keeps
// the built-in name.
func Open(path string) (*DB, error) {
	db := &DB{byID: make(map[uint8]Attribute, len(Default().byID))}
	for id, a := range Default().byID {
		db.byID[id] = a
	}

	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to parse attribute database %s: %w", path, err)
	}
	db.merge(f.Attribute)
	return db, nil
}

func (db *DB) decode(data string) error {
	var f file
	if _, err := toml.Decode(data, &f); err != nil {
		return err
	}
	db.merge(f.Attribute)
	return nil
}

func (db *DB) merge(attrs []Attribute) {
	for _, a := range attrs {
		if prev, ok := db.byID[a.ID]; ok && a.Name == "" {
			a.Name = prev.Name
		}
		db.byID[a.ID] = a
	}
}

// Lookup returns the attribute for id. Unlisted IDs get UnknownName.
func (db *DB) Lookup(id uint8) Attribute {
	if a, ok := db.byID[id]; ok {
		return a
	}
	return Attribute{ID: id, Name: UnknownName}
}

// Len returns the number of listed IDs.
func (db *DB) Len() int {
	return len(db.byID)
}
