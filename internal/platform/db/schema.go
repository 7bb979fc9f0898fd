package db

import (
	"fmt"
	"io/fs"
	"regexp"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Schema describes the database layout the store layer runs against: the
// PostgreSQL schema that owns the tables and the migration files that build
// it. It is constructed once at startup and handed to Open and the
// Migrator.
type Schema struct {
	Name       string
	Migrations fs.FS
}

func NewSchema(name string, migrations fs.FS) (Schema, error) {
	if !identPattern.MatchString(name) {
		return Schema{}, fmt.Errorf("invalid schema identifier: %q", name)
	}
	if migrations == nil {
		return Schema{}, fmt.Errorf("schema %s has no migrations", name)
	}
	return Schema{Name: name, Migrations: migrations}, nil
}

// SearchPath is the search_path value for sessions using this schema.
func (s Schema) SearchPath() string {
	if s.Name == "public" {
		return "public"
	}
	return s.Name + ", public"
}
