package store

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent"
	migrate "entgo.io/ent/dialect/sql/schema"

	entschema "github.com/abhisek/psytest/ent/schema"
)

// Table names.
const (
	sessionsTable = "sessions"
	feedbackTable = "feedbacks"
	kvTable       = "kv_entries"
)

// Tables builds the migration tables from the ent schema definitions.
// The schemas are read through their descriptors, so no generated client
// is needed.
func Tables() []*migrate.Table {
	return []*migrate.Table{
		tableFor(sessionsTable, entschema.Session{}),
		tableFor(feedbackTable, entschema.Feedback{}),
		tableFor(kvTable, entschema.KVEntry{}),
	}
}

func (s *Store) migrate(ctx context.Context) error {
	m, err := migrate.NewMigrate(s.drv)
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}
	return m.Create(ctx, Tables()...)
}

// tableFor converts an ent schema into a migration table. The "id"
// field becomes the primary key.
func tableFor(name string, s ent.Interface) *migrate.Table {
	var fields []ent.Field
	var indexes []ent.Index
	for _, mx := range s.Mixin() {
		fields = append(fields, mx.Fields()...)
		indexes = append(indexes, mx.Indexes()...)
	}
	// Own fields first so the primary key leads the column list.
	fields = append(s.Fields(), fields...)
	indexes = append(indexes, s.Indexes()...)

	t := &migrate.Table{Name: name}
	byName := make(map[string]*migrate.Column, len(fields))
	for _, f := range fields {
		d := f.Descriptor()
		col := &migrate.Column{
			Name:     d.Name,
			Type:     d.Info.Type,
			Nullable: d.Optional || d.Nillable,
			Unique:   d.Unique,
			Size:     int64(d.Size),
		}
		if d.Name == "id" {
			col.Nullable = false
			t.PrimaryKey = []*migrate.Column{col}
		}
		t.Columns = append(t.Columns, col)
		byName[d.Name] = col
	}
	for _, ix := range indexes {
		d := ix.Descriptor()
		cols := make([]*migrate.Column, 0, len(d.Fields))
		for _, fn := range d.Fields {
			cols = append(cols, byName[fn])
		}
		t.Indexes = append(t.Indexes, &migrate.Index{
			Name:    name + "_" + strings.Join(d.Fields, "_"),
			Unique:  d.Unique,
			Columns: cols,
		})
	}
	return t
}
