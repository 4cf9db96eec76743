package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// KVEntry backs the shared key-value store: rate-limit windows and the
// result cache.
type KVEntry struct {
	ent.Schema
}

func (KVEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Comment("Key"),
		field.Bytes("value"),
		field.Time("expires_at").
			Optional().
			Nillable().
			Comment("Null means the entry never expires"),
	}
}

func (KVEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("expires_at"),
	}
}
