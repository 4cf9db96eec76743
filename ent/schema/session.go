package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Session is one submitted assessment attempt. The result column stays
// empty until scoring finishes.
type Session struct {
	ent.Schema
}

func (Session) Mixin() []ent.Mixin {
	return []ent.Mixin{CreatedMixin{}}
}

func (Session) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable().
			Comment("Session UUID"),
		field.String("test_type").
			NotEmpty(),
		field.JSON("answers", []map[string]any{}).
			Comment("Submitted answers"),
		field.JSON("result", map[string]any{}).
			Optional().
			Comment("Scored result, empty until scoring completes"),
		field.Int64("duration_ms").
			Default(0),
		field.String("ip_hash").
			Optional().
			Comment("Keyed BLAKE2b hash of the client address; never the address itself"),
		field.JSON("user_info", map[string]any{}).
			Optional(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

func (Session) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("test_type"),
	}
}
