package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Feedback is a rating plus an optional comment that has passed the
// content filter.
type Feedback struct {
	ent.Schema
}

func (Feedback) Mixin() []ent.Mixin {
	return []ent.Mixin{CreatedMixin{}}
}

func (Feedback) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable(),
		field.String("session_id").
			Optional(),
		field.Int("rating").
			Range(1, 5),
		field.Text("comment").
			Optional().
			Comment("Comment after warn-tier redaction"),
		field.String("severity").
			Default("low"),
		field.JSON("categories", []string{}).
			Optional().
			Comment("Warn-tier categories that matched"),
	}
}

func (Feedback) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id"),
	}
}
