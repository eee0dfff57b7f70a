package cbtools

import (
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Reserved document keys. Every stored payload carries the discriminator
// and the channel list; st_deleted marks soft-deleted documents.
const (
	DocTypeFieldName  = "doc_type"
	ChannelsFieldName = "channels"
	DeletedFieldName  = "st_deleted"

	createdFieldName = "created"
	updatedFieldName = "updated"
	uidFieldName     = "uid"
	revFieldName     = "_rev"
)

// ChannelPublic is the well-known channel granted to every principal, so
// documents tagged with it are readable by anyone.
const ChannelPublic = "public"

// Kind tags a field descriptor with its wire representation.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindDecimal
	KindStringList
	KindNested
)

// Field describes one declared field of a model: its wire name, kind,
// and how to move the value between the struct and the portable form.
// Build fields with the XField constructors; the encode/decode closures
// are bound to the struct's own storage, so no reflection happens per
// marshal.
type Field struct {
	Name string
	Kind Kind

	encode func() any
	decode func(v any, log zerolog.Logger)
}

// StringField declares a plain string field.
func StringField(name string, p *string) Field {
	return Field{
		Name: name,
		Kind: KindString,
		encode: func() any { return *p },
		decode: func(v any, log zerolog.Logger) {
			if s, ok := v.(string); ok {
				*p = s
				return
			}
			warnKind(log, name, v)
		},
	}
}

// IntField declares an integer field. JSON numbers arrive as float64 and
// are truncated to int64.
func IntField(name string, p *int64) Field {
	return Field{
		Name: name,
		Kind: KindInt,
		encode: func() any { return *p },
		decode: func(v any, log zerolog.Logger) {
			switch t := v.(type) {
			case float64:
				*p = int64(t)
			case int64:
				*p = t
			case int:
				*p = int64(t)
			default:
				warnKind(log, name, v)
			}
		},
	}
}

// FloatField declares a float64 field. Use DecimalField for money-like
// values that must not drift.
func FloatField(name string, p *float64) Field {
	return Field{
		Name: name,
		Kind: KindFloat,
		encode: func() any { return *p },
		decode: func(v any, log zerolog.Logger) {
			switch t := v.(type) {
			case float64:
				*p = t
			case int64:
				*p = float64(t)
			case int:
				*p = float64(t)
			default:
				warnKind(log, name, v)
			}
		},
	}
}

// BoolField declares a boolean field.
func BoolField(name string, p *bool) Field {
	return Field{
		Name: name,
		Kind: KindBool,
		encode: func() any { return *p },
		decode: func(v any, log zerolog.Logger) {
			if b, ok := v.(bool); ok {
				*p = b
				return
			}
			warnKind(log, name, v)
		},
	}
}

// TimeField declares a timestamp field. Malformed incoming values keep
// the raw string, they never fail the load.
func TimeField(name string, p *DateTime) Field {
	return Field{
		Name: name,
		Kind: KindTime,
		encode: func() any { return p.portable() },
		decode: func(v any, log zerolog.Logger) {
			p.fromPortable(name, v, log)
		},
	}
}

// DecimalField declares an exact-precision numeric field, serialized as
// a string. Malformed incoming values keep the raw string.
func DecimalField(name string, p *Decimal) Field {
	return Field{
		Name: name,
		Kind: KindDecimal,
		encode: func() any { return p.portable() },
		decode: func(v any, log zerolog.Logger) {
			p.fromPortable(name, v, log)
		},
	}
}

// StringListField declares an ordered list of strings, typically a
// references list of related uids.
func StringListField(name string, p *[]string) Field {
	return Field{
		Name: name,
		Kind: KindStringList,
		encode: func() any {
			out := make([]any, len(*p))
			for i, s := range *p {
				out[i] = s
			}
			return out
		},
		decode: func(v any, log zerolog.Logger) {
			arr, ok := v.([]any)
			if !ok {
				warnKind(log, name, v)
				return
			}
			list := make([]string, 0, len(arr))
			for _, el := range arr {
				if s, ok := el.(string); ok {
					list = append(list, s)
				}
			}
			*p = list
		},
	}
}

// NestedField declares an ordered collection of nested documents,
// serialized recursively under name. Each element carries its own uid.
func NestedField[T NestedModel](name string, p *[]T, factory func() T) Field {
	return Field{
		Name: name,
		Kind: KindNested,
		encode: func() any {
			out := make([]any, 0, len(*p))
			for _, item := range *p {
				out = append(out, marshalNested(item))
			}
			return out
		},
		decode: func(v any, log zerolog.Logger) {
			arr, ok := v.([]any)
			if !ok {
				warnKind(log, name, v)
				return
			}
			list := make([]T, 0, len(arr))
			for _, el := range arr {
				data, ok := el.(map[string]any)
				if !ok {
					warnKind(log, name, el)
					continue
				}
				item := factory()
				unmarshalNested(data, item, log)
				list = append(list, item)
			}
			*p = list
		},
	}
}

func warnKind(log zerolog.Logger, name string, v any) {
	log.Warn().Str("field", name).Interface("value", v).
		Msg("unexpected value type (field left unchanged)")
}

// Marshal converts a model into its portable document form: every
// declared field, plus the discriminator, the channel list, the
// timestamps and the soft-delete flag. The document's uid and revision
// are not part of the body; the gateway tracks them.
func Marshal(m Model) map[string]any {
	doc := make(map[string]any)
	for _, f := range m.Schema() {
		doc[f.Name] = f.encode()
	}

	base := m.Base()
	doc[DocTypeFieldName] = DocTypeOf(m)
	doc[ChannelsFieldName] = append([]string(nil), base.Channels...)
	doc[createdFieldName] = base.Created.portable()
	doc[updatedFieldName] = base.Updated.portable()
	doc[DeletedFieldName] = base.Deleted
	return doc
}

// Unmarshal populates a model from its portable document form. Unknown
// document keys are ignored, absent keys leave the struct's defaults in
// place, and malformed date or decimal values degrade to their raw
// string with a warning. It never fails.
func Unmarshal(data map[string]any, m Model) {
	unmarshalWith(zlog.Logger, data, m)
}

func unmarshalWith(log zerolog.Logger, data map[string]any, m Model) {
	for _, f := range m.Schema() {
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		f.decode(v, log)
	}

	base := m.Base()
	if v, ok := data[DocTypeFieldName].(string); ok {
		base.Type = v
	}
	if v, ok := data[ChannelsFieldName].([]any); ok {
		channels := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				channels = append(channels, s)
			}
		}
		base.Channels = channels
	}
	if v, ok := data[createdFieldName]; ok {
		base.Created.fromPortable(createdFieldName, v, log)
	}
	if v, ok := data[updatedFieldName]; ok {
		base.Updated.fromPortable(updatedFieldName, v, log)
	}
	if v, ok := data[DeletedFieldName].(bool); ok {
		base.Deleted = v
	}
}

// marshalNested serializes an embedded document: declared fields plus
// its own uid, nothing else. Nested documents have no revision, channel
// set or discriminator of their own.
func marshalNested(m NestedModel) map[string]any {
	doc := make(map[string]any)
	for _, f := range m.Schema() {
		doc[f.Name] = f.encode()
	}
	doc[uidFieldName] = m.Base().EnsureUID()
	return doc
}

func unmarshalNested(data map[string]any, m NestedModel, log zerolog.Logger) {
	for _, f := range m.Schema() {
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		f.decode(v, log)
	}
	if v, ok := data[uidFieldName].(string); ok {
		m.Base().UID = v
	}
}
