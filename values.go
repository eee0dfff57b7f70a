package cbtools

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DateTime wraps time.Time for timestamp fields. On the wire it is an
// RFC 3339 string. An incoming value that fails to parse is retained
// verbatim in Raw instead of failing the load.
type DateTime struct {
	Time time.Time
	Raw  string
}

// Now returns the current time as a DateTime.
func Now() DateTime {
	return DateTime{Time: time.Now().UTC()}
}

// NewDateTime wraps an existing time.Time.
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t}
}

func (d DateTime) IsZero() bool {
	return d.Raw == "" && d.Time.IsZero()
}

func (d DateTime) String() string {
	if d.Raw != "" {
		return d.Raw
	}
	return d.Time.Format(time.RFC3339Nano)
}

func (d DateTime) portable() any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func (d *DateTime) fromPortable(name string, v any, log zerolog.Logger) {
	if v == nil {
		*d = DateTime{}
		return
	}
	s, ok := v.(string)
	if !ok {
		log.Warn().Str("field", name).Interface("value", v).
			Msg("can not parse date (raw value used)")
		return
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		*d = DateTime{Raw: s}
		log.Warn().Str("field", name).Err(err).
			Msg("can not parse date (raw value used)")
		return
	}
	*d = DateTime{Time: t}
}

// Decimal is an exact-precision numeric field. It is serialized as a
// string, never as a float, so repeated round trips cannot drift. As
// with DateTime, an unparseable incoming value degrades to Raw.
type Decimal struct {
	Value decimal.Decimal
	Valid bool
	Raw   string
}

// NewDecimal parses s into a Decimal. An unparseable string yields an
// invalid Decimal.
func NewDecimal(s string) Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}
	}
	return Decimal{Value: v, Valid: true}
}

// DecimalFrom wraps an existing decimal value.
func DecimalFrom(v decimal.Decimal) Decimal {
	return Decimal{Value: v, Valid: true}
}

func (d Decimal) String() string {
	if d.Raw != "" {
		return d.Raw
	}
	if !d.Valid {
		return ""
	}
	return d.Value.String()
}

// Equal reports whether two decimals carry the same numeric value.
func (d Decimal) Equal(other Decimal) bool {
	if d.Raw != "" || other.Raw != "" {
		return d.Raw == other.Raw
	}
	if !d.Valid || !other.Valid {
		return d.Valid == other.Valid
	}
	return d.Value.Equal(other.Value)
}

func (d Decimal) portable() any {
	if d.Raw != "" {
		return d.Raw
	}
	if !d.Valid {
		return nil
	}
	return d.Value.String()
}

func (d *Decimal) fromPortable(name string, v any, log zerolog.Logger) {
	switch t := v.(type) {
	case nil:
		*d = Decimal{}
	case string:
		parsed, err := decimal.NewFromString(t)
		if err != nil {
			*d = Decimal{Raw: t}
			log.Warn().Str("field", name).Err(err).
				Msg("can not parse decimal (raw value used)")
			return
		}
		*d = Decimal{Value: parsed, Valid: true}
	case float64:
		*d = Decimal{Value: decimal.NewFromFloat(t), Valid: true}
	default:
		log.Warn().Str("field", name).Interface("value", v).
			Msg("can not parse decimal (raw value used)")
	}
}
