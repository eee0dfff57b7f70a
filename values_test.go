package cbtools_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	cbtools "github.com/smarttradeapp/cbtools.go"
)

func TestDateTime(t *testing.T) {
	assert.True(t, cbtools.DateTime{}.IsZero())
	assert.False(t, cbtools.Now().IsZero())

	d := cbtools.NewDateTime(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-05-01T12:00:00Z", d.String())

	raw := cbtools.DateTime{Raw: "not a date"}
	assert.False(t, raw.IsZero())
	assert.Equal(t, "not a date", raw.String())
}

func TestDecimal(t *testing.T) {
	d := cbtools.NewDecimal("10.50")
	assert.True(t, d.Valid)
	assert.Equal(t, "10.5", d.String())

	bad := cbtools.NewDecimal("nope")
	assert.False(t, bad.Valid)

	assert.True(t, cbtools.NewDecimal("1.10").Equal(cbtools.NewDecimal("1.1")))
	assert.False(t, cbtools.NewDecimal("1.10").Equal(cbtools.NewDecimal("1.11")))

	wrapped := cbtools.DecimalFrom(decimal.RequireFromString("3.14"))
	assert.True(t, wrapped.Valid)
	assert.Equal(t, "3.14", wrapped.String())
}

func TestDecimalExactStringSurvivesRoundTrips(t *testing.T) {
	// 0.1 is not representable as a float; the string form must not
	// drift over repeated marshal cycles.
	j := newJob()
	j.AppendChannel("public")
	j.Amount = cbtools.NewDecimal("0.1")

	for i := 0; i < 5; i++ {
		doc := cbtools.Marshal(j)
		assert.Equal(t, "0.1", doc["amount"])
		next := newJob()
		cbtools.Unmarshal(doc, next)
		j = next
	}
}
