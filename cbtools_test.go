package cbtools_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	cbtools "github.com/smarttradeapp/cbtools.go"
	"github.com/smarttradeapp/cbtools.go/internal/fakesg"
)

// payment is an embedded sub-record of a job.
type payment struct {
	cbtools.NestedDocument
	Amount cbtools.Decimal
}

func newPayment() *payment {
	p := &payment{}
	p.UIDPrefix = "pmt"
	return p
}

func (p *payment) Schema() []cbtools.Field {
	return []cbtools.Field{
		cbtools.DecimalField("amount", &p.Amount),
	}
}

type customer struct {
	cbtools.Document
	Name string
}

func newCustomer() *customer {
	c := &customer{}
	c.UIDPrefix = "cst"
	c.Type = "customer"
	return c
}

func (c *customer) Schema() []cbtools.Field {
	return []cbtools.Field{
		cbtools.StringField("name", &c.Name),
	}
}

type job struct {
	cbtools.Document
	Title       string
	Num         int64
	Active      bool
	Amount      cbtools.Decimal
	Stamp       cbtools.DateTime
	Tags        []string
	CustomerUID string
	Payments    []*payment

	// Customer is resolved by LoadRelated from CustomerUID; it is not
	// part of the schema.
	Customer *customer
}

func newJob() *job {
	j := &job{}
	j.UIDPrefix = "job"
	j.Type = "job"
	return j
}

func (j *job) Schema() []cbtools.Field {
	return []cbtools.Field{
		cbtools.StringField("title", &j.Title),
		cbtools.IntField("num", &j.Num),
		cbtools.BoolField("active", &j.Active),
		cbtools.DecimalField("amount", &j.Amount),
		cbtools.TimeField("stamp", &j.Stamp),
		cbtools.StringListField("tags", &j.Tags),
		cbtools.StringField("customer_uid", &j.CustomerUID),
		cbtools.NestedField("payments", &j.Payments, newPayment),
	}
}

func newTestDB(t *testing.T) (*cbtools.DB, *fakesg.Server) {
	t.Helper()
	srv := fakesg.New()
	t.Cleanup(srv.Close)

	nop := zerolog.Nop()
	db, err := cbtools.New(cbtools.Config{
		GatewayURL:    srv.URL(),
		AdminURL:      srv.URL(),
		ViewURL:       srv.URL(),
		Bucket:        "test_bucket",
		Username:      "admin",
		Password:      "secret",
		GuestUsername: "guest",
		GuestPassword: "guest",
		Logger:        &nop,
	})
	require.NoError(t, err)
	return db, srv
}

func savedJob(t *testing.T, db *cbtools.DB, title string) *job {
	t.Helper()
	j := newJob()
	j.AppendChannel("public")
	j.Title = title
	require.NoError(t, db.Save(j))
	return j
}
