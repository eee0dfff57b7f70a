package cbtools_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbtools "github.com/smarttradeapp/cbtools.go"
)

func TestLoadMany(t *testing.T) {
	db, _ := newTestDB(t)

	a := savedJob(t, db, "a")
	b := savedJob(t, db, "b")

	jobs, err := cbtools.LoadMany(db, []string{a.UID, b.UID}, newJob)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Title)
	assert.Equal(t, "b", jobs[1].Title)

	_, err = cbtools.LoadMany(db, []string{a.UID, "job_gone"}, newJob)
	assert.ErrorIs(t, err, cbtools.ErrNotFound)
}

func TestLoadMapSkipsMissing(t *testing.T) {
	db, _ := newTestDB(t)

	a := savedJob(t, db, "a")

	m, err := cbtools.LoadMap(db, []string{a.UID, "job_gone"}, newJob)
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, "a", m[a.UID].Title)
}

func TestLoadRelatedSingleFetch(t *testing.T) {
	db, srv := newTestDB(t)

	// Three customers referenced by fifty jobs, with duplicates and one
	// job carrying no reference at all.
	customers := make([]*customer, 3)
	for i := range customers {
		c := newCustomer()
		c.AppendChannel("public")
		c.Name = fmt.Sprintf("customer %d", i)
		require.NoError(t, db.Save(c))
		customers[i] = c
	}

	jobs := make([]*job, 50)
	for i := range jobs {
		j := newJob()
		j.AppendChannel("public")
		j.Title = fmt.Sprintf("job %d", i)
		if i != 17 {
			j.CustomerUID = customers[i%3].UID
		}
		require.NoError(t, db.Save(j))
		jobs[i] = j
	}

	rel := cbtools.Relation[*job, *customer]{
		Key:    func(j *job) string { return j.CustomerUID },
		Assign: func(j *job, c *customer) { j.Customer = c },
		New:    newCustomer,
	}

	srv.ResetCalls()
	require.NoError(t, cbtools.LoadRelated(db, jobs, rel))
	assert.Equal(t, 1, srv.Calls("all_docs"),
		"relation resolution must batch into exactly one multi-get")

	for i, j := range jobs {
		if i == 17 {
			assert.Nil(t, j.Customer)
			continue
		}
		require.NotNil(t, j.Customer, "job %d", i)
		assert.Equal(t, customers[i%3].UID, j.Customer.UID)
		assert.Equal(t, customers[i%3].Name, j.Customer.Name)
	}
}

func TestLoadRelatedUnresolvedKeyAssignsNone(t *testing.T) {
	db, _ := newTestDB(t)

	j := savedJob(t, db, "orphan")
	j.CustomerUID = "cst_ghost"

	rel := cbtools.Relation[*job, *customer]{
		Key:    func(j *job) string { return j.CustomerUID },
		Assign: func(j *job, c *customer) { j.Customer = c },
		New:    newCustomer,
	}
	require.NoError(t, cbtools.LoadRelated(db, []*job{j}, rel))
	assert.Nil(t, j.Customer)
}

func TestQueryModels(t *testing.T) {
	db, _ := newTestDB(t)

	savedJob(t, db, "visible")
	c := newCustomer()
	c.AppendChannel("public")
	require.NoError(t, db.Save(c))

	jobs, err := cbtools.QueryModels(db, cbtools.ViewByChannel, []any{"public", "job"}, newJob)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "visible", jobs[0].Title)
}
