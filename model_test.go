package cbtools_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	cbtools "github.com/smarttradeapp/cbtools.go"
)

func TestEnsureUID(t *testing.T) {
	j := newJob()
	assert.True(t, j.IsNew())

	uid := j.EnsureUID()
	assert.True(t, strings.HasPrefix(uid, "job_"))
	assert.False(t, j.IsNew())

	// Immutable once assigned.
	assert.Equal(t, uid, j.EnsureUID())
}

func TestEnsureUIDDefaultPrefix(t *testing.T) {
	var d cbtools.Document
	assert.True(t, strings.HasPrefix(d.EnsureUID(), "st_"))
}

func TestNewUIDUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		uid := cbtools.NewUID("st")
		_, dup := seen[uid]
		assert.False(t, dup, "duplicate uid %s", uid)
		seen[uid] = struct{}{}
	}
}

func TestAppendChannelDeduplicates(t *testing.T) {
	j := newJob()
	j.AppendChannel("foo")
	j.AppendChannel("bar")
	j.AppendChannel("foo")
	assert.Equal(t, []string{"foo", "bar"}, j.Channels)
	assert.True(t, j.HasChannel("bar"))
	assert.False(t, j.HasChannel("baz"))

	j.ClearChannels()
	assert.Empty(t, j.Channels)
}

func TestReferencesListHelpers(t *testing.T) {
	j := newJob()
	cbtools.AppendToReferences(&j.Tags, "one")
	cbtools.AppendToReferences(&j.Tags, "two")
	cbtools.AppendToReferences(&j.Tags, "one")
	assert.Equal(t, []string{"one", "two"}, j.Tags)

	cbtools.RemoveFromReferences(&j.Tags, "one")
	assert.Equal(t, []string{"two"}, j.Tags)

	cbtools.RemoveFromReferences(&j.Tags, "missing")
	assert.Equal(t, []string{"two"}, j.Tags)
}
