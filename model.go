package cbtools

import (
	"reflect"
	"strings"
)

// Model is any persistable document type: a struct embedding [Document]
// that declares its fields through Schema.
type Model interface {
	// Base exposes the embedded Document for uid, revision, channel and
	// lifecycle bookkeeping.
	Base() *Document
	// Schema returns the field descriptor table consulted by Marshal and
	// Unmarshal. Build it once per call with the XField constructors.
	Schema() []Field
}

// Document is the embeddable base of every persisted model. The zero
// value is a transient document: no uid, no revision, no channels.
type Document struct {
	// UID is the stable identifier, format "<prefix>_<short-id>".
	// Assigned lazily by EnsureUID and immutable afterwards.
	UID string
	// Rev is the opaque revision token returned by the gateway. It must
	// accompany every update after the first; a stale value makes the
	// next save fail with ConflictError.
	Rev string
	// Type is the discriminator recorded in every stored payload. Empty
	// means "derive from the Go type name", see DocTypeOf.
	Type string
	// UIDPrefix overrides DefaultUIDPrefix for ids minted by EnsureUID.
	UIDPrefix string
	// Channels is the document's ACL tag set. At least one entry is
	// required for a save to go through.
	Channels []string

	Created DateTime
	Updated DateTime
	// Deleted is the soft-delete flag. SoftDelete flips it and re-saves;
	// the document stays in the store.
	Deleted bool
}

func (d *Document) Base() *Document { return d }

// IsNew reports whether the document has not been assigned a uid yet.
func (d *Document) IsNew() bool { return d.UID == "" }

// EnsureUID returns the document's uid, minting one on first access.
func (d *Document) EnsureUID() string {
	if d.UID == "" {
		prefix := d.UIDPrefix
		if prefix == "" {
			prefix = DefaultUIDPrefix
		}
		d.UID = NewUID(prefix)
	}
	return d.UID
}

// AppendChannel adds a channel tag, keeping the set free of duplicates.
func (d *Document) AppendChannel(channel string) {
	d.Channels = appendUnique(d.Channels, channel)
}

// ClearChannels empties the channel set. The document can not be saved
// again until at least one channel is appended.
func (d *Document) ClearChannels() {
	d.Channels = nil
}

// HasChannel reports whether the document carries the given channel tag.
func (d *Document) HasChannel(channel string) bool {
	for _, ch := range d.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// DocTypeOf resolves a model's discriminator: the explicitly set Type,
// or the lowercased Go type name when unset.
func DocTypeOf(m Model) string {
	if t := m.Base().Type; t != "" {
		return t
	}
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}

// AppendToReferences adds a uid to a references list unless it is
// already present. References lists are the plain string-list fields
// that point at related documents.
func AppendToReferences(list *[]string, uid string) {
	*list = appendUnique(*list, uid)
}

// RemoveFromReferences drops a uid from a references list.
func RemoveFromReferences(list *[]string, uid string) {
	out := (*list)[:0]
	for _, v := range *list {
		if v != uid {
			out = append(out, v)
		}
	}
	*list = out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
