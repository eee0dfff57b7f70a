package cbtools

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DB is the toolkit's main handle, composing the document gateway and
// the view client. Construct one at process start and share it; it is
// safe for concurrent use and has no teardown beyond letting the HTTP
// transports idle out.
type DB struct {
	gateway *Gateway
	views   *ViewClient
	log     zerolog.Logger
}

// New validates cfg and builds a DB.
func New(cfg Config) (*DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &DB{
		gateway: NewGateway(cfg),
		views:   NewViewClient(cfg),
		log:     *cfg.Logger,
	}, nil
}

// Gateway exposes the underlying gateway client for administrative
// principal and session work.
func (db *DB) Gateway() *Gateway { return db.gateway }

// Views exposes the underlying view client for index queries.
func (db *DB) Views() *ViewClient { return db.views }

// Save persists a model. A transient model gets a uid and its created
// timestamp; a persisted one must still carry the revision of its last
// load, otherwise the gateway answers with a ConflictError and the
// caller decides whether to reload and retry. An empty channel set
// fails with a ValidationError before any network call.
func (db *DB) Save(m Model) error {
	if isNestedModel(m) {
		return &ValidationError{Reason: "this object is not supposed to be saved, it is nested"}
	}

	base := m.Base()
	if len(base.Channels) == 0 {
		return &ValidationError{Reason: "empty channels list can not be saved"}
	}

	base.EnsureUID()
	base.Updated = Now()
	if base.Created.IsZero() {
		base.Created = base.Updated
	}

	rev, err := db.gateway.SaveDocument(base.UID, Marshal(m), base.Rev)
	if err != nil {
		return err
	}
	base.Rev = rev
	return nil
}

// Load populates m from the stored document with the given uid. The uid
// and revision are captured from the bulk-get row, not from the body.
// An absent id fails with an error wrapping ErrNotFound.
func (db *DB) Load(uid string, m Model) error {
	if isNestedModel(m) {
		return &ValidationError{Reason: "this object is not supposed to be loaded, it is nested"}
	}

	rows, err := db.gateway.AllDocs([]string{uid})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	return db.fromRow(rows[0], m)
}

// SoftDelete marks a model deleted and re-saves it. The document stays
// in the store, loadable by uid, with the st_deleted flag set; nothing
// is ever physically removed by this layer.
func (db *DB) SoftDelete(m Model) error {
	m.Base().Deleted = true
	return db.Save(m)
}

func (db *DB) fromRow(row Row, m Model) error {
	if err := row.Err(); err != nil {
		return err
	}
	unmarshalWith(db.log, row.Doc, m)
	base := m.Base()
	base.UID = row.ID
	base.Rev = row.Value.Rev
	return nil
}
