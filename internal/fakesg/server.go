// Package fakesg provides a fake Sync Gateway for tests. It keeps
// documents, principals and design documents in memory, counts the
// generation of every document to hand out revisions and reject stale
// writes with 409, and serves just enough of the _all_docs, _user,
// _session, _changes and view endpoints for the toolkit's test suite.
// Every handled request is recorded, so tests can assert exact call
// counts and ordering.
package fakesg

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

type storedDoc struct {
	gen  int
	rev  string
	body map[string]any
}

type storedUser struct {
	Name          string   `json:"name"`
	Email         string   `json:"email,omitempty"`
	Disabled      bool     `json:"disabled"`
	AdminChannels []string `json:"admin_channels"`
}

// Server is the fake gateway. All exported methods are safe for
// concurrent use.
type Server struct {
	mu      sync.Mutex
	docs    map[string]*storedDoc
	users   map[string]*storedUser
	designs map[string]json.RawMessage
	ops     []string

	lastViewQuery url.Values

	srv      *httptest.Server
	upgrader websocket.Upgrader
}

func New() *Server {
	s := &Server{
		docs:    make(map[string]*storedDoc),
		users:   make(map[string]*storedUser),
		designs: make(map[string]json.RawMessage),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the server's base address; point GatewayURL, AdminURL and
// ViewURL all at it.
func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// Calls reports how many requests hit the named operation since the
// last ResetCalls.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.ops {
		if o == op {
			n++
		}
	}
	return n
}

// CallLog returns the operations handled so far, in order.
func (s *Server) CallLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

// Doc returns a stored document body and its revision.
func (s *Server) Doc(uid string) (map[string]any, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[uid]
	if !ok {
		return nil, "", false
	}
	return d.body, d.rev, true
}

// SeedDoc plants a document directly, bypassing revision checks. Useful
// for planting _sync bookkeeping rows.
func (s *Server) SeedDoc(uid string, body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uid] = &storedDoc{gen: 1, rev: newRev(1), body: body}
}

// User returns a stored principal.
func (s *Server) User(name string) (Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if !ok {
		return Principal{}, false
	}
	return Principal{
		Name:     u.Name,
		Email:    u.Email,
		Disabled: u.Disabled,
		Channels: append([]string(nil), u.AdminChannels...),
	}, true
}

// Principal is the test-facing view of a stored user.
type Principal struct {
	Name     string
	Email    string
	Disabled bool
	Channels []string
}

// LastViewQuery returns the query parameters of the most recent view
// request.
func (s *Server) LastViewQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastViewQuery
}

func (s *Server) record(op string) {
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

func newRev(gen int) string {
	return fmt.Sprintf("%d-%08x", gen, rand.Uint32())
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	rest := parts[1:] // parts[0] is the bucket name

	switch {
	case rest[0] == "_all_docs":
		s.handleAllDocs(w, r)
	case rest[0] == "_user":
		s.handleUser(w, r, rest)
	case rest[0] == "_session":
		s.handleSession(w, r)
	case rest[0] == "_changes":
		s.handleChanges(w, r)
	case rest[0] == "_design" && len(rest) == 2:
		s.handleDesign(w, r, rest[1])
	case rest[0] == "_design" && len(rest) == 4 && rest[2] == "_view":
		s.handleView(w, r, rest[3])
	case len(rest) == 1:
		s.handleDoc(w, r, rest[0])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDoc(w http.ResponseWriter, r *http.Request, uid string) {
	switch r.Method {
	case http.MethodPut:
		s.record("save")
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error": "bad_request"}`, http.StatusBadRequest)
			return
		}
		incomingRev, _ := body["_rev"].(string)
		delete(body, "_rev")

		s.mu.Lock()
		existing, ok := s.docs[uid]
		if ok && existing.rev != incomingRev || !ok && incomingRev != "" {
			s.mu.Unlock()
			http.Error(w, `{"error": "conflict"}`, http.StatusConflict)
			return
		}
		gen := 1
		if ok {
			gen = existing.gen + 1
		}
		doc := &storedDoc{gen: gen, rev: newRev(gen), body: body}
		s.docs[uid] = doc
		s.mu.Unlock()

		writeJSON(w, http.StatusCreated, map[string]any{"id": uid, "ok": true, "rev": doc.rev})

	case http.MethodDelete:
		s.record("delete")
		rev := r.URL.Query().Get("rev")

		s.mu.Lock()
		existing, ok := s.docs[uid]
		if !ok {
			s.mu.Unlock()
			http.Error(w, `{"error": "not_found"}`, http.StatusNotFound)
			return
		}
		if existing.rev != rev {
			s.mu.Unlock()
			http.Error(w, `{"error": "conflict"}`, http.StatusConflict)
			return
		}
		delete(s.docs, uid)
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{"id": uid, "ok": true})

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleAllDocs(w http.ResponseWriter, r *http.Request) {
	s.record("all_docs")
	var req struct {
		Keys []string `json:"keys"`
	}
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &req)

	s.mu.Lock()
	keys := req.Keys
	if len(keys) == 0 {
		for uid := range s.docs {
			keys = append(keys, uid)
		}
		sort.Strings(keys)
	}
	rows := make([]map[string]any, 0, len(keys))
	for _, uid := range keys {
		doc, ok := s.docs[uid]
		if !ok {
			rows = append(rows, map[string]any{"id": uid, "error": "not_found"})
			continue
		}
		rows = append(rows, map[string]any{
			"id":    uid,
			"key":   uid,
			"value": map[string]any{"rev": doc.rev},
			"doc":   doc.body,
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request, rest []string) {
	name := ""
	if len(rest) > 1 {
		name = rest[1]
	}

	switch {
	case r.Method == http.MethodGet && name == "":
		s.record("get_users")
		s.mu.Lock()
		names := make([]string, 0, len(s.users))
		for n := range s.users {
			names = append(names, n)
		}
		s.mu.Unlock()
		sort.Strings(names)
		writeJSON(w, http.StatusOK, names)

	case r.Method == http.MethodPut:
		s.record("put_user " + name)
		var body struct {
			Email         string   `json:"email"`
			Disabled      bool     `json:"disabled"`
			AdminChannels []string `json:"admin_channels"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error": "bad_request"}`, http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.users[name] = &storedUser{
			Name:          name,
			Email:         body.Email,
			Disabled:      body.Disabled,
			AdminChannels: body.AdminChannels,
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true})

	case r.Method == http.MethodGet:
		s.record("get_user " + name)
		s.mu.Lock()
		u, ok := s.users[name]
		s.mu.Unlock()
		if !ok {
			http.Error(w, `{"error": "not_found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, u)

	case r.Method == http.MethodDelete:
		s.record("delete_user " + name)
		s.mu.Lock()
		_, ok := s.users[name]
		delete(s.users, name)
		s.mu.Unlock()
		if !ok {
			http.Error(w, `{"error": "not_found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.record("session")
	var body struct {
		Name string `json:"name"`
		TTL  int    `json:"ttl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, `{"error": "bad_request"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, ok := s.users[body.Name]
	s.mu.Unlock()
	if !ok {
		http.Error(w, `{"error": "not_found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  fmt.Sprintf("%08x%08x", rand.Uint32(), rand.Uint32()),
		"expires":     "2030-01-01T00:00:00Z",
		"cookie_name": "SyncGatewaySession",
	})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	s.record("changes")

	if r.URL.Query().Get("feed") == "websocket" {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// The client opens the feed with an options message.
		var options map[string]any
		if err := conn.ReadJSON(&options); err != nil {
			return
		}
		if err := conn.WriteJSON(s.changeEntries()); err != nil {
			return
		}
		// Caught up.
		_ = conn.WriteJSON([]any{})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}

	entries := s.changeEntries()
	writeJSON(w, http.StatusOK, map[string]any{
		"results":  entries,
		"last_seq": fmt.Sprintf("%d", len(entries)),
	})
}

func (s *Server) changeEntries() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	uids := make([]string, 0, len(s.docs))
	for uid := range s.docs {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	entries := make([]map[string]any, 0, len(uids))
	for i, uid := range uids {
		entries = append(entries, map[string]any{
			"seq":     i + 1,
			"id":      uid,
			"changes": []map[string]any{{"rev": s.docs[uid].rev}},
		})
	}
	return entries
}

func (s *Server) handleDesign(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	s.record("design")
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error": "bad_request"}`, http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.designs[name] = raw
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

// Design returns a published design document body.
func (s *Server) Design(name string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.designs[name]
	return raw, ok
}

// handleView simulates the by_channel and by_type map functions over
// the stored documents. Documents whose id carries the _sync prefix are
// always emitted, so tests can verify that clients filter them out.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request, view string) {
	s.record("view")

	var key any
	if raw := r.URL.Query().Get("key"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &key)
	}

	s.mu.Lock()
	s.lastViewQuery = r.URL.Query()
	uids := make([]string, 0, len(s.docs))
	for uid := range s.docs {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	rows := make([]map[string]any, 0)
	for _, uid := range uids {
		doc := s.docs[uid].body
		if strings.HasPrefix(uid, "_sync") {
			rows = append(rows, map[string]any{"id": uid, "key": key, "value": nil})
			continue
		}
		if deleted, _ := doc["st_deleted"].(bool); deleted {
			continue
		}
		if viewEmits(view, key, doc) {
			rows = append(rows, map[string]any{"id": uid, "key": key, "value": nil})
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"total_rows": len(rows), "rows": rows})
}

func viewEmits(view string, key any, doc map[string]any) bool {
	docType, _ := doc["doc_type"].(string)

	switch view {
	case "by_channel":
		pair, ok := key.([]any)
		if !ok || len(pair) != 2 {
			return false
		}
		channel, _ := pair[0].(string)
		wantType, _ := pair[1].(string)
		if docType != wantType {
			return false
		}
		channels, _ := doc["channels"].([]any)
		for _, ch := range channels {
			if ch == channel {
				return true
			}
		}
		return false

	case "by_type":
		wantType, _ := key.(string)
		return docType == wantType

	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
