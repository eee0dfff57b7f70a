package cbtools

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Gateway is the HTTP client for the Sync Gateway: per-document CRUD,
// bulk reads, and the administrative principal and session subsystem.
// It holds no state across calls beyond the pooled HTTP transport, so a
// single Gateway is safe for concurrent use. It never retries; retry
// policy belongs to the caller.
type Gateway struct {
	baseURL  string
	adminURL string
	bucket   string
	username string
	password string

	guestUsername string
	guestPassword string

	client  *http.Client
	log     zerolog.Logger
	metrics *gatewayMetrics
}

// NewGateway builds a Gateway from cfg. The underlying transport pools
// connections internally and verifies TLS certificates unless
// cfg.InsecureSkipVerify is set.
func NewGateway(cfg Config) *Gateway {
	cfg = cfg.withDefaults()

	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicit opt-in
		}
	}

	return &Gateway{
		baseURL:       cfg.GatewayURL,
		adminURL:      cfg.AdminURL,
		bucket:        cfg.Bucket,
		username:      cfg.Username,
		password:      cfg.Password,
		guestUsername: cfg.GuestUsername,
		guestPassword: cfg.GuestPassword,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		log:     *cfg.Logger,
		metrics: newGatewayMetrics(cfg.Metrics),
	}
}

// Row is one entry of a bulk read: either a document with its id and
// revision, or an error marker for an id absent from the store.
type Row struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value struct {
		Rev string `json:"rev"`
	} `json:"value"`
	Doc   map[string]any `json:"doc"`
	Error string         `json:"error"`
}

// Err returns nil for a document row, or an error wrapping ErrNotFound
// for an error row.
func (r Row) Err() error {
	if r.Error == "" {
		return nil
	}
	return fmt.Errorf("%w: %s (%s)", ErrNotFound, r.ID, r.Error)
}

// User is an administrative principal as reported by the gateway.
type User struct {
	Name          string   `json:"name"`
	Email         string   `json:"email,omitempty"`
	Disabled      bool     `json:"disabled"`
	AdminChannels []string `json:"admin_channels"`
	AllChannels   []string `json:"all_channels,omitempty"`
}

// UserOptions carries the writable attributes of a principal.
type UserOptions struct {
	Email    string
	Password string
	Channels []string
	Disabled bool
}

// Session is an authenticated gateway session for a principal.
type Session struct {
	ID         string `json:"session_id"`
	Expires    string `json:"expires"`
	CookieName string `json:"cookie_name"`
}

// AllDocs bulk-fetches documents by id. An empty id list returns an
// empty result without touching the network. Rows come back in request
// order; missing ids are error rows, not a whole-call failure. Internal
// bookkeeping rows are not filtered here, that is the caller's job.
func (g *Gateway) AllDocs(ids []string) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	u := fmt.Sprintf("%s/%s/_all_docs?include_docs=true", g.baseURL, g.bucket)
	status, body, err := g.do("all_docs", http.MethodPost, u, map[string]any{"keys": ids})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, &GatewayError{Op: "bulk get", StatusCode: status, Body: string(body)}
	}

	var resp struct {
		Rows []Row `json:"rows"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("cbtools: decode bulk get response: %w", err)
	}
	return resp.Rows, nil
}

// SaveDocument PUTs doc under uid. A non-empty rev is attached so the
// gateway can detect a stale write: a 409 comes back as *ConflictError,
// any other non-2xx as *GatewayError. On success the new revision token
// is returned and must be stored back on the caller's model.
func (g *Gateway) SaveDocument(uid string, doc map[string]any, rev string) (string, error) {
	if rev != "" {
		doc[revFieldName] = rev
	}

	u := fmt.Sprintf("%s/%s/%s", g.baseURL, g.bucket, url.PathEscape(uid))
	status, body, err := g.do("save", http.MethodPut, u, doc)
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusConflict:
		g.log.Debug().Str("uid", uid).Str("rev", rev).Msg("revision conflict on save")
		return "", &ConflictError{UID: uid, Rev: rev}
	case status != http.StatusOK && status != http.StatusCreated:
		g.log.Error().Int("status", status).Str("uid", uid).Str("rev", rev).
			Msg("error on document save")
		return "", &GatewayError{Op: "save document " + uid, StatusCode: status, Body: string(body)}
	}

	var resp struct {
		Rev string `json:"rev"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("cbtools: decode save response: %w", err)
	}
	return resp.Rev, nil
}

// DeleteDocument physically removes a document. Application code soft
// deletes instead; this is for housekeeping jobs purging documents that
// have been soft-deleted long enough.
func (g *Gateway) DeleteDocument(uid, rev string) error {
	u := fmt.Sprintf("%s/%s/%s?rev=%s", g.baseURL, g.bucket, url.PathEscape(uid), url.QueryEscape(rev))
	status, body, err := g.do("delete", http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &GatewayError{Op: "delete document " + uid, StatusCode: status, Body: string(body)}
	}
	return nil
}

// PutUser creates or updates a principal. The public channel is always
// unioned into the channel set, so every principal can read documents
// shared with everyone.
func (g *Gateway) PutUser(username string, opts UserOptions) error {
	payload := map[string]any{
		"admin_channels": appendUnique(append([]string(nil), opts.Channels...), ChannelPublic),
		"disabled":       opts.Disabled,
	}
	if opts.Email != "" {
		payload["email"] = opts.Email
	}
	if opts.Password != "" {
		payload["password"] = opts.Password
	}

	status, body, err := g.do("put_user", http.MethodPut, g.userURL(username), payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &GatewayError{Op: "create user " + username, StatusCode: status, Body: string(body)}
	}
	return nil
}

// GetUser reads one principal.
func (g *Gateway) GetUser(username string) (User, error) {
	status, body, err := g.do("get_user", http.MethodGet, g.userURL(username), nil)
	if err != nil {
		return User{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return User{}, &GatewayError{Op: "get user " + username, StatusCode: status, Body: string(body)}
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return User{}, fmt.Errorf("cbtools: decode user response: %w", err)
	}
	if u.Name == "" {
		u.Name = username
	}
	return u, nil
}

// GetUserNames lists the names of all principals in the bucket.
func (g *Gateway) GetUserNames() ([]string, error) {
	u := fmt.Sprintf("%s/%s/_user/", g.adminURL, g.bucket)
	status, body, err := g.do("get_users", http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &GatewayError{Op: "list users", StatusCode: status, Body: string(body)}
	}

	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		return nil, fmt.Errorf("cbtools: decode user list: %w", err)
	}
	return names, nil
}

// GetUsers reads every principal in the bucket. The gateway only lists
// names, so this fans out one read per principal.
func (g *Gateway) GetUsers() ([]User, error) {
	names, err := g.GetUserNames()
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(names))
	for _, name := range names {
		u, err := g.GetUser(name)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// DeleteUser removes a principal.
func (g *Gateway) DeleteUser(username string) error {
	status, body, err := g.do("delete_user", http.MethodDelete, g.userURL(username), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &GatewayError{Op: "delete user " + username, StatusCode: status, Body: string(body)}
	}
	return nil
}

// ChangeUsername moves a principal to a new name, carrying its channel
// set over. It is a no-op returning false when the names are equal. The
// new principal is created before the old one is deleted, so a failure
// half way leaves at most a duplicate, never a loss of access.
func (g *Gateway) ChangeUsername(oldName, newName, password string) (bool, error) {
	if oldName == newName {
		return false, nil
	}

	existing, err := g.GetUser(oldName)
	if err != nil {
		return false, err
	}
	err = g.PutUser(newName, UserOptions{
		Email:    newName,
		Password: password,
		Channels: existing.AdminChannels,
	})
	if err != nil {
		return false, err
	}
	if err := g.DeleteUser(oldName); err != nil {
		return false, err
	}
	return true, nil
}

// AppendChannels grants channels to a principal, read-modify-write.
func (g *Gateway) AppendChannels(username string, channels ...string) error {
	existing, err := g.GetUser(username)
	if err != nil {
		return err
	}
	merged := append([]string(nil), existing.AdminChannels...)
	for _, ch := range channels {
		merged = appendUnique(merged, ch)
	}
	return g.PutUser(username, UserOptions{
		Email:    existing.Email,
		Channels: merged,
		Disabled: existing.Disabled,
	})
}

// RemoveChannels revokes channels from a principal, read-modify-write.
// The public channel is re-injected by PutUser even if named here.
func (g *Gateway) RemoveChannels(username string, channels ...string) error {
	existing, err := g.GetUser(username)
	if err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		drop[ch] = struct{}{}
	}
	kept := make([]string, 0, len(existing.AdminChannels))
	for _, ch := range existing.AdminChannels {
		if _, gone := drop[ch]; !gone {
			kept = append(kept, ch)
		}
	}
	return g.PutUser(username, UserOptions{
		Email:    existing.Email,
		Channels: kept,
		Disabled: existing.Disabled,
	})
}

// CreateSession requests an authenticated session for a principal. A
// zero ttl leaves the gateway's default expiry in place.
func (g *Gateway) CreateSession(username string, ttl time.Duration) (Session, error) {
	payload := map[string]any{"name": username}
	if ttl > 0 {
		payload["ttl"] = int(ttl.Seconds())
	}

	u := fmt.Sprintf("%s/%s/_session", g.adminURL, g.bucket)
	status, body, err := g.do("create_session", http.MethodPost, u, payload)
	if err != nil {
		return Session{}, err
	}
	if status != http.StatusOK {
		return Session{}, &GatewayError{Op: "create session for " + username, StatusCode: status, Body: string(body)}
	}

	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("cbtools: decode session response: %w", err)
	}
	return s, nil
}

// EnsureAdminUser provisions the configured administrative principal
// with access to every channel.
func (g *Gateway) EnsureAdminUser() error {
	return g.PutUser(g.username, UserOptions{
		Email:    g.username,
		Password: g.password,
		Channels: []string{"*"},
	})
}

// EnsureGuestUser provisions the configured guest principal, which only
// sees publicly shared documents.
func (g *Gateway) EnsureGuestUser() error {
	return g.PutUser(g.guestUsername, UserOptions{
		Email:    g.guestUsername,
		Password: g.guestPassword,
		Channels: []string{ChannelPublic},
	})
}

func (g *Gateway) userURL(username string) string {
	return fmt.Sprintf("%s/%s/_user/%s", g.adminURL, g.bucket, url.PathEscape(username))
}

// do runs one HTTP exchange: marshal the payload, attach basic auth,
// read the whole body. Transport failures come back as errors; HTTP
// status handling stays at the call site.
func (g *Gateway) do(op, method, u string, payload any) (int, []byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("cbtools: marshal %s payload: %w", op, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.username, g.password)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.metrics.observe(op, 0, time.Since(start))
		return 0, nil, fmt.Errorf("cbtools: %s request: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	g.metrics.observe(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return 0, nil, fmt.Errorf("cbtools: read %s response: %w", op, err)
	}

	g.log.Debug().Str("op", op).Str("method", method).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).Msg("gateway request")
	return resp.StatusCode, body, nil
}
