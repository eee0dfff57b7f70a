package cbtools

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Stale controls whether a view query may serve a slightly out-of-date
// index for lower latency, or must wait for the index to catch up.
type Stale string

const (
	// StaleOK serves whatever the index currently holds. Default.
	StaleOK Stale = "ok"
	// StaleFalse forces an index update before answering.
	StaleFalse Stale = "false"
	// StaleUpdateAfter answers from the current index and triggers an
	// update afterwards.
	StaleUpdateAfter Stale = "update_after"
)

// Canonical views shipped with the toolkit. by_channel is keyed by
// [channel, doc_type], by_type by doc_type alone, and deleted_documents
// by the soft-delete date for housekeeping purges.
const (
	ViewByChannel        = "by_channel"
	ViewByType           = "by_type"
	ViewDeletedDocuments = "deleted_documents"
)

// syncDocPrefix marks the gateway's internal bookkeeping documents,
// which must never surface through queries.
const syncDocPrefix = "_sync"

// ViewQuery is a full query specification for range and paging
// scenarios. For plain key lookups use QueryKeys instead.
type ViewQuery struct {
	// Key restricts the query to one exact key: a composite like
	// []any{"public", "job"} for by_channel, or a plain string for
	// by_type.
	Key any
	// StartKey and EndKey bound a range scan.
	StartKey   any
	EndKey     any
	Limit      int
	Skip       int
	Descending bool
	// Stale overrides the client's default staleness when non-empty.
	Stale Stale
}

// ViewClient queries the precomputed secondary indexes over a
// connection to the underlying store, separate from the document
// gateway. It returns document identifiers only; materializing objects
// is the bulk loader's job, which keeps index scans cheap.
type ViewClient struct {
	baseURL  string
	bucket   string
	design   string
	username string
	password string
	stale    Stale

	client *http.Client
	log    zerolog.Logger
}

// NewViewClient builds a ViewClient from cfg.
func NewViewClient(cfg Config) *ViewClient {
	cfg = cfg.withDefaults()

	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicit opt-in
		}
	}

	return &ViewClient{
		baseURL:  cfg.ViewURL,
		bucket:   cfg.Bucket,
		design:   cfg.DesignDoc,
		username: cfg.Username,
		password: cfg.Password,
		stale:    cfg.Stale,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		log: *cfg.Logger,
	}
}

// QueryKeys returns the ids of documents indexed under the given exact
// key, in index order, with internal bookkeeping rows filtered out.
func (vc *ViewClient) QueryKeys(view string, key any) ([]string, error) {
	return vc.Query(view, ViewQuery{Key: key})
}

// Query runs a full query specification against a named view.
func (vc *ViewClient) Query(view string, q ViewQuery) ([]string, error) {
	params := url.Values{}

	stale := q.Stale
	if stale == "" {
		stale = vc.stale
	}
	params.Set("stale", string(stale))

	if q.Key != nil {
		raw, err := json.Marshal(q.Key)
		if err != nil {
			return nil, fmt.Errorf("cbtools: marshal view key: %w", err)
		}
		params.Set("key", string(raw))
	}
	if q.StartKey != nil {
		raw, err := json.Marshal(q.StartKey)
		if err != nil {
			return nil, fmt.Errorf("cbtools: marshal view startkey: %w", err)
		}
		params.Set("startkey", string(raw))
	}
	if q.EndKey != nil {
		raw, err := json.Marshal(q.EndKey)
		if err != nil {
			return nil, fmt.Errorf("cbtools: marshal view endkey: %w", err)
		}
		params.Set("endkey", string(raw))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		params.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Descending {
		params.Set("descending", "true")
	}

	u := fmt.Sprintf("%s/%s/_design/%s/_view/%s?%s",
		vc.baseURL, vc.bucket, vc.design, view, params.Encode())

	body, err := vc.get(u)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Rows []struct {
			ID string `json:"id"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("cbtools: decode view response: %w", err)
	}

	ids := make([]string, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if strings.HasPrefix(row.ID, syncDocPrefix) {
			continue
		}
		ids = append(ids, row.ID)
	}
	vc.log.Debug().Str("view", view).Int("rows", len(ids)).Msg("view query")
	return ids, nil
}

// InstallViews publishes the design document from a directory of map
// definitions: every <name>.js file becomes a view, and a companion
// <name>_reduce.js, when present, becomes its reduce function. The
// companion is an optional resource, its absence is not an error.
func (vc *ViewClient) InstallViews(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cbtools: read views directory: %w", err)
	}

	views := make(map[string]map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".js") || strings.HasSuffix(name, "_reduce.js") {
			continue
		}

		mapSrc, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("cbtools: read view definition: %w", err)
		}
		viewName := strings.TrimSuffix(name, ".js")
		views[viewName] = map[string]string{"map": string(mapSrc)}

		reduceSrc, ok, err := optionalFile(filepath.Join(dir, viewName+"_reduce.js"))
		if err != nil {
			return fmt.Errorf("cbtools: read reduce definition: %w", err)
		}
		if ok {
			views[viewName]["reduce"] = reduceSrc
		}
	}
	if len(views) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"views": views})
	if err != nil {
		return fmt.Errorf("cbtools: marshal design document: %w", err)
	}

	u := fmt.Sprintf("%s/%s/_design/%s", vc.baseURL, vc.bucket, vc.design)
	req, err := http.NewRequest(http.MethodPut, u, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(vc.username, vc.password)

	resp, err := vc.client.Do(req)
	if err != nil {
		return fmt.Errorf("cbtools: publish design document: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &GatewayError{Op: "publish design document", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	vc.log.Info().Int("views", len(views)).Str("design", vc.design).Msg("published design document")
	return nil
}

// optionalFile reads a companion resource that may legitimately be
// absent: (content, false, nil) distinguishes absence from a real read
// failure.
func optionalFile(path string) (string, bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

func (vc *ViewClient) get(u string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(vc.username, vc.password)

	resp, err := vc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cbtools: view request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cbtools: read view response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{Op: "view query", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
