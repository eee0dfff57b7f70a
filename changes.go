package cbtools

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Change is one entry of the gateway's changes feed.
type Change struct {
	Seq     json.RawMessage `json:"seq"`
	ID      string          `json:"id"`
	Deleted bool            `json:"deleted,omitempty"`
	Changes []struct {
		Rev string `json:"rev"`
	} `json:"changes"`
}

// ChangesResult is one batch of changes plus the sequence to resume
// from.
type ChangesResult struct {
	Results []Change `json:"results"`
	LastSeq string   `json:"last_seq"`
}

// ChangesQuery selects a slice of the changes feed.
type ChangesQuery struct {
	// Since resumes the feed after a previously returned LastSeq.
	Since string
	Limit int
	// Channels restricts the feed to documents in any of the given
	// channels, via the gateway's bychannel filter.
	Channels []string
}

func (q ChangesQuery) values() url.Values {
	params := url.Values{}
	if q.Since != "" {
		params.Set("since", q.Since)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if len(q.Channels) > 0 {
		params.Set("filter", "sync_gateway/bychannel")
		params.Set("channels", strings.Join(q.Channels, ","))
	}
	return params
}

// Changes fetches one batch of the changes feed. Callers poll by
// passing the returned LastSeq as the next query's Since.
func (g *Gateway) Changes(q ChangesQuery) (ChangesResult, error) {
	u := fmt.Sprintf("%s/%s/_changes?%s", g.baseURL, g.bucket, q.values().Encode())
	status, body, err := g.do("changes", http.MethodGet, u, nil)
	if err != nil {
		return ChangesResult{}, err
	}
	if status != http.StatusOK {
		return ChangesResult{}, &GatewayError{Op: "changes feed", StatusCode: status, Body: string(body)}
	}

	var result ChangesResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ChangesResult{}, fmt.Errorf("cbtools: decode changes response: %w", err)
	}
	return result, nil
}

// ChangesFeed is a continuous websocket subscription to the changes
// feed. Read batches with Next and Close when done; there is no
// automatic reconnection, a broken feed surfaces as an error from Next.
type ChangesFeed struct {
	conn *websocket.Conn
}

// ChangesFeed opens a websocket changes subscription. The query options
// are sent as the feed's opening message, per the gateway protocol.
func (g *Gateway) ChangesFeed(q ChangesQuery) (*ChangesFeed, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/_changes", g.baseURL, g.bucket))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	params := q.values()
	params.Set("feed", "websocket")
	u.RawQuery = params.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: g.client.Timeout,
	}
	if transport, ok := g.client.Transport.(*http.Transport); ok && transport.TLSClientConfig != nil {
		dialer.TLSClientConfig = transport.TLSClientConfig.Clone()
	}

	header := http.Header{}
	header.Set("Authorization", basicAuth(g.username, g.password))

	conn, resp, err := dialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &GatewayError{Op: "open changes feed", StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("cbtools: open changes feed: %w", err)
	}

	options := map[string]any{"feed": "websocket"}
	if q.Since != "" {
		options["since"] = q.Since
	}
	if len(q.Channels) > 0 {
		options["filter"] = "sync_gateway/bychannel"
		options["channels"] = strings.Join(q.Channels, ",")
	}
	if err := conn.WriteJSON(options); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cbtools: send changes feed options: %w", err)
	}

	return &ChangesFeed{conn: conn}, nil
}

// Next blocks until the gateway delivers the next batch of changes. An
// empty batch means the feed has caught up with the bucket.
func (f *ChangesFeed) Next() ([]Change, error) {
	var batch []Change
	if err := f.conn.ReadJSON(&batch); err != nil {
		return nil, fmt.Errorf("cbtools: read changes feed: %w", err)
	}
	return batch, nil
}

// SetDeadline bounds the next read on the feed.
func (f *ChangesFeed) SetDeadline(t time.Time) error {
	return f.conn.SetReadDeadline(t)
}

func (f *ChangesFeed) Close() error {
	return f.conn.Close()
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
