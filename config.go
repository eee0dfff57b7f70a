package cbtools

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config is the explicit process-wide handle shared by the gateway and
// view clients. Construct it once at startup, either directly or with
// LoadConfig, and pass it to New.
type Config struct {
	// GatewayURL is the Sync Gateway public endpoint, e.g.
	// "http://localhost:4984". Document reads and writes go here.
	GatewayURL string
	// AdminURL is the Sync Gateway admin endpoint, e.g.
	// "http://localhost:4985". Principal and session management go here.
	AdminURL string
	// ViewURL is the Couchbase views REST endpoint, e.g.
	// "http://localhost:8092". Secondary-index queries go here.
	ViewURL string

	Bucket string
	// DesignDoc names the design document holding the views.
	DesignDoc string

	// Username and Password are the administrative credentials used for
	// basic auth against the gateway. The same principal is provisioned
	// by EnsureAdminUser.
	Username string
	Password string
	// GuestUsername and GuestPassword name the principal provisioned by
	// EnsureGuestUser, which only sees the public channel.
	GuestUsername string
	GuestPassword string

	// Stale is the default index staleness for view queries. StaleOK
	// trades freshness for throughput and is the default.
	Stale Stale

	// Timeout bounds every HTTP call. Zero means 10 seconds.
	Timeout time.Duration
	// InsecureSkipVerify disables TLS certificate validation. Leave it
	// off outside of development setups.
	InsecureSkipVerify bool

	// Logger receives request traces and marshaling degradation
	// warnings. Nil means a timestamped stderr logger.
	Logger *zerolog.Logger
	// Metrics, when non-nil, registers per-operation request counters
	// and latency histograms.
	Metrics prometheus.Registerer
}

const defaultTimeout = 10 * time.Second

func (c *Config) withDefaults() Config {
	out := *c
	if out.DesignDoc == "" {
		out.DesignDoc = "cbtools"
	}
	if out.Stale == "" {
		out.Stale = StaleOK
	}
	if out.Timeout == 0 {
		out.Timeout = defaultTimeout
	}
	if out.Logger == nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		out.Logger = &l
	}
	return out
}

func (c *Config) validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("cbtools: gateway url not set")
	}
	if c.AdminURL == "" {
		return fmt.Errorf("cbtools: admin url not set")
	}
	if c.Bucket == "" {
		return fmt.Errorf("cbtools: bucket not set")
	}
	return nil
}

// LoadConfig reads a Config from an optional yaml file and CBTOOLS_*
// environment variables. Environment variables win over the file; both
// win over the built-in defaults. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("cbtools")
	v.AutomaticEnv()

	v.SetDefault("gateway_url", "http://localhost:4984")
	v.SetDefault("admin_url", "http://localhost:4985")
	v.SetDefault("view_url", "http://localhost:8092")
	v.SetDefault("design_doc", "cbtools")
	v.SetDefault("stale", string(StaleOK))
	v.SetDefault("timeout", defaultTimeout)
	v.SetDefault("insecure_skip_verify", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("cbtools: read config: %w", err)
		}
	}

	return Config{
		GatewayURL:         v.GetString("gateway_url"),
		AdminURL:           v.GetString("admin_url"),
		ViewURL:            v.GetString("view_url"),
		Bucket:             v.GetString("bucket"),
		DesignDoc:          v.GetString("design_doc"),
		Username:           v.GetString("username"),
		Password:           v.GetString("password"),
		GuestUsername:      v.GetString("guest_username"),
		GuestPassword:      v.GetString("guest_password"),
		Stale:              Stale(v.GetString("stale")),
		Timeout:            v.GetDuration("timeout"),
		InsecureSkipVerify: v.GetBool("insecure_skip_verify"),
	}, nil
}
