package transport

import (
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/temoto/c2link/helpers"
)

const (
	DefaultDriver               = DriverGomqtt
	DefaultKeepalive            = 30 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultNetworkTimeout       = 10 * time.Second
	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultSubscriptionBuffer   = 64
	DefaultTLSPort              = "8883"
	DefaultPlainPort            = "1883"
)

// Config is `transport` block of c2link config file.
type Config struct { //nolint:maligned
	BrokerURL            string   `hcl:"broker_url"`
	Driver               string   `hcl:"driver"`
	ClientID             string   `hcl:"client_id"`
	Username             string   `hcl:"username"`
	Password             string   `hcl:"password"`
	TLSEnable            bool     `hcl:"tls_enable"`
	TLSCAFile            string   `hcl:"tls_ca_file"`
	TLSCertFile          string   `hcl:"tls_cert_file"`
	TLSKeyFile           string   `hcl:"tls_key_file"`
	TLSVersions          []string `hcl:"tls_versions"`
	KeepaliveSec         int      `hcl:"keepalive_sec"`
	ConnectTimeoutSec    int      `hcl:"connect_timeout_sec"`
	NetworkTimeoutSec    int      `hcl:"network_timeout_sec"`
	ReconnectDelaySec    int      `hcl:"reconnect_delay_sec"`
	MaxReconnectAttempts int      `hcl:"max_reconnect_attempts"`
	SubscriptionBuffer   int      `hcl:"subscription_buffer"`
	TopicPrefix          string   `hcl:"topic_prefix"`
	LogDebug             bool     `hcl:"log_debug"`
}

// Options are validated runtime settings of Manager.
type Options struct {
	BrokerURL            string
	Driver               string
	ClientID             string
	Username             string
	Password             string
	TLS                  *tls.Config
	Keepalive            time.Duration
	ConnectTimeout       time.Duration
	NetworkTimeout       time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	SubscriptionBuffer   int

	// Broker for DriverMem.
	Mem *MemBroker
}

// Options reads TLS files, no network IO.
func (c *Config) Options() (Options, error) { return c.OptionsWithBroker(nil) }

// OptionsWithBroker mem is used when driver=mem, e.g. for in-process simulation.
func (c *Config) OptionsWithBroker(mem *MemBroker) (Options, error) {
	opt := Options{
		Mem:                  mem,
		BrokerURL:            c.BrokerURL,
		Driver:               c.Driver,
		ClientID:             c.ClientID,
		Username:             c.Username,
		Password:             c.Password,
		Keepalive:            helpers.IntSecondDefault(c.KeepaliveSec, DefaultKeepalive),
		ConnectTimeout:       helpers.IntSecondDefault(c.ConnectTimeoutSec, DefaultConnectTimeout),
		NetworkTimeout:       helpers.IntSecondDefault(c.NetworkTimeoutSec, DefaultNetworkTimeout),
		ReconnectDelay:       helpers.IntSecondDefault(c.ReconnectDelaySec, DefaultReconnectDelay),
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		SubscriptionBuffer:   c.SubscriptionBuffer,
	}
	if c.TLSEnable {
		tc, err := c.tlsConfig()
		if err != nil {
			return Options{}, errors.Annotate(err, "transport tls")
		}
		opt.TLS = tc
	}
	return opt, opt.normalize()
}

func (c *Config) tlsConfig() (*tls.Config, error) {
	lo, hi, err := parseTLSVersions(c.TLSVersions)
	if err != nil {
		return nil, err
	}
	tc := &tls.Config{MinVersion: lo, MaxVersion: hi}
	if c.TLSCAFile != "" {
		pem, err := ioutil.ReadFile(c.TLSCAFile)
		if err != nil {
			return nil, errors.Annotate(err, "tls_ca_file")
		}
		tc.RootCAs = x509.NewCertPool()
		if !tc.RootCAs.AppendCertsFromPEM(pem) {
			return nil, errors.NotValidf("tls_ca_file=%s no certificates", c.TLSCAFile)
		}
	}
	if c.TLSCertFile != "" || c.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return nil, errors.Annotate(err, "tls client certificate")
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

var tlsVersions = map[string]uint16{
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

// Empty list means TLS 1.3 only.
func parseTLSVersions(names []string) (lo, hi uint16, err error) {
	if len(names) == 0 {
		return tls.VersionTLS13, tls.VersionTLS13, nil
	}
	for _, name := range names {
		v, ok := tlsVersions[name]
		if !ok {
			return 0, 0, errors.NotValidf("tls_versions item=%s", name)
		}
		if lo == 0 || v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, nil
}

func (opt *Options) normalize() error {
	if opt.Driver == "" {
		opt.Driver = DefaultDriver
	}
	if _, ok := drivers[opt.Driver]; !ok {
		return errors.NotValidf("transport driver=%s", opt.Driver)
	}
	if opt.Driver == DriverMem {
		if opt.Mem == nil {
			return errors.NotValidf("transport driver=mem without broker")
		}
	} else {
		u, err := url.ParseRequestURI(opt.BrokerURL)
		if err != nil {
			return errors.Annotatef(err, "config error transport broker_url=%s", opt.BrokerURL)
		}
		if u.User != nil && opt.Username == "" && opt.Password == "" {
			opt.Username = u.User.Username()
			opt.Password, _ = u.User.Password()
			u.User = nil
		}
		switch strings.ToLower(u.Scheme) {
		case "tcp", "mqtt":
			if opt.TLS != nil {
				u.Scheme = "tls"
			}
		case "tls", "ssl", "mqtts":
			u.Scheme = "tls"
			if opt.TLS == nil {
				opt.TLS = &tls.Config{MinVersion: tls.VersionTLS13}
			}
		case "ws", "wss":
		default:
			return errors.NotValidf("transport broker_url scheme=%s", u.Scheme)
		}
		if u.Port() == "" {
			port := DefaultPlainPort
			if opt.TLS != nil {
				port = DefaultTLSPort
			}
			u.Host = net.JoinHostPort(u.Hostname(), port)
		}
		opt.BrokerURL = u.String()
	}
	if opt.ClientID == "" {
		opt.ClientID = "c2link-" + uuid.New().String()[:8]
	}
	if opt.Keepalive == 0 {
		opt.Keepalive = DefaultKeepalive
	}
	if opt.ConnectTimeout == 0 {
		opt.ConnectTimeout = DefaultConnectTimeout
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ReconnectDelay == 0 {
		opt.ReconnectDelay = DefaultReconnectDelay
	}
	if opt.MaxReconnectAttempts == 0 {
		opt.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opt.SubscriptionBuffer == 0 {
		opt.SubscriptionBuffer = DefaultSubscriptionBuffer
	}
	return nil
}
