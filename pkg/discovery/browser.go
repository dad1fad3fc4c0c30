package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
	"go.uber.org/zap"
)

const (
	// ServiceType is the DNS-SD service type of the telemetry server.
	ServiceType = "_gaswatch._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultTimeout bounds a Find call.
	DefaultTimeout = 5 * time.Second
)

// TXT record keys.
const (
	TXTKeyAPIPort = "api"
	TXTKeySite    = "site"
)

// ErrNotFound is returned when no server answered before the timeout.
var ErrNotFound = errors.New("no server found")

// Server is one discovered telemetry server.
type Server struct {
	Instance  string
	Host      string
	Port      int
	APIPort   int
	Site      string
	Addresses []string
}

// Address returns the address to dial: the first IPv4 address, else the
// first address, else the host name.
func (s Server) Address() string {
	for _, a := range s.Addresses {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a
		}
	}
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return strings.TrimSuffix(s.Host, ".")
}

// BrowseFunc runs one mDNS browse, sending entries until ctx is done.
type BrowseFunc func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// Config configures a Browser.
type Config struct {
	// Timeout bounds Find. Default: DefaultTimeout.
	Timeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// Browser looks up telemetry servers over mDNS.
type Browser struct {
	config Config
	browse BrowseFunc
	logger *zap.Logger
}

// NewBrowser creates a browser backed by zeroconf.
func NewBrowser(config Config, logger *zap.Logger) *Browser {
	browse := func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
		return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
	}
	return newBrowser(config, browse, logger)
}

func newBrowser(config Config, browse BrowseFunc, logger *zap.Logger) *Browser {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{config: config, browse: browse, logger: logger}
}

// Find returns the first server that answers.
func (b *Browser) Find(ctx context.Context) (Server, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	browseErr := make(chan error, 1)

	go func() {
		browseErr <- b.browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return Server{}, ErrNotFound
			}
			srv, ok := entryToServer(entry)
			if !ok {
				continue
			}
			b.logger.Info("server discovered",
				zap.String("instance", srv.Instance),
				zap.String("address", srv.Address()),
				zap.Int("port", srv.Port))
			return srv, nil

		case <-removed:

		case err := <-browseErr:
			if err != nil {
				return Server{}, err
			}
			browseErr = nil

		case <-ctx.Done():
			return Server{}, ErrNotFound
		}
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.logger.Warn("discovery interface not found, browsing all",
				zap.String("interface", b.config.Interface), zap.Error(err))
		}
	}

	return opts
}

func entryToServer(entry *zeroconf.ServiceEntry) (Server, bool) {
	if entry == nil || entry.Port <= 0 {
		return Server{}, false
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	srv := Server{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		APIPort:   entry.Port,
		Addresses: addrs,
	}
	if len(addrs) == 0 && srv.Host == "" {
		return Server{}, false
	}

	txt := parseTXT(entry.Text)
	if p, err := strconv.Atoi(txt[TXTKeyAPIPort]); err == nil && p > 0 {
		srv.APIPort = p
	}
	srv.Site = txt[TXTKeySite]
	return srv, true
}

// parseTXT turns key=value strings into a map. Keys without a value map
// to "".
func parseTXT(strs []string) map[string]string {
	txt := make(map[string]string, len(strs))
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if parts[0] != "" {
			txt[parts[0]] = ""
		}
	}
	return txt
}
