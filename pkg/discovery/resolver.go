package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/enbility/zeroconf/v3"
)

// Domain is the default DNS-SD browse domain.
const Domain = "local."

var (
	// ErrNotFound is returned when browsing ends without a match.
	ErrNotFound = errors.New("discovery: service not found")

	// ErrNoAddress is returned when a service has no usable address.
	ErrNoAddress = errors.New("discovery: service has no usable address")
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Interface limits browsing to one network interface. Empty means all.
	Interface string

	// Domain overrides the browse domain (default: "local.").
	Domain string

	// PreferIPv6 picks an IPv6 address first when both families are known.
	PreferIPv6 bool
}

// Service is a resolved DNS-SD instance.
type Service struct {
	Instance string
	Host     string
	Port     int
	IPs      []net.IP
	Text     []string
}

// Resolver browses DNS-SD services over mDNS.
type Resolver struct {
	config ResolverConfig
	browse browseFunc
}

type browseFunc func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// NewResolver creates a resolver.
func NewResolver(config ResolverConfig) *Resolver {
	if config.Domain == "" {
		config.Domain = Domain
	}
	return &Resolver{config: config, browse: zeroconf.Browse}
}

// Browse reports instances of serviceType until ctx ends. Each instance is
// reported once, with the addresses known at that point; later sightings
// on other interfaces are merged into the same Service value.
func (r *Resolver) Browse(ctx context.Context, serviceType string) (<-chan *Service, error) {
	opts, err := r.options()
	if err != nil {
		return nil, err
	}

	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		seen := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := fromEntry(entry)
				if existing, found := seen[svc.Instance]; found {
					existing.IPs = mergeIPs(existing.IPs, svc.IPs)
					continue
				}
				seen[svc.Instance] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}
			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				delete(seen, entry.Instance)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = r.browse(ctx, serviceType, r.config.Domain, entries, removed, opts...)
	}()

	return out, nil
}

// Resolve browses until instance shows up with at least one address.
func (r *Resolver) Resolve(ctx context.Context, serviceType, instance string) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := r.Browse(ctx, serviceType)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case svc, ok := <-results:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("%w: %s.%s: %w", ErrNotFound, instance, serviceType, err)
				}
				return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, instance, serviceType)
			}
			if svc.Instance == instance && len(svc.IPs) > 0 {
				return svc, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrNotFound, instance, serviceType, ctx.Err())
		}
	}
}

// Addr picks an address for network ("tcp", "udp", "tcp4", ...).
func (s *Service) Addr(network string) (net.Addr, error) {
	return s.addr(network, false)
}

func (s *Service) addr(network string, preferIPv6 bool) (net.Addr, error) {
	ip := pickIP(s.IPs, network, preferIPv6)
	if ip == nil {
		return nil, fmt.Errorf("%w: %s for %s", ErrNoAddress, s.Instance, network)
	}
	switch {
	case strings.HasPrefix(network, "tcp"):
		return &net.TCPAddr{IP: ip, Port: s.Port}, nil
	case strings.HasPrefix(network, "udp"):
		return &net.UDPAddr{IP: ip, Port: s.Port}, nil
	}
	return nil, fmt.Errorf("discovery: unsupported network %q", network)
}

// String returns host:port using the first address.
func (s *Service) String() string {
	if len(s.IPs) == 0 {
		return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	}
	return net.JoinHostPort(s.IPs[0].String(), strconv.Itoa(s.Port))
}

// ResolveAddr resolves instance and picks an address for network.
func (r *Resolver) ResolveAddr(ctx context.Context, serviceType, instance, network string) (net.Addr, error) {
	svc, err := r.Resolve(ctx, serviceType, instance)
	if err != nil {
		return nil, err
	}
	return svc.addr(network, r.config.PreferIPv6)
}

func (r *Resolver) options() ([]zeroconf.ClientOption, error) {
	if r.config.Interface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(r.config.Interface)
	if err != nil {
		return nil, fmt.Errorf("discovery: interface %q: %w", r.config.Interface, err)
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces([]net.Interface{*iface})}, nil
}

func fromEntry(entry *zeroconf.ServiceEntry) *Service {
	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)
	return &Service{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		IPs:      ips,
		Text:     entry.Text,
	}
}

func mergeIPs(existing, more []net.IP) []net.IP {
	for _, ip := range more {
		dup := false
		for _, have := range existing {
			if have.Equal(ip) {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, ip)
		}
	}
	return existing
}

// pickIP returns the first address usable on network. Link-local IPv6
// addresses are skipped since the entry does not carry a zone.
func pickIP(ips []net.IP, network string, preferIPv6 bool) net.IP {
	var v4, v6 net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			if v4 == nil {
				v4 = ip
			}
			continue
		}
		if v6 == nil && !ip.IsLinkLocalUnicast() {
			v6 = ip
		}
	}
	switch {
	case strings.HasSuffix(network, "4"):
		return v4
	case strings.HasSuffix(network, "6"):
		return v6
	case preferIPv6 && v6 != nil:
		return v6
	case v4 != nil:
		return v4
	}
	return v6
}
