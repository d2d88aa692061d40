package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance string, port int, ips ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance, Service: "_echo._tcp", Domain: Domain},
		HostName:      instance + ".local.",
		Port:          port,
	}
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

// fakeBrowse replays entries and then waits for ctx like a real browse.
func fakeBrowse(list ...*zeroconf.ServiceEntry) browseFunc {
	return func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, _ ...zeroconf.ClientOption) error {
		defer close(entries)
		for _, e := range list {
			select {
			case entries <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		<-ctx.Done()
		return nil
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	r.browse = fakeBrowse(
		entry("other", 1000, "10.0.0.9"),
		entry("bench-1", 7000, "fe80::1", "2001:db8::7", "192.168.1.7"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	svc, err := r.Resolve(ctx, "_echo._tcp", "bench-1")
	require.NoError(t, err)
	assert.Equal(t, 7000, svc.Port)
	assert.Equal(t, "bench-1.local.", svc.Host)

	addr, err := svc.Addr("tcp")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.7:7000", addr.String())

	addr, err = svc.Addr("udp6")
	require.NoError(t, err)
	assert.Equal(t, "[2001:db8::7]:7000", addr.String())
	assert.IsType(t, &net.UDPAddr{}, addr)
}

func TestResolveAddrPrefersIPv6(t *testing.T) {
	r := NewResolver(ResolverConfig{PreferIPv6: true})
	r.browse = fakeBrowse(entry("bench-1", 7000, "192.168.1.7", "2001:db8::7"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	addr, err := r.ResolveAddr(ctx, "_echo._tcp", "bench-1", "tcp")
	require.NoError(t, err)
	assert.Equal(t, "[2001:db8::7]:7000", addr.String())
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	r.browse = fakeBrowse(entry("other", 1000, "10.0.0.9"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, "_echo._tcp", "bench-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBrowseMergesInterfaces(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	r.browse = fakeBrowse(
		entry("bench-1", 7000, "192.168.1.7"),
		entry("bench-1", 7000, "192.168.1.7", "10.1.1.7"),
		entry("bench-2", 7001, "192.168.1.8"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := r.Browse(ctx, "_echo._tcp")
	require.NoError(t, err)

	first := <-results
	second := <-results
	assert.Equal(t, "bench-1", first.Instance)
	assert.Equal(t, "bench-2", second.Instance)
	assert.Len(t, first.IPs, 2)

	cancel()
	for range results {
	}
}

func TestBrowseUnknownInterface(t *testing.T) {
	r := NewResolver(ResolverConfig{Interface: "does-not-exist0"})
	_, err := r.Browse(context.Background(), "_echo._tcp")
	assert.Error(t, err)
}

func TestPickIP(t *testing.T) {
	ips := func(s ...string) []net.IP {
		out := make([]net.IP, 0, len(s))
		for _, v := range s {
			out = append(out, net.ParseIP(v))
		}
		return out
	}
	tests := []struct {
		name    string
		ips     []net.IP
		network string
		prefer6 bool
		want    string
	}{
		{"v4 first", ips("2001:db8::1", "10.0.0.1"), "tcp", false, "10.0.0.1"},
		{"prefer v6", ips("10.0.0.1", "2001:db8::1"), "tcp", true, "2001:db8::1"},
		{"prefer v6 falls back", ips("10.0.0.1"), "udp", true, "10.0.0.1"},
		{"only v6", ips("2001:db8::1"), "udp", false, "2001:db8::1"},
		{"skip link local", ips("fe80::1"), "tcp6", false, ""},
		{"tcp4 without v4", ips("2001:db8::1"), "tcp4", false, ""},
		{"empty", nil, "tcp", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickIP(tt.ips, tt.network, tt.prefer6)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestServiceAddrErrors(t *testing.T) {
	svc := &Service{Instance: "x", Port: 1, IPs: []net.IP{net.ParseIP("10.0.0.1")}}

	_, err := svc.Addr("tcp6")
	assert.True(t, errors.Is(err, ErrNoAddress))

	_, err = svc.Addr("unix")
	assert.Error(t, err)
	assert.Equal(t, "10.0.0.1:1", svc.String())
}
