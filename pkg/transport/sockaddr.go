package transport

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/sys/unix"
)

// FamilyOf returns the address family able to reach every given address.
// Nil addresses are ignored; with no IPv6 address the result is AF_INET.
func FamilyOf(addrs ...net.Addr) int {
	for _, a := range addrs {
		ip, _, _ := splitAddr(a)
		if ip != nil && ip.To4() == nil {
			return unix.AF_INET6
		}
	}
	return unix.AF_INET
}

func splitAddr(a net.Addr) (net.IP, int, string) {
	switch addr := a.(type) {
	case *net.TCPAddr:
		if addr == nil {
			return nil, 0, ""
		}
		return addr.IP, addr.Port, addr.Zone
	case *net.UDPAddr:
		if addr == nil {
			return nil, 0, ""
		}
		return addr.IP, addr.Port, addr.Zone
	default:
		return nil, 0, ""
	}
}

func socketType(network string) (int, error) {
	switch {
	case strings.HasPrefix(network, "tcp"):
		return unix.SOCK_STREAM, nil
	case strings.HasPrefix(network, "udp"):
		return unix.SOCK_DGRAM, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

func toSockaddr(family int, a net.Addr) (unix.Sockaddr, error) {
	switch a.(type) {
	case *net.TCPAddr, *net.UDPAddr:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAddress, a)
	}
	ip, port, zone := splitAddr(a)

	switch family {
	case unix.AF_INET:
		sa := &unix.SockaddrInet4{Port: port}
		if ip != nil {
			ip4 := ip.To4()
			if ip4 == nil {
				return nil, fmt.Errorf("%w: %s is not IPv4", ErrUnsupportedAddress, ip)
			}
			copy(sa.Addr[:], ip4)
		}
		return sa, nil
	case unix.AF_INET6:
		sa := &unix.SockaddrInet6{Port: port}
		if ip != nil {
			copy(sa.Addr[:], ip.To16())
		}
		if zone != "" {
			ifi, err := net.InterfaceByName(zone)
			if err != nil {
				return nil, fmt.Errorf("resolve zone %q: %w", zone, err)
			}
			sa.ZoneId = uint32(ifi.Index)
		}
		return sa, nil
	default:
		return nil, fmt.Errorf("%w: family %d", ErrUnsupportedAddress, family)
	}
}

func fromSockaddr(sotype int, sa unix.Sockaddr) net.Addr {
	var (
		ip   net.IP
		port int
		zone string
	)
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip = net.IP(append([]byte(nil), s.Addr[:]...))
		port = s.Port
	case *unix.SockaddrInet6:
		ip = net.IP(append([]byte(nil), s.Addr[:]...))
		port = s.Port
		if s.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(s.ZoneId)); err == nil {
				zone = ifi.Name
			}
		}
	default:
		return nil
	}
	if sotype == unix.SOCK_DGRAM {
		return &net.UDPAddr{IP: ip, Port: port, Zone: zone}
	}
	return &net.TCPAddr{IP: ip, Port: port, Zone: zone}
}
