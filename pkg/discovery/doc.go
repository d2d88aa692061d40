// Package discovery resolves DNS-SD service instances to dialable
// addresses so a connector can be pointed at a name instead of an IP.
//
// Browsing uses multicast DNS. Entries for the same instance seen on
// several interfaces are merged before they are reported.
//
//	r := discovery.NewResolver(discovery.ResolverConfig{Interface: "eth0"})
//	svc, err := r.Resolve(ctx, "_echo._tcp", "bench-1")
//	addr, err := svc.Addr("tcp")
package discovery
