// Package retry provides caller-side redial with exponential backoff.
//
// Connectors are fail-fast: a refused or timed-out attempt is reported
// once and never repeated. Programs that want to keep trying wrap the
// connect call in Do:
//
//	conn, err := retry.Do(ctx, retry.NewBackoff(), 5, func(ctx context.Context) (*transport.Connection, error) {
//		return udp.ConnectSync(ctx, remote, nil, nil)
//	})
package retry
