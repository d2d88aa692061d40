package transport

// ChannelConfigurator adjusts socket options around registration.
type ChannelConfigurator interface {
	// PreConfigure runs on a freshly opened channel, before bind.
	PreConfigure(t *Transport, ch *Channel) error

	// PostConfigure runs once the channel is connected.
	PostConfigure(t *Transport, ch *Channel) error
}

// DefaultChannelConfigurator applies the transport's reuse-address
// default before bind, and TCP_NODELAY plus keep-alive after connect.
type DefaultChannelConfigurator struct{}

// PreConfigure applies the transport's reuse-address default.
func (DefaultChannelConfigurator) PreConfigure(t *Transport, ch *Channel) error {
	return ch.SetReuseAddress(t.IsReuseAddress())
}

// PostConfigure enables TCP_NODELAY and keep-alive on stream channels.
func (DefaultChannelConfigurator) PostConfigure(t *Transport, ch *Channel) error {
	if !ch.IsStream() {
		return nil
	}
	if err := ch.SetNoDelay(true); err != nil {
		return err
	}
	return ch.SetKeepAlive(true)
}
