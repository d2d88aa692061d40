package transport

// SelectionKey ties a channel and its connection to the selector that
// polls it.
type SelectionKey struct {
	selector *Selector
	channel  *Channel
	conn     *Connection
}

// Selector returns the owning selector.
func (k *SelectionKey) Selector() *Selector { return k.selector }

// Channel returns the registered channel.
func (k *SelectionKey) Channel() *Channel { return k.channel }

// Connection returns the connection the channel belongs to.
func (k *SelectionKey) Connection() *Connection { return k.conn }

// apply pushes the connection's current interest set to the selector.
func (k *SelectionKey) apply() error {
	if k == nil || k.selector == nil {
		return nil
	}
	return k.channel.withFd(func(fd int) error {
		return k.selector.modify(fd, k.conn.Interest())
	})
}

// RegistrationResult is produced once per successful registration.
type RegistrationResult struct {
	Key        *SelectionKey
	Connection *Connection
}
