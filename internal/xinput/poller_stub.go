//go:build !windows

package xinput

// Poller is inert on platforms without XInput.
type Poller struct{}

// NewPoller creates the stub poller.
func NewPoller(recv Receiver) *Poller { return &Poller{} }

// Start is a no-op.
func (p *Poller) Start() error { return nil }

// Stop is a no-op.
func (p *Poller) Stop() {}
