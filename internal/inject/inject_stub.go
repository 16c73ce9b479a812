//go:build !windows

package inject

import "fmt"

// Sender is a placeholder on platforms without an injection backend.
type Sender struct{}

// NewSender returns the stub injector.
func NewSender() *Sender { return &Sender{} }

// InjectBatch reports that injection is unsupported on this platform.
func (s *Sender) InjectBatch(events []Event) error {
	return fmt.Errorf("input injection not supported on this platform")
}
