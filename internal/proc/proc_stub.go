//go:build !windows

package proc

// ForegroundProcessName is unavailable off Windows and always returns "". An
// empty name matches no whitelist entry, so a non-empty whitelist blocks
// dispatch.
func ForegroundProcessName() string { return "" }
