// SPDX-License-Identifier: MPL-2.0

package serverbase

// Option configures a Base.
type Option func(*Base)

// WithErrorChannel sets the buffer size of the Err channel (default: 1).
func WithErrorChannel(size int) Option {
	return func(b *Base) {
		if size < 0 {
			size = 0
		}
		b.errCh = make(chan error, size)
	}
}

// WithStateObserver calls fn synchronously on every state change. fn must
// not block or call back into the Base.
func WithStateObserver(fn func(from, to State)) Option {
	return func(b *Base) { b.observer = fn }
}
