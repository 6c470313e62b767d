// Package ratelimit implements a fixed-window request limiter.
//
// Each key gets a counter that resets every window. A key that exceeds
// the limit is blocked until the window that admitted its excess
// request ends; blocked requests do not extend the block. Idle keys
// are swept in the background.
package ratelimit
