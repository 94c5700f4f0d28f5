// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// Send caps the time allowed for a single outbound notification send.
const Send = 10 * time.Second

// SweepBatchPacing is the default delay between campaign sweep batches,
// chosen to stay under downstream provider rate limits.
const SweepBatchPacing = time.Second

// Shutdown limits how long the service waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
