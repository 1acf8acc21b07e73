// Package logging builds the slog logger used across bookforge and provides
// shared attribute helpers plus a sampler for high-frequency progress logs.
package logging
