// Package session discovers resumable TTS sessions on disk, reconciles the
// two historical fragment naming schemes into one zero-based index space, and
// persists user-edited metadata back into session state files.
package session
