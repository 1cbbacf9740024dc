// Package tokenstore persists bearer tokens keyed by audience.
//
// Every backend holds at most one token per audience. Writing a token only
// replaces the entry for its own audience; other entries are kept.
//
// Supports three storage backends with different security and deployment tradeoffs:
//   - File: JSON document in the home directory with atomic writes and secure permissions
//   - Keyring: the same JSON document kept as a single OS-native credential
//   - Env: Read-only environment variable holding one token (requires external secret management)
//
// Interactive login requires writable storage (file or keyring).
package tokenstore
