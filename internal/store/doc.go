// Package store persists followmail users: their Google identity, the
// refresh token used to reach Gmail on their behalf, and the two ordered
// lists of followed addresses.
//
// SQLiteStore is the production backend. MemoryStore keeps everything in
// process and is meant for tests and local runs without a database file.
package store
