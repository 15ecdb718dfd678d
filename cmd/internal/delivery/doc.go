// Package delivery sends final reply text back to the requesting conversation
// on the chat platform.
//
// The platform enforces a hard per-message length limit, so replies are split
// into chunks before sending: the first chunk edits the placeholder message
// the platform created for the command, the rest go out as follow-ups. Chunk
// attempts are independent; one failed chunk never aborts the remainder.
package delivery
