// Package bridge lets interpreter-side code call controller-side operations
// as ordinary blocking functions.
//
// Requests travel as tagged messages through one ordered mailbox. The
// interpreter then blocks on the shared memory channel dedicated to the
// called operation until the controller writes the reply there. Every bridged
// operation has its own channel, and calls on one channel never overlap.
package bridge

import "encoding/json"

// Kind tags a Message.
type Kind string

const (
	KindCall  Kind = "call"
	KindReply Kind = "reply"
	KindError Kind = "error"
)

// Message is the unit of the bridge protocol. Calls with ID 0 are
// notifications and receive no reply. Replies and errors echo the ID of the
// call they answer.
type Message struct {
	Kind    Kind            `json:"kind"`
	ID      uint64          `json:"id"`
	Op      string          `json:"op,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
