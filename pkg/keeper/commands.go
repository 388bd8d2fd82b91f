package keeper

import (
	"fmt"

	"github.com/go-go-golems/sessionstream/pkg/snapshot"
)

// Commands recognized on the channel between the application layer and the
// keeper. Anything else gets a "not implemented" reply with no state change.
const (
	CommandStartExecution = "startExecution"
	CommandStopExecution  = "stopExecution"
	CommandKeepAlive      = "keepAlive"
	CommandSaveStates     = "saveStates"
	CommandRecoverStates  = "recoverStates"
)

// SignalPollStreams is the scheduler's no-argument signal back to the
// application layer: check on your streams.
const SignalPollStreams = "poll_streams"

// CommandEnvelope is the wire format of one command message.
type CommandEnvelope struct {
	Command    string           `json:"command"`
	SessionIDs []string         `json:"session_ids,omitempty"`
	Entries    []snapshot.Entry `json:"entries,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Reply codes distinguish caller mistakes from platform failures.
const (
	ReplyCodeValidation     = "validation"
	ReplyCodeNotImplemented = "not_implemented"
	ReplyCodeInternal       = "internal"
)

// CommandReply is published on the reply topic, carrying the correlation id
// of the originating message in its metadata.
type CommandReply struct {
	OK      bool             `json:"ok"`
	Code    string           `json:"code,omitempty"`
	Error   string           `json:"error,omitempty"`
	Entries []snapshot.Entry `json:"entries,omitempty"`
}

// ValidationError marks malformed caller input. It is the only error class
// surfaced synchronously as a hard failure; platform trouble degrades soft.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
