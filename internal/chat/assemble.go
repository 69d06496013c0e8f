package chat

import (
	"fmt"

	"github.com/seedhantkalra/caremind/internal/memory"
	"github.com/seedhantkalra/caremind/internal/privacy"
	"github.com/seedhantkalra/caremind/internal/protocol"
)

// DefaultRecallLimit is how many of the most recent long-term insights are
// injected into each prompt.
const DefaultRecallLimit = 5

// personaTurn pins the assistant's scope. The redirect behavior for
// out-of-scope questions is a content policy carried verbatim to the
// completion service, not enforced in code.
const personaTurn = "You are a professional healthcare assistant for clinicians. " +
	"Help with clinical workflows, patient communication, scheduling pressure, and well-being at work. " +
	"If the user asks about something outside healthcare, give a brief helpful answer, " +
	"then add: \"I'm best at helping with your work in healthcare - is there anything work-related I can help with?\""

// Assemble builds the exact ordered turn sequence sent to the completion
// service: profile system turns, the persona turn, the most recent insights,
// then the full session snapshot. Each call returns a fresh slice.
func Assemble(profile memory.Profile, insights []memory.Insight, sessionTurns []protocol.Turn, recallLimit int) []protocol.Turn {
	if recallLimit <= 0 {
		recallLimit = DefaultRecallLimit
	}
	out := make([]protocol.Turn, 0, 4+recallLimit+len(sessionTurns))

	if usable(profile.Name) {
		out = append(out, protocol.SystemTurn(fmt.Sprintf("The user's name is %s.", profile.Name)))
	}
	if usable(profile.JobTitle) {
		out = append(out, protocol.SystemTurn(fmt.Sprintf("The user works as a %s.", profile.JobTitle)))
	}
	if usable(profile.Workplace) {
		out = append(out, protocol.SystemTurn(fmt.Sprintf("The user works at %s.", profile.Workplace)))
	}

	out = append(out, protocol.SystemTurn(personaTurn))

	recent := insights
	if len(recent) > recallLimit {
		recent = recent[len(recent)-recallLimit:]
	}
	for _, ins := range recent {
		out = append(out, protocol.SystemTurn("Known from earlier conversations: "+ins.Content))
	}

	out = append(out, sessionTurns...)
	return out
}

// usable filters attributes that are absent or masked by the privacy codec.
func usable(value string) bool {
	return value != "" && value != privacy.Unreadable
}
