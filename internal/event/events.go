package event

import (
	"time"
)

type Event interface {
	Message() string
	Slot() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	message    string
	slot       string
	occurredAt time.Time
}

func (b BaseEvent) Message() string {
	return b.message
}

func (b BaseEvent) Slot() string {
	return b.slot
}

func (b BaseEvent) OccurredAt() time.Time {
	return b.occurredAt
}

func Text(slot string, message string) BaseEvent {
	return BaseEvent{
		message:    message,
		slot:       slot,
		occurredAt: time.Now(),
	}
}

// SupervisorStartedEvent is emitted when a slot supervisor begins a run.
type SupervisorStartedEvent struct {
	BaseEvent
	RunID string
}

func SupervisorStarted(be BaseEvent, runID string) SupervisorStartedEvent {
	return SupervisorStartedEvent{BaseEvent: be, RunID: runID}
}

// SupervisorStoppedEvent is emitted when a slot supervisor exits, with the
// reason it went down.
type SupervisorStoppedEvent struct {
	BaseEvent
	Reason string
}

func SupervisorStopped(be BaseEvent, reason string) SupervisorStoppedEvent {
	return SupervisorStoppedEvent{BaseEvent: be, Reason: reason}
}

// ProfileRotatedEvent records a hand-off from one macro profile to the next.
type ProfileRotatedEvent struct {
	BaseEvent
	PreviousProfile string
	NextProfile     string
}

func ProfileRotated(be BaseEvent, previous, next string) ProfileRotatedEvent {
	return ProfileRotatedEvent{BaseEvent: be, PreviousProfile: previous, NextProfile: next}
}

// RevivalPerformedEvent records a spirit-healer revival attempt outcome.
type RevivalPerformedEvent struct {
	BaseEvent
	Attempt int
	Success bool
}

func RevivalPerformed(be BaseEvent, attempt int, success bool) RevivalPerformedEvent {
	return RevivalPerformedEvent{BaseEvent: be, Attempt: attempt, Success: success}
}

// MachineRebootEvent is the terminal escalation: the supervisor decided the
// box needs a restart.
type MachineRebootEvent struct {
	BaseEvent
	ErrorCount int
}

func MachineReboot(be BaseEvent, errorCount int) MachineRebootEvent {
	return MachineRebootEvent{BaseEvent: be, ErrorCount: errorCount}
}

// SlotSwitchedEvent is emitted by the schedule controller on slot hand-off.
type SlotSwitchedEvent struct {
	BaseEvent
	FromSlot string
	ToSlot   string
}

func SlotSwitched(be BaseEvent, from, to string) SlotSwitchedEvent {
	return SlotSwitchedEvent{BaseEvent: be, FromSlot: from, ToSlot: to}
}

// GameRelaunchedEvent records a full client+macro tool relaunch.
type GameRelaunchedEvent struct {
	BaseEvent
	Cause string
}

func GameRelaunched(be BaseEvent, cause string) GameRelaunchedEvent {
	return GameRelaunchedEvent{BaseEvent: be, Cause: cause}
}

// StuckRecoveredEvent records one fired stuck-recovery sequence.
type StuckRecoveredEvent struct {
	BaseEvent
	Occurrences int
	MovementKey string
}

func StuckRecovered(be BaseEvent, occurrences int, movementKey string) StuckRecoveredEvent {
	return StuckRecoveredEvent{BaseEvent: be, Occurrences: occurrences, MovementKey: movementKey}
}

// MailTaskStartedEvent records the engine sending the character to the
// mailbox sub-profile.
type MailTaskStartedEvent struct {
	BaseEvent
}

func MailTaskStarted(be BaseEvent) MailTaskStartedEvent {
	return MailTaskStartedEvent{BaseEvent: be}
}

// TunnelEstablishedEvent carries the public URL of the remote-access tunnel.
type TunnelEstablishedEvent struct {
	BaseEvent
	URL string
}

func TunnelEstablished(url string) TunnelEstablishedEvent {
	return TunnelEstablishedEvent{BaseEvent: Text("", "Remote tunnel established"), URL: url}
}
