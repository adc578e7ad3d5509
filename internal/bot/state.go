package bot

import (
	"time"

	"github.com/kadzielawa/wowsup/internal/event"
)

type Status string

const (
	StatusStarting   Status = "Starting"
	StatusRunning    Status = "Running"
	StatusNotWorking Status = "Not Working"
	StatusPaused     Status = "Paused"
	StatusStopping   Status = "Stopping"
)

// ActionState is the enum-keyed trigger map the classifier feeds and the rule
// table consumes. Each recognized category holds an occurrence count for the
// current evaluation window; rules clear what they handled so stale state
// never re-fires them.
type ActionState struct {
	flags      map[event.Kind]int
	skillLevel int
}

func NewActionState() *ActionState {
	return &ActionState{flags: make(map[event.Kind]int)}
}

func (a *ActionState) Apply(e event.LogEvent) {
	a.flags[e.Kind]++
	if e.Kind == event.TrainingSkills || e.Kind == event.TrainedSkills {
		a.skillLevel = e.SkillLevel
	}
}

func (a *ActionState) Get(k event.Kind) int {
	return a.flags[k]
}

func (a *ActionState) Active(k event.Kind) bool {
	return a.flags[k] > 0
}

func (a *ActionState) SkillLevel() int {
	return a.skillLevel
}

func (a *ActionState) Clear(kinds ...event.Kind) {
	for _, k := range kinds {
		delete(a.flags, k)
	}
}

func (a *ActionState) Reset() {
	a.flags = make(map[event.Kind]int)
	a.skillLevel = 0
}

// SessionState carries the cross-cycle counters and cooldown timers for one
// slot. Cooldowns advance by the measured wall-clock delta each cycle, so a
// slow cycle never under-counts elapsed time.
type SessionState struct {
	RunID         string
	ActiveProfile string
	ProfileIndex  int
	Status        Status

	MailTaskPending bool
	BotSwitchReady  bool
	Gathering       bool

	LastCycle        time.Time
	LastHousekeeping time.Time
	PausedUntil      time.Time

	StuckCount       int
	StuckWindowStart time.Time
	MovementIndex    int

	ErrorCount       int
	ErrorWindowStart time.Time
	RebootIssued     bool

	AirborneCount       int
	AirborneWindowStart time.Time

	ResurrectAt time.Time

	// Cooldowns are elapsed-time accumulators, reset to zero when the gated
	// action runs.
	VendorElapsed  time.Duration
	RepairElapsed  time.Duration
	FlyingElapsed  time.Duration
	TrainerElapsed time.Duration
	NPCElapsed     time.Duration

	// Movement screenshot compare state.
	MoveCheckCount int
	Attempt        int
	UnchangedCount int

	InGameMisses int

	LastRestockSeen time.Time
}

// movementPattern is the fixed strafe cycle the stuck recovery walks through.
var movementPattern = [4]string{"w", "s", "w", "s"}

func NewSessionState(runID string) *SessionState {
	now := time.Now()
	return &SessionState{
		RunID:            runID,
		Status:           StatusStarting,
		LastCycle:        now,
		LastHousekeeping: now,
		StuckWindowStart: now,
		ErrorWindowStart: now,
	}
}

// Advance applies one cycle's measured wall-clock delta to every
// elapsed-time accumulator.
func (s *SessionState) Advance(delta time.Duration) {
	if delta < 0 {
		delta = 0
	}
	s.VendorElapsed += delta
	s.RepairElapsed += delta
	s.FlyingElapsed += delta
	s.TrainerElapsed += delta
	s.NPCElapsed += delta
}

// NextMovementKey returns the current key of the movement pattern and steps
// the cycle forward.
func (s *SessionState) NextMovementKey() string {
	key := movementPattern[s.MovementIndex%len(movementPattern)]
	s.MovementIndex++
	return key
}
