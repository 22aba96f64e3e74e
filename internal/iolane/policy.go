// Package iolane implements the IO lane dispatch policy: a pure decision
// function choosing between the fast (inline), io_uring (async submission
// ring), and compat (serialized compatibility) lanes for a hostcall.
package iolane

// Lane identifies the dispatch path chosen for a hostcall.
type Lane string

const (
	LaneFast    Lane = "fast"
	LaneIoUring Lane = "io_uring"
	LaneCompat  Lane = "compat"
)

// CapabilityClass names the kind of capability a hostcall exercises.
type CapabilityClass string

const (
	CapabilityFilesystem CapabilityClass = "filesystem"
	CapabilityNetwork    CapabilityClass = "network"
	CapabilitySession    CapabilityClass = "session"
	CapabilityOther      CapabilityClass = "other"
)

// IOHint classifies whether a hostcall is expected to be IO-heavy, CPU-bound,
// or unclassified.
type IOHint string

const (
	IOHintUnknown  IOHint = "unknown"
	IOHintIOHeavy  IOHint = "io_heavy"
	IOHintCPUBound IOHint = "cpu_bound"
)

// Reason names why a lane other than io_uring was chosen. Empty when the
// io_uring lane was selected (no fallback occurred).
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonCompatKillSwitch         Reason = "compat_kill_switch"
	ReasonIoUringDisabled          Reason = "io_uring_disabled"
	ReasonIoUringUnavailable       Reason = "io_uring_unavailable"
	ReasonMissingIOHint            Reason = "missing_io_hint"
	ReasonUnsupportedCapability    Reason = "unsupported_capability"
	ReasonQueueDepthBudgetExceeded Reason = "queue_depth_budget_exceeded"
)

// PolicyConfig is the process-wide, immutable-per-dispatch configuration for
// the lane policy.
type PolicyConfig struct {
	Enabled         bool
	RingAvailable   bool
	MaxQueueDepth   int
	AllowFilesystem bool
	AllowNetwork    bool
}

// Input is the per-call decision input.
type Input struct {
	CapabilityClass CapabilityClass
	IOHint          IOHint
	QueueDepth      int
	ForceCompatLane bool
}

// Decision is the pure output of the policy function.
type Decision struct {
	Lane           Lane
	FallbackReason Reason
}

// Telemetry extends Decision with budget snapshots and decision gates for
// audit/debugging.
type Telemetry struct {
	Decision
	CapabilityClass           CapabilityClass
	IOHint                    IOHint
	QueueDepth                int
	MaxQueueDepth             int
	QueueDepthBudgetRemaining int
	EnabledGate               bool
	RingAvailableGate         bool
	CapabilityAllowedGate     bool
}

// Decide applies the strict, first-hit-wins priority table to choose a lane.
// It is a pure, total function: every (config, input) pair yields exactly
// one decision.
func Decide(config PolicyConfig, input Input) Decision {
	if input.ForceCompatLane {
		return Decision{Lane: LaneCompat, FallbackReason: ReasonCompatKillSwitch}
	}
	if !config.Enabled {
		return Decision{Lane: LaneFast, FallbackReason: ReasonIoUringDisabled}
	}
	if !config.RingAvailable {
		return Decision{Lane: LaneFast, FallbackReason: ReasonIoUringUnavailable}
	}
	if input.IOHint != IOHintIOHeavy {
		return Decision{Lane: LaneFast, FallbackReason: ReasonMissingIOHint}
	}
	if !capabilityAllowed(config, input.CapabilityClass) {
		return Decision{Lane: LaneFast, FallbackReason: ReasonUnsupportedCapability}
	}
	if input.QueueDepth >= config.MaxQueueDepth {
		return Decision{Lane: LaneFast, FallbackReason: ReasonQueueDepthBudgetExceeded}
	}
	return Decision{Lane: LaneIoUring, FallbackReason: ReasonNone}
}

// capabilityAllowed implements rule 5: filesystem requires AllowFilesystem,
// network requires AllowNetwork, every other capability class is never
// allowed on the io_uring lane.
func capabilityAllowed(config PolicyConfig, class CapabilityClass) bool {
	switch class {
	case CapabilityFilesystem:
		return config.AllowFilesystem
	case CapabilityNetwork:
		return config.AllowNetwork
	default:
		return false
	}
}

// DecideWithTelemetry is Decide plus the audit snapshot described in §4.4:
// queue_depth_budget_remaining saturates at zero and never goes negative.
func DecideWithTelemetry(config PolicyConfig, input Input) Telemetry {
	decision := Decide(config, input)

	remaining := config.MaxQueueDepth - input.QueueDepth
	if remaining < 0 {
		remaining = 0
	}

	return Telemetry{
		Decision:                  decision,
		CapabilityClass:           input.CapabilityClass,
		IOHint:                    input.IOHint,
		QueueDepth:                input.QueueDepth,
		MaxQueueDepth:             config.MaxQueueDepth,
		QueueDepthBudgetRemaining: remaining,
		EnabledGate:               config.Enabled,
		RingAvailableGate:         config.RingAvailable,
		CapabilityAllowedGate:     capabilityAllowed(config, input.CapabilityClass),
	}
}

// CapabilityDenialEvent is emitted (not returned as an error) when a
// hostcall's capability is denied by the lane policy (rule 5): a
// diagnostic channel distinct from the lane decision itself, carrying a
// structured hint pointing at the missing capability grant.
type CapabilityDenialEvent struct {
	CapabilityClass CapabilityClass
	Hint            string
}

// NewCapabilityDenialEvent builds the denial event for a capability that the
// lane policy's allowlist rejected.
func NewCapabilityDenialEvent(class CapabilityClass) CapabilityDenialEvent {
	hint := "capability is never permitted on the io_uring lane"
	switch class {
	case CapabilityFilesystem:
		hint = "allow_filesystem is not enabled for this configuration"
	case CapabilityNetwork:
		hint = "allow_network is not enabled for this configuration"
	}
	return CapabilityDenialEvent{CapabilityClass: class, Hint: hint}
}
