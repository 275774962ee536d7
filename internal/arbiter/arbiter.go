// Package arbiter decides which transport mode a session should use.
//
// The [Arbiter] is a pure reducer over latency samples and transport
// failures: it classifies each sample into a quality tier and applies
// asymmetric hysteresis — a single poor sample or transport failure
// downgrades streaming to turn-based immediately, while upgrading back
// requires an excellent sample and a cooldown since the last switch. The
// asymmetry prevents flapping on marginal connections: staying in a degraded
// streaming session costs more perceived latency than a conservative stay in
// turn-based mode.
//
// The arbiter never performs transport work itself; it classifies and
// recommends. Reconnect limiting is the orchestrator's job — the arbiter
// only counts drops for it.
//
// All methods are safe for concurrent use.
package arbiter

import (
	"fmt"
	"sync"
	"time"
)

// Mode is a transport operating mode.
type Mode string

const (
	// ModeStreaming sends audio continuously over the realtime transport.
	ModeStreaming Mode = "streaming"

	// ModeTurnBased records complete utterances and translates them through
	// the request/response cascade (push-to-talk).
	ModeTurnBased Mode = "turn-based"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeStreaming || m == ModeTurnBased
}

// Tier classifies a latency sample.
type Tier string

const (
	// TierExcellent is under 150 ms — good enough to stream.
	TierExcellent Tier = "excellent"

	// TierGood is 150–250 ms inclusive — tolerable, not upgrade-worthy.
	TierGood Tier = "good"

	// TierPoor is above 250 ms — bad enough to leave streaming on a single
	// sample. Transport failures also classify as poor.
	TierPoor Tier = "poor"
)

// Tier boundaries.
const (
	excellentBelow = 150 * time.Millisecond
	poorAbove      = 250 * time.Millisecond
)

// Classify maps a latency sample to its quality tier: below 150 ms is
// excellent, 150–250 ms inclusive is good, above 250 ms is poor.
func Classify(d time.Duration) Tier {
	switch {
	case d < excellentBelow:
		return TierExcellent
	case d <= poorAbove:
		return TierGood
	default:
		return TierPoor
	}
}

// Decision is the arbiter's verdict on one observation. Mode is the mode in
// effect after the observation; Reason is set only when Switched is true.
type Decision struct {
	Switched bool   `json:"switched"`
	Mode     Mode   `json:"mode"`
	Tier     Tier   `json:"tier"`
	Reason   string `json:"reason,omitempty"`
}

// Config holds tuning knobs for an [Arbiter].
type Config struct {
	// InitialMode is the mode a fresh arbiter starts in.
	// Default: [ModeStreaming].
	InitialMode Mode

	// UpgradeCooldown is the minimum time after any switch before an
	// excellent sample may upgrade back to streaming. Default: 10s.
	UpgradeCooldown time.Duration
}

// Arbiter applies the mode-switch hysteresis. Safe for concurrent use.
type Arbiter struct {
	initialMode Mode
	cooldown    time.Duration

	mu         sync.Mutex
	mode       Mode
	lastSwitch time.Time // zero until the first switch; permits immediate upgrade
	drops      int
}

// New creates an [Arbiter] with the supplied configuration. Zero-value
// config fields are replaced with sensible defaults.
func New(cfg Config) *Arbiter {
	if !cfg.InitialMode.IsValid() {
		cfg.InitialMode = ModeStreaming
	}
	if cfg.UpgradeCooldown <= 0 {
		cfg.UpgradeCooldown = 10 * time.Second
	}
	return &Arbiter{
		initialMode: cfg.InitialMode,
		cooldown:    cfg.UpgradeCooldown,
		mode:        cfg.InitialMode,
	}
}

// Mode returns the mode currently in effect.
func (a *Arbiter) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Drops returns the consecutive transport-drop count since the last switch
// or successful reconnect. The orchestrator reads it to bound redial
// attempts; it never influences the mode decision.
func (a *Arbiter) Drops() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drops
}

// ResetDrops clears the drop counter, typically after a successful
// reconnect.
func (a *Arbiter) ResetDrops() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drops = 0
}

// Reset returns the arbiter to its initial mode with no switch history and
// no counted drops. Idempotent.
func (a *Arbiter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = a.initialMode
	a.lastSwitch = time.Time{}
	a.drops = 0
}

// ObserveLatency reduces one latency sample observed at the given time.
//
// In streaming mode a single poor sample downgrades immediately. In
// turn-based mode an excellent sample upgrades only once the cooldown since
// the last switch has elapsed; a zero switch history permits immediate
// upgrade.
func (a *Arbiter) ObserveLatency(sample time.Duration, at time.Time) Decision {
	tier := Classify(sample)

	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.mode {
	case ModeStreaming:
		if tier == TierPoor {
			reason := fmt.Sprintf("High latency detected (%dms). Switched to Push-to-Talk for better performance.",
				sample.Milliseconds())
			return a.switchTo(ModeTurnBased, tier, reason, at)
		}
	case ModeTurnBased:
		if tier == TierExcellent && a.cooldownElapsed(at) {
			reason := fmt.Sprintf("Connection quality recovered (%dms). Switched back to streaming translation.",
				sample.Milliseconds())
			return a.switchTo(ModeStreaming, tier, reason, at)
		}
	}
	return Decision{Mode: a.mode, Tier: tier}
}

// ObserveTransportFailure reduces one transport error or disconnect observed
// at the given time. Failures count as drops and force streaming down to
// turn-based; in turn-based mode they only increment the drop counter.
func (a *Arbiter) ObserveTransportFailure(at time.Time) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.drops++

	if a.mode == ModeStreaming {
		d := a.switchTo(ModeTurnBased, TierPoor,
			"Connection problems detected. Switched to Push-to-Talk for better reliability.", at)
		// switchTo clears the counter; the failure that caused the switch
		// still counts.
		a.drops = 1
		return d
	}
	return Decision{Mode: a.mode, Tier: TierPoor}
}

// switchTo flips the mode. Callers hold the mutex.
func (a *Arbiter) switchTo(mode Mode, tier Tier, reason string, at time.Time) Decision {
	a.mode = mode
	a.lastSwitch = at
	a.drops = 0
	return Decision{Switched: true, Mode: mode, Tier: tier, Reason: reason}
}

// cooldownElapsed reports whether enough time has passed since the last
// switch to allow an upgrade. Callers hold the mutex.
func (a *Arbiter) cooldownElapsed(at time.Time) bool {
	if a.lastSwitch.IsZero() {
		return true
	}
	return at.Sub(a.lastSwitch) >= a.cooldown
}
