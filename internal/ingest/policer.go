package ingest

import (
	"time"

	coreerrors "github.com/bitriver/edge/internal/errors"
)

// PolicerConfig bounds the ceilings enforced by Policer (spec.md §4.2 Policing).
type PolicerConfig struct {
	// BitrateCeilingBps is the maximum allowed bits-per-second, evaluated
	// each BitrateTickInterval.
	BitrateCeilingBps int64
	// BitrateTickInterval is how often the rolling bitrate is evaluated.
	BitrateTickInterval time.Duration
	// MaxBytesSinceKeyframe is the KeyframeBitrateDistance ceiling.
	MaxBytesSinceKeyframe int64
	// MaxTimeBetweenKeyframes is the KeyframeTimeLimit ceiling.
	MaxTimeBetweenKeyframes time.Duration
}

// DefaultPolicerConfig matches typical live-ingest ceilings: ~20 Mbps, a
// 5 MB keyframe-distance budget, and a 10 s keyframe interval limit.
func DefaultPolicerConfig() PolicerConfig {
	return PolicerConfig{
		BitrateCeilingBps:       20_000_000,
		BitrateTickInterval:     time.Second,
		MaxBytesSinceKeyframe:   5 * 1024 * 1024,
		MaxTimeBetweenKeyframes: 10 * time.Second,
	}
}

// Policer maintains the two rolling counters of spec.md §4.2 Policing:
// bytes since the last bitrate tick, and bytes/time since the last
// keyframe. It is driven from the single ingest loop goroutine and keeps no
// internal locking.
type Policer struct {
	cfg PolicerConfig

	bytesSinceTick     int64
	bytesSinceKeyframe int64
	lastKeyframeAt     time.Time
	sawFirstKeyframe   bool
}

// NewPolicer creates a Policer; now is the connection's accept time. The
// keyframe-interval check does not run until the first keyframe is observed,
// and from then on it measures from the most recent keyframe.
func NewPolicer(cfg PolicerConfig, now time.Time) *Policer {
	return &Policer{cfg: cfg, lastKeyframeAt: now}
}

// ObserveBytes accounts n bytes of media payload toward both rolling
// counters; keyframe must be true iff this payload carried a video IDR.
// now is the wall-clock time of this sample, used for the keyframe-interval
// check.
func (p *Policer) ObserveBytes(n int, keyframe bool, now time.Time) error {
	p.bytesSinceTick += int64(n)
	p.bytesSinceKeyframe += int64(n)

	if keyframe {
		p.bytesSinceKeyframe = int64(n)
		p.lastKeyframeAt = now
		p.sawFirstKeyframe = true
	}

	if p.bytesSinceKeyframe > p.cfg.MaxBytesSinceKeyframe {
		return coreerrors.NewPolicyError("ingest.policer.keyframe_distance", coreerrors.DisconnectCause{
			Code:     coreerrors.CauseKeyframeBitrateDistance,
			Observed: p.bytesSinceKeyframe,
			Limit:    p.cfg.MaxBytesSinceKeyframe,
		})
	}

	if p.sawFirstKeyframe {
		if d := now.Sub(p.lastKeyframeAt); d > p.cfg.MaxTimeBetweenKeyframes {
			return coreerrors.NewPolicyError("ingest.policer.keyframe_time", coreerrors.DisconnectCause{
				Code:     coreerrors.CauseKeyframeTimeLimit,
				Observed: int64(d),
				Limit:    int64(p.cfg.MaxTimeBetweenKeyframes),
			})
		}
	}

	return nil
}

// Tick evaluates the rolling bitrate against the ceiling and resets the
// tick counter; call this once per BitrateTickInterval from the ingest
// loop's ticker case.
func (p *Policer) Tick() error {
	bps := p.bytesSinceTick * 8 * int64(time.Second) / int64(p.cfg.BitrateTickInterval)
	p.bytesSinceTick = 0
	if bps > p.cfg.BitrateCeilingBps {
		return coreerrors.NewPolicyError("ingest.policer.bitrate", coreerrors.DisconnectCause{
			Code:     coreerrors.CauseBitrateLimit,
			Observed: bps,
			Limit:    p.cfg.BitrateCeilingBps,
		})
	}
	return nil
}
