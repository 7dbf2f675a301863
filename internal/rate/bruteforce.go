package rate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

// DetectorConfig tunes the brute-force heuristic. The detector only
// scores; it never blocks a request.
type DetectorConfig struct {
	Window          time.Duration // observation window; 0 = 15m
	VolumeThreshold int           // attempts per IP per window considered high; 0 = 20
	SuspicionScore  int           // score at or above which an assessment is suspicious; 0 = 60
	AlertInterval   time.Duration // minimum spacing between alerts per IP; 0 = 1m

	// Operating hours for the off-hours signal as an [Open, Close) hour
	// window in local time. Disabled when both are zero.
	OpenHour  int
	CloseHour int
}

// Assessment is the outcome of a brute-force evaluation for one attempt.
//
// Assessment instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Assessment struct {
	Score      int
	Signals    []string
	Suspicious bool
	// Alert is true when the assessment is suspicious and the per-IP
	// pacing budget permits emitting an audit event for it.
	Alert bool
}

// Detector scores authentication attempts for brute-force characteristics:
// raw volume, user-agent churn behind one IP, one user-agent spread across
// many IPs, and activity outside operating hours.
type Detector struct {
	redis  redis.UniversalClient
	config DetectorConfig
	now    func() time.Time

	mu        sync.Mutex
	pacers    map[string]*alertPacer
	nextSweep time.Time
}

type alertPacer struct {
	limiter  *xrate.Limiter
	lastSeen time.Time
}

// NewDetector creates a [Detector] backed by the given Redis client.
func NewDetector(redisClient redis.UniversalClient, cfg DetectorConfig, now func() time.Time) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = 20
	}
	if cfg.SuspicionScore <= 0 {
		cfg.SuspicionScore = 60
	}
	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{
		redis:  redisClient,
		config: cfg,
		now:    now,
		pacers: make(map[string]*alertPacer),
	}
}

func volumeKey(ip string) string { return "bfv:" + ip }
func ipAgentsKey(ip string) string {
	return "bfua:" + ip
}
func agentOriginsKey(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return "bfip:" + hex.EncodeToString(sum[:8])
}

// Assess records one failed attempt from ip/userAgent and scores the
// observed pattern. Scores are additive and clamped to 100; crossing
// the configured suspicion score marks the assessment suspicious.
func (d *Detector) Assess(ctx context.Context, ip, userAgent string) (Assessment, error) {
	var out Assessment
	if ip == "" {
		return out, nil
	}

	volume, err := d.redis.Incr(ctx, volumeKey(ip)).Result()
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := d.redis.Expire(ctx, volumeKey(ip), d.config.Window).Err(); err != nil {
		return out, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var agentsPerIP, originsPerAgent int64
	if userAgent != "" {
		if err := d.redis.SAdd(ctx, ipAgentsKey(ip), userAgent).Err(); err != nil {
			return out, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if err := d.redis.Expire(ctx, ipAgentsKey(ip), d.config.Window).Err(); err != nil {
			return out, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		agentsPerIP, err = d.redis.SCard(ctx, ipAgentsKey(ip)).Result()
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}

		if err := d.redis.SAdd(ctx, agentOriginsKey(userAgent), ip).Err(); err != nil {
			return out, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if err := d.redis.Expire(ctx, agentOriginsKey(userAgent), d.config.Window).Err(); err != nil {
			return out, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		originsPerAgent, err = d.redis.SCard(ctx, agentOriginsKey(userAgent)).Result()
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if volume >= int64(d.config.VolumeThreshold) {
		out.Score += 40
		out.Signals = append(out.Signals, "high_attempt_volume")
	}
	if agentsPerIP > 3 {
		out.Score += 25
		out.Signals = append(out.Signals, "user_agent_churn")
	}
	if originsPerAgent > 5 {
		out.Score += 20
		out.Signals = append(out.Signals, "distributed_origin")
	}
	if d.offHours() {
		out.Score += 15
		out.Signals = append(out.Signals, "off_hours_activity")
	}

	if out.Score > 100 {
		out.Score = 100
	}
	out.Suspicious = out.Score >= d.config.SuspicionScore
	if out.Suspicious {
		out.Alert = d.allowAlert(ip)
	}

	return out, nil
}

func (d *Detector) offHours() bool {
	if d.config.OpenHour == 0 && d.config.CloseHour == 0 {
		return false
	}
	hour := d.now().Hour()
	openAt, closeAt := d.config.OpenHour, d.config.CloseHour
	if openAt <= closeAt {
		return hour < openAt || hour >= closeAt
	}
	// Window wraps midnight, e.g. 18 -> 2.
	return hour < openAt && hour >= closeAt
}

// allowAlert paces audit emission per IP so a sustained attack cannot
// flood the sink with duplicate alerts. Pacers idle past the window are
// swept once per window, which bounds the map under a distributed
// attack.
func (d *Detector) allowAlert(ip string) bool {
	now := d.now()

	d.mu.Lock()
	if now.After(d.nextSweep) {
		for key, pacer := range d.pacers {
			if now.Sub(pacer.lastSeen) > d.config.Window {
				delete(d.pacers, key)
			}
		}
		d.nextSweep = now.Add(d.config.Window)
	}

	pacer, ok := d.pacers[ip]
	if !ok {
		pacer = &alertPacer{limiter: xrate.NewLimiter(xrate.Every(d.config.AlertInterval), 1)}
		d.pacers[ip] = pacer
	}
	pacer.lastSeen = now
	d.mu.Unlock()

	return pacer.limiter.Allow()
}
