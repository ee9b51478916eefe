package syncer

import (
	"sync"
	"time"

	"github.com/redpath-audio/rxcore/stats"
	"github.com/sirupsen/logrus"
)

// ControllerConfig tunes the PI clock-drift controller. Defaults are
// conservative: small gains, tight output clamp.
type ControllerConfig struct {
	Kp       float64       // proportional gain
	Ki       float64       // integral gain
	ClampU   float64       // |u| bound, default 1e-3
	Interval time.Duration // tick period, default 20ms
}

// DefaultControllerConfig returns the conservative defaults: a tight
// output clamp of |u| <= 1e-3.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Kp:       0.02,
		Ki:       0.002,
		ClampU:   1e-3,
		Interval: 20 * time.Millisecond,
	}
}

// Controller is the slow closed-loop task that reads the EWMA-filtered
// ring-fill gauge updated by the output bridge on every callback and
// steers the syncer's resampling ratio so the fill tends toward R/2.
type Controller struct {
	cfg      ControllerConfig
	syncer   *Syncer
	setpoint float64
	fin      float64

	integral float64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewController builds a controller that steers s toward ringCapacity/2,
// retuning around the nominal input rate fin.
func NewController(s *Syncer, ringCapacity int, fin float64, cfg ControllerConfig) *Controller {
	return &Controller{
		cfg:      cfg,
		syncer:   s,
		setpoint: float64(ringCapacity) / 2,
		fin:      fin,
		stopCh:   make(chan struct{}),
	}
}

// Run starts the controller's ticking goroutine. It returns
// immediately; call Stop to terminate it.
func (c *Controller) Run() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.loop()
}

func (c *Controller) loop() {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) tick() {
	fill := stats.Global.Audio.FilteredFill()
	e := fill - c.setpoint

	c.integral += e
	if c.cfg.Ki != 0 {
		// Anti-windup: bound the integral so its own contribution
		// can't exceed the output clamp, even during a sustained
		// excursion (overrun/underrun) that would otherwise let it
		// accumulate unbounded while u stays saturated.
		c.integral = clamp(c.integral, c.cfg.ClampU/c.cfg.Ki)
	}
	u := c.cfg.Kp*e + c.cfg.Ki*c.integral
	u = clamp(u, c.cfg.ClampU)

	c.syncer.ChangeRate(c.fin * (1 + u))

	logrus.WithFields(logrus.Fields{
		"function": "Controller.tick",
		"fill":     fill,
		"error":    e,
		"u":        u,
	}).Debug("Syncer controller step")
}

// Stop terminates the controller's goroutine. Safe to call once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
}

func clamp(u, bound float64) float64 {
	if u > bound {
		return bound
	}
	if u < -bound {
		return -bound
	}
	return u
}
