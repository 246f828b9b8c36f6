// Package controller implements the Self-Healing Controller (spec.md
// §4.4): a periodic sampler that trips and clears hysteresis-latched
// mitigations against the shared control.Snapshot the Engine and
// Fan-out Layer read lock-free.
package controller

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"typerace/internal/control"
	"typerace/internal/logx"
	"typerace/internal/metrics"
)

const sampleInterval = 10 * time.Second

// Hysteresis thresholds (spec.md §4.4).
const (
	memoryTripPct    = 0.90
	memoryRecoverPct = 0.70

	loadTripPerCPU    = 0.80
	loadRecoverPerCPU = 0.60

	gameCountTrip    = 100
	gameCountRecover = 80

	idleGameMaxAgeMs = 5 * 60 * 1000
)

// GameEngine is the subset of *engine.Engine the Controller needs. It is
// declared here, not imported from engine, so the two packages don't
// depend on each other's concrete types.
type GameEngine interface {
	ActiveSessionCount() int
	TerminateIdleGames(maxAgeMs int64, limit int) int
}

// LoadSampler reports the 1-minute load average. Swappable for tests and
// for platforms where it can't be read (returns 0, false).
type LoadSampler interface {
	LoadAverage1Min() (float64, bool)
}

// Controller owns the mitigation flags and the deferred-operations queue.
type Controller struct {
	flags  *control.Snapshot
	engine GameEngine
	load   LoadSampler

	memoryTripped    atomic.Bool
	cpuTripped       atomic.Bool
	gameCountTripped atomic.Bool

	deferred *deferredQueue
}

// New wires a Controller against the shared flags snapshot and the
// Engine it mitigates.
func New(flags *control.Snapshot, engine GameEngine, load LoadSampler) *Controller {
	c := &Controller{flags: flags, engine: engine, load: load}
	c.deferred = newDeferredQueue(flags)
	return c
}

// Start launches the 10s sampling loop and the deferred-queue drainer.
// Both stop when the returned function is called.
func (c *Controller) Start() (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.sample()
			}
		}
	}()
	stopDeferred := c.deferred.start()
	return func() {
		close(done)
		stopDeferred()
		wg.Wait()
	}
}

// DashboardSnapshot is a point-in-time read of the controller's
// mitigation state, for the monitoring dashboard endpoint.
type DashboardSnapshot struct {
	MemoryTripped      bool          `json:"memoryTripped"`
	CPUTripped         bool          `json:"cpuTripped"`
	GameCountTripped   bool          `json:"gameCountTripped"`
	DeferredQueueDepth int           `json:"deferredQueueDepth"`
	Flags              control.Flags `json:"flags"`
}

// Snapshot returns the controller's current mitigation state.
func (c *Controller) Snapshot() DashboardSnapshot {
	return DashboardSnapshot{
		MemoryTripped:      c.memoryTripped.Load(),
		CPUTripped:         c.cpuTripped.Load(),
		GameCountTripped:   c.gameCountTripped.Load(),
		DeferredQueueDepth: c.deferred.depth(),
		Flags:              c.flags.Load(),
	}
}

// QueueResourceIntensiveOperation submits a task for deferred execution
// when deferResourceIntensiveOps is set (spec.md §4.4).
func (c *Controller) QueueResourceIntensiveOperation(task func() error, priority int) {
	c.deferred.submit(task, priority)
}

func (c *Controller) sample() {
	memPct := heapUsagePct()
	loadPerCPU := 0.0
	if c.load != nil {
		if avg, ok := c.load.LoadAverage1Min(); ok {
			cores := runtime.NumCPU()
			if cores > 0 {
				loadPerCPU = avg / float64(cores)
			}
		}
	}
	activeSessions := c.engine.ActiveSessionCount()

	logx.Debugf("controller snapshot memPct=%.2f loadPerCpu=%.2f activeSessions=%d", memPct, loadPerCPU, activeSessions)
	metrics.MemoryUsageGauge.WithLabelValues().Set(memPct)

	c.evaluateMemory(memPct)
	c.evaluateCPU(loadPerCPU)
	c.evaluateGameCount(activeSessions)
}

func (c *Controller) evaluateMemory(memPct float64) {
	switch {
	case !c.memoryTripped.Load() && memPct > memoryTripPct:
		c.memoryTripped.Store(true)
		c.tripMemory()
	case c.memoryTripped.Load() && memPct < memoryRecoverPct:
		c.memoryTripped.Store(false)
		c.recoverMemory()
	}
	metrics.MitigationActiveGauge.WithLabelValues("memory").Set(boolToFloat(c.memoryTripped.Load()))
}

func (c *Controller) tripMemory() {
	logx.Warnf("memory mitigation tripped")
	c.flags.Update(func(f *control.Flags) { f.AcceptingNewPlayers = false })
	runtime.GC()
	c.ClearCaches()

	if heapUsagePct() > memoryTripPct {
		terminated := c.engine.TerminateIdleGames(idleGameMaxAgeMs, 0)
		if terminated > 0 {
			metrics.IdleGamesTerminatedCounter.WithLabelValues().Add(float64(terminated))
		}
	}
}

func (c *Controller) recoverMemory() {
	logx.Infof("memory mitigation recovered")
	c.flags.Update(func(f *control.Flags) { f.AcceptingNewPlayers = true })
}

func (c *Controller) evaluateCPU(loadPerCPU float64) {
	switch {
	case !c.cpuTripped.Load() && loadPerCPU > loadTripPerCPU:
		c.cpuTripped.Store(true)
		c.tripCPU()
	case c.cpuTripped.Load() && loadPerCPU < loadRecoverPerCPU:
		c.cpuTripped.Store(false)
		c.recoverCPU()
	}
	metrics.MitigationActiveGauge.WithLabelValues("cpu").Set(boolToFloat(c.cpuTripped.Load()))
}

func (c *Controller) tripCPU() {
	logx.Warnf("cpu mitigation tripped")
	c.flags.Update(func(f *control.Flags) {
		f.UpdateFrequency = control.UpdateFrequencyLow
		f.ThrottlingEnabled = true
		f.DeferResourceIntensiveOps = true
		f.ReplaySnapshotIntervalMs = 500
	})
}

func (c *Controller) recoverCPU() {
	logx.Infof("cpu mitigation recovered")
	def := control.Default()
	c.flags.Update(func(f *control.Flags) {
		f.UpdateFrequency = def.UpdateFrequency
		f.ThrottlingEnabled = def.ThrottlingEnabled
		f.DeferResourceIntensiveOps = def.DeferResourceIntensiveOps
		f.ReplaySnapshotIntervalMs = def.ReplaySnapshotIntervalMs
	})
}

func (c *Controller) evaluateGameCount(active int) {
	switch {
	case !c.gameCountTripped.Load() && active > gameCountTrip:
		c.gameCountTripped.Store(true)
		c.tripGameCount()
	case c.gameCountTripped.Load() && active < gameCountRecover:
		c.gameCountTripped.Store(false)
		c.recoverGameCount()
	}
	metrics.MitigationActiveGauge.WithLabelValues("game_count").Set(boolToFloat(c.gameCountTripped.Load()))
}

func (c *Controller) tripGameCount() {
	logx.Warnf("game-count mitigation tripped")
	c.flags.Update(func(f *control.Flags) {
		f.GameCreationQueueEnabled = true
		f.MaxPlayersDelta = 1
		f.ReplayRetentionMs = 900_000
		f.CreationBackoffEnabled = true
	})
}

func (c *Controller) recoverGameCount() {
	logx.Infof("game-count mitigation recovered")
	def := control.Default()
	c.flags.Update(func(f *control.Flags) {
		f.GameCreationQueueEnabled = def.GameCreationQueueEnabled
		f.MaxPlayersDelta = def.MaxPlayersDelta
		f.ReplayRetentionMs = def.ReplayRetentionMs
		f.CreationBackoffEnabled = def.CreationBackoffEnabled
	})
}

// ClearCaches is the cache-compaction mitigation action (spec.md §4.3):
// it asks the replay store to compact, synchronously on the caller's
// goroutine.
func (c *Controller) ClearCaches() {
	if compactor, ok := c.engine.(interface{ CompactReplays() }); ok {
		compactor.CompactReplays()
	}
}

func heapUsagePct() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return 0
	}
	return float64(m.HeapInuse) / float64(m.HeapSys)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
