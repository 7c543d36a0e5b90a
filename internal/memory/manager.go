package memory

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// manager implements the MemoryManager interface
type manager struct {
	config MemoryConfig

	// Memory tracking
	mu        sync.RWMutex
	limit     int64
	caches    map[string]Cache
	lastUsage MemoryUsage

	// Callbacks
	pressureCallbacks []func(usage MemoryUsage)
	releaseCallbacks  []func(freed int64)

	// Monitoring
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	monitor *Monitor

	// Pressure tracking
	lastPressureLevel MemoryPressureLevel
}

// NewManager creates a new memory manager with the given configuration. In
// streamcluster this wraps the clustering core's fixed-size state — the
// distance cache and visitor index are registered as Cache implementations
// (see streamcluster.New) so that GetUsage and the pressure callbacks see
// real numbers instead of the ambient Go heap alone.
func NewManager(config MemoryConfig) MemoryManager {
	// Ensure config has default values if not set
	if config.PressureThresholds == nil {
		config.PressureThresholds = DefaultMemoryConfig().PressureThresholds
	}
	if config.MonitorInterval == 0 {
		config.MonitorInterval = DefaultMemoryConfig().MonitorInterval
	}

	return &manager{
		config:            config,
		limit:             config.MaxMemory,
		caches:            make(map[string]Cache),
		pressureCallbacks: make([]func(usage MemoryUsage), 0),
		releaseCallbacks:  make([]func(freed int64), 0),
		done:              make(chan struct{}),
		lastPressureLevel: NoPressure,
		monitor:           NewMonitor(720, config.MonitorInterval),
	}
}

// SetLimit configures the maximum memory usage in bytes
func (m *manager) SetLimit(bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bytes < 0 {
		return fmt.Errorf("memory limit cannot be negative: %d", bytes)
	}

	m.limit = bytes
	m.config.MaxMemory = bytes

	// Check if we're already over the new limit
	if bytes > 0 {
		usage := m.getCurrentUsage()
		if usage.Total > bytes {
			// Trigger immediate pressure response
			go m.handleMemoryPressure(usage)
		}
	}

	return nil
}

// GetUsage returns current memory usage statistics
func (m *manager) GetUsage() MemoryUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCurrentUsage()
}

// getCurrentUsage calculates current memory usage (must be called with lock held)
func (m *manager) getCurrentUsage() MemoryUsage {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Calculate cache usage (distance cache + visitor index, when registered)
	var cacheUsage int64
	for _, cache := range m.caches {
		cacheUsage += cache.Size()
	}

	heapUsage := int64(memStats.HeapInuse)

	usage := MemoryUsage{
		Total:     heapUsage,
		Anchors:   heapUsage - cacheUsage, // approximate: everything not in a registered cache
		Caches:    cacheUsage,
		Limit:     m.limit,
		Timestamp: time.Now(),
	}

	if m.limit > 0 {
		usage.Available = m.limit - heapUsage
		if usage.Available < 0 {
			usage.Available = 0
		}
	} else {
		usage.Available = -1 // Unlimited
	}

	m.lastUsage = usage
	return usage
}

// TriggerGC forces garbage collection
func (m *manager) TriggerGC() error {
	runtime.GC()
	runtime.GC() // Run twice for better cleanup
	return nil
}

// RegisterCache registers a cache for memory management
func (m *manager) RegisterCache(name string, cache Cache) error {
	if cache == nil {
		return fmt.Errorf("cache cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.caches[name]; exists {
		return fmt.Errorf("cache with name %s already registered", name)
	}

	m.caches[name] = cache
	return nil
}

// UnregisterCache removes a cache from management
func (m *manager) UnregisterCache(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.caches[name]; !exists {
		return fmt.Errorf("cache with name %s not found", name)
	}

	delete(m.caches, name)
	return nil
}

// OnMemoryPressure registers a callback for memory pressure events
func (m *manager) OnMemoryPressure(callback func(usage MemoryUsage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressureCallbacks = append(m.pressureCallbacks, callback)
}

// OnMemoryRelease registers a callback for memory release events
func (m *manager) OnMemoryRelease(callback func(freed int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCallbacks = append(m.releaseCallbacks, callback)
}

// Start begins memory monitoring
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return fmt.Errorf("memory manager already started")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	go m.monitorLoop()

	return nil
}

// Stop ends memory monitoring
func (m *manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return fmt.Errorf("memory manager not started")
	}

	m.cancel()

	// Wait for monitor loop to finish
	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		// Timeout waiting for graceful shutdown
	}

	m.ctx = nil
	m.cancel = nil

	return nil
}

// monitorLoop runs the memory monitoring in a separate goroutine
func (m *manager) monitorLoop() {
	defer close(m.done)

	// Safety check for context
	m.mu.RLock()
	ctx := m.ctx
	interval := m.config.MonitorInterval
	m.mu.RUnlock()

	if ctx == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkMemoryUsage()
		}
	}
}

// checkMemoryUsage monitors memory and triggers appropriate responses
func (m *manager) checkMemoryUsage() {
	m.mu.RLock()
	usage := m.getCurrentUsage()
	limit := m.limit
	config := m.config
	ctx := m.ctx
	monitor := m.monitor
	m.mu.RUnlock()

	if monitor != nil {
		monitor.TakeSnapshot(usage.Caches, usage.Anchors, usage.Total)
	}

	// Skip pressure monitoring if no limit is set or context is nil
	if limit <= 0 || ctx == nil {
		return
	}

	usageRatio := float64(usage.Total) / float64(limit)

	// Determine pressure level
	pressureLevel := m.calculatePressureLevel(usageRatio)

	// Trigger pressure callbacks if level changed
	if pressureLevel != m.lastPressureLevel && pressureLevel != NoPressure {
		m.handleMemoryPressure(usage)
		m.lastPressureLevel = pressureLevel
	}

	// Trigger automatic GC if enabled and threshold exceeded
	if config.EnableGC && usageRatio >= config.GCThreshold {
		beforeGC := usage.Total
		m.TriggerGC()

		// Measure freed memory
		afterUsage := m.GetUsage()
		freed := beforeGC - afterUsage.Total
		if freed > 0 {
			m.notifyMemoryRelease(freed)
		}
	}
}

// calculatePressureLevel determines the current memory pressure level
func (m *manager) calculatePressureLevel(usageRatio float64) MemoryPressureLevel {
	thresholds := m.config.PressureThresholds

	// Use default thresholds if not configured
	if thresholds == nil {
		thresholds = DefaultMemoryConfig().PressureThresholds
	}

	if usageRatio >= thresholds[CriticalPressure] {
		return CriticalPressure
	} else if usageRatio >= thresholds[HighPressure] {
		return HighPressure
	} else if usageRatio >= thresholds[ModeratePressure] {
		return ModeratePressure
	} else if usageRatio >= thresholds[LowPressure] {
		return LowPressure
	}

	return NoPressure
}

// handleMemoryPressure responds to memory pressure by evicting from
// registered caches. In streamcluster this means the distance cache first
// (its entries are cheap to recompute on demand from anchors) and the
// visitor index next (gprob degrades gracefully to an empty suffix).
func (m *manager) handleMemoryPressure(usage MemoryUsage) {
	if usage.Limit <= 0 {
		return
	}

	targetUsage := int64(float64(usage.Limit) * 0.8) // Target 80% usage
	needToFree := usage.Total - targetUsage

	if needToFree <= 0 {
		return
	}

	totalFreed := m.evictFromCaches(needToFree)

	m.notifyPressureCallbacks(usage)

	if totalFreed > 0 {
		m.notifyMemoryRelease(totalFreed)
	}
}

// evictFromCaches attempts to free memory from registered caches
func (m *manager) evictFromCaches(targetBytes int64) int64 {
	m.mu.RLock()
	caches := make([]Cache, 0, len(m.caches))
	for _, cache := range m.caches {
		caches = append(caches, cache)
	}
	m.mu.RUnlock()

	var totalFreed int64
	remainingToFree := targetBytes

	// Evict from each cache proportionally
	for _, cache := range caches {
		if remainingToFree <= 0 {
			break
		}

		cacheSize := cache.Size()
		if cacheSize == 0 {
			continue
		}

		// Calculate how much to evict from this cache
		toEvict := remainingToFree
		if cacheSize < toEvict {
			toEvict = cacheSize
		}

		freed := cache.Evict(toEvict)
		totalFreed += freed
		remainingToFree -= freed
	}

	return totalFreed
}

// notifyPressureCallbacks calls all registered pressure callbacks
func (m *manager) notifyPressureCallbacks(usage MemoryUsage) {
	m.mu.RLock()
	callbacks := make([]func(usage MemoryUsage), len(m.pressureCallbacks))
	copy(callbacks, m.pressureCallbacks)
	m.mu.RUnlock()

	for _, callback := range callbacks {
		go callback(usage)
	}
}

// notifyMemoryRelease calls all registered release callbacks
func (m *manager) notifyMemoryRelease(freed int64) {
	m.mu.RLock()
	callbacks := make([]func(freed int64), len(m.releaseCallbacks))
	copy(callbacks, m.releaseCallbacks)
	m.mu.RUnlock()

	for _, callback := range callbacks {
		go callback(freed)
	}
}

// Snapshots returns the memory measurement history collected since Start.
func (m *manager) Snapshots() []MemorySnapshot {
	m.mu.RLock()
	monitor := m.monitor
	m.mu.RUnlock()

	if monitor == nil {
		return nil
	}
	return monitor.GetSnapshots()
}

// HandleMemoryLimitExceeded provides graceful handling when memory limits are exceeded
func (m *manager) HandleMemoryLimitExceeded() error {
	usage := m.GetUsage()

	if usage.Limit <= 0 {
		return nil // No limit set
	}

	if usage.Total <= usage.Limit {
		return nil // Not exceeded
	}

	// Calculate how much we need to free
	excessMemory := usage.Total - usage.Limit
	targetFree := excessMemory + (usage.Limit / 10) // Free 10% extra as buffer

	var totalFreed int64

	// Step 1: Force garbage collection
	beforeGC := usage.Total
	m.TriggerGC()
	afterGC := m.GetUsage().Total
	gcFreed := beforeGC - afterGC
	totalFreed += gcFreed

	if totalFreed >= targetFree {
		m.notifyMemoryRelease(totalFreed)
		return nil
	}

	// Step 2: Evict from caches aggressively
	cacheFreed := m.evictFromCaches(targetFree - totalFreed)
	totalFreed += cacheFreed

	if totalFreed >= targetFree {
		m.notifyMemoryRelease(totalFreed)
		return nil
	}

	// Step 3: if still over limit, surface it rather than crash — the
	// caller (the assignment engine's overflow policy) decides what to do
	// next.
	finalUsage := m.GetUsage()
	if finalUsage.Total > finalUsage.Limit {
		return fmt.Errorf("unable to reduce memory usage below limit: current=%d, limit=%d, freed=%d",
			finalUsage.Total, finalUsage.Limit, totalFreed)
	}

	m.notifyMemoryRelease(totalFreed)
	return nil
}
