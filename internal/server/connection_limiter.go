package server

import (
	"sync"
	"sync/atomic"
)

// LimitReason describes why an SSE connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
)

// globalConnectionLimiter caps total concurrent SSE connections per instance.
// Lock-free counting via compare-and-swap.
type globalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalConnectionLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalConnectionLimiter) release() {
	l.current.Add(-1)
}

// ipConnectionLimiter caps concurrent SSE connections per client IP so a
// single source cannot exhaust the instance.
type ipConnectionLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func (l *ipConnectionLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ipConnectionLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 0 {
		l.ips[ip] = count - 1
		if l.ips[ip] == 0 {
			delete(l.ips, ip)
		}
	}
}

// ConnectionLimits combines the global and per-IP limiters.
type ConnectionLimits struct {
	global *globalConnectionLimiter
	perIP  *ipConnectionLimiter
}

func NewConnectionLimits(globalMax int64, perIPMax int) *ConnectionLimits {
	return &ConnectionLimits{
		global: &globalConnectionLimiter{max: globalMax},
		perIP:  &ipConnectionLimiter{ips: make(map[string]int), maxPer: perIPMax},
	}
}

// Acquire claims a slot for the given IP. On rejection the returned reason
// names the exhausted limit.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.global.acquire() {
		return false, LimitReasonGlobal
	}
	if !l.perIP.acquire(ip) {
		l.global.release()
		return false, LimitReasonPerIP
	}
	return true, ""
}

// Release frees the slot claimed by Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.perIP.release(ip)
	l.global.release()
}

// Current returns the number of connections currently held globally.
func (l *ConnectionLimits) Current() int64 {
	return l.global.current.Load()
}
