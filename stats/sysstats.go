/*
Copyright (c) hostp2pd authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
)

// SysSampler periodically folds process- and runtime-level samples into
// a Registry under the hostp2pd.sys.* namespace.
type SysSampler struct {
	registry *Registry
	proc     *process.Process
	started  time.Time
}

// NewSysSampler builds a sampler for the current process.
func NewSysSampler(registry *Registry) (*SysSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &SysSampler{registry: registry, proc: proc, started: time.Now()}, nil
}

// Run samples every interval until ctx is done.
func (s *SysSampler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *SysSampler) sampleOnce() {
	uptime := int64(time.Since(s.started).Seconds())
	s.registry.mu.Lock()
	s.registry.counters["hostp2pd.sys.uptime"] = uptime
	s.registry.counters["hostp2pd.sys.num_goroutine"] = int64(runtime.NumGoroutine())
	s.registry.counters["hostp2pd.sys.num_cgo_call"] = runtime.NumCgoCall()
	s.registry.mu.Unlock()

	if cpuPct, err := s.proc.CPUPercent(); err == nil {
		s.registry.mu.Lock()
		s.registry.counters["hostp2pd.sys.cpu_pct"] = int64(cpuPct)
		s.registry.mu.Unlock()
	} else {
		log.Debugf("sysstats: cpu percent unavailable: %v", err)
	}

	if mem, err := s.proc.MemoryInfo(); err == nil {
		s.registry.mu.Lock()
		s.registry.counters["hostp2pd.sys.rss"] = int64(mem.RSS)
		s.registry.counters["hostp2pd.sys.vms"] = int64(mem.VMS)
		s.registry.counters["hostp2pd.sys.swap"] = int64(mem.Swap)
		s.registry.mu.Unlock()
	} else {
		log.Debugf("sysstats: memory info unavailable: %v", err)
	}

	if fds, err := s.proc.NumFDs(); err == nil {
		s.registry.mu.Lock()
		s.registry.counters["hostp2pd.sys.num_fds"] = int64(fds)
		s.registry.mu.Unlock()
	}

	if threads, err := s.proc.NumThreads(); err == nil {
		s.registry.mu.Lock()
		s.registry.counters["hostp2pd.sys.num_threads"] = int64(threads)
		s.registry.mu.Unlock()
	}

	var mstats runtime.MemStats
	runtime.ReadMemStats(&mstats)
	s.registry.mu.Lock()
	s.registry.counters["hostp2pd.sys.heap_alloc"] = int64(mstats.HeapAlloc)
	s.registry.counters["hostp2pd.sys.heap_sys"] = int64(mstats.HeapSys)
	s.registry.counters["hostp2pd.sys.heap_idle"] = int64(mstats.HeapIdle)
	s.registry.counters["hostp2pd.sys.heap_inuse"] = int64(mstats.HeapInuse)
	s.registry.counters["hostp2pd.sys.mallocs"] = int64(mstats.Mallocs)
	s.registry.counters["hostp2pd.sys.frees"] = int64(mstats.Frees)
	s.registry.mu.Unlock()
}
