// Package metrics periodically samples system resource usage during a run.
// The extraction is alternately CPU bound (decoding, filtering) and I/O
// bound (node cache, sink), so the log line pairs process CPU with disk
// throughput and iowait to show which side is limiting.
package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot is one metrics sample.
type Snapshot struct {
	CPUPercent        float64
	ProcessCPUPercent float64
	IOWaitPercent     float64
	MemoryUsedGB      float64
	MemoryPercent     float64
	DiskReadMBps      float64
	DiskWriteMBps     float64
	Timestamp         time.Time
}

// Collector logs a Snapshot at a fixed interval.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastDiskStats map[string]disk.IOCountersStat
	lastDiskTime  time.Time
	lastCPUTimes  cpu.TimesStat
	hasCPUTimes   bool

	mu   sync.RWMutex
	last *Snapshot
}

func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{interval: interval, logger: logger, proc: proc}
}

// Start collects until the context is cancelled. The first sample seeds the
// disk and CPU baselines and reports zero rates.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Last returns the most recent sample, or nil before the first.
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) collect() {
	s := &Snapshot{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
	}
	s.IOWaitPercent = c.ioWait()

	if vmem, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vmem.UsedPercent
		s.MemoryUsedGB = float64(vmem.Used) / (1 << 30)
	}

	s.DiskReadMBps, s.DiskWriteMBps = c.diskRates()

	c.mu.Lock()
	c.last = s
	c.mu.Unlock()

	c.logger.Info("System metrics",
		zap.String("sys_cpu", fmt.Sprintf("%.1f%%", s.CPUPercent)),
		zap.String("proc_cpu", fmt.Sprintf("%.1f%%", s.ProcessCPUPercent)),
		zap.String("iowait", fmt.Sprintf("%.1f%%", s.IOWaitPercent)),
		zap.String("mem", fmt.Sprintf("%.1f GB (%.0f%%)", s.MemoryUsedGB, s.MemoryPercent)),
		zap.String("disk_r", fmt.Sprintf("%.1f MB/s", s.DiskReadMBps)),
		zap.String("disk_w", fmt.Sprintf("%.1f MB/s", s.DiskWriteMBps)),
	)
}

func (c *Collector) ioWait() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}
	current := times[0]
	if !c.hasCPUTimes {
		c.lastCPUTimes = current
		c.hasCPUTimes = true
		return 0
	}
	last := c.lastCPUTimes
	c.lastCPUTimes = current

	total := (current.User - last.User) +
		(current.System - last.System) +
		(current.Idle - last.Idle) +
		(current.Iowait - last.Iowait) +
		(current.Irq - last.Irq) +
		(current.Softirq - last.Softirq) +
		(current.Steal - last.Steal)
	if total <= 0 {
		return 0
	}
	return (current.Iowait - last.Iowait) / total * 100
}

func (c *Collector) diskRates() (readMBps, writeMBps float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}
	now := time.Now()

	if c.lastDiskStats == nil {
		c.lastDiskStats = counters
		c.lastDiskTime = now
		return 0, 0
	}

	elapsed := now.Sub(c.lastDiskTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var readDelta, writeDelta uint64
	for name, counter := range counters {
		if last, ok := c.lastDiskStats[name]; ok {
			if counter.ReadBytes >= last.ReadBytes {
				readDelta += counter.ReadBytes - last.ReadBytes
			}
			if counter.WriteBytes >= last.WriteBytes {
				writeDelta += counter.WriteBytes - last.WriteBytes
			}
		}
	}
	c.lastDiskStats = counters
	c.lastDiskTime = now

	return float64(readDelta) / elapsed / (1 << 20), float64(writeDelta) / elapsed / (1 << 20)
}
