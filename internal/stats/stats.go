package stats

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	globalCounters *Counters
	once           sync.Once
)

// Counters tallies download activity over the process lifetime.
type Counters struct {
	mu        sync.RWMutex
	StartTime time.Time

	TotalDownloads   int64
	SuccessDownloads int64
	FailedDownloads  int64
	CancelledCount   int64
	AudioDownloads   int64
	VideoDownloads   int64
	TotalBytes       int64

	UniqueUsers map[int64]bool

	NetSentBaseline uint64
	NetRecvBaseline uint64
}

func GetCounters() *Counters {
	once.Do(func() {
		globalCounters = &Counters{
			StartTime:   time.Now(),
			UniqueUsers: make(map[int64]bool),
		}
		if netStats, err := net.IOCounters(false); err == nil && len(netStats) > 0 {
			globalCounters.NetSentBaseline = netStats[0].BytesSent
			globalCounters.NetRecvBaseline = netStats[0].BytesRecv
		}
	})
	return globalCounters
}

type Result int

const (
	ResultSuccess Result = iota
	ResultFailed
	ResultCancelled
)

func (c *Counters) RecordDownload(userID int64, audio bool, bytes int64, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.TotalDownloads++
	c.TotalBytes += bytes
	c.UniqueUsers[userID] = true

	switch result {
	case ResultSuccess:
		c.SuccessDownloads++
	case ResultFailed:
		c.FailedDownloads++
	case ResultCancelled:
		c.CancelledCount++
	}

	if result == ResultSuccess {
		if audio {
			c.AudioDownloads++
		} else {
			c.VideoDownloads++
		}
	}
}

// Snapshot returns a consistent copy of the counters for rendering.
func (c *Counters) Snapshot() Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Counters{
		StartTime:        c.StartTime,
		TotalDownloads:   c.TotalDownloads,
		SuccessDownloads: c.SuccessDownloads,
		FailedDownloads:  c.FailedDownloads,
		CancelledCount:   c.CancelledCount,
		AudioDownloads:   c.AudioDownloads,
		VideoDownloads:   c.VideoDownloads,
		TotalBytes:       c.TotalBytes,
		UniqueUsers:      map[int64]bool{},
	}
}

func (c *Counters) UserCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.UniqueUsers)
}

type SystemInfo struct {
	OS           string
	Hostname     string
	SystemUptime time.Duration

	CPUCores int
	CPUUsage float64

	MemUsed      uint64
	MemTotal     uint64
	MemPercent   float64
	MemAvailable uint64

	DiskUsed    uint64
	DiskTotal   uint64
	DiskPercent float64
	DiskFree    uint64

	NetSent uint64
	NetRecv uint64

	ProcessPID    int
	ProcessUptime time.Duration
	ProcessCPU    float64
	ProcessMem    uint64

	GoVersion  string
	Goroutines int
	HeapAlloc  uint64
	GCRuns     uint32
}

func GetSystemInfo() (*SystemInfo, error) {
	info := &SystemInfo{}

	if hostInfo, err := host.Info(); err == nil {
		info.OS = hostInfo.OS
		info.Hostname = hostInfo.Hostname
		info.SystemUptime = time.Duration(hostInfo.Uptime) * time.Second
	}

	if cpuPercent, err := cpu.Percent(time.Second, false); err == nil && len(cpuPercent) > 0 {
		info.CPUUsage = cpuPercent[0]
	}
	info.CPUCores = runtime.NumCPU()

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.MemUsed = memInfo.Used
		info.MemTotal = memInfo.Total
		info.MemPercent = memInfo.UsedPercent
		info.MemAvailable = memInfo.Available
	}

	if diskInfo, err := disk.Usage("/"); err == nil {
		info.DiskUsed = diskInfo.Used
		info.DiskTotal = diskInfo.Total
		info.DiskPercent = diskInfo.UsedPercent
		info.DiskFree = diskInfo.Free
	}

	if netStats, err := net.IOCounters(false); err == nil && len(netStats) > 0 {
		counters := GetCounters()
		info.NetSent = netStats[0].BytesSent - counters.NetSentBaseline
		info.NetRecv = netStats[0].BytesRecv - counters.NetRecvBaseline
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpuPercent, err := proc.CPUPercent(); err == nil {
			info.ProcessCPU = cpuPercent
		}
		if memInfo, err := proc.MemoryInfo(); err == nil {
			info.ProcessMem = memInfo.RSS
		}
	}

	info.ProcessPID = os.Getpid()
	info.ProcessUptime = time.Since(GetCounters().StartTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	info.GoVersion = runtime.Version()
	info.Goroutines = runtime.NumGoroutine()
	info.HeapAlloc = m.Alloc
	info.GCRuns = m.NumGC

	return info, nil
}
