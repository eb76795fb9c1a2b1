package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemInfo describes the host and the running binary.
type SystemInfo struct {
	OS            string    `json:"os"`
	Architecture  string    `json:"architecture"`
	Hostname      string    `json:"hostname"`
	Platform      string    `json:"platform"`
	PlatformVer   string    `json:"platform_version"`
	KernelVersion string    `json:"kernel_version"`
	BootTime      time.Time `json:"boot_time"`
	AppStart      time.Time `json:"app_start"`
	AppUptime     int64     `json:"app_uptime_seconds"`
	NumCPU        int       `json:"num_cpu"`
	GoVersion     string    `json:"go_version"`
	Version       string    `json:"version"`
}

// ResourceInfo reports memory and CPU usage of the host and this process.
type ResourceInfo struct {
	CPUUsage    float64 `json:"cpu_usage_percent"`
	MemoryTotal uint64  `json:"memory_total"`
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryUsage float64 `json:"memory_usage_percent"`
	ProcessMem  float64 `json:"process_memory_mb"`
	ProcessCPU  float64 `json:"process_cpu_percent"`
	Goroutines  int     `json:"goroutines"`
}

// getSystemInfo handles GET /api/v1/system/info
func (s *Server) getSystemInfo(c echo.Context) error {
	hostInfo, err := host.InfoWithContext(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err, "Failed to get host information", http.StatusInternalServerError)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return c.JSON(http.StatusOK, SystemInfo{
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		Hostname:      hostname,
		Platform:      hostInfo.Platform,
		PlatformVer:   hostInfo.PlatformVersion,
		KernelVersion: hostInfo.KernelVersion,
		BootTime:      time.Unix(int64(hostInfo.BootTime), 0).UTC(),
		AppStart:      s.startTime.UTC(),
		AppUptime:     int64(time.Since(s.startTime).Seconds()),
		NumCPU:        runtime.NumCPU(),
		GoVersion:     runtime.Version(),
		Version:       s.version,
	})
}

// getResourceInfo handles GET /api/v1/system/resources
func (s *Server) getResourceInfo(c echo.Context) error {
	ctx := c.Request().Context()

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s.HandleError(c, err, "Failed to get memory information", http.StatusInternalServerError)
	}

	info := ResourceInfo{
		MemoryTotal: memInfo.Total,
		MemoryUsed:  memInfo.Used,
		MemoryUsage: memInfo.UsedPercent,
		Goroutines:  runtime.NumGoroutine(),
	}

	// Zero interval compares against the previous call, so the first sample is 0.
	if percent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percent) > 0 {
		info.CPUUsage = percent[0]
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if procMem, err := proc.MemoryInfoWithContext(ctx); err == nil && procMem != nil {
			info.ProcessMem = float64(procMem.RSS) / 1024 / 1024
		}
		if procCPU, err := proc.CPUPercentWithContext(ctx); err == nil {
			info.ProcessCPU = procCPU
		}
	}

	return c.JSON(http.StatusOK, info)
}
