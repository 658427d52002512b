package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats снимок ресурсов процесса для /api/stats
type ProcessStats struct {
	Uptime     string  `json:"uptime"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSMB      float64 `json:"rss_mb"`
	AllocMB    float64 `json:"alloc_mb"`
	HeapSysMB  float64 `json:"heap_sys_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
}

// ServerMetrics содержит метрики процесса сервера
type ServerMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{StartTime: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = p
	}
	return sm
}

// Register экспортирует CPU и RSS процесса как gauge
func (sm *ServerMetrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "voxel",
			Name:      "process_cpu_percent",
			Help:      "Загрузка CPU процессом, проценты.",
		}, func() float64 {
			v, _ := sm.GetCPUUsage()
			return v
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "voxel",
			Name:      "process_rss_megabytes",
			Help:      "Резидентная память процесса, МБ.",
		}, func() float64 {
			v, _ := sm.GetRSS()
			return v
		}),
	)
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	} else {
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetRSS возвращает резидентную память процесса в MB
func (sm *ServerMetrics) GetRSS() (float64, error) {
	if sm.proc == nil {
		return 0, fmt.Errorf("процесс недоступен")
	}
	info, err := sm.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / 1024 / 1024, nil
}

// GetCPUUsage возвращает использование CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	if sm.proc != nil {
		if v, err := sm.proc.CPUPercent(); err == nil {
			return v, nil
		}
	}

	// Если не удалось получить метрику процесса, берем системную
	cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercents) == 0 {
		return 0, err
	}
	return cpuPercents[0], nil
}

// Snapshot собирает ProcessStats. Ошибки gopsutil дают нули.
func (sm *ServerMetrics) Snapshot() ProcessStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	cpuPercent, _ := sm.GetCPUUsage()
	rss, _ := sm.GetRSS()
	return ProcessStats{
		Uptime:     sm.GetUptime(),
		CPUPercent: cpuPercent,
		RSSMB:      rss,
		AllocMB:    float64(m.Alloc) / 1024 / 1024,
		HeapSysMB:  float64(m.HeapSys) / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}
