package benchmark

import (
	"runtime"
	"time"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario         Scenario       `json:"scenario"`
	Timestamp        time.Time      `json:"timestamp"`
	TotalDuration    time.Duration  `json:"total_duration"`
	ParseDuration    time.Duration  `json:"parse_duration"`
	ClassifyDuration time.Duration  `json:"classify_duration"`
	AverageLatency   time.Duration  `json:"average_latency"`
	ImagesPerSecond  float64        `json:"images_per_second"`
	MemoryStats      MemoryMetrics  `json:"memory_stats"`
	CPUStats         CPUMetrics     `json:"cpu_stats"`
	Labels           map[string]int `json:"labels"`
	Errors           int            `json:"errors"`
	ErrorRate        float64        `json:"error_rate"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"`
	GOMAXPROCS int `json:"gomaxprocs"`
	Goroutines int `json:"goroutines"`
}

func readMemStats() runtime.MemStats {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return m
}

func memoryMetrics(start, end runtime.MemStats) MemoryMetrics {
	return MemoryMetrics{
		AllocBytes:      end.Alloc,
		TotalAllocBytes: end.TotalAlloc - start.TotalAlloc,
		SysBytes:        end.Sys,
		NumGC:           end.NumGC - start.NumGC,
		HeapAllocBytes:  end.HeapAlloc,
		HeapSysBytes:    end.HeapSys,
	}
}

func cpuMetrics() CPUMetrics {
	return CPUMetrics{
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		Goroutines: runtime.NumGoroutine(),
	}
}
