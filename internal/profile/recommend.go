package profile

// Fixed limits for the advisory rules. Absolute values, not configuration.
const (
	memoryCeilingMB    = 1000 // above this peak, suggest a bigger tier
	memoryFloorMB      = 100  // below this average, flag over-provisioning
	latencyCeilingP99  = 50   // ms; above this average, suggest tier/optimization
	throughputFloorSec = 1    // events/sec; below this average, verify the source
)

// Recommendations maps a pipeline's aggregate statistics to an ordered list
// of tuning advisories. Rules are evaluated independently — several may fire
// and all are returned, in this fixed order. When none fire, a single
// healthy advisory is returned.
func Recommendations(st *PipelineStats) []string {
	var out []string

	if st.MemoryMB.Trend == TrendIncreasing {
		out = append(out, "Memory usage is increasing - monitor for potential memory leaks")
	}
	if st.MemoryMB.Max > memoryCeilingMB {
		out = append(out, "High memory usage detected - consider increasing tier or optimizing pipeline")
	}
	if st.MemoryMB.Avg < memoryFloorMB {
		out = append(out, "Low memory usage - pipeline may be over-provisioned")
	}
	if st.LatencyP99Ms.Trend == TrendIncreasing {
		out = append(out, "Latency is increasing - check for performance degradation")
	}
	if st.LatencyP99Ms.Avg > latencyCeilingP99 {
		out = append(out, "High average latency - consider tier upgrade or optimization")
	}
	if st.ThroughputPerSec.Trend == TrendDecreasing {
		out = append(out, "Throughput is decreasing - investigate potential bottlenecks")
	}
	if st.ThroughputPerSec.Avg < throughputFloorSec {
		out = append(out, "Low throughput detected - verify data source and processing logic")
	}

	if len(out) == 0 {
		out = append(out, "Pipeline performance appears healthy")
	}
	return out
}
