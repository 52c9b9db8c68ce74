// Package chunkup - Chunk size catalog and upload planning
//
// This file derives an UploadConfig from a file size and a network
// classification. Stronger networks get larger chunks and more of them in
// flight; weaker networks get smaller chunks for faster failure detection
// and cheaper restarts. The catalog is static and read-only.
package chunkup

// chunkCatalog is the ordered set of chunk presets. The medium preset is
// the 10 MiB default the rest of the system assumes; jumbo matches the
// backend's native merge size.
var chunkCatalog = []ChunkSizeOption{
	{
		Name: ChunkSmall, SizeBytes: 5 * 1024 * 1024, SizeMB: 5,
		Description: "Unstable or slow connections",
		Pros:        []string{"Fast failure detection", "Cheap to restart after an interruption", "Low memory use"},
		Cons:        []string{"Most requests per file", "Per-request overhead dominates on fast links"},
	},
	{
		Name: ChunkMedium, SizeBytes: 10 * 1024 * 1024, SizeMB: 10,
		Description: "Balanced default for typical connections",
		Pros:        []string{"Good throughput for moderate bandwidth", "Reasonable restart cost"},
		Cons:        []string{"Slower failure detection than small chunks"},
	},
	{
		Name: ChunkLarge, SizeBytes: 25 * 1024 * 1024, SizeMB: 25,
		Description: "Fast and reliable connections",
		Pros:        []string{"Fewer round trips", "Higher sustained throughput"},
		Cons:        []string{"An interrupted chunk discards up to 25 MB", "Higher memory use"},
	},
	{
		Name: ChunkXLarge, SizeBytes: 50 * 1024 * 1024, SizeMB: 50,
		Description: "Very fast wired connections",
		Pros:        []string{"Minimal request overhead", "Best throughput on low-latency links"},
		Cons:        []string{"Expensive restarts", "High memory use"},
	},
	{
		Name: ChunkJumbo, SizeBytes: 100 * 1024 * 1024, SizeMB: 100,
		Description: "Datacenter links, matches the backend merge size",
		Pros:        []string{"Fewest requests per file", "Aligned with server-side chunk storage"},
		Cons:        []string{"An interrupted chunk discards up to 100 MB", "Highest memory use"},
	},
}

// ChunkOptions returns the ordered chunk size catalog. The returned
// slices are copies; the catalog itself never changes.
func ChunkOptions() []ChunkSizeOption {
	out := make([]ChunkSizeOption, len(chunkCatalog))
	for i, opt := range chunkCatalog {
		out[i] = copyOption(opt)
	}
	return out
}

func copyOption(opt ChunkSizeOption) ChunkSizeOption {
	opt.Pros = append([]string(nil), opt.Pros...)
	opt.Cons = append([]string(nil), opt.Cons...)
	return opt
}

func chunkOption(name ChunkSizeName) (ChunkSizeOption, bool) {
	for _, opt := range chunkCatalog {
		if opt.Name == name {
			return copyOption(opt), true
		}
	}
	return ChunkSizeOption{}, false
}

// stepFor maps a network class onto the automatic chunk size and
// concurrency. The table is deliberately a step function: classification
// is coarse, so the plan is too.
func stepFor(class NetworkClass) (ChunkSizeName, int) {
	switch class {
	case NetworkExcellent:
		return ChunkXLarge, 4
	case NetworkStrong:
		return ChunkLarge, 3
	case NetworkWeak:
		return ChunkSmall, 1
	default:
		return ChunkMedium, 2
	}
}

// ChunkPlanner turns a file size and a NetworkCondition into an
// UploadConfig. Planning is pure computation over the catalog and the
// tuning policy; construct one and pass it to NewBatch.
type ChunkPlanner struct {
	tuning Tuning
}

// NewChunkPlanner creates a planner with the given policy.
func NewChunkPlanner(tuning Tuning) *ChunkPlanner {
	return &ChunkPlanner{tuning: tuning}
}

// Options returns the chunk size catalog for override pickers.
func (p *ChunkPlanner) Options() []ChunkSizeOption {
	return ChunkOptions()
}

// Plan selects chunk size and concurrency for the condition and computes
// the chunk count, time estimate and resumability rating for the file.
func (p *ChunkPlanner) Plan(fileSize int64, cond NetworkCondition) UploadConfig {
	name, concurrent := stepFor(cond.Classification)
	opt, _ := chunkOption(name)
	return p.build(fileSize, cond, opt, concurrent)
}

// PlanWithOption plans with a user-chosen chunk size instead of the
// automatic one. The file size never changes; chunk count and estimate
// are recomputed, concurrency stays at the automatic choice for the
// condition.
func (p *ChunkPlanner) PlanWithOption(fileSize int64, cond NetworkCondition, name ChunkSizeName) (UploadConfig, error) {
	opt, ok := chunkOption(name)
	if !ok {
		return UploadConfig{}, ErrUnknownChunkOption
	}
	_, concurrent := stepFor(cond.Classification)
	return p.build(fileSize, cond, opt, concurrent), nil
}

func (p *ChunkPlanner) build(fileSize int64, cond NetworkCondition, opt ChunkSizeOption, concurrent int) UploadConfig {
	return UploadConfig{
		ChunkSizeName:          opt.Name,
		ChunkSizeBytes:         opt.SizeBytes,
		TotalChunks:            calculateChunks(fileSize, opt.SizeBytes),
		ConcurrentChunks:       concurrent,
		EstimatedUploadMinutes: p.estimateMinutes(fileSize, cond),
		Resumability:           resumabilityFor(opt.SizeBytes),
	}
}

// estimateMinutes projects the transfer duration from the measured upload
// throughput, substituting the nominal per-class rate when the probe
// produced no usable number.
func (p *ChunkPlanner) estimateMinutes(fileSize int64, cond NetworkCondition) float64 {
	mbps := cond.UploadMbps
	if mbps <= 0 {
		mbps = p.tuning.nominal(cond.Classification)
	}
	return float64(fileSize) * 8 / (mbps * 1e6) / 60
}

// resumabilityFor rates restart cost by chunk size tier alone. The rating
// is informational and gates nothing.
func resumabilityFor(chunkSize int64) Resumability {
	switch {
	case chunkSize <= 10*1024*1024:
		return Resumability{Excellent: true}
	case chunkSize <= 50*1024*1024:
		return Resumability{Good: true}
	default:
		return Resumability{Limited: true}
	}
}
