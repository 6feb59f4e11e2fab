package hypertune

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//////
// GPU slot pool and device queries.
//
// When more workers than devices are configured, each device's free
// memory is divided fairly among the workers sharing it. Every share
// becomes a reusable slot; a worker holds at most one slot for the
// duration of exactly one trial and returns it afterwards no matter how
// the trial ended.
//////

const (
	// epsilonMemoryMB is subtracted when a configured limit has to be
	// clamped to a device's free memory.
	epsilonMemoryMB = 100

	// reservedMemoryPerWorkerMB is the per-worker margin kept free on a
	// device for framework overhead outside the model's own allocations.
	reservedMemoryPerWorkerMB = 100
)

// GPUSlot is a reusable claim on a fraction of one accelerator's memory.
type GPUSlot struct {
	// DeviceID is the device the slot pins trials to.
	DeviceID string

	// MemoryLimit is the trial's memory cap on that device, in MB. Zero
	// means the whole device.
	MemoryLimit float64
}

// gpuSlotPool hands out slots through a concurrency-safe queue. Acquire
// blocks until a slot is free; release must be called exactly once per
// acquire, on every exit path.
type gpuSlotPool struct {
	slots chan GPUSlot
	count int
}

func (p *gpuSlotPool) acquire() GPUSlot {
	return <-p.slots
}

func (p *gpuSlotPool) release(slot GPUSlot) {
	p.slots <- slot
}

// available reports how many slots are currently idle.
func (p *gpuSlotPool) available() int {
	return len(p.slots)
}

// buildGPUSlotPool computes per-device memory limits and fills the pool.
//
// With fewer devices than workers, each device's limit is a fair fraction
// of its free memory (len(devices)/numWorkers minus epsilon), shrunk by a
// per-worker reserved margin when no explicit limit is configured. An
// explicit limit exceeding free memory is clamped below it. Sub- and
// over-utilizing limits are logged, never fatal. With at least as many
// devices as workers each device holds a single slot with the configured
// limit.
func buildGPUSlotPool(deviceIDs []string, freeMemory []float64, numWorkers int, epsilon, memoryLimit float64, logger *zap.Logger) (*gpuSlotPool, error) {
	type deviceMeta struct {
		memoryLimit   float64
		processPerGPU int
	}

	meta := make(map[string]deviceMeta, len(deviceIDs))

	if len(deviceIDs) < numWorkers {
		fraction := float64(len(deviceIDs))/float64(numWorkers) - epsilon

		for _, id := range deviceIDs {
			idx, err := strconv.Atoi(strings.TrimSpace(id))
			if err != nil || idx < 0 || idx >= len(freeMemory) {
				return nil, newConfigurationError("unknown gpu device id: %q", id)
			}

			free := freeMemory[idx]
			required := fraction * free

			var limit float64

			if memoryLimit == 0 {
				limit = required - reservedMemoryPerWorkerMB*float64(numWorkers)

				logger.Warn("setting gpu memory limit to the fair per-worker share",
					zap.String("gpu_id", id),
					zap.Float64("gpu_memory_limit", limit),
					zap.Int("num_gpus", len(deviceIDs)),
					zap.Int("num_workers", numWorkers),
					zap.Float64("free_memory", free),
				)
			} else {
				limit = memoryLimit

				if limit > free {
					logger.Warn("configured gpu memory limit exceeds free memory, clamping",
						zap.String("gpu_id", id),
						zap.Float64("gpu_memory_limit", memoryLimit),
						zap.Float64("free_memory", free),
					)

					limit = free - epsilonMemoryMB
				}

				switch {
				case required < limit && required > 0.5*free:
					if free != limit {
						logger.Warn("raising gpu memory limit to free memory minus an epsilon to avoid underutilizing the device",
							zap.String("gpu_id", id),
							zap.Float64("free_memory", free),
						)

						limit = free - epsilonMemoryMB
					}
				case required < limit:
					logger.Warn("lowering gpu memory limit to the fair per-worker share",
						zap.String("gpu_id", id),
						zap.Float64("gpu_memory_limit", required),
						zap.Int("num_gpus", len(deviceIDs)),
						zap.Int("num_workers", numWorkers),
						zap.Float64("free_memory", free),
					)

					limit = required
				default:
					logger.Warn("gpu memory limit could be increased",
						zap.String("gpu_id", id),
						zap.Float64("suggested_limit", required),
						zap.Int("num_gpus", len(deviceIDs)),
						zap.Int("num_workers", numWorkers),
						zap.Float64("free_memory", free),
					)
				}
			}

			if limit <= 0 {
				return nil, fmt.Errorf(
					"cannot partition gpu %s: %d workers leave no usable memory share of %.0f MB free",
					id, numWorkers, free,
				)
			}

			meta[id] = deviceMeta{
				memoryLimit:   limit,
				processPerGPU: int(free / limit),
			}
		}
	} else {
		for _, id := range deviceIDs {
			meta[id] = deviceMeta{memoryLimit: memoryLimit, processPerGPU: 1}
		}
	}

	total := 0
	for _, m := range meta {
		total += m.processPerGPU
	}

	pool := &gpuSlotPool{slots: make(chan GPUSlot, total), count: total}

	for _, id := range deviceIDs {
		m := meta[id]
		for i := 0; i < m.processPerGPU; i++ {
			pool.slots <- GPUSlot{DeviceID: id, MemoryLimit: m.memoryLimit}
		}
	}

	return pool, nil
}

//////
// Device queries.
//////

const nvidiaSMI = "nvidia-smi"

// availableGPUDevices returns the ids of the usable accelerator devices on
// this host, empty when there are none (or no management tool).
func availableGPUDevices() []string {
	out, err := exec.Command(nvidiaSMI, "--query-gpu=index", "--format=csv,noheader").Output()
	if err != nil {
		return nil
	}

	var ids []string

	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

// freeGPUMemory queries the free memory (MB) of every device. A GPU run
// cannot safely proceed without accurate figures, so failures surface to
// the caller instead of silently defaulting.
func freeGPUMemory() ([]float64, error) {
	out, err := exec.Command(nvidiaSMI, "--query-gpu=memory.free", "--format=csv").Output()
	if err != nil {
		return nil, fmt.Errorf("querying free gpu memory (is %s installed?): %w", nvidiaSMI, err)
	}

	return parseFreeMemoryOutput(out)
}

// parseFreeMemoryOutput extracts the leading number of every row of the
// management tool's tabular output, skipping the header line.
func parseFreeMemoryOutput(out []byte) ([]float64, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("unexpected free gpu memory output: %q", string(out))
	}

	values := make([]float64, 0, len(lines)-1)

	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing free gpu memory row %q: %w", line, err)
		}

		values = append(values, v)
	}

	return values, nil
}
