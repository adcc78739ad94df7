// Command streambench drives a fiberjobs scheduler under load: mmap a data
// file, carve it into fixed-size blocks, and hammer the scheduler with one
// job per block from a throttled producer while N worker threads run the
// queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fiberjobs/sched"
)

func main() {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = runtime.NumCPU()
	}
	if cfg.ThrottleMax == 0 {
		cfg.ThrottleMax = uint32(2 * cfg.WorkerCount)
	}
	logConfig(log, cfg)

	data, blocks, err := mapBlocks(cfg.DataFile, cfg.BlockSize)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.DataFile).Msg("mapping data file")
	}
	defer data.Unmap()
	log.Info().Int("blocks", len(blocks)).Msg("data file mapped")

	checksums := make([]uint64, len(blocks))
	for i, b := range blocks {
		checksums[i] = xxhash.Sum64(b)
	}

	s := sched.NewScheduler(sched.Options{
		JobCount:   cfg.JobCount,
		QueueCount: cfg.QueueCount,
		FiberCount: cfg.FiberCount,
		StackSize:  cfg.StackSize,
	}, log)
	prometheus.MustRegister(s.Stats())

	workers := s.RunWorkers(cfg.WorkerCount, 0, false)

	metricsSrv := startMetricsServer(cfg.MetricsAddr, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	log.Info().Int("worker_count", cfg.WorkerCount).Uint32("throttle_max", cfg.ThrottleMax).Msg("starting run")
	start := time.Now()
	runBlocks(s, blocks, checksums, cfg.ThrottleMax, uint32(cfg.WorkerCount))
	elapsed := time.Since(start)

	s.Pause()
	if err := workers.Wait(); err != nil {
		log.Error().Err(err).Msg("worker group returned an error")
	}

	totalBytes := int64(len(blocks)) * int64(cfg.BlockSize)
	gbps := float64(totalBytes) / elapsed.Seconds() / (1024 * 1024 * 1024)
	log.Info().
		Dur("elapsed", elapsed).
		Int("blocks", len(blocks)).
		Float64("gb_per_sec", gbps).
		Msg("run complete")
}

// mapBlocks memory-maps path and slices it into fixed-size, non-overlapping
// blocks. The file's size must be a multiple of blockSize.
func mapBlocks(path string, blockSize int) (mmap.MMap, [][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.Size()%int64(blockSize) != 0 {
		return nil, nil, fmt.Errorf("file size %d is not a multiple of block size %d", info.Size(), blockSize)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, err
	}

	blockCount := int(info.Size()) / blockSize
	blocks := make([][]byte, blockCount)
	for i := range blocks {
		blocks[i] = data[i*blockSize : (i+1)*blockSize]
	}
	return data, blocks, nil
}

// runBlocks enqueues a single producer job, waited on like any other unit
// of work, that repeatedly throttle-enqueues block jobs against its own
// local group and parks at threshold workerCount until there's room for
// more, finally draining to zero. Driven through Scheduler.WaitBlocking
// since the caller here is a plain goroutine with no fiber of its own.
func runBlocks(s *sched.Scheduler, blocks [][]byte, checksums []uint64, throttleMax, workerCount uint32) {
	var outer sched.Group
	outer.Init()

	producer := sched.Descriptor{
		Name: "streambench-producer",
		Func: func(job *sched.Job, _ any, _ *uint32) {
			var local sched.Group
			local.Init()

			descs := make([]sched.Descriptor, len(blocks))
			for i := range blocks {
				i := i
				descs[i] = sched.Descriptor{
					Name: fmt.Sprintf("block-%d", i),
					Func: func(*sched.Job, any, *uint32) {
						if xxhash.Sum64(blocks[i]) != checksums[i] {
							panic(fmt.Sprintf("block %d checksum mismatch", i))
						}
					},
				}
			}

			cursor := 0
			for cursor < len(descs) {
				accepted := s.EnqueueThrottled(descs[cursor:], &local, throttleMax)
				cursor += accepted
				if accepted == 0 {
					job.Wait(&local, workerCount)
				}
			}
			job.Wait(&local, 0)
		},
	}

	s.Enqueue(producer, &outer)
	s.WaitBlocking(&outer, 0)
}

func startMetricsServer(addr string, log zerolog.Logger) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: e}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}
