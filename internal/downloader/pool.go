package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"favsync/pkg/logger"
	"favsync/pkg/models"
	"favsync/pkg/retry"
)

// PageJob is one page to bring onto disk.
type PageJob struct {
	Index  int
	Page   models.Page
	Target string
}

// PageResult is the outcome of one PageJob.
type PageResult struct {
	Job      PageJob
	Skipped  bool // already on disk
	Error    error
	Duration time.Duration
	Size     int64
}

// PageFetcher downloads page bytes.
type PageFetcher interface {
	FetchPage(ctx context.Context, page models.Page) ([]byte, error)
}

// PageStorage persists pages.
type PageStorage interface {
	Exists(path string) bool
	Save(path string, r io.Reader) (int64, error)
}

// WorkerPool fetches pages concurrently, retrying each page on its own.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan PageJob
	resultQueue chan PageResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      PageFetcher
	storage     PageStorage
	retry       *retry.Config
	logger      logger.Logger
}

// NewWorkerPool creates a pool bound to ctx. A nil retryCfg means one attempt.
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	client PageFetcher,
	storage PageStorage,
	retryCfg *retry.Config,
	log logger.Logger,
) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if retryCfg == nil {
		retryCfg = retry.Constant(1, 0, log)
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan PageJob, numWorkers*2),
		resultQueue: make(chan PageResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		storage:     storage,
		retry:       retryCfg,
		logger:      log,
	}
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish, then closes Results.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit queues a job; it fails once the pool's context is done.
func (wp *WorkerPool) Submit(job PageJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel.
func (wp *WorkerPool) Results() <-chan PageResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		var result PageResult
		if err := wp.ctx.Err(); err != nil {
			result = PageResult{Job: job, Error: err}
		} else {
			result = wp.processJob(job, id)
		}
		// results are always delivered so collectors see every job
		wp.resultQueue <- result
	}
}

func (wp *WorkerPool) processJob(job PageJob, workerID int) PageResult {
	start := time.Now()
	result := PageResult{Job: job}

	if wp.storage.Exists(job.Target) {
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	err := retry.Do(wp.ctx, func() error {
		data, err := wp.client.FetchPage(wp.ctx, job.Page)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		n, err := wp.storage.Save(job.Target, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		result.Size = n
		return nil
	}, wp.retry)
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err
		wp.logger.WithError(err).ErrorWithFields("page failed", map[string]interface{}{
			"worker_id": workerID,
			"page":      job.Index,
			"url":       job.Page.URL,
		})
		return result
	}

	wp.logger.DebugWithFields("page saved", map[string]interface{}{
		"worker_id": workerID,
		"page":      job.Index,
		"size":      result.Size,
		"duration":  result.Duration,
	})
	return result
}

// Run fetches every job with the given pool size and returns the results in
// job order. onResult, if set, is called as each result arrives.
func Run(
	ctx context.Context,
	numWorkers int,
	client PageFetcher,
	storage PageStorage,
	retryCfg *retry.Config,
	log logger.Logger,
	jobs []PageJob,
	onResult func(PageResult),
) []PageResult {
	pool := NewWorkerPool(ctx, numWorkers, client, storage, retryCfg, log)
	pool.Start()

	go func() {
		for i, job := range jobs {
			if err := pool.Submit(job); err != nil {
				// the collector still expects one result per job
				for _, rest := range jobs[i:] {
					pool.resultQueue <- PageResult{Job: rest, Error: err}
				}
				break
			}
		}
		pool.Stop()
	}()

	results := make([]PageResult, 0, len(jobs))
	for r := range pool.Results() {
		if onResult != nil {
			onResult(r)
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Job.Index < results[j].Job.Index })
	return results
}
