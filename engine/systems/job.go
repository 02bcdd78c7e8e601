package systems

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/engine/renderer/cmdpool"
)

// Job is the work of one task. worker identifies the goroutine running it
// and selects the command buffer pool the job records into.
type Job func(worker cmdpool.WorkerID) error

type JobTask struct {
	Name string
	Run  Job
	// OnComplete and OnFailure run on the worker after Run returns.
	OnComplete func(worker cmdpool.WorkerID)
	OnFailure  func(worker cmdpool.WorkerID, err error)
}

// JobSystem runs tasks on a fixed set of worker goroutines. Worker ids
// start at 1 and never change, so cmdpool.MainWorker stays free for the
// calling goroutine.
type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	core.LogDebug("job system started with %d workers", numWorkers)
	return js, nil
}

// NewJobSystemFromConfig reads the [jobs] section.
func NewJobSystemFromConfig(cfg core.JobsConfig) (*JobSystem, error) {
	return NewJobSystem(cfg.Workers, cfg.QueueSize)
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		id := cmdpool.WorkerID(i + 1)
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(id, job)
			}
		}()
	}
}

func (js *JobSystem) run(id cmdpool.WorkerID, job JobTask) {
	err := job.Run(id)
	if err != nil {
		core.LogError("job %q on worker %d: %s", job.Name, id, err)
		if job.OnFailure != nil {
			job.OnFailure(id, err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete(id)
	}
}

// Workers is the number of worker goroutines.
func (js *JobSystem) Workers() int {
	return js.numWorkers
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.Run == nil {
		return fmt.Errorf("job %q has nothing to run", jt.Name)
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}

// RunAll submits jobs and waits until every one has finished. The errors of
// failed jobs are joined. Submission stops early when ctx is done.
func (js *JobSystem) RunAll(ctx context.Context, jobs map[string]Job) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(name string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("job %q: %w", name, err))
		mu.Unlock()
	}

	for name, job := range jobs {
		if err := ctx.Err(); err != nil {
			fail(name, err)
			break
		}
		wg.Add(1)
		err := js.Submit(JobTask{
			Name:       name,
			Run:        job,
			OnComplete: func(cmdpool.WorkerID) { wg.Done() },
			OnFailure: func(_ cmdpool.WorkerID, err error) {
				fail(name, err)
				wg.Done()
			},
		})
		if err != nil {
			wg.Done()
			fail(name, err)
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

/**
 * @brief Shuts the job system down. Queued jobs still run.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	core.LogDebug("job system stopped")
	return nil
}
