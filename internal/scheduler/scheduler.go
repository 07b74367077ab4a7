package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/tanq16/chunkget/internal/engine"
	"github.com/tanq16/chunkget/internal/output"
	"github.com/tanq16/chunkget/internal/utils"
)

// ClientFactory returns the RangeClient that serves a URL.
type ClientFactory func(rawURL string) (engine.RangeClient, error)

// Registry maps URL schemes to client factories.
type Registry map[string]ClientFactory

func (r Registry) ClientFor(rawURL string) (engine.RangeClient, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	factory, ok := r[parsed.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	return factory(rawURL)
}

// JobError is one failed job of a batch.
type JobError struct {
	Job utils.Job
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Job.OutputPath, e.Job.URL, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobs turns batch entries into jobs with fresh IDs.
func NewJobs(entries []utils.DownloadEntry, settings utils.DownloadSettings) []utils.Job {
	jobs := make([]utils.Job, 0, len(entries))
	for _, entry := range entries {
		outputPath := entry.OutputPath
		if outputPath == "" {
			outputPath = utils.InferOutputPath(entry.URL)
		}
		jobs = append(jobs, utils.Job{
			ID:          uuid.NewString(),
			URL:         entry.URL,
			OutputPath:  outputPath,
			Connections: settings.Connections,
			KeepCache:   settings.KeepCache,
		})
	}
	return jobs
}

// PrepareOutput creates the parent directory of outputPath. When the file
// already exists and there is no cached state to resume for rawURL, a fresh
// numbered name is returned instead.
func PrepareOutput(rawURL, outputPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("error creating output directory: %v", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return outputPath, nil
	}
	if _, err := os.Stat(engine.CacheDir(outputPath, rawURL)); err == nil {
		return outputPath, nil
	}
	return utils.RenewOutputPath(outputPath), nil
}

// outputClaims hands out destinations for one batch so that no two jobs
// write the same file.
type outputClaims struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newOutputClaims() *outputClaims {
	return &outputClaims{claimed: make(map[string]bool)}
}

// prepare runs PrepareOutput and renames the result when another job of the
// batch already holds it.
func (c *outputClaims) prepare(rawURL, outputPath string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prepared, err := PrepareOutput(rawURL, outputPath)
	if err != nil {
		return "", err
	}
	if c.claimed[filepath.Clean(prepared)] {
		prepared = utils.NextOutputPath(outputPath, func(candidate string) bool {
			if c.claimed[filepath.Clean(candidate)] {
				return true
			}
			_, err := os.Stat(candidate)
			return !os.IsNotExist(err)
		})
	}
	c.claimed[filepath.Clean(prepared)] = true
	return prepared, nil
}

// EngineOptions maps run settings onto engine options.
func EngineOptions(settings utils.DownloadSettings) engine.Options {
	opts := engine.DefaultOptions()
	opts.Threads = settings.Connections
	opts.KeepCache = settings.KeepCache
	opts.Retries = settings.Retries
	opts.RetryBackoff = settings.RetryBackoff
	opts.StatusInterval = settings.StatusInterval
	opts.RateLimit = settings.RateLimit
	if settings.ReadTimeout > 0 {
		opts.ReadTimeout = settings.ReadTimeout
	}
	return opts
}

// Run downloads every job with numWorkers concurrent downloads. All jobs are
// attempted; the returned error joins a *JobError per failed job.
func Run(ctx context.Context, jobs []utils.Job, numWorkers int, settings utils.DownloadSettings, registry Registry, outputMgr *output.Manager) error {
	log := utils.GetLogger("scheduler")
	if numWorkers < 1 {
		numWorkers = 1
	}
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()

	jobCh := make(chan utils.Job, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		jobCh <- job
	}
	close(jobCh)

	claims := newOutputClaims()
	var mu sync.Mutex
	var failed []error
	var wg sync.WaitGroup
	for i, n := 0, min(numWorkers, max(1, len(jobs))); i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if err := processJob(ctx, job, settings, registry, claims, outputMgr); err != nil {
					mu.Lock()
					failed = append(failed, &JobError{Job: job, Err: err})
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	log.Debug().Int("jobs", len(jobs)).Int("failed", len(failed)).Msg("Batch finished")
	return errors.Join(failed...)
}

func processJob(ctx context.Context, job utils.Job, settings utils.DownloadSettings, registry Registry, claims *outputClaims, outputMgr *output.Manager) error {
	log := utils.GetLogger("scheduler").With().Str("jobId", job.ID).Str("url", job.URL).Logger()
	id := outputMgr.Register(job.OutputPath)
	if err := ctx.Err(); err != nil {
		outputMgr.ReportError(id, err)
		return err
	}

	client, err := registry.ClientFor(job.URL)
	if err != nil {
		outputMgr.ReportError(id, err)
		return err
	}
	outputPath, err := claims.prepare(job.URL, job.OutputPath)
	if err != nil {
		outputMgr.ReportError(id, err)
		return err
	}

	opts := EngineOptions(settings)
	if job.Connections > 0 {
		opts.Threads = job.Connections
	}
	opts.KeepCache = job.KeepCache || settings.KeepCache

	log.Debug().Str("output", outputPath).Int("threads", opts.Threads).Msg("Starting job")
	if err := engine.New(client, opts).Download(ctx, job.URL, outputPath, outputMgr.Sink(id)); err != nil {
		outputMgr.ReportError(id, err)
		return err
	}
	outputMgr.Complete(id, fmt.Sprintf("Completed %s", outputPath))
	return nil
}
