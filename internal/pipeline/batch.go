package pipeline

import (
	"context"
	"path/filepath"
	"sync"
)

// BatchResult is the outcome of one file of a batch.
type BatchResult struct {
	Index    int // position in the input list
	Path     string
	Filename string
	Result   *DocumentResult
	Err      error
}

// Progress is called once per finished file, never concurrently.
type Progress func(done, total int, r BatchResult)

type batchJob struct {
	path  string
	index int
}

// Batch processes files with a pool of workers. Results keep the input
// order. After ctx is cancelled no further file is started; the remaining
// results carry the context error.
func (p *Pipeline) Batch(ctx context.Context, paths []string, workers int, progress Progress) []BatchResult {
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan batchJob, len(paths))
	results := make([]BatchResult, len(paths))

	var done int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				result := BatchResult{
					Index:    job.index,
					Path:     job.path,
					Filename: filepath.Base(job.path),
				}
				if err := ctx.Err(); err != nil {
					result.Err = err
				} else {
					p.log.Debug().
						Int("worker", workerID).
						Str("file", job.path).
						Int("index", job.index+1).
						Msg("Worker processing PDF")
					result.Result, result.Err = p.Process(ctx, job.path)
				}
				results[job.index] = result

				mu.Lock()
				done++
				if progress != nil {
					progress(done, len(paths), result)
				}
				mu.Unlock()
			}
		}(w)
	}

	for i, path := range paths {
		jobs <- batchJob{path: path, index: i}
	}
	close(jobs)

	wg.Wait()
	return results
}
