// internal/pkg/async/pool.go
package async

import (
	"context"
	"sync"
)

// Task is a named unit of work run by the pool.
type Task struct {
	Name    string
	Execute func(ctx context.Context) (any, error)
}

type Result struct {
	Name string
	Data any
	Err  error
}

// Pool runs batches of tasks on a bounded number of goroutines.
// A Pool holds no per-batch state and can be shared.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func worker(ctx context.Context, tasks <-chan Task, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()
	for task := range tasks {
		if ctx.Err() != nil {
			continue
		}
		data, err := task.Execute(ctx)
		results <- Result{
			Name: task.Name,
			Data: data,
			Err:  err,
		}
	}
}

// Execute runs tasks and returns their results keyed by name. Tasks not
// started before ctx is done have no entry.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	var wg sync.WaitGroup
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	workers := min(p.workerCount, len(tasks))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(ctx, taskCh, resultCh, &wg)
	}

feed:
	for _, task := range tasks {
		select {
		case taskCh <- task:
		case <-ctx.Done():
			break feed
		}
	}
	close(taskCh)

	wg.Wait()
	close(resultCh)

	results := make(map[string]Result, len(tasks))
	for result := range resultCh {
		results[result.Name] = result
	}
	return results
}

// Run executes tasks and returns their data keyed by name. It fails with
// the error of the first failing task in submission order, or with the
// context error when a task never ran.
func (p *Pool) Run(ctx context.Context, tasks []Task) (map[string]any, error) {
	results := p.Execute(ctx, tasks)

	data := make(map[string]any, len(results))
	for _, task := range tasks {
		result, ok := results[task.Name]
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, context.Canceled
		}
		if result.Err != nil {
			return nil, result.Err
		}
		data[task.Name] = result.Data
	}
	return data, nil
}
