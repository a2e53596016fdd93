package pipeline

import (
	"context"
	"runtime"
	"sync"
)

type poolResult[R any] struct {
	index int
	value R
	done  bool
}

// runPool applies fn to every task on at most workers goroutines and returns
// the results in task order. Once ctx is cancelled no new task starts; the
// returned slice reports which tasks ran.
func runPool[T, R any](ctx context.Context, workers int, tasks []T, fn func(context.Context, T) R) ([]R, []bool) {
	results := make([]R, len(tasks))
	ran := make([]bool, len(tasks))
	if len(tasks) == 0 {
		return results, ran
	}

	numWorkers := workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(tasks) {
		numWorkers = len(tasks)
	}

	taskChan := make(chan int, len(tasks))
	resultChan := make(chan poolResult[R], len(tasks))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				if ctx.Err() != nil {
					resultChan <- poolResult[R]{index: idx}
					continue
				}
				resultChan <- poolResult[R]{index: idx, value: fn(ctx, tasks[idx]), done: true}
			}
		}()
	}

	for i := range tasks {
		taskChan <- i
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		results[res.index] = res.value
		ran[res.index] = res.done
	}
	return results, ran
}
