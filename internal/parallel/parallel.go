// Package parallel spreads independent range work across the available cores.
package parallel

import (
	"runtime"
	"sync"
)

// Execute splits [0,n) into contiguous chunks, one per available CPU, runs
// work on each chunk concurrently and waits for completion.
func Execute(n int, work func(start, end int)) {
	nbTasks := runtime.NumCPU()
	if nbTasks > n {
		nbTasks = n
	}
	if nbTasks <= 1 {
		if n > 0 {
			work(0, n)
		}
		return
	}

	chunk := n / nbTasks
	extra := n - chunk*nbTasks

	var wg sync.WaitGroup
	start := 0
	for i := 0; i < nbTasks; i++ {
		end := start + chunk
		if i < extra {
			end++
		}
		wg.Add(1)
		go func(start, end int) {
			work(start, end)
			wg.Done()
		}(start, end)
		start = end
	}
	wg.Wait()
}
