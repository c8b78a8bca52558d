package tt

// ThreadPool is a fixed set of long-lived worker goroutines with indexed
// dispatch: task i runs on thread i and is joined individually. Clear and
// Resize use it for the parallel zero-fill barrier; the search orchestration
// owns the pool and shares it with its own workers.
type ThreadPool struct {
	threads []*poolThread
}

type poolThread struct {
	tasks chan func()
	done  chan struct{}
}

// NewThreadPool starts a pool of n worker goroutines. n is clamped to at
// least one.
func NewThreadPool(n int) *ThreadPool {
	if n < 1 {
		n = 1
	}

	p := &ThreadPool{threads: make([]*poolThread, n)}
	for i := range p.threads {
		th := &poolThread{
			tasks: make(chan func()),
			done:  make(chan struct{}, 1),
		}
		go th.run()
		p.threads[i] = th
	}
	return p
}

func (th *poolThread) run() {
	for task := range th.tasks {
		task()
		th.done <- struct{}{}
	}
}

// Size returns the number of threads in the pool.
func (p *ThreadPool) Size() int {
	return len(p.threads)
}

// RunOnThread hands task to thread i. Each dispatch must be paired with a
// WaitOnThread before the next dispatch to the same thread.
func (p *ThreadPool) RunOnThread(i int, task func()) {
	p.threads[i].tasks <- task
}

// WaitOnThread blocks until the task last dispatched to thread i finishes.
func (p *ThreadPool) WaitOnThread(i int) {
	<-p.threads[i].done
}

// Close stops all pool goroutines. The pool must be idle.
func (p *ThreadPool) Close() {
	for _, th := range p.threads {
		close(th.tasks)
	}
}
