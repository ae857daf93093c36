package jobs

import "sync"

// task is one queued unit of work, already registered with the tracker.
type task struct {
	id  string
	run func(id string)
}

// pool is a fixed set of workers draining a bounded queue. Once the queue
// is full, submission fails fast instead of blocking the caller.
type pool struct {
	queue chan task
	wg    sync.WaitGroup
}

func newPool(workers, depth int) *pool {
	p := &pool{queue: make(chan task, depth)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for t := range p.queue {
				t.run(t.id)
			}
		}()
	}
	return p
}

// trySubmit enqueues without blocking; false means the queue is full.
func (p *pool) trySubmit(t task) bool {
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// drain closes the queue and waits for in-flight work to finish.
func (p *pool) drain() {
	close(p.queue)
	p.wg.Wait()
}
