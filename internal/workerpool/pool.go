package workerpool

import (
	"runtime"
	"sync"
)

// Pool 有界任务池：固定工作协程数加有界队列，队列满时任务在提交方
// 协程上直接执行（对应饱和时的退压语义），保证任务不丢弃不阻塞
type Pool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// New 创建任务池。workers <= 0 时取 CPU 数的两倍
func New(workers, queueCapacity int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if queueCapacity < 0 {
		queueCapacity = 0
	}

	p := &Pool{
		tasks: make(chan func(), queueCapacity),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit 提交任务。队列有空位则入队，否则在当前协程执行；
// 池已关闭时同样在当前协程执行
func (p *Pool) Submit(task func()) {
	if task == nil {
		return
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		task()
		return
	}

	select {
	case p.tasks <- task:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		task()
	}
}

// Shutdown 停止接收新任务并等待队列中的任务全部执行完
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
