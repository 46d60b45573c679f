package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolExecutesSubmittedTasks(t *testing.T) {
	pool := New(4, 16)
	defer pool.Shutdown()

	var counter int64
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		})
	}

	wg.Wait()
	assert.Equal(t, int64(100), atomic.LoadInt64(&counter))
}

func TestPoolCallerRunsWhenQueueFull(t *testing.T) {
	// 单工作协程，队列容量1，先用阻塞任务占满
	pool := New(1, 1)
	defer pool.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	pool.Submit(func() {
		defer wg.Done()
		close(started)
		<-block
	})
	// 确认工作协程已取走第一个任务再占满队列
	<-started
	wg.Add(1)
	pool.Submit(func() {
		defer wg.Done()
		<-block
	})

	// 此时一个任务在工作协程里阻塞，另一个占满队列，
	// 再提交的任务必须在提交方协程执行
	executedBy := make(chan struct{})
	pool.Submit(func() {
		close(executedBy)
	})

	select {
	case <-executedBy:
	case <-time.After(time.Second):
		t.Fatal("task was not executed inline by the submitting goroutine")
	}

	close(block)
	wg.Wait()
}

func TestPoolShutdownDrainsQueuedTasks(t *testing.T) {
	pool := New(2, 50)

	var counter int64
	for i := 0; i < 50; i++ {
		pool.Submit(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&counter, 1)
		})
	}

	pool.Shutdown()
	assert.Equal(t, int64(50), atomic.LoadInt64(&counter))
}

func TestPoolSubmitAfterShutdownRunsInline(t *testing.T) {
	pool := New(1, 1)
	pool.Shutdown()

	done := false
	pool.Submit(func() { done = true })
	assert.True(t, done)
}

func TestPoolDefaultWorkerCount(t *testing.T) {
	pool := New(0, 10)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	pool.Submit(func() { wg.Done() })
	wg.Wait()
}
