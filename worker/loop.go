package worker

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

type Job func()

// Loop is a single goroutine running posted jobs one at a time. Jobs posted
// from one goroutine run in the order they were posted; jobs racing in from
// several goroutines run in whichever order their posts completed. It plays the role of a UI thread for code that expects all
// its calls to happen on one designated context, e.g. event channels receiving
// emits from network listeners.
//
// Posting never blocks. Once the loop context is done the job running at the
// moment is allowed to finish and everything still queued is dropped.
type Loop struct {
	ctx   context.Context
	queue *SyncQueue[Job]
	done  chan struct{}
}

func StartLoop(ctx context.Context, initialCapacity int) *Loop {
	l := &Loop{
		ctx:   ctx,
		queue: NewSyncQueue[Job](initialCapacity),
		done:  make(chan struct{}),
	}
	go l.mainLoop()
	go func() {
		<-ctx.Done()
		// wake up the main loop in case it is waiting for jobs
		l.queue.Enqueue(nil)
	}()
	return l
}

// Post schedules job for execution. Returns false if the loop is stopped.
func (l *Loop) Post(job Job) bool {
	if job == nil || l.isStopped() {
		return false
	}
	l.queue.Enqueue(job)
	return true
}

// Done is closed once the loop has stopped running jobs.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) Len() int {
	return l.queue.Len()
}

func (l *Loop) isStopped() bool {
	select {
	case <-l.ctx.Done():
		return true
	default:
		return false
	}
}

func (l *Loop) mainLoop() {
	defer close(l.done)

	for {
		job := l.queue.Dequeue()
		if job == nil || l.isStopped() {
			return
		}
		l.run(job)
	}
}

func (l *Loop) run(job Job) {
	defer recoverAndLog()
	job()
}

func recoverAndLog() {
	panicVal := recover()
	if panicVal == nil {
		return
	}

	logrus.WithFields(logrus.Fields{
		"category":    "fatal_error",
		"code":        "panic",
		"source_file": "worker/loop",
		"panic_value": panicVal,
		"stack":       string(debug.Stack()),
	}).Errorf("Panic in worker loop!")
}
