package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Job описывает периодическую задачу.
type Job func(ctx context.Context) error

type scheduledJob struct {
	run     Job
	running atomic.Bool
}

// Scheduler запускает задачи с фиксированным интервалом. Задача не
// перекрывается сама с собой: тик пропускается, пока прошлый запуск не
// закончился.
type Scheduler struct {
	interval time.Duration
	jobs     []*scheduledJob
	wg       sync.WaitGroup
	// OnError получает ошибки задач; nil — ошибки отбрасываются.
	OnError func(err error)
}

// NewScheduler создает scheduler с заданным интервалом.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{interval: interval}
}

// Add добавляет задачу в расписание.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, &scheduledJob{run: job})
}

// Start выполняет задачи сразу и затем на каждом тике до отмены контекста.
// Возвращается после завершения всех запущенных задач.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, job := range s.jobs {
		if !job.running.CompareAndSwap(false, true) {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer job.running.Store(false)
			if err := job.run(ctx); err != nil && s.OnError != nil {
				s.OnError(err)
			}
		}()
	}
}
