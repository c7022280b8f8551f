package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

var ErrJobNotFound = errors.New("job not found")

// JobInfo describes a registered interval job.
type JobInfo struct {
	Name     string    `json:"name"`
	Interval string    `json:"interval"`
	Prev     time.Time `json:"prev_run,omitempty"`
	Next     time.Time `json:"next_run"`
}

type intervalJob struct {
	id       cron.EntryID
	interval time.Duration
	run      func()
}

func (a *Application) initJob() {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	err = a.AddIntervalJob("store-health", time.Minute, 10*time.Second, func(ctx context.Context) error {
		a.SchedStoreHealthTask(ctx)
		return nil
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedStoreHealthTask probes the session store and records the result.
func (a *Application) SchedStoreHealthTask(ctx context.Context) {
	if a.store == nil {
		return
	}
	ok := a.store.HealthCheck(ctx)
	if prev := a.storeHealth.Swap(ok); prev != ok {
		if ok {
			zap.L().Info("session store recovered")
		} else {
			zap.L().Warn("session store health check failed")
		}
	}
}

// AddIntervalJob runs fn every interval on the application scheduler. Each
// run gets its own timeout and panics are logged, not propagated.
func (a *Application) AddIntervalJob(name string, interval, timeout time.Duration, fn func(ctx context.Context) error) error {
	if a.sched == nil {
		return fmt.Errorf("scheduler not started")
	}
	if interval <= 0 {
		return nil
	}
	run := func() {
		defer func() {
			if err := recover(); err != nil {
				zap.S().Errorf("job %s panic: %v", name, err)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			zap.L().Warn("job failed", zap.String("job", name), zap.Error(err))
		}
	}

	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()
	if _, exists := a.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	id, err := a.sched.AddFunc("@every "+interval.String(), run)
	if err != nil {
		return err
	}
	if a.jobs == nil {
		a.jobs = make(map[string]*intervalJob)
	}
	a.jobs[name] = &intervalJob{id: id, interval: interval, run: run}
	return nil
}

// Jobs lists the registered interval jobs ordered by name.
func (a *Application) Jobs() []JobInfo {
	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()
	items := make([]JobInfo, 0, len(a.jobs))
	for name, j := range a.jobs {
		info := JobInfo{Name: name, Interval: j.interval.String()}
		if a.sched != nil {
			entry := a.sched.Entry(j.id)
			info.Prev, info.Next = entry.Prev, entry.Next
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, k int) bool { return items[i].Name < items[k].Name })
	return items
}

// RunJobNow triggers a registered job in the background.
func (a *Application) RunJobNow(name string) error {
	a.jobsMu.Lock()
	j, ok := a.jobs[name]
	a.jobsMu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	go j.run()
	return nil
}
