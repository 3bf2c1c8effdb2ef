package services

import (
	"context"
	"sync"

	"aslab_go/models"

	"github.com/sirupsen/logrus"
)

// AttendanceCreated fires after an attendance row is committed.
type AttendanceCreated struct {
	Attendance models.Attendance
	User       models.User
}

// AttendanceListener reacts to new attendance rows.
type AttendanceListener interface {
	HandleAttendanceCreated(ctx context.Context, ev AttendanceCreated)
}

// AttendanceListenerFunc adapts a function to AttendanceListener.
type AttendanceListenerFunc func(ctx context.Context, ev AttendanceCreated)

func (f AttendanceListenerFunc) HandleAttendanceCreated(ctx context.Context, ev AttendanceCreated) {
	f(ctx, ev)
}

// Dispatcher fans events out to listeners. When async, every listener runs
// on its own goroutine so a slow Telegram call never delays the device
// response; Wait blocks until in-flight listeners return.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []AttendanceListener
	async     bool
	wg        sync.WaitGroup
}

func NewDispatcher(async bool) *Dispatcher {
	return &Dispatcher{async: async}
}

func (d *Dispatcher) Subscribe(l AttendanceListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Dispatcher) DispatchAttendanceCreated(ev AttendanceCreated) {
	d.mu.RLock()
	listeners := append([]AttendanceListener(nil), d.listeners...)
	d.mu.RUnlock()

	for _, l := range listeners {
		if !d.async {
			d.run(l, ev)
			continue
		}
		d.wg.Add(1)
		go func(l AttendanceListener) {
			defer d.wg.Done()
			d.run(l, ev)
		}(l)
	}
}

// Wait blocks until every asynchronous listener has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(l AttendanceListener, ev AttendanceCreated) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"attendance_id": ev.Attendance.ID,
				"panic":         r,
			}).Error("attendance listener panicked")
		}
	}()
	l.HandleAttendanceCreated(context.Background(), ev)
}
