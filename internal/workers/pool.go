/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

// Package workers is an elastic goroutine pool: a task goes to an idle worker
// or starts a new one, idle workers leave after a timeout.
package workers

import (
	"sync"
	"sync/atomic"
	"time"

	"go.osspkg.com/do"
	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"go.osspkg.com/syncing"
)

const DefaultIdleTimeout = 60 * time.Second

var ErrPoolClosed = errors.New("worker pool closed")

type Pool struct {
	name    string
	idle    time.Duration
	tasks   chan func()
	closeC  chan struct{}
	closed  syncing.Switch
	wg      sync.WaitGroup
	workers atomic.Int64
	busy    atomic.Int64
}

func New(name string, idle time.Duration) *Pool {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Pool{
		name:   name,
		idle:   idle,
		tasks:  make(chan func()),
		closeC: make(chan struct{}),
		closed: syncing.NewSwitch(),
	}
}

func (p *Pool) Name() string { return p.name }

// Workers is the count of live goroutines, busy or idle.
func (p *Pool) Workers() int { return int(p.workers.Load()) }

func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Submit runs task on an idle worker, or on a new one when all are busy.
func (p *Pool) Submit(task func()) error {
	if p.closed.IsOn() {
		return errors.Wrapf(ErrPoolClosed, "%s", p.name)
	}

	select {
	case p.tasks <- task:
		return nil
	default:
	}

	p.wg.Add(1)
	p.workers.Add(1)
	do.Async(func() {
		p.worker(task)
	}, func(e error) {
		logx.Error("Worker pool: panic", "pool", p.name, "err", e)
	})
	return nil
}

func (p *Pool) worker(task func()) {
	defer func() {
		p.workers.Add(-1)
		p.wg.Done()
	}()

	timer := time.NewTimer(p.idle)
	defer timer.Stop()

	for {
		p.run(task)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.idle)

		select {
		case task = <-p.tasks:
		case <-timer.C:
			return
		case <-p.closeC:
			return
		}
	}
}

func (p *Pool) run(task func()) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	task()
}

// Close stops accepting tasks and lets idle workers leave, running tasks are not interrupted.
func (p *Pool) Close() {
	if !p.closed.On() {
		return
	}
	close(p.closeC)
}

// Wait blocks until every worker has left.
func (p *Pool) Wait() {
	p.wg.Wait()
}
