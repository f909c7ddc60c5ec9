/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package workers_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.osspkg.com/casecheck"
	"go.osspkg.com/errors"

	"go.osspkg.com/netpipe/internal/workers"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached")
}

func TestUnit_PoolGrowsOnDemand(t *testing.T) {
	p := workers.New("io-test", time.Minute)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	for i := 0; i < 3; i++ {
		casecheck.NoError(t, p.Submit(func() {
			started.Done()
			<-release
		}))
	}
	started.Wait()

	casecheck.Equal(t, 3, p.Workers())
	casecheck.Equal(t, 3, p.Busy())

	close(release)
	eventually(t, func() bool { return p.Busy() == 0 })
	casecheck.Equal(t, 3, p.Workers())

	p.Close()
	p.Wait()
	casecheck.Equal(t, 0, p.Workers())

	err := p.Submit(func() {})
	casecheck.True(t, errors.Is(err, workers.ErrPoolClosed), err)
}

func TestUnit_PoolReusesIdleWorker(t *testing.T) {
	p := workers.New("io-test", time.Minute)
	defer func() {
		p.Close()
		p.Wait()
	}()

	var count atomic.Int64
	casecheck.NoError(t, p.Submit(func() { count.Add(1) }))
	eventually(t, func() bool { return count.Load() == 1 && p.Busy() == 0 })

	// the idle worker is parked on the task channel, give it a moment to get there
	time.Sleep(20 * time.Millisecond)
	casecheck.NoError(t, p.Submit(func() { count.Add(1) }))
	eventually(t, func() bool { return count.Load() == 2 })

	casecheck.Equal(t, 1, p.Workers())
}

func TestUnit_PoolIdleReclaim(t *testing.T) {
	p := workers.New("io-test", 30*time.Millisecond)

	casecheck.NoError(t, p.Submit(func() {}))
	eventually(t, func() bool { return p.Workers() == 0 })

	p.Close()
	p.Wait()
}

func TestUnit_PoolPanic(t *testing.T) {
	p := workers.New("io-test", time.Minute)

	casecheck.NoError(t, p.Submit(func() { panic("boom") }))
	eventually(t, func() bool { return p.Workers() == 0 })
	casecheck.Equal(t, 0, p.Busy())

	p.Close()
	p.Wait()
}
