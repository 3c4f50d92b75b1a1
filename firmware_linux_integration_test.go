//go:build linux
// +build linux

package wlanmgr_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mdlayher/wlanmgr"
)

func TestIntegrationLinuxConcurrentCommands(t *testing.T) {
	const (
		workers    = 4
		iterations = 100
	)

	f := testFirmwareConn(t)

	var wg sync.WaitGroup
	wg.Add(workers)
	defer wg.Wait()

	for i := 0; i < workers; i++ {
		go func(worker int) {
			defer wg.Done()

			for j := 0; j < iterations; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				err := f.GetStats(ctx, 0)
				cancel()

				// Firmware without a virtual interface 0 reports no such entry.
				if err != nil && !errors.Is(err, wlanmgr.ErrNoSuchEntry) {
					t.Errorf("[worker %d; iteration %d] failed to request stats: %v", worker, j, err)
					return
				}
			}
		}(i)
	}
}

func TestIntegrationLinuxListen(t *testing.T) {
	f := testFirmwareConn(t)

	d, err := wlanmgr.New(f, nil, nil)
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := f.Listen(ctx, d); err != nil {
		if errors.Is(err, wlanmgr.ErrNotSupported) {
			t.Skipf("skipping, firmware does not multicast events: %v", err)
		}

		t.Fatalf("failed to listen for events: %v", err)
	}

	t.Logf("events: %+v", d.EventCounters())
}

func testFirmwareConn(t *testing.T) *wlanmgr.FirmwareConn {
	t.Helper()

	f, err := wlanmgr.DialFirmware()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			t.Skipf("skipping, wmi family not found: %v", err)
		}

		t.Fatalf("failed to dial firmware: %v", err)
	}

	t.Cleanup(func() { _ = f.Close() })
	return f
}
