package wlanmgr

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDeviceScanProbedSSIDs(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, &Config{MaxProbedSSIDs: 4}, ifi)

	req := &ScanRequest{
		SSIDs: [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")},
		IEs:   []byte{0xdd, 0x01, 0x00},
	}
	if err := env.d.Scan(context.Background(), &ifi, req); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	diffOps(t, []string{
		"set bss filter",
		"set probed ssid",
		"set probed ssid",
		"set probed ssid",
		"set app ie",
		"start scan",
	}, env.fw.ops())

	wantSSIDs := []interface{}{
		probedSSIDArgs{Index: 1, Flag: ProbedSSIDSpecific, SSID: []byte("a")},
		probedSSIDArgs{Index: 2, Flag: ProbedSSIDSpecific, SSID: []byte("b")},
		probedSSIDArgs{Index: 3, Flag: ProbedSSIDSpecific, SSID: []byte("c")},
	}
	if diff := cmp.Diff(wantSSIDs, env.fw.find("set probed ssid")); diff != "" {
		t.Fatalf("unexpected probed SSIDs (-want +got):\n%s", diff)
	}

	wantIE := []interface{}{appIEArgs{Frame: FrameProbeReq, IE: []byte{0xdd, 0x01, 0x00}}}
	if diff := cmp.Diff(wantIE, env.fw.find("set app ie")); diff != "" {
		t.Fatalf("unexpected probe request IEs (-want +got):\n%s", diff)
	}

	wantScan := []interface{}{ScanCommand{
		Vif:               0,
		Type:              ScanTypeLong,
		ForceScanInterval: fgScanInterval,
	}}
	if diff := cmp.Diff(wantScan, env.fw.find("start scan")); diff != "" {
		t.Fatalf("unexpected scan command (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]interface{}{BSSFilterAll}, env.fw.find("set bss filter")); diff != "" {
		t.Fatalf("unexpected bss filter (-want +got):\n%s", diff)
	}

	env.reset()
	env.d.HandleEvent(&ScanCompleteEvent{Vif: 0, Status: ScanStatusSuccess})

	diffNotes(t, []notification{{Op: "scan done"}}, env.n.all())
	if len(env.n.scans) != 1 || env.n.scans[0] != req {
		t.Fatal("expected the original request to be completed")
	}

	wantDisable := []interface{}{
		probedSSIDArgs{Index: 1, Flag: ProbedSSIDDisable},
		probedSSIDArgs{Index: 2, Flag: ProbedSSIDDisable},
		probedSSIDArgs{Index: 3, Flag: ProbedSSIDDisable},
	}
	if diff := cmp.Diff(wantDisable, env.fw.find("set probed ssid")); diff != "" {
		t.Fatalf("unexpected probed SSID reset (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]interface{}{BSSFilterNone}, env.fw.find("set bss filter")); diff != "" {
		t.Fatalf("unexpected bss filter (-want +got):\n%s", diff)
	}
}

func TestDeviceScanBroadcastOnly(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)

	req := &ScanRequest{
		SSIDs:       [][]byte{{}, []byte("ignored")},
		Frequencies: []int{2412, 2437},
	}
	if err := env.d.Scan(context.Background(), &ifi, req); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	diffOps(t, []string{"set bss filter", "set app ie", "start scan"}, env.fw.ops())

	cmd := env.fw.find("start scan")[0].(ScanCommand)
	if diff := cmp.Diff([]uint16{2412, 2437}, cmd.Channels); diff != "" {
		t.Fatalf("unexpected channels (-want +got):\n%s", diff)
	}
}

func TestDeviceScanTooManyChannels(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, &Config{MaxScanChannels: 2}, ifi)

	req := &ScanRequest{Frequencies: []int{2412, 2437, 2462}}
	if err := env.d.Scan(context.Background(), &ifi, req); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	cmd := env.fw.find("start scan")[0].(ScanCommand)
	if cmd.Channels != nil {
		t.Fatalf("expected all channels to be scanned, got: %v", cmd.Channels)
	}
}

func TestDeviceScanWhileConnected(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)
	env.connect(t, ifi, "corp-net", bssid1)
	env.reset()

	if err := env.d.Scan(context.Background(), &ifi, &ScanRequest{}); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if diff := cmp.Diff([]interface{}{BSSFilterAllButBSS}, env.fw.find("set bss filter")); diff != "" {
		t.Fatalf("unexpected bss filter (-want +got):\n%s", diff)
	}

	cmd := env.fw.find("start scan")[0].(ScanCommand)
	if !cmd.ForceForeground {
		t.Fatal("expected foreground scan while connected")
	}
}

func TestDeviceScanBusy(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)

	if err := env.d.Scan(context.Background(), &ifi, &ScanRequest{}); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}
	env.reset()

	err := env.d.Scan(context.Background(), &ifi, &ScanRequest{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy, got: %v", err)
	}
	diffOps(t, nil, env.fw.ops())

	// A completed scan frees the slot.
	env.d.HandleEvent(&ScanCompleteEvent{Vif: 0, Status: ScanStatusSuccess})
	if err := env.d.Scan(context.Background(), &ifi, &ScanRequest{}); err != nil {
		t.Fatalf("failed to scan again: %v", err)
	}
}

func TestDeviceScanErrors(t *testing.T) {
	tests := []struct {
		name string
		req  *ScanRequest
		err  error
	}{
		{
			name: "nil request",
			err:  ErrInvalidParams,
		},
		{
			name: "long SSID",
			req:  &ScanRequest{SSIDs: [][]byte{bytes.Repeat([]byte("a"), 33)}},
			err:  ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ifi := staIfi()
			env := testDevice(t, nil, ifi)

			err := env.d.Scan(context.Background(), &ifi, tt.req)
			if !errors.Is(err, tt.err) {
				t.Fatalf("unexpected error:\n- want: %v\n-  got: %v", tt.err, err)
			}
			diffOps(t, nil, env.fw.ops())
		})
	}
}

func TestDeviceScanStartFails(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)
	env.fw.fail("start scan", errors.New("bus error"))

	err := env.d.Scan(context.Background(), &ifi, &ScanRequest{})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected I/O error, got: %v", err)
	}

	// The request was never accepted, so a new one may be made.
	env.fw.fail("start scan", nil)
	if err := env.d.Scan(context.Background(), &ifi, &ScanRequest{}); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}
	diffNotes(t, nil, env.n.all())
}

func TestDeviceScanAborted(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		ops  []string
	}{
		{
			name: "firmware busy",
			ev:   &ScanCompleteEvent{Vif: 0, Status: ScanStatusBusy},
			ops:  []string{"set bss filter"},
		},
		{
			name: "firmware canceled",
			ev:   &ScanCompleteEvent{Vif: 0, Status: ScanStatusCanceled},
			ops:  []string{"set bss filter"},
		},
		{
			name: "lost link",
			ev:   &DisconnectEvent{Vif: 0, Reason: ReasonLostLink},
			ops:  []string{"disconnect"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ifi := staIfi()
			env := testDevice(t, nil, ifi)

			req := &ScanRequest{SSIDs: [][]byte{[]byte("corp-net")}}
			if err := env.d.Scan(context.Background(), &ifi, req); err != nil {
				t.Fatalf("failed to scan: %v", err)
			}
			env.reset()

			env.d.HandleEvent(tt.ev)

			// An aborted scan leaves the probed SSID slots alone.
			diffOps(t, tt.ops, env.fw.ops())
			diffNotes(t, []notification{{Op: "scan done", Aborted: true}}, env.n.all())

			// Completion is reported exactly once.
			env.reset()
			env.d.HandleEvent(&ScanCompleteEvent{Vif: 0, Status: ScanStatusSuccess})
			diffNotes(t, nil, env.n.all())
		})
	}
}

func TestDeviceScanAbortedByDown(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)

	if err := env.d.Scan(context.Background(), &ifi, &ScanRequest{}); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}
	env.reset()

	if err := env.d.Down(&ifi); err != nil {
		t.Fatalf("failed to bring down interface: %v", err)
	}

	diffNotes(t, []notification{{Op: "scan done", Aborted: true}}, env.n.all())
}

func TestDeviceScanUserBSSFilter(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, &Config{UserBSSFilter: true}, ifi)

	if err := env.d.Scan(context.Background(), &ifi, &ScanRequest{}); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}
	env.d.HandleEvent(&ScanCompleteEvent{Vif: 0, Status: ScanStatusSuccess})

	diffOps(t, []string{"set app ie", "start scan"}, env.fw.ops())
}
