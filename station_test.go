package wlanmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// replyWith makes env's firmware answer op by delivering ev. The reply is
// sent from another goroutine since commands are issued under the device
// lock.
func (env *testEnv) replyWith(op string, ev Event) {
	env.fw.onCall = func(got string) {
		if got == op {
			go env.d.HandleEvent(ev)
		}
	}
}

func TestDeviceGetStation(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)
	env.connect(t, ifi, "corp-net", bssid1)
	env.reset()

	env.replyWith("get stats", &StatsEvent{
		Vif: 0,
		Report: StatsReport{
			TxPackets:     5,
			TxBytes:       500,
			RxPackets:     7,
			RxBytes:       700,
			TxUnicastRate: 65000,
			CSRSSI:        -52,
		},
	})

	info, err := env.d.GetStation(context.Background(), &ifi, bssid1)
	if err != nil {
		t.Fatalf("failed to get station: %v", err)
	}

	want := &StationInfo{
		HardwareAddr:       bssid1,
		ReceivedBytes:      700,
		TransmittedBytes:   500,
		ReceivedPackets:    7,
		TransmittedPackets: 5,
		TransmitBitrate:    65000000,
		Signal:             -52,
		BeaconInterval:     100 * 1024 * time.Microsecond,
		DTIMPeriod:         2,
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("unexpected station info (-want +got):\n%s", diff)
	}

	diffOps(t, []string{"get stats"}, env.fw.ops())
}

func TestDeviceGetStationNoTraffic(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)
	env.connect(t, ifi, "corp-net", bssid1)

	env.replyWith("get stats", &StatsEvent{
		Vif:    0,
		Report: StatsReport{TxPackets: 3, RxPackets: 3, CSRSSI: -70},
	})

	info, err := env.d.GetStation(context.Background(), &ifi, bssid1)
	if err != nil {
		t.Fatalf("failed to get station: %v", err)
	}

	// Packet counts without byte counts are not reported.
	if info.ReceivedPackets != 0 || info.TransmittedPackets != 0 || info.Signal != -70 {
		t.Fatalf("unexpected station info: %+v", info)
	}
}

func TestDeviceGetStationErrors(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)

	if _, err := env.d.GetStation(context.Background(), &ifi, bssid1); !errors.Is(err, ErrNoSuchEntry) {
		t.Fatalf("expected no such entry while disconnected, got: %v", err)
	}

	env.connect(t, ifi, "corp-net", bssid1)
	env.reset()

	if _, err := env.d.GetStation(context.Background(), &ifi, bssid2); !errors.Is(err, ErrNoSuchEntry) {
		t.Fatalf("expected no such entry for another BSS, got: %v", err)
	}
	diffOps(t, nil, env.fw.ops())

	env.fw.fail("get stats", errors.New("bus error"))
	if _, err := env.d.GetStation(context.Background(), &ifi, bssid1); !errors.Is(err, ErrIO) {
		t.Fatalf("expected I/O error, got: %v", err)
	}

	// A failed request does not leave a stale waiter behind.
	if env.d.vifs[0].statsWait != nil {
		t.Fatal("expected no outstanding stats request")
	}
}

func TestDeviceGetStationTimeout(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, &Config{CommandTimeout: 10 * time.Millisecond}, ifi)
	env.connect(t, ifi, "corp-net", bssid1)

	_, err := env.d.GetStation(context.Background(), &ifi, bssid1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got: %v", err)
	}

	// A lost reply only affects one call; the next one asks firmware again.
	env.replyWith("get stats", &StatsEvent{
		Vif:    0,
		Report: StatsReport{CSRSSI: -60},
	})

	info, err := env.d.GetStation(context.Background(), &ifi, bssid1)
	if err != nil {
		t.Fatalf("failed to get station after timeout: %v", err)
	}
	if info.Signal != -60 {
		t.Fatalf("unexpected signal: %d", info.Signal)
	}
	if want, got := 2, len(env.fw.find("get stats")); want != got {
		t.Fatalf("unexpected get stats commands:\n- want: %d\n-  got: %d", want, got)
	}
}

func TestDeviceGetStationCanceled(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, &Config{CommandTimeout: time.Minute}, ifi)
	env.connect(t, ifi, "corp-net", bssid1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.fw.onCall = func(op string) {
		if op == "get stats" {
			cancel()
		}
	}

	_, err := env.d.GetStation(ctx, &ifi, bssid1)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected interrupted, got: %v", err)
	}
	if env.d.vifs[0].statsWait != nil {
		t.Fatal("expected no outstanding stats request")
	}
}

func TestDeviceTxPower(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)

	if err := env.d.SetTxPower(context.Background(), &ifi, TxPowerLimited, 15); err != nil {
		t.Fatalf("failed to set tx power: %v", err)
	}
	if diff := cmp.Diff([]interface{}{uint8(15)}, env.fw.find("set tx power")); diff != "" {
		t.Fatalf("unexpected tx power (-want +got):\n%s", diff)
	}

	// Not connected: the cached value is returned without asking firmware.
	dbm, err := env.d.GetTxPower(context.Background(), &ifi)
	if err != nil {
		t.Fatalf("failed to get tx power: %v", err)
	}
	if dbm != 15 {
		t.Fatalf("unexpected cached tx power: %d", dbm)
	}
	diffOps(t, []string{"set tx power"}, env.fw.ops())

	env.connect(t, ifi, "corp-net", bssid1)
	env.reset()
	env.replyWith("get tx power", &TxPowerEvent{Vif: 0, DBm: 11})

	dbm, err = env.d.GetTxPower(context.Background(), &ifi)
	if err != nil {
		t.Fatalf("failed to get tx power: %v", err)
	}
	if dbm != 11 {
		t.Fatalf("unexpected tx power: %d", dbm)
	}
	diffOps(t, []string{"get tx power"}, env.fw.ops())
}

func TestDeviceSetTxPowerSettings(t *testing.T) {
	tests := []struct {
		name    string
		setting TxPowerSetting
		dbm     int
		err     error
		ops     []string
	}{
		{
			name:    "automatic",
			setting: TxPowerAutomatic,
		},
		{
			name:    "fixed",
			setting: TxPowerFixed,
			dbm:     10,
			err:     ErrNotSupported,
		},
		{
			name:    "out of range",
			setting: TxPowerLimited,
			dbm:     256,
			err:     ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ifi := staIfi()
			env := testDevice(t, nil, ifi)

			err := env.d.SetTxPower(context.Background(), &ifi, tt.setting, tt.dbm)
			if tt.err == nil && err != nil {
				t.Fatalf("failed to set tx power: %v", err)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Fatalf("unexpected error:\n- want: %v\n-  got: %v", tt.err, err)
			}
			diffOps(t, tt.ops, env.fw.ops())
		})
	}
}

func TestDeviceGetTxPowerTimeout(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, &Config{TxPowerTimeout: 10 * time.Millisecond}, ifi)
	env.connect(t, ifi, "corp-net", bssid1)

	if _, err := env.d.GetTxPower(context.Background(), &ifi); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got: %v", err)
	}

	env.replyWith("get tx power", &TxPowerEvent{Vif: 0, DBm: 9})

	dbm, err := env.d.GetTxPower(context.Background(), &ifi)
	if err != nil {
		t.Fatalf("failed to get tx power after timeout: %v", err)
	}
	if dbm != 9 {
		t.Fatalf("unexpected tx power: %d", dbm)
	}
	if want, got := 2, len(env.fw.find("get tx power")); want != got {
		t.Fatalf("unexpected get tx power commands:\n- want: %d\n-  got: %d", want, got)
	}
}

func TestDeviceSetPowerMgmt(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)

	for _, enabled := range []bool{true, false} {
		if err := env.d.SetPowerMgmt(context.Background(), &ifi, enabled); err != nil {
			t.Fatalf("failed to set power management: %v", err)
		}
	}

	want := []interface{}{PowerModeRecommended, PowerModeMaxPerformance}
	if diff := cmp.Diff(want, env.fw.find("set power mode")); diff != "" {
		t.Fatalf("unexpected power modes (-want +got):\n%s", diff)
	}
}

func TestDevicePMKSA(t *testing.T) {
	ifi := staIfi()
	env := testDevice(t, nil, ifi)

	pmkid := []byte("0123456789abcdef")
	if err := env.d.SetPMKSA(context.Background(), &ifi, bssid1, pmkid); err != nil {
		t.Fatalf("failed to set PMKSA: %v", err)
	}
	if err := env.d.DelPMKSA(context.Background(), &ifi, bssid1, pmkid); err != nil {
		t.Fatalf("failed to delete PMKSA: %v", err)
	}

	// Flushing while disconnected is a no-op.
	if err := env.d.FlushPMKSA(context.Background(), &ifi); err != nil {
		t.Fatalf("failed to flush PMKSA: %v", err)
	}

	env.connect(t, ifi, "corp-net", bssid2)
	if err := env.d.FlushPMKSA(context.Background(), &ifi); err != nil {
		t.Fatalf("failed to flush PMKSA: %v", err)
	}

	want := []interface{}{
		pmkidArgs{BSSID: bssid1, PMKID: pmkid, Enable: true},
		pmkidArgs{BSSID: bssid1, PMKID: pmkid},
		pmkidArgs{BSSID: bssid2},
	}
	if diff := cmp.Diff(want, env.fw.find("set pmkid")); diff != "" {
		t.Fatalf("unexpected PMKID commands (-want +got):\n%s", diff)
	}

	if err := env.d.SetPMKSA(context.Background(), &ifi, bssid1, pmkid[:8]); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected invalid params, got: %v", err)
	}
}
