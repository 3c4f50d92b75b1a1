// Package wlanmgr implements a Wi-Fi connection manager on top of a
// command/event firmware interface.
//
// A Device translates connect, scan and key requests for one or more
// virtual interfaces into firmware commands, and turns the asynchronous
// events reported by the firmware back into Notifier calls.
package wlanmgr

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A DebugMask selects the categories of debug logging a Device emits.
type DebugMask uint32

// Possible DebugMask values.
const (
	DebugWLANConfig DebugMask = 1 << iota
	DebugScan
	DebugKeys
	DebugEvents
	DebugStats
	DebugAny DebugMask = 0xffffffff
)

// Config configures a Device. The zero value is valid and selects the
// defaults documented on each field.
type Config struct {
	// Logger receives log entries. If nil, logs are discarded.
	Logger logrus.FieldLogger

	// DebugMask enables Debug level entries per category.
	DebugMask DebugMask

	// CommandTimeout bounds waits for firmware statistics replies. The
	// default is 2 seconds.
	CommandTimeout time.Duration

	// TxPowerTimeout bounds waits for a transmit power reply. The default
	// is 5 seconds.
	TxPowerTimeout time.Duration

	// DisconnectTimeout is how long a PSK connection may go without a key
	// being installed before it is torn down. The default is 10 seconds;
	// a negative value disables the timer.
	DisconnectTimeout time.Duration

	// MaxProbedSSIDs is the number of probed SSID slots in firmware. Slot 0
	// is reserved. The default is 9.
	MaxProbedSSIDs int

	// MaxScanChannels is the longest channel list firmware accepts. The
	// default is 32.
	MaxScanChannels int

	// UserBSSFilter leaves the firmware BSS filter to the user.
	UserBSSFilter bool

	// ConnectCtrlFlags are passed with every connect command.
	ConnectCtrlFlags uint32

	// P2P allows P2P client and group owner interface types.
	P2P bool

	// SkipScan requires connect requests to name a channel and BSSID, and
	// keeps the requested BSSID across disconnects.
	SkipScan bool
}

func (c *Config) withDefaults() Config {
	var cfg Config
	if c != nil {
		cfg = *c
	}

	if cfg.Logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		cfg.Logger = l
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.TxPowerTimeout == 0 {
		cfg.TxPowerTimeout = 5 * time.Second
	}
	if cfg.DisconnectTimeout == 0 {
		cfg.DisconnectTimeout = 10 * time.Second
	}
	if cfg.MaxProbedSSIDs <= 0 {
		cfg.MaxProbedSSIDs = 9
	}
	if cfg.MaxScanChannels <= 0 {
		cfg.MaxScanChannels = 32
	}

	return cfg
}

// A stopper is a scheduled function which may be cancelled.
type stopper interface {
	Stop() bool
}

// A Device manages the virtual interfaces of one radio. All methods are
// safe for concurrent use.
type Device struct {
	// sem is the device-wide serialization point. It is a channel so that
	// acquisition can be abandoned when a context is done.
	sem chan struct{}

	fw  Firmware
	n   Notifier
	cfg Config
	log logrus.FieldLogger

	// Notifications queued while holding sem, fired by unlock.
	pending []func(Notifier)

	ready      bool
	destroying bool
	info       ReadyEvent
	vifs       map[uint8]*vif
	ctrlFlags  uint32

	txPower     uint8
	txPowerWait chan struct{}

	counters EventCounters

	afterFunc func(time.Duration, func()) stopper
}

// New creates a Device which issues commands to fw and reports events to n.
// If n is nil, notifications are discarded. If cfg is nil, defaults are
// used.
func New(fw Firmware, n Notifier, cfg *Config) (*Device, error) {
	if fw == nil {
		return nil, errors.WithMessage(ErrInvalidParams, "no firmware")
	}
	if n == nil {
		n = NopNotifier{}
	}

	c := cfg.withDefaults()

	return &Device{
		sem:       make(chan struct{}, 1),
		fw:        fw,
		n:         n,
		cfg:       c,
		log:       c.Logger,
		vifs:      make(map[uint8]*vif),
		ctrlFlags: c.ConnectCtrlFlags,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}, nil
}

// Close tears the Device down. Outstanding scans are aborted, connections
// are reported as lost, and no further firmware commands are issued. If the
// Firmware implements io.Closer, it is closed.
func (d *Device) Close() error {
	_ = d.lock(context.Background())

	d.destroying = true
	for _, v := range d.vifs {
		d.vifStop(v, false)
	}

	d.unlock()

	if c, ok := d.fw.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

// SetReady marks the firmware as booted, for transports which do not report
// a ReadyEvent.
func (d *Device) SetReady() {
	_ = d.lock(context.Background())
	defer d.unlock()

	d.ready = true
}

// Ready returns the contents of the firmware's ready event, and whether the
// firmware is ready.
func (d *Device) Ready() (ReadyEvent, bool) {
	_ = d.lock(context.Background())
	defer d.unlock()

	return d.info, d.ready
}

// AddInterface creates the state for a virtual interface. The interface
// starts disabled; use Up to enable it.
func (d *Device) AddInterface(ifi Interface) error {
	_ = d.lock(context.Background())
	defer d.unlock()

	if d.destroying {
		return errors.WithMessage(ErrBusy, "destroy in progress")
	}
	if _, ok := d.vifs[ifi.FirmwareIndex]; ok {
		return errors.Wrapf(ErrInvalidParams, "vif %d already exists", ifi.FirmwareIndex)
	}

	v := newVif(ifi, d.log)
	v.nextMode = ifi.Type.networkType()
	if v.nextMode == NetworkAP {
		v.ap = apPendingKeys
	}
	d.vifs[ifi.FirmwareIndex] = v

	d.dbg(DebugWLANConfig, v, "added interface, type %s", ifi.Type)
	return nil
}

// RemoveInterface stops and removes a virtual interface.
func (d *Device) RemoveInterface(ifi *Interface) error {
	_ = d.lock(context.Background())
	defer d.unlock()

	v, err := d.vif(ifi)
	if err != nil {
		return err
	}

	d.vifStop(v, !d.destroying && d.ready)
	delete(d.vifs, v.ifi.FirmwareIndex)
	return nil
}

// Up enables an interface.
func (d *Device) Up(ifi *Interface) error {
	_ = d.lock(context.Background())
	defer d.unlock()

	v, err := d.vif(ifi)
	if err != nil {
		return err
	}
	if d.destroying {
		return errors.WithMessage(ErrBusy, "destroy in progress")
	}

	v.enabled = true
	return nil
}

// Down disables an interface, dropping any connection and aborting any scan.
func (d *Device) Down(ifi *Interface) error {
	_ = d.lock(context.Background())
	defer d.unlock()

	v, err := d.vif(ifi)
	if err != nil {
		return err
	}

	d.vifStop(v, !d.destroying && d.ready)
	return nil
}

// State returns the connection state of an interface.
func (d *Device) State(ifi *Interface) (SMEState, error) {
	_ = d.lock(context.Background())
	defer d.unlock()

	v, err := d.vif(ifi)
	if err != nil {
		return 0, err
	}

	return v.sme, nil
}

// Stats returns a snapshot of the statistics accumulated for an interface.
func (d *Device) Stats(ifi *Interface) (TargetStats, error) {
	_ = d.lock(context.Background())
	defer d.unlock()

	v, err := d.vif(ifi)
	if err != nil {
		return TargetStats{}, err
	}

	return v.stats, nil
}

// EventCounters returns the number of firmware events handled, by type.
func (d *Device) EventCounters() EventCounters {
	_ = d.lock(context.Background())
	defer d.unlock()

	return d.counters
}

// lock acquires the device lock, giving up with ErrInterrupted when ctx is
// done first.
func (d *Device) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WithMessage(mark(err, ErrInterrupted), "couldn't get access")
	}

	select {
	case d.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.WithMessage(mark(ctx.Err(), ErrInterrupted), "couldn't get access")
	}
}

// unlock releases the device lock and then fires queued notifications.
func (d *Device) unlock() {
	pending := d.pending
	d.pending = nil

	<-d.sem

	for _, fn := range pending {
		fn(d.n)
	}
}

// notify queues fn to be called with the Notifier once the lock is released.
func (d *Device) notify(fn func(n Notifier)) {
	d.pending = append(d.pending, fn)
}

// vif looks up the state for ifi. The lock must be held.
func (d *Device) vif(ifi *Interface) (*vif, error) {
	if ifi == nil {
		return nil, errors.WithMessage(ErrNoSuchEntry, "no interface")
	}

	v, ok := d.vifs[ifi.FirmwareIndex]
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchEntry, "vif %d", ifi.FirmwareIndex)
	}

	return v, nil
}

// begin acquires the lock and looks up ifi for an operation. Unless the
// returned error is non-nil, the caller must unlock.
func (d *Device) begin(ctx context.Context, ifi *Interface) (*vif, error) {
	if err := d.lock(ctx); err != nil {
		return nil, err
	}

	v, err := d.vif(ifi)
	if err != nil {
		d.unlock()
		return nil, err
	}

	return v, nil
}

// checkReady reports whether commands may be issued for v. The lock must be
// held.
func (d *Device) checkReady(v *vif) error {
	switch {
	case d.destroying:
		return errors.WithMessage(ErrBusy, "destroy in progress")
	case !d.ready:
		return errors.WithMessage(ErrNotReady, "wmi is not ready")
	case !v.enabled:
		return errors.WithMessage(ErrNotReady, "wlan disabled")
	}

	return nil
}

// vifStop drops v's connection and scan. Firmware commands are only issued
// when fw is set.
func (d *Device) vifStop(v *vif, fw bool) {
	v.enabled = false

	ifi := v.ifi
	bssid := cloneMAC(v.bssid)
	switch v.sme {
	case SMEConnecting:
		d.notify(func(n Notifier) {
			n.ConnectResult(ifi, bssid, nil, nil, StatusUnspecifiedFailure)
		})
	case SMEConnected:
		d.notify(func(n Notifier) {
			n.Disconnected(ifi, 0, nil)
		})
	}

	if fw && (v.connected || v.connectPending) {
		if err := d.fw.Disconnect(context.Background(), v.ifi.FirmwareIndex); err != nil {
			v.log.WithError(err).Warn("disconnect on stop failed")
		}
	}

	v.sme = SMEDisconnected
	v.connected = false
	v.connectPending = false
	v.stations = nil
	if v.ap == apActive {
		v.ap = apPendingKeys
	}

	d.stopTimer(v)
	d.scanDone(v, true, fw)
}

// dbg logs a debug entry for v when category m is enabled. v may be nil.
func (d *Device) dbg(m DebugMask, v *vif, format string, args ...interface{}) {
	if d.cfg.DebugMask&m == 0 {
		return
	}

	l := d.log
	if v != nil {
		l = v.log
	}
	l.Debugf(format, args...)
}

// startTimer arms the disconnect safety timer for v.
func (d *Device) startTimer(v *vif) {
	d.stopTimer(v)
	if d.cfg.DisconnectTimeout < 0 {
		return
	}

	idx, gen := v.ifi.FirmwareIndex, v.timerGen
	v.timer = d.afterFunc(d.cfg.DisconnectTimeout, func() {
		d.disconnectTimeout(idx, gen)
	})
}

// stopTimer cancels the disconnect safety timer for v. A callback which has
// already fired is invalidated by the generation bump.
func (d *Device) stopTimer(v *vif) {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.timerGen++
}

// disconnectTimeout runs when no key arrived in time after a PSK connect.
func (d *Device) disconnectTimeout(idx uint8, gen uint64) {
	_ = d.lock(context.Background())
	defer d.unlock()

	v, ok := d.vifs[idx]
	if !ok || v.timerGen != gen || d.destroying {
		return
	}
	v.timer = nil

	v.log.Warn("disconnect timer expired")
	v.initProfile()
	d.disconnect(context.Background(), v)
}

func cloneMAC(mac net.HardwareAddr) net.HardwareAddr {
	if mac == nil {
		return nil
	}

	return append(net.HardwareAddr(nil), mac...)
}
