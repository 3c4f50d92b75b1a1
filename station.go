package wlanmgr

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// tu is an 802.11 time unit.
const tu = 1024 * time.Microsecond

// GetStation fetches fresh statistics from firmware and reports them for the
// BSS the interface is associated with. mac must be that BSS.
func (d *Device) GetStation(ctx context.Context, ifi *Interface, mac net.HardwareAddr) (*StationInfo, error) {
	v, err := d.begin(ctx, ifi)
	if err != nil {
		return nil, err
	}

	if err := d.checkReady(v); err != nil {
		d.unlock()
		return nil, err
	}
	if len(v.bssid) == 0 || !macEqual(mac, v.bssid) {
		d.unlock()
		return nil, errors.Wrapf(ErrNoSuchEntry, "station %s", mac)
	}

	wait := v.statsWait
	if wait == nil {
		wait = make(chan struct{})
		v.statsWait = wait

		if err := d.fw.GetStats(ctx, v.ifi.FirmwareIndex); err != nil {
			v.statsWait = nil
			d.unlock()
			return nil, fwErr("get stats", err)
		}
	}
	d.unlock()

	if err := d.wait(ctx, wait, d.cfg.CommandTimeout); err != nil {
		d.abandon(&v.statsWait, wait)
		return nil, errors.WithMessage(err, "stats")
	}

	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	defer d.unlock()

	s := v.stats
	info := &StationInfo{
		HardwareAddr: cloneMAC(mac),
		Signal:       int(s.CSRSSI),
	}
	if s.RxBytes != 0 {
		info.ReceivedBytes = int(s.RxBytes)
		info.ReceivedPackets = int(s.RxPackets)
	}
	if s.TxBytes != 0 {
		info.TransmittedBytes = int(s.TxBytes)
		info.TransmittedPackets = int(s.TxPackets)
	}

	// Firmware reports rates in kbit/s.
	info.TransmitBitrate = int(s.TxUnicastRate) * 1000

	if v.connected && v.dtimKnown && v.nwType == NetworkInfra {
		info.BeaconInterval = time.Duration(v.beaconInterval) * tu
		info.DTIMPeriod = v.dtimPeriod
	}

	return info, nil
}

// wait blocks until done is closed, timeout elapses or ctx is done.
func (d *Device) wait(ctx context.Context, done <-chan struct{}, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-done:
		return nil
	case <-t.C:
		return errors.WithMessage(ErrTimeout, "target did not respond")
	case <-ctx.Done():
		return mark(ctx.Err(), ErrInterrupted)
	}
}

// abandon clears a reply waiter that went unanswered so the next request is
// sent to firmware again. Nothing is done if a reply already replaced it.
func (d *Device) abandon(slot *chan struct{}, wait chan struct{}) {
	// The caller's context may be done, so the lock is taken unconditionally.
	d.sem <- struct{}{}
	if *slot == wait {
		*slot = nil
	}
	d.unlock()
}

// SetTxPower sets the transmit power limit. Automatic leaves the firmware
// default in place.
func (d *Device) SetTxPower(ctx context.Context, ifi *Interface, setting TxPowerSetting, dbm int) error {
	switch setting {
	case TxPowerAutomatic:
		return nil
	case TxPowerLimited:
	default:
		return errors.Wrapf(ErrNotSupported, "tx power setting %d", setting)
	}
	if dbm < 0 || dbm > 255 {
		return errors.Wrapf(ErrInvalidParams, "tx power %d dBm", dbm)
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	d.txPower = uint8(dbm)
	if err := d.fw.SetTxPower(ctx, v.ifi.FirmwareIndex, uint8(dbm)); err != nil {
		return fwErr("set tx power", err)
	}

	return nil
}

// GetTxPower returns the transmit power in dBm. While connected the value is
// fetched from firmware; otherwise the last known value is returned.
func (d *Device) GetTxPower(ctx context.Context, ifi *Interface) (int, error) {
	v, err := d.begin(ctx, ifi)
	if err != nil {
		return 0, err
	}

	if err := d.checkReady(v); err != nil {
		d.unlock()
		return 0, err
	}

	if !v.connected {
		dbm := int(d.txPower)
		d.unlock()
		return dbm, nil
	}

	wait := d.txPowerWait
	if wait == nil {
		wait = make(chan struct{})
		d.txPowerWait = wait
		d.txPower = 0

		if err := d.fw.GetTxPower(ctx, v.ifi.FirmwareIndex); err != nil {
			d.txPowerWait = nil
			d.unlock()
			v.log.WithError(err).Error("wmi_get_tx_pwr_cmd failed")
			return 0, fwErr("get tx power", err)
		}
	}
	d.unlock()

	if err := d.wait(ctx, wait, d.cfg.TxPowerTimeout); err != nil {
		d.abandon(&d.txPowerWait, wait)
		return 0, errors.WithMessage(err, "tx power")
	}

	if err := d.lock(ctx); err != nil {
		return 0, err
	}
	defer d.unlock()

	return int(d.txPower), nil
}

// SetPowerMgmt enables or disables firmware power save.
func (d *Device) SetPowerMgmt(ctx context.Context, ifi *Interface, enabled bool) error {
	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	mode := PowerModeMaxPerformance
	if enabled {
		mode = PowerModeRecommended
	}

	if err := d.fw.SetPowerMode(ctx, v.ifi.FirmwareIndex, mode); err != nil {
		v.log.WithError(err).Error("wmi_powermode_cmd failed")
		return fwErr("set power mode", err)
	}

	return nil
}

// SetPMKSA caches a PMKID for a BSS in firmware.
func (d *Device) SetPMKSA(ctx context.Context, ifi *Interface, bssid net.HardwareAddr, pmkid []byte) error {
	return d.pmksa(ctx, ifi, bssid, pmkid, true)
}

// DelPMKSA removes a cached PMKID for a BSS.
func (d *Device) DelPMKSA(ctx context.Context, ifi *Interface, bssid net.HardwareAddr, pmkid []byte) error {
	return d.pmksa(ctx, ifi, bssid, pmkid, false)
}

func (d *Device) pmksa(ctx context.Context, ifi *Interface, bssid net.HardwareAddr, pmkid []byte, enable bool) error {
	if len(bssid) != 6 {
		return errors.Wrapf(ErrInvalidParams, "bssid length %d", len(bssid))
	}
	if len(pmkid) != 16 {
		return errors.Wrapf(ErrInvalidParams, "pmkid length %d", len(pmkid))
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	d.dbg(DebugWLANConfig, v, "pmksa %s enable %t", bssid, enable)

	if err := d.fw.SetPMKID(ctx, v.ifi.FirmwareIndex, bssid, pmkid, enable); err != nil {
		return fwErr("set pmkid", err)
	}

	return nil
}

// FlushPMKSA clears the cached PMKID of the current BSS, if connected.
func (d *Device) FlushPMKSA(ctx context.Context, ifi *Interface) error {
	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}
	if !v.connected {
		return nil
	}

	if err := d.fw.SetPMKID(ctx, v.ifi.FirmwareIndex, v.bssid, nil, false); err != nil {
		return fwErr("set pmkid", err)
	}

	return nil
}
