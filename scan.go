package wlanmgr

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Firmware scan status values reported by ScanCompleteEvent.
const (
	ScanStatusSuccess  int32 = 0
	ScanStatusBusy     int32 = -16
	ScanStatusCanceled int32 = -125
)

// fgScanInterval is the forced foreground scan interval.
const fgScanInterval = 50 * time.Millisecond

// A ScanRequest describes a scan. The Device holds a reference to it until
// the scan is completed through Notifier.ScanDone.
type ScanRequest struct {
	// SSIDs are probed for specifically. If empty, or if the first SSID is
	// empty, only broadcast probes are sent.
	SSIDs [][]byte

	// Frequencies restricts the scan to these channels, in MHz. Empty scans
	// all channels.
	Frequencies []int

	// IEs are extra information elements for probe requests.
	IEs []byte
}

// Scan starts a scan on an interface. Only one scan may be outstanding per
// interface; a second call returns ErrBusy until the first completes.
func (d *Device) Scan(ctx context.Context, ifi *Interface, req *ScanRequest) error {
	if req == nil {
		return errors.WithMessage(ErrInvalidParams, "no scan request")
	}
	for _, ssid := range req.SSIDs {
		if len(ssid) > 32 {
			return errors.Wrapf(ErrInvalidParams, "ssid length %d", len(ssid))
		}
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}
	if v.scan != nil {
		return errors.WithMessage(ErrBusy, "scan already in progress")
	}

	fwIdx := v.ifi.FirmwareIndex

	if !d.cfg.UserBSSFilter {
		filter := BSSFilterAll
		if v.connected {
			filter = BSSFilterAllButBSS
		}
		if err := d.fw.SetBSSFilter(ctx, fwIdx, filter, 0); err != nil {
			v.log.WithError(err).Error("couldn't set bss filtering")
			return fwErr("set bss filter", err)
		}
	}

	var probes int
	if len(req.SSIDs) > 0 && len(req.SSIDs[0]) > 0 {
		probes = len(req.SSIDs)
		if limit := d.cfg.MaxProbedSSIDs - 1; probes > limit {
			d.dbg(DebugScan, v, "probing %d of %d ssids", limit, probes)
			probes = limit
		}

		for i := 0; i < probes; i++ {
			err := d.fw.SetProbedSSID(ctx, fwIdx, uint8(i+1), ProbedSSIDSpecific, req.SSIDs[i])
			if err != nil {
				v.log.WithError(err).Warn("couldn't set probed ssid")
			}
		}
	}

	// This also clears probe request IEs in firmware when none are set.
	if err := d.fw.SetAppIE(ctx, fwIdx, FrameProbeReq, req.IEs); err != nil {
		v.log.WithError(err).Error("failed to set probe request appie for scan")
		return fwErr("set probe req ie", err)
	}

	// A channel list longer than firmware supports is not configured, and
	// all channels are scanned instead.
	var channels []uint16
	if n := len(req.Frequencies); n > 0 && n <= d.cfg.MaxScanChannels {
		channels = make([]uint16, 0, n)
		for _, f := range req.Frequencies {
			channels = append(channels, uint16(f))
		}
	}

	d.dbg(DebugScan, v, "start scan, %d probed ssids, %d channels", probes, len(channels))

	err = d.fw.StartScan(ctx, ScanCommand{
		Vif:               fwIdx,
		Type:              ScanTypeLong,
		ForceForeground:   v.connected,
		ForceScanInterval: fgScanInterval,
		Channels:          channels,
	})
	if err != nil {
		v.log.WithError(err).Error("wmi_startscan_cmd failed")
		return fwErr("start scan", err)
	}

	v.scan = req
	v.scanProbes = probes
	return nil
}

// scanCompleteEvent completes the outstanding scan with the firmware's
// status.
func (d *Device) scanCompleteEvent(v *vif, e *ScanCompleteEvent) {
	if v.scan == nil {
		d.dbg(DebugScan, v, "scan complete with no request outstanding")
		return
	}

	aborted := e.Status == ScanStatusBusy || e.Status == ScanStatusCanceled
	d.dbg(DebugScan, v, "scan complete, status %d", e.Status)
	d.scanDone(v, aborted, !d.destroying)

	if !d.cfg.UserBSSFilter && !d.destroying {
		if err := d.fw.SetBSSFilter(context.Background(), v.ifi.FirmwareIndex, BSSFilterNone, 0); err != nil {
			v.log.WithError(err).Warn("couldn't reset bss filtering")
		}
	}
}

// scanDone completes the outstanding scan, if any, exactly once. A finished
// scan disables the probed SSID slots it used when fw is set.
func (d *Device) scanDone(v *vif, aborted, fw bool) {
	req := v.scan
	if req == nil {
		return
	}

	ifi := v.ifi
	d.notify(func(n Notifier) { n.ScanDone(ifi, req, aborted) })

	if !aborted && fw {
		for i := 0; i < v.scanProbes; i++ {
			err := d.fw.SetProbedSSID(context.Background(), ifi.FirmwareIndex, uint8(i+1), ProbedSSIDDisable, nil)
			if err != nil {
				v.log.WithError(err).Warn("couldn't disable probed ssid")
			}
		}
	}

	v.scan = nil
	v.scanProbes = 0
}
