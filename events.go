package wlanmgr

import (
	"context"
	"net"
)

// An Event is an asynchronous report from firmware.
type Event interface {
	eventName() string
}

// An EventHandler consumes firmware events. *Device is an EventHandler.
type EventHandler interface {
	HandleEvent(ev Event)
}

var _ EventHandler = &Device{}

// A ReadyEvent reports that firmware has booted.
type ReadyEvent struct {
	HardwareAddr    net.HardwareAddr
	FirmwareVersion uint32
	Capabilities    uint32
}

// A ConnectEvent reports an association, a roam, an ad-hoc join, a started
// BSS or a new station, depending on the interface.
type ConnectEvent struct {
	Vif            uint8
	Channel        uint16
	BSSID          net.HardwareAddr
	ListenInterval uint16
	BeaconInterval uint16
	NetworkType    NetworkType
	AID            uint8

	// AssocInfo holds the beacon IEs, the association request and the
	// association response, in that order, with these lengths.
	BeaconIELen  int
	AssocReqLen  int
	AssocRespLen int
	AssocInfo    []byte
}

// Fixed fields before the IEs of association frames in AssocInfo.
const (
	// Capability information and listen interval.
	assocReqIEOffset = 4

	// Capability information, status code and association ID.
	assocRespIEOffset = 6
)

// ies slices the beacon, association request and association response IEs
// out of AssocInfo. Truncated info yields empty slices.
func (e *ConnectEvent) ies() (beacon, req, resp []byte) {
	info := e.AssocInfo

	beacon = sub(info, 0, e.BeaconIELen)
	req = sub(info, e.BeaconIELen+assocReqIEOffset, e.BeaconIELen+e.AssocReqLen)
	resp = sub(info, e.BeaconIELen+e.AssocReqLen+assocRespIEOffset,
		e.BeaconIELen+e.AssocReqLen+e.AssocRespLen)

	return beacon, req, resp
}

// A DisconnectEvent reports a lost or refused association.
type DisconnectEvent struct {
	Vif            uint8
	Reason         DisconnectReason
	BSSID          net.HardwareAddr
	ProtocolReason uint16

	// AssocInfo holds the association response, if any.
	AssocInfo []byte
}

// respIE returns the IEs of the association response carried by e.
func (e *DisconnectEvent) respIE() []byte {
	return sub(e.AssocInfo, assocRespIEOffset, len(e.AssocInfo))
}

// A ScanCompleteEvent reports the end of a scan. A Status of ScanStatusBusy
// or ScanStatusCanceled means the scan was aborted.
type ScanCompleteEvent struct {
	Vif    uint8
	Status int32
}

// A MICFailureEvent reports a TKIP Michael MIC failure. On an access point
// the upper bits of KeyID carry the association ID of the station.
type MICFailureEvent struct {
	Vif       uint8
	KeyID     uint8
	Multicast bool
}

// A StatsEvent answers Firmware.GetStats.
type StatsEvent struct {
	Vif    uint8
	Report StatsReport
}

// A TxPowerEvent answers Firmware.GetTxPower.
type TxPowerEvent struct {
	Vif uint8
	DBm uint8
}

// A Neighbor is one entry of a NeighborReportEvent.
type Neighbor struct {
	BSSID   net.HardwareAddr
	Preauth bool
}

// A NeighborReportEvent lists BSS which are candidates for PMKSA caching.
type NeighborReportEvent struct {
	Vif       uint8
	Neighbors []Neighbor
}

func (*ReadyEvent) eventName() string          { return "ready" }
func (*ConnectEvent) eventName() string        { return "connect" }
func (*DisconnectEvent) eventName() string     { return "disconnect" }
func (*ScanCompleteEvent) eventName() string   { return "scan complete" }
func (*MICFailureEvent) eventName() string     { return "mic failure" }
func (*StatsEvent) eventName() string          { return "stats" }
func (*TxPowerEvent) eventName() string        { return "tx power" }
func (*NeighborReportEvent) eventName() string { return "neighbor report" }

// HandleEvent dispatches one firmware event. Events are processed in the
// order HandleEvent is called; notifications are delivered before it
// returns. Events received during teardown are dropped.
func (d *Device) HandleEvent(ev Event) {
	_ = d.lock(context.Background())
	defer d.unlock()

	if d.destroying {
		d.counters.Dropped++
		return
	}

	if e, ok := ev.(*ReadyEvent); ok {
		d.counters.Ready++
		d.ready = true
		d.info = *e
		d.info.HardwareAddr = cloneMAC(e.HardwareAddr)
		d.log.WithField("version", e.FirmwareVersion).Info("firmware ready")
		return
	}

	idx, ok := eventVif(ev)
	if !ok {
		d.counters.Dropped++
		d.log.Warnf("unknown event %T", ev)
		return
	}

	v, ok := d.vifs[idx]
	if !ok {
		d.counters.Dropped++
		d.dbg(DebugEvents, nil, "%s event for unknown vif %d", ev.eventName(), idx)
		return
	}

	d.dbg(DebugEvents, v, "%s event", ev.eventName())

	switch e := ev.(type) {
	case *ConnectEvent:
		d.counters.Connect++
		if v.nwType == NetworkAP {
			d.apConnectEvent(v, e)
		} else {
			d.connectEvent(v, e)
		}
	case *DisconnectEvent:
		d.counters.Disconnect++
		if v.nwType == NetworkAP {
			d.apDisconnectEvent(v, e)
		} else {
			d.disconnectEvent(v, e)
		}
	case *ScanCompleteEvent:
		d.counters.ScanComplete++
		d.scanCompleteEvent(v, e)
	case *MICFailureEvent:
		d.counters.MICFailure++
		d.micFailureEvent(v, e)
	case *StatsEvent:
		d.counters.Stats++
		d.statsEvent(v, e)
	case *TxPowerEvent:
		d.counters.TxPower++
		d.txPower = e.DBm
		if d.txPowerWait != nil {
			close(d.txPowerWait)
			d.txPowerWait = nil
		}
	case *NeighborReportEvent:
		d.counters.NeighborReport++
		d.neighborReportEvent(v, e)
	}
}

func eventVif(ev Event) (uint8, bool) {
	switch e := ev.(type) {
	case *ConnectEvent:
		return e.Vif, true
	case *DisconnectEvent:
		return e.Vif, true
	case *ScanCompleteEvent:
		return e.Vif, true
	case *MICFailureEvent:
		return e.Vif, true
	case *StatsEvent:
		return e.Vif, true
	case *TxPowerEvent:
		return e.Vif, true
	case *NeighborReportEvent:
		return e.Vif, true
	default:
		return 0, false
	}
}

func (d *Device) micFailureEvent(v *vif, e *MICFailureEvent) {
	if v.nwType == NetworkAP {
		d.apMICFailure(v, e)
		return
	}

	kt := KeyTypePairwise
	if e.Multicast {
		kt = KeyTypeGroup
		v.stats.GroupMICFailures++
	} else {
		v.stats.PairwiseMICFailures++
	}

	v.log.WithField("key_index", e.KeyID).Warnf("%s michael mic failure", kt)

	ifi := v.ifi
	bssid := cloneMAC(v.bssid)
	keyID := int(e.KeyID)
	d.notify(func(n Notifier) { n.MichaelMICFailure(ifi, bssid, kt, keyID) })
}

func (d *Device) statsEvent(v *vif, e *StatsEvent) {
	v.stats.update(e.Report)
	d.dbg(DebugStats, v, "stats: tx %d packets, rx %d packets, rssi %d",
		v.stats.TxPackets, v.stats.RxPackets, v.stats.CSRSSI)

	if v.statsWait != nil {
		close(v.statsWait)
		v.statsWait = nil
	}
}

func (d *Device) neighborReportEvent(v *vif, e *NeighborReportEvent) {
	ifi := v.ifi
	for i, nb := range e.Neighbors {
		i, bssid, preauth := i, cloneMAC(nb.BSSID), nb.Preauth
		d.dbg(DebugWLANConfig, v, "neighbor %d/%d %s preauth %t", i+1, len(e.Neighbors), bssid, preauth)
		d.notify(func(n Notifier) { n.PMKSACandidate(ifi, i, bssid, preauth) })
	}
}

// sub returns b[start:end], clamped to b. An empty or inverted range yields
// nil.
func sub(b []byte, start, end int) []byte {
	if end > len(b) {
		end = len(b)
	}
	if start < 0 || start >= end {
		return nil
	}

	return b[start:end]
}
