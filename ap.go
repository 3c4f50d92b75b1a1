package wlanmgr

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// ChangeInterface changes the operating mode an interface uses for its next
// connection or BSS.
func (d *Device) ChangeInterface(ctx context.Context, ifi *Interface, typ InterfaceType) error {
	var mode NetworkType
	switch typ {
	case InterfaceTypeStation, InterfaceTypeP2PClient:
		mode = NetworkInfra
	case InterfaceTypeAdHoc:
		mode = NetworkAdHoc
	case InterfaceTypeAP, InterfaceTypeP2PGroupOwner:
		mode = NetworkAP
	default:
		return errors.Wrapf(ErrNotSupported, "interface type %s", typ)
	}

	if (typ == InterfaceTypeP2PClient || typ == InterfaceTypeP2PGroupOwner) && !d.cfg.P2P {
		return errors.Wrapf(ErrNotSupported, "interface type %s without p2p", typ)
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if d.destroying {
		return errors.WithMessage(ErrBusy, "destroy in progress")
	}

	d.dbg(DebugWLANConfig, v, "change interface type %s to %s", v.ifi.Type, typ)

	v.nextMode = mode
	v.ifi.Type = typ
	switch {
	case mode != NetworkAP:
		v.ap = apNotStarted
		v.stagedGrp = nil
	case v.ap == apNotStarted:
		v.ap = apPendingKeys
	}

	return nil
}

// APSettings describe an access point to start.
type APSettings struct {
	SSID       []byte
	HiddenSSID bool

	// Frequency is the operating channel, in MHz.
	Frequency int

	// BeaconInterval is in time units; DTIMPeriod is in beacons.
	BeaconInterval uint16
	DTIMPeriod     uint8

	AuthType        AuthType
	WPAVersions     WPAVersion
	AKMSuites       []AKMSuite
	PairwiseCiphers []CipherSuite
	GroupCipher     CipherSuite

	// Extra IEs for the beacon, probe response and association response.
	BeaconIEs    []byte
	ProbeRespIEs []byte
	AssocRespIEs []byte
}

// StartAP commits an access point profile. Firmware reports the BSS as
// started with a connect event carrying the interface's own address; keys
// added before then are installed at that point.
func (d *Device) StartAP(ctx context.Context, ifi *Interface, s APSettings) error {
	if len(s.SSID) == 0 || len(s.SSID) > 32 {
		return errors.Wrapf(ErrInvalidParams, "ssid length %d", len(s.SSID))
	}

	dot11, err := s.AuthType.dot11()
	if err != nil {
		return errors.Wrap(ErrNotSupported, err.Error())
	}

	var auth AuthMode
	for _, akm := range s.AKMSuites {
		switch akm {
		case AKMSuite8021X:
			if s.WPAVersions&WPAVersion1 != 0 {
				auth |= AuthWPA
			}
			if s.WPAVersions&WPAVersion2 != 0 {
				auth |= AuthWPA2
			}
		case AKMSuitePSK:
			if s.WPAVersions&WPAVersion1 != 0 {
				auth |= AuthWPAPSK
			}
			if s.WPAVersions&WPAVersion2 != 0 {
				auth |= AuthWPA2PSK
			}
		}
	}
	if auth == 0 {
		auth = AuthNone
	}

	var (
		prw    CryptoType
		prwLen uint8
	)
	for _, c := range s.PairwiseCiphers {
		ct, l, err := c.crypto()
		if err != nil {
			return errors.Wrap(ErrNotSupported, err.Error())
		}
		if ct != CryptoNone {
			prw |= ct
		}
		if len(s.PairwiseCiphers) == 1 {
			prwLen = l
		}
	}
	if prw == 0 {
		prw = CryptoNone
	}

	grp, grpLen, err := s.GroupCipher.crypto()
	if err != nil {
		return errors.Wrap(ErrNotSupported, err.Error())
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}
	if v.nextMode != NetworkAP {
		return errors.Wrapf(ErrNotSupported, "start ap on %s interface", v.ifi.Type)
	}

	fwIdx := v.ifi.FirmwareIndex
	for _, a := range []struct {
		frame MgmtFrameType
		ie    []byte
	}{
		{FrameBeacon, s.BeaconIEs},
		{FrameProbeResp, s.ProbeRespIEs},
		{FrameAssocResp, s.AssocRespIEs},
	} {
		if err := d.fw.SetAppIE(ctx, fwIdx, a.frame, a.ie); err != nil {
			return fwErr("set ap appie", err)
		}
	}

	v.ssid = append([]byte(nil), s.SSID...)
	v.dot11Auth = dot11
	v.auth = auth
	v.prwCrypto, v.prwLen = prw, prwLen
	v.grpCrypto, v.grpLen = grp, grpLen
	v.nwType = v.nextMode
	if s.Frequency != 0 {
		v.chHint = uint16(s.Frequency)
	}

	subtype := SubtypeNone
	if v.ifi.Type == InterfaceTypeP2PGroupOwner {
		subtype = SubtypeP2PGO
	}

	d.dbg(DebugWLANConfig, v, "start ap %q auth %s pairwise %s group %s on %d MHz",
		v.ssid, auth, prw, grp, s.Frequency)

	err = d.fw.CommitAPProfile(ctx, APProfile{
		Vif:               fwIdx,
		SSID:              v.ssid,
		HiddenSSID:        s.HiddenSSID,
		Channel:           uint16(s.Frequency),
		NetworkType:       NetworkAP,
		Subtype:           subtype,
		Dot11AuthMode:     dot11,
		AuthMode:          auth,
		PairwiseCrypto:    prw,
		PairwiseCryptoLen: prwLen,
		GroupCrypto:       grp,
		GroupCryptoLen:    grpLen,
		BeaconInterval:    s.BeaconInterval,
		DTIMPeriod:        s.DTIMPeriod,
	})
	if err != nil {
		return fwErr("ap profile commit", err)
	}

	return nil
}

// StopAP stops a started access point.
func (d *Device) StopAP(ctx context.Context, ifi *Interface) error {
	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}
	if v.nwType != NetworkAP {
		return errors.Wrapf(ErrNotSupported, "stop ap on %s network", v.nwType)
	}
	if !v.connected {
		return errors.WithMessage(ErrNotConnected, "bss not started")
	}

	if err := d.fw.Disconnect(ctx, v.ifi.FirmwareIndex); err != nil {
		return fwErr("disconnect", err)
	}

	d.stopBSS(v)
	return nil
}

// apConnectEvent handles a connect event on an access point interface: its
// own address means the BSS started, anything else is a new station.
func (d *Device) apConnectEvent(v *vif, e *ConnectEvent) {
	if macEqual(e.BSSID, v.ifi.HardwareAddr) {
		d.dbg(DebugWLANConfig, v, "ap started on %d MHz", e.Channel)

		v.bssChannel = e.Channel
		d.installStagedKeys(v)

		if err := d.fw.SetBSSFilter(context.Background(), v.ifi.FirmwareIndex, BSSFilterNone, 0); err != nil {
			v.log.WithError(err).Warn("couldn't reset bss filtering")
		}

		v.connected = true
		v.ap = apActive
		return
	}

	mac := cloneMAC(e.BSSID)
	_, reqIE, _ := e.ies()

	if i := v.findStation(mac); i >= 0 {
		v.stations[i].aid = e.AID
	} else {
		if len(v.stations) >= maxStations {
			v.log.WithField("mac", mac.String()).Warn("station table full")
			return
		}
		v.stations = append(v.stations, apStation{mac: mac, aid: e.AID})
	}

	d.dbg(DebugWLANConfig, v, "new station %s aid %d", mac, e.AID)

	ifi := v.ifi
	d.notify(func(n Notifier) { n.NewStation(ifi, mac, reqIE) })
}

// apDisconnectEvent handles a disconnect event on an access point
// interface. The broadcast or own address means the BSS stopped.
func (d *Device) apDisconnectEvent(v *vif, e *DisconnectEvent) {
	if isBroadcastMAC(e.BSSID) || macEqual(e.BSSID, v.ifi.HardwareAddr) {
		d.dbg(DebugWLANConfig, v, "ap stopped, reason %s", e.Reason)
		d.stopBSS(v)
		return
	}

	i := v.findStation(e.BSSID)
	if i < 0 {
		d.dbg(DebugWLANConfig, v, "disconnect for unknown station %s", e.BSSID)
		return
	}
	v.stations = append(v.stations[:i], v.stations[i+1:]...)

	d.dbg(DebugWLANConfig, v, "station %s left, reason %d", e.BSSID, e.ProtocolReason)

	ifi := v.ifi
	mac := cloneMAC(e.BSSID)
	d.notify(func(n Notifier) { n.DelStation(ifi, mac) })
}

// stopBSS forgets a stopped access point's stations and staged keys.
func (d *Device) stopBSS(v *vif) {
	v.stations = nil

	v.stagedWEP = [MaxKeyIndex + 1][]byte{}
	v.connected = false
	if v.ap == apActive {
		v.ap = apPendingKeys
	}
}

// apMICFailure reports a MIC failure from the station with the AID encoded in
// the upper bits of keyID.
func (d *Device) apMICFailure(v *vif, e *MICFailureEvent) {
	s, ok := v.stationByAID(e.KeyID >> 2)
	if !ok {
		d.dbg(DebugWLANConfig, v, "mic failure for unknown aid %d", e.KeyID>>2)
		return
	}

	v.stats.PairwiseMICFailures++

	ifi := v.ifi
	mac := net.HardwareAddr(append([]byte(nil), s.mac...))
	keyID := int(e.KeyID & 0x3)
	d.notify(func(n Notifier) { n.MichaelMICFailure(ifi, mac, KeyTypePairwise, keyID) })
}
