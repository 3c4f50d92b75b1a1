package wlanmgr

import (
	"bytes"
	"context"
	"crypto/sha1"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// ConnectParams describe the network a station interface should join.
type ConnectParams struct {
	// SSID is the network name, 1 to 32 bytes.
	SSID []byte

	// BSSID, if set and not broadcast, restricts the connection to one
	// access point.
	BSSID net.HardwareAddr

	// Frequency is a channel hint in MHz. Zero means any channel.
	Frequency int

	WPAVersions     WPAVersion
	AuthType        AuthType
	PairwiseCiphers []CipherSuite
	GroupCipher     CipherSuite
	AKMSuites       []AKMSuite

	// Key and KeyIndex carry a static WEP key.
	Key      []byte
	KeyIndex int

	// IEs are extra information elements for the association request.
	IEs []byte

	// Passphrase, if set with a PSK AKM, is used to derive the PMK so that
	// firmware performs the 4-way handshake.
	Passphrase string
}

// connectProfile is the validated firmware form of ConnectParams.
type connectProfile struct {
	dot11Auth Dot11AuthMode
	auth      AuthMode
	prwCrypto CryptoType
	prwLen    uint8
	grpCrypto CryptoType
	grpLen    uint8
}

// newConnectProfile maps p onto firmware enumerations. It does not modify
// any state.
func newConnectProfile(p ConnectParams) (connectProfile, error) {
	var cp connectProfile

	switch {
	case p.WPAVersions == 0:
		cp.auth = AuthNone
	case p.WPAVersions&WPAVersion2 != 0:
		cp.auth = AuthWPA2
	case p.WPAVersions&WPAVersion1 != 0:
		cp.auth = AuthWPA
	default:
		return cp, errors.Wrapf(ErrNotSupported, "wpa version %#x", uint32(p.WPAVersions))
	}

	dot11, err := p.AuthType.dot11()
	if err != nil {
		return cp, errors.Wrap(ErrNotSupported, err.Error())
	}
	cp.dot11Auth = dot11

	var prw CipherSuite
	if len(p.PairwiseCiphers) > 0 {
		prw = p.PairwiseCiphers[0]
	}
	if cp.prwCrypto, cp.prwLen, err = prw.crypto(); err != nil {
		return cp, errors.Wrap(ErrNotSupported, err.Error())
	}
	if cp.grpCrypto, cp.grpLen, err = p.GroupCipher.crypto(); err != nil {
		return cp, errors.Wrap(ErrNotSupported, err.Error())
	}

	if len(p.AKMSuites) > 0 {
		switch p.AKMSuites[0] {
		case AKMSuitePSK:
			switch cp.auth {
			case AuthWPA:
				cp.auth = AuthWPAPSK
			case AuthWPA2:
				cp.auth = AuthWPA2PSK
			}
		case AKMSuiteCCKM:
			switch cp.auth {
			case AuthWPA:
				cp.auth = AuthWPACCKM
			case AuthWPA2:
				cp.auth = AuthWPA2CCKM
			}
		case AKMSuite8021X:
		default:
			cp.auth = AuthNone
		}
	}

	return cp, nil
}

// Connect asks firmware to join the network described by p. It returns once
// the command is accepted; the outcome is reported by Notifier.ConnectResult.
//
// If ifi is already connected to p.SSID, a reconnect to the current target
// is issued instead.
func (d *Device) Connect(ctx context.Context, ifi *Interface, p ConnectParams) error {
	if len(p.SSID) == 0 || len(p.SSID) > 32 {
		return errors.Wrapf(ErrInvalidParams, "ssid length %d", len(p.SSID))
	}
	if d.cfg.SkipScan && (p.Frequency == 0 || isZeroMAC(p.BSSID)) {
		return errors.WithMessage(ErrInvalidParams, "skip scan requires channel and bssid")
	}

	cp, err := newConnectProfile(p)
	if err != nil {
		return err
	}

	wep := len(p.Key) > 0 && cp.auth == AuthNone && cp.prwCrypto == CryptoWEP
	if wep {
		if p.KeyIndex < 0 || p.KeyIndex > MaxKeyIndex {
			return errors.Wrapf(ErrNoSuchEntry, "key index %d out of bounds", p.KeyIndex)
		}
		if len(p.Key) > maxKeyLen {
			return errors.Wrapf(ErrInvalidParams, "key length %d", len(p.Key))
		}
	}

	var pmk []byte
	if p.Passphrase != "" && cp.auth.psk() {
		pmk = wpaPassphrase(p.SSID, []byte(p.Passphrase))
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	if err := d.setAssocReqIEs(ctx, v, p.IEs); err != nil {
		return err
	}

	if v.connected && bytes.Equal(v.ssid, p.SSID) {
		if len(p.BSSID) > 0 && !isBroadcastMAC(p.BSSID) && !macEqual(p.BSSID, v.reqBSSID) {
			d.dbg(DebugWLANConfig, v, "reconnect ignores bssid %s, using %s", p.BSSID, v.reqBSSID)
		}

		v.reconnecting = true
		if err := d.fw.Reconnect(ctx, v.ifi.FirmwareIndex, v.reqBSSID, v.chHint); err != nil {
			v.log.WithError(err).Error("wmi_reconnect_cmd failed")
			return fwErr("reconnect", err)
		}

		return nil
	} else if bytes.Equal(v.ssid, p.SSID) {
		d.disconnect(ctx, v)
	}
	v.reconnecting = false

	v.ssid = append([]byte(nil), p.SSID...)
	if p.Frequency != 0 {
		v.chHint = uint16(p.Frequency)
	}
	v.reqBSSID = nil
	if len(p.BSSID) > 0 && !isBroadcastMAC(p.BSSID) {
		v.reqBSSID = cloneMAC(p.BSSID)
	}

	v.dot11Auth = cp.dot11Auth
	v.auth = cp.auth
	v.prwCrypto, v.prwLen = cp.prwCrypto, cp.prwLen
	v.grpCrypto, v.grpLen = cp.grpCrypto, cp.grpLen

	if wep {
		idx := uint8(p.KeyIndex)
		v.keys[idx] = key{
			cipher: p.PairwiseCiphers[0],
			crypto: CryptoWEP,
			key:    append([]byte(nil), p.Key...),
		}
		v.defTxKey = idx

		err := d.fw.AddKey(ctx, AddKeyCommand{
			Vif:    v.ifi.FirmwareIndex,
			Index:  idx,
			Crypto: CryptoWEP,
			Usage:  KeyUsageGroup | KeyUsageTx,
			Key:    v.keys[idx].key,
		})
		if err != nil {
			v.log.WithError(err).Warn("couldn't prime wep key")
		}
	}

	flags := d.ctrlFlags
	if pmk != nil {
		if err := d.fw.SetPMK(ctx, v.ifi.FirmwareIndex, pmk); err != nil {
			return fwErr("set pmk", err)
		}
		flags |= ConnectDoWPAOffload
	}

	if !d.cfg.UserBSSFilter {
		if err := d.fw.SetBSSFilter(ctx, v.ifi.FirmwareIndex, BSSFilterAll, 0); err != nil {
			v.log.WithError(err).Error("couldn't set bss filtering")
			return fwErr("set bss filter", err)
		}
	}

	v.nwType = v.nextMode

	subtype := SubtypeNone
	if v.ifi.Type == InterfaceTypeP2PClient {
		subtype = SubtypeP2PClient
	}

	d.dbg(DebugWLANConfig, v,
		"connect ssid %q auth %s dot11 auth %s pairwise %s group %s channel %d",
		v.ssid, v.auth, v.dot11Auth, v.prwCrypto, v.grpCrypto, v.chHint)

	err = d.fw.Connect(ctx, ConnectCommand{
		Vif:               v.ifi.FirmwareIndex,
		NetworkType:       v.nwType,
		Dot11AuthMode:     v.dot11Auth,
		AuthMode:          v.auth,
		PairwiseCrypto:    v.prwCrypto,
		PairwiseCryptoLen: v.prwLen,
		GroupCrypto:       v.grpCrypto,
		GroupCryptoLen:    v.grpLen,
		SSID:              v.ssid,
		BSSID:             v.reqBSSID,
		Channel:           v.chHint,
		CtrlFlags:         flags,
		Subtype:           subtype,
	})
	switch {
	case errors.Is(err, ErrInvalidParams):
		v.ssid = nil
		v.sme = SMEDisconnected
		v.log.WithError(err).Error("invalid request")
		return mark(errors.WithMessage(err, "connect"), ErrNoSuchEntry)
	case err != nil:
		v.log.WithError(err).Error("wmi_connect_cmd failed")
		return fwErr("connect", err)
	}

	if flags&ConnectDoWPAOffload == 0 && v.auth.psk() {
		d.startTimer(v)
	}

	v.connectPending = true
	v.sme = SMEConnecting

	return nil
}

// setAssocReqIEs pushes the caller's association request IEs to firmware and
// updates the WPS connect flag. WPA and RSN IEs are dropped since firmware
// builds its own.
func (d *Device) setAssocReqIEs(ctx context.Context, v *vif, b []byte) error {
	var buf []byte
	if len(b) > 0 {
		ies, err := parseIEs(b)
		if err != nil {
			return errors.Wrap(ErrInvalidParams, err.Error())
		}

		for _, ie := range ies {
			if isWPAIE(ie) || ie.ID == ieRSN {
				continue
			}
			buf = append(buf, ie.ID, uint8(len(ie.Data)))
			buf = append(buf, ie.Data...)
		}
	}

	if hasWPSIE(b) {
		d.ctrlFlags |= ConnectWPSFlag
	} else {
		d.ctrlFlags &^= ConnectWPSFlag
	}

	if err := d.fw.SetAppIE(ctx, v.ifi.FirmwareIndex, FrameAssocReq, buf); err != nil {
		return fwErr("set assoc req ie", err)
	}

	return nil
}

// Disconnect drops the interface's connection. Local bookkeeping is cleared
// immediately; firmware confirms with a host-requested disconnect event.
func (d *Device) Disconnect(ctx context.Context, ifi *Interface, reason uint16) error {
	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	d.dbg(DebugWLANConfig, v, "disconnect reason %d", reason)

	v.reconnecting = false
	d.disconnect(ctx, v)

	v.ssid = nil
	if !d.cfg.SkipScan {
		v.reqBSSID = nil
	}
	v.sme = SMEDisconnected

	return nil
}

// disconnect sends a disconnect command if v is connected or connecting.
// The connected flag is left for the disconnect event to clear.
func (d *Device) disconnect(ctx context.Context, v *vif) {
	if !v.connected && !v.connectPending {
		return
	}

	if err := d.fw.Disconnect(ctx, v.ifi.FirmwareIndex); err != nil {
		v.log.WithError(err).Error("wmi_disconnect_cmd failed")
	}
	v.connectPending = false
}

// IBSSParams describe an ad-hoc network to join or create.
type IBSSParams struct {
	SSID         []byte
	BSSID        net.HardwareAddr
	Frequency    int
	FixedChannel bool
	Privacy      bool
}

// JoinIBSS joins or creates an ad-hoc network.
func (d *Device) JoinIBSS(ctx context.Context, ifi *Interface, p IBSSParams) error {
	if len(p.SSID) == 0 || len(p.SSID) > 32 {
		return errors.Wrapf(ErrInvalidParams, "ssid length %d", len(p.SSID))
	}
	if p.FixedChannel {
		return errors.WithMessage(ErrNotSupported, "fixed channel ibss")
	}

	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	v.ssid = append([]byte(nil), p.SSID...)
	if p.Frequency != 0 {
		v.chHint = uint16(p.Frequency)
	}
	v.reqBSSID = nil
	if len(p.BSSID) > 0 && !isBroadcastMAC(p.BSSID) {
		v.reqBSSID = cloneMAC(p.BSSID)
	}

	v.auth = AuthNone
	v.dot11Auth = Dot11AuthOpen
	cipher := CipherSuite(0)
	if p.Privacy {
		cipher = CipherSuiteWEP40
	}
	v.prwCrypto, v.prwLen, _ = cipher.crypto()
	v.grpCrypto, v.grpLen, _ = cipher.crypto()
	v.nwType = v.nextMode

	d.dbg(DebugWLANConfig, v, "join ibss %q auth %s dot11 auth %s", v.ssid, v.auth, v.dot11Auth)

	err = d.fw.Connect(ctx, ConnectCommand{
		Vif:               v.ifi.FirmwareIndex,
		NetworkType:       v.nwType,
		Dot11AuthMode:     v.dot11Auth,
		AuthMode:          v.auth,
		PairwiseCrypto:    v.prwCrypto,
		PairwiseCryptoLen: v.prwLen,
		GroupCrypto:       v.grpCrypto,
		GroupCryptoLen:    v.grpLen,
		SSID:              v.ssid,
		BSSID:             v.reqBSSID,
		Channel:           v.chHint,
		CtrlFlags:         d.ctrlFlags,
		Subtype:           SubtypeNone,
	})
	if err != nil {
		return fwErr("join ibss", err)
	}

	v.connectPending = true
	return nil
}

// LeaveIBSS leaves an ad-hoc network.
func (d *Device) LeaveIBSS(ctx context.Context, ifi *Interface) error {
	v, err := d.begin(ctx, ifi)
	if err != nil {
		return err
	}
	defer d.unlock()

	if err := d.checkReady(v); err != nil {
		return err
	}

	d.disconnect(ctx, v)
	v.ssid = nil

	return nil
}

// connectEvent handles a connect event for a station or ad-hoc interface.
func (d *Device) connectEvent(v *vif, e *ConnectEvent) {
	v.bssid = cloneMAC(e.BSSID)
	v.bssChannel = e.Channel
	v.listenInterval = e.ListenInterval
	v.beaconInterval = e.BeaconInterval
	v.connected = true
	v.connectPending = false
	v.reconnecting = false

	beaconIEs, reqIE, respIE := e.ies()
	if p, ok := dtimPeriod(beaconIEs); ok {
		v.dtimPeriod = p
		v.dtimKnown = true
	}

	switch {
	case e.NetworkType&NetworkAdHoc != 0 && v.ifi.Type != InterfaceTypeAdHoc,
		e.NetworkType&NetworkInfra != 0 && v.ifi.Type != InterfaceTypeStation &&
			v.ifi.Type != InterfaceTypeP2PClient:
		d.dbg(DebugWLANConfig, v, "invalid connect event for %s network on %s interface",
			e.NetworkType, v.ifi.Type)
		return
	}

	ifi := v.ifi
	bssid := cloneMAC(e.BSSID)

	if e.NetworkType&NetworkAdHoc != 0 {
		d.dbg(DebugWLANConfig, v, "ibss joined %s", bssid)
		d.notify(func(n Notifier) { n.IBSSJoined(ifi, bssid) })
		return
	}

	switch v.sme {
	case SMEConnecting:
		v.sme = SMEConnected
		d.dbg(DebugWLANConfig, v, "connected to %s on %d MHz", bssid, e.Channel)
		d.notify(func(n Notifier) {
			n.ConnectResult(ifi, bssid, reqIE, respIE, StatusSuccess)
		})
	case SMEConnected:
		freq := int(e.Channel)
		d.dbg(DebugWLANConfig, v, "roamed to %s on %d MHz", bssid, freq)
		d.notify(func(n Notifier) {
			n.Roamed(ifi, freq, bssid, reqIE, respIE)
		})
	}
}

// disconnectEvent handles a disconnect event for a station or ad-hoc
// interface.
func (d *Device) disconnectEvent(v *vif, e *DisconnectEvent) {
	d.scanDone(v, true, !d.destroying)
	d.notifyDisconnect(v, e)

	d.stopTimer(v)
	d.dbg(DebugWLANConfig, v, "disconnect reason is %s", e.Reason)

	if e.Reason == ReasonDisconnectCmd {
		if !d.cfg.UserBSSFilter && d.ready && !d.destroying {
			if err := d.fw.SetBSSFilter(context.Background(), v.ifi.FirmwareIndex, BSSFilterNone, 0); err != nil {
				v.log.WithError(err).Warn("couldn't reset bss filtering")
			}
		}
	} else {
		v.connectPending = true
		if e.Reason == ReasonAssocFailed &&
			(e.ProtocolReason == 0x11 || (e.ProtocolReason == 0 && v.reconnecting)) {
			v.connected = true
			return
		}
	}

	v.connected = false
	if e.Reason != ReasonCSERVDisconnect || !v.reconnecting {
		v.reconnecting = false
	}
	v.bssid = nil
	v.bssChannel = 0
	v.dtimKnown = false
}

// notifyDisconnect drives the SME state for a disconnect event.
func (d *Device) notifyDisconnect(v *vif, e *DisconnectEvent) {
	ifi := v.ifi

	if v.nwType&NetworkAdHoc != 0 {
		if v.ifi.Type != InterfaceTypeAdHoc {
			d.dbg(DebugWLANConfig, v, "invalid disconnect event on %s interface", v.ifi.Type)
			return
		}

		zero := make(net.HardwareAddr, 6)
		d.notify(func(n Notifier) { n.IBSSJoined(ifi, zero) })
		return
	}

	if v.nwType&NetworkInfra != 0 &&
		v.ifi.Type != InterfaceTypeStation && v.ifi.Type != InterfaceTypeP2PClient {
		d.dbg(DebugWLANConfig, v, "invalid disconnect event on %s interface", v.ifi.Type)
		return
	}

	// Firmware keeps trying to connect after any disconnect it did not
	// originate from the host. Tell it to stop; the resulting
	// host-requested event is the one that is reported.
	if e.Reason != ReasonDisconnectCmd {
		if !d.destroying {
			if err := d.fw.Disconnect(context.Background(), v.ifi.FirmwareIndex); err != nil {
				v.log.WithError(err).Error("wmi_disconnect_cmd failed")
			}
		}
		return
	}

	v.connectPending = false

	bssid := cloneMAC(e.BSSID)
	switch v.sme {
	case SMEConnecting:
		d.notify(func(n Notifier) {
			n.ConnectResult(ifi, bssid, nil, nil, StatusUnspecifiedFailure)
		})
	case SMEConnected:
		reason := e.ProtocolReason
		ie := e.respIE()
		d.notify(func(n Notifier) { n.Disconnected(ifi, reason, ie) })
	}
	v.sme = SMEDisconnected
}

// wpaPassphrase computes a WPA passphrase given an SSID and preshared key.
func wpaPassphrase(ssid, psk []byte) []byte {
	return pbkdf2.Key(psk, ssid, 4096, 32, sha1.New)
}
