//go:build linux
// +build linux

package wlanmgr

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/wlanmgr/internal/wmi"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// errEventsGroupNotFound is returned by Listen when the firmware family does
// not advertise an events multicast group. It also matches ErrNotSupported.
var errEventsGroupNotFound = errors.New("wmi events multicast group unavailable")

// A FirmwareConn is a Firmware which issues commands over the "wmi" generic
// netlink family exposed by a radio's firmware transport.
type FirmwareConn struct {
	c             *genetlink.Conn
	familyID      uint16
	familyVersion uint8
	groupID       uint32

	// mu serializes commands so that a deadline set for one command does
	// not apply to another.
	mu sync.Mutex
}

var _ Firmware = &FirmwareConn{}

// DialFirmware dials a generic netlink connection and verifies that the wmi
// family is available for use.
func DialFirmware() (*FirmwareConn, error) {
	c, err := genetlink.Dial(nil)
	if err != nil {
		return nil, err
	}

	// Best effort: older kernels reject these options.
	for _, o := range []netlink.ConnOption{
		netlink.ExtendedAcknowledge,
		netlink.GetStrictCheck,
	} {
		_ = c.SetOption(o, true)
	}

	return initFirmwareConn(c)
}

func initFirmwareConn(c *genetlink.Conn) (*FirmwareConn, error) {
	family, err := c.GetFamily(wmi.FamilyName)
	if err != nil {
		// Ensure the genl socket is closed on error to avoid leaking file
		// descriptors.
		_ = c.Close()
		return nil, err
	}

	f := &FirmwareConn{
		c:             c,
		familyID:      family.ID,
		familyVersion: family.Version,
	}
	for _, g := range family.Groups {
		if g.Name == wmi.GroupEvents {
			f.groupID = g.ID
			break
		}
	}

	return f, nil
}

// Close closes the generic netlink connection.
func (f *FirmwareConn) Close() error { return f.c.Close() }

// Connect implements Firmware.
func (f *FirmwareConn) Connect(ctx context.Context, cmd ConnectCommand) error {
	return f.execute(ctx, wmi.CmdConnect, cmd.Vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrNetworkType, uint8(cmd.NetworkType))
		ae.Uint8(wmi.AttrDot11AuthMode, uint8(cmd.Dot11AuthMode))
		ae.Uint8(wmi.AttrAuthMode, uint8(cmd.AuthMode))
		ae.Uint8(wmi.AttrPairwiseCrypto, uint8(cmd.PairwiseCrypto))
		ae.Uint8(wmi.AttrPairwiseCryptoLen, cmd.PairwiseCryptoLen)
		ae.Uint8(wmi.AttrGroupCrypto, uint8(cmd.GroupCrypto))
		ae.Uint8(wmi.AttrGroupCryptoLen, cmd.GroupCryptoLen)
		ae.Bytes(wmi.AttrSSID, cmd.SSID)
		if len(cmd.BSSID) > 0 {
			ae.Bytes(wmi.AttrBSSID, cmd.BSSID)
		}
		ae.Uint16(wmi.AttrChannel, cmd.Channel)
		ae.Uint32(wmi.AttrCtrlFlags, cmd.CtrlFlags)
		ae.Uint8(wmi.AttrSubtype, uint8(cmd.Subtype))
	})
}

// Reconnect implements Firmware.
func (f *FirmwareConn) Reconnect(ctx context.Context, vif uint8, bssid net.HardwareAddr, channel uint16) error {
	return f.execute(ctx, wmi.CmdReconnect, vif, func(ae *netlink.AttributeEncoder) {
		if len(bssid) > 0 {
			ae.Bytes(wmi.AttrBSSID, bssid)
		}
		ae.Uint16(wmi.AttrChannel, channel)
	})
}

// Disconnect implements Firmware.
func (f *FirmwareConn) Disconnect(ctx context.Context, vif uint8) error {
	return f.execute(ctx, wmi.CmdDisconnect, vif, nil)
}

// AddKey implements Firmware.
func (f *FirmwareConn) AddKey(ctx context.Context, cmd AddKeyCommand) error {
	return f.execute(ctx, wmi.CmdAddKey, cmd.Vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrKeyIndex, cmd.Index)
		ae.Uint8(wmi.AttrKeyType, uint8(cmd.Crypto))
		ae.Uint8(wmi.AttrKeyUsage, uint8(cmd.Usage))
		ae.Bytes(wmi.AttrKey, cmd.Key)
		if len(cmd.RSC) > 0 {
			ae.Bytes(wmi.AttrKeyRSC, cmd.RSC)
		}
		if len(cmd.MAC) > 0 {
			ae.Bytes(wmi.AttrMAC, cmd.MAC)
		}
	})
}

// DeleteKey implements Firmware.
func (f *FirmwareConn) DeleteKey(ctx context.Context, vif, index uint8) error {
	return f.execute(ctx, wmi.CmdDeleteKey, vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrKeyIndex, index)
	})
}

// AddKRK implements Firmware.
func (f *FirmwareConn) AddKRK(ctx context.Context, vif uint8, krk []byte) error {
	return f.execute(ctx, wmi.CmdAddKRK, vif, func(ae *netlink.AttributeEncoder) {
		ae.Bytes(wmi.AttrKRK, krk)
	})
}

// SetPMK implements Firmware.
func (f *FirmwareConn) SetPMK(ctx context.Context, vif uint8, pmk []byte) error {
	return f.execute(ctx, wmi.CmdSetPMK, vif, func(ae *netlink.AttributeEncoder) {
		ae.Bytes(wmi.AttrPMK, pmk)
	})
}

// SetPMKID implements Firmware.
func (f *FirmwareConn) SetPMKID(ctx context.Context, vif uint8, bssid net.HardwareAddr, pmkid []byte, enable bool) error {
	return f.execute(ctx, wmi.CmdSetPMKID, vif, func(ae *netlink.AttributeEncoder) {
		ae.Bytes(wmi.AttrBSSID, bssid)
		if len(pmkid) > 0 {
			ae.Bytes(wmi.AttrPMKID, pmkid)
		}
		ae.Flag(wmi.AttrEnable, enable)
	})
}

// StartScan implements Firmware.
func (f *FirmwareConn) StartScan(ctx context.Context, cmd ScanCommand) error {
	return f.execute(ctx, wmi.CmdStartScan, cmd.Vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrScanType, uint8(cmd.Type))
		ae.Flag(wmi.AttrForceForeground, cmd.ForceForeground)
		ae.Flag(wmi.AttrIsLegacy, cmd.IsLegacy)
		ae.Uint32(wmi.AttrHomeDwell, millis(cmd.HomeDwell))
		ae.Uint32(wmi.AttrForceScanInterval, millis(cmd.ForceScanInterval))
		ae.Uint8(wmi.AttrNumProbes, cmd.NumProbes)
		ae.Uint32(wmi.AttrBackgroundPeriod, millis(cmd.BackgroundPeriod))
		ae.Uint32(wmi.AttrActiveDwell, millis(cmd.ActiveDwell))

		if len(cmd.Channels) > 0 {
			// Channels are a netlink "array" of frequencies.
			ae.Nested(wmi.AttrChannels, func(nae *netlink.AttributeEncoder) error {
				for i, ch := range cmd.Channels {
					nae.Uint16(uint16(i+1), ch)
				}
				return nil
			})
		}
	})
}

// SetProbedSSID implements Firmware.
func (f *FirmwareConn) SetProbedSSID(ctx context.Context, vif, index uint8, flag ProbedSSIDFlag, ssid []byte) error {
	return f.execute(ctx, wmi.CmdSetProbedSSID, vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrProbedSSIDIndex, index)
		ae.Uint8(wmi.AttrProbedSSIDFlag, uint8(flag))
		if len(ssid) > 0 {
			ae.Bytes(wmi.AttrSSID, ssid)
		}
	})
}

// SetBSSFilter implements Firmware.
func (f *FirmwareConn) SetBSSFilter(ctx context.Context, vif uint8, filter BSSFilter, ieMask uint32) error {
	return f.execute(ctx, wmi.CmdSetBSSFilter, vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrBSSFilter, uint8(filter))
		ae.Uint32(wmi.AttrIEMask, ieMask)
	})
}

// SetAppIE implements Firmware.
func (f *FirmwareConn) SetAppIE(ctx context.Context, vif uint8, frame MgmtFrameType, ie []byte) error {
	return f.execute(ctx, wmi.CmdSetAppIE, vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrMgmtFrameType, uint8(frame))
		if len(ie) > 0 {
			ae.Bytes(wmi.AttrIE, ie)
		}
	})
}

// GetStats implements Firmware.
func (f *FirmwareConn) GetStats(ctx context.Context, vif uint8) error {
	return f.execute(ctx, wmi.CmdGetStats, vif, nil)
}

// GetTxPower implements Firmware.
func (f *FirmwareConn) GetTxPower(ctx context.Context, vif uint8) error {
	return f.execute(ctx, wmi.CmdGetTxPower, vif, nil)
}

// SetTxPower implements Firmware.
func (f *FirmwareConn) SetTxPower(ctx context.Context, vif uint8, dbm uint8) error {
	return f.execute(ctx, wmi.CmdSetTxPower, vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrTxPower, dbm)
	})
}

// SetPowerMode implements Firmware.
func (f *FirmwareConn) SetPowerMode(ctx context.Context, vif uint8, mode PowerMode) error {
	return f.execute(ctx, wmi.CmdSetPowerMode, vif, func(ae *netlink.AttributeEncoder) {
		ae.Uint8(wmi.AttrPowerMode, uint8(mode))
	})
}

// CommitAPProfile implements Firmware.
func (f *FirmwareConn) CommitAPProfile(ctx context.Context, p APProfile) error {
	return f.execute(ctx, wmi.CmdAPCommit, p.Vif, func(ae *netlink.AttributeEncoder) {
		ae.Bytes(wmi.AttrSSID, p.SSID)
		ae.Flag(wmi.AttrHiddenSSID, p.HiddenSSID)
		ae.Uint16(wmi.AttrChannel, p.Channel)
		ae.Uint8(wmi.AttrNetworkType, uint8(p.NetworkType))
		ae.Uint8(wmi.AttrSubtype, uint8(p.Subtype))
		ae.Uint8(wmi.AttrDot11AuthMode, uint8(p.Dot11AuthMode))
		ae.Uint8(wmi.AttrAuthMode, uint8(p.AuthMode))
		ae.Uint8(wmi.AttrPairwiseCrypto, uint8(p.PairwiseCrypto))
		ae.Uint8(wmi.AttrPairwiseCryptoLen, p.PairwiseCryptoLen)
		ae.Uint8(wmi.AttrGroupCrypto, uint8(p.GroupCrypto))
		ae.Uint8(wmi.AttrGroupCryptoLen, p.GroupCryptoLen)
		ae.Uint16(wmi.AttrBeaconInterval, p.BeaconInterval)
		ae.Uint8(wmi.AttrDTIMPeriod, p.DTIMPeriod)
	})
}

// execute sends command cmd for vif and waits for the firmware's
// acknowledgement, bounded by ctx.
func (f *FirmwareConn) execute(
	ctx context.Context,
	cmd uint8,
	vif uint8,
	// May be nil; used to apply optional parameters.
	params func(ae *netlink.AttributeEncoder),
) error {
	if err := ctx.Err(); err != nil {
		return ctxErr(err)
	}

	ae := netlink.NewAttributeEncoder()
	ae.Uint8(wmi.AttrVif, vif)
	if params != nil {
		params(ae)
	}

	b, err := ae.Encode()
	if err != nil {
		return mark(err, ErrInvalidParams)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Deadlines are not supported by every transport; the context still
	// bounds the command when they are.
	if deadline, ok := ctx.Deadline(); ok {
		_ = f.c.SetDeadline(deadline)
		defer func() { _ = f.c.SetDeadline(time.Time{}) }()
	}
	stop := context.AfterFunc(ctx, func() {
		_ = f.c.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	_, err = f.c.Execute(
		genetlink.Message{
			Header: genetlink.Header{
				Command: cmd,
				Version: f.familyVersion,
			},
			Data: b,
		},
		f.familyID,
		netlink.Request|netlink.Acknowledge,
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctxErr(ctx.Err())
		}
		return errnoErr(err)
	}

	return nil
}

// errnoErr maps the error numbers firmware reports onto the error taxonomy.
func errnoErr(err error) error {
	switch {
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ERANGE):
		return mark(err, ErrInvalidParams)
	case errors.Is(err, unix.EBUSY), errors.Is(err, unix.EALREADY):
		return mark(err, ErrBusy)
	case errors.Is(err, unix.EOPNOTSUPP):
		return mark(err, ErrNotSupported)
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENOLINK):
		return mark(err, ErrNoSuchEntry)
	case errors.Is(err, unix.ETIMEDOUT), errors.Is(err, os.ErrDeadlineExceeded):
		return mark(err, ErrTimeout)
	case errors.Is(err, unix.EINTR):
		return mark(err, ErrInterrupted)
	default:
		return mark(err, ErrIO)
	}
}

func millis(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}

// Listen receives firmware events on a separate connection and passes them
// to h until ctx is canceled.
func (f *FirmwareConn) Listen(ctx context.Context, h EventHandler) error {
	if f.groupID == 0 {
		return mark(errEventsGroupNotFound, ErrNotSupported)
	}

	// Use a secondary connection for multicast receives.
	conn, err := genetlink.Dial(&netlink.Config{Strict: true})
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.JoinGroup(f.groupID); err != nil {
		return err
	}

	// Leave group on exit. Err is non-actionable.
	defer func() { _ = conn.LeaveGroup(f.groupID) }()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	return listenEvents(ctx, conn, f.familyVersion, h)
}

// listenEvents decodes firmware events from conn and passes them to h until
// ctx is canceled or conn fails. Messages for another family version and
// unknown events are skipped.
//
// The caller should not receive on the given connection and is responsible
// for closing it.
func listenEvents(ctx context.Context, conn *genetlink.Conn, familyVersion uint8, h EventHandler) error {
	for ctx.Err() == nil {
		msgs, _, err := conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		for _, msg := range msgs {
			if msg.Header.Version != familyVersion {
				continue
			}

			ev, err := parseEvent(msg)
			if err != nil {
				return errors.Wrapf(err, "event %#x", msg.Header.Command)
			}
			if ev == nil {
				continue
			}

			h.HandleEvent(ev)
		}
	}

	return nil
}

// parseEvent decodes one event message. Unknown commands yield a nil Event.
func parseEvent(msg genetlink.Message) (Event, error) {
	ad, err := netlink.NewAttributeDecoder(msg.Data)
	if err != nil {
		return nil, err
	}

	var ev Event
	switch msg.Header.Command {
	case wmi.EventReady:
		e := &ReadyEvent{}
		for ad.Next() {
			switch ad.Type() {
			case wmi.AttrMAC:
				e.HardwareAddr = ad.Bytes()
			case wmi.AttrFirmwareVersion:
				e.FirmwareVersion = ad.Uint32()
			case wmi.AttrCapabilities:
				e.Capabilities = ad.Uint32()
			}
		}
		ev = e
	case wmi.EventConnect:
		e := &ConnectEvent{}
		for ad.Next() {
			switch ad.Type() {
			case wmi.AttrVif:
				e.Vif = ad.Uint8()
			case wmi.AttrChannel:
				e.Channel = ad.Uint16()
			case wmi.AttrBSSID:
				e.BSSID = ad.Bytes()
			case wmi.AttrListenInterval:
				e.ListenInterval = ad.Uint16()
			case wmi.AttrBeaconInterval:
				e.BeaconInterval = ad.Uint16()
			case wmi.AttrNetworkType:
				e.NetworkType = NetworkType(ad.Uint8())
			case wmi.AttrAID:
				e.AID = ad.Uint8()
			case wmi.AttrBeaconIELen:
				e.BeaconIELen = int(ad.Uint8())
			case wmi.AttrAssocReqLen:
				e.AssocReqLen = int(ad.Uint8())
			case wmi.AttrAssocRespLen:
				e.AssocRespLen = int(ad.Uint8())
			case wmi.AttrAssocInfo:
				e.AssocInfo = ad.Bytes()
			}
		}
		ev = e
	case wmi.EventDisconnect:
		e := &DisconnectEvent{}
		for ad.Next() {
			switch ad.Type() {
			case wmi.AttrVif:
				e.Vif = ad.Uint8()
			case wmi.AttrReason:
				e.Reason = DisconnectReason(ad.Uint8())
			case wmi.AttrBSSID:
				e.BSSID = ad.Bytes()
			case wmi.AttrProtocolReason:
				e.ProtocolReason = ad.Uint16()
			case wmi.AttrAssocInfo:
				e.AssocInfo = ad.Bytes()
			}
		}
		ev = e
	case wmi.EventScanComplete:
		e := &ScanCompleteEvent{}
		for ad.Next() {
			switch ad.Type() {
			case wmi.AttrVif:
				e.Vif = ad.Uint8()
			case wmi.AttrStatus:
				e.Status = ad.Int32()
			}
		}
		ev = e
	case wmi.EventMICFailure:
		e := &MICFailureEvent{}
		for ad.Next() {
			switch ad.Type() {
			case wmi.AttrVif:
				e.Vif = ad.Uint8()
			case wmi.AttrKeyIndex:
				e.KeyID = ad.Uint8()
			case wmi.AttrMulticast:
				e.Multicast = ad.Flag()
			}
		}
		ev = e
	case wmi.EventStats:
		e := &StatsEvent{}
		for ad.Next() {
			switch ad.Type() {
			case wmi.AttrVif:
				e.Vif = ad.Uint8()
			case wmi.AttrStats:
				ad.Nested(func(nad *netlink.AttributeDecoder) error {
					e.Report = parseStatsReport(nad)
					return nil
				})
			}
		}
		ev = e
	case wmi.EventTxPower:
		e := &TxPowerEvent{}
		for ad.Next() {
			switch ad.Type() {
			case wmi.AttrVif:
				e.Vif = ad.Uint8()
			case wmi.AttrTxPower:
				e.DBm = ad.Uint8()
			}
		}
		ev = e
	case wmi.EventNeighborReport:
		e := &NeighborReportEvent{}
		for ad.Next() {
			switch ad.Type() {
			case wmi.AttrVif:
				e.Vif = ad.Uint8()
			case wmi.AttrNeighbor:
				ad.Nested(func(nad *netlink.AttributeDecoder) error {
					var nb Neighbor
					for nad.Next() {
						switch nad.Type() {
						case wmi.NeighborBSSID:
							nb.BSSID = nad.Bytes()
						case wmi.NeighborPreauth:
							nb.Preauth = nad.Flag()
						}
					}
					e.Neighbors = append(e.Neighbors, nb)
					return nil
				})
			}
		}
		ev = e
	default:
		return nil, nil
	}

	if err := ad.Err(); err != nil {
		return nil, err
	}

	return ev, nil
}

// parseStatsReport decodes the nested attributes of a statistics reply.
func parseStatsReport(ad *netlink.AttributeDecoder) StatsReport {
	var r StatsReport
	for ad.Next() {
		switch ad.Type() {
		case wmi.StatsCSRSSI:
			r.CSRSSI = ad.Int16()
			continue
		case wmi.StatsCSSNR:
			r.CSSNR = ad.Uint8()
			continue
		}

		if p := statsCounter(&r, ad.Type()); p != nil {
			*p = ad.Uint32()
		}
	}

	return r
}

// statsCounter returns the field of r carrying 32-bit counter typ, or nil.
func statsCounter(r *StatsReport, typ uint16) *uint32 {
	switch typ {
	case wmi.StatsTxPackets:
		return &r.TxPackets
	case wmi.StatsTxBytes:
		return &r.TxBytes
	case wmi.StatsTxUnicastPackets:
		return &r.TxUnicastPackets
	case wmi.StatsTxUnicastBytes:
		return &r.TxUnicastBytes
	case wmi.StatsTxMulticastPackets:
		return &r.TxMulticastPackets
	case wmi.StatsTxBroadcastPackets:
		return &r.TxBroadcastPackets
	case wmi.StatsTxErrors:
		return &r.TxErrors
	case wmi.StatsTxRetries:
		return &r.TxRetries
	case wmi.StatsTxFailures:
		return &r.TxFailures
	case wmi.StatsTxRTSSuccess:
		return &r.TxRTSSuccess
	case wmi.StatsTxRTSFailures:
		return &r.TxRTSFailures
	case wmi.StatsTxUnicastRate:
		return &r.TxUnicastRate
	case wmi.StatsRxPackets:
		return &r.RxPackets
	case wmi.StatsRxBytes:
		return &r.RxBytes
	case wmi.StatsRxUnicastPackets:
		return &r.RxUnicastPackets
	case wmi.StatsRxUnicastBytes:
		return &r.RxUnicastBytes
	case wmi.StatsRxMulticastPackets:
		return &r.RxMulticastPackets
	case wmi.StatsRxBroadcastPackets:
		return &r.RxBroadcastPackets
	case wmi.StatsRxErrors:
		return &r.RxErrors
	case wmi.StatsRxCRCErrors:
		return &r.RxCRCErrors
	case wmi.StatsRxDuplicates:
		return &r.RxDuplicates
	case wmi.StatsRxUnicastRate:
		return &r.RxUnicastRate
	case wmi.StatsTKIPLocalMICFailures:
		return &r.TKIPLocalMICFailures
	case wmi.StatsTKIPCounterMeasures:
		return &r.TKIPCounterMeasures
	case wmi.StatsTKIPReplays:
		return &r.TKIPReplays
	case wmi.StatsTKIPFormatErrors:
		return &r.TKIPFormatErrors
	case wmi.StatsCCMPFormatErrors:
		return &r.CCMPFormatErrors
	case wmi.StatsCCMPReplays:
		return &r.CCMPReplays
	case wmi.StatsCSBeaconMisses:
		return &r.CSBeaconMisses
	case wmi.StatsCSConnects:
		return &r.CSConnects
	case wmi.StatsCSDisconnects:
		return &r.CSDisconnects
	case wmi.StatsWoWPackets:
		return &r.WoWPackets
	case wmi.StatsWoWEvents:
		return &r.WoWEvents
	default:
		return nil
	}
}
