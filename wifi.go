package wlanmgr

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// errInvalidIE is returned when one or more IEs are malformed.
var errInvalidIE = errors.New("invalid 802.11 information element")

// An InterfaceType is the operating mode of an Interface.
type InterfaceType int

// NOTE: InterfaceType copies the ordering of nl80211's interface type
// constants.
const (
	// InterfaceTypeUnspecified indicates that an interface's type is unspecified
	// and the driver determines its function.
	InterfaceTypeUnspecified InterfaceType = iota

	// InterfaceTypeAdHoc indicates that an interface is part of an independent
	// basic service set (BSS) of client devices without a controlling access
	// point.
	InterfaceTypeAdHoc

	// InterfaceTypeStation indicates that an interface is part of a managed
	// basic service set (BSS) of client devices with a controlling access point.
	InterfaceTypeStation

	// InterfaceTypeAP indicates that an interface is an access point.
	InterfaceTypeAP

	// InterfaceTypeAPVLAN indicates that an interface is a VLAN interface
	// associated with an access point.
	InterfaceTypeAPVLAN

	// InterfaceTypeWDS indicates that an interface is a wireless distribution
	// interface.
	InterfaceTypeWDS

	// InterfaceTypeMonitor indicates that an interface is a monitor interface.
	InterfaceTypeMonitor

	// InterfaceTypeMeshPoint indicates that an interface is part of a wireless
	// mesh network.
	InterfaceTypeMeshPoint

	// InterfaceTypeP2PClient indicates that an interface is a client within
	// a peer-to-peer network.
	InterfaceTypeP2PClient

	// InterfaceTypeP2PGroupOwner indicates that an interface is the group
	// owner within a peer-to-peer network.
	InterfaceTypeP2PGroupOwner
)

// String returns the string representation of an InterfaceType.
func (t InterfaceType) String() string {
	switch t {
	case InterfaceTypeUnspecified:
		return "unspecified"
	case InterfaceTypeAdHoc:
		return "ad-hoc"
	case InterfaceTypeStation:
		return "station"
	case InterfaceTypeAP:
		return "access point"
	case InterfaceTypeAPVLAN:
		return "access point/VLAN"
	case InterfaceTypeWDS:
		return "wireless distribution"
	case InterfaceTypeMonitor:
		return "monitor"
	case InterfaceTypeMeshPoint:
		return "mesh point"
	case InterfaceTypeP2PClient:
		return "P2P client"
	case InterfaceTypeP2PGroupOwner:
		return "P2P group owner"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// networkType returns the network mode an interface of type t joins.
func (t InterfaceType) networkType() NetworkType {
	switch t {
	case InterfaceTypeAdHoc:
		return NetworkAdHoc
	case InterfaceTypeAP, InterfaceTypeP2PGroupOwner:
		return NetworkAP
	default:
		return NetworkInfra
	}
}

// An Interface is a WiFi network interface backed by a firmware virtual
// interface.
type Interface struct {
	// The OS index of the interface.
	Index int

	// The name of the interface.
	Name string

	// The hardware address of the interface.
	HardwareAddr net.HardwareAddr

	// The firmware's index for this virtual interface.
	FirmwareIndex uint8

	// The operating mode of the interface.
	Type InterfaceType
}

// A NetworkType is the firmware's notion of the kind of network an
// interface participates in.
type NetworkType uint8

// Possible NetworkType values.
const (
	NetworkInfra        NetworkType = 0x01
	NetworkAdHoc        NetworkType = 0x02
	NetworkAdHocCreator NetworkType = 0x04
	NetworkAP           NetworkType = 0x10
)

// String returns the string representation of a NetworkType.
func (t NetworkType) String() string {
	switch t {
	case NetworkInfra:
		return "infrastructure"
	case NetworkAdHoc:
		return "ad-hoc"
	case NetworkAdHocCreator:
		return "ad-hoc creator"
	case NetworkAP:
		return "access point"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(t))
	}
}

// A Dot11AuthMode is a bitmask of 802.11 authentication algorithms.
type Dot11AuthMode uint8

// Possible Dot11AuthMode values.
const (
	Dot11AuthOpen   Dot11AuthMode = 0x01
	Dot11AuthShared Dot11AuthMode = 0x02
	Dot11AuthLEAP   Dot11AuthMode = 0x04
)

// String returns the string representation of a Dot11AuthMode.
func (m Dot11AuthMode) String() string {
	return flagString(uint32(m), []string{"open", "shared", "leap"})
}

// An AuthMode is the firmware's key management mode.
type AuthMode uint8

// Possible AuthMode values.
const (
	AuthNone     AuthMode = 0x01
	AuthWPA      AuthMode = 0x02
	AuthWPA2     AuthMode = 0x04
	AuthWPAPSK   AuthMode = 0x08
	AuthWPA2PSK  AuthMode = 0x10
	AuthWPACCKM  AuthMode = 0x20
	AuthWPA2CCKM AuthMode = 0x40
)

// String returns the string representation of an AuthMode.
func (m AuthMode) String() string {
	return flagString(uint32(m), []string{
		"none", "wpa", "wpa2", "wpa-psk", "wpa2-psk", "wpa-cckm", "wpa2-cckm",
	})
}

// psk reports whether m includes a pre-shared key mode.
func (m AuthMode) psk() bool {
	return m&(AuthWPAPSK|AuthWPA2PSK) != 0
}

// A CryptoType is the firmware's cipher identifier.
type CryptoType uint8

// Possible CryptoType values.
const (
	CryptoNone CryptoType = 0x01
	CryptoWEP  CryptoType = 0x02
	CryptoTKIP CryptoType = 0x04
	CryptoAES  CryptoType = 0x08
	CryptoWAPI CryptoType = 0x10
)

// String returns the string representation of a CryptoType.
func (c CryptoType) String() string {
	switch c {
	case CryptoNone:
		return "none"
	case CryptoWEP:
		return "wep"
	case CryptoTKIP:
		return "tkip"
	case CryptoAES:
		return "ccmp"
	case CryptoWAPI:
		return "wapi"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(c))
	}
}

// A CipherSuite is an IEEE 802.11 cipher suite selector (OUI and type).
type CipherSuite uint32

// Cipher suite selectors understood by the key and connection managers.
const (
	CipherSuiteWEP40  CipherSuite = 0x000fac01
	CipherSuiteTKIP   CipherSuite = 0x000fac02
	CipherSuiteCCMP   CipherSuite = 0x000fac04
	CipherSuiteWEP104 CipherSuite = 0x000fac05
	CipherSuiteSMS4   CipherSuite = 0x00147201

	// CipherSuiteCCKMKRK selects the CCKM key refresh key, which is not
	// stored in the key table.
	CipherSuiteCCKMKRK CipherSuite = 0x004096ff
)

// crypto maps a cipher suite selector to the firmware's cipher and, for
// WEP, the fixed key length. Zero selects no cipher.
func (c CipherSuite) crypto() (CryptoType, uint8, error) {
	switch c {
	case 0:
		return CryptoNone, 0, nil
	case CipherSuiteWEP40:
		return CryptoWEP, 5, nil
	case CipherSuiteWEP104:
		return CryptoWEP, 13, nil
	case CipherSuiteTKIP:
		return CryptoTKIP, 0, nil
	case CipherSuiteCCMP:
		return CryptoAES, 0, nil
	case CipherSuiteSMS4:
		return CryptoWAPI, 0, nil
	default:
		return 0, 0, errors.Errorf("cipher suite %#08x", uint32(c))
	}
}

// An AKMSuite is an IEEE 802.11 authentication and key management suite
// selector.
type AKMSuite uint32

// AKM suite selectors.
const (
	AKMSuite8021X AKMSuite = 0x000fac01
	AKMSuitePSK   AKMSuite = 0x000fac02
	AKMSuiteCCKM  AKMSuite = 0x00409600
)

// A WPAVersion is a bitmask of WPA protocol versions.
type WPAVersion uint32

// Possible WPAVersion values.
const (
	WPAVersion1 WPAVersion = 1 << 0
	WPAVersion2 WPAVersion = 1 << 1
)

// An AuthType is an 802.11 authentication algorithm requested by the
// configuration layer.
type AuthType int

// Possible AuthType values, numbered as nl80211 numbers them.
const (
	AuthTypeOpenSystem AuthType = 0
	AuthTypeSharedKey  AuthType = 1
	AuthTypeFT         AuthType = 2
	AuthTypeNetworkEAP AuthType = 3
	AuthTypeSAE        AuthType = 4
	AuthTypeAutomatic  AuthType = 8
)

// dot11 maps an AuthType to the firmware's 802.11 auth bitmask.
func (t AuthType) dot11() (Dot11AuthMode, error) {
	switch t {
	case AuthTypeOpenSystem:
		return Dot11AuthOpen, nil
	case AuthTypeSharedKey:
		return Dot11AuthShared, nil
	case AuthTypeNetworkEAP:
		return Dot11AuthLEAP, nil
	case AuthTypeAutomatic:
		return Dot11AuthOpen | Dot11AuthShared, nil
	default:
		return 0, errors.Errorf("auth type %d", t)
	}
}

// An SMEState is the local connection state of an interface.
type SMEState int

// Possible SMEState values.
const (
	SMEDisconnected SMEState = iota
	SMEConnecting
	SMEConnected
)

// String returns the string representation of an SMEState.
func (s SMEState) String() string {
	switch s {
	case SMEDisconnected:
		return "disconnected"
	case SMEConnecting:
		return "connecting"
	case SMEConnected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// A KeyType identifies the key a Michael MIC failure was reported for.
type KeyType int

// Possible KeyType values.
const (
	KeyTypeGroup KeyType = iota
	KeyTypePairwise
)

// String returns the string representation of a KeyType.
func (t KeyType) String() string {
	switch t {
	case KeyTypeGroup:
		return "group"
	case KeyTypePairwise:
		return "pairwise"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// A DisconnectReason is the firmware's reason for a disconnect event.
type DisconnectReason uint8

// Possible DisconnectReason values.
const (
	ReasonNoNetworkAvail    DisconnectReason = 0x01
	ReasonLostLink          DisconnectReason = 0x02
	ReasonDisconnectCmd     DisconnectReason = 0x03
	ReasonBSSDisconnected   DisconnectReason = 0x04
	ReasonAuthFailed        DisconnectReason = 0x05
	ReasonAssocFailed       DisconnectReason = 0x06
	ReasonNoResourcesAvail  DisconnectReason = 0x07
	ReasonCSERVDisconnect   DisconnectReason = 0x08
	ReasonInvalidProfile    DisconnectReason = 0x0a
	ReasonChannelSwitch     DisconnectReason = 0x0b
	ReasonProfileMismatch   DisconnectReason = 0x0c
	ReasonConnectionEvicted DisconnectReason = 0x0d
	ReasonIBSSMerge         DisconnectReason = 0x0e
)

// String returns the string representation of a DisconnectReason.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonNoNetworkAvail:
		return "no network available"
	case ReasonLostLink:
		return "lost link"
	case ReasonDisconnectCmd:
		return "host requested"
	case ReasonBSSDisconnected:
		return "BSS disconnected"
	case ReasonAuthFailed:
		return "authentication failed"
	case ReasonAssocFailed:
		return "association failed"
	case ReasonNoResourcesAvail:
		return "no resources available"
	case ReasonCSERVDisconnect:
		return "connection service disconnect"
	case ReasonInvalidProfile:
		return "invalid profile"
	case ReasonChannelSwitch:
		return "channel switch"
	case ReasonProfileMismatch:
		return "profile mismatch"
	case ReasonConnectionEvicted:
		return "connection evicted"
	case ReasonIBSSMerge:
		return "IBSS merge"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// IEEE 802.11 status codes reported in connect results.
const (
	StatusSuccess            uint16 = 0
	StatusUnspecifiedFailure uint16 = 1
)

// A TxPowerSetting selects how transmit power is configured.
type TxPowerSetting int

// Possible TxPowerSetting values, numbered as nl80211 numbers them.
const (
	TxPowerAutomatic TxPowerSetting = iota
	TxPowerLimited
	TxPowerFixed
)

// StationInfo contains statistics about the BSS a station mode interface is
// associated with, as reported by firmware.
type StationInfo struct {
	// The hardware address of the peer.
	HardwareAddr net.HardwareAddr

	// The number of bytes received by this station.
	ReceivedBytes int

	// The number of bytes transmitted by this station.
	TransmittedBytes int

	// The number of packets received by this station.
	ReceivedPackets int

	// The number of packets transmitted by this station.
	TransmittedPackets int

	// The current data transmit bitrate, in bits/second.
	TransmitBitrate int

	// The signal strength of the current BSS, in dBm.
	Signal int

	// The beacon interval of the BSS, if known.
	BeaconInterval time.Duration

	// The DTIM period of the BSS, or zero if it is not known.
	DTIMPeriod int
}

// FrequencyToChannel returns the channel number given the frequency in MHz, as
// defined by IEEE802.11-2007, 17.3.8.3.2 and Annex J.
func FrequencyToChannel(freq int) int {
	if freq == 2484 {
		return 14
	} else if freq < 2484 {
		return (freq - 2407) / 5
	} else if freq >= 4910 && freq <= 4980 {
		return (freq - 4000) / 5
	} else if freq <= 45000 {
		return (freq - 5000) / 5
	} else if freq >= 58320 && freq <= 64800 {
		return (freq - 56160) / 2160
	} else {
		return 0
	}
}

// Constants representing the standard WiFi frequency bands.
const (
	Band2GHz = iota
	Band5GHz
	Band60GHz
)

// ChannelToFrequency returns the frequency given the channel number and the
// band, as there are overlapping channel numbers between bands.
func ChannelToFrequency(channel int, band int) int {
	if channel <= 0 {
		return 0
	}

	switch band {
	case Band2GHz:
		if channel == 14 {
			return 2484
		} else if channel < 14 {
			return 2407 + channel*5
		}
	case Band5GHz:
		if channel >= 182 && channel <= 196 {
			return 4000 + channel*5
		}
		return 5000 + channel*5
	case Band60GHz:
		if channel < 5 {
			return 56160 + channel*2160
		}
	}
	return 0
}

// List of 802.11 Information Element types.
const (
	ieSSID   = 0
	ieTIM    = 5
	ieRSN    = 48
	ieVendor = 221
)

// Microsoft OUI and vendor type prefixes of the WPA and WPS vendor IEs.
var (
	wpaOUI = []byte{0x00, 0x50, 0xf2, 0x01}
	wpsOUI = []byte{0x00, 0x50, 0xf2, 0x04}
)

// An ie is an 802.11 information element.
type ie struct {
	ID uint8
	// Length field implied by length of data
	Data []byte
}

// parseIEs parses zero or more ies from a byte slice.
// Reference:
//
//	https://www.safaribooksonline.com/library/view/80211-wireless-networks/0596100523/ch04.html#wireless802dot112-CHP-4-FIG-31
func parseIEs(b []byte) ([]ie, error) {
	var ies []ie
	var i int
	for {
		if len(b[i:]) == 0 {
			break
		}
		if len(b[i:]) < 2 {
			return nil, errInvalidIE
		}

		id := b[i]
		i++
		l := int(b[i])
		i++

		if len(b[i:]) < l {
			return nil, errInvalidIE
		}

		ies = append(ies, ie{
			ID:   id,
			Data: b[i : i+l],
		})

		i += l
	}

	return ies, nil
}

// isVendorIE reports whether ie is a vendor IE starting with prefix.
func isVendorIE(ie ie, prefix []byte) bool {
	return ie.ID == ieVendor && bytes.HasPrefix(ie.Data, prefix)
}

func isWPAIE(ie ie) bool { return isVendorIE(ie, wpaOUI) }

// hasWPSIE reports whether b carries a WPS vendor IE.
func hasWPSIE(b []byte) bool {
	ies, err := parseIEs(b)
	if err != nil {
		return false
	}

	for _, ie := range ies {
		if isVendorIE(ie, wpsOUI) {
			return true
		}
	}

	return false
}

// dtimPeriod returns the DTIM period carried by a TIM IE in b, if any.
func dtimPeriod(b []byte) (int, bool) {
	ies, err := parseIEs(b)
	if err != nil {
		return 0, false
	}

	for _, ie := range ies {
		// DTIM count, then DTIM period.
		if ie.ID == ieTIM && len(ie.Data) >= 2 && ie.Data[1] != 0 {
			return int(ie.Data[1]), true
		}
	}

	return 0, false
}

// flagString renders the set bits of v using names, lowest bit first.
func flagString(v uint32, names []string) string {
	if v == 0 {
		return "0"
	}

	var ss []string
	for i, n := range names {
		if v&(1<<uint(i)) != 0 {
			ss = append(ss, n)
			v &^= 1 << uint(i)
		}
	}
	if v != 0 {
		ss = append(ss, fmt.Sprintf("%#x", v))
	}

	return strings.Join(ss, "|")
}
