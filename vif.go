package wlanmgr

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Key table bounds.
const (
	// MaxKeyIndex is the highest valid key slot.
	MaxKeyIndex = 3

	maxKeyLen = 32
	maxSeqLen = 8
	krkLen    = 16
)

// A key is one slot of the key table. A slot is empty when len(key) is zero.
type key struct {
	cipher CipherSuite
	crypto CryptoType
	key    []byte
	seq    []byte
}

func (k *key) empty() bool { return len(k.key) == 0 }

// An apPhase is the bring-up state of an access point interface.
type apPhase int

const (
	// apNotStarted: the interface is not in AP mode.
	apNotStarted apPhase = iota

	// apPendingKeys: AP mode is selected but firmware has not yet reported
	// the BSS as started. Group and WEP keys are staged.
	apPendingKeys

	// apActive: the BSS is beaconing and keys go straight to firmware.
	apActive
)

// A stagedKey is a group key held back until the BSS starts.
type stagedKey struct {
	index  uint8
	crypto CryptoType
	key    []byte
}

// An apStation is a station associated with a started access point.
type apStation struct {
	mac net.HardwareAddr
	aid uint8
}

// maxStations is the firmware's limit on associated stations.
const maxStations = 10

// A vif is the state of one virtual interface. All fields are guarded by
// the Device lock.
type vif struct {
	ifi Interface
	log logrus.FieldLogger

	// Flags.
	enabled        bool
	connected      bool
	connectPending bool
	dtimKnown      bool
	reconnecting   bool

	sme SMEState

	// Connection profile.
	ssid      []byte
	reqBSSID  net.HardwareAddr
	chHint    uint16
	nwType    NetworkType
	nextMode  NetworkType
	dot11Auth Dot11AuthMode
	auth      AuthMode
	prwCrypto CryptoType
	prwLen    uint8
	grpCrypto CryptoType
	grpLen    uint8

	// Current association.
	bssid          net.HardwareAddr
	bssChannel     uint16
	listenInterval uint16
	beaconInterval uint16
	dtimPeriod     int

	keys     [MaxKeyIndex + 1]key
	defTxKey uint8

	scan       *ScanRequest
	scanProbes int

	ap        apPhase
	stagedGrp *stagedKey
	stagedWEP [MaxKeyIndex + 1][]byte
	stations  []apStation

	timer    stopper
	timerGen uint64

	stats     TargetStats
	statsWait chan struct{}
}

func newVif(ifi Interface, l logrus.FieldLogger) *vif {
	v := &vif{
		ifi: ifi,
		log: l.WithFields(logrus.Fields{
			"vif":    ifi.FirmwareIndex,
			"ifname": ifi.Name,
		}),
	}
	v.initProfile()

	return v
}

// initProfile resets the connection profile to an open network with no
// target.
func (v *vif) initProfile() {
	v.ssid = nil
	v.reqBSSID = nil
	v.bssid = nil
	v.bssChannel = 0
	v.dot11Auth = Dot11AuthOpen
	v.auth = AuthNone
	v.prwCrypto = CryptoNone
	v.prwLen = 0
	v.grpCrypto = CryptoNone
	v.grpLen = 0
	v.stagedWEP = [MaxKeyIndex + 1][]byte{}
}

// apPending reports whether keys must be staged until the BSS starts.
func (v *vif) apPending() bool {
	return v.ap == apPendingKeys && !v.connected
}

// fixDefTxKey keeps the default transmit key on an installed slot.
func (v *vif) fixDefTxKey() {
	if !v.keys[v.defTxKey].empty() {
		return
	}

	for i := range v.keys {
		if !v.keys[i].empty() {
			v.defTxKey = uint8(i)
			return
		}
	}
}

func (v *vif) findStation(mac net.HardwareAddr) int {
	for i, s := range v.stations {
		if macEqual(s.mac, mac) {
			return i
		}
	}

	return -1
}

func (v *vif) stationByAID(aid uint8) (apStation, bool) {
	for _, s := range v.stations {
		if s.aid == aid {
			return s, true
		}
	}

	return apStation{}, false
}

// macEqual reports whether a and b are the same address. A nil address
// equals the all-zero address.
func macEqual(a, b net.HardwareAddr) bool {
	if isZeroMAC(a) && isZeroMAC(b) {
		return true
	}

	return string(a) == string(b)
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}

	return true
}

func isBroadcastMAC(mac net.HardwareAddr) bool {
	if len(mac) != 6 {
		return false
	}
	for _, b := range mac {
		if b != 0xff {
			return false
		}
	}

	return true
}
