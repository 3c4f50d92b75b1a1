package wlanmgr

import (
	"context"
	"net"
	"time"
)

// Firmware is the command channel to the radio firmware. Every method blocks
// until the firmware accepts or rejects the command, bounded by ctx.
//
// Implementations should report a rejected parameter set with an error
// matching ErrInvalidParams, a deadline with ErrTimeout and a cancelled ctx
// with ErrInterrupted. Any other failure is treated as ErrIO.
type Firmware interface {
	Connect(ctx context.Context, cmd ConnectCommand) error
	Reconnect(ctx context.Context, vif uint8, bssid net.HardwareAddr, channel uint16) error
	Disconnect(ctx context.Context, vif uint8) error

	AddKey(ctx context.Context, cmd AddKeyCommand) error
	DeleteKey(ctx context.Context, vif, index uint8) error
	AddKRK(ctx context.Context, vif uint8, krk []byte) error
	SetPMK(ctx context.Context, vif uint8, pmk []byte) error
	SetPMKID(ctx context.Context, vif uint8, bssid net.HardwareAddr, pmkid []byte, enable bool) error

	StartScan(ctx context.Context, cmd ScanCommand) error
	SetProbedSSID(ctx context.Context, vif, index uint8, flag ProbedSSIDFlag, ssid []byte) error
	SetBSSFilter(ctx context.Context, vif uint8, filter BSSFilter, ieMask uint32) error
	SetAppIE(ctx context.Context, vif uint8, frame MgmtFrameType, ie []byte) error

	// GetStats and GetTxPower only request a report; the reply arrives as
	// a StatsEvent or TxPowerEvent.
	GetStats(ctx context.Context, vif uint8) error
	GetTxPower(ctx context.Context, vif uint8) error
	SetTxPower(ctx context.Context, vif uint8, dbm uint8) error
	SetPowerMode(ctx context.Context, vif uint8, mode PowerMode) error

	CommitAPProfile(ctx context.Context, p APProfile) error
}

// A ConnectCommand asks firmware to join a network.
type ConnectCommand struct {
	Vif               uint8
	NetworkType       NetworkType
	Dot11AuthMode     Dot11AuthMode
	AuthMode          AuthMode
	PairwiseCrypto    CryptoType
	PairwiseCryptoLen uint8
	GroupCrypto       CryptoType
	GroupCryptoLen    uint8
	SSID              []byte
	BSSID             net.HardwareAddr
	Channel           uint16
	CtrlFlags         uint32
	Subtype           NetworkSubtype
}

// Connect control flags.
const (
	ConnectAssocPolicyUser    uint32 = 0x0001
	ConnectSendReassoc        uint32 = 0x0002
	ConnectIgnoreWPAGroupCiph uint32 = 0x0004
	ConnectProfileMatchDone   uint32 = 0x0008
	ConnectIgnoreAACBeacon    uint32 = 0x0010
	ConnectCSAFollowBSS       uint32 = 0x0020
	ConnectDoWPAOffload       uint32 = 0x0040
	ConnectDoNotDeauth        uint32 = 0x0080
	ConnectWPSFlag            uint32 = 0x0100
)

// A NetworkSubtype refines NetworkType for P2P roles.
type NetworkSubtype uint8

// Possible NetworkSubtype values.
const (
	SubtypeNone NetworkSubtype = iota
	SubtypeBT
	SubtypeP2PDevice
	SubtypeP2PClient
	SubtypeP2PGO
)

// A KeyUsage is a bitmask describing what a key is used for.
type KeyUsage uint8

// Possible KeyUsage values. A zero usage is a pairwise key.
const (
	KeyUsagePairwise KeyUsage = 0x00
	KeyUsageGroup    KeyUsage = 0x01
	KeyUsageTx       KeyUsage = 0x02
)

// An AddKeyCommand installs a key in a firmware key slot.
type AddKeyCommand struct {
	Vif    uint8
	Index  uint8
	Crypto CryptoType
	Usage  KeyUsage
	Key    []byte
	RSC    []byte
	MAC    net.HardwareAddr
}

// A ScanType selects the firmware scan profile.
type ScanType uint8

// Possible ScanType values.
const (
	ScanTypeLong ScanType = iota
	ScanTypeShort
)

// A ScanCommand starts a firmware scan.
type ScanCommand struct {
	Vif               uint8
	Type              ScanType
	ForceForeground   bool
	IsLegacy          bool
	HomeDwell         time.Duration
	ForceScanInterval time.Duration
	NumProbes         uint8
	BackgroundPeriod  time.Duration
	ActiveDwell       time.Duration

	// Channels lists the center frequencies to scan, in MHz. Empty scans
	// every channel.
	Channels []uint16
}

// A ProbedSSIDFlag controls a probed-SSID table slot.
type ProbedSSIDFlag uint8

// Possible ProbedSSIDFlag values.
const (
	ProbedSSIDDisable  ProbedSSIDFlag = 0x00
	ProbedSSIDSpecific ProbedSSIDFlag = 0x01
	ProbedSSIDAny      ProbedSSIDFlag = 0x02
)

// A BSSFilter selects which BSS the firmware reports.
type BSSFilter uint8

// Possible BSSFilter values.
const (
	BSSFilterNone BSSFilter = iota
	BSSFilterAll
	BSSFilterProfile
	BSSFilterAllButProfile
	BSSFilterCurrent
	BSSFilterAllButBSS
	BSSFilterProbedSSID
)

// A MgmtFrameType selects the management frame an application IE is
// appended to.
type MgmtFrameType uint8

// Possible MgmtFrameType values.
const (
	FrameBeacon MgmtFrameType = iota
	FrameProbeReq
	FrameProbeResp
	FrameAssocReq
	FrameAssocResp
)

// A PowerMode is the firmware power save policy.
type PowerMode uint8

// Possible PowerMode values.
const (
	PowerModeRecommended    PowerMode = 0x01
	PowerModeMaxPerformance PowerMode = 0x02
)

// An APProfile commits an access point configuration and starts the BSS.
type APProfile struct {
	Vif               uint8
	SSID              []byte
	HiddenSSID        bool
	Channel           uint16
	NetworkType       NetworkType
	Subtype           NetworkSubtype
	Dot11AuthMode     Dot11AuthMode
	AuthMode          AuthMode
	PairwiseCrypto    CryptoType
	PairwiseCryptoLen uint8
	GroupCrypto       CryptoType
	GroupCryptoLen    uint8
	BeaconInterval    uint16
	DTIMPeriod        uint8
}
