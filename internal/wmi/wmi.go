// Package wmi contains the generic netlink numbering of the wireless module
// interface (WMI) firmware family.
package wmi

// Generic netlink family and multicast group names.
const (
	FamilyName  = "wmi"
	GroupEvents = "events"
)

// Commands, sent by the host.
const (
	CmdUnspec = iota
	CmdConnect
	CmdReconnect
	CmdDisconnect
	CmdAddKey
	CmdDeleteKey
	CmdAddKRK
	CmdSetPMK
	CmdSetPMKID
	CmdStartScan
	CmdSetProbedSSID
	CmdSetBSSFilter
	CmdSetAppIE
	CmdGetStats
	CmdGetTxPower
	CmdSetTxPower
	CmdSetPowerMode
	CmdAPCommit
)

// Events, multicast by the firmware on GroupEvents.
const (
	EventUnspec = iota + 0x80
	EventReady
	EventConnect
	EventDisconnect
	EventScanComplete
	EventMICFailure
	EventStats
	EventTxPower
	EventNeighborReport
)

// Attributes carried by commands and events.
const (
	AttrUnspec = iota
	AttrVif
	AttrNetworkType
	AttrDot11AuthMode
	AttrAuthMode
	AttrPairwiseCrypto
	AttrPairwiseCryptoLen
	AttrGroupCrypto
	AttrGroupCryptoLen
	AttrSSID
	AttrBSSID
	AttrChannel
	AttrCtrlFlags
	AttrSubtype
	AttrKeyIndex
	AttrKeyType
	AttrKeyUsage
	AttrKey
	AttrKeyRSC
	AttrMAC
	AttrKRK
	AttrPMK
	AttrPMKID
	AttrEnable
	AttrScanType
	AttrForceForeground
	AttrIsLegacy
	AttrHomeDwell
	AttrForceScanInterval
	AttrNumProbes
	AttrBackgroundPeriod
	AttrActiveDwell
	AttrChannels
	AttrProbedSSIDIndex
	AttrProbedSSIDFlag
	AttrBSSFilter
	AttrIEMask
	AttrMgmtFrameType
	AttrIE
	AttrTxPower
	AttrPowerMode
	AttrHiddenSSID
	AttrBeaconInterval
	AttrDTIMPeriod
	AttrListenInterval
	AttrAID
	AttrBeaconIELen
	AttrAssocReqLen
	AttrAssocRespLen
	AttrAssocInfo
	AttrReason
	AttrProtocolReason
	AttrStatus
	AttrMulticast
	AttrStats
	AttrNeighbor
	AttrPreauth
	AttrFirmwareVersion
	AttrCapabilities
)

// Nested attributes of AttrStats.
const (
	StatsUnspec = iota
	StatsTxPackets
	StatsTxBytes
	StatsTxUnicastPackets
	StatsTxUnicastBytes
	StatsTxMulticastPackets
	StatsTxBroadcastPackets
	StatsTxErrors
	StatsTxRetries
	StatsTxFailures
	StatsTxRTSSuccess
	StatsTxRTSFailures
	StatsTxUnicastRate
	StatsRxPackets
	StatsRxBytes
	StatsRxUnicastPackets
	StatsRxUnicastBytes
	StatsRxMulticastPackets
	StatsRxBroadcastPackets
	StatsRxErrors
	StatsRxCRCErrors
	StatsRxDuplicates
	StatsRxUnicastRate
	StatsTKIPLocalMICFailures
	StatsTKIPCounterMeasures
	StatsTKIPReplays
	StatsTKIPFormatErrors
	StatsCCMPFormatErrors
	StatsCCMPReplays
	StatsCSBeaconMisses
	StatsCSConnects
	StatsCSDisconnects
	StatsCSRSSI
	StatsCSSNR
	StatsWoWPackets
	StatsWoWEvents
)

// Nested attributes of each AttrNeighbor entry.
const (
	NeighborUnspec = iota
	NeighborBSSID
	NeighborPreauth
)
