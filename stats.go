package wlanmgr

// A StatsReport is one firmware statistics reply. Counters are deltas since
// the previous report; rates and signal values are current readings.
type StatsReport struct {
	TxPackets          uint32
	TxBytes            uint32
	TxUnicastPackets   uint32
	TxUnicastBytes     uint32
	TxMulticastPackets uint32
	TxBroadcastPackets uint32
	TxErrors           uint32
	TxRetries          uint32
	TxFailures         uint32
	TxRTSSuccess       uint32
	TxRTSFailures      uint32

	// TxUnicastRate is the last unicast transmit rate, in kbit/s.
	TxUnicastRate uint32

	RxPackets          uint32
	RxBytes            uint32
	RxUnicastPackets   uint32
	RxUnicastBytes     uint32
	RxMulticastPackets uint32
	RxBroadcastPackets uint32
	RxErrors           uint32
	RxCRCErrors        uint32
	RxDuplicates       uint32
	RxUnicastRate      uint32

	TKIPLocalMICFailures uint32
	TKIPCounterMeasures  uint32
	TKIPReplays          uint32
	TKIPFormatErrors     uint32
	CCMPFormatErrors     uint32
	CCMPReplays          uint32

	CSBeaconMisses uint32
	CSConnects     uint32
	CSDisconnects  uint32
	CSRSSI         int16
	CSSNR          uint8

	WoWPackets uint32
	WoWEvents  uint32
}

// TargetStats are the statistics accumulated from firmware reports for one
// interface.
type TargetStats struct {
	TxPackets          uint64
	TxBytes            uint64
	TxUnicastPackets   uint64
	TxUnicastBytes     uint64
	TxMulticastPackets uint64
	TxBroadcastPackets uint64
	TxErrors           uint64
	TxRetries          uint64
	TxFailures         uint64
	TxRTSSuccess       uint64
	TxRTSFailures      uint64
	TxUnicastRate      uint32

	RxPackets          uint64
	RxBytes            uint64
	RxUnicastPackets   uint64
	RxUnicastBytes     uint64
	RxMulticastPackets uint64
	RxBroadcastPackets uint64
	RxErrors           uint64
	RxCRCErrors        uint64
	RxDuplicates       uint64
	RxUnicastRate      uint32

	TKIPLocalMICFailures uint64
	TKIPCounterMeasures  uint64
	TKIPReplays          uint64
	TKIPFormatErrors     uint64
	CCMPFormatErrors     uint64
	CCMPReplays          uint64

	CSBeaconMisses uint64
	CSConnects     uint64
	CSDisconnects  uint64
	CSRSSI         int16
	CSSNR          uint8

	WoWPackets uint64
	WoWEvents  uint64

	// Michael MIC failure events, by key type.
	PairwiseMICFailures uint64
	GroupMICFailures    uint64
}

// update folds r into s.
func (s *TargetStats) update(r StatsReport) {
	s.TxPackets += uint64(r.TxPackets)
	s.TxBytes += uint64(r.TxBytes)
	s.TxUnicastPackets += uint64(r.TxUnicastPackets)
	s.TxUnicastBytes += uint64(r.TxUnicastBytes)
	s.TxMulticastPackets += uint64(r.TxMulticastPackets)
	s.TxBroadcastPackets += uint64(r.TxBroadcastPackets)
	s.TxErrors += uint64(r.TxErrors)
	s.TxRetries += uint64(r.TxRetries)
	s.TxFailures += uint64(r.TxFailures)
	s.TxRTSSuccess += uint64(r.TxRTSSuccess)
	s.TxRTSFailures += uint64(r.TxRTSFailures)
	s.TxUnicastRate = r.TxUnicastRate

	s.RxPackets += uint64(r.RxPackets)
	s.RxBytes += uint64(r.RxBytes)
	s.RxUnicastPackets += uint64(r.RxUnicastPackets)
	s.RxUnicastBytes += uint64(r.RxUnicastBytes)
	s.RxMulticastPackets += uint64(r.RxMulticastPackets)
	s.RxBroadcastPackets += uint64(r.RxBroadcastPackets)
	s.RxErrors += uint64(r.RxErrors)
	s.RxCRCErrors += uint64(r.RxCRCErrors)
	s.RxDuplicates += uint64(r.RxDuplicates)
	s.RxUnicastRate = r.RxUnicastRate

	s.TKIPLocalMICFailures += uint64(r.TKIPLocalMICFailures)
	s.TKIPCounterMeasures += uint64(r.TKIPCounterMeasures)
	s.TKIPReplays += uint64(r.TKIPReplays)
	s.TKIPFormatErrors += uint64(r.TKIPFormatErrors)
	s.CCMPFormatErrors += uint64(r.CCMPFormatErrors)
	s.CCMPReplays += uint64(r.CCMPReplays)

	s.CSBeaconMisses += uint64(r.CSBeaconMisses)
	s.CSConnects += uint64(r.CSConnects)
	s.CSDisconnects += uint64(r.CSDisconnects)
	s.CSRSSI = r.CSRSSI
	s.CSSNR = r.CSSNR

	s.WoWPackets += uint64(r.WoWPackets)
	s.WoWEvents += uint64(r.WoWEvents)
}

// EventCounters are per-type counts of firmware events handled by a Device.
type EventCounters struct {
	Ready          uint64
	Connect        uint64
	Disconnect     uint64
	ScanComplete   uint64
	MICFailure     uint64
	Stats          uint64
	TxPower        uint64
	NeighborReport uint64

	// Dropped counts events for unknown interfaces or received during
	// teardown.
	Dropped uint64
}
