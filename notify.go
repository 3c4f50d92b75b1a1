package wlanmgr

import "net"

// A Notifier receives the results of asynchronous firmware events, as
// synthesized by a Device. Methods are called after the device lock has been
// released, in event delivery order, and may call back into the Device.
type Notifier interface {
	// ConnectResult reports the outcome of a connection attempt.
	ConnectResult(ifi Interface, bssid net.HardwareAddr, reqIE, respIE []byte, status uint16)

	// Roamed reports a reassociation to another BSS of the same ESS.
	Roamed(ifi Interface, freq int, bssid net.HardwareAddr, reqIE, respIE []byte)

	// Disconnected reports the loss of an established link.
	Disconnected(ifi Interface, reason uint16, ie []byte)

	// IBSSJoined reports that an ad-hoc network was joined or left. A left
	// network carries an all-zero BSSID.
	IBSSJoined(ifi Interface, bssid net.HardwareAddr)

	// ScanDone completes a scan request exactly once.
	ScanDone(ifi Interface, req *ScanRequest, aborted bool)

	MichaelMICFailure(ifi Interface, addr net.HardwareAddr, kt KeyType, keyID int)
	PMKSACandidate(ifi Interface, index int, bssid net.HardwareAddr, preauth bool)

	// NewStation and DelStation report stations joining and leaving a
	// started access point.
	NewStation(ifi Interface, mac net.HardwareAddr, reqIE []byte)
	DelStation(ifi Interface, mac net.HardwareAddr)
}

// NopNotifier is a Notifier which discards all notifications.
type NopNotifier struct{}

var _ Notifier = NopNotifier{}

func (NopNotifier) ConnectResult(Interface, net.HardwareAddr, []byte, []byte, uint16) {}
func (NopNotifier) Roamed(Interface, int, net.HardwareAddr, []byte, []byte)           {}
func (NopNotifier) Disconnected(Interface, uint16, []byte)                            {}
func (NopNotifier) IBSSJoined(Interface, net.HardwareAddr)                            {}
func (NopNotifier) ScanDone(Interface, *ScanRequest, bool)                            {}
func (NopNotifier) MichaelMICFailure(Interface, net.HardwareAddr, KeyType, int)       {}
func (NopNotifier) PMKSACandidate(Interface, int, net.HardwareAddr, bool)             {}
func (NopNotifier) NewStation(Interface, net.HardwareAddr, []byte)                    {}
func (NopNotifier) DelStation(Interface, net.HardwareAddr)                            {}
