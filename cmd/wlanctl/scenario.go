package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	"github.com/mdlayher/wlanmgr"
)

// A scenario is an ordered list of operations and firmware events replayed
// against a Device.
type scenario struct {
	Config     fileConfig      `json:"config"`
	Interfaces []fileInterface `json:"interfaces"`
	Steps      []step          `json:"steps"`
}

// fileConfig mirrors wlanmgr.Config for scenario files.
type fileConfig struct {
	DebugMask         uint32   `json:"debugMask,omitempty"`
	CommandTimeout    duration `json:"commandTimeout,omitempty"`
	TxPowerTimeout    duration `json:"txPowerTimeout,omitempty"`
	DisconnectTimeout duration `json:"disconnectTimeout,omitempty"`
	MaxProbedSSIDs    int      `json:"maxProbedSSIDs,omitempty"`
	MaxScanChannels   int      `json:"maxScanChannels,omitempty"`
	UserBSSFilter     bool     `json:"userBSSFilter,omitempty"`
	ConnectCtrlFlags  uint32   `json:"connectCtrlFlags,omitempty"`
	P2P               bool     `json:"p2p,omitempty"`
	SkipScan          bool     `json:"skipScan,omitempty"`
}

func (c fileConfig) config(log logrus.FieldLogger) *wlanmgr.Config {
	return &wlanmgr.Config{
		Logger:            log,
		DebugMask:         wlanmgr.DebugMask(c.DebugMask),
		CommandTimeout:    time.Duration(c.CommandTimeout),
		TxPowerTimeout:    time.Duration(c.TxPowerTimeout),
		DisconnectTimeout: time.Duration(c.DisconnectTimeout),
		MaxProbedSSIDs:    c.MaxProbedSSIDs,
		MaxScanChannels:   c.MaxScanChannels,
		UserBSSFilter:     c.UserBSSFilter,
		ConnectCtrlFlags:  c.ConnectCtrlFlags,
		P2P:               c.P2P,
		SkipScan:          c.SkipScan,
	}
}

// A duration is a time.Duration written as a Go duration string.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = duration(v)
	return nil
}

type fileInterface struct {
	Name          string `json:"name"`
	FirmwareIndex uint8  `json:"firmwareIndex"`
	Type          string `json:"type"`
	MAC           string `json:"mac,omitempty"`
}

func (fi fileInterface) iface() (wlanmgr.Interface, error) {
	typ, err := parseInterfaceType(fi.Type)
	if err != nil {
		return wlanmgr.Interface{}, err
	}

	mac, err := parseMAC(fi.MAC)
	if err != nil {
		return wlanmgr.Interface{}, err
	}

	return wlanmgr.Interface{
		Index:         int(fi.FirmwareIndex) + 1,
		Name:          fi.Name,
		HardwareAddr:  mac,
		FirmwareIndex: fi.FirmwareIndex,
		Type:          typ,
	}, nil
}

// A step is either an operation (Op) issued to the Device or an event
// (Event) delivered as if firmware had sent it.
type step struct {
	Op        string `json:"op,omitempty"`
	Event     string `json:"event,omitempty"`
	Interface string `json:"interface,omitempty"`

	SSID        string   `json:"ssid,omitempty"`
	SSIDs       []string `json:"ssids,omitempty"`
	BSSID       string   `json:"bssid,omitempty"`
	Frequency   int      `json:"frequency,omitempty"`
	Frequencies []int    `json:"frequencies,omitempty"`

	// Channel and Band may be given instead of Frequency. Band is one of
	// 2.4, 5 or 60.
	Channel int    `json:"channel,omitempty"`
	Band    string `json:"band,omitempty"`

	// Security is one of open, wep, wpa-psk or wpa2-psk.
	Security   string `json:"security,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`

	KeyIndex int    `json:"keyIndex,omitempty"`
	Key      string `json:"key,omitempty"`
	Cipher   string `json:"cipher,omitempty"`
	Pairwise bool   `json:"pairwise,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`

	Reason uint16 `json:"reason,omitempty"`
	Status int32  `json:"status,omitempty"`

	Stats *wlanmgr.StatsReport `json:"stats,omitempty"`

	// ExpectError names the error the step must fail with.
	ExpectError string `json:"expectError,omitempty"`
}

func (s step) name() string {
	if s.Op != "" {
		return s.Op
	}

	return "event " + s.Event
}

// loadScenario reads a YAML scenario file.
func loadScenario(path string) (*scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return parseScenario(b)
}

func parseScenario(b []byte) (*scenario, error) {
	var sc scenario
	if err := yaml.UnmarshalStrict(b, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if len(sc.Interfaces) == 0 {
		return nil, fmt.Errorf("scenario has no interfaces")
	}

	for i, s := range sc.Steps {
		if (s.Op == "") == (s.Event == "") {
			return nil, fmt.Errorf("step %d: exactly one of op or event must be set", i+1)
		}
	}

	return &sc, nil
}

func parseInterfaceType(s string) (wlanmgr.InterfaceType, error) {
	switch s {
	case "", "station":
		return wlanmgr.InterfaceTypeStation, nil
	case "ap":
		return wlanmgr.InterfaceTypeAP, nil
	case "adhoc":
		return wlanmgr.InterfaceTypeAdHoc, nil
	case "p2p-client":
		return wlanmgr.InterfaceTypeP2PClient, nil
	case "p2p-go":
		return wlanmgr.InterfaceTypeP2PGroupOwner, nil
	default:
		return 0, fmt.Errorf("unknown interface type %q", s)
	}
}

func parseMAC(s string) (net.HardwareAddr, error) {
	if s == "" {
		return nil, nil
	}

	return net.ParseMAC(s)
}

func parseCipher(s string) (wlanmgr.CipherSuite, error) {
	switch s {
	case "", "none":
		return 0, nil
	case "wep40":
		return wlanmgr.CipherSuiteWEP40, nil
	case "wep104":
		return wlanmgr.CipherSuiteWEP104, nil
	case "tkip":
		return wlanmgr.CipherSuiteTKIP, nil
	case "ccmp":
		return wlanmgr.CipherSuiteCCMP, nil
	case "sms4":
		return wlanmgr.CipherSuiteSMS4, nil
	case "krk":
		return wlanmgr.CipherSuiteCCKMKRK, nil
	default:
		return 0, fmt.Errorf("unknown cipher %q", s)
	}
}

func parseKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}

	return hex.DecodeString(s)
}

// frequency returns the frequency of a step in MHz.
func (s step) frequency() (int, error) {
	if s.Frequency != 0 || s.Channel == 0 {
		return s.Frequency, nil
	}

	var band int
	switch s.Band {
	case "", "2.4":
		band = wlanmgr.Band2GHz
	case "5":
		band = wlanmgr.Band5GHz
	case "60":
		band = wlanmgr.Band60GHz
	default:
		return 0, fmt.Errorf("unknown band %q", s.Band)
	}

	freq := wlanmgr.ChannelToFrequency(s.Channel, band)
	if freq == 0 {
		return 0, fmt.Errorf("channel %d is not valid in band %q", s.Channel, s.Band)
	}

	return freq, nil
}

// connectParams builds the parameters of a connect step.
func (s step) connectParams() (wlanmgr.ConnectParams, error) {
	bssid, err := parseMAC(s.BSSID)
	if err != nil {
		return wlanmgr.ConnectParams{}, err
	}

	freq, err := s.frequency()
	if err != nil {
		return wlanmgr.ConnectParams{}, err
	}

	p := wlanmgr.ConnectParams{
		SSID:      []byte(s.SSID),
		BSSID:     bssid,
		Frequency: freq,
	}

	switch s.Security {
	case "", "open":
	case "wep":
		key, err := parseKey(s.Key)
		if err != nil {
			return p, err
		}

		c := wlanmgr.CipherSuiteWEP104
		if len(key) == 5 {
			c = wlanmgr.CipherSuiteWEP40
		}

		p.PairwiseCiphers = []wlanmgr.CipherSuite{c}
		p.GroupCipher = c
		p.Key = key
		p.KeyIndex = s.KeyIndex
	case "wpa-psk":
		p.WPAVersions = wlanmgr.WPAVersion1
		p.AKMSuites = []wlanmgr.AKMSuite{wlanmgr.AKMSuitePSK}
		p.PairwiseCiphers = []wlanmgr.CipherSuite{wlanmgr.CipherSuiteTKIP}
		p.GroupCipher = wlanmgr.CipherSuiteTKIP
		p.Passphrase = s.Passphrase
	case "wpa2-psk":
		p.WPAVersions = wlanmgr.WPAVersion2
		p.AKMSuites = []wlanmgr.AKMSuite{wlanmgr.AKMSuitePSK}
		p.PairwiseCiphers = []wlanmgr.CipherSuite{wlanmgr.CipherSuiteCCMP}
		p.GroupCipher = wlanmgr.CipherSuiteCCMP
		p.Passphrase = s.Passphrase
	default:
		return p, fmt.Errorf("unknown security %q", s.Security)
	}

	return p, nil
}
