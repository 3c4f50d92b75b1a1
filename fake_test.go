package wlanmgr

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var (
	staMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	apMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	bssid1 = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	bssid2 = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x66}
	peer1  = net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0x01}
	peer2  = net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0x02}
)

func staIfi() Interface {
	return Interface{
		Index:         1,
		Name:          "wlan0",
		HardwareAddr:  staMAC,
		FirmwareIndex: 0,
		Type:          InterfaceTypeStation,
	}
}

func apIfi() Interface {
	return Interface{
		Index:         2,
		Name:          "wlan1",
		HardwareAddr:  apMAC,
		FirmwareIndex: 1,
		Type:          InterfaceTypeAP,
	}
}

// A fwCall is one command recorded by fakeFirmware.
type fwCall struct {
	Op   string
	Args interface{}
}

type reconnectArgs struct {
	BSSID   net.HardwareAddr
	Channel uint16
}

type pmkidArgs struct {
	BSSID  net.HardwareAddr
	PMKID  []byte
	Enable bool
}

type probedSSIDArgs struct {
	Index uint8
	Flag  ProbedSSIDFlag
	SSID  []byte
}

type appIEArgs struct {
	Frame MgmtFrameType
	IE    []byte
}

var _ Firmware = &fakeFirmware{}

// A fakeFirmware records commands and fails those configured in errs.
type fakeFirmware struct {
	mu    sync.Mutex
	calls []fwCall
	errs  map[string]error

	// onCall, if set, runs after each command is recorded.
	onCall func(op string)
}

func (f *fakeFirmware) record(op string, args interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, fwCall{Op: op, Args: args})
	err := f.errs[op]
	fn := f.onCall
	f.mu.Unlock()

	if fn != nil {
		fn(op)
	}

	return err
}

// fail makes every later op command return err.
func (f *fakeFirmware) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[op] = err
}

// reset forgets all recorded commands.
func (f *fakeFirmware) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = nil
}

// all returns all recorded commands.
func (f *fakeFirmware) all() []fwCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]fwCall(nil), f.calls...)
}

// ops returns the names of all recorded commands.
func (f *fakeFirmware) ops() []string {
	var ops []string
	for _, c := range f.all() {
		ops = append(ops, c.Op)
	}

	return ops
}

// find returns the arguments of each recorded op command.
func (f *fakeFirmware) find(op string) []interface{} {
	var args []interface{}
	for _, c := range f.all() {
		if c.Op == op {
			args = append(args, c.Args)
		}
	}

	return args
}

func (f *fakeFirmware) Connect(_ context.Context, cmd ConnectCommand) error {
	return f.record("connect", cmd)
}

func (f *fakeFirmware) Reconnect(_ context.Context, _ uint8, bssid net.HardwareAddr, channel uint16) error {
	return f.record("reconnect", reconnectArgs{BSSID: bssid, Channel: channel})
}

func (f *fakeFirmware) Disconnect(_ context.Context, vif uint8) error {
	return f.record("disconnect", vif)
}

func (f *fakeFirmware) AddKey(_ context.Context, cmd AddKeyCommand) error {
	return f.record("add key", cmd)
}

func (f *fakeFirmware) DeleteKey(_ context.Context, _, index uint8) error {
	return f.record("delete key", index)
}

func (f *fakeFirmware) AddKRK(_ context.Context, _ uint8, krk []byte) error {
	return f.record("add krk", krk)
}

func (f *fakeFirmware) SetPMK(_ context.Context, _ uint8, pmk []byte) error {
	return f.record("set pmk", pmk)
}

func (f *fakeFirmware) SetPMKID(_ context.Context, _ uint8, bssid net.HardwareAddr, pmkid []byte, enable bool) error {
	return f.record("set pmkid", pmkidArgs{BSSID: bssid, PMKID: pmkid, Enable: enable})
}

func (f *fakeFirmware) StartScan(_ context.Context, cmd ScanCommand) error {
	return f.record("start scan", cmd)
}

func (f *fakeFirmware) SetProbedSSID(_ context.Context, _, index uint8, flag ProbedSSIDFlag, ssid []byte) error {
	return f.record("set probed ssid", probedSSIDArgs{Index: index, Flag: flag, SSID: ssid})
}

func (f *fakeFirmware) SetBSSFilter(_ context.Context, _ uint8, filter BSSFilter, _ uint32) error {
	return f.record("set bss filter", filter)
}

func (f *fakeFirmware) SetAppIE(_ context.Context, _ uint8, frame MgmtFrameType, ie []byte) error {
	return f.record("set app ie", appIEArgs{Frame: frame, IE: ie})
}

func (f *fakeFirmware) GetStats(_ context.Context, vif uint8) error {
	return f.record("get stats", vif)
}

func (f *fakeFirmware) GetTxPower(_ context.Context, vif uint8) error {
	return f.record("get tx power", vif)
}

func (f *fakeFirmware) SetTxPower(_ context.Context, _ uint8, dbm uint8) error {
	return f.record("set tx power", dbm)
}

func (f *fakeFirmware) SetPowerMode(_ context.Context, _ uint8, mode PowerMode) error {
	return f.record("set power mode", mode)
}

func (f *fakeFirmware) CommitAPProfile(_ context.Context, p APProfile) error {
	return f.record("ap commit", p)
}

// A notification is one Notifier call recorded by recordNotifier.
type notification struct {
	Op      string
	Vif     uint8
	BSSID   net.HardwareAddr
	ReqIE   []byte
	RespIE  []byte
	Status  uint16
	Reason  uint16
	Freq    int
	Aborted bool
	KeyType KeyType
	KeyID   int
	Index   int
	Preauth bool
}

var _ Notifier = &recordNotifier{}

type recordNotifier struct {
	mu    sync.Mutex
	notes []notification
	scans []*ScanRequest
}

func (n *recordNotifier) add(note notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.notes = append(n.notes, note)
}

func (n *recordNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]notification(nil), n.notes...)
}

func (n *recordNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.notes = nil
	n.scans = nil
}

func (n *recordNotifier) ConnectResult(ifi Interface, bssid net.HardwareAddr, reqIE, respIE []byte, status uint16) {
	n.add(notification{
		Op:     "connect result",
		Vif:    ifi.FirmwareIndex,
		BSSID:  bssid,
		ReqIE:  reqIE,
		RespIE: respIE,
		Status: status,
	})
}

func (n *recordNotifier) Roamed(ifi Interface, freq int, bssid net.HardwareAddr, reqIE, respIE []byte) {
	n.add(notification{
		Op:     "roamed",
		Vif:    ifi.FirmwareIndex,
		Freq:   freq,
		BSSID:  bssid,
		ReqIE:  reqIE,
		RespIE: respIE,
	})
}

func (n *recordNotifier) Disconnected(ifi Interface, reason uint16, ie []byte) {
	n.add(notification{
		Op:     "disconnected",
		Vif:    ifi.FirmwareIndex,
		Reason: reason,
		RespIE: ie,
	})
}

func (n *recordNotifier) IBSSJoined(ifi Interface, bssid net.HardwareAddr) {
	n.add(notification{
		Op:    "ibss joined",
		Vif:   ifi.FirmwareIndex,
		BSSID: bssid,
	})
}

func (n *recordNotifier) ScanDone(ifi Interface, req *ScanRequest, aborted bool) {
	n.mu.Lock()
	n.scans = append(n.scans, req)
	n.mu.Unlock()

	n.add(notification{
		Op:      "scan done",
		Vif:     ifi.FirmwareIndex,
		Aborted: aborted,
	})
}

func (n *recordNotifier) MichaelMICFailure(ifi Interface, addr net.HardwareAddr, kt KeyType, keyID int) {
	n.add(notification{
		Op:      "mic failure",
		Vif:     ifi.FirmwareIndex,
		BSSID:   addr,
		KeyType: kt,
		KeyID:   keyID,
	})
}

func (n *recordNotifier) PMKSACandidate(ifi Interface, index int, bssid net.HardwareAddr, preauth bool) {
	n.add(notification{
		Op:      "pmksa candidate",
		Vif:     ifi.FirmwareIndex,
		Index:   index,
		BSSID:   bssid,
		Preauth: preauth,
	})
}

func (n *recordNotifier) NewStation(ifi Interface, mac net.HardwareAddr, reqIE []byte) {
	n.add(notification{
		Op:    "new station",
		Vif:   ifi.FirmwareIndex,
		BSSID: mac,
		ReqIE: reqIE,
	})
}

func (n *recordNotifier) DelStation(ifi Interface, mac net.HardwareAddr) {
	n.add(notification{
		Op:    "del station",
		Vif:   ifi.FirmwareIndex,
		BSSID: mac,
	})
}

// A fakeTimer is a stopper which only fires when the test says so.
type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, fn func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// active returns the timers which have not been stopped.
func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ts []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			ts = append(ts, t)
		}
	}

	return ts
}

// A testEnv is a ready Device wired to fakes.
type testEnv struct {
	d     *Device
	fw    *fakeFirmware
	n     *recordNotifier
	clock *fakeClock
}

// testDevice creates a ready Device with each of ifis added and up.
func testDevice(t *testing.T, cfg *Config, ifis ...Interface) *testEnv {
	t.Helper()

	fw := &fakeFirmware{}
	n := &recordNotifier{}

	d, err := New(fw, n, cfg)
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}

	clock := &fakeClock{}
	d.afterFunc = clock.afterFunc
	d.SetReady()

	for _, ifi := range ifis {
		ifi := ifi
		if err := d.AddInterface(ifi); err != nil {
			t.Fatalf("failed to add interface: %v", err)
		}
		if err := d.Up(&ifi); err != nil {
			t.Fatalf("failed to bring up interface: %v", err)
		}
	}

	return &testEnv{
		d:     d,
		fw:    fw,
		n:     n,
		clock: clock,
	}
}

// state returns the SME state of ifi.
func (env *testEnv) state(t *testing.T, ifi Interface) SMEState {
	t.Helper()

	s, err := env.d.State(&ifi)
	if err != nil {
		t.Fatalf("failed to get state: %v", err)
	}

	return s
}

// reset forgets all recorded commands and notifications.
func (env *testEnv) reset() {
	env.fw.reset()
	env.n.reset()
}

func diffNotes(t *testing.T, want []notification, got []notification) {
	t.Helper()

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("unexpected notifications (-want +got):\n%s", diff)
	}
}

func diffOps(t *testing.T, want []string, got []string) {
	t.Helper()

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("unexpected firmware commands (-want +got):\n%s", diff)
	}
}

// wpa2Params returns connect parameters for a WPA2-PSK CCMP network.
func wpa2Params(ssid string) ConnectParams {
	return ConnectParams{
		SSID:            []byte(ssid),
		WPAVersions:     WPAVersion2,
		AuthType:        AuthTypeOpenSystem,
		PairwiseCiphers: []CipherSuite{CipherSuiteCCMP},
		GroupCipher:     CipherSuiteCCMP,
		AKMSuites:       []AKMSuite{AKMSuitePSK},
	}
}

// connectEv returns a connect event for an infrastructure BSS.
func connectEv(vif uint8, bssid net.HardwareAddr, channel uint16) *ConnectEvent {
	beacon := []byte{0x05, 0x04, 0x00, 0x02, 0x00, 0x00}
	req := []byte{0x31, 0x04, 0x0a, 0x00, 0x00, 0x03, 'f', 'o', 'o'}
	resp := []byte{0x11, 0x04, 0x00, 0x00, 0x01, 0xc0, 0x01, 0x01, 0x82}

	info := append(append(append([]byte(nil), beacon...), req...), resp...)

	return &ConnectEvent{
		Vif:            vif,
		Channel:        channel,
		BSSID:          bssid,
		ListenInterval: 10,
		BeaconInterval: 100,
		NetworkType:    NetworkInfra,
		AID:            1,
		BeaconIELen:    len(beacon),
		AssocReqLen:    len(req),
		AssocRespLen:   len(resp),
		AssocInfo:      info,
	}
}

// connect drives ifi through a successful WPA2-PSK connection to bssid.
func (env *testEnv) connect(t *testing.T, ifi Interface, ssid string, bssid net.HardwareAddr) {
	t.Helper()

	if err := env.d.Connect(context.Background(), &ifi, wpa2Params(ssid)); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	env.d.HandleEvent(connectEv(ifi.FirmwareIndex, bssid, 2437))

	if s := env.state(t, ifi); s != SMEConnected {
		t.Fatalf("unexpected state after connect: %s", s)
	}
}
