package main

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/mdlayher/wlanmgr"
)

// A command is one firmware command observed by a recorder.
type command struct {
	Step   int
	Op     string
	Vif    uint8
	Detail string
}

// A recorder is a wlanmgr.Firmware which accepts and records every command.
type recorder struct {
	mu       sync.Mutex
	step     int
	commands []command
}

var _ wlanmgr.Firmware = &recorder{}

func (r *recorder) setStep(step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = step
}

func (r *recorder) record(op string, vif uint8, format string, v ...interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands = append(r.commands, command{
		Step:   r.step,
		Op:     op,
		Vif:    vif,
		Detail: fmt.Sprintf(format, v...),
	})
	return nil
}

func (r *recorder) all() []command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command(nil), r.commands...)
}

func (r *recorder) Connect(_ context.Context, cmd wlanmgr.ConnectCommand) error {
	return r.record("connect", cmd.Vif, "ssid=%q bssid=%s channel=%d auth=%s pairwise=%s group=%s",
		cmd.SSID, cmd.BSSID, wlanmgr.FrequencyToChannel(int(cmd.Channel)), cmd.AuthMode, cmd.PairwiseCrypto, cmd.GroupCrypto)
}

func (r *recorder) Reconnect(_ context.Context, vif uint8, bssid net.HardwareAddr, channel uint16) error {
	return r.record("reconnect", vif, "bssid=%s channel=%d", bssid, channel)
}

func (r *recorder) Disconnect(_ context.Context, vif uint8) error {
	return r.record("disconnect", vif, "")
}

func (r *recorder) AddKey(_ context.Context, cmd wlanmgr.AddKeyCommand) error {
	return r.record("add key", cmd.Vif, "index=%d crypto=%s usage=%#x len=%d",
		cmd.Index, cmd.Crypto, uint8(cmd.Usage), len(cmd.Key))
}

func (r *recorder) DeleteKey(_ context.Context, vif, index uint8) error {
	return r.record("delete key", vif, "index=%d", index)
}

func (r *recorder) AddKRK(_ context.Context, vif uint8, krk []byte) error {
	return r.record("add krk", vif, "len=%d", len(krk))
}

func (r *recorder) SetPMK(_ context.Context, vif uint8, pmk []byte) error {
	return r.record("set pmk", vif, "len=%d", len(pmk))
}

func (r *recorder) SetPMKID(_ context.Context, vif uint8, bssid net.HardwareAddr, pmkid []byte, enable bool) error {
	return r.record("set pmkid", vif, "bssid=%s len=%d enable=%t", bssid, len(pmkid), enable)
}

func (r *recorder) StartScan(_ context.Context, cmd wlanmgr.ScanCommand) error {
	return r.record("start scan", cmd.Vif, "channels=%v foreground=%t", cmd.Channels, cmd.ForceForeground)
}

func (r *recorder) SetProbedSSID(_ context.Context, vif, index uint8, flag wlanmgr.ProbedSSIDFlag, ssid []byte) error {
	return r.record("set probed ssid", vif, "index=%d flag=%#x ssid=%q", index, uint8(flag), ssid)
}

func (r *recorder) SetBSSFilter(_ context.Context, vif uint8, filter wlanmgr.BSSFilter, _ uint32) error {
	return r.record("set bss filter", vif, "filter=%d", filter)
}

func (r *recorder) SetAppIE(_ context.Context, vif uint8, frame wlanmgr.MgmtFrameType, ie []byte) error {
	return r.record("set app ie", vif, "frame=%d len=%d", frame, len(ie))
}

func (r *recorder) GetStats(_ context.Context, vif uint8) error {
	return r.record("get stats", vif, "")
}

func (r *recorder) GetTxPower(_ context.Context, vif uint8) error {
	return r.record("get tx power", vif, "")
}

func (r *recorder) SetTxPower(_ context.Context, vif uint8, dbm uint8) error {
	return r.record("set tx power", vif, "dbm=%d", dbm)
}

func (r *recorder) SetPowerMode(_ context.Context, vif uint8, mode wlanmgr.PowerMode) error {
	return r.record("set power mode", vif, "mode=%d", mode)
}

func (r *recorder) CommitAPProfile(_ context.Context, p wlanmgr.APProfile) error {
	return r.record("commit ap profile", p.Vif, "ssid=%q channel=%d", p.SSID, p.Channel)
}

// A notification is one Notifier call observed by a notes.
type notification struct {
	Step      int
	Interface string
	Kind      string
	Detail    string
}

// notes is a wlanmgr.Notifier which records every notification.
type notes struct {
	mu    sync.Mutex
	step  int
	notes []notification
}

var _ wlanmgr.Notifier = &notes{}

func (n *notes) setStep(step int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.step = step
}

func (n *notes) add(ifi wlanmgr.Interface, kind, format string, v ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.notes = append(n.notes, notification{
		Step:      n.step,
		Interface: ifi.Name,
		Kind:      kind,
		Detail:    fmt.Sprintf(format, v...),
	})
}

func (n *notes) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.notes...)
}

func (n *notes) ConnectResult(ifi wlanmgr.Interface, bssid net.HardwareAddr, _, _ []byte, status uint16) {
	n.add(ifi, "connect result", "bssid=%s status=%d", bssid, status)
}

func (n *notes) Roamed(ifi wlanmgr.Interface, freq int, bssid net.HardwareAddr, _, _ []byte) {
	n.add(ifi, "roamed", "bssid=%s freq=%d", bssid, freq)
}

func (n *notes) Disconnected(ifi wlanmgr.Interface, reason uint16, _ []byte) {
	n.add(ifi, "disconnected", "reason=%d", reason)
}

func (n *notes) IBSSJoined(ifi wlanmgr.Interface, bssid net.HardwareAddr) {
	n.add(ifi, "ibss joined", "bssid=%s", bssid)
}

func (n *notes) ScanDone(ifi wlanmgr.Interface, _ *wlanmgr.ScanRequest, aborted bool) {
	n.add(ifi, "scan done", "aborted=%t", aborted)
}

func (n *notes) MichaelMICFailure(ifi wlanmgr.Interface, addr net.HardwareAddr, kt wlanmgr.KeyType, keyID int) {
	n.add(ifi, "mic failure", "addr=%s key=%s id=%d", addr, kt, keyID)
}

func (n *notes) PMKSACandidate(ifi wlanmgr.Interface, index int, bssid net.HardwareAddr, preauth bool) {
	n.add(ifi, "pmksa candidate", "index=%d bssid=%s preauth=%t", index, bssid, preauth)
}

func (n *notes) NewStation(ifi wlanmgr.Interface, mac net.HardwareAddr, _ []byte) {
	n.add(ifi, "new station", "mac=%s", mac)
}

func (n *notes) DelStation(ifi wlanmgr.Interface, mac net.HardwareAddr) {
	n.add(ifi, "del station", "mac=%s", mac)
}
