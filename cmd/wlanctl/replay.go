package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mdlayher/wlanmgr"
)

func newReplayCmd() *cobra.Command {
	var showStats bool

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Replay a scenario against a recording firmware",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScenario(args[0])
			if err != nil {
				return err
			}

			res, err := runScenario(cmd.Context(), sc, log.StandardLogger())
			if err != nil {
				return err
			}

			printCommands(cmd.OutOrStdout(), res.commands)
			printNotifications(cmd.OutOrStdout(), res.notifications)
			if showStats {
				printInterfaces(cmd.OutOrStdout(), res.interfaces)
				printCounters(cmd.OutOrStdout(), res.counters)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showStats, "stats", false, "Print interface state and event counters")

	return cmd
}

// A replayResult is everything observed while replaying a scenario.
type replayResult struct {
	commands      []command
	notifications []notification
	interfaces    []interfaceResult
	counters      wlanmgr.EventCounters
}

type interfaceResult struct {
	Name  string
	State wlanmgr.SMEState
	Stats wlanmgr.TargetStats
}

// sentinels are the errors a step may expect, by name.
var sentinels = map[string]error{
	"io":             wlanmgr.ErrIO,
	"not-ready":      wlanmgr.ErrNotReady,
	"busy":           wlanmgr.ErrBusy,
	"invalid-params": wlanmgr.ErrInvalidParams,
	"not-supported":  wlanmgr.ErrNotSupported,
	"timeout":        wlanmgr.ErrTimeout,
	"interrupted":    wlanmgr.ErrInterrupted,
	"no-such-entry":  wlanmgr.ErrNoSuchEntry,
	"not-connected":  wlanmgr.ErrNotConnected,
}

// runScenario replays sc against a fresh Device backed by a recorder.
func runScenario(ctx context.Context, sc *scenario, logger log.FieldLogger) (*replayResult, error) {
	fw := &recorder{}
	n := &notes{}

	d, err := wlanmgr.New(fw, n, sc.Config.config(logger))
	if err != nil {
		return nil, err
	}
	defer d.Close()

	if !sc.firmwareReady() {
		d.SetReady()
	}

	ifis := make(map[string]*wlanmgr.Interface)
	var order []string
	for _, fi := range sc.Interfaces {
		ifi, err := fi.iface()
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", fi.Name, err)
		}
		if err := d.AddInterface(ifi); err != nil {
			return nil, fmt.Errorf("failed to add interface %q: %w", fi.Name, err)
		}
		if err := d.Up(&ifi); err != nil {
			return nil, fmt.Errorf("failed to bring up interface %q: %w", fi.Name, err)
		}

		ifis[fi.Name] = &ifi
		order = append(order, fi.Name)
	}

	for i, s := range sc.Steps {
		fw.setStep(i + 1)
		n.setStep(i + 1)

		ifi := ifis[s.Interface]
		if ifi == nil && len(order) > 0 && s.Interface == "" {
			ifi = ifis[order[0]]
		}
		if ifi == nil {
			return nil, fmt.Errorf("step %d (%s): unknown interface %q", i+1, s.name(), s.Interface)
		}

		logger.WithFields(log.Fields{
			"step":   i + 1,
			"ifname": ifi.Name,
		}).Debug(s.name())

		err := runStep(ctx, d, ifi, s)
		if err := checkStep(s, err); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, s.name(), err)
		}
	}

	res := &replayResult{
		commands:      fw.all(),
		notifications: n.all(),
		counters:      d.EventCounters(),
	}
	for _, name := range order {
		ifi := ifis[name]

		state, err := d.State(ifi)
		if err != nil {
			return nil, err
		}
		stats, err := d.Stats(ifi)
		if err != nil {
			return nil, err
		}

		res.interfaces = append(res.interfaces, interfaceResult{
			Name:  name,
			State: state,
			Stats: stats,
		})
	}

	return res, nil
}

// firmwareReady reports whether the scenario delivers its own ready event.
func (sc *scenario) firmwareReady() bool {
	for _, s := range sc.Steps {
		if s.Event == "ready" {
			return true
		}
	}

	return false
}

// checkStep compares the result of a step with its expectation.
func checkStep(s step, err error) error {
	if s.ExpectError == "" {
		return err
	}

	want, ok := sentinels[s.ExpectError]
	if !ok {
		return fmt.Errorf("unknown expected error %q", s.ExpectError)
	}
	if !errors.Is(err, want) {
		return fmt.Errorf("expected error %q, got: %v", s.ExpectError, err)
	}

	return nil
}

func runStep(ctx context.Context, d *wlanmgr.Device, ifi *wlanmgr.Interface, s step) error {
	if s.Event != "" {
		ev, err := s.event(ifi)
		if err != nil {
			return err
		}

		d.HandleEvent(ev)
		return nil
	}

	switch s.Op {
	case "up":
		return d.Up(ifi)
	case "down":
		return d.Down(ifi)
	case "connect":
		p, err := s.connectParams()
		if err != nil {
			return err
		}
		return d.Connect(ctx, ifi, p)
	case "disconnect":
		return d.Disconnect(ctx, ifi, s.Reason)
	case "scan":
		req := &wlanmgr.ScanRequest{Frequencies: s.Frequencies}
		for _, ssid := range s.SSIDs {
			req.SSIDs = append(req.SSIDs, []byte(ssid))
		}
		return d.Scan(ctx, ifi, req)
	case "add-key":
		cipher, err := parseCipher(s.Cipher)
		if err != nil {
			return err
		}
		key, err := parseKey(s.Key)
		if err != nil {
			return err
		}
		mac, err := parseMAC(s.BSSID)
		if err != nil {
			return err
		}

		return d.AddKey(ctx, ifi, wlanmgr.KeyParams{
			Index:    s.KeyIndex,
			Pairwise: s.Pairwise,
			MAC:      mac,
			Cipher:   cipher,
			Key:      key,
		})
	case "del-key":
		return d.DelKey(ctx, ifi, s.KeyIndex)
	case "set-default-key":
		return d.SetDefaultKey(ctx, ifi, s.KeyIndex, true, true)
	case "set-power-mgmt":
		return d.SetPowerMgmt(ctx, ifi, s.Enabled)
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}

// event builds the firmware event a step delivers.
func (s step) event(ifi *wlanmgr.Interface) (wlanmgr.Event, error) {
	bssid, err := parseMAC(s.BSSID)
	if err != nil {
		return nil, err
	}

	vif := ifi.FirmwareIndex
	switch s.Event {
	case "ready":
		return &wlanmgr.ReadyEvent{HardwareAddr: ifi.HardwareAddr}, nil
	case "connect":
		freq, err := s.frequency()
		if err != nil {
			return nil, err
		}

		return &wlanmgr.ConnectEvent{
			Vif:            vif,
			Channel:        uint16(freq),
			BSSID:          bssid,
			ListenInterval: 1,
			BeaconInterval: 100,
			NetworkType:    networkType(ifi.Type),
		}, nil
	case "disconnect":
		return &wlanmgr.DisconnectEvent{
			Vif:            vif,
			Reason:         wlanmgr.DisconnectReason(s.Reason),
			BSSID:          bssid,
			ProtocolReason: s.Reason,
		}, nil
	case "scan-complete":
		return &wlanmgr.ScanCompleteEvent{Vif: vif, Status: s.Status}, nil
	case "mic-failure":
		return &wlanmgr.MICFailureEvent{
			Vif:       vif,
			KeyID:     uint8(s.KeyIndex),
			Multicast: !s.Pairwise,
		}, nil
	case "stats":
		ev := &wlanmgr.StatsEvent{Vif: vif}
		if s.Stats != nil {
			ev.Report = *s.Stats
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event %q", s.Event)
	}
}

func networkType(t wlanmgr.InterfaceType) wlanmgr.NetworkType {
	switch t {
	case wlanmgr.InterfaceTypeAdHoc:
		return wlanmgr.NetworkAdHoc
	case wlanmgr.InterfaceTypeAP, wlanmgr.InterfaceTypeP2PGroupOwner:
		return wlanmgr.NetworkAP
	default:
		return wlanmgr.NetworkInfra
	}
}

func printCommands(w io.Writer, cmds []command) {
	table := tablewriter.NewTable(w)
	table.Header("STEP", "COMMAND", "VIF", "DETAIL")
	for _, c := range cmds {
		table.Append(strconv.Itoa(c.Step), c.Op, strconv.Itoa(int(c.Vif)), c.Detail)
	}
	table.Render()
}

func printNotifications(w io.Writer, notes []notification) {
	table := tablewriter.NewTable(w)
	table.Header("STEP", "INTERFACE", "NOTIFICATION", "DETAIL")
	for _, n := range notes {
		table.Append(strconv.Itoa(n.Step), n.Interface, n.Kind, n.Detail)
	}
	table.Render()
}

func printInterfaces(w io.Writer, ifis []interfaceResult) {
	table := tablewriter.NewTable(w)
	table.Header("INTERFACE", "STATE", "TX PACKETS", "RX PACKETS", "RSSI", "MIC FAILURES")
	for _, ifi := range ifis {
		st := ifi.Stats
		table.Append(
			ifi.Name,
			ifi.State.String(),
			strconv.FormatUint(st.TxPackets, 10),
			strconv.FormatUint(st.RxPackets, 10),
			strconv.Itoa(int(st.CSRSSI)),
			strconv.FormatUint(st.PairwiseMICFailures+st.GroupMICFailures, 10),
		)
	}
	table.Render()
}

func printCounters(w io.Writer, c wlanmgr.EventCounters) {
	table := tablewriter.NewTable(w)
	table.Header("EVENT", "COUNT")
	for _, row := range []struct {
		name string
		n    uint64
	}{
		{"ready", c.Ready},
		{"connect", c.Connect},
		{"disconnect", c.Disconnect},
		{"scan complete", c.ScanComplete},
		{"mic failure", c.MICFailure},
		{"stats", c.Stats},
		{"tx power", c.TxPower},
		{"neighbor report", c.NeighborReport},
		{"dropped", c.Dropped},
	} {
		table.Append(row.name, strconv.FormatUint(row.n, 10))
	}
	table.Render()
}
