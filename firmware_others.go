//go:build !linux
// +build !linux

package wlanmgr

import (
	"context"
	"net"
	"runtime"

	"github.com/pkg/errors"
)

// errUnimplemented is returned by all functions on platforms that do not
// have generic netlink.
var errUnimplemented = errors.New("wlanmgr: not implemented on " + runtime.GOOS)

var _ Firmware = &FirmwareConn{}

// A FirmwareConn is the no-op implementation of the generic netlink firmware
// transport.
type FirmwareConn struct{}

// DialFirmware always returns an error on this platform.
func DialFirmware() (*FirmwareConn, error) { return nil, errUnimplemented }

func (*FirmwareConn) Close() error                                         { return errUnimplemented }
func (*FirmwareConn) Listen(_ context.Context, _ EventHandler) error       { return errUnimplemented }
func (*FirmwareConn) Connect(_ context.Context, _ ConnectCommand) error    { return errUnimplemented }
func (*FirmwareConn) Disconnect(_ context.Context, _ uint8) error          { return errUnimplemented }
func (*FirmwareConn) AddKey(_ context.Context, _ AddKeyCommand) error      { return errUnimplemented }
func (*FirmwareConn) DeleteKey(_ context.Context, _, _ uint8) error        { return errUnimplemented }
func (*FirmwareConn) AddKRK(_ context.Context, _ uint8, _ []byte) error    { return errUnimplemented }
func (*FirmwareConn) SetPMK(_ context.Context, _ uint8, _ []byte) error    { return errUnimplemented }
func (*FirmwareConn) StartScan(_ context.Context, _ ScanCommand) error     { return errUnimplemented }
func (*FirmwareConn) GetStats(_ context.Context, _ uint8) error            { return errUnimplemented }
func (*FirmwareConn) GetTxPower(_ context.Context, _ uint8) error          { return errUnimplemented }
func (*FirmwareConn) SetTxPower(_ context.Context, _ uint8, _ uint8) error { return errUnimplemented }
func (*FirmwareConn) CommitAPProfile(_ context.Context, _ APProfile) error { return errUnimplemented }

func (*FirmwareConn) Reconnect(_ context.Context, _ uint8, _ net.HardwareAddr, _ uint16) error {
	return errUnimplemented
}

func (*FirmwareConn) SetPMKID(_ context.Context, _ uint8, _ net.HardwareAddr, _ []byte, _ bool) error {
	return errUnimplemented
}

func (*FirmwareConn) SetProbedSSID(_ context.Context, _, _ uint8, _ ProbedSSIDFlag, _ []byte) error {
	return errUnimplemented
}

func (*FirmwareConn) SetBSSFilter(_ context.Context, _ uint8, _ BSSFilter, _ uint32) error {
	return errUnimplemented
}

func (*FirmwareConn) SetAppIE(_ context.Context, _ uint8, _ MgmtFrameType, _ []byte) error {
	return errUnimplemented
}

func (*FirmwareConn) SetPowerMode(_ context.Context, _ uint8, _ PowerMode) error {
	return errUnimplemented
}
