package deviceinfo

import (
	"miassistant/internal/miaerr"
	"miassistant/internal/protocol"
)

// query pairs a fixed ADB simple-command string with the DeviceInfo field
// it fills. Order matches the probe's fixed query sequence.
type query struct {
	field func(*DeviceInfo) *string
	cmd   string
}

var queries = []query{
	{func(d *DeviceInfo) *string { return &d.Device }, "getdevice:"},
	{func(d *DeviceInfo) *string { return &d.Version }, "getversion:"},
	{func(d *DeviceInfo) *string { return &d.SN }, "getsn:"},
	{func(d *DeviceInfo) *string { return &d.Codebase }, "getcodebase:"},
	{func(d *DeviceInfo) *string { return &d.Branch }, "getbranch:"},
	{func(d *DeviceInfo) *string { return &d.Language }, "getlanguage:"},
	{func(d *DeviceInfo) *string { return &d.Region }, "getregion:"},
	{func(d *DeviceInfo) *string { return &d.Romzone }, "getromzone:"},
}

// Probe issues the eight fixed identity queries over t, in order, and
// aggregates the trimmed replies into a DeviceInfo. The first query failure
// aborts the probe.
func Probe(t *protocol.Transport) (DeviceInfo, error) {
	var info DeviceInfo
	for _, q := range queries {
		reply, err := protocol.SimpleCommand(t, q.cmd)
		if err != nil {
			return DeviceInfo{}, miaerr.Other(err, "probing %q", q.cmd)
		}
		*q.field(&info) = reply
	}
	return info, nil
}
