//go:build !usbfs

// Package usbhost's default implementation talks to the USB bus through
// libusb via google/gousb, following the same open/config/claim/endpoint
// sequence the teacher's ASIC driver uses for its own USB device, but
// scanning for the MiAssistant ADB class/subclass interface instead of a
// fixed vendor/product ID.
package usbhost

import (
	"context"
	"log"
	"time"

	"github.com/google/gousb"

	"miassistant/internal/miaerr"
)

// gousbDevice is the default OpenDevice implementation.
type gousbDevice struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint
	eps   Endpoints
}

// FindFirstADB enumerates attached USB devices and opens the first one
// exposing an interface with class=0xFF, subclass=0x42 and both a bulk-in
// and bulk-out endpoint. It claims the interface and best-effort detaches
// any kernel driver bound to it.
func FindFirstADB() (OpenDevice, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool { return true })
	if err != nil {
		ctx.Close()
		return nil, miaerr.USB(err, "enumerating USB devices")
	}

	for _, dev := range devs {
		match, ok := inspect(dev)
		if !ok {
			dev.Close()
			continue
		}
		opened, err := claim(ctx, dev, match)
		if err != nil {
			dev.Close()
			for _, d := range devs {
				if d != dev {
					d.Close()
				}
			}
			ctx.Close()
			return nil, err
		}
		for _, d := range devs {
			if d != dev {
				d.Close()
			}
		}
		return opened, nil
	}

	for _, d := range devs {
		d.Close()
	}
	ctx.Close()
	return nil, miaerr.DeviceNotFound()
}

// OpenByLocation opens the ADB interface on the device at the given bus and
// address, if present.
func OpenByLocation(bus, address uint8) (OpenDevice, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint8(desc.Bus) == bus && uint8(desc.Address) == address
	})
	if err != nil {
		ctx.Close()
		return nil, miaerr.USB(err, "enumerating USB devices")
	}

	for _, dev := range devs {
		match, ok := inspect(dev)
		if !ok {
			dev.Close()
			continue
		}
		opened, err := claim(ctx, dev, match)
		if err != nil {
			dev.Close()
			ctx.Close()
			return nil, err
		}
		return opened, nil
	}

	for _, d := range devs {
		d.Close()
	}
	ctx.Close()
	return nil, miaerr.DeviceNotFound()
}

// ListADBDevices enumerates all attached USB devices and reports which
// expose the MiAssistant ADB interface, without opening or claiming any of
// them.
func ListADBDevices() ([]DeviceSummary, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var out []DeviceSummary
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool { return true })
	if err != nil {
		return nil, miaerr.USB(err, "enumerating USB devices")
	}
	for _, dev := range devs {
		_, hasADB := inspect(dev)
		out = append(out, DeviceSummary{
			Bus:       uint8(dev.Desc.Bus),
			Address:   uint8(dev.Desc.Address),
			VendorID:  uint16(dev.Desc.Vendor),
			ProductID: uint16(dev.Desc.Product),
			HasADB:    hasADB,
		})
		dev.Close()
	}
	return out, nil
}

// match records where in the descriptor tree the ADB interface was found.
type match struct {
	config  int
	iface   int
	alt     int
	bulkIn  int
	bulkOut int
}

// inspect scans dev's configuration descriptors for an interface with
// class=0xFF, subclass=0x42 exposing both a bulk-in and bulk-out endpoint.
func inspect(dev *gousb.Device) (match, bool) {
	for cfgNum, cfg := range dev.Desc.Configs {
		for ifNum, intf := range cfg.Interfaces {
			for altNum, alt := range intf.AltSettings {
				if uint8(alt.Class) != ClassADB || uint8(alt.SubClass) != SubclassADB {
					continue
				}
				var bulkIn, bulkOut int = -1, -1
				for _, ep := range alt.Endpoints {
					if ep.TransferType != gousb.TransferTypeBulk {
						continue
					}
					if ep.Direction == gousb.EndpointDirectionIn && bulkIn == -1 {
						bulkIn = int(ep.Number)
					}
					if ep.Direction == gousb.EndpointDirectionOut && bulkOut == -1 {
						bulkOut = int(ep.Number)
					}
				}
				if bulkIn != -1 && bulkOut != -1 {
					return match{config: cfgNum, iface: ifNum, alt: altNum, bulkIn: bulkIn, bulkOut: bulkOut}, true
				}
			}
		}
	}
	return match{}, false
}

// claim sets dev's configuration, detaches any kernel driver (best effort),
// claims the matched interface, and opens its bulk endpoints.
func claim(ctx *gousb.Context, dev *gousb.Device, m match) (OpenDevice, error) {
	if err := dev.SetAutoDetach(true); err != nil {
		log.Printf("usbhost: auto-detach kernel driver not supported: %v", err)
	}

	cfg, err := dev.Config(m.config)
	if err != nil {
		return nil, miaerr.USB(err, "setting USB configuration %d", m.config)
	}

	intf, err := cfg.Interface(m.iface, m.alt)
	if err != nil {
		cfg.Close()
		return nil, miaerr.USB(err, "claiming USB interface %d", m.iface)
	}

	epIn, err := intf.InEndpoint(m.bulkIn)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, miaerr.USB(err, "opening bulk-in endpoint %d", m.bulkIn)
	}
	epOut, err := intf.OutEndpoint(m.bulkOut)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, miaerr.USB(err, "opening bulk-out endpoint %d", m.bulkOut)
	}

	return &gousbDevice{
		ctx:   ctx,
		dev:   dev,
		cfg:   cfg,
		intf:  intf,
		epIn:  epIn,
		epOut: epOut,
		eps: Endpoints{
			BulkIn:          uint8(m.bulkIn),
			BulkOut:         uint8(m.bulkOut),
			InterfaceNumber: uint8(m.iface),
		},
	}, nil
}

func (d *gousbDevice) Endpoints() Endpoints { return d.eps }

func (d *gousbDevice) BulkRead(endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.epIn.ReadContext(ctx, buf)
	if err != nil {
		return n, miaerr.USB(err, "bulk read on endpoint 0x%02x", endpoint)
	}
	return n, nil
}

func (d *gousbDevice) BulkWrite(endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.epOut.WriteContext(ctx, data)
	if err != nil {
		return n, miaerr.USB(err, "bulk write on endpoint 0x%02x", endpoint)
	}
	return n, nil
}

// Close releases the claimed interface and configuration and closes the
// device and context, in that order, on every exit path.
func (d *gousbDevice) Close() error {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		d.cfg.Close()
	}
	if d.dev != nil {
		d.dev.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	return nil
}
