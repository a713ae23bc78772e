//go:build usbfs

// This file implements the USB collaborator directly against Linux's usbfs
// (/dev/bus/usb), bypassing libusb entirely. It exists for the same reason
// the teacher's mips build of the ASIC driver bypasses gousb: some embedded
// Linux targets this tool runs on carry no libusb/cgo toolchain, only the
// kernel's usbdevfs ioctls. Opt into it with -tags usbfs.
package usbhost

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"

	"miassistant/internal/miaerr"
)

// usbdevfs ioctl numbers, Linux x86/ARM 32-bit encoding (_IOR/_IOW/_IOWR on
// magic 'U' = 0x55), per <linux/usbdevice_fs.h>.
const (
	usbdevfsControl          = 0xc0185500
	usbdevfsBulk             = 0xc0105502
	usbdevfsClaimInterface   = 0x8004550f
	usbdevfsReleaseInterface = 0x80045510
	usbdevfsDisconnect       = 0x5516
	usbdevfsSetConfiguration = 0x80045505
)

const usbDeviceDescriptorType = 0x01

type usbdevfsBulkTransfer struct {
	Ep      uint32
	Len     uint32
	Timeout uint32
	Data    unsafe.Pointer
}

// usbfsDevice is the raw-ioctl OpenDevice implementation.
type usbfsDevice struct {
	fd  int
	eps Endpoints
}

type deviceDescriptor struct {
	bLength         uint8
	bDescriptorType uint8
	class           uint8
	subClass        uint8
	vendor          uint16
	product         uint16
	numConfigs      uint8
}

// FindFirstADB scans /dev/bus/usb, via a raw read of each node's device
// descriptor, for the first device whose device-level class/subclass is the
// ADB pair, and claims its interface 0. Interface descriptors and endpoint
// types are not inspected; the bulk endpoints are the fixed 0x81/0x01 pair.
func FindFirstADB() (OpenDevice, error) {
	path, desc, err := scanUsbfs(func(deviceDescriptor) bool { return true })
	if err != nil {
		return nil, err
	}
	return openUsbfsPath(path, desc)
}

// OpenByLocation opens the device file at the given bus/address under
// /dev/bus/usb directly.
func OpenByLocation(bus, address uint8) (OpenDevice, error) {
	path := filepath.Join("/dev/bus/usb", fmt.Sprintf("%03d", bus), fmt.Sprintf("%03d", address))
	desc, err := readDescriptorAt(path)
	if err != nil {
		return nil, miaerr.DeviceNotFound()
	}
	return openUsbfsPath(path, desc)
}

// ListADBDevices walks /dev/bus/usb and reports every device found, with
// its ADB-class status.
func ListADBDevices() ([]DeviceSummary, error) {
	root := "/dev/bus/usb"
	busDirs, err := os.ReadDir(root)
	if err != nil {
		return nil, miaerr.USB(err, "reading %s", root)
	}
	var out []DeviceSummary
	for _, busDir := range busDirs {
		busPath := filepath.Join(root, busDir.Name())
		devFiles, err := os.ReadDir(busPath)
		if err != nil {
			continue
		}
		for _, devFile := range devFiles {
			devPath := filepath.Join(busPath, devFile.Name())
			desc, err := readDescriptorAt(devPath)
			if err != nil {
				continue
			}
			var bus, addr uint8
			fmt.Sscanf(busDir.Name(), "%d", &bus)
			fmt.Sscanf(devFile.Name(), "%d", &addr)
			out = append(out, DeviceSummary{
				Bus:       bus,
				Address:   addr,
				VendorID:  desc.vendor,
				ProductID: desc.product,
				HasADB:    desc.class == ClassADB && desc.subClass == SubclassADB,
			})
		}
	}
	return out, nil
}

// scanUsbfs walks /dev/bus/usb looking for the first device descriptor
// satisfying want, read directly off the device node.
func scanUsbfs(want func(deviceDescriptor) bool) (string, deviceDescriptor, error) {
	root := "/dev/bus/usb"
	busDirs, err := os.ReadDir(root)
	if err != nil {
		return "", deviceDescriptor{}, miaerr.USB(err, "reading %s", root)
	}
	for _, busDir := range busDirs {
		busPath := filepath.Join(root, busDir.Name())
		devFiles, err := os.ReadDir(busPath)
		if err != nil {
			continue
		}
		for _, devFile := range devFiles {
			devPath := filepath.Join(busPath, devFile.Name())
			desc, err := readDescriptorAt(devPath)
			if err != nil {
				continue
			}
			if desc.class == ClassADB && desc.subClass == SubclassADB && want(desc) {
				return devPath, desc, nil
			}
		}
	}
	return "", deviceDescriptor{}, miaerr.DeviceNotFound()
}

// readDescriptorAt reads the 18-byte USB device descriptor from the start
// of a usbfs device node.
func readDescriptorAt(path string) (deviceDescriptor, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY, 0)
	if err != nil {
		return deviceDescriptor{}, miaerr.USB(err, "opening %s", path)
	}
	defer syscall.Close(fd)

	buf := make([]byte, 18)
	if _, err := syscall.Read(fd, buf); err != nil {
		return deviceDescriptor{}, miaerr.USB(err, "reading descriptor from %s", path)
	}
	if buf[1] != usbDeviceDescriptorType {
		return deviceDescriptor{}, miaerr.Protocol("unexpected descriptor type 0x%02x", buf[1])
	}
	return deviceDescriptor{
		bLength:         buf[0],
		bDescriptorType: buf[1],
		class:           buf[4],
		subClass:        buf[5],
		vendor:          binary.LittleEndian.Uint16(buf[8:10]),
		product:         binary.LittleEndian.Uint16(buf[10:12]),
		numConfigs:      buf[17],
	}, nil
}

// openUsbfsPath opens the device node, best-effort detaches any bound
// kernel driver, and claims interface 0 — the MiAssistant interface is the
// device's sole configured interface, so no further descriptor walking for
// endpoint numbers is needed beyond the fixed convention below.
func openUsbfsPath(path string, desc deviceDescriptor) (OpenDevice, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return nil, miaerr.USB(err, "opening %s", path)
	}

	ifaceNum := uint32(0)
	_, _, _ = syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), usbdevfsDisconnect, uintptr(ifaceNum))

	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), usbdevfsClaimInterface, uintptr(unsafe.Pointer(&ifaceNum))); errno != 0 {
		syscall.Close(fd)
		return nil, miaerr.USB(errno, "claiming interface %d via usbfs", ifaceNum)
	}

	return &usbfsDevice{
		fd: fd,
		eps: Endpoints{
			BulkIn:          0x81,
			BulkOut:         0x01,
			InterfaceNumber: uint8(ifaceNum),
		},
	}, nil
}

func (d *usbfsDevice) Endpoints() Endpoints { return d.eps }

func (d *usbfsDevice) bulkTransfer(endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	xfer := usbdevfsBulkTransfer{
		Ep:      uint32(endpoint),
		Len:     uint32(len(buf)),
		Timeout: uint32(timeout.Milliseconds()),
	}
	if len(buf) > 0 {
		xfer.Data = unsafe.Pointer(&buf[0])
	}
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), usbdevfsBulk, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		if errno == syscall.ETIMEDOUT {
			return 0, miaerr.USB(errno, "bulk transfer on endpoint 0x%02x timed out", endpoint)
		}
		return 0, miaerr.USB(errno, "bulk transfer on endpoint 0x%02x", endpoint)
	}
	return len(buf), nil
}

func (d *usbfsDevice) BulkRead(endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	return d.bulkTransfer(endpoint, buf, timeout)
}

func (d *usbfsDevice) BulkWrite(endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	return d.bulkTransfer(endpoint, data, timeout)
}

func (d *usbfsDevice) Close() error {
	iface := uint32(d.eps.InterfaceNumber)
	syscall.Syscall(syscall.SYS_IOCTL, uintptr(d.fd), usbdevfsReleaseInterface, uintptr(unsafe.Pointer(&iface)))
	return syscall.Close(d.fd)
}
