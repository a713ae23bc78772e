// Package usbhost is the USB collaborator the protocol transport consumes:
// it enumerates USB devices for the ADB-class MiAssistant interface, claims
// it, and exposes bulk read/write. This is deliberately outside the core —
// internal/protocol only depends on the small BulkDevice interface it
// defines, never on this package.
package usbhost

import "time"

// ADB class/subclass identify the MiAssistant recovery's USB interface.
const (
	ClassADB    = 0xFF
	SubclassADB = 0x42
)

// Endpoints describes the bulk-in/bulk-out pair found on the claimed
// interface.
type Endpoints struct {
	BulkIn          uint8
	BulkOut         uint8
	InterfaceNumber uint8
}

// DeviceSummary is one entry of ListADBDevices' result.
type DeviceSummary struct {
	Bus       uint8  `json:"bus"`
	Address   uint8  `json:"address"`
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	HasADB    bool   `json:"has_adb"`
}

// OpenDevice is an exclusively-owned, claimed USB device. Callers must call
// Close exactly once, on every exit path, to release the claimed interface.
type OpenDevice interface {
	Endpoints() Endpoints
	BulkRead(endpoint uint8, buf []byte, timeout time.Duration) (int, error)
	BulkWrite(endpoint uint8, data []byte, timeout time.Duration) (int, error)
	Close() error
}
