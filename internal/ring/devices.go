package ring

import (
	"errors"
	"fmt"
	"sort"
)

// ErrIdentifierConflict is returned when a device's identifiers cannot be
// told apart or collide with another device
var ErrIdentifierConflict = errors.New("ring: conflicting device identifiers")

// DeviceIndex maps the platform-facing UniqueID to devices. Several devices
// can share one API id (e.g. a doorbell and its chime on the same account in
// some fixtures), so lookups always go through the UniqueID.
type DeviceIndex struct {
	byUnique map[UniqueID]Device
	byAPIID  map[DeviceID][]UniqueID
	order    []UniqueID
}

// NewDeviceIndex builds an index. It rejects devices without a UniqueID,
// duplicate UniqueIDs, and UniqueIDs equal to the API id in decimal form.
func NewDeviceIndex(devices []Device) (*DeviceIndex, error) {
	ix := &DeviceIndex{
		byUnique: make(map[UniqueID]Device, len(devices)),
		byAPIID:  make(map[DeviceID][]UniqueID),
	}

	for _, device := range devices {
		unique := device.UniqueID()
		if unique == "" {
			return nil, fmt.Errorf("%w: device %s has no device_id", ErrIdentifierConflict, device.ID)
		}
		if string(unique) == device.ID.String() {
			return nil, fmt.Errorf("%w: device_id %q equals api id", ErrIdentifierConflict, unique)
		}
		if _, exists := ix.byUnique[unique]; exists {
			return nil, fmt.Errorf("%w: duplicate device_id %q", ErrIdentifierConflict, unique)
		}

		ix.byUnique[unique] = device
		ix.byAPIID[device.ID] = append(ix.byAPIID[device.ID], unique)
		ix.order = append(ix.order, unique)
	}

	return ix, nil
}

// Len returns the number of indexed devices
func (ix *DeviceIndex) Len() int {
	return len(ix.order)
}

// Devices returns the devices in the order they were indexed
func (ix *DeviceIndex) Devices() []Device {
	devices := make([]Device, 0, len(ix.order))
	for _, unique := range ix.order {
		devices = append(devices, ix.byUnique[unique])
	}
	return devices
}

// Lookup returns the device with the given UniqueID
func (ix *DeviceIndex) Lookup(unique UniqueID) (Device, bool) {
	device, ok := ix.byUnique[unique]
	return device, ok
}

// APIID converts a UniqueID into the id used in API paths
func (ix *DeviceIndex) APIID(unique UniqueID) (DeviceID, error) {
	device, ok := ix.byUnique[unique]
	if !ok {
		return 0, fmt.Errorf("%w: device %q", ErrNotFound, unique)
	}
	return device.ID, nil
}

// UniqueIDs returns every UniqueID registered under an API id, sorted
func (ix *DeviceIndex) UniqueIDs(id DeviceID) []UniqueID {
	uniques := append([]UniqueID(nil), ix.byAPIID[id]...)
	sort.Slice(uniques, func(i, j int) bool { return uniques[i] < uniques[j] })
	return uniques
}

// ForDing resolves the devices a ding may belong to. Dings only carry the
// API id, so the description is used to narrow down shared ids.
func (ix *DeviceIndex) ForDing(ding Ding) []Device {
	var matches []Device
	for _, unique := range ix.byAPIID[ding.DoorbotID] {
		device := ix.byUnique[unique]
		if device.Family == FamilyChimes {
			continue
		}
		matches = append(matches, device)
	}

	if len(matches) <= 1 || ding.DoorbotDescription == "" {
		return matches
	}

	for _, device := range matches {
		if device.Description == ding.DoorbotDescription {
			return []Device{device}
		}
	}
	return matches
}
