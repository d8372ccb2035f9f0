package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

const (
	// StaleTimeout is how long an address stays listed without announcing
	StaleTimeout = 30 * time.Second
	// MaxDevices bounds the discovered set
	MaxDevices = 256
)

// Device is a discovered target.
type Device struct {
	protocol.Announcement
	Source string
	SeenAt time.Time
}

// DeviceSet holds discovered targets keyed by announced address. The first
// announcement for an address wins until the entry goes stale.
type DeviceSet struct {
	cache *expirable.LRU[string, Device]
	mu    sync.Mutex
}

// NewDeviceSet creates a set; ttl <= 0 disables expiry. onLeft, if non-nil,
// is called with the address of each expired entry.
func NewDeviceSet(size int, ttl time.Duration, onLeft func(address string)) *DeviceSet {
	if size <= 0 {
		size = MaxDevices
	}
	var evict expirable.EvictCallback[string, Device]
	if onLeft != nil {
		evict = func(key string, _ Device) { onLeft(key) }
	}
	return &DeviceSet{cache: expirable.NewLRU[string, Device](size, evict, ttl)}
}

// Add inserts dev and reports whether its address is new. For a known
// address the stored announcement is kept; only SeenAt and the expiry are
// refreshed, so a target that keeps announcing never goes stale.
func (s *DeviceSet) Add(dev Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.cache.Peek(dev.Address); ok {
		old.SeenAt = dev.SeenAt
		s.cache.Add(dev.Address, old)
		return false
	}
	s.cache.Add(dev.Address, dev)
	return true
}

// Get returns the device announced at address.
func (s *DeviceSet) Get(address string) (Device, bool) {
	return s.cache.Peek(address)
}

// Find looks a device up by address, origin id or display name.
func (s *DeviceSet) Find(key string) (Device, bool) {
	if dev, ok := s.cache.Peek(key); ok {
		return dev, true
	}
	for _, dev := range s.cache.Values() {
		if dev.OriginID == key || dev.DisplayName == key {
			return dev, true
		}
	}
	return Device{}, false
}

// List returns the devices sorted by address.
func (s *DeviceSet) List() []Device {
	devs := s.cache.Values()
	sort.Slice(devs, func(i, j int) bool { return devs[i].Address < devs[j].Address })
	return devs
}

// Len returns the number of devices.
func (s *DeviceSet) Len() int {
	return s.cache.Len()
}

// Clear forgets every device, like a manual refresh.
func (s *DeviceSet) Clear() {
	s.cache.Purge()
}
