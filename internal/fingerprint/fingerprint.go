// Package fingerprint derives a stable identifier for the local machine.
//
// The resolver walks a priority-ordered list of hardware descriptors
// (hostname, CPU identity, disk serial, MAC address), silently skipping any
// source the host does not expose, and hashes whatever it found. It never
// fails: when no hardware descriptor is discoverable it falls back to the
// platform and architecture strings, which are always available.
//
// The output is the first 32 hex characters of a SHA-256 digest. The
// truncation length is load-bearing: bindings stored by earlier releases
// were computed the same way, and changing it would orphan every activated
// license.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Length is the fixed length of a resolved fingerprint in hex characters.
const Length = 32

const componentSeparator = "|"

// Resolver produces the machine fingerprint. The value is computed once and
// reused for the lifetime of the process, so repeated calls are cheap and
// deterministic.
type Resolver struct {
	once   sync.Once
	cached string
	logger *slog.Logger
}

// NewResolver returns a Resolver logging through the given logger. A nil
// logger falls back to slog.Default.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger.With(slog.String("component", "fingerprint"))}
}

// Resolve returns the machine fingerprint. It never fails.
func (r *Resolver) Resolve() string {
	r.once.Do(func() {
		components := discoverComponents(r.logger)
		r.cached = fromComponents(components)
		r.logger.Debug("machine fingerprint resolved",
			slog.Int("components", len(components)),
			slog.String("fingerprint", r.cached),
		)
	})
	return r.cached
}

// fromComponents hashes discovered components in discovery order.
func fromComponents(components []string) string {
	combined := strings.Join(components, componentSeparator)
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])[:Length]
}

// discoverComponents collects hardware descriptors in priority order. A
// source that cannot be read is skipped, never fatal.
func discoverComponents(logger *slog.Logger) []string {
	var components []string

	if hostname, ok := machineName(); ok {
		components = append(components, hostname)
	}
	if cpu, ok := cpuIdentity(); ok {
		components = append(components, cpu)
	}
	if serial, ok := diskSerial(); ok {
		components = append(components, serial)
	}
	if mac, ok := primaryMAC(); ok {
		components = append(components, mac)
	}

	// Terminal fallback: platform strings are always available, so a
	// machine with no readable hardware sources still gets a fingerprint.
	if len(components) == 0 {
		logger.Warn("no hardware descriptors discoverable, using platform fallback",
			slog.String("os", runtime.GOOS),
			slog.String("arch", runtime.GOARCH),
		)
		components = append(components, runtime.GOARCH, runtime.GOOS)
	}

	return components
}

func machineName() (string, bool) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", false
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	return hostname, hostname != ""
}

// cpuIdentity reads a CPU descriptor where the OS exposes one.
func cpuIdentity() (string, bool) {
	switch runtime.GOOS {
	case "windows":
		if id := os.Getenv("PROCESSOR_IDENTIFIER"); id != "" {
			return id, true
		}
		return "", false
	case "linux":
		return cpuIdentityLinux()
	default:
		return "", false
	}
}

func cpuIdentityLinux() (string, bool) {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") || strings.HasPrefix(line, "Serial") {
			if _, value, found := strings.Cut(line, ":"); found {
				value = strings.TrimSpace(value)
				if value != "" {
					return value, true
				}
			}
		}
	}
	return "", false
}

// diskSerial reads the serial of the first block device that reports one.
// Only Linux exposes this without shelling out.
func diskSerial() (string, bool) {
	if runtime.GOOS != "linux" {
		return "", false
	}
	entries, err := os.ReadDir("/sys/block")
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
			continue
		}
		data, err := os.ReadFile("/sys/block/" + name + "/device/serial")
		if err != nil {
			continue
		}
		serial := strings.TrimSpace(string(data))
		if serial != "" {
			return serial, true
		}
	}
	return "", false
}

// primaryMAC returns the hardware address of the first up, non-loopback
// interface, falling back to any interface with an address.
func primaryMAC() (string, bool) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); validMAC(mac) {
			return mac, true
		}
	}
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); validMAC(mac) {
			return mac, true
		}
	}
	return "", false
}

func validMAC(mac string) bool {
	return mac != "" && mac != "00:00:00:00:00:00"
}
