package proof

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lcrostarosa/proofmode/internal/logging"
)

const deviceIDFile = "device-id"

// HostDevice reports metadata about the machine the process runs on.
type HostDevice struct {
	dir string

	once     sync.Once
	deviceID string
}

// NewHostDevice returns a device whose installation id is kept in dir.
func NewHostDevice(dir string) *HostDevice {
	return &HostDevice{dir: dir}
}

func localeFromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		return v
	}
	return ""
}

// Locale implements Device, e.g. "en_US".
func (h *HostDevice) Locale() string {
	return localeFromEnv()
}

// Language implements Device, e.g. "en".
func (h *HostDevice) Language() string {
	locale := localeFromEnv()
	if i := strings.IndexAny(locale, "_-"); i >= 0 {
		return locale[:i]
	}
	return locale
}

// DeviceID implements Device. The id is a random UUID generated once per
// installation.
func (h *HostDevice) DeviceID() string {
	h.once.Do(func() {
		path := filepath.Join(h.dir, deviceIDFile)
		if data, err := os.ReadFile(path); err == nil {
			if id, err := uuid.ParseBytes([]byte(strings.TrimSpace(string(data)))); err == nil {
				h.deviceID = id.String()
				return
			}
		}

		id := uuid.NewString()
		if err := os.MkdirAll(h.dir, 0700); err == nil {
			if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
				logging.Warn("Failed to persist device id", logging.Err(err))
			}
		}
		h.deviceID = id
	})
	return h.deviceID
}

// Hardware implements Device.
func (h *HostDevice) Hardware() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Manufacturer implements Device.
func (h *HostDevice) Manufacturer() string {
	data, err := os.ReadFile("/sys/class/dmi/id/sys_vendor")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ScreenSize implements Device. Hosts have no screen of their own.
func (h *HostDevice) ScreenSize() string {
	return ""
}

// Network implements Device using the first active non-loopback interface.
func (h *HostDevice) Network(ctx context.Context) NetworkInfo {
	ifaces, err := net.Interfaces()
	if err != nil {
		logging.Debug("Failed to list network interfaces", logging.Err(err))
		return NetworkInfo{}
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		info := NetworkInfo{
			WifiMAC:     iface.HardwareAddr.String(),
			Network:     iface.Name,
			NetworkType: interfaceType(iface.Name),
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				if info.IPv4 == "" {
					info.IPv4 = ip4.String()
				}
			} else if info.IPv6 == "" {
				info.IPv6 = ipnet.IP.String()
			}
		}
		if info.IPv4 == "" && info.IPv6 == "" {
			continue
		}
		return info
	}
	return NetworkInfo{}
}

func interfaceType(name string) string {
	switch {
	case strings.HasPrefix(name, "wl"):
		return "wifi"
	case strings.HasPrefix(name, "ww"):
		return "cellular"
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return "ethernet"
	default:
		return "other"
	}
}
