// Package gpu builds an informational inventory of display adapters from the
// DRM class in sysfs. Telemetry itself comes from nvidia-smi; the inventory
// only describes which cards the host exposes.
package gpu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

const drmClassPath = "class/drm"

// Device describes one DRM card.
type Device struct {
	ID         string `json:"id"`
	PCI        string `json:"pci,omitempty"`
	PCIID      string `json:"pci_id,omitempty"`
	Vendor     Vendor `json:"vendor"`
	VendorName string `json:"vendor_name,omitempty"`
	Name       string `json:"name,omitempty"`
	Driver     string `json:"driver,omitempty"`
	RenderNode string `json:"render_node,omitempty"`
}

// Scan enumerates DRM cards under root (normally /sys), sorted by card ID.
// A missing DRM class yields an empty inventory, not an error.
func Scan(root string, logger *slog.Logger) ([]Device, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sysRoot, err := os.OpenRoot(root)
	if err != nil {
		return nil, fmt.Errorf("open sysfs root: %w", err)
	}
	defer sysRoot.Close()

	entries, err := fs.ReadDir(sysRoot.FS(), drmClassPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("drm class path missing", "path", filepath.Join(root, drmClassPath))
			return nil, nil
		}
		return nil, fmt.Errorf("read drm class dir: %w", err)
	}

	var devices []Device
	for _, entry := range entries {
		name := entry.Name()
		if !isCardName(name) {
			continue
		}
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		device, err := readCard(sysRoot, name)
		if err != nil {
			logger.Warn("skipping drm card", "card", name, "err", err)
			continue
		}
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool {
		return cardIndexLess(devices[i].ID, devices[j].ID)
	})
	return devices, nil
}

// Filter returns the devices made by vendor.
func Filter(devices []Device, vendor Vendor) []Device {
	var out []Device
	for _, device := range devices {
		if device.Vendor == vendor {
			out = append(out, device)
		}
	}
	return out
}

// isCardName accepts "card0" and rejects connectors such as "card0-DP-1".
func isCardName(name string) bool {
	rest, ok := strings.CutPrefix(name, "card")
	return ok && allDigits(rest)
}

func readCard(sysRoot *os.Root, cardID string) (Device, error) {
	deviceRoot, err := sysRoot.OpenRoot(filepath.Join(drmClassPath, cardID, "device"))
	if err != nil {
		return Device{}, fmt.Errorf("open device root: %w", err)
	}
	defer deviceRoot.Close()

	device := Device{ID: cardID}
	var subVendor, subDevice string

	if data, err := deviceRoot.ReadFile("uevent"); err == nil {
		uevent := parseUevent(string(data))
		device.PCI = uevent["PCI_SLOT_NAME"]
		device.PCIID = strings.ToLower(uevent["PCI_ID"])
		device.Driver = uevent["DRIVER"]
		if sub, ok := uevent["PCI_SUBSYS_ID"]; ok {
			subVendor, subDevice, _ = strings.Cut(sub, ":")
		}
	}

	if device.PCIID == "" {
		vendor, vendorErr := readTrim(deviceRoot, "vendor")
		product, productErr := readTrim(deviceRoot, "device")
		if vendorErr == nil && productErr == nil {
			device.PCIID = normalizePCIID(vendor) + ":" + normalizePCIID(product)
		}
	}
	if subVendor == "" {
		subVendor, _ = readTrim(deviceRoot, "subsystem_vendor")
	}
	if subDevice == "" {
		subDevice, _ = readTrim(deviceRoot, "subsystem_device")
	}

	vendorID, productID, _ := strings.Cut(device.PCIID, ":")
	device.Vendor = ClassifyVendor(vendorID)

	names := lookupNames(vendorID, productID, subVendor, subDevice)
	device.VendorName = names.vendor
	device.Name, _ = readTrim(deviceRoot, "product_name")
	if shouldUseResolvedName(device.Name, names.product) {
		device.Name = names.product
	}

	device.RenderNode = findRenderNode(deviceRoot)
	return device, nil
}

func findRenderNode(deviceRoot *os.Root) string {
	entries, err := fs.ReadDir(deviceRoot.FS(), "drm")
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "renderD") {
			return "/dev/dri/" + entry.Name()
		}
	}
	return ""
}

func parseUevent(data string) map[string]string {
	values := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return values
}

func readTrim(root *os.Root, name string) (string, error) {
	data, err := root.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func cardIndexLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
