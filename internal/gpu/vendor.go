package gpu

// Vendor classifies a display adapter by its PCI vendor ID.
type Vendor string

const (
	VendorNVIDIA  Vendor = "nvidia"
	VendorAMD     Vendor = "amd"
	VendorIntel   Vendor = "intel"
	VendorUnknown Vendor = "unknown"
)

var vendorIDs = map[string]Vendor{
	"10de": VendorNVIDIA,
	"1002": VendorAMD,
	"1022": VendorAMD,
	"8086": VendorIntel,
}

// ClassifyVendor maps a PCI vendor ID such as "0x10de" to a Vendor.
func ClassifyVendor(vendorID string) Vendor {
	if vendor, ok := vendorIDs[normalizePCIID(vendorID)]; ok {
		return vendor
	}
	return VendorUnknown
}
