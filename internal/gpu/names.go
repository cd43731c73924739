package gpu

import (
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"
)

var (
	pciOnce sync.Once
	pciDB   *pcidb.PCIDB
)

type resolvedNames struct {
	vendor  string
	product string
}

// lookupNames resolves marketing names from the pci.ids database. Missing
// database or unknown IDs give empty names.
func lookupNames(vendorID, productID, subVendorID, subDeviceID string) resolvedNames {
	vendorID = normalizePCIID(vendorID)
	productID = normalizePCIID(productID)
	if vendorID == "" {
		return resolvedNames{}
	}

	db := loadPCIDatabase()
	if db == nil {
		return resolvedNames{}
	}

	var names resolvedNames
	if vendor, ok := db.Vendors[vendorID]; ok && vendor != nil {
		names.vendor = vendor.Name
	}
	if productID == "" {
		return names
	}

	product, ok := db.Products[vendorID+productID]
	if !ok || product == nil {
		return names
	}
	names.product = product.Name

	subVendorID = normalizePCIID(subVendorID)
	subDeviceID = normalizePCIID(subDeviceID)
	if subVendorID == "" || subDeviceID == "" {
		return names
	}
	for _, subsystem := range product.Subsystems {
		if subsystem == nil || subsystem.Name == "" {
			continue
		}
		if strings.EqualFold(subsystem.VendorID, subVendorID) && strings.EqualFold(subsystem.ID, subDeviceID) {
			names.product = subsystem.Name
			break
		}
	}
	return names
}

func loadPCIDatabase() *pcidb.PCIDB {
	pciOnce.Do(func() {
		db, err := pcidb.New()
		if err == nil {
			pciDB = db
		}
	})
	return pciDB
}

func normalizePCIID(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimPrefix(value, "0x")
	if value == "" {
		return ""
	}
	if len(value) < 4 {
		value = strings.Repeat("0", 4-len(value)) + value
	}
	return value
}

// shouldUseResolvedName prefers the database name over driver-provided
// placeholders.
func shouldUseResolvedName(current, resolved string) bool {
	if resolved == "" {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(current))
	switch lower {
	case "", "nvidia", "nouveau", "amdgpu", "radeon", "i915", "xe", "unknown":
		return true
	}
	return strings.HasPrefix(lower, "pci device") || strings.HasPrefix(lower, "0x")
}
