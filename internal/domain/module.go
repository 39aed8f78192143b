package domain

import (
	"fmt"

	"github.com/fieldcrm/crm-api/internal/billing"
)

// ModuleTables binds the per-module entities to their table names
type ModuleTables struct {
	Orders              string
	OrderWorkCodes      string
	OrderSettlements    string
	RateDefinitions     string
	Warehouse           string
	WarehouseHistory    string
	MaterialDefinitions string
}

// ModuleDescriptor parameterizes the order and warehouse engine for one module
type ModuleDescriptor struct {
	Code           ModuleCode
	Name           string
	Tables         ModuleTables
	OrderTypes     []OrderType
	BillableTypes  []OrderType
	FailureReasons []string
	// Billing classifies work codes into a draft. Nil means every reported code is
	// billed directly against its rate definition.
	Billing *billing.Catalog
}

// HasOrderType reports whether t is an order type of the module
func (d *ModuleDescriptor) HasOrderType(t OrderType) bool {
	for _, ot := range d.OrderTypes {
		if ot == t {
			return true
		}
	}
	return false
}

// IsBillable reports whether completing an order of type t requires work codes
func (d *ModuleDescriptor) IsBillable(t OrderType) bool {
	for _, bt := range d.BillableTypes {
		if bt == t {
			return true
		}
	}
	return false
}

// IsFailureReason reports whether reason belongs to the fixed failure set
func (d *ModuleDescriptor) IsFailureReason(reason string) bool {
	for _, r := range d.FailureReasons {
		if r == reason {
			return true
		}
	}
	return false
}

func tablesFor(code ModuleCode) ModuleTables {
	prefix := string(code) + "_"
	return ModuleTables{
		Orders:              prefix + "orders",
		OrderWorkCodes:      prefix + "order_work_codes",
		OrderSettlements:    prefix + "order_settlements",
		RateDefinitions:     prefix + "rate_definitions",
		Warehouse:           prefix + "warehouse",
		WarehouseHistory:    prefix + "warehouse_history",
		MaterialDefinitions: prefix + "material_definitions",
	}
}

var vectraModule = &ModuleDescriptor{
	Code:          ModuleVectra,
	Name:          "Vectra CRM",
	Tables:        tablesFor(ModuleVectra),
	OrderTypes:    []OrderType{OrderTypeInstallation, OrderTypeService, OrderTypeOutage},
	BillableTypes: []OrderType{OrderTypeInstallation, OrderTypeService},
	FailureReasons: []string{
		"CLIENT_ABSENT",
		"CLIENT_CANCELLED",
		"NO_SIGNAL",
		"INSTALLATION_NOT_POSSIBLE",
		"MISSING_EQUIPMENT",
		"OTHER",
	},
}

var oplModule = &ModuleDescriptor{
	Code:          ModuleOPL,
	Name:          "OPL CRM",
	Tables:        tablesFor(ModuleOPL),
	OrderTypes:    []OrderType{OrderTypeInstallation, OrderTypeService, OrderTypeOutage},
	BillableTypes: []OrderType{OrderTypeInstallation, OrderTypeService},
	FailureReasons: []string{
		"CLIENT_ABSENT",
		"CLIENT_REFUSED",
		"NO_TECHNICAL_CONDITIONS",
		"NO_ACCESS_TO_BUILDING",
		"MISSING_EQUIPMENT",
		"OTHER",
	},
	Billing: billing.NewCatalog(
		[]string{"W1", "W2", "W3", "W4", "W5", "W6", "P1P", "P2P", "P3P", "PUTD", "DU"},
		[]string{"I_1P", "I_2P", "I_3P"},
		[]string{"DMR", "PKU", "ZJD", "ZJK", "ZJN", "ND", "UMZ"},
	),
}

// Modules returns the descriptors of modules that own order and warehouse tables
func Modules() []*ModuleDescriptor {
	return []*ModuleDescriptor{vectraModule, oplModule}
}

// LookupModule returns the descriptor for code
func LookupModule(code ModuleCode) (*ModuleDescriptor, error) {
	for _, m := range Modules() {
		if m.Code == code {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown module: %s", code)
}

// ModuleNames maps every module code, including ones without tables, to its display name
var ModuleNames = map[ModuleCode]string{
	ModuleVectra: "Vectra CRM",
	ModuleOPL:    "OPL CRM",
	ModuleHR:     "HR",
}
