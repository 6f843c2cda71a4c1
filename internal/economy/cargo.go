package economy

// Commodity identifies a tradeable cargo class.
type Commodity uint8

const (
	CommodityElectronics Commodity = iota
	CommodityTextiles
	CommodityMachinery
	CommodityRawMaterials
	CommodityFuel
	CommodityLuxury
)

var commodityNames = [...]string{
	"electronics",
	"textiles",
	"machinery",
	"raw_materials",
	"fuel",
	"luxury",
}

// String returns the wire/storage name of the commodity.
func (c Commodity) String() string {
	if int(c) < len(commodityNames) {
		return commodityNames[c]
	}
	return "unknown"
}

// CommodityFromString maps a wire/storage name back to a Commodity.
func CommodityFromString(name string) (Commodity, bool) {
	for i, n := range commodityNames {
		if n == name {
			return Commodity(i), true
		}
	}
	return 0, false
}

// CargoLot is one empire's holding of a single commodity. Merging purchases
// keeps UnitPrice as the quantity-weighted average cost basis.
type CargoLot struct {
	Commodity Commodity `json:"commodity"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}

// AddCargo merges a purchase into the empire's holdings. An existing lot of
// the same commodity recomputes its price as the quantity-weighted average;
// otherwise a new lot is created.
func (e *Empire) AddCargo(c Commodity, qty int, unitPrice float64) error {
	if qty <= 0 || unitPrice < 0 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	lot, ok := e.Cargo[c]
	if !ok {
		e.Cargo[c] = &CargoLot{Commodity: c, Quantity: qty, UnitPrice: unitPrice}
		return nil
	}

	oldQty := float64(lot.Quantity)
	newQty := float64(qty)
	lot.UnitPrice = (oldQty*lot.UnitPrice + newQty*unitPrice) / (oldQty + newQty)
	lot.Quantity += qty
	return nil
}

// RemoveCargo decrements a holding, deleting the lot entry at zero. Requesting
// more than held returns ErrInvalidQuantity with no change.
func (e *Empire) RemoveCargo(c Commodity, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	lot, ok := e.Cargo[c]
	if !ok || lot.Quantity < qty {
		return ErrInvalidQuantity
	}

	lot.Quantity -= qty
	if lot.Quantity == 0 {
		delete(e.Cargo, c)
	}
	return nil
}

// CargoQuantity returns how many units of a commodity the empire holds.
func (e *Empire) CargoQuantity(c Commodity) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lot, ok := e.Cargo[c]; ok {
		return lot.Quantity
	}
	return 0
}

// LotUnitPrice returns the weighted-average cost basis for a held commodity.
func (e *Empire) LotUnitPrice(c Commodity) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lot, ok := e.Cargo[c]; ok {
		return lot.UnitPrice, true
	}
	return 0, false
}

// CargoValue returns the cost-basis value of all cargo held.
func (e *Empire) CargoValue() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var total float64
	for _, lot := range e.Cargo {
		total += float64(lot.Quantity) * lot.UnitPrice
	}
	return total
}
