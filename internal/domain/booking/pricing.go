package booking

// PricingStrategy defines the interface for calculating booking prices.
type PricingStrategy interface {
	// Calculate returns the price in paise for the given parameters.
	Calculate(params PricingParams) int64
}

// PricingParams holds the inputs for price calculation.
type PricingParams struct {
	PackageType     PackageType
	AddDisinfection bool
	AddMaintenance  bool
	AddRepair       bool
}

// ParamsFor extracts the pricing inputs from a service spec.
func ParamsFor(spec ServiceSpec) PricingParams {
	return PricingParams{
		PackageType:     spec.PackageType,
		AddDisinfection: spec.AddDisinfection,
		AddMaintenance:  spec.AddMaintenance,
		AddRepair:       spec.AddRepair,
	}
}

// StandardPricingStrategy implements the published tank-cleaning rate card.
type StandardPricingStrategy struct{}

// NewStandardPricingStrategy creates a new StandardPricingStrategy.
func NewStandardPricingStrategy() *StandardPricingStrategy {
	return &StandardPricingStrategy{}
}

// Calculate computes the price in paise.
//
// Pricing formula:
//   - Manual package: INR 1500 (150000 paise)
//   - Automated package: INR 2500 (250000 paise)
//   - Disinfection add-on: INR 500
//   - Maintenance add-on: INR 750
//   - Repair add-on: INR 1000
func (s *StandardPricingStrategy) Calculate(params PricingParams) int64 {
	return CalculateAmount(params.PackageType, params.AddDisinfection, params.AddMaintenance, params.AddRepair)
}

// CalculateAmount is deterministic. Anything other than automated is priced as manual.
func CalculateAmount(pkg PackageType, disinfection, maintenance, repair bool) int64 {
	var total int64 = 150000
	if pkg == PackageAutomated {
		total = 250000
	}
	if disinfection {
		total += 50000
	}
	if maintenance {
		total += 75000
	}
	if repair {
		total += 100000
	}
	return total
}
