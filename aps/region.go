package aps

// Region identifies one of the regional Data Management API deployments.
// A project and its items can live in either region, and regions are not
// knowable a priori: the gateway discovers them by probing and remembers the
// discovered region only as an optimization hint, never as ground truth.
type Region string

const (
	RegionUS   Region = "US"
	RegionEMEA Region = "EMEA"
)

// Regions is the fixed probe order for region discovery.
var Regions = []Region{RegionUS, RegionEMEA}

// tryOrder returns the regions to attempt, hint first, then the remaining
// supported regions in fixed order. An empty hint yields the fixed order.
func tryOrder(hint Region) []Region {
	if hint == "" {
		return Regions
	}
	order := make([]Region, 0, len(Regions))
	order = append(order, hint)
	for _, r := range Regions {
		if r != hint {
			order = append(order, r)
		}
	}
	return order
}
