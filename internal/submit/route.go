// Package submit signs execution candidates and sends them over the direct RPC
// path or as a tipped Jito bundle.
package submit

import "solana-sniper/internal/domain"

// Policy decides which urgencies are worth a bundle tip.
type Policy struct {
	BundleEnabled    bool
	BundleMinUrgency domain.Urgency
}

// SelectRoute picks the submission route for one dispatch.
func SelectRoute(p Policy, u domain.Urgency) domain.Route {
	if p.BundleEnabled && u >= p.BundleMinUrgency {
		return domain.RouteBundle
	}
	return domain.RouteDirect
}
