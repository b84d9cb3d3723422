// Package relief holds the off-chain disaster-zone knowledge the oracle
// consults before anything touches the ledger: which zones are active, whether
// a claimant is inside one, and the evaluation gate for incoming aid requests.
//
// The deliberation that turns an in-zone request into a verdict is an
// external collaborator; this package only defines the Arbiter seam and a
// static default.
package relief

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Zone is a known disaster area with an emergency radius.
type Zone struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lon"`
	RadiusKM float64 `json:"radius"`
}

// DefaultZones seeds the service when no feed is configured.
func DefaultZones() []Zone {
	return []Zone{
		{ID: "d1", Name: "Valencia Flood", Lat: 39.4699, Lng: -0.3763, RadiusKM: 30},
		{ID: "d2", Name: "California Wildfire", Lat: 34.0522, Lng: -118.2437, RadiusKM: 50},
		{ID: "d3", Name: "Oxford Flash Flood", Lat: 51.7534, Lng: -1.2540, RadiusKM: 100},
	}
}

// Proximity describes the closest in-radius zone for a coordinate.
type Proximity struct {
	Zone       Zone    `json:"disaster"`
	DistanceKM float64 `json:"distance_km"`
}

// Verdict is the outcome of an evaluation.
type Verdict string

const (
	VerdictValid    Verdict = "VALID"
	VerdictModified Verdict = "MODIFIED"
	VerdictDeclined Verdict = "DECLINED"
)

// AidRequest is an incoming request to evaluate.
type AidRequest struct {
	ZoneID      string  `json:"disaster_id"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	AidType     string  `json:"aid_type,omitempty"`
}

// Evaluation is the gate's result for one request.
type Evaluation struct {
	ID         string  `json:"evaluation_id"`
	Verdict    Verdict `json:"verdict"`
	Reason     string  `json:"reason,omitempty"`
	DistanceKM float64 `json:"distance_km"`
}

// Arbiter supplies the deliberation verdict for an in-zone request. The
// content of that deliberation lives outside this service.
type Arbiter interface {
	Deliberate(ctx context.Context, req AidRequest, zone Zone) (Verdict, string, error)
}

// StaticArbiter approves every in-zone request. It stands in where no
// deliberation pipeline is wired.
type StaticArbiter struct{}

func (StaticArbiter) Deliberate(_ context.Context, _ AidRequest, _ Zone) (Verdict, string, error) {
	return VerdictValid, "", nil
}

// Service answers zone, proximity, and evaluation queries. Zones are
// replaceable at runtime by the feed poller.
type Service struct {
	mu      sync.RWMutex
	zones   []Zone
	arbiter Arbiter
	logger  *zap.Logger
}

// NewService creates a Service with the given zones; nil arbiter means the
// static default.
func NewService(zones []Zone, arbiter Arbiter, logger *zap.Logger) *Service {
	if arbiter == nil {
		arbiter = StaticArbiter{}
	}
	return &Service{zones: zones, arbiter: arbiter, logger: logger}
}

// Zones returns the current zone list.
func (s *Service) Zones() []Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Zone, len(s.zones))
	copy(out, s.zones)
	return out
}

// SetZones replaces the zone list.
func (s *Service) SetZones(zones []Zone) {
	s.mu.Lock()
	s.zones = zones
	s.mu.Unlock()
}

// Nearby returns the closest zone whose radius contains the coordinate, or
// ok=false when the coordinate is outside every zone.
func (s *Service) Nearby(lat, lng float64) (Proximity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		closest  Zone
		bestDist = -1.0
	)
	for _, z := range s.zones {
		d := DistanceKM(lat, lng, z.Lat, z.Lng)
		if d <= z.RadiusKM && (bestDist < 0 || d < bestDist) {
			closest = z
			bestDist = d
		}
	}
	if bestDist < 0 {
		return Proximity{}, false
	}
	return Proximity{Zone: closest, DistanceKM: bestDist}, true
}

// Evaluate applies the spatial gate and, for in-zone requests, the arbiter
// verdict. An unknown zone id is an error; a claimant outside the zone's
// radius is declined without deliberation.
func (s *Service) Evaluate(ctx context.Context, req AidRequest) (Evaluation, error) {
	s.mu.RLock()
	var zone *Zone
	for i := range s.zones {
		if s.zones[i].ID == req.ZoneID {
			zone = &s.zones[i]
			break
		}
	}
	s.mu.RUnlock()

	if zone == nil {
		return Evaluation{}, fmt.Errorf("unknown disaster zone %q", req.ZoneID)
	}

	eval := Evaluation{
		ID:         uuid.NewString(),
		DistanceKM: DistanceKM(req.Lat, req.Lng, zone.Lat, zone.Lng),
	}
	if eval.DistanceKM > zone.RadiusKM {
		eval.Verdict = VerdictDeclined
		eval.Reason = fmt.Sprintf("claimant is %.0fkm away, outside the %.0fkm emergency zone",
			eval.DistanceKM, zone.RadiusKM)
		return eval, nil
	}

	verdict, reason, err := s.arbiter.Deliberate(ctx, req, *zone)
	if err != nil {
		return Evaluation{}, fmt.Errorf("deliberation: %w", err)
	}
	eval.Verdict = verdict
	eval.Reason = reason
	return eval, nil
}
