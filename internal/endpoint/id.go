// Package endpoint tracks the inferred server-side rate-limit state of one
// node in the region -> service -> method namespace of a tiered HTTP API,
// and derives admission decisions from it.
package endpoint

import "fmt"

// Region identifies a top-level platform endpoint, e.g. na1.
type Region int

const (
	RegionNA1 Region = iota
	regionCount
)

func (r Region) String() string {
	switch r {
	case RegionNA1:
		return "na1"
	default:
		return fmt.Sprintf("region(%d)", int(r))
	}
}

// ParseRegion maps a lowercase platform code to a Region.
func ParseRegion(s string) (Region, error) {
	switch s {
	case "na1":
		return RegionNA1, nil
	default:
		return 0, fmt.Errorf("endpoint: unknown region %q", s)
	}
}

// Service identifies a service hosted under a region, e.g. summoner-v4.
type Service int

const (
	ServiceSummonerV4 Service = iota
	ServiceMatchV4
	serviceCount
)

func (s Service) String() string {
	switch s {
	case ServiceSummonerV4:
		return "summoner-v4"
	case ServiceMatchV4:
		return "match-v4"
	default:
		return fmt.Sprintf("service(%d)", int(s))
	}
}

// maxMethodsPerService bounds how many method ids a single service may
// reserve in the flat id space below. Each service numbers its own methods
// from zero, so this must exceed the largest method enum in use.
const maxMethodsPerService = 128

// tier tags which layer of the namespace an Id belongs to.
type tier int

const (
	tierRegion tier = iota
	tierService
	tierMethod
)

// Id is a compact, comparable, hashable identifier for one node in the
// region/service/method namespace. Values are packed into disjoint integer
// ranges (regions, then services, then methods) so a single flat map can
// back the EndpointTable while still expressing the hierarchy.
type Id struct {
	value int
	tier  tier
}

const (
	regionBase = 0
	serviceBase = regionBase + int(regionCount)
	methodBase  = serviceBase + int(regionCount)*int(serviceCount)
)

// RegionID returns the Id for a region endpoint.
func RegionID(r Region) Id {
	return Id{value: regionBase + int(r), tier: tierRegion}
}

// ServiceID returns the Id for a (region, service) endpoint. Services carry
// no distinct rate-limit headers of their own (see spec Open Questions) but
// still participate in the status machine, so they need an identity.
func ServiceID(r Region, s Service) Id {
	return Id{value: serviceBase + int(r)*int(serviceCount) + int(s), tier: tierService}
}

// MethodID returns the Id for a (service, method) endpoint. methodID is the
// service-local method enumeration value (each service numbers its own
// methods starting at zero).
func MethodID(s Service, methodID uint32) Id {
	if int(methodID) >= maxMethodsPerService {
		panic(fmt.Sprintf("endpoint: method id %d exceeds maxMethodsPerService", methodID))
	}
	return Id{value: methodBase + int(s)*maxMethodsPerService + int(methodID), tier: tierMethod}
}

// IsRegion reports whether id identifies a region endpoint.
func (id Id) IsRegion() bool { return id.tier == tierRegion }

// IsService reports whether id identifies a service endpoint.
func (id Id) IsService() bool { return id.tier == tierService }

// IsMethod reports whether id identifies a method endpoint.
func (id Id) IsMethod() bool { return id.tier == tierMethod }

func (id Id) String() string {
	switch id.tier {
	case tierRegion:
		return fmt.Sprintf("region#%d", id.value)
	case tierService:
		return fmt.Sprintf("service#%d", id.value)
	default:
		return fmt.Sprintf("method#%d", id.value)
	}
}
