package models

import "time"

// ServiceType is the closed set of bookable service shapes. Materialization,
// completion sweeps and room eligibility all dispatch on it exhaustively.
type ServiceType string

const (
	ServiceTypeSession  ServiceType = "session"
	ServiceTypeWorkshop ServiceType = "workshop"
	ServiceTypeCourse   ServiceType = "course"
	ServiceTypePackage  ServiceType = "package"
	ServiceTypeBundle   ServiceType = "bundle"
)

// ParseServiceType maps a raw tag to a known service type.
func ParseServiceType(s string) (ServiceType, bool) {
	switch ServiceType(s) {
	case ServiceTypeSession, ServiceTypeWorkshop, ServiceTypeCourse,
		ServiceTypePackage, ServiceTypeBundle:
		return ServiceType(s), true
	}
	return "", false
}

// LocationMode describes where a service is delivered. Virtual and hybrid
// services get a session room created for them.
type LocationMode string

const (
	LocationVirtual  LocationMode = "virtual"
	LocationInPerson LocationMode = "in_person"
	LocationHybrid   LocationMode = "hybrid"
)

// NeedsRoom reports whether a service delivered in this mode requires a
// real-time session room.
func (m LocationMode) NeedsRoom() bool {
	return m == LocationVirtual || m == LocationHybrid
}

// PackageItemSpec describes one sub-service included in a package, as listed
// on the catalogue Service.
type PackageItemSpec struct {
	ServiceID       string `bson:"serviceId" json:"serviceId"`
	Name            string `bson:"name" json:"name"`
	Quantity        int    `bson:"quantity" json:"quantity"`
	DurationMinutes int    `bson:"durationMinutes" json:"durationMinutes"`
}

// PackageItemSnapshot is the per-booking copy of a package item.
type PackageItemSnapshot struct {
	ServiceID       string `bson:"serviceId" json:"serviceId"`
	Name            string `bson:"name" json:"name"`
	Quantity        int    `bson:"quantity" json:"quantity"`
	DurationMinutes int    `bson:"durationMinutes" json:"durationMinutes"`
}

// Service is the catalogue entry a booking snapshots from.
type Service struct {
	ID               string            `bson:"id" json:"id"`
	PractitionerID   string            `bson:"practitionerId" json:"practitionerId"`
	PractitionerName string            `bson:"practitionerName" json:"practitionerName"`
	Name             string            `bson:"name" json:"name"`
	Description      string            `bson:"description" json:"description"`
	Type             ServiceType       `bson:"type" json:"type"`
	LocationMode     LocationMode      `bson:"locationMode" json:"locationMode"`
	DurationMinutes  int               `bson:"durationMinutes" json:"durationMinutes"`
	PriceCents       int64             `bson:"priceCents" json:"priceCents"`
	CommissionRate   float64           `bson:"commissionRate" json:"commissionRate"`
	MaxParticipants  int               `bson:"maxParticipants,omitempty" json:"maxParticipants,omitempty"`
	BundleCredits    int               `bson:"bundleCredits,omitempty" json:"bundleCredits,omitempty"`
	PackageItems     []PackageItemSpec `bson:"packageItems,omitempty" json:"packageItems,omitempty"`
}

// Snapshot freezes the catalogue fields a booking must retain.
func (s *Service) Snapshot() ServiceSnapshot {
	snap := ServiceSnapshot{
		ServiceID:        s.ID,
		Name:             s.Name,
		Description:      s.Description,
		DurationMinutes:  s.DurationMinutes,
		PractitionerName: s.PractitionerName,
		Type:             s.Type,
		LocationMode:     s.LocationMode,
		CommissionRate:   s.CommissionRate,
	}
	for _, it := range s.PackageItems {
		snap.PackageItems = append(snap.PackageItems, PackageItemSnapshot(it))
	}
	return snap
}

// ClassSession is the fixed class-time entity shared by all attendees of a
// workshop or one meeting of a course.
type ClassSession struct {
	ID              string    `bson:"id" json:"id"`
	ServiceID       string    `bson:"serviceId" json:"serviceId"`
	PractitionerID  string    `bson:"practitionerId" json:"practitionerId"`
	StartTime       time.Time `bson:"startTime" json:"startTime"`
	EndTime         time.Time `bson:"endTime" json:"endTime"`
	RoomID          string    `bson:"roomId,omitempty" json:"roomId,omitempty"`
	MaxParticipants int       `bson:"maxParticipants,omitempty" json:"maxParticipants,omitempty"`
}
