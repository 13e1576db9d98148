package models

import (
	"time"
)

// InterventionType names what kind of outreach a risk level calls for.
type InterventionType string

const (
	// InterventionGentleCheckin is a light-touch check-in for low risk.
	InterventionGentleCheckin InterventionType = "gentle_checkin"
	// InterventionSupportive is a supportive message with suggestions for moderate risk.
	InterventionSupportive InterventionType = "supportive_outreach"
	// InterventionPriority is a priority outreach with coping activities for high risk.
	InterventionPriority InterventionType = "priority_outreach"
	// InterventionCrisis is a crisis-resource outreach plus operator alert for critical risk.
	InterventionCrisis InterventionType = "crisis_support"
)

// InterventionTypeFor derives the intervention type from a risk level.
// Minimal risk has no intervention type.
func InterventionTypeFor(level RiskLevel) InterventionType {
	switch level {
	case RiskLow:
		return InterventionGentleCheckin
	case RiskModerate:
		return InterventionSupportive
	case RiskHigh:
		return InterventionPriority
	case RiskCritical:
		return InterventionCrisis
	default:
		return ""
	}
}

// Delivery channels recorded on an Intervention.
const (
	ChannelProactiveCheckin = "proactive_checkin"
	ChannelCopingActivities = "coping_activities"
	ChannelOperatorAlert    = "operator_alert"
)

// Intervention is a logged proactive outreach. UserResponded is the only field
// updated after creation.
type Intervention struct {
	ID            string           `json:"interventionId"`
	UserID        string           `json:"userId"`
	Timestamp     time.Time        `json:"timestamp"`
	RiskLevel     RiskLevel        `json:"riskLevel"`
	RiskScore     float64          `json:"riskScore"`
	RiskFactors   []string         `json:"riskFactors"`
	Message       string           `json:"messageGenerated"`
	Type          InterventionType `json:"interventionType"`
	Channels      []string         `json:"interventionTypes"`
	UserResponded bool             `json:"userResponded"`
	ExpiresAt     time.Time        `json:"expiresAt"`
}

// UserProfile is the read-only slice of a user's profile the companion needs.
type UserProfile struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	PetName     string `json:"petName"`
	Personality string `json:"personality"`
}

// Profile defaults used when a profile is missing or incomplete.
const (
	DefaultPetName     = "Mind Mate"
	DefaultUserName    = "friend"
	DefaultPersonality = "gentle"
)

// WithDefaults fills unset profile fields with their documented defaults.
func (p UserProfile) WithDefaults() UserProfile {
	if p.PetName == "" {
		p.PetName = DefaultPetName
	}
	if p.UserName == "" {
		p.UserName = DefaultUserName
	}
	if p.Personality == "" {
		p.Personality = DefaultPersonality
	}
	return p
}
