package models

import (
	"strings"
	"time"
)

// RecordKind discriminates the payload carried by an InteractionRecord.
type RecordKind string

const (
	// RecordKindMood is a self-reported mood rating with optional notes.
	RecordKindMood RecordKind = "mood"
	// RecordKindChat is one chat exchange between the user and the companion.
	RecordKindChat RecordKind = "chat"
	// RecordKindSelfie holds emotion labels derived from an uploaded image.
	RecordKindSelfie RecordKind = "selfie"
)

// IsValidRecordKind checks if the given record kind is supported.
func IsValidRecordKind(k RecordKind) bool {
	switch k {
	case RecordKindMood, RecordKindChat, RecordKindSelfie:
		return true
	default:
		return false
	}
}

// MessageOrigin distinguishes user-authored chat turns from messages the
// companion pushes on its own initiative.
type MessageOrigin string

const (
	OriginUser      MessageOrigin = "user"
	OriginCompanion MessageOrigin = "companion"
)

// MoodLog is a single mood check-in.
type MoodLog struct {
	Mood  int      `json:"mood"`
	Notes string   `json:"notes,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// ChatTurn is one chat exchange. Response text is opaque to the risk pipeline.
type ChatTurn struct {
	UserMessage   string        `json:"userMessage,omitempty"`
	Response      string        `json:"response,omitempty"`
	WellnessScore *float64      `json:"wellnessScore,omitempty"`
	Origin        MessageOrigin `json:"origin,omitempty"`
	Priority      string        `json:"priority,omitempty"`
}

// IsUserAuthored reports whether the turn carries text the user wrote.
func (c *ChatTurn) IsUserAuthored() bool {
	return c != nil && c.Origin != OriginCompanion && strings.TrimSpace(c.UserMessage) != ""
}

// EmotionLabel is one (label, confidence) pair from image analysis.
type EmotionLabel struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0-100
}

// SelfieEmotion holds the top emotion labels for an uploaded image.
type SelfieEmotion struct {
	Emotions []EmotionLabel `json:"emotions"`
}

// InteractionRecord is a timestamped, append-only record owned by one user.
// Exactly one of Mood, Chat or Selfie is set, matching Kind.
type InteractionRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Kind      RecordKind     `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Mood      *MoodLog       `json:"mood,omitempty"`
	Chat      *ChatTurn      `json:"chat,omitempty"`
	Selfie    *SelfieEmotion `json:"selfie,omitempty"`
}

// Validate performs validation on an InteractionRecord before it is appended.
func (r *InteractionRecord) Validate() error {
	if err := ValidateUserID(r.UserID); err != nil {
		return err
	}
	if !IsValidRecordKind(r.Kind) {
		return ErrUnknownRecordKind
	}
	if r.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}

	switch r.Kind {
	case RecordKindMood:
		return r.validateMood()
	case RecordKindChat:
		return r.validateChat()
	case RecordKindSelfie:
		return r.validateSelfie()
	}
	return nil
}

func (r *InteractionRecord) validateMood() error {
	if r.Mood == nil || r.Chat != nil || r.Selfie != nil {
		return ErrMissingPayload
	}
	if r.Mood.Mood < MinMood || r.Mood.Mood > MaxMood {
		return ErrInvalidMood
	}
	if len(r.Mood.Notes) > MaxNotesLength {
		return ErrTextTooLong
	}
	return nil
}

func (r *InteractionRecord) validateChat() error {
	if r.Chat == nil || r.Mood != nil || r.Selfie != nil {
		return ErrMissingPayload
	}
	if r.Chat.UserMessage == "" && r.Chat.Response == "" {
		return ErrEmptyMessage
	}
	if len(r.Chat.UserMessage) > MaxNotesLength {
		return ErrTextTooLong
	}
	return nil
}

func (r *InteractionRecord) validateSelfie() error {
	if r.Selfie == nil || r.Mood != nil || r.Chat != nil {
		return ErrMissingPayload
	}
	if len(r.Selfie.Emotions) == 0 {
		return ErrNoEmotions
	}
	for _, e := range r.Selfie.Emotions {
		if e.Confidence < 0 || e.Confidence > 100 {
			return ErrInvalidConfidence
		}
	}
	return nil
}

// TopEmotions returns the highest-confidence labels, at most MaxSelfieEmotions.
func TopEmotions(emotions []EmotionLabel) []EmotionLabel {
	out := make([]EmotionLabel, len(emotions))
	copy(out, emotions)
	// insertion sort, the input is a handful of labels
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Confidence > out[j-1].Confidence; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > MaxSelfieEmotions {
		out = out[:MaxSelfieEmotions]
	}
	return out
}

// Text returns the user-authored text of a record, if any: mood notes or the
// user side of a chat turn.
func (r *InteractionRecord) Text() string {
	switch r.Kind {
	case RecordKindMood:
		if r.Mood != nil {
			return r.Mood.Notes
		}
	case RecordKindChat:
		if r.Chat.IsUserAuthored() {
			return r.Chat.UserMessage
		}
	}
	return ""
}

// TimeRange bounds a record query. A zero To means "until now".
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the range.
func (tr TimeRange) Contains(t time.Time) bool {
	if !tr.From.IsZero() && t.Before(tr.From) {
		return false
	}
	if !tr.To.IsZero() && t.After(tr.To) {
		return false
	}
	return true
}

// LastDays returns a range covering the trailing window ending at now.
func LastDays(now time.Time, days int) TimeRange {
	return TimeRange{From: now.AddDate(0, 0, -days), To: now}
}
