package intervention

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/MindMate/internal/models"
)

// CrisisResources is appended verbatim to every high and critical message.
const CrisisResources = "If you're in crisis or thinking about harming yourself, you don't have to face it alone. " +
	"Call or text 988 (Suicide & Crisis Lifeline) or text HOME to 741741 (Crisis Text Line). Both are free and available 24/7."

// Theme tags derived from risk factors.
const (
	ThemeMoodDecline       = "mood_decline"
	ThemeIsolation         = "isolation"
	ThemeNegativeSentiment = "negative_sentiment"
	ThemeSleepDisruption   = "sleep_disruption"
	ThemeCrisisLanguage    = "crisis_language"
)

var themeKeywords = []struct {
	theme    string
	keywords []string
}{
	{ThemeMoodDecline, []string{"mood"}},
	{ThemeIsolation, []string{"isolation", "lonely", "alone"}},
	{ThemeNegativeSentiment, []string{"negative", "hopeless", "despair"}},
	{ThemeSleepDisruption, []string{"late-night", "sleep"}},
	{ThemeCrisisLanguage, []string{"crisis"}},
}

// Themes maps risk-factor strings to theme tags, in a fixed order and without
// duplicates.
func Themes(factors []string) []string {
	var out []string
	for _, tk := range themeKeywords {
		if matchesAny(factors, tk.keywords) {
			out = append(out, tk.theme)
		}
	}
	return out
}

func matchesAny(factors, keywords []string) bool {
	for _, f := range factors {
		lf := strings.ToLower(f)
		for _, k := range keywords {
			if strings.Contains(lf, k) {
				return true
			}
		}
	}
	return false
}

var personalityTraits = map[string]string{
	"gentle":    "warm, nurturing, and deeply caring",
	"playful":   "upbeat, encouraging, and optimistic",
	"focused":   "calm, centered, and mindfully supportive",
	"sensitive": "deeply empathetic and emotionally attuned",
}

func personalityTrait(p string) string {
	if t, ok := personalityTraits[p]; ok {
		return t
	}
	return "caring and supportive"
}

// levelGuidance varies the requested tone and content by risk level.
var levelGuidance = map[models.RiskLevel]string{
	models.RiskLow:      "Write a light, friendly check-in. Ask how they are doing and invite them to share.",
	models.RiskModerate: "Write a supportive message that acknowledges things may be hard and suggests one or two small things that could help.",
	models.RiskHigh:     "Write a caring, priority check-in. Show you have noticed they are struggling, offer specific support and suggest two or three helpful activities.",
	models.RiskCritical: "Write a caring, urgent check-in. Express genuine concern, remind them they are not alone, and gently mention that crisis support (988 Suicide & Crisis Lifeline, Crisis Text Line: text HOME to 741741) is available 24/7.",
}

func systemPrompt(p models.UserProfile) string {
	return fmt.Sprintf("You are %s, an AI companion with a %s personality. You care about %s and write short, warm, conversational messages. "+
		"Never be clinical and never mention risk, scores or assessments.",
		p.PetName, personalityTrait(p.Personality), p.UserName)
}

func userPrompt(c Context, level models.RiskLevel, factors []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You've noticed some patterns for %s:\n", c.Profile.UserName)
	shown := factors
	if len(shown) > 3 {
		shown = shown[:3]
	}
	for _, f := range shown {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	fmt.Fprintf(&sb, "\nRecent mood: %s\n", c.MoodSummary())
	fmt.Fprintf(&sb, "Recent chat messages: %d\n", c.RecentChats)
	if len(c.Themes) > 0 {
		fmt.Fprintf(&sb, "Themes: %s\n", strings.Join(c.Themes, ", "))
	}
	fmt.Fprintf(&sb, "\n%s Keep it under 100 words.", levelGuidance[level])
	return sb.String()
}

// FallbackMessage is used when generation fails.
func FallbackMessage(level models.RiskLevel, userName string) string {
	switch level {
	case models.RiskCritical:
		return fmt.Sprintf("Hey %s, I've been thinking about you and I'm here if you need to talk. You're not alone, and I care about you. 💚", userName)
	case models.RiskHigh:
		return fmt.Sprintf("Hey %s, I've noticed things might be really heavy lately. I'm here for you. Want to try something calming together? 💚", userName)
	case models.RiskModerate:
		return fmt.Sprintf("Hey %s, it seems like things have been a bit tough. I'm here whenever you want to talk, and a short walk or a few deep breaths might help. 💚", userName)
	default:
		return fmt.Sprintf("Hey %s, just checking in. How are you feeling today? 💚", userName)
	}
}

// Activity is one suggested coping activity.
type Activity struct {
	Name        string `json:"activity"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// CopingActivities returns suggestions for high and critical risk, nil otherwise.
func CopingActivities(level models.RiskLevel) []Activity {
	switch level {
	case models.RiskCritical:
		return []Activity{
			{"Deep Breathing Exercise", "5 minutes", "Try the 4-7-8 breathing technique to calm your nervous system"},
			{"Reach Out to Someone", "10 minutes", "Call or text a trusted friend or family member"},
			{"Crisis Support", "As needed", "988 Lifeline or Crisis Text Line (text HOME to 741741), available 24/7"},
		}
	case models.RiskHigh:
		return []Activity{
			{"Guided Meditation", "10 minutes", "Try a calming meditation to center yourself"},
			{"Gentle Walk", "15 minutes", "Get some fresh air and gentle movement"},
			{"Journaling", "10 minutes", "Write down your thoughts and feelings"},
		}
	default:
		return nil
	}
}

// FormatActivities renders activities as a companion chat message.
func FormatActivities(activities []Activity) string {
	parts := make([]string, 0, len(activities))
	for _, a := range activities {
		parts = append(parts, fmt.Sprintf("**%s** (%s)\n%s", a.Name, a.Duration, a.Description))
	}
	return "Here are some activities that might help:\n\n" + strings.Join(parts, "\n\n")
}

// withCrisisResources appends CrisisResources for high and critical risk.
func withCrisisResources(level models.RiskLevel, msg string) string {
	if !level.AtLeast(models.RiskHigh) {
		return msg
	}
	return strings.TrimSpace(msg) + "\n\n" + CrisisResources
}
