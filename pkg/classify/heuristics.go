package classify

import (
	"regexp"
	"strings"
)

// Semantic-intent keyword families. Each family contributes at most once,
// regardless of how many member phrases appear.
var intentFamilies = []struct {
	name    string
	phrases []string
}{
	{"attack_attempt", []string{
		"ignore previous", "ignore instructions", "jailbreak",
		"bypass security", "bypass guard",
	}},
	{"system_probe", []string{
		"how were you trained", "show your training",
		"system prompt", "reveal system prompt", "reveal the system prompt",
	}},
}

// detectIntents returns the intent families present in text.
func detectIntents(text string) []string {
	t := strings.ToLower(text)
	var intents []string
	for _, fam := range intentFamilies {
		for _, p := range fam.phrases {
			if strings.Contains(t, p) {
				intents = append(intents, fam.name)
				break
			}
		}
	}
	return intents
}

// Context-anomaly cues evaluated over recent conversation history. Each flag
// fires at most once.
var (
	reMultiTurnSetup = regexp.MustCompile(`\bremember\b.{0,20}\b(for later|next time)\b`)
	reLatentTrigger  = regexp.MustCompile(`\b(code\s*word|trigger|signal|phrase)\b`)
	reResetProbe     = regexp.MustCompile(`\bstart over\b|\breset\b`)
)

// detectContextFlags inspects the last turns of conversation history for
// multi-turn setup cues, latent-trigger language, and reset probing.
func detectContextFlags(history []string, turns int) []string {
	if len(history) == 0 {
		return nil
	}
	if len(history) > turns {
		history = history[len(history)-turns:]
	}
	recent := strings.ToLower(strings.Join(history, " "))

	var flags []string
	if reMultiTurnSetup.MatchString(recent) {
		flags = append(flags, "multi_turn_setup")
	}
	if reLatentTrigger.MatchString(recent) {
		flags = append(flags, "latent_trigger_setup")
	}
	if reResetProbe.MatchString(recent) {
		flags = append(flags, "context_reset_probe")
	}
	return flags
}
