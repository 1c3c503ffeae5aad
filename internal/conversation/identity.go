package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

// Identity holds the facts found in a self-introduction.
type Identity struct {
	Name string
	Age  int
}

var (
	// Unambiguous self-introductions.
	explicitName = regexp.MustCompile(`(?i)\b(?:my name is|my name's|call me|i'm called|i am called)\s+([\p{L}][\p{L}'-]*)`)
	// "I'm Sarah" only opens a message or sentence, optionally after a greeting, and
	// needs the name capitalised in the original text to tell it apart from "I'm sleepy".
	shortName = regexp.MustCompile(`(?:^|[.!?]\s+)\s*(?:(?:[Hh]i|[Hh]ello|[Hh]ey)(?:\s+there)?[,!.]?\s+)?(?:[Ii]'m|[Ii] am|[Ii]m)\s+(\p{Lu}[\p{L}'-]*)(?:\s*$|\s*[.!?,]|\s+and\b)`)
	// A bare number counts as an age only when it closes the clause.
	ageIntro = regexp.MustCompile(`(?i)\b(?:i'm|i am|im|my age is)\s+(\d{1,2})(?:\s*(?:years?|yrs?)\b|\s+old\b|\s*(?:$|[.!?,]))`)
	// Words that put the rest of a sentence inside a story or a game.
	rolePlayCue = regexp.MustCompile(`(?i)\b(?:where|if|pretend|pretending|imagine|story|tale|be|play|playing)\b`)
)

// notNames are words that follow "I'm" without being a name.
var notNames = map[string]bool{
	"a": true, "an": true, "the": true, "not": true, "so": true, "very": true, "really": true,
	"just": true, "also": true, "still": true, "here": true, "back": true, "going": true,
	"ready": true, "fine": true, "good": true, "ok": true, "okay": true, "sure": true,
	"happy": true, "sad": true, "tired": true, "sleepy": true, "bored": true, "excited": true,
	"scared": true, "sorry": true, "hungry": true, "done": true, "home": true, "years": true,
	"telling": true, "asking": true, "listening": true, "called": true, "from": true, "in": true,
	"at": true, "your": true, "my": true, "friend": true, "his": true, "her": true,
}

// ExtractIdentity finds a self-introduced name and age in message. Mentions of
// other people or story characters ("a story about Justin", "pretend I'm
// Superman") do not match.
func ExtractIdentity(message string) (Identity, bool) {
	var id Identity
	if name, ok := selfReference(explicitName, message); ok {
		id.Name = normalizeName(name)
	} else if name, ok := selfReference(shortName, message); ok {
		id.Name = normalizeName(name)
	}
	if raw, ok := selfReference(ageIntro, message); ok {
		if age, err := strconv.Atoi(raw); err == nil && age >= models.MinUserAge && age <= models.MaxUserAge {
			id.Age = age
		}
	}
	return id, id.Name != "" || id.Age != 0
}

// selfReference returns the first capture of re unless the sentence leading up
// to it sets a story or role-play scene ("a story where I am Batman").
func selfReference(re *regexp.Regexp, message string) (string, bool) {
	m := re.FindStringSubmatchIndex(message)
	if m == nil || m[2] < 0 {
		return "", false
	}
	lead := message[:m[2]]
	if i := strings.LastIndexAny(lead, ".!?"); i >= 0 {
		lead = lead[i+1:]
	}
	if rolePlayCue.MatchString(lead) {
		return "", false
	}
	return message[m[2]:m[3]], true
}

func normalizeName(raw string) string {
	name := strings.Trim(raw, "'-")
	if notNames[strings.ToLower(name)] {
		return ""
	}
	n := len([]rune(name))
	if n < models.MinNameLength || n > models.MaxNameLength {
		return ""
	}
	r := []rune(strings.ToLower(name))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Apply records the identity on the session and reports whether anything changed.
func (id Identity) Apply(sc *models.SessionContext) bool {
	changed := false
	if id.Name != "" && sc.DisplayName() != id.Name {
		sc.SetName(id.Name)
		changed = true
	}
	if id.Age != 0 {
		if age, ok := sc.KnownAge(); !ok || age != id.Age {
			sc.SetAge(id.Age)
			changed = true
		}
	}
	return changed
}
