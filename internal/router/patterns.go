package router

import (
	"regexp"
	"strings"
)

// casualPattern classifies small-talk messages that never need a tool or a
// model call. Checked in order, first match wins.
type casualPattern struct {
	intent string
	re     *regexp.Regexp
}

var casualPatterns = []casualPattern{
	{"greeting", regexp.MustCompile(`(?i)^(hi|hello|hey|yo|howdy|good (morning|afternoon|evening))[\s!.,]*$`)},
	{"farewell", regexp.MustCompile(`(?i)^(bye|goodbye|see you|later|good ?night)[\s!.,]*$`)},
	{"identity", regexp.MustCompile(`(?i)^(who are you|what are you|what('s| is) your name)[\s?!.]*$`)},
	{"thanks", regexp.MustCompile(`(?i)^(thanks|thank you|thx|ty|cheers)[\s!.,]*$`)},
	{"affirmation", regexp.MustCompile(`(?i)^(ok|okay|cool|nice|great|awesome|perfect|sure|yes|yep|no|nope)[\s!.,]*$`)},
	{"how_are_you", regexp.MustCompile(`(?i)^(how are you|how('s| is) it going|what('s| is) up|sup)[\s?!.]*$`)},
	{"capabilities", regexp.MustCompile(`(?i)^(what can you do|help|what do you do|capabilities)[\s?!.]*$`)},
	{"file_upload", regexp.MustCompile(`(?i)^(can i (send|upload) (a )?(file|document|photo|image))[\s?!.]*$`)},
	{"voice_message", regexp.MustCompile(`(?i)^(can i (send|record) (a )?voice( message| note)?)[\s?!.]*$`)},
}

// matchCasual returns the casual intent for a message, if any.
func matchCasual(message string) (string, bool) {
	for _, p := range casualPatterns {
		if p.re.MatchString(message) {
			return p.intent, true
		}
	}
	return "", false
}

// toolPattern maps a message shape onto a tool, optionally extracting
// arguments from capture groups. Entries are ordered; the first match at or
// above the confidence floor wins.
type toolPattern struct {
	tool       string
	re         *regexp.Regexp
	confidence float64
	extract    func(match []string) map[string]any
}

var toolPatterns = []toolPattern{
	{
		tool:       "weather",
		re:         regexp.MustCompile(`(?i)weather.*?\bin\s+(.+?)[\s?!.]*$`),
		confidence: 0.95,
		extract: func(m []string) map[string]any {
			return map[string]any{"location": strings.TrimSpace(m[1])}
		},
	},
	{
		tool:       "weather",
		re:         regexp.MustCompile(`(?i)^(what('s| is) the )?weather\b`),
		confidence: 0.85,
	},
	{
		tool:       "calculator",
		re:         regexp.MustCompile(`(?i)^(calculate|compute|what('s| is))\s+([-+*/().\d\s^%]+)[\s?=]*$`),
		confidence: 0.9,
		extract: func(m []string) map[string]any {
			return map[string]any{"expression": strings.TrimSpace(m[3])}
		},
	},
	{
		tool:       "calculator",
		re:         regexp.MustCompile(`^\s*[-+]?[\d.]+(\s*[-+*/^%]\s*[-+]?[\d.()]+)+\s*=?\s*$`),
		confidence: 0.95,
		extract: func(m []string) map[string]any {
			return map[string]any{"expression": strings.TrimSuffix(strings.TrimSpace(m[0]), "=")}
		},
	},
	{
		tool:       "convert",
		re:         regexp.MustCompile(`(?i)convert\s+([\d.]+)\s*(\w+)\s+(to|into|in)\s+(\w+)`),
		confidence: 0.92,
		extract: func(m []string) map[string]any {
			return map[string]any{"value": m[1], "from": m[2], "to": m[4]}
		},
	},
	{
		tool:       "pick",
		re:         regexp.MustCompile(`(?i)^(pick|choose)\s+(between\s+)?(.+\s+or\s+.+)$`),
		confidence: 0.88,
		extract: func(m []string) map[string]any {
			return map[string]any{"options": strings.TrimSpace(m[3])}
		},
	},
	{
		tool:       "joke",
		re:         regexp.MustCompile(`(?i)(tell me a joke|make me laugh|another joke|got any jokes)`),
		confidence: 0.9,
	},
	{
		tool:       "time",
		re:         regexp.MustCompile(`(?i)^what time is it( in (.+?))?[\s?!.]*$`),
		confidence: 0.9,
		extract: func(m []string) map[string]any {
			if m[2] == "" {
				return nil
			}
			return map[string]any{"timezone": strings.TrimSpace(m[2])}
		},
	},
	{
		tool:       "uuid",
		re:         regexp.MustCompile(`(?i)(generate|give me|create)( a| an)? (uuid|guid)`),
		confidence: 0.9,
	},
}

// matchTool scans the pattern table and returns the first hit at or above
// floor, along with any extracted arguments.
func matchTool(message string, floor float64) (tool string, confidence float64, args map[string]any, ok bool) {
	for _, p := range toolPatterns {
		m := p.re.FindStringSubmatch(message)
		if m == nil || p.confidence < floor {
			continue
		}
		var extracted map[string]any
		if p.extract != nil {
			extracted = p.extract(m)
		}
		return p.tool, p.confidence, extracted, true
	}
	return "", 0, nil, false
}
