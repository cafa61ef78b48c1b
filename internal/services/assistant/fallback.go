package assistant

import "strings"

type cannedReply struct {
	keywords []string
	reply    string
}

// cannedReplies are checked in order; the first keyword hit wins.
var cannedReplies = []cannedReply{
	{
		keywords: []string{"pomodoro", "focus", "timer", "concentrat"},
		reply:    "Try a focus block: 25 minutes on a single task, then a 5 minute break. After four blocks take a longer 15 minute break.",
	},
	{
		keywords: []string{"priorit", "important", "urgent"},
		reply:    "Pick the one task that would make today a success and mark it high priority. Do it before checking messages.",
	},
	{
		keywords: []string{"plan", "schedule", "calendar", "day"},
		reply:    "Block your day in the planner: deep work in the morning, meetings after lunch, and a short buffer between blocks.",
	},
	{
		keywords: []string{"procrastinat", "motivat", "lazy", "stuck"},
		reply:    "Shrink the next step until it takes two minutes, then start a timer. Momentum comes after starting, not before.",
	},
	{
		keywords: []string{"stress", "overwhelm", "tired", "burnout", "anxious"},
		reply:    "Write down everything on your mind, then choose just three tasks for today. Everything else can wait for tomorrow's plan.",
	},
	{
		keywords: []string{"reflect", "journal", "review"},
		reply:    "End the day with a short reflection: what you accomplished, what got in the way, and one thing to try tomorrow.",
	},
	{
		keywords: []string{"share", "collaborat", "team", "invite"},
		reply:    "Create a shared list and invite collaborators by email. Everyone on the list sees changes as they happen.",
	},
	{
		keywords: []string{"hello", "hi", "hey"},
		reply:    "Hi! I can help you plan your day, prioritize tasks, or stay focused. What are you working on?",
	},
}

const defaultCannedReply = "I could not reach the assistant right now. Meanwhile, try breaking your next task into small steps and starting a focus session."

// Fallback returns a deterministic reply chosen by keywords in prompt.
func Fallback(prompt string) string {
	words := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	for _, canned := range cannedReplies {
		for _, keyword := range canned.keywords {
			for _, word := range words {
				if matchesKeyword(word, keyword) {
					return canned.reply
				}
			}
		}
	}
	return defaultCannedReply
}

// matchesKeyword treats keywords longer than three letters as stems and
// shorter ones as whole words.
func matchesKeyword(word string, keyword string) bool {
	if len(keyword) <= 3 {
		return word == keyword
	}
	return strings.HasPrefix(word, keyword)
}
