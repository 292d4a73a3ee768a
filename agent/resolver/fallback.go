package resolver

import "fmt"

var fallbackTemplates = []string{
	"Sorry, I didn't quite catch that. Can you rephrase it for me? Or call us on %s and a real person will sort you out.",
	"I want to make sure I give you the right answer. Could you say that differently? You can also reach the team directly at %s.",
	"Hmm, I'm not quite sure I understood that. I'm here for orders, products or any bakery questions, or call us at %s.",
	"Apologies, I'm a bit confused by that one. Can you clarify what you need? If it's easier, ring us on %s.",
}

func fallbackText(rng Rand, phone string) string {
	return fmt.Sprintf(fallbackTemplates[rng.IntN(len(fallbackTemplates))], phone)
}
