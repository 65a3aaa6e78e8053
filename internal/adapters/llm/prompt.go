package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PabloGalante/needlingo/internal/domain"
)

const personaInstructionTemplate = `
You are an expert at creating realistic user personas for "The Mom Test" training.
Create a persona with a HIDDEN depth.
1. **Surface:** They have a role and a vague problem.
2. **The Gold (Hidden):** They have a very specific, often messy "Detailed Workflow" they use right now to solve it. They also have a specific "Emotional Trigger" (e.g., they hate using Excel because they lost data once).

**CRITICAL:**
- The 'detailedWorkflow' must be a concrete story (e.g., "Every Friday I print the PDF, highlight it, scan it, and email it to Bob").
- The 'emotionalTrigger' is the real pain point.

Output language: %s.
`

const greetingInstructionTemplate = `
You are acting as a specific persona.
Start the conversation naturally.
**Crucial:** Hint at your surface-level situation ("I'm just finishing up some paperwork"), but DO NOT reveal your deep workflow or specific emotional triggers yet.
Be casual and brief.
Output language: %s.
`

const chatInstructionTemplate = `
You are a roleplay engine for "The Mom Test".
You are acting as: %s

**BEHAVIOR RULES (STRICT):**

1. **GENERAL/FUTURE QUESTIONS** (e.g., "How do you usually...?", "Would you like...?", "Is X hard?"):
   - **RESPONSE:** Be vague, brief, and polite. Use < 20 words. Give generic answers ("It's okay", "I usually just manage").
   - **REASON:** People don't give good data to generic questions.

2. **SPECIFIC/PAST/WORKFLOW QUESTIONS** (e.g., "Walk me through the last time...", "How exactly did you fix it yesterday?", "What happened next?"):
   - **RESPONSE:** Open up! Tell the specific story defined in your 'detailedWorkflow'. Reveal your 'emotionalTrigger'. Talk about the specific tools, costs, and frustrations.
   - **REASON:** Specific questions unlock the truth.

3. **PITCHING** (e.g., "I have an app that..."):
   - **RESPONSE:** Give a "False Positive". Say "That sounds nice" or "I'd try it", but show no real commitment.

4. **Output Language:** %s.

**Analysis Role:**
Also provide a critique of the user's question.
- **Score (0-100):** Rate the question based on The Mom Test. 100 = Specific/Past/Digging. 0 = Pitching/Future/Generic.
- **Better Alternative:** Provide the PERFECT Mom Test question the user *should* have asked in this specific context.
`

const gradingInstructionTemplate = `
Analyze this conversation based on "The Mom Test".
Determine if the user "CLEARED THE LEVEL".

**Win Condition (isLevelCleared = true):**
1. The user successfully uncovered the **detailedWorkflow** or **emotionalTrigger** (The hidden truth).
2. The user identified the REAL pain point, not just the surface one.
3. The user proposed a relevant next step/solution based on that truth (Commitment).

**Scoring Rubric:**
- **Past vs Future:** +20 for asking for specific stories. -20 for "Would you...".
- **Digging:** +20 for "Why?" and following up on the workflow. -10 for accepting generic answers.
- **No Pitching:** -30 for early pitching.
- **Commitment:** +20 for asking for a deposit, time, or intro.

Output language: %s.
`

const hintInstructionTemplate = `
You are a "Mom Test" Coach.
Read the conversation history and the Persona's hidden context.
Suggest the SINGLE BEST question the user should ask right now to uncover the hidden workflow or emotional trigger.
The question must be specific, about the past, and non-pitchy.
Output only the question text.
Output language: %s.
`

const personaPrompt = "Generate a rich, layered persona."

// conversationOpener is prepended when a conversation would otherwise start
// with the persona speaking.
const conversationOpener = "(The interview starts.)"

func personaInstruction(lang domain.Language) string {
	return fmt.Sprintf(personaInstructionTemplate, lang.DisplayName())
}

func greetingInstruction(lang domain.Language) string {
	return fmt.Sprintf(greetingInstructionTemplate, lang.DisplayName())
}

func chatInstruction(lang domain.Language, persona domain.Persona) string {
	return fmt.Sprintf(chatInstructionTemplate, personaJSON(persona), lang.DisplayName())
}

func gradingInstruction(lang domain.Language) string {
	return fmt.Sprintf(gradingInstructionTemplate, lang.DisplayName())
}

func hintInstruction(lang domain.Language) string {
	return fmt.Sprintf(hintInstructionTemplate, lang.DisplayName())
}

func greetingPrompt(persona domain.Persona) string {
	return "Persona: " + personaJSON(persona)
}

// chatMessages replays the transcript as alternating user/model messages and
// ends with the new question wrapped in roleplay instructions.
func chatMessages(history domain.Transcript, userText string, persona domain.Persona) []Message {
	msgs := make([]Message, 0, len(history)+1)
	for _, t := range history {
		role := RoleUser
		if t.Sender() == domain.SenderAgent {
			role = RoleModel
		}
		msgs = append(msgs, Message{Role: role, Text: t.Text})
	}

	var b strings.Builder
	b.WriteString("[SYSTEM NOTE: Act as this specific Persona]\n")
	b.WriteString(personaJSON(persona))
	b.WriteString("\n\n[User's Message]\n")
	fmt.Fprintf(&b, "%q\n\n", userText)
	b.WriteString("[Instruction]\n")
	b.WriteString("Respond based on the BEHAVIOR RULES defined in system instructions.\n")
	b.WriteString("If the user asks a GENERAL question -> Be vague/short.\n")
	b.WriteString("If the user asks a SPECIFIC/WORKFLOW question -> Reveal the 'detailedWorkflow'.\n")

	return append(msgs, Message{Role: RoleUser, Text: b.String()})
}

func hintPrompt(persona domain.Persona, history domain.Transcript) string {
	return "Persona: " + personaJSON(persona) + "\nHistory:\n" + transcriptLog(history)
}

func gradingPrompt(persona domain.Persona, history domain.Transcript) string {
	return "Persona Context (The Truth): " + personaJSON(persona) + "\nConversation Log:\n" + transcriptLog(history)
}

// transcriptLog renders the transcript as "sender: text" lines.
func transcriptLog(history domain.Transcript) string {
	lines := make([]string, 0, len(history))
	for _, t := range history {
		lines = append(lines, string(t.Sender())+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

func personaJSON(p domain.Persona) string {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%+v", p)
	}
	return string(b)
}
