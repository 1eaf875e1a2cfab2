package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionArgs are the inputs of question generation.
type QuestionArgs struct {
	Keywords      []string
	QuestionCount int
	Difficulty    string
	CandidateName string
}

// IntroQuestion is the fixed first question.
func IntroQuestion(name string) string {
	greeting := "Hi there"
	if n := strings.TrimSpace(name); n != "" {
		greeting = "Hi " + n
	}
	return greeting + ", could you please walk me through your background?"
}

// FitQuestion closes an interview when the model didn't.
const FitQuestion = "Why do you think you're a strong fit for this role?"

// NoAnswer stands in for a blank answer in the feedback prompt.
const NoAnswer = "No answer provided."

func difficultyLabel(d string) string {
	switch d {
	case "easy":
		return "easy, introductory"
	case "hard":
		return "challenging, senior-level"
	default:
		return "balanced, mid-level"
	}
}

// RelevancePrompt asks whether the description is a usable job description.
func RelevancePrompt(description string) string {
	return strings.Join([]string{
		"Following is the job description",
		strings.TrimSpace(description),
		`If the job description is irrelevant or lacks technical details, return {"result":false} else return {"result":true}`,
		"Do not include any text outside the JSON response.",
	}, "\n\n")
}

// KeywordPrompt asks for the technical keywords of the description.
func KeywordPrompt(description string) string {
	return strings.Join([]string{
		"Act as an ATS scanner and read the following job description.",
		strings.TrimSpace(description),
		"Extract only the technical keywords that would inform generating interview questions.",
		`Return ONLY valid JSON with this schema: {"keywords":["Keyword1","Keyword2",...]}.`,
		`If the description is irrelevant or lacks technical details, return {"keywords":[]}.`,
		"Do not include any text outside the JSON response.",
	}, "\n\n")
}

// QuestionPrompt asks for the interview questions.
func QuestionPrompt(a QuestionArgs) string {
	name := strings.TrimSpace(a.CandidateName)
	addressed := name
	if addressed == "" {
		addressed = "the candidate"
	}
	label := difficultyLabel(a.Difficulty)
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	kw, _ := json.Marshal(keywords)

	return strings.Join([]string{
		"You are an expert technical interviewer.",
		"",
		"Input Keywords:",
		string(kw),
		"",
		"Task:",
		fmt.Sprintf("Generate exactly %d interview questions in natural, conversational language, each tailored to %s difficulty.", a.QuestionCount, label),
		"",
		"Hard Requirements:",
		fmt.Sprintf(`1) Use second person ("you") and speak as if talking directly to %s.`, addressed),
		"2) Each question must be ONE sentence and at most 25 words.",
		"3) Do not include numbering, bullets, headings, notes, or explanations.",
		"4) Questions must be unique (no duplicates or near-duplicates).",
		"5) Ground questions ONLY in the provided keywords; do not invent tools/tech that aren't present.",
		"6) If no meaningful technical keywords are present, return an empty list (no generic questions).",
		"",
		"Ordering Rules:",
		fmt.Sprintf(`- Q1 MUST be exactly: "%s".`, IntroQuestion(name)),
		"- Q2..Q(n-1): cover the provided keywords (mix fundamentals, applied problem-solving, design, trade-offs).",
		fmt.Sprintf(`- Qn: ask motivation/fit for the role (e.g., "%s").`, FitQuestion),
		"",
		"Style & Calibration:",
		fmt.Sprintf("- Calibrate difficulty to %s.", label),
		"- Prefer realistic, scenario-based prompts over trivia.",
		"- Avoid company-specific details, soft-skill-only prompts, or leading answers.",
		"",
		"Validation (must pass all):",
		fmt.Sprintf("- Exactly %d strings in the array (unless empty due to no keywords).", a.QuestionCount),
		`- Each string <= 25 words, single sentence, second person, no prefixes like "Q1:" or numbering.`,
		"",
		"Output format (strict):",
		"Return ONLY valid JSON with this exact schema:",
		`{"questions":["q1","q2","..."]}`,
		"Use standard double quotes, no trailing commas, and no extra text outside the JSON.",
	}, "\n")
}

// FeedbackPrompt asks for feedback on one answer.
func FeedbackPrompt(question, answer string) string {
	if strings.TrimSpace(answer) == "" {
		answer = NoAnswer
	}
	return "You are reviewing an interview response and must deliver constructive feedback.\n" +
		"Question: " + question + "\n" +
		"Answer: " + answer + "\n\n" +
		"Evaluate how well the answer addresses the question, call out any gaps, missing specifics, or misconceptions, and provide concrete suggestions to improve it.\n\n" +
		`Provide the feedback using second person ("you").` + "\n" +
		"Return ONLY valid JSON with exactly this schema:\n" +
		`{"feedback":"Your concise feedback here"}` + "\n" +
		"- Use plain sentences.\n" +
		"- Keep feedback under 120 words.\n" +
		"- Do not include lists, bullets, or numbering.\n" +
		"- Do not add any text outside the JSON."
}
