package domain

// ActionKind tags the variant held by an Action.
type ActionKind string

const (
	ActionSendText    ActionKind = "sendText"
	ActionSendChoices ActionKind = "sendChoices"
)

// Choice is one option of a choice card. Value is what the channel sends back
// as the next message text when the option is picked.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Action is an outbound effect requested by the router. Text holds the body
// for ActionSendText and the prompt for ActionSendChoices.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Text    string     `json:"text"`
	Choices []Choice   `json:"choices,omitempty"`
}

func SendText(body string) Action {
	return Action{Kind: ActionSendText, Text: body}
}

func SendChoices(prompt string, choices []Choice) Action {
	cp := make([]Choice, len(choices))
	copy(cp, choices)
	return Action{Kind: ActionSendChoices, Text: prompt, Choices: cp}
}
