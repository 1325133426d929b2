package llms

type PromptOptions struct {
	// Instructions is the system prompt prepended to the conversation.
	Instructions string
	// Messages is the conversation so far, ending with the user message the
	// completion should answer.
	Messages []Message
}

type PromptOption func(*PromptOptions)

func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) {
		o.Instructions = instructions
	}
}

func WithMessages(messages ...Message) PromptOption {
	return func(o *PromptOptions) {
		o.Messages = append(o.Messages, messages...)
	}
}
