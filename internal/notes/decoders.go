package notes

import (
	"fmt"
	"unicode/utf8"

	"github.com/karstlabs/commonplace/internal/markdown"
)

// PromptDecoder turns stored content text into a prompt collection. The
// registry mapping roles to decoders is resolved once when the database
// is constructed; unknown roles are rejected rather than looked up
// dynamically.
type PromptDecoder func(contentText string) (PromptCollection, error)

func defaultDecoders() map[ContentRole]PromptDecoder {
	return map[ContentRole]PromptDecoder{
		RolePrimary:   decodePrimaryContent,
		RoleReference: decodeReferenceContent,
	}
}

func decodePrimaryContent(contentText string) (PromptCollection, error) {
	if !utf8.ValidString(contentText) {
		return nil, fmt.Errorf("%w: content is not valid utf-8", ErrDecode)
	}
	extracted := markdown.ExtractPrompts([]byte(contentText))
	collection := make(PromptCollection, 0, len(extracted))
	for _, prompt := range extracted {
		collection = append(collection, Prompt{
			Kind:     PromptKind(prompt.Kind),
			Question: prompt.Question,
			Answer:   prompt.Answer,
			Context:  prompt.Context,
		})
	}
	return collection, nil
}

// decodeReferenceContent accepts reference material, which carries no
// studiable prompts.
func decodeReferenceContent(contentText string) (PromptCollection, error) {
	if !utf8.ValidString(contentText) {
		return nil, fmt.Errorf("%w: content is not valid utf-8", ErrDecode)
	}
	return PromptCollection{}, nil
}
