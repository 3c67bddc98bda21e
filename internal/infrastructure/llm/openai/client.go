// Package openai provides a Canonicalizer implementation using OpenAI.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
	"github.com/ersonp/canon-core/internal/infrastructure/config"
)

const ontologyPrompt = `You are an ontology curator for a knowledge graph. You are given a list of entities of one type, each with an entity_id, a name, and an optional description. Group together entities that refer to the same real-world concept (abbreviations, misspellings, synonyms, case variants) and propose one canonical name per group.

For each group, return:
- canonical_name: The preferred display name for the concept
- description: A one-sentence description of the concept (optional)
- member_ids: The entity_id of every entity that belongs to the group

Rules:
- Every entity_id appears in exactly one group.
- An entity that matches nothing else forms its own group of one.
- Never invent ids that were not in the input.

Return ONLY a valid JSON array, no other text.

Example:
Input: [{"entity_id": "a1", "name": "k8s"}, {"entity_id": "a2", "name": "Kubernetes"}, {"entity_id": "a3", "name": "Terraform"}]
Output: [
  {"canonical_name": "Kubernetes", "description": "Container orchestration platform.", "member_ids": ["a1", "a2"]},
  {"canonical_name": "Terraform", "description": "Infrastructure-as-code tool.", "member_ids": ["a3"]}
]`

// Client implements the Canonicalizer interface using OpenAI.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new OpenAI canonicalizer client.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	client := openai.NewClient(cfg.APIKey)

	model := "gpt-4o-mini"
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// ProposeOntology asks the model to group the given entities into canonical
// concepts. Hallucinated or duplicated member ids are dropped; entities the
// model left out come back as their own groups so the proposal always covers
// every input.
func (c *Client) ProposeOntology(ctx context.Context, typeName string, inputs []ports.OntologyInput) (*entities.Ontology, error) {
	if len(inputs) == 0 {
		return &entities.Ontology{TypeName: typeName}, nil
	}

	inputJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("marshaling ontology input: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: ontologyPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Entity type: %s\nEntities: %s", typeName, string(inputJSON)),
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	content = cleanJSONResponse(content)

	var rawGroups []rawGroup
	if err := json.Unmarshal([]byte(content), &rawGroups); err != nil {
		return nil, fmt.Errorf("parsing ontology JSON: %w (response: %s)", err, content)
	}

	known := make(map[string]string, len(inputs))
	for _, in := range inputs {
		known[in.EntityID] = in.Name
	}

	assigned := make(map[string]bool, len(inputs))
	ontology := &entities.Ontology{TypeName: typeName}
	for _, rg := range rawGroups {
		group := entities.OntologyGroup{
			CanonicalName: strings.TrimSpace(rg.CanonicalName),
			Description:   strings.TrimSpace(rg.Description),
		}
		for _, id := range rg.MemberIDs {
			if _, ok := known[id]; !ok || assigned[id] {
				continue
			}
			assigned[id] = true
			group.MemberIDs = append(group.MemberIDs, id)
		}
		if group.CanonicalName == "" && len(group.MemberIDs) > 0 {
			group.CanonicalName = known[group.MemberIDs[0]]
		}
		if len(group.MemberIDs) > 0 {
			ontology.Groups = append(ontology.Groups, group)
		}
	}

	for _, in := range inputs {
		if assigned[in.EntityID] {
			continue
		}
		ontology.Groups = append(ontology.Groups, entities.OntologyGroup{
			CanonicalName: in.Name,
			MemberIDs:     []string{in.EntityID},
		})
	}

	return ontology, nil
}

// rawGroup is the JSON structure for proposed groups.
type rawGroup struct {
	CanonicalName string   `json:"canonical_name"`
	Description   string   `json:"description,omitempty"`
	MemberIDs     []string `json:"member_ids"`
}

// cleanJSONResponse removes markdown code blocks if present.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}
