package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/untoldecay/DocLoom/internal/llm"
	"github.com/untoldecay/DocLoom/internal/types"
)

// EntityStore is the slice of the storage layer extraction writes through.
type EntityStore interface {
	SaveEntities(ctx context.Context, docID int64, entities []types.DocumentEntity) (int, error)
	SaveEntityRelationships(ctx context.Context, docID int64, rels []types.EntityRelationship) (int, error)
}

const maxPromptContentChars = 12000

// Entity types the extraction prompt is allowed to emit. Anything else is
// remapped to concept.
var knownEntityTypes = map[string]bool{
	"heading":      true,
	"tech_term":    true,
	"concept":      true,
	"proper_noun":  true,
	"person":       true,
	"organization": true,
	"technology":   true,
	"location":     true,
	"event":        true,
	"project":      true,
	"tool":         true,
	"api":          true,
	"library":      true,
}

// LLMResult summarizes one LLM extraction call.
type LLMResult struct {
	Entities      int     `json:"entities"`
	Relationships int     `json:"relationships"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	CostUSD       float64 `json:"cost_usd"`
	Model         string  `json:"model"`
}

type llmEntity struct {
	Name       string  `json:"name"`
	EntityType string  `json:"entity_type"`
	Confidence float64 `json:"confidence"`
}

type llmRelationship struct {
	Source           string  `json:"source"`
	Target           string  `json:"target"`
	RelationshipType string  `json:"relationship_type"`
	Confidence       float64 `json:"confidence"`
}

type llmExtraction struct {
	Entities      []llmEntity       `json:"entities"`
	Relationships []llmRelationship `json:"relationships"`
}

const extractionSystemPrompt = `You extract named entities and relationships from a personal knowledge document. Respond with JSON only, no prose, no code fences.`

func buildExtractionPrompt(title, content string) string {
	if len(content) > maxPromptContentChars {
		content = content[:maxPromptContentChars]
	}
	var b strings.Builder
	b.WriteString("Extract the important entities and the relationships between them from this document.\n\n")
	fmt.Fprintf(&b, "Title: %s\n\n", title)
	b.WriteString("Content:\n")
	b.WriteString(content)
	b.WriteString("\n\nRespond with JSON of this exact shape:\n")
	b.WriteString(`{"entities": [{"name": "...", "entity_type": "tech_term|concept|proper_noun|person|organization|technology|location|event|project|tool|api|library", "confidence": 0.9}], "relationships": [{"source": "...", "target": "...", "relationship_type": "uses|part_of|related_to|depends_on", "confidence": 0.8}]}`)
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ExtractAndSaveLLM asks the LLM backend for entities and relationships,
// filters them with the same rules as the heuristic path, and persists
// both. Relationships whose endpoints are not in the saved entity set are
// dropped silently.
func ExtractAndSaveLLM(ctx context.Context, store EntityStore, client llm.Client, doc *types.Document, model string) (*LLMResult, error) {
	prompt := buildExtractionPrompt(doc.Title, doc.Content)
	resp, err := client.Complete(ctx, llm.Request{
		System:    extractionSystemPrompt,
		Prompt:    prompt,
		Model:     model,
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, err
	}

	var parsed llmExtraction
	if err := json.Unmarshal([]byte(llm.StripFences(resp.Text)), &parsed); err != nil {
		return nil, fmt.Errorf("LLM extraction returned unparseable JSON: %w", err)
	}

	ownTitle := normalizeEntity(doc.Title)
	saved := make(map[string]bool)
	var entities []types.DocumentEntity
	for _, e := range parsed.Entities {
		name := normalizeEntity(e.Name)
		if name == "" || name == ownTitle || saved[name] {
			continue
		}
		entityType := strings.ToLower(strings.TrimSpace(e.EntityType))
		if !knownEntityTypes[entityType] {
			entityType = "concept"
		}
		saved[name] = true
		entities = append(entities, types.DocumentEntity{
			Entity:     name,
			Type:       entityType,
			Confidence: clamp01(e.Confidence),
		})
	}

	entityCount, err := store.SaveEntities(ctx, doc.ID, entities)
	if err != nil {
		return nil, fmt.Errorf("failed to save entities: %w", err)
	}

	var rels []types.EntityRelationship
	for _, r := range parsed.Relationships {
		source := normalizeEntity(r.Source)
		target := normalizeEntity(r.Target)
		if source == "" || target == "" || !saved[source] || !saved[target] {
			continue
		}
		relType := strings.TrimSpace(r.RelationshipType)
		if relType == "" {
			relType = "related_to"
		}
		rels = append(rels, types.EntityRelationship{
			DocumentID: doc.ID,
			Source:     source,
			Target:     target,
			Type:       relType,
			Confidence: clamp01(r.Confidence),
		})
	}
	relCount, err := store.SaveEntityRelationships(ctx, doc.ID, rels)
	if err != nil {
		return nil, fmt.Errorf("failed to save relationships: %w", err)
	}

	return &LLMResult{
		Entities:      entityCount,
		Relationships: relCount,
		InputTokens:   resp.InputTokens,
		OutputTokens:  resp.OutputTokens,
		CostUSD:       llm.EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens),
		Model:         resp.Model,
	}, nil
}

// ExtractAndSave runs the heuristic extractor and persists the results,
// returning the number of newly inserted entities.
func ExtractAndSave(ctx context.Context, store EntityStore, doc *types.Document) (int, error) {
	entities := ExtractEntities(doc.Title, doc.Content)
	return store.SaveEntities(ctx, doc.ID, entities)
}
