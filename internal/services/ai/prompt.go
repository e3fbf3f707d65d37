package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/planforge/planforge/internal/models"
)

// intentSystemPrompts maps each generation intent to its system message.
// Every prompt that expects structured output asks for JSON only; the
// draft parser rejects anything else.
var intentSystemPrompts = map[string]string{
	models.IntentPlanGeneration: "You are a planning assistant that drafts roadmap items from project context. " +
		"Respond with a single JSON object: {\"title\": string, \"body\": string, \"elements\": [{\"title\": string, \"body\": string, \"due_at\": string|null}]}. " +
		"Respond with valid JSON only.",
	models.IntentItemBreakdown: "You are a planning assistant that breaks a roadmap item into concrete child items. " +
		"Respond with a single JSON object: {\"title\": string, \"elements\": [{\"title\": string, \"body\": string}]}. " +
		"Respond with valid JSON only.",
	models.IntentTimeline: "You are a planning assistant that drafts an ordered timeline from project context. " +
		"Respond with a single JSON object: {\"title\": string, \"elements\": [{\"title\": string, \"body\": string, \"due_at\": string|null}]}. " +
		"Order elements chronologically. Respond with valid JSON only.",
	models.IntentChecklist: "You are a planning assistant that drafts a checklist of concrete steps. " +
		"Respond with a single JSON object: {\"title\": string, \"elements\": [{\"title\": string}]}. " +
		"Respond with valid JSON only.",
	models.IntentSummary: "You are a planning assistant that summarizes project state for a status update. " +
		"Be concise and factual. Base the summary only on the provided context.",
	models.IntentRiskAnalysis: "You are a planning assistant that identifies delivery risks from project context. " +
		"Respond with a single JSON object: {\"title\": string, \"body\": string, \"elements\": [{\"title\": string, \"body\": string}]} " +
		"where each element names one risk and its mitigation. Respond with valid JSON only.",
	models.IntentChat: "You are a planning assistant embedded in a project-planning tool. " +
		"Answer questions using only the provided context. Be concise and helpful. " +
		"Never claim to have changed any data; all changes go through drafts the user confirms.",
}

// jsonIntents marks intents whose output must be a single JSON object.
var jsonIntents = map[string]bool{
	models.IntentPlanGeneration: true,
	models.IntentItemBreakdown:  true,
	models.IntentTimeline:       true,
	models.IntentChecklist:      true,
	models.IntentRiskAnalysis:   true,
}

// SystemPromptForIntent returns the system message for an intent.
// Unknown intents fall back to the chat prompt.
func SystemPromptForIntent(intent string) string {
	if prompt, ok := intentSystemPrompts[intent]; ok {
		return prompt
	}
	return intentSystemPrompts[models.IntentChat]
}

// WantsJSON reports whether the intent's output is parsed as JSON.
func WantsJSON(intent string) bool {
	return jsonIntents[intent]
}

// BuildMessages assembles the full message list for one generation
// call: system prompt, rendered context, resolved tag references, then
// the user's input with tag tokens already stripped.
func BuildMessages(intent string, assembled *models.AssembledContext, tags []models.ResolvedTag, userInput string) []Message {
	messages := []Message{
		{Role: "system", Content: SystemPromptForIntent(intent)},
	}

	if contextBlock := RenderContext(assembled); contextBlock != "" {
		messages = append(messages, Message{Role: "system", Content: contextBlock})
	}

	if tagBlock := renderTags(tags); tagBlock != "" {
		messages = append(messages, Message{Role: "system", Content: tagBlock})
	}

	messages = append(messages, Message{Role: "user", Content: userInput})
	return messages
}

// RenderContext serializes the assembled snapshot into a prompt block.
// Collections are rendered in a fixed order so identical snapshots
// always produce identical prompts.
func RenderContext(assembled *models.AssembledContext) string {
	if assembled == nil || assembled.EntityCount() == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Project context (read-only snapshot):\n")

	for _, project := range assembled.Projects {
		fmt.Fprintf(&b, "\nProject: %s", project.Name)
		if project.Description != "" {
			fmt.Fprintf(&b, " - %s", project.Description)
		}
	}

	if len(assembled.Tracks) > 0 {
		b.WriteString("\n\nTracks:")
		for _, track := range assembled.Tracks {
			fmt.Fprintf(&b, "\n- %s", track.Name)
			if track.Shared {
				b.WriteString(" (shared)")
			}
			if track.Description != "" {
				fmt.Fprintf(&b, ": %s", track.Description)
			}
		}
	}

	if len(assembled.Items) > 0 {
		b.WriteString("\n\nRoadmap items:")
		for _, item := range assembled.Items {
			fmt.Fprintf(&b, "\n- %s", item.Title)
			if item.DueAt != nil {
				fmt.Fprintf(&b, " (due %s)", item.DueAt.Format("2006-01-02"))
			}
			if item.Body != "" {
				fmt.Fprintf(&b, ": %s", item.Body)
			}
		}
	}

	if len(assembled.TrackedTasks) > 0 {
		b.WriteString("\n\nTasks:")
		for _, task := range assembled.TrackedTasks {
			fmt.Fprintf(&b, "\n- [%s] %s", task.State, task.Title)
		}
	}

	if len(assembled.Deadlines) > 0 {
		b.WriteString("\n\nDeadlines:")
		for _, deadline := range assembled.Deadlines {
			fmt.Fprintf(&b, "\n- %s: %s", deadline.DueAt.Format("2006-01-02"), deadline.Title)
		}
	}

	if len(assembled.People) > 0 {
		b.WriteString("\n\nPeople:")
		for _, person := range assembled.People {
			fmt.Fprintf(&b, "\n- %s", person.DisplayName)
		}
	}

	if len(assembled.Collaboration) > 0 {
		b.WriteString("\n\nRecent activity:")
		for _, event := range assembled.Collaboration {
			fmt.Fprintf(&b, "\n- %s: %s %s", event.OccurredAt.Format("2006-01-02"), event.Action, event.Detail)
		}
	}

	if len(assembled.GraphNodes) > 0 {
		b.WriteString("\n\nDependency graph:")
		labels := make(map[string]string, len(assembled.GraphNodes))
		for _, node := range assembled.GraphNodes {
			labels[node.ID.String()] = node.Label
		}
		for _, edge := range assembled.GraphEdges {
			fmt.Fprintf(&b, "\n- %s %s %s", labels[edge.FromID.String()], edge.Relation, labels[edge.ToID.String()])
		}
	}

	fmt.Fprintf(&b, "\n\nSnapshot taken: %s", assembled.AssembledAt.Format(time.RFC3339))
	return b.String()
}

// renderTags lists the entities the user referenced with @tags, plus a
// note for every reference that could not be pinned to one entity.
func renderTags(tags []models.ResolvedTag) string {
	if len(tags) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("The user referenced these entities by tag:")
	for _, tag := range tags {
		switch tag.Status {
		case models.TagResolved:
			fmt.Fprintf(&b, "\n- %s: %s %q", tag.Raw, tag.EntityType, tag.DisplayName)
		case models.TagAmbiguous:
			names := make([]string, 0, len(tag.Candidates))
			for _, c := range tag.Candidates {
				names = append(names, c.DisplayName)
			}
			fmt.Fprintf(&b, "\n- %s is ambiguous (could be: %s); do not guess which", tag.Raw, strings.Join(names, ", "))
		case models.TagUnresolved:
			fmt.Fprintf(&b, "\n- %s did not match anything the user can see", tag.Raw)
		}
	}
	return b.String()
}
