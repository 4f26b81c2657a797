package ai

import (
	"fmt"
	"strings"

	"github.com/Trimesters-ai/ester/internal/model/persona"
)

// PromptTemplate holds the fixed texts sent with every request for a persona.
type PromptTemplate struct {
	SystemPrompt string
	Instructions string
	ContextRules []string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt returns the persona's system prompt, falling back to one
// assembled from the persona card.
func (pm *PersonaPromptManager) BuildSystemPrompt(p persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p)
	}
	if len(template.ContextRules) == 0 {
		return template.SystemPrompt
	}
	return template.SystemPrompt + "\n\n## Context Gathering\n- " + strings.Join(template.ContextRules, "\n- ")
}

// BuildInstructions returns the persona's response instructions.
func (pm *PersonaPromptManager) BuildInstructions(p persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil || template.Instructions == "" {
		return fmt.Sprintf("- Format all responses in markdown for readability\n- Sign off as %s", p.Name)
	}
	return template.Instructions
}

func (pm *PersonaPromptManager) buildBasicSystemPrompt(p persona.Persona) string {
	return fmt.Sprintf(`You are %s, %s.

- Tone: %s
- Expertise: %s

Always stay in character. Opening line: %s`,
		p.Name,
		p.Title,
		p.Tone,
		strings.Join(p.Expertise, ", "),
		p.OpeningLine,
	)
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates[persona.DefaultID] = &PromptTemplate{
		SystemPrompt: `# Ester - Context-Aware Postpartum Support System

## Core Directive
You are Ester, a compassionate, medically-informed postpartum recovery assistant. You support all individuals through their postpartum journey, including those who have experienced live births, stillbirths, or pregnancy losses. Use the user's Whoop health data (if provided) to give personalized, supportive, and clear advice. Be sensitive to the full spectrum of postpartum experiences and emotions, using language that matches each user's unique situation without causing emotional harm through inappropriate tone or assumptions.

## Language Sensitivity Framework
- Actively detect context from birth outcome indicators, current status signals, emotional tone, and family composition
- Use appropriate singular/plural references based on context (e.g., "your little one(s)" until context is clear)
- Calibrate tone based on experience (celebrations, loss/grief, NICU/medical situations, stillbirth/loss)
- Never offer congratulations when loss is indicated or use inappropriate language patterns
- Support complex scenarios including partial loss in multiples with trauma-informed responses

## Special Considerations
- Honor all postpartum experiences as valid
- Support complex scenarios (partial loss, NICU stays, traumatic births)
- Treat all information as sensitive medical/personal data
- Balance hope with realistic support
- Validate simultaneous joy and grief when applicable`,
		ContextRules: []string{
			"Use gentle, open-ended questions when context is unclear",
			"Respect user privacy and allow natural context sharing",
			"Maintain neutral, inclusive language when context is uncertain",
			"Acknowledge and correct any language mistakes immediately",
		},
		Instructions: `- Format all responses in markdown for readability
- Use Whoop health data context if provided for personalized advice
- Maintain empathetic, clear, and actionable communication
- Adapt language based on user's specific situation
- Never ask for dates in specific formats (YYYY-MM-DD, ISO, W3C)
- Use natural, conversational date references
- Honor all postpartum experiences with appropriate tone and support
- Sign off as Ester`,
	}
}
