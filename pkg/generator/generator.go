// Package generator produces draft curriculum content from an OpenAI-compatible chat API.
package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrExhausted is returned when every candidate model failed.
var ErrExhausted = errors.New("all candidate models failed")

// Config configures the OpenAI backed generator.
type Config struct {
	APIKey  string
	BaseURL string
	Models  []string
	Timeout time.Duration
}

// ObjectivePrompt describes the skill objectives are generated for.
type ObjectivePrompt struct {
	SkillCode        string
	SkillDescription string
	DisciplineID     string
	GradeLevel       string
	Period           int
	Quantity         int
}

// ObjectiveDraft is the parsed generator output for objectives.
type ObjectiveDraft struct {
	Explanation string
	Objectives  []string
	Model       string
}

// RubricPrompt describes the objective a four level rubric is generated for.
type RubricPrompt struct {
	SkillCode string
	Objective string
}

// RubricDraft holds level descriptions indexed from level 1 to 4.
type RubricDraft struct {
	Levels [4]string
	Model  string
}

// Level returns the description of the 1-based level.
func (d *RubricDraft) Level(level int) string {
	if level < 1 || level > len(d.Levels) {
		return ""
	}
	return d.Levels[level-1]
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator tries each configured model in order until one produces usable output.
type OpenAIGenerator struct {
	client  chatCompleter
	models  []string
	timeout time.Duration
	logger  *zap.Logger
}

// New constructs a generator from configuration.
func New(cfg Config, logger *zap.Logger) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newWithClient(openai.NewClientWithConfig(clientCfg), cfg.Models, cfg.Timeout, logger)
}

func newWithClient(client chatCompleter, models []string, timeout time.Duration, logger *zap.Logger) *OpenAIGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &OpenAIGenerator{client: client, models: models, timeout: timeout, logger: logger}
}

const systemPrompt = "You are a senior curriculum specialist helping school teachers plan lessons."

// GenerateObjectives asks for quantity progressive lesson objectives covering the skill.
func (g *OpenAIGenerator) GenerateObjectives(ctx context.Context, prompt ObjectivePrompt) (*ObjectiveDraft, error) {
	if prompt.Quantity <= 0 {
		prompt.Quantity = 3
	}
	text := fmt.Sprintf(`Skill: %s - %s
Discipline: %s, grade %s, period %d.

Produce two outputs:
PART A: one short paragraph explaining how the objectives cover the skill progressively.
PART B: exactly %d practical lesson objectives. The first introduces the topic and the last consolidates the full skill.
Start each objective directly with a Bloom taxonomy verb, at most 15 words each, one per line.

Mandatory output format (use the "###" separator):
EXPLANATION: <your explanation>
###
<objective 1>
<objective 2>
...`, prompt.SkillCode, prompt.SkillDescription, prompt.DisciplineID, prompt.GradeLevel, prompt.Period, prompt.Quantity)

	var draft *ObjectiveDraft
	err := g.complete(ctx, text, func(model, output string) error {
		explanation, objectives := ParseObjectives(output, prompt.Quantity)
		if len(objectives) == 0 {
			return errors.New("no objectives in model output")
		}
		draft = &ObjectiveDraft{Explanation: explanation, Objectives: objectives, Model: model}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// GenerateRubric asks for a four level assessment rubric for a single objective.
func (g *OpenAIGenerator) GenerateRubric(ctx context.Context, prompt RubricPrompt) (*RubricDraft, error) {
	text := fmt.Sprintf(`Lesson objective: %s
Skill: %s

Write a four level assessment rubric for this objective:
level 1 (beginner), level 2 (basic), level 3 (proficient), level 4 (advanced).

Mandatory plain text output:
N1: <description>
N2: <description>
N3: <description>
N4: <description>`, prompt.Objective, prompt.SkillCode)

	var draft *RubricDraft
	err := g.complete(ctx, text, func(model, output string) error {
		levels, err := ParseRubric(output)
		if err != nil {
			return err
		}
		draft = &RubricDraft{Levels: levels, Model: model}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, prompt string, accept func(model, output string) error) error {
	if len(g.models) == 0 {
		return fmt.Errorf("%w: no models configured", ErrExhausted)
	}
	var failures []error
	for _, model := range g.models {
		output, err := g.call(ctx, model, prompt)
		if err == nil {
			err = accept(model, output)
		}
		if err == nil {
			g.logger.Debug("generator produced draft", zap.String("model", model))
			return nil
		}
		g.logger.Warn("generator backend failed", zap.String("model", model), zap.Error(err))
		failures = append(failures, fmt.Errorf("%s: %w", model, err))
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %w", ErrExhausted, errors.Join(failures...))
}

func (g *OpenAIGenerator) call(ctx context.Context, model, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion")
	}
	return content, nil
}

var (
	objectiveLabel = regexp.MustCompile(`(?i)^objective\s*\d+[:.]*$`)
	listMarker     = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)
)

// ParseObjectives splits "EXPLANATION: ... ### lines" output into the explanation and at
// most limit objectives. Output without a separator is treated as a bare objective list.
func ParseObjectives(output string, limit int) (string, []string) {
	explanation := ""
	body := output
	if head, tail, ok := strings.Cut(output, "###"); ok {
		explanation = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(head), "EXPLANATION:"))
		body = tail
	}

	objectives := make([]string, 0, limit)
	for _, line := range strings.Split(body, "\n") {
		cleaned := strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if cleaned == "" || strings.HasSuffix(cleaned, ":") || objectiveLabel.MatchString(cleaned) || cleaned == "###" {
			continue
		}
		objectives = append(objectives, cleaned)
		if limit > 0 && len(objectives) == limit {
			break
		}
	}
	return explanation, objectives
}

// ParseRubric reads "N1:".."N4:" lines. Every level must be present.
func ParseRubric(output string) ([4]string, error) {
	var levels [4]string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		for i := range levels {
			prefix := fmt.Sprintf("N%d:", i+1)
			if strings.HasPrefix(line, prefix) {
				levels[i] = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			}
		}
	}
	for i, level := range levels {
		if level == "" {
			return levels, fmt.Errorf("rubric level %d missing from model output", i+1)
		}
	}
	return levels, nil
}
