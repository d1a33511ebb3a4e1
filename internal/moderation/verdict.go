package moderation

import "strings"

type Action string

const (
	ActionAllow Action = "allow"
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

// Kind names what is being screened. It is sent upstream as content_type.
type Kind string

const (
	KindQuestion Kind = "question"
	KindAnswer   Kind = "answer"
	KindComment  Kind = "comment"
	KindText     Kind = "text"
	KindImage    Kind = "image"
)

type Verdict struct {
	Allowed    bool               `json:"is_appropriate"`
	Confidence float64            `json:"confidence"`
	Categories map[string]float64 `json:"categories"`
	Reasons    []string           `json:"flagged_reasons"`
	Action     Action             `json:"moderation_action"`
}

// Allow is the verdict returned when screening is skipped or fails open.
func Allow() Verdict {
	return Verdict{
		Allowed:    true,
		Confidence: 1.0,
		Categories: map[string]float64{"normal": 1.0, "safe": 1.0},
		Reasons:    []string{},
		Action:     ActionAllow,
	}
}

// IsBlocked reports whether v must stop a submission. A flag verdict does not.
func IsBlocked(v Verdict) bool {
	return v.Action == ActionBlock || !v.Allowed
}

// wireVerdict is the moderation service response body.
type wireVerdict struct {
	IsAppropriate *bool              `json:"is_appropriate"`
	Confidence    float64            `json:"confidence"`
	Categories    map[string]float64 `json:"categories"`
	Reasons       []string           `json:"flagged_reasons"`
	Action        string             `json:"moderation_action"`
}

func (w wireVerdict) verdict() Verdict {
	action := Action(strings.ToLower(strings.TrimSpace(w.Action)))
	allowed := action != ActionBlock
	if w.IsAppropriate != nil {
		allowed = *w.IsAppropriate
	}
	switch action {
	case ActionAllow, ActionFlag, ActionBlock:
	default:
		action = ActionAllow
		if !allowed {
			action = ActionBlock
		}
	}
	v := Verdict{
		Allowed:    allowed,
		Confidence: clampConfidence(w.Confidence),
		Categories: w.Categories,
		Reasons:    w.Reasons,
		Action:     action,
	}
	if v.Categories == nil {
		v.Categories = map[string]float64{}
	}
	if v.Reasons == nil {
		v.Reasons = []string{}
	}
	return v
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
