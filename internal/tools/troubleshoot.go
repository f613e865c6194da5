// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"strings"

	"github.com/LavonTMCQ/spear-agents/internal/schema"
	"github.com/LavonTMCQ/spear-agents/internal/tool"
)

// SymptomKind is the closed set of connection symptoms the guide covers.
// Unknown free text maps to SymptomOther, so every input has a guide.
type SymptomKind string

const (
	SymptomNoConnection   SymptomKind = "no_connection"
	SymptomDeviceOffline  SymptomKind = "device_offline"
	SymptomSlowConnection SymptomKind = "slow_connection"
	SymptomBlackScreen    SymptomKind = "black_screen"
	SymptomAudioIssue     SymptomKind = "audio_issue"
	SymptomLoginFailure   SymptomKind = "login_failure"
	SymptomOther          SymptomKind = "other"
)

// ParseSymptom normalizes free text onto the closed symptom set.
func ParseSymptom(raw string) SymptomKind {
	switch SymptomKind(strings.ToLower(strings.TrimSpace(raw))) {
	case SymptomNoConnection, SymptomDeviceOffline, SymptomSlowConnection,
		SymptomBlackScreen, SymptomAudioIssue, SymptomLoginFailure:
		return SymptomKind(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return SymptomOther
	}
}

var troubleshootingGuides = map[SymptomKind][]string{
	SymptomNoConnection: {
		"Confirm the device is powered on and the status light is solid.",
		"Check that the device's network cable or Wi-Fi is connected.",
		"Restart the device and wait two minutes before retrying.",
	},
	SymptomDeviceOffline: {
		"Power-cycle the device at the wall, not just the button.",
		"Verify the site's internet connection is up.",
		"If the device stays offline for more than ten minutes, escalate.",
	},
	SymptomSlowConnection: {
		"Run a speed test on the same network as the device.",
		"Move the device closer to the access point or switch to wired.",
		"Close other high-bandwidth applications on the network.",
	},
	SymptomBlackScreen: {
		"Confirm the remote session connected (check the session indicator).",
		"Toggle the display privacy mode off and reconnect.",
		"Reboot the target machine if the screen remains black.",
	},
	SymptomAudioIssue: {
		"Check the session audio toggle is enabled.",
		"Verify the target machine's output device is not muted.",
	},
	SymptomLoginFailure: {
		"Confirm the email address matches the account on file.",
		"Use the password reset flow and retry with the new password.",
	},
	SymptomOther: {
		"Collect the device id and a description of what the customer sees.",
		"Check the device status and recent check-in history.",
		"Open a support ticket with the collected details.",
	},
}

// EscalationPolicy decides whether free-text notes warrant a human.
// Replaceable so deployments can plug in a smarter classifier.
type EscalationPolicy func(notes string) bool

// KeywordEscalation is the default policy: escalate when the notes mention
// terms that suggest data loss, security, or repeated failure.
func KeywordEscalation(notes string) bool {
	lowered := strings.ToLower(notes)
	for _, kw := range []string{"urgent", "security", "breach", "data loss", "days", "still broken", "again"} {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func troubleshootConnection() *tool.Tool {
	return troubleshootConnectionWith(KeywordEscalation)
}

func troubleshootConnectionWith(escalate EscalationPolicy) *tool.Tool {
	return &tool.Tool{
		Name:        "troubleshootConnection",
		Description: "Return step-by-step guidance for a connection symptom.",
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["symptom"],
			"properties": {
				"symptom": {"type": "string", "minLength": 1},
				"notes": {"type": "string"}
			},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["symptom", "steps", "escalate"],
			"properties": {
				"symptom": {"type": "string"},
				"steps": {"type": "array", "items": {"type": "string"}},
				"escalate": {"type": "boolean"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			kind := ParseSymptom(input["symptom"].(string))
			notes, _ := input["notes"].(string)

			steps := troubleshootingGuides[kind]
			out := make([]any, len(steps))
			for i, s := range steps {
				out[i] = s
			}

			return tool.Success(map[string]any{
				"symptom":  string(kind),
				"steps":    out,
				"escalate": escalate(notes),
			})
		},
	}
}
