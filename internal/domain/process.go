package domain

import (
	"strings"
	"time"
)

// Stage is one step of the generation pipeline.
type Stage string

const (
	StageStarted        Stage = "STARTED"
	StageUploadingMedia Stage = "UPLOADING_MEDIA"
	StageScripting      Stage = "SCRIPTING"
	StageSynthesizing   Stage = "SYNTHESIZING"
	StageCompositing    Stage = "COMPOSITING"
	StageFinalizing     Stage = "FINALIZING"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

// IsTerminal reports whether no further transitions follow s.
func (s Stage) IsTerminal() bool { return s == StageDone || s == StageFailed }

// ErrorPrefix marks a failed process in the free-text status field.
const ErrorPrefix = "Error: "

// DefaultStatus is the status of a freshly created process record.
const DefaultStatus = "Starting..."

// GenerationProcess is the Progress Store record for one generation run.
// Stage-specific URL and script fields are append-only: once set they are
// never cleared or replaced. Progress never decreases.
type GenerationProcess struct {
	ProcessID          string    `json:"processId"`
	Progress           int       `json:"progress"`
	Status             string    `json:"status"`
	Stage              Stage     `json:"stage"`
	ScriptText         string    `json:"scriptText,omitempty"`
	VoiceID            string    `json:"voiceId,omitempty"`
	VoiceMediaURL      string    `json:"voiceMediaUrl,omitempty"`
	SupportingMediaURL string    `json:"supportingMediaUrl,omitempty"`
	AIVideoURL         string    `json:"aiVideoUrl,omitempty"`
	FinalVideoURL      string    `json:"finalVideoUrl,omitempty"`
	FailureReason      string    `json:"failureReason,omitempty"`
	Cancelled          bool      `json:"cancelled,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// NewProcess returns the default record created on first merge.
func NewProcess(id string) GenerationProcess {
	return GenerationProcess{
		ProcessID: id,
		Progress:  0,
		Status:    DefaultStatus,
		Stage:     StageStarted,
	}
}

// ProcessUpdate is a partial update. Nil fields are left untouched.
type ProcessUpdate struct {
	Progress           *int
	Status             *string
	Stage              *Stage
	ScriptText         *string
	VoiceID            *string
	VoiceMediaURL      *string
	SupportingMediaURL *string
	AIVideoURL         *string
	FinalVideoURL      *string
	FailureReason      *string
	Cancelled          *bool
}

// Apply merges u into p and returns the result. Progress is clamped to
// [0,100] and never lowered; append-only fields keep their first value.
// A terminal stage is never left once reached.
func (p GenerationProcess) Apply(u ProcessUpdate, now time.Time) GenerationProcess {
	if u.Progress != nil {
		v := clampPercent(*u.Progress)
		if v > p.Progress {
			p.Progress = v
		}
	}
	if u.Status != nil && !p.Stage.IsTerminal() {
		p.Status = *u.Status
	}
	if u.Stage != nil && !p.Stage.IsTerminal() {
		p.Stage = *u.Stage
	}
	setOnce(&p.ScriptText, u.ScriptText)
	setOnce(&p.VoiceID, u.VoiceID)
	setOnce(&p.VoiceMediaURL, u.VoiceMediaURL)
	setOnce(&p.SupportingMediaURL, u.SupportingMediaURL)
	setOnce(&p.AIVideoURL, u.AIVideoURL)
	setOnce(&p.FinalVideoURL, u.FinalVideoURL)
	setOnce(&p.FailureReason, u.FailureReason)
	if u.Cancelled != nil && *u.Cancelled {
		p.Cancelled = true
	}
	p.UpdatedAt = now
	return p
}

func setOnce(dst *string, v *string) {
	if v == nil || *v == "" || *dst != "" {
		return
	}
	*dst = *v
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Failed reports whether the status carries the error prefix.
func (p GenerationProcess) Failed() bool {
	return strings.HasPrefix(p.Status, ErrorPrefix)
}

// Terminal reports whether polling can stop.
func (p GenerationProcess) Terminal() bool { return p.Progress >= 100 }

// OutcomeKind discriminates Outcome.
type OutcomeKind string

const (
	OutcomeProgress OutcomeKind = "progress"
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeFailed   OutcomeKind = "failed"
)

// Outcome is the typed view of a process snapshot. Clients branch on Kind
// instead of parsing Status.
type Outcome struct {
	Kind          OutcomeKind `json:"kind"`
	Progress      int         `json:"progress"`
	FinalVideoURL string      `json:"finalVideoUrl,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Cancelled     bool        `json:"cancelled,omitempty"`
}

// Outcome derives the discriminated result from p.
func (p GenerationProcess) Outcome() Outcome {
	switch {
	case p.Progress < 100:
		return Outcome{Kind: OutcomeProgress, Progress: p.Progress}
	case p.Failed() || p.FinalVideoURL == "":
		reason := p.FailureReason
		if reason == "" {
			reason = strings.TrimPrefix(p.Status, ErrorPrefix)
		}
		return Outcome{Kind: OutcomeFailed, Progress: 100, Reason: reason, Cancelled: p.Cancelled}
	default:
		return Outcome{Kind: OutcomeSuccess, Progress: 100, FinalVideoURL: p.FinalVideoURL}
	}
}

// Script options accepted on submission.
const (
	ScriptOptionGPT    = "gpt"
	ScriptOptionCustom = "custom"
)

// StagedFile references bytes received at submission and parked in local
// staging until the upload stage pushes them to durable storage.
type StagedFile struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// GenerationRequest is the submitted form, persisted on the job row.
type GenerationRequest struct {
	ScriptOption       string      `json:"scriptOption"`
	Topic              string      `json:"topic,omitempty"`
	CustomScript       string      `json:"customScript,omitempty"`
	SupportingMediaURL string      `json:"supportingMediaUrl,omitempty"`
	SupportingMedia    *StagedFile `json:"supportingMediaFile,omitempty"`
	VoiceID            string      `json:"voiceId"`
	VoiceMediaURL      string      `json:"voiceMediaUrl,omitempty"`
	VoiceMedia         *StagedFile `json:"voiceMediaFile,omitempty"`
	HighResolution     bool        `json:"highResolution"`
}

// HasFiles reports whether the upload stage has work to do.
func (r GenerationRequest) HasFiles() bool {
	return r.SupportingMedia != nil || r.VoiceMedia != nil
}

// Ptr returns a pointer to v. Handy for building ProcessUpdate literals.
func Ptr[T any](v T) *T { return &v }
