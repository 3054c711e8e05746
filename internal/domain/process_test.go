package domain

import (
	"testing"
	"time"
)

func TestApply_ProgressIsMonotonicAndClamped(t *testing.T) {
	now := time.Now()
	p := NewProcess("p1")

	p = p.Apply(ProcessUpdate{Progress: Ptr(50)}, now)
	p = p.Apply(ProcessUpdate{Progress: Ptr(25)}, now)
	if p.Progress != 50 {
		t.Fatalf("progress decreased to %d", p.Progress)
	}
	p = p.Apply(ProcessUpdate{Progress: Ptr(140)}, now)
	if p.Progress != 100 {
		t.Fatalf("progress not clamped, got %d", p.Progress)
	}
}

func TestApply_AppendOnlyFields(t *testing.T) {
	now := time.Now()
	p := NewProcess("p1").Apply(ProcessUpdate{ScriptText: Ptr("first"), AIVideoURL: Ptr("https://a/1.mp4")}, now)
	p = p.Apply(ProcessUpdate{ScriptText: Ptr("second"), AIVideoURL: Ptr(""), FinalVideoURL: Ptr("https://f/1.mp4")}, now)

	if p.ScriptText != "first" || p.AIVideoURL != "https://a/1.mp4" {
		t.Fatalf("append-only fields overwritten: %+v", p)
	}
	if p.FinalVideoURL != "https://f/1.mp4" {
		t.Fatalf("unset field should accept first value")
	}
}

func TestApply_TerminalStageIsSticky(t *testing.T) {
	now := time.Now()
	p := NewProcess("p1").Apply(ProcessUpdate{Stage: Ptr(StageFailed), Status: Ptr(ErrorPrefix + "boom"), Progress: Ptr(100)}, now)
	p = p.Apply(ProcessUpdate{Stage: Ptr(StageCompositing), Status: Ptr("Compositing...")}, now)
	if p.Stage != StageFailed || !p.Failed() {
		t.Fatalf("terminal stage left: %+v", p)
	}
}

func TestApply_PreservesUnrelatedFields(t *testing.T) {
	now := time.Now()
	p := NewProcess("p1").Apply(ProcessUpdate{VoiceID: Ptr("v1"), Progress: Ptr(10)}, now)
	p = p.Apply(ProcessUpdate{Cancelled: Ptr(true)}, now)
	if p.VoiceID != "v1" || p.Progress != 10 || !p.Cancelled {
		t.Fatalf("merge lost fields: %+v", p)
	}
}

func TestOutcome(t *testing.T) {
	now := time.Now()

	inFlight := NewProcess("p").Apply(ProcessUpdate{Progress: Ptr(40)}, now)
	if o := inFlight.Outcome(); o.Kind != OutcomeProgress || o.Progress != 40 {
		t.Fatalf("in-flight outcome = %+v", o)
	}

	ok := NewProcess("p").Apply(ProcessUpdate{Progress: Ptr(100), FinalVideoURL: Ptr("https://x/final.mp4"), Stage: Ptr(StageDone), Status: Ptr("Done")}, now)
	if o := ok.Outcome(); o.Kind != OutcomeSuccess || o.FinalVideoURL != "https://x/final.mp4" {
		t.Fatalf("success outcome = %+v", o)
	}

	failed := NewProcess("p").Apply(ProcessUpdate{Progress: Ptr(100), Status: Ptr(ErrorPrefix + "timed out"), Stage: Ptr(StageFailed)}, now)
	o := failed.Outcome()
	if o.Kind != OutcomeFailed || o.Reason != "timed out" || o.FinalVideoURL != "" {
		t.Fatalf("failed outcome = %+v", o)
	}

	stopped := NewProcess("p").Apply(ProcessUpdate{Cancelled: Ptr(true)}, now).
		Apply(ProcessUpdate{Progress: Ptr(100), Status: Ptr(ErrorPrefix + "cancelled by user"), Stage: Ptr(StageFailed)}, now)
	if o := stopped.Outcome(); o.Kind != OutcomeFailed || !o.Cancelled {
		t.Fatalf("cancelled outcome = %+v", o)
	}
}

func TestStage_IsTerminal(t *testing.T) {
	if !StageDone.IsTerminal() || !StageFailed.IsTerminal() {
		t.Fatalf("DONE/FAILED must be terminal")
	}
	if StageSynthesizing.IsTerminal() {
		t.Fatalf("SYNTHESIZING must not be terminal")
	}
}

func TestGenerationRequest_HasFiles(t *testing.T) {
	if (GenerationRequest{}).HasFiles() {
		t.Fatalf("empty request has no files")
	}
	if !(GenerationRequest{VoiceMedia: &StagedFile{Key: "k"}}).HasFiles() {
		t.Fatalf("voice media file should count")
	}
}
