package pipeline_test

import (
	"testing"

	"parlower/internal/ir"
	"parlower/internal/pipeline"
	"parlower/internal/rtconfig"
)

type recordingSink struct {
	events []pipeline.Event
}

func (r *recordingSink) OnEvent(e pipeline.Event) { r.events = append(r.events, e) }

func buildMainOnlyModule() *ir.Module {
	m := ir.NewModule()
	b := ir.NewBuilder(m)
	intType := m.Types.New(ir.TypePrimitive, "int")

	mainFn := ir.NewFunc("main")
	mainID := m.AddFunc(mainFn)
	mainFn.Body = m.NewBlock(mainID)

	one := m.Symbols.New(ir.SymVar, "one", intType.ID)
	m.AppendStmt(mainFn.Body, b.DefExpr(one.ID, ir.NoNodeID))

	return m
}

// Every stage reports a working/done pair, in declaration order, and
// the run succeeds against a module with no distributed constructs at
// all (single-locale config, so heapprom/widen/localspec/globalinit
// are all no-ops but still report done).
func TestRunEmitsEventsForEveryStageInOrder(t *testing.T) {
	m := buildMainOnlyModule()
	sink := &recordingSink{}

	cfg := rtconfig.Default()
	cfg.FLocal = true

	_, err := pipeline.Run(pipeline.Request{Module: m, Config: cfg, Progress: sink})
	if err != nil {
		t.Fatalf("pipeline.Run: %v", err)
	}

	wantStages := []pipeline.Stage{
		pipeline.StageBundle,
		pipeline.StageHeapProm,
		pipeline.StageEndCount,
		pipeline.StageWiden,
		pipeline.StageLocalSpec,
		pipeline.StageGlobalInit,
	}

	var gotDone []pipeline.Stage
	for _, e := range sink.events {
		if e.Status == pipeline.StatusDone {
			gotDone = append(gotDone, e.Stage)
		}
		if e.Status == pipeline.StatusError {
			t.Fatalf("unexpected error event for stage %s: %v", e.Stage, e.Err)
		}
	}

	if len(gotDone) != len(wantStages) {
		t.Fatalf("got %d done events, want %d: %v", len(gotDone), len(wantStages), gotDone)
	}
	for i, want := range wantStages {
		if gotDone[i] != want {
			t.Fatalf("stage %d: got %s, want %s", i, gotDone[i], want)
		}
	}
}

// A module with no function named main fails fast, before any stage
// runs, rather than letting endcount discover the problem partway
// through.
func TestRunRejectsModuleWithoutMain(t *testing.T) {
	m := ir.NewModule()
	b := ir.NewBuilder(m)
	fn := ir.NewFunc("notMain")
	fnID := m.AddFunc(fn)
	fn.Body = m.NewBlock(fnID)
	m.AppendStmt(fn.Body, b.Call(fnID))

	_, err := pipeline.Run(pipeline.Request{Module: m, Config: rtconfig.Default()})
	if err == nil {
		t.Fatalf("expected an error for a module with no main function")
	}
}

// Timings reports a non-negative duration for every stage of a
// successful run.
func TestResultRecordsTimingsPerStage(t *testing.T) {
	m := buildMainOnlyModule()
	cfg := rtconfig.Default()
	cfg.FLocal = true

	result, err := pipeline.Run(pipeline.Request{Module: m, Config: cfg})
	if err != nil {
		t.Fatalf("pipeline.Run: %v", err)
	}

	for _, stage := range []pipeline.Stage{
		pipeline.StageBundle,
		pipeline.StageHeapProm,
		pipeline.StageEndCount,
		pipeline.StageWiden,
		pipeline.StageLocalSpec,
		pipeline.StageGlobalInit,
	} {
		if result.Timings.Duration(stage) < 0 {
			t.Fatalf("stage %s: negative duration recorded", stage)
		}
	}
}
