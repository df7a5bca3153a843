// Package pipeline orchestrates every lowering sub-pass in dependency
// order against one module, reporting progress through a ProgressSink
// the way a multi-stage compiler run reports per-stage status.
package pipeline

import (
	"time"

	"parlower/internal/bundle"
	"parlower/internal/endcount"
	"parlower/internal/globalinit"
	"parlower/internal/heapprom"
	"parlower/internal/ice"
	"parlower/internal/ir"
	"parlower/internal/localspec"
	"parlower/internal/rtconfig"
	"parlower/internal/widen"
)

// Request configures one pipeline run.
type Request struct {
	Module   *ir.Module
	Config   rtconfig.Config
	Progress ProgressSink
}

// Result carries the timings collected across a completed run.
type Result struct {
	Timings Timings
}

// Run executes, in order: task-argument bundling, heap promotion of
// escaping globals and locals, end-count threading, wide-reference
// insertion, local-block specialization, and global heap
// initialization. Each stage rebuilds or invalidates whatever indices
// the next stage depends on before returning — a stage never has to
// defensively rebuild state a prior stage already promised to leave
// correct.
func Run(req Request) (Result, error) {
	var result Result
	if req.Module == nil {
		return result, ice.New("pipeline", nil, "nil module")
	}
	m := req.Module
	cfg := req.Config

	mainFn, err := findMain(m)
	if err != nil {
		return result, err
	}

	if err := runStage(&result, req.Progress, StageBundle, func() error {
		return bundle.Run(m, bundle.NewState())
	}); err != nil {
		return result, err
	}

	if err := runStage(&result, req.Progress, StageHeapProm, func() error {
		heapprom.Run(m, cfg)
		return nil
	}); err != nil {
		return result, err
	}

	if err := runStage(&result, req.Progress, StageEndCount, func() error {
		return endcount.Run(m, mainFn)
	}); err != nil {
		return result, err
	}

	if err := runStage(&result, req.Progress, StageWiden, func() error {
		return widen.Run(m, cfg)
	}); err != nil {
		return result, err
	}

	if err := runStage(&result, req.Progress, StageLocalSpec, func() error {
		return localspec.Run(m, cfg)
	}); err != nil {
		return result, err
	}

	if err := runStage(&result, req.Progress, StageGlobalInit, func() error {
		return globalinit.Run(m, cfg)
	}); err != nil {
		return result, err
	}

	return result, nil
}

func runStage(result *Result, sink ProgressSink, stage Stage, fn func() error) error {
	emit(sink, stage, StatusWorking, nil, 0)
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if err != nil {
		emit(sink, stage, StatusError, err, elapsed)
		return err
	}
	result.Timings.Set(stage, elapsed)
	emit(sink, stage, StatusDone, nil, elapsed)
	return nil
}

func emit(sink ProgressSink, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

// findMain locates the module's entry function by name, the convention
// the lowering stage that produces this IR already names it under.
func findMain(m *ir.Module) (ir.FuncID, error) {
	for _, fid := range sortedFuncIDs(m) {
		f := m.Func(fid)
		if f != nil && f.Name == "main" {
			return fid, nil
		}
	}
	return ir.NoFuncID, ice.New("pipeline", "main", "no function named main in module")
}
