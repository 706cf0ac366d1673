package controller

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/arclane/conduit/pkg/agent"
	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/task"
	"github.com/arclane/conduit/pkg/tool"
)

// stageSet is the full roster deep and standard mode build their stages
// from; each field is a distinct specialized agent sharing deps.Provider
// and deps.Tools (§4.6 "deep", "standard").
type stageSet struct {
	taskAnalysis  *agent.TaskAnalysis
	taskDecompose *agent.TaskDecompose
	planning      *agent.Planning
	executor      *agent.Executor
	observation   *agent.Observation
	summary       *agent.Summary
}

// toolFilterFor narrows a turn's visible tools to Options.AvailableTools
// (§6 "available_tools"), an allow-list the shared tool.Manager already
// supports via tool.AllowList; nil (every tool visible) when the caller
// did not name a subset.
func toolFilterFor(opts Options) tool.Filter {
	if len(opts.AvailableTools) == 0 {
		return nil
	}
	return tool.AllowList(opts.AvailableTools...)
}

func buildStageSet(deps Deps, opts Options) stageSet {
	filter := toolFilterFor(opts)
	base := func(name string) agent.Config {
		return agent.Config{Name: name, Provider: deps.Provider, Model: deps.Model, Tools: deps.Tools, ToolFilter: filter}
	}
	return stageSet{
		taskAnalysis:  agent.NewTaskAnalysis(base("task_analysis")),
		taskDecompose: agent.NewTaskDecompose(base("task_decompose")),
		planning:      agent.NewPlanning(base("planning")),
		executor:      agent.NewExecutor(base("executor")),
		observation:   agent.NewObservation(base("observation")),
		summary:       agent.NewSummary(base("summary")),
	}
}

// deepMode implements "TaskAnalysis -> TaskDecompose -> (Planning ->
// Executor -> Observation)+ -> Summary" (§4.6). The Planning/Executor/
// Observation group re-enters until every task reaches a terminal
// status, the remaining tasks are permanently blocked (ReadyTasks is
// empty but not all done: a hard dependency failed), or max_loop_count
// is reached.
func deepMode(deps Deps) ModeRunner {
	return func(ctx context.Context, sess *session.Context, opts Options) iter.Seq2[chunk.MessageChunk, error] {
		return func(yield func(chunk.MessageChunk, error) bool) {
			stages := buildStageSet(deps, opts)
			var total chunk.UsageStats

			if !runStage(deps.Obs, sess, stages.taskAnalysis, 0, yield, &total) {
				return
			}
			if sess.Cancelled() {
				return
			}
			if !runStage(deps.Obs, sess, stages.taskDecompose, 0, yield, &total) {
				return
			}
			if sess.Cancelled() {
				return
			}

			exhausted := true
			for i := 0; i < opts.maxLoop(deps.DefaultMaxLoopCount); i++ {
				if sess.Tasks.AllDone() {
					exhausted = false
					break
				}
				if len(sess.Tasks.ReadyTasks()) == 0 {
					// every remaining task is blocked on a failed hard
					// dependency; further iterations cannot help.
					exhausted = false
					break
				}

				if !runStage(deps.Obs, sess, stages.planning, i, yield, &total) {
					return
				}
				if sess.Cancelled() {
					return
				}
				if !runStage(deps.Obs, sess, stages.executor, i, yield, &total) {
					return
				}
				if sess.Cancelled() {
					return
				}
				if !runStage(deps.Obs, sess, stages.observation, i, yield, &total) {
					return
				}
				if sess.Cancelled() {
					return
				}

				if sess.Tasks.AllDone() {
					exhausted = false
					break
				}
			}

			if exhausted {
				deps.Obs.RecordLoopExhausted(ctx, "deep")
				errChunk := chunk.NewError(sess.ID(), uuid.NewString(), chunk.ErrLoopExhausted,
					"max loop count reached without every task reaching a terminal status", false)
				sess.Messages.Merge(errChunk)
				if !yield(*errChunk, nil) {
					return
				}
			}

			if !runStage(deps.Obs, sess, stages.summary, 0, yield, &total) {
				return
			}
			emitFinalAnswer(sess, yield, total)
		}
	}
}

// standardMode implements "TaskAnalysis -> Planning/Executor ->
// Summary": a single pass, not the repeated deep loop, and no
// TaskDecompose or Observation stage. Since nothing ever parses a
// completion marker in this mode, the controller itself closes out the
// one whole-request task after Executor returns (an Open Question
// decision, recorded in DESIGN.md).
func standardMode(deps Deps) ModeRunner {
	return func(ctx context.Context, sess *session.Context, opts Options) iter.Seq2[chunk.MessageChunk, error] {
		return func(yield func(chunk.MessageChunk, error) bool) {
			stages := buildStageSet(deps, opts)
			var total chunk.UsageStats

			if !runStage(deps.Obs, sess, stages.taskAnalysis, 0, yield, &total) {
				return
			}
			if sess.Cancelled() {
				return
			}

			taskID := sess.Tasks.CreateTask("handle the user's request")

			if !runStage(deps.Obs, sess, stages.planning, 0, yield, &total) {
				return
			}
			if sess.Cancelled() {
				return
			}
			if !runStage(deps.Obs, sess, stages.executor, 0, yield, &total) {
				return
			}
			if sess.Cancelled() {
				return
			}

			completed := task.StatusCompleted
			_ = sess.Tasks.UpdateTask(taskID, task.TaskUpdate{Status: &completed})

			if !runStage(deps.Obs, sess, stages.summary, 0, yield, &total) {
				return
			}
			emitFinalAnswer(sess, yield, total)
		}
	}
}

// rapidMode implements "single agent (Simple or Common) with tool loop;
// no analysis or summary unless force_summary" (§4.6). Common is chosen
// whenever the shared tool manager has at least one registered tool;
// Simple otherwise, since advertising a tool loop with nothing to call
// just wastes a round trip.
func rapidMode(deps Deps) ModeRunner {
	return func(ctx context.Context, sess *session.Context, opts Options) iter.Seq2[chunk.MessageChunk, error] {
		return func(yield func(chunk.MessageChunk, error) bool) {
			var total chunk.UsageStats

			cfg := agent.Config{Name: "rapid_agent", Provider: deps.Provider, Model: deps.Model, Tools: deps.Tools, ToolFilter: toolFilterFor(opts)}
			var a agent.Agent
			if deps.Tools != nil && len(deps.Tools.ListTools(nil)) > 0 {
				a = agent.NewCommonAgent(cfg)
			} else {
				a = agent.NewSimpleAgent(cfg)
			}

			if !runStage(deps.Obs, sess, a, 0, yield, &total) {
				return
			}
			if sess.Cancelled() {
				return
			}

			if opts.ForceSummary {
				summary := agent.NewSummary(agent.Config{Name: "summary", Provider: deps.Provider, Model: deps.Model})
				if !runStage(deps.Obs, sess, summary, 0, yield, &total) {
					return
				}
			}

			emitFinalAnswer(sess, yield, total)
		}
	}
}

// autoMode runs TaskRouter first and dispatches the rest of the turn
// to whichever of deep/standard/rapid it chose
// (audit_status["routed_mode"]), letting a caller skip picking a mode
// itself (§4.5 "TaskRouter... emits the name of the downstream agent
// mode").
func autoMode(deps Deps) ModeRunner {
	return func(ctx context.Context, sess *session.Context, opts Options) iter.Seq2[chunk.MessageChunk, error] {
		return func(yield func(chunk.MessageChunk, error) bool) {
			router := agent.NewTaskRouter(agent.Config{Name: "task_router", Provider: deps.Provider, Model: deps.Model})
			var total chunk.UsageStats
			if !runStage(deps.Obs, sess, router, 0, yield, &total) {
				return
			}
			if sess.Cancelled() {
				return
			}

			routed, _ := sess.AuditStatus().Get("routed_mode")
			mode, _ := routed.(string)

			var runner ModeRunner
			switch mode {
			case "deep":
				runner = deepMode(deps)
			case "rapid":
				runner = rapidMode(deps)
			default:
				runner = standardMode(deps)
			}

			for c, err := range runner(ctx, sess, opts) {
				if err != nil {
					if !yield(chunk.MessageChunk{}, err) {
						return
					}
					continue
				}
				if c.Type == chunk.TypeFinalAnswer && c.Metadata["aggregate"] == true {
					// fold the router stage's usage into the routed mode's aggregate
					usage := total
					if c.Usage != nil {
						usage.Add(*c.Usage)
					}
					c.Usage = &usage
				}
				if !yield(c, nil) {
					return
				}
			}
		}
	}
}

// customMode implements "caller supplies an AgentFlow of specific
// agents to run in order" (§4.6, §4.7).
func customMode(deps Deps) ModeRunner {
	return func(ctx context.Context, sess *session.Context, opts Options) iter.Seq2[chunk.MessageChunk, error] {
		return func(yield func(chunk.MessageChunk, error) bool) {
			if opts.Flow == nil {
				errChunk := chunk.NewError(sess.ID(), uuid.NewString(), chunk.ErrInvalidArgument, "custom mode requires an AgentFlow", false)
				sess.Messages.Merge(errChunk)
				yield(*errChunk, nil)
				return
			}

			var total chunk.UsageStats
			for c, err := range opts.Flow.RunStream(sess.Context(), sess) {
				if err != nil {
					if !yield(chunk.MessageChunk{}, err) {
						return
					}
					continue
				}
				if c.Usage != nil {
					total.Add(*c.Usage)
				}
				if !yield(c, nil) {
					return
				}
			}
			emitFinalAnswer(sess, yield, total)
		}
	}
}
