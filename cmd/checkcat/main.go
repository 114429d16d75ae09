/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// checkcat is a command-line front end over the checker: "check" runs a
// bounded breadth-first exploration of one of the example systems and
// prints a Pass/Fail/Incomplete report, "serve" runs the same exploration
// to completion and then exposes the resulting state space over HTTP for
// pkg/explorer clients to walk interactively, and "spawn" runs one of the
// actor-based example systems for real, one UDP socket per actor.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	stateright "github.com/helofel/stateright"
	"github.com/helofel/stateright/examples/abd"
	"github.com/helofel/stateright/examples/orderedlinkdemo"
	"github.com/helofel/stateright/examples/pingpong"
	"github.com/helofel/stateright/examples/tpc"
	"github.com/helofel/stateright/pkg/actor"
	"github.com/helofel/stateright/pkg/codec"
	"github.com/helofel/stateright/pkg/explorer"
	"github.com/helofel/stateright/pkg/logger"
	"github.com/helofel/stateright/pkg/spawn"
	"github.com/helofel/stateright/pkg/status"
	"github.com/helofel/stateright/pkg/system"
)

var allModels = []string{
	"pingpong-clock",
	"pingpong-bounded",
	"pingpong-unbounded",
	"orderedlink",
	"abd",
	"tpc",
}

// spawnModels are the actor-based systems whose opening moves come from
// OnStart, so they make progress over a real network. pingpong-clock
// (driven by a pre-seeded envelope no socket will ever deliver) and tpc
// (not an actor system) are excluded.
var spawnModels = []string{
	"pingpong-bounded",
	"pingpong-unbounded",
	"orderedlink",
	"abd",
}

type arguments struct {
	command  string
	model    string
	bound    int
	workers  int
	limit    uint32
	maxNat   uint32
	rmCount  int
	addr     string
	addrs    []string
	logLevel string
}

func parseArgs(args []string) (*arguments, error) {
	app := kingpin.New("checkcat", "Explores stateright example systems and reports invariant/witness results.")

	check := app.Command("check", "Run a bounded exploration and report Pass/Fail/Incomplete.")
	checkModel := check.Flag("model", "Which example system to explore.").Required().Enum(allModels...)
	checkBound := check.Flag("bound", "Maximum number of states to expand.").Default("1000000").Int()
	checkWorkers := check.Flag("workers", "Exploration goroutines; with more than one, counterexample paths are valid but not necessarily shortest.").Default("1").Int()
	checkLimit := check.Flag("limit", "Clock ceiling, pingpong-clock only.").Default("3").Uint32()
	checkMaxNat := check.Flag("maxNat", "max_nat bound, pingpong-bounded/unbounded only.").Default("1").Uint32()
	checkRMCount := check.Flag("rmCount", "Resource manager count, tpc only.").Default("3").Int()
	checkLogLevel := check.Flag("logLevel", "debug, info, warn, or error.").Default("info").Enum("debug", "info", "warn", "error")

	serve := app.Command("serve", "Explore to completion, then serve the state space over HTTP.")
	serveModel := serve.Flag("model", "Which example system to explore.").Required().Enum(allModels...)
	serveBound := serve.Flag("bound", "Maximum number of states to expand.").Default("1000000").Int()
	serveLimit := serve.Flag("limit", "Clock ceiling, pingpong-clock only.").Default("3").Uint32()
	serveMaxNat := serve.Flag("maxNat", "max_nat bound, pingpong-bounded/unbounded only.").Default("1").Uint32()
	serveRMCount := serve.Flag("rmCount", "Resource manager count, tpc only.").Default("3").Int()
	serveAddr := serve.Flag("addr", "Address to listen on.").Default(":8080").String()
	serveLogLevel := serve.Flag("logLevel", "debug, info, warn, or error.").Default("info").Enum("debug", "info", "warn", "error")

	spawnCmd := app.Command("spawn", "Run an example system's actors for real over UDP instead of exploring them.")
	spawnModel := spawnCmd.Flag("model", "Which example system to run.").Required().Enum(spawnModels...)
	spawnMaxNat := spawnCmd.Flag("maxNat", "max_nat bound, pingpong models only.").Default("5").Uint32()
	spawnAddrs := spawnCmd.Flag("addr", "host:port for one actor; repeat once per actor, in actor-id order.").Required().Strings()
	spawnLogLevel := spawnCmd.Flag("logLevel", "debug, info, warn, or error.").Default("info").Enum("debug", "info", "warn", "error")

	cmd, err := app.Parse(args)
	if err != nil {
		return nil, err
	}

	a := &arguments{command: cmd}
	switch cmd {
	case "check":
		a.model, a.bound, a.workers, a.limit, a.maxNat, a.rmCount, a.logLevel =
			*checkModel, *checkBound, *checkWorkers, *checkLimit, *checkMaxNat, *checkRMCount, *checkLogLevel
	case "serve":
		// Serving requires the single-threaded checker's retained states.
		a.workers = 1
		a.model, a.bound, a.limit, a.maxNat, a.rmCount, a.addr, a.logLevel =
			*serveModel, *serveBound, *serveLimit, *serveMaxNat, *serveRMCount, *serveAddr, *serveLogLevel
	case "spawn":
		a.model, a.maxNat, a.addrs, a.logLevel =
			*spawnModel, *spawnMaxNat, *spawnAddrs, *spawnLogLevel
	}
	return a, nil
}

func newLogger(level string) (logger.Logger, error) {
	var lvl logger.Level
	switch level {
	case "debug":
		lvl = logger.LevelDebug
	case "warn":
		lvl = logger.LevelWarn
	case "error":
		lvl = logger.LevelError
	default:
		lvl = logger.LevelInfo
	}
	z, err := logger.NewZapLoggerAtLevel(lvl)
	if err != nil {
		return nil, errors.Wrap(err, "building zap logger")
	}
	return z, nil
}

// toStatus flattens a generic CheckResult into the plain status.Checker
// shape this command's reporting prints.
func toStatus[S any](generated uint64, result stateright.CheckResult[S]) status.Checker {
	names := make([]string, 0, len(result.Properties))
	for name := range result.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	props := make([]status.Property, 0, len(names))
	for _, name := range names {
		p := result.Properties[name]
		props = append(props, status.Property{
			Name:       name,
			Kind:       p.Kind.String(),
			Violated:   p.Violated,
			Satisfied:  p.Satisfied,
			HasWitness: p.HasWitness,
			Witness:    p.Witness,
		})
	}

	return status.Checker{
		Status:         result.Status.String(),
		FailedProperty: result.FailedProperty,
		FrontierSize:   result.FrontierSize,
		VisitedCount:   result.VisitedCount,
		GeneratedCount: generated,
		Properties:     props,
	}
}

func printReport(w *os.File, model string, s status.Checker) {
	fmt.Fprintf(w, "model:  %s\n", model)
	fmt.Fprintf(w, "status: %s\n", s.Status)
	if s.FailedProperty != "" {
		fmt.Fprintf(w, "failed: %s\n", s.FailedProperty)
	}
	fmt.Fprintf(w, "states: %d generated", s.GeneratedCount)
	if s.Status == "Incomplete" {
		fmt.Fprintf(w, ", %d visited, %d still pending\n", s.VisitedCount, s.FrontierSize)
	} else {
		fmt.Fprintln(w)
	}
	for _, p := range s.Properties {
		outcome := "?"
		switch p.Kind {
		case "always":
			if p.Violated {
				outcome = "violated"
			} else {
				outcome = "holds"
			}
		case "sometimes":
			if p.Satisfied {
				outcome = "witnessed"
			} else {
				outcome = "unwitnessed"
			}
		}
		fmt.Fprintf(w, "  %-20s %-9s %s\n", p.Name, p.Kind, outcome)
	}
}

// runCheck runs a checker to a Pass/Fail/Incomplete result and returns
// the flattened report alongside an HTTP-servable adapter for "serve".
// With more than one worker the parallel variant is used; it retains no
// states for serving and its counterexample paths are valid but not
// necessarily shortest.
func runCheck[S any](model stateright.Model[S], bound, workers int, log logger.Logger) (status.Checker, explorer.Served) {
	if workers > 1 {
		pc := stateright.NewParallelChecker[S](model, stateright.KeepPathsYes, workers, log)
		result := pc.Check(bound)
		return toStatus(pc.GeneratedCount(), result), nil
	}
	c := stateright.NewChecker[S](model, stateright.KeepPathsYes, log)
	c.EnableServing()
	result := c.Check(bound)
	return toStatus(c.GeneratedCount(), result), explorer.Adapt(c)
}

// runSpawn binds one UDP socket per actor of sys and runs the actors for
// real through pkg/spawn, blocking until interrupted. The gob codec is
// used since both ends of every socket are this same binary.
func runSpawn[Msg comparable, State any](ctx context.Context, sys *system.System[Msg, State], addrs []string, log logger.Logger) error {
	if len(addrs) != len(sys.Actors) {
		return errors.Errorf("model has %d actors but %d --addr flags were given", len(sys.Actors), len(addrs))
	}
	peers := make([]spawn.Peer, len(sys.Actors))
	actors := make(map[actor.Id]actor.Actor[Msg, State], len(sys.Actors))
	for i, act := range sys.Actors {
		id := actor.Id(i)
		peers[i] = spawn.Peer{Id: id, Addr: addrs[i]}
		actors[id] = act
		fmt.Printf("actor %d on %s\n", id, addrs[i])
	}
	return spawn.Run(ctx, peers, actors, codec.Gob[Msg](), log)
}

func (a *arguments) spawnActors(log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch a.model {
	case "pingpong-bounded", "pingpong-unbounded":
		return runSpawn(ctx, pingpong.System(a.maxNat), a.addrs, log)
	case "orderedlink":
		return runSpawn(ctx, orderedlinkdemo.System(), a.addrs, log)
	case "abd":
		return runSpawn(ctx, abd.System(), a.addrs, log)
	default:
		return errors.Errorf("model %q cannot be spawned", a.model)
	}
}

func build(a *arguments, log logger.Logger) (status.Checker, explorer.Served, error) {
	switch a.model {
	case "pingpong-clock":
		s, served := runCheck[system.Snapshot[pingpong.ClockMsg, pingpong.ClockState]](pingpong.ClockSystem(a.limit), a.bound, a.workers, log)
		return s, served, nil
	case "pingpong-bounded", "pingpong-unbounded":
		s, served := runCheck[system.Snapshot[pingpong.PingPongMsg, pingpong.PingPongState]](pingpong.System(a.maxNat), a.bound, a.workers, log)
		return s, served, nil
	case "orderedlink":
		s, served := runCheck[orderedlinkdemo.Snapshot](orderedlinkdemo.System(), a.bound, a.workers, log)
		return s, served, nil
	case "abd":
		s, served := runCheck[abd.Snapshot](abd.System(), a.bound, a.workers, log)
		return s, served, nil
	case "tpc":
		s, served := runCheck[tpc.State](tpc.Model{Sys: tpc.System{RMCount: a.rmCount}}, a.bound, a.workers, log)
		return s, served, nil
	default:
		return status.Checker{}, nil, errors.Errorf("unknown model %q", a.model)
	}
}

func (a *arguments) execute() error {
	log, err := newLogger(a.logLevel)
	if err != nil {
		return err
	}

	if a.command == "spawn" {
		return a.spawnActors(log)
	}

	report, served, err := build(a, log)
	if err != nil {
		return err
	}

	switch a.command {
	case "check":
		printReport(os.Stdout, a.model, report)
		if report.Status == "Fail" {
			return errors.Errorf("property %q violated", report.FailedProperty)
		}
		return nil
	case "serve":
		printReport(os.Stdout, a.model, report)
		srv := explorer.New(served)
		fmt.Printf("serving %s's state space on %s\n", a.model, a.addr)
		return http.ListenAndServe(a.addr, srv.Handler())
	default:
		return errors.Errorf("unknown command %q", a.command)
	}
}

func main() {
	kingpin.Version("0.0.1")
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("failed to parse arguments, %s, try --help", err)
	}
	if err := args.execute(); err != nil {
		kingpin.Fatalf("%s", err)
	}
}
