package main

import (
	stderrors "errors"
	"io"

	"github.com/wippyai/rbridge/console"
	"github.com/wippyai/rbridge/errors"
	"github.com/wippyai/rbridge/runtime"
)

// chunk is one piece of console output produced while evaluating.
type chunk struct {
	text string
	warn bool
}

type evalResult struct {
	err        error
	output     []chunk
	incomplete bool
}

// evalFunc evaluates one complete or partial input.
type evalFunc func(src string) evalResult

// evaluator captures R's console output per evaluation.
type evaluator struct {
	rt     *runtime.Runtime
	output []chunk
}

// newEvaluator reroutes cons's output slots into the evaluator.
func newEvaluator(rt *runtime.Runtime, cons *console.Registry) *evaluator {
	e := &evaluator{rt: rt}
	cons.InstallPrint(func(text string) { e.output = append(e.output, chunk{text: text}) })
	cons.InstallMessage(func(text string) { e.output = append(e.output, chunk{text: text}) })
	cons.InstallWarn(func(text string) { e.output = append(e.output, chunk{text: text, warn: true}) })
	return e
}

var incompleteTarget = &errors.Error{Phase: errors.PhaseParse, Kind: errors.KindParseIncomplete}

func (e *evaluator) eval(src string) evalResult {
	e.output = nil

	v, err := e.rt.Eval(src)
	if err != nil {
		if stderrors.Is(err, incompleteTarget) {
			return evalResult{incomplete: true}
		}
		return evalResult{output: e.output, err: err}
	}
	if v != e.rt.Native().Nil() {
		if err := e.rt.Print(v); err != nil {
			return evalResult{output: e.output, err: err}
		}
	}
	return evalResult{output: e.output}
}

// evalRequest carries one input to the goroutine that owns R.
type evalRequest struct {
	reply chan evalResult
	src   string
}

// evalServer lets other goroutines evaluate on R's thread.
type evalServer struct {
	requests chan evalRequest
}

func newEvalServer() *evalServer {
	return &evalServer{requests: make(chan evalRequest)}
}

// eval is safe to call from any goroutine while serve runs.
func (s *evalServer) eval(src string) evalResult {
	reply := make(chan evalResult, 1)
	s.requests <- evalRequest{src: src, reply: reply}
	return <-reply
}

// serve runs fn for each request on the calling goroutine until close.
func (s *evalServer) serve(fn evalFunc) {
	for req := range s.requests {
		req.reply <- fn(req.src)
	}
}

func (s *evalServer) close() {
	close(s.requests)
}

func writeOutput(w io.Writer, res evalResult) {
	for _, c := range res.output {
		io.WriteString(w, c.text)
	}
	if res.err != nil {
		io.WriteString(w, "Error: "+res.err.Error()+"\n")
	}
}
