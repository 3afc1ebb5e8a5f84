package trace

import (
	"context"
	"runtime/debug"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/model"
)

type tracedModel struct {
	t    *Tracer
	name string
	m    model.Model
}

type generateInputs struct {
	Instructions string         `json:"instructions,omitempty"`
	Contents     []contentInput `json:"contents"`
	Tools        []string       `json:"tools,omitempty"`
}

type contentInput struct {
	Role  string   `json:"role"`
	Text  string   `json:"text,omitempty"`
	Calls []string `json:"calls,omitempty"`
}

type generateOutput struct {
	Text         string              `json:"text,omitempty"`
	Calls        []core.FunctionCall `json:"calls,omitempty"`
	FinishReason string              `json:"finish_reason,omitempty"`
	Usage        *model.TokenUsage   `json:"usage,omitempty"`
}

// Model wraps m so that every Generate call emits one TraceEvent when its
// stream ends. The event's output is the final response; the error is the
// first error reported on the error channel. Every response of m is
// forwarded and the wrapper never reports an error m did not report.
func Model(t *Tracer, name string, m model.Model) model.Model {
	return &tracedModel{t: t, name: name, m: m}
}

func (tm *tracedModel) Info() model.Info { return tm.m.Info() }

func (tm *tracedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	c := tm.t.begin(ctx, tm.name, summarizeRequest(req))

	src, srcErr := func() (r <-chan model.Response, e <-chan error) {
		defer func() {
			if p := recover(); p != nil {
				c.end(nil, &core.PanicError{Value: p, Stack: debug.Stack()})
				panic(p)
			}
		}()
		return tm.m.Generate(ctx, req)
	}()

	out := make(chan model.Response, cap(src))
	errOut := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errOut)

		var (
			final    *model.Response
			firstErr error
		)

		for src != nil || srcErr != nil {
			select {
			case r, ok := <-src:
				if !ok {
					src = nil
					continue
				}
				if !r.Partial {
					rr := r
					final = &rr
				}
				out <- r
			case err, ok := <-srcErr:
				if !ok {
					srcErr = nil
					continue
				}
				if err != nil && firstErr == nil {
					firstErr = err
					errOut <- err
				}
			}
		}

		if firstErr != nil {
			c.end(nil, firstErr)
			return
		}

		var output generateOutput
		if final != nil {
			output = generateOutput{
				Text:         final.Content.Text(),
				Calls:        final.Content.FunctionCalls(),
				FinishReason: final.FinishReason,
				Usage:        final.Usage,
			}
		}
		c.end(output, nil)
	}()

	return out, errOut
}

func summarizeRequest(req model.Request) generateInputs {
	in := generateInputs{Instructions: req.Instructions, Contents: make([]contentInput, 0, len(req.Contents))}
	for _, c := range req.Contents {
		ci := contentInput{Role: c.Role, Text: c.Text()}
		for _, fc := range c.FunctionCalls() {
			ci.Calls = append(ci.Calls, fc.Name)
		}
		for _, p := range c.Parts {
			if fr, ok := p.(core.FunctionResponsePart); ok {
				ci.Calls = append(ci.Calls, fr.FunctionResponse.Name)
			}
		}
		in.Contents = append(in.Contents, ci)
	}
	for _, tool := range req.Tools {
		in.Tools = append(in.Tools, tool.Function.Name)
	}
	return in
}
