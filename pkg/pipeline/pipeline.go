// Package pipeline runs template flows such as
// `|> url2md |> chat::PROFILE::"prompt with $$"` against a list of inputs.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/odosui/agora/pkg/profiles"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Placeholder is replaced by the step input in chat prompts.
const Placeholder = "$$"

var (
	ErrUnknownTemplate = errors.New("pipeline: template not registered")
	ErrUnknownService  = errors.New("pipeline: service not registered")
)

// Service transforms the input list of one step. conf holds the `::`
// separated arguments following the service name.
type Service func(ctx context.Context, input []string, conf []string) ([]string, error)

type Step struct {
	Service string
	Conf    []string
}

// ParseFlow splits a flow into its steps. Quoted arguments lose their quotes.
func ParseFlow(flow string) []Step {
	var steps []Step
	for _, raw := range strings.Split(flow, "|>") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, "::")
		st := Step{Service: strings.TrimSpace(parts[0])}
		for _, c := range parts[1:] {
			c = strings.TrimSpace(c)
			if len(c) >= 2 && strings.HasPrefix(c, `"`) && strings.HasSuffix(c, `"`) {
				c = c[1 : len(c)-1]
			}
			st.Conf = append(st.Conf, c)
		}
		steps = append(steps, st)
	}
	return steps
}

type Fetcher interface {
	FetchAsText(ctx context.Context, url string) (string, error)
}

type ProfileResolver interface {
	Resolve(name string) (profiles.Profile, error)
}

type Runner struct {
	services map[string]Service
}

func NewRunner(fetcher Fetcher, resolver ProfileResolver, newEngine profiles.EngineFactory) *Runner {
	r := &Runner{services: map[string]Service{}}
	r.Register("url2md", URL2MD(fetcher))
	r.Register("chat", Chat(resolver, newEngine))
	return r
}

func (r *Runner) Register(name string, s Service) {
	r.services[name] = s
}

// Run executes the template's steps in declared order and joins the final
// outputs with a blank line.
func (r *Runner) Run(ctx context.Context, templateID string, input []string) (string, error) {
	tpl, ok := FindTemplate(templateID)
	if !ok {
		return "", errors.Wrapf(ErrUnknownTemplate, "%q", templateID)
	}
	return r.RunFlow(ctx, tpl.Flow, input)
}

func (r *Runner) RunFlow(ctx context.Context, flow string, input []string) (string, error) {
	steps := ParseFlow(flow)
	for i, st := range steps {
		svc, ok := r.services[st.Service]
		if !ok {
			return "", errors.Wrapf(ErrUnknownService, "%q", st.Service)
		}
		log.Debug().Str("component", "pipeline").Int("step", i).Str("service", st.Service).Int("inputs", len(input)).Msg("running step")
		out, err := svc(ctx, input, st.Conf)
		if err != nil {
			return "", errors.Wrapf(err, "pipeline: step %d (%s)", i, st.Service)
		}
		input = out
	}
	return strings.Join(input, "\n\n"), nil
}

// URL2MD fetches every input URL concurrently. Outputs keep input order.
func URL2MD(f Fetcher) Service {
	return func(ctx context.Context, urls []string, _ []string) ([]string, error) {
		out := make([]string, len(urls))
		g, gctx := errgroup.WithContext(ctx)
		for i, u := range urls {
			g.Go(func() error {
				text, err := f.FetchAsText(gctx, u)
				if err != nil {
					return err
				}
				out[i] = fmt.Sprintf("## %s\n%s", u, text)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Chat sends the prompt (conf[1]) to a fresh engine for profile conf[0], with
// the placeholder replaced by the inputs.
func Chat(resolver ProfileResolver, newEngine profiles.EngineFactory) Service {
	return func(ctx context.Context, input []string, conf []string) ([]string, error) {
		if len(conf) < 2 {
			return nil, errors.New("chat: expected chat::PROFILE::PROMPT")
		}
		p, err := resolver.Resolve(conf[0])
		if err != nil {
			return nil, err
		}
		eng, err := newEngine(p, nil)
		if err != nil {
			return nil, err
		}
		defer eng.Destroy()

		prompt := strings.Replace(conf[1], Placeholder, strings.Join(input, "\n\n"), 1)
		reply, err := eng.OneTimeRun(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return []string{reply}, nil
	}
}

// SplitInput turns widget input into trimmed, non-empty lines.
func SplitInput(input string) []string {
	var out []string
	for _, l := range strings.Split(input, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
