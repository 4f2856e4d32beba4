package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"leadpipe/internal/leadmodel"
)

// WebPortalTransport renders JS-heavy portals through a headless browser
// and optionally drives a declared multi-step form interaction (date-range
// submit) before scraping the resulting DOM, per spec §4.3: "multi-step
// form interaction for portals that require a date-range submit (steps
// declared in config, not code)." Steps live in Source.Params, never in a
// per-portal Go file, so adding a portal never requires a code change.
type WebPortalTransport struct {
	AllocatorOpts []chromedp.ExecAllocatorOption
	Timeout       time.Duration
}

func NewWebPortalTransport(timeout time.Duration) *WebPortalTransport {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &WebPortalTransport{
		AllocatorOpts: append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Headless),
		Timeout:       timeout,
	}
}

// PortalStep is one declarative browser action, parsed from
// Source.Params["steps"] by parsePortalSteps when Fetch runs.
type PortalStep struct {
	Action string // "fill", "select", "click", "wait"
	Target string // CSS selector
	Value  string // fill/select value; unused for click/wait
}

func (t *WebPortalTransport) Fetch(ctx context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, t.AllocatorOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, t.Timeout)
	defer cancelTimeout()

	steps := parsePortalSteps(source.Params)
	actions := make([]chromedp.Action, 0, len(steps)+2)
	actions = append(actions, chromedp.Navigate(source.OriginURL))
	for _, s := range steps {
		switch s.Action {
		case "fill":
			actions = append(actions, chromedp.SetValue(s.Target, s.Value, chromedp.ByQuery))
		case "select":
			actions = append(actions, chromedp.SetValue(s.Target, s.Value, chromedp.ByQuery))
		case "click":
			actions = append(actions, chromedp.Click(s.Target, chromedp.ByQuery))
		case "wait":
			actions = append(actions, chromedp.WaitVisible(s.Target, chromedp.ByQuery))
		}
	}
	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(timeoutCtx, actions...); err != nil {
		if timeoutCtx.Err() != nil {
			return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrTimeout, SourceID: source.ID, Err: err}
		}
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrNetwork, SourceID: source.ID, Err: err}
	}

	return &leadmodel.RawPayload{
		SourceID:    source.ID,
		Body:        []byte(html),
		ContentType: "text/html",
		FetchedAt:   time.Now().UTC(),
		StatusCode:  200,
	}, nil
}

// parsePortalSteps reads the "steps" param, a pipe-delimited list of
// "action:target:value" entries, into PortalSteps. An empty or absent
// param means the portal needs no interaction beyond navigation.
func parsePortalSteps(params map[string]string) []PortalStep {
	raw, ok := params["steps"]
	if !ok || raw == "" {
		return nil
	}
	var steps []PortalStep
	for _, entry := range strings.Split(raw, "|") {
		parts := strings.Split(entry, ":")
		if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
			continue
		}
		step := PortalStep{Action: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			step.Target = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			step.Value = strings.TrimSpace(parts[2])
		}
		steps = append(steps, step)
	}
	return steps
}
