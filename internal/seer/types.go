package seer

import (
	"fmt"
	"net/url"
	"strings"
)

// PredictReason says what triggered a prediction.
type PredictReason int

const (
	// PredictLink is a hover or focus on a link: needs target and referer.
	PredictLink PredictReason = iota + 1
	// PredictLoad is a top-level page load: needs target only.
	PredictLoad
	// PredictStartup is process startup: needs neither.
	PredictStartup
)

var predictReasonNames = map[PredictReason]string{
	PredictLink:    "link",
	PredictLoad:    "load",
	PredictStartup: "startup",
}

func (r PredictReason) String() string {
	if name, ok := predictReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("PredictReason(%d)", int(r))
}

// ParsePredictReason maps "link", "load" or "startup" to its reason.
func ParsePredictReason(s string) (PredictReason, error) {
	for r, name := range predictReasonNames {
		if strings.EqualFold(s, name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown predict reason %q: %w", s, ErrInvalidArgument)
}

// LearnReason says what kind of navigation event is being recorded.
type LearnReason int

const (
	// LearnTopLevel records a top-level load: needs target only.
	LearnTopLevel LearnReason = iota + 1
	// LearnRedirect records target as a redirect of referer: needs both.
	LearnRedirect
	// LearnSubresource records target as fetched by referer: needs both.
	LearnSubresource
	// LearnStartup records target as a startup page: needs target only.
	LearnStartup
)

var learnReasonNames = map[LearnReason]string{
	LearnTopLevel:    "toplevel",
	LearnRedirect:    "redirect",
	LearnSubresource: "subresource",
	LearnStartup:     "startup",
}

func (r LearnReason) String() string {
	if name, ok := learnReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("LearnReason(%d)", int(r))
}

// ParseLearnReason maps "toplevel", "redirect", "subresource" or "startup"
// to its reason.
func ParseLearnReason(s string) (LearnReason, error) {
	for r, name := range learnReasonNames {
		if strings.EqualFold(s, name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown learn reason %q: %w", s, ErrInvalidArgument)
}

// Observer is told about every action actually issued for a prediction.
type Observer interface {
	OnPredictPreconnect(u *url.URL)
	OnPredictDNS(u *url.URL)
}

// Connector opens a speculative connection. Fire and forget.
type Connector interface {
	Preconnect(u *url.URL)
}

// Resolver warms the DNS cache for an ASCII hostname. Fire and forget.
type Resolver interface {
	Resolve(host string)
}

// Preferences is the live on/off switch for the whole engine.
type Preferences interface {
	Enabled() bool
}

// LoadContext describes the browsing context a call comes from. A nil
// LoadContext is treated as not private.
type LoadContext interface {
	UsePrivateBrowsing() bool
}

// Executor runs tasks serially on the caller-facing goroutine.
// *loop.Loop satisfies it.
type Executor interface {
	Dispatch(fn func()) error
}

// BrowsingContext is a plain LoadContext.
type BrowsingContext struct {
	Private bool
}

func (c BrowsingContext) UsePrivateBrowsing() bool { return c.Private }

// StaticPreferences is a Preferences that never changes.
type StaticPreferences bool

func (p StaticPreferences) Enabled() bool { return bool(p) }

// Observers fans one notification out to several observers. Nil entries
// are ignored.
type Observers []Observer

func (os Observers) OnPredictPreconnect(u *url.URL) {
	for _, o := range os {
		if o != nil {
			o.OnPredictPreconnect(u)
		}
	}
}

func (os Observers) OnPredictDNS(u *url.URL) {
	for _, o := range os {
		if o != nil {
			o.OnPredictDNS(u)
		}
	}
}
