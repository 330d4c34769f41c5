// Package builtin registers every provider adapter fern ships with.
package builtin

import (
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/providers/asana"
	"github.com/Ramsey-B/fern/pkg/providers/awork"
	"github.com/Ramsey-B/fern/pkg/providers/calcom"
	"github.com/Ramsey-B/fern/pkg/providers/calendly"
	"github.com/Ramsey-B/fern/pkg/providers/clickup"
	"github.com/Ramsey-B/fern/pkg/providers/github"
	"github.com/Ramsey-B/fern/pkg/providers/googletasks"
	"github.com/Ramsey-B/fern/pkg/providers/jira"
	"github.com/Ramsey-B/fern/pkg/providers/microsoftcalendar"
	"github.com/Ramsey-B/fern/pkg/providers/microsofttodo"
	"github.com/Ramsey-B/fern/pkg/providers/nifty"
	"github.com/Ramsey-B/fern/pkg/providers/ticktick"
	"github.com/Ramsey-B/fern/pkg/providers/todoist"
	"github.com/Ramsey-B/fern/pkg/providers/trello"
)

// Adapters builds one adapter per supported provider.
func Adapters(deps providers.Deps) []providers.Adapter {
	return []providers.Adapter{
		asana.New(deps),
		awork.New(deps),
		calcom.New(deps),
		calendly.New(deps),
		clickup.New(deps),
		github.New(deps),
		googletasks.New(deps),
		jira.New(deps),
		microsoftcalendar.New(deps),
		microsofttodo.New(deps),
		nifty.New(deps),
		ticktick.New(deps),
		todoist.New(deps),
		trello.New(deps),
	}
}

// Registry returns a registry holding all built-in adapters.
func Registry(deps providers.Deps) *providers.Registry {
	return providers.NewRegistry(Adapters(deps)...)
}
