// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"slices"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

type Id int

const (
	FileNotFoundId Id = iota + 1
	ConfigLoadFailedId
	TrackerUnreachableId
	TrackerStartFailedId
	UnboundedSearchId
	InvalidNeedleId
	RemoteCommandFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue's markdown with glamour. stylePath is a glamour
// style name such as "dark", "light" or "notty".
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			md += "- <" + string(link) + ">\n"
		}
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	fileNotFoundIssue = &Issue{
		id: FileNotFoundId,
		mdMsg: `
# File not found!

One of the files you passed could not be opened.

## Things you can try:
- Check the path for typos; paths are relative to the current directory
- With ` + "`--tracker`" + `, paths are resolved on the tracker host:
~~~
$ scribe run --tracker host:2222 --token $TOKEN -- ls -l path/to/file
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Your config.cue could not be read or does not match the schema.

## Things you can try:
- Print the file scribe is using:
~~~
$ scribe config path
~~~
- Compare it with the defaults:
~~~
$ scribe config dump --format cue
~~~
- Durations are strings such as "300ms" or "24h"; counts must be positive`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	trackerUnreachableIssue = &Issue{
		id: TrackerUnreachableId,
		mdMsg: `
# Tracker unreachable!

scribe could not open an l2l session with the tracker.

## Things you can try:
- Make sure a tracker is running and note the address and token it prints:
~~~
$ scribe tracker serve --port 2222
~~~
- Tokens expire after ` + "`tracker.token_ttl`" + `; restart the tracker for a fresh one
- Check that the address is reachable from this machine`,
	}

	trackerStartFailedIssue = &Issue{
		id: TrackerStartFailedId,
		mdMsg: `
# Tracker failed to start!

The SSH listener could not be created.

## Things you can try:
- Pick another port, or 0 to let the system choose:
~~~
$ scribe tracker serve --port 0
~~~
- Ports below 1024 usually need elevated privileges`,
	}

	unboundedSearchIssue = &Issue{
		id: UnboundedSearchId,
		mdMsg: `
# Search is unbounded!

The needle matches more often than ` + "`search.max_matches`" + ` allows, or it
matches the empty string everywhere.

## Things you can try:
- Make the pattern more specific; ` + "`/x*/`" + ` matches at every position
- Restrict the search with ` + "`--range`" + `
- Raise the limit in config.cue:
~~~cue
search: max_matches: 50000
~~~`,
	}

	invalidNeedleIssue = &Issue{
		id: InvalidNeedleId,
		mdMsg: `
# Invalid search needle!

Needles of the form ` + "`/pattern/flags`" + ` are regular expressions
(ECMAScript syntax). Only the ` + "`i`" + ` and ` + "`m`" + ` flags are supported.

## Things you can try:
- Escape the slashes to search for a literal that looks like a regex
- Check brackets and groups are balanced:
~~~
$ scribe search '/(foo|bar)baz/i' notes.txt
~~~`,
	}

	remoteCommandFailedIssue = &Issue{
		id: RemoteCommandFailedId,
		mdMsg: `
# Remote command failed!

The tracker ran the command but it exited with a non-zero status.

## Things you can try:
- Run it interactively to see its full output:
~~~
$ scribe run --tracker host:2222 --token $TOKEN -- your command
~~~
- Remember the command runs in the tracker's working directory`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

A file could not be read or written.

## Things you can try:
- Check the file permissions:
~~~
$ ls -la path/to/file
~~~
- Use ` + "`--dry-run`" + ` to preview a replacement without writing`,
	}

	issues = map[Id]*Issue{
		fileNotFoundIssue.Id():        fileNotFoundIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		trackerUnreachableIssue.Id():  trackerUnreachableIssue,
		trackerStartFailedIssue.Id():  trackerStartFailedIssue,
		unboundedSearchIssue.Id():     unboundedSearchIssue,
		invalidNeedleIssue.Id():       invalidNeedleIssue,
		remoteCommandFailedIssue.Id(): remoteCommandFailedIssue,
		permissionDeniedIssue.Id():    permissionDeniedIssue,
	}
)

// Values returns every known issue ordered by id.
func Values() []*Issue {
	all := maps.Values(issues)
	slices.SortFunc(all, func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
	return all
}

func Get(id Id) *Issue {
	return issues[id]
}
