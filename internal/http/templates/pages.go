package templates

import (
	"fmt"

	"github.com/a-h/templ"
)

const siteName = "Speechwriter"

func layout(title string, body templ.Component) templ.Component {
	return join(
		RawHTML(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<link rel="icon" href="/static/favicon.svg" type="image/svg+xml">`+
			`<link rel="stylesheet" href="/static/style.css"><title>`),
		Text(title),
		RawHTML(`</title></head><body><header><a class="brand" href="/">`+siteName+`</a></header><main>`),
		body,
		RawHTML(`</main><footer>`),
		Text(DefaultFooterNote),
		RawHTML(`</footer></body></html>`),
	)
}

// HomePage renders the topic form.
func HomePage(data HomePageData) templ.Component {
	parts := []templ.Component{
		RawHTML(`<section class="intro"><h1>Draft a speech</h1>` +
			`<p>Give a topic. A hosted model picks a title, then a second model writes about 350 words for it.</p>`),
	}

	if data.ShowCount {
		parts = append(parts, RawHTML(fmt.Sprintf(`<p class="count">%d speeches drafted so far.</p>`, data.DraftCount)))
	}
	parts = append(parts, RawHTML(`</section>`))

	if data.Warning != "" {
		parts = append(parts, RawHTML(`<p class="warning" role="alert">`), Text(data.Warning), RawHTML(`</p>`))
	}

	parts = append(parts, RawHTML(`<form method="post" action="/speech">`))
	if data.AskAPIKey {
		parts = append(parts, RawHTML(`<label for="api_key">OpenAI API key</label>`+
			`<input id="api_key" name="api_key" type="password" autocomplete="off">`))
	}
	parts = append(parts,
		RawHTML(`<label for="topic">Topic</label><input id="topic" name="topic" type="text" value="`),
		Text(data.Topic),
		RawHTML(`"><button type="submit">Write speech</button></form>`),
	)

	return layout(siteName, join(parts...))
}

// ResultPage renders the drafted title followed by the speech.
func ResultPage(data ResultPageData) templ.Component {
	parts := []templ.Component{
		RawHTML(`<article class="speech"><p class="topic">Topic: `),
		Text(data.Topic),
		RawHTML(`</p><h1>`),
		Text(data.Title),
		RawHTML(`</h1>`),
	}
	if data.TitleFallback {
		parts = append(parts, RawHTML(`<p class="notice">The title could not be generated; a placeholder was used.</p>`))
	}

	parts = append(parts, RawHTML(`<div class="body">`), Paragraphs(data.Speech), RawHTML(`</div>`))
	if data.SpeechFallback {
		parts = append(parts, RawHTML(`<p class="notice">The speech could not be generated.</p>`))
	}
	parts = append(parts, RawHTML(`<p><a href="/">Draft another speech</a></p></article>`))

	return layout(data.Title+" • "+siteName, join(parts...))
}

// ErrorPage renders a user-facing failure message.
func ErrorPage(data ErrorPageData) templ.Component {
	parts := []templ.Component{
		RawHTML(`<section class="error"><h1>`),
		Text(data.StatusLabel),
		RawHTML(`</h1><p>`),
		Text(data.Message),
		RawHTML(`</p>`),
	}
	if data.Title != "" {
		parts = append(parts, RawHTML(`<p>The title was ready: <strong>`), Text(data.Title), RawHTML(`</strong></p>`))
	}
	parts = append(parts, RawHTML(`<p><a href="/">Back to the form</a></p></section>`))

	return layout(data.StatusLabel+" • "+siteName, join(parts...))
}
