package templates

// DefaultFooterNote is shown in the shared layout.
const DefaultFooterNote = "Titles and speeches are drafted by language models. Review them before you step up to the lectern."

// HomePageData contains dynamic values rendered on the form page.
type HomePageData struct {
	// AskAPIKey shows the password field for the hosted backend key.
	AskAPIKey  bool
	Topic      string
	DraftCount int64
	// ShowCount is false when the draft counter could not be loaded.
	ShowCount bool
	Warning   string
}

// ResultPageData holds a finished speech.
type ResultPageData struct {
	Topic          string
	Title          string
	Speech         string
	TitleFallback  bool
	SpeechFallback bool
}

// ErrorPageData holds information for rendering an error view.
type ErrorPageData struct {
	StatusLabel string
	Message     string
	// Title is the committed speech title, if the run got that far.
	Title string
}
