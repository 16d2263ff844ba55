package http

import (
	"bytes"
	"context"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/a-h/templ"
	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"speechwriter/app/internal/db"
	"speechwriter/app/internal/http/templates"
	"speechwriter/app/internal/speech"
)

const (
	htmlContentType      = "text/html; charset=utf-8"
	errorFallbackMessage = "We couldn't draft your speech right now."
	missingKeyMessage    = "Please enter your OpenAI API key to continue."
	topicTooLongMessage  = "Please keep the topic under 500 characters."
	cancelledMessage     = "The request ended before the speech was finished."

	// maxTopicLength matches the maxLength declared on the JSON route.
	maxTopicLength = 500
)

type htmlResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type speechFormInput struct {
	RawBody []byte `contentType:"application/x-www-form-urlencoded"`
}

type speechAPIInput struct {
	Body struct {
		Topic  string `json:"topic,omitempty" maxLength:"500" doc:"What the speech is about"`
		APIKey string `json:"api_key,omitempty" doc:"Hosted backend key; falls back to the server key"`
	}
}

type speechAPIResponse struct {
	Body struct {
		Title          string `json:"title"`
		Speech         string `json:"speech"`
		State          string `json:"state"`
		TitleFallback  bool   `json:"title_fallback"`
		SpeechFallback bool   `json:"speech_fallback"`
	}
}

type healthResponse struct {
	Status int
	Body   struct {
		Status        string `json:"status"`
		Database      string `json:"database"`
		TitleBackend  string `json:"title_backend"`
		SpeechBackend string `json:"speech_backend"`
		Credential    string `json:"credential"`
	}
}

func (s *Server) registerHomeRoute() {
	huma.Get(s.api, "/", s.homeHandler, htmlOperation("Speech form"))
}

func (s *Server) registerSpeechFormRoute() {
	huma.Post(s.api, "/speech", s.speechFormHandler, htmlOperation(
		"Draft a speech from the form",
		stdhttp.StatusBadRequest,
		stdhttp.StatusUnauthorized,
		stdhttp.StatusBadGateway,
		stdhttp.StatusGatewayTimeout,
		stdhttp.StatusServiceUnavailable,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerSpeechAPIRoute() {
	huma.Post(s.api, "/api/speech", s.speechAPIHandler, func(op *huma.Operation) {
		op.Summary = "Draft a speech"
		op.Errors = []int{
			stdhttp.StatusBadRequest,
			stdhttp.StatusUnauthorized,
			stdhttp.StatusBadGateway,
			stdhttp.StatusGatewayTimeout,
			stdhttp.StatusServiceUnavailable,
		}
	})
}

func (s *Server) registerHealthRoute() {
	huma.Get(s.api, "/healthz", s.healthHandler, func(op *huma.Operation) {
		op.Summary = "Health check"
	})
}

func (s *Server) homeHandler(ctx context.Context, _ *struct{}) (*htmlResponse, error) {
	return s.renderForm(ctx, stdhttp.StatusOK, "", "")
}

func (s *Server) speechFormHandler(ctx context.Context, input *speechFormInput) (*htmlResponse, error) {
	values, err := url.ParseQuery(string(input.RawBody))
	if err != nil {
		s.logFailure(ctx, err, "parsing speech form", nil)
		return s.renderErrorResponse(ctx, stdhttp.StatusBadRequest, "The form could not be read. Please submit it again.", "")
	}

	topic := strings.TrimSpace(values.Get("topic"))
	if utf8.RuneCountInString(topic) > maxTopicLength {
		return s.renderForm(ctx, stdhttp.StatusBadRequest, topic, topicTooLongMessage)
	}

	result, err := s.speech.Generate(ctx, speech.Request{
		Topic:  topic,
		APIKey: values.Get("api_key"),
	})
	if err != nil {
		switch {
		case eris.Is(err, speech.ErrMissingCredential):
			return s.renderForm(ctx, stdhttp.StatusUnauthorized, topic, missingKeyMessage)
		case eris.Is(err, speech.ErrEmptyInput):
			return s.renderForm(ctx, stdhttp.StatusOK, "", "")
		}

		status, message := classifyError(err)
		s.logFailure(ctx, err, "drafting speech", logrus.Fields{"status": status})

		title := ""
		if result != nil && !result.TitleFallback {
			title = result.Title
		}
		return s.renderErrorResponse(ctx, status, message, title)
	}

	body, err := renderComponent(ctx, templates.ResultPage(templates.ResultPageData{
		Topic:          topic,
		Title:          result.Title,
		Speech:         result.Speech,
		TitleFallback:  result.TitleFallback,
		SpeechFallback: result.SpeechFallback,
	}))
	if err != nil {
		s.recordError(ctx, err, "rendering result page", nil)
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage, "")
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) speechAPIHandler(ctx context.Context, input *speechAPIInput) (*speechAPIResponse, error) {
	result, err := s.speech.Generate(ctx, speech.Request{
		Topic:  input.Body.Topic,
		APIKey: input.Body.APIKey,
	})
	if err != nil {
		switch {
		case eris.Is(err, speech.ErrMissingCredential):
			return nil, huma.Error401Unauthorized(missingKeyMessage)
		case eris.Is(err, speech.ErrEmptyInput):
			return nil, huma.Error400BadRequest("A topic is required to draft a speech.")
		}

		status, message := classifyError(err)
		s.logFailure(ctx, err, "drafting speech", logrus.Fields{"status": status})
		return nil, huma.NewError(status, message)
	}

	resp := &speechAPIResponse{}
	resp.Body.Title = result.Title
	resp.Body.Speech = result.Speech
	resp.Body.State = string(result.State)
	resp.Body.TitleFallback = result.TitleFallback
	resp.Body.SpeechFallback = result.SpeechFallback

	return resp, nil
}

func (s *Server) healthHandler(ctx context.Context, _ *struct{}) (*healthResponse, error) {
	resp := &healthResponse{}
	resp.Body.Status = "ok"
	resp.Body.Database = "ok"
	resp.Body.TitleBackend = s.backends.Title
	resp.Body.SpeechBackend = s.backends.Speech
	resp.Body.Credential = "configured"
	if s.speech.NeedsAPIKey() {
		resp.Body.Credential = "per_request"
	}
	resp.Status = stdhttp.StatusOK

	if err := db.Ping(ctx, s.db); err != nil {
		s.recordError(ctx, err, "pinging database", nil)
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
		resp.Status = stdhttp.StatusServiceUnavailable
	}

	return resp, nil
}

func (s *Server) renderForm(ctx context.Context, status int, topic, warning string) (*htmlResponse, error) {
	data := templates.HomePageData{
		AskAPIKey: s.speech.NeedsAPIKey(),
		Topic:     topic,
		Warning:   warning,
	}

	count, err := s.speech.DraftCount(ctx)
	if err != nil {
		s.logFailure(ctx, err, "counting drafted speeches", nil)
	} else {
		data.DraftCount = count
		data.ShowCount = true
	}

	body, err := renderComponent(ctx, templates.HomePage(data))
	if err != nil {
		s.recordError(ctx, err, "rendering speech form", nil)
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't render the speech form.", "")
	}

	return newHTMLResponse(status, body), nil
}

func renderComponent(ctx context.Context, component templ.Component) ([]byte, error) {
	var buf bytes.Buffer
	if err := component.Render(ctx, &buf); err != nil {
		return nil, eris.Wrap(err, "rendering component")
	}
	return buf.Bytes(), nil
}

func newHTMLResponse(status int, body []byte) *htmlResponse {
	return &htmlResponse{
		Status:      status,
		ContentType: htmlContentType,
		Body:        body,
	}
}

func htmlOperation(summary string, statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if summary != "" {
			op.Summary = summary
		}
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}

		statusCodes := append([]int{stdhttp.StatusOK}, statuses...)
		for _, status := range statusCodes {
			code := strconv.Itoa(status)
			op.Responses[code] = &huma.Response{
				Description: stdhttp.StatusText(status),
				Content: map[string]*huma.MediaType{
					htmlContentType: {
						Schema: &huma.Schema{Type: "string"},
					},
				},
			}
		}
	}
}

// classifyError maps pipeline failures onto a status and a message safe to show users.
func classifyError(err error) (int, string) {
	switch {
	case err == nil:
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	case eris.Is(err, speech.ErrCancelled):
		return stdhttp.StatusServiceUnavailable, cancelledMessage
	case eris.Is(err, speech.ErrStageTimeout):
		return stdhttp.StatusGatewayTimeout, "The speech writer took too long to answer. Please try again."
	case eris.Is(err, speech.ErrMalformedResponse):
		return stdhttp.StatusBadGateway, "The speech writer sent an answer we couldn't read. Please try again."
	case eris.Is(err, speech.ErrBackendUnavailable):
		return stdhttp.StatusBadGateway, "The text generation service is unavailable right now. Please try again later."
	default:
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	}
}

func (s *Server) renderErrorResponse(ctx context.Context, status int, message, title string) (*htmlResponse, error) {
	label := fmt.Sprintf("%d %s", status, stdhttp.StatusText(status))
	template := templates.ErrorPage(templates.ErrorPageData{
		StatusLabel: label,
		Message:     message,
		Title:       title,
	})

	body, err := renderComponent(ctx, template)
	if err != nil {
		s.recordError(ctx, err, "rendering error page", logrus.Fields{"status": status})
		fallback := []byte(fmt.Sprintf("<html><body><h1>%s</h1><p>%s</p></body></html>", label, message))
		return newHTMLResponse(status, fallback), nil
	}

	return newHTMLResponse(status, body), nil
}

// logFailure logs an expected failure. The speech service has already reported
// pipeline errors to Sentry.
func (s *Server) logFailure(ctx context.Context, err error, message string, fields logrus.Fields) {
	if s.logger == nil || err == nil {
		return
	}

	entry := s.logger.WithField("error", err.Error()).WithField("error_kind", speech.Kind(err))
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	entry.Warn(message)
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}
