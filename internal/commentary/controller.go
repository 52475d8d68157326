package commentary

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"variance-backend/internal/identity"
	"variance-backend/internal/llm"
	"variance-backend/internal/shared/telemetry"
)

const (
	HintIdle       = "Paste a transcript and click “Process Transcript”."
	HintProcessed  = "Transcript processed. Enter a question above."
	HintProcessing = "Processing transcript…"
)

// Options configures a Controller.
type Options struct {
	// SessionID labels log lines.
	SessionID string
	// Generator is nil when no credential is configured.
	Generator llm.Generator
	// Identity is the session bootstrap; nil means ready with no identity.
	Identity *identity.Pending
}

// Controller owns the state of one form session and drives the extraction
// and query cycles. Only one cycle runs at a time.
type Controller struct {
	id       string
	gen      llm.Generator
	identity *identity.Pending

	mu         sync.Mutex
	transcript string
	commentary *Commentary
	query      string
	answer     string
	errMsg     string
	extracting bool
	querying   bool
	updatedAt  time.Time
}

// State is a point-in-time view of the form.
type State struct {
	Transcript    string                    `json:"transcript"`
	Commentary    *Commentary               `json:"commentary"`
	Query         string                    `json:"query"`
	Answer        string                    `json:"answer"`
	Error         string                    `json:"error"`
	Warning       string                    `json:"warning,omitempty"`
	Hint          string                    `json:"hint"`
	Extracting    bool                      `json:"extracting"`
	Querying      bool                      `json:"querying"`
	IdentityReady bool                      `json:"identityReady"`
	Identity      *identity.SessionIdentity `json:"identity,omitempty"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

// Snapshot is the persisted subset of the form state.
type Snapshot struct {
	Transcript string      `json:"transcript"`
	Commentary *Commentary `json:"commentary,omitempty"`
	Query      string      `json:"query,omitempty"`
	Answer     string      `json:"answer,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// New creates a Controller with an empty form.
func New(opts Options) *Controller {
	return &Controller{
		id:        opts.SessionID,
		gen:       opts.Generator,
		identity:  opts.Identity,
		updatedAt: time.Now().UTC(),
	}
}

// Restore replaces the form contents with a saved snapshot.
func (c *Controller) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = s.Transcript
	c.commentary = s.Commentary
	c.query = s.Query
	c.answer = s.Answer
	c.errMsg = s.Error
	c.touch()
}

// Snapshot returns the persisted subset of the state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Transcript: c.transcript,
		Commentary: c.commentary,
		Query:      c.query,
		Answer:     c.answer,
		Error:      c.errMsg,
	}
}

// State returns the full view, including bootstrap status.
func (c *Controller) State() State {
	c.mu.Lock()
	s := State{
		Transcript: c.transcript,
		Commentary: c.commentary,
		Query:      c.query,
		Answer:     c.answer,
		Error:      c.errMsg,
		Extracting: c.extracting,
		Querying:   c.querying,
		UpdatedAt:  c.updatedAt,
	}
	c.mu.Unlock()

	switch {
	case s.Extracting:
		s.Hint = HintProcessing
	case s.Commentary != nil:
		s.Hint = HintProcessed
	default:
		s.Hint = HintIdle
	}

	if res, ok := c.identityResult(); ok {
		s.IdentityReady = true
		if res.Identity.ID != "" {
			ident := res.Identity
			s.Identity = &ident
		}
		s.Warning = res.Warning
	}
	return s
}

// SetTranscript replaces the transcript text.
func (c *Controller) SetTranscript(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy() {
		return ErrBusy
	}
	c.transcript = text
	c.touch()
	return nil
}

// LoadSample fills the transcript with SampleTranscript.
func (c *Controller) LoadSample() error {
	return c.SetTranscript(SampleTranscript)
}

// Reset clears the transcript, the answer and any error. The last
// commentary stays so questions can still be asked.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy() {
		return ErrBusy
	}
	c.transcript = ""
	c.answer = ""
	c.errMsg = ""
	c.touch()
	return nil
}

// Extract runs the extraction cycle over the current transcript. On
// success the commentary is replaced wholesale; on failure it is untouched.
func (c *Controller) Extract(ctx context.Context) (*Commentary, error) {
	c.mu.Lock()
	if c.busy() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.answer = ""
	c.errMsg = ""
	transcript := c.transcript

	var precondition error
	switch {
	case strings.TrimSpace(transcript) == "":
		precondition = fmt.Errorf("%w: no transcript", ErrValidation)
	case !c.identityReady():
		precondition = ErrNotReady
	case c.gen == nil:
		precondition = ErrConfig
	}
	if precondition != nil {
		c.errMsg = UserMessage(CycleExtract, precondition)
		c.touch()
		c.mu.Unlock()
		return nil, precondition
	}
	c.extracting = true
	c.touch()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.extracting = false
		c.touch()
		c.mu.Unlock()
	}()

	parsed, err := c.extract(ctx, transcript)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errMsg = UserMessage(CycleExtract, err)
		telemetry.Error("commentary.extract_failed", map[string]any{
			"session_id": c.id,
			"kind":       string(KindOf(err)),
			"error":      err,
		})
		return nil, err
	}
	c.commentary = parsed
	c.answer = ""
	c.errMsg = ""
	telemetry.Info("commentary.extracted", map[string]any{
		"session_id": c.id,
		"records":    parsed.Len(),
	})
	return parsed, nil
}

func (c *Controller) extract(ctx context.Context, transcript string) (*Commentary, error) {
	payload, err := c.gen.Generate(ctx, llm.Request{
		Prompt: llm.ExtractionPrompt(transcript),
		Schema: llm.CommentarySchema(),
	})
	if err != nil {
		return nil, err
	}
	return Parse(payload)
}

// Ask runs the query cycle. A blank query or missing commentary is not an
// error: the returned text is the prompt shown to the user instead.
func (c *Controller) Ask(ctx context.Context, query string) (string, error) {
	c.mu.Lock()
	if c.busy() {
		c.mu.Unlock()
		return "", ErrBusy
	}
	c.errMsg = ""
	c.answer = ""
	c.query = query

	switch {
	case strings.TrimSpace(query) == "":
		c.answer = MsgEnterQuery
	case c.commentary == nil:
		c.answer = MsgProcessFirst
	case c.gen == nil:
		c.errMsg = UserMessage(CycleQuery, ErrConfig)
		c.touch()
		c.mu.Unlock()
		return "", ErrConfig
	}
	if c.answer != "" {
		answer := c.answer
		c.touch()
		c.mu.Unlock()
		return answer, nil
	}
	structured := c.commentary.Indented()
	c.querying = true
	c.touch()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.querying = false
		c.touch()
		c.mu.Unlock()
	}()

	text, err := c.gen.Generate(ctx, llm.Request{Prompt: llm.QueryPrompt(structured, query)})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errMsg = UserMessage(CycleQuery, err)
		telemetry.Error("commentary.query_failed", map[string]any{
			"session_id": c.id,
			"kind":       string(KindOf(err)),
			"error":      err,
		})
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		text = MsgNoAnswer
	}
	c.answer = text
	return text, nil
}

// Close releases the session bootstrap.
func (c *Controller) Close() {
	if c.identity != nil {
		c.identity.Close()
	}
}

func (c *Controller) busy() bool {
	return c.extracting || c.querying
}

func (c *Controller) identityReady() bool {
	_, ok := c.identityResult()
	return ok
}

func (c *Controller) identityResult() (identity.Result, bool) {
	if c.identity == nil {
		return identity.Result{}, true
	}
	return c.identity.Result()
}

func (c *Controller) touch() {
	c.updatedAt = time.Now().UTC()
}
