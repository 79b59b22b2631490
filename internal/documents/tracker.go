// Package documents issues time-limited document links for candidate
// applications and records the documents submitted through them.
package documents

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// Expiry bounds for issued links, in days
const (
	DefaultExpiryDays   = 7
	MaxExpiryDays       = 30
	MaxCustomMessageLen = 1000
)

// Email delivery outcomes reported by SendLinks
const (
	EmailSent   = "sent"
	EmailFailed = "failed"
)

// Config controls link issuance
type Config struct {
	FrontendURL       string
	PublicBaseURL     string
	DefaultExpiryDays int
	MaxExpiryDays     int
	// InvalidateOnUse revokes a token after its first successful submission.
	// Off by default: a link stays usable until it expires.
	InvalidateOnUse bool
}

func (c Config) withDefaults() Config {
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:5173"
	}
	if c.DefaultExpiryDays <= 0 {
		c.DefaultExpiryDays = DefaultExpiryDays
	}
	if c.MaxExpiryDays <= 0 {
		c.MaxExpiryDays = MaxExpiryDays
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	return c
}

// FileStore persists uploaded documents
type FileStore interface {
	SavePDF(ctx context.Context, dir, originalName string, r io.Reader) (string, error)
}

// LinkedDocument is one document line of a links email
type LinkedDocument struct {
	Name        string
	Description string
	URL         string
}

// LinksEmail is the message sent to a candidate with their document links
type LinksEmail struct {
	To            string
	CandidateName string
	StageName     string
	CustomMessage string
	Documents     []LinkedDocument
}

// LinkNotifier delivers document links to candidates
type LinkNotifier interface {
	SendDocumentLinks(ctx context.Context, msg LinksEmail) error
}

// Link is an issued document link
type Link struct {
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentName string    `json:"document_name"`
	DocumentCode string    `json:"document_code"`
	Token        string    `json:"token"`
	URL          string    `json:"url"`
	ExpiresAt    time.Time `json:"expires_at"`
	ExpiryDays   int       `json:"expiry_days"`
}

// CandidateInfo identifies the candidate in link responses
type CandidateInfo struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// LinkBatch is the result of IssueLinks
type LinkBatch struct {
	Candidate  CandidateInfo `json:"candidate"`
	Stage      string        `json:"stage"`
	Links      []Link        `json:"document_links"`
	ExpiryDays int           `json:"expiry_days"`
}

// StageDocument is a current-stage document with its completion state
type StageDocument struct {
	ID                uuid.UUID  `json:"id"`
	Code              string     `json:"code"`
	Name              string     `json:"name"`
	Description       *string    `json:"description,omitempty"`
	URL               string     `json:"url,omitempty"`
	IsRequired        bool       `json:"is_required"`
	Order             int        `json:"document_order"`
	IsFillable        bool       `json:"is_fillable"`
	IsCompleted       bool       `json:"is_completed"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	FilledDocumentURL string     `json:"filled_document_url,omitempty"`
}

// StageDocuments is the document checklist of an application's current stage
type StageDocuments struct {
	Stage     *db.Stage       `json:"current_stage"`
	Documents []StageDocument `json:"documents"`
	Candidate CandidateInfo   `json:"candidate"`
}

// CompletionStatus counts completed documents of the current stage. It is
// informational; stage transitions never consult it.
type CompletionStatus struct {
	Total             int  `json:"total_documents"`
	Completed         int  `json:"completed_documents"`
	Required          int  `json:"required_documents"`
	CompletedRequired int  `json:"completed_required"`
	IsStageComplete   bool `json:"is_stage_complete"`
	Percent           int  `json:"completion_percentage"`
}

// LinkView is what a candidate sees when opening a document link
type LinkView struct {
	Candidate   CandidateInfo `json:"candidate"`
	Stage       string        `json:"stage"`
	Document    StageDocument `json:"document"`
	Token       string        `json:"token"`
	ExpiresAt   time.Time     `json:"expires_at"`
	IsCompleted bool          `json:"is_completed"`
}

// Submission is the result of a document submission
type Submission struct {
	Record       db.CompletionRecord `json:"record"`
	DocumentName string              `json:"name"`
	FileURL      string              `json:"file_url,omitempty"`
}

// FilledDocument is a completed document with its stored file
type FilledDocument struct {
	DocumentID  uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FileURL     string     `json:"filled_document_url"`
}

// SendResult reports a links email attempt
type SendResult struct {
	EmailStatus    string `json:"email_status"`
	DocumentsSent  int    `json:"documents_sent"`
	CandidateEmail string `json:"candidate_email"`
}

// Tracker issues document links and records completions
type Tracker struct {
	store    db.Store
	tokens   TokenStore
	files    FileStore
	notifier LinkNotifier
	cfg      Config
	now      func() time.Time
}

// Option customizes a Tracker
type Option func(*Tracker)

// WithClock overrides the tracker clock
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithFiles attaches the store used by SubmitUpload
func WithFiles(files FileStore) Option {
	return func(t *Tracker) {
		t.files = files
	}
}

// WithNotifier attaches the notifier used by SendLinks
func WithNotifier(n LinkNotifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// NewTracker creates a document completion tracker
func NewTracker(store db.Store, tokens TokenStore, cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		tokens: tokens,
		cfg:    cfg.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LinkURL is the candidate-facing URL of a token
func (t *Tracker) LinkURL(token string) string {
	return fmt.Sprintf("%s/candidate/document/%s", t.cfg.FrontendURL, token)
}

// FileURL is the URL a stored file reference is served from
func (t *Tracker) FileURL(ref string) string {
	if ref == "" {
		return ""
	}
	return fmt.Sprintf("%s/files/%s", t.cfg.PublicBaseURL, ref)
}

// expiryDays resolves the requested expiry; zero means the default
func (t *Tracker) expiryDays(days int) (int, error) {
	if days == 0 {
		return t.cfg.DefaultExpiryDays, nil
	}
	if days < 1 || days > t.cfg.MaxExpiryDays {
		return 0, &pipelineerr.ValidationError{
			Field:   "expiry_days",
			Message: fmt.Sprintf("must be between 1 and %d", t.cfg.MaxExpiryDays),
		}
	}
	return days, nil
}

// applicationContext is everything link operations read about an application
type applicationContext struct {
	app         *db.Application
	candidate   *db.Candidate
	stage       *db.Stage
	documents   []db.StageDocument
	completions map[uuid.UUID]db.CompletionRecord
}

func (c *applicationContext) candidateInfo() CandidateInfo {
	if c.candidate == nil {
		return CandidateInfo{}
	}
	return CandidateInfo{ID: c.candidate.ID, Name: c.candidate.FullName(), Email: c.candidate.Email}
}

func (c *applicationContext) stageName() string {
	if c.stage == nil {
		return ""
	}
	return c.stage.Name
}

func (c *applicationContext) findDocument(id uuid.UUID) *db.StageDocument {
	for i := range c.documents {
		if c.documents[i].ID == id {
			return &c.documents[i]
		}
	}
	return nil
}

func loadApplication(ctx context.Context, q db.Queries, applicationID uuid.UUID) (*applicationContext, error) {
	app, err := q.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, pipelineerr.NotFound("application", applicationID)
	}
	c := &applicationContext{app: app, completions: map[uuid.UUID]db.CompletionRecord{}}

	if c.candidate, err = q.GetCandidate(ctx, app.CandidateID); err != nil {
		return nil, err
	}
	if app.CurrentStageID != nil {
		if c.stage, err = q.GetStage(ctx, *app.CurrentStageID); err != nil {
			return nil, err
		}
	}
	if c.stage != nil {
		if c.documents, err = q.ListStageDocuments(ctx, c.stage.ID); err != nil {
			return nil, err
		}
	}
	records, err := q.ListCompletions(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		c.completions[r.DocumentID] = r
	}
	return c, nil
}

func (t *Tracker) readApplication(ctx context.Context, applicationID uuid.UUID) (*applicationContext, error) {
	var c *applicationContext
	err := t.store.InTx(ctx, func(q db.Queries) error {
		var err error
		c, err = loadApplication(ctx, q, applicationID)
		return err
	})
	return c, err
}

func (t *Tracker) mint(ctx context.Context, c *applicationContext, doc *db.Document, days int) (Link, error) {
	token, err := NewToken()
	if err != nil {
		return Link{}, err
	}
	expiresAt := t.now().Add(time.Duration(days) * 24 * time.Hour)
	payload := TokenPayload{
		ApplicationID: c.app.ID,
		CandidateID:   c.app.CandidateID,
		DocumentID:    doc.ID,
		ExpiresAt:     expiresAt,
	}
	if err := t.tokens.Put(ctx, token, payload); err != nil {
		return Link{}, fmt.Errorf("failed to store document token: %w", err)
	}
	return Link{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		DocumentCode: doc.Code,
		Token:        token,
		URL:          t.LinkURL(token),
		ExpiresAt:    expiresAt,
		ExpiryDays:   days,
	}, nil
}

// IssueLinks mints one link per document. With no document ids it covers
// every document attached to the application's current stage.
func (t *Tracker) IssueLinks(ctx context.Context, applicationID uuid.UUID, documentIDs []uuid.UUID, expiryDays int) (*LinkBatch, error) {
	days, err := t.expiryDays(expiryDays)
	if err != nil {
		return nil, err
	}

	var (
		c    *applicationContext
		docs []db.Document
	)
	err = t.store.InTx(ctx, func(q db.Queries) error {
		var err error
		if c, err = loadApplication(ctx, q, applicationID); err != nil {
			return err
		}
		if len(documentIDs) == 0 {
			for _, d := range c.documents {
				docs = append(docs, d.Document)
			}
			return nil
		}
		for _, id := range documentIDs {
			doc, err := q.GetDocument(ctx, id)
			if err != nil {
				return err
			}
			if doc == nil {
				return pipelineerr.NotFound("document", id)
			}
			docs = append(docs, *doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch := &LinkBatch{
		Candidate:  c.candidateInfo(),
		Stage:      c.stageName(),
		Links:      make([]Link, 0, len(docs)),
		ExpiryDays: days,
	}
	for i := range docs {
		link, err := t.mint(ctx, c, &docs[i], days)
		if err != nil {
			return nil, err
		}
		batch.Links = append(batch.Links, link)
	}
	log.Printf("[documents] issued %d link(s) for application %s", len(batch.Links), applicationID)
	return batch, nil
}

// IssueLink mints a link for one document of the current stage
func (t *Tracker) IssueLink(ctx context.Context, applicationID, documentID uuid.UUID) (*Link, error) {
	c, err := t.readApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	doc := c.findDocument(documentID)
	if doc == nil {
		return nil, &pipelineerr.NotFoundError{Resource: "document in current stage", ID: documentID.String()}
	}
	link, err := t.mint(ctx, c, &doc.Document, t.cfg.DefaultExpiryDays)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Resolve returns the payload of a live token. Unknown and expired tokens
// both yield InvalidTokenError.
func (t *Tracker) Resolve(ctx context.Context, token string) (*TokenPayload, error) {
	if token == "" {
		return nil, &pipelineerr.InvalidTokenError{}
	}
	payload, err := t.tokens.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to read document token: %w", err)
	}
	if payload == nil || !t.now().Before(payload.ExpiresAt) {
		return nil, &pipelineerr.InvalidTokenError{}
	}
	return payload, nil
}

// Show resolves a token into the document it grants access to
func (t *Tracker) Show(ctx context.Context, token string) (*LinkView, error) {
	payload, err := t.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	var (
		c   *applicationContext
		doc *db.Document
	)
	err = t.store.InTx(ctx, func(q db.Queries) error {
		var err error
		if c, err = loadApplication(ctx, q, payload.ApplicationID); err != nil {
			return err
		}
		if doc, err = q.GetDocument(ctx, payload.DocumentID); err != nil {
			return err
		}
		if doc == nil {
			return pipelineerr.NotFound("document", payload.DocumentID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := &LinkView{
		Candidate: c.candidateInfo(),
		Stage:     c.stageName(),
		Token:     token,
		ExpiresAt: payload.ExpiresAt,
		Document:  t.stageDocument(c, db.StageDocument{Document: *doc, IsRequired: true}),
	}
	view.IsCompleted = view.Document.IsCompleted
	return view, nil
}

// Submit records a completed document for the token's application. The
// completion is upserted, so resubmitting replaces the stored file reference.
func (t *Tracker) Submit(ctx context.Context, token, fileRef string) (*Submission, error) {
	payload, err := t.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return t.complete(ctx, token, payload, fileRef)
}

// SubmitUpload stores an uploaded PDF and records it against the token
func (t *Tracker) SubmitUpload(ctx context.Context, token, fileName string, body io.Reader) (*Submission, error) {
	if t.files == nil {
		return nil, fmt.Errorf("no file store configured")
	}
	payload, err := t.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	dir := fmt.Sprintf("candidates/filled-documents/%s", payload.CandidateID)
	ref, err := t.files.SavePDF(ctx, dir, fileName, body)
	if err != nil {
		return nil, err
	}
	return t.complete(ctx, token, payload, ref)
}

func (t *Tracker) complete(ctx context.Context, token string, payload *TokenPayload, fileRef string) (*Submission, error) {
	var (
		rec *db.CompletionRecord
		doc *db.Document
	)
	err := t.store.InTx(ctx, func(q db.Queries) error {
		app, err := q.GetApplication(ctx, payload.ApplicationID)
		if err != nil {
			return err
		}
		if app == nil {
			return pipelineerr.NotFound("application", payload.ApplicationID)
		}
		if doc, err = q.GetDocument(ctx, payload.DocumentID); err != nil {
			return err
		}
		if doc == nil {
			return pipelineerr.NotFound("document", payload.DocumentID)
		}

		now := t.now()
		rec = &db.CompletionRecord{
			ApplicationID: app.ID,
			DocumentID:    doc.ID,
			IsCompleted:   true,
			CompletedAt:   &now,
		}
		if fileRef != "" {
			ref := fileRef
			rec.FileRef = &ref
		}
		return q.UpsertCompletion(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	if t.cfg.InvalidateOnUse {
		if err := t.tokens.Delete(ctx, token); err != nil {
			log.Printf("[documents] failed to revoke token for application %s: %v", payload.ApplicationID, err)
		}
	}
	log.Printf("[documents] document %s submitted for application %s", doc.ID, payload.ApplicationID)

	return &Submission{Record: *rec, DocumentName: doc.Name, FileURL: t.FileURL(fileRef)}, nil
}

func (t *Tracker) stageDocument(c *applicationContext, d db.StageDocument) StageDocument {
	out := StageDocument{
		ID:          d.ID,
		Code:        d.Code,
		Name:        d.Name,
		Description: d.Description,
		IsRequired:  d.IsRequired,
		Order:       d.Order,
		IsFillable:  d.IsFillable,
	}
	if d.Path != nil {
		out.URL = t.FileURL(*d.Path)
	}
	if rec, ok := c.completions[d.ID]; ok && rec.IsCompleted {
		out.IsCompleted = true
		out.CompletedAt = rec.CompletedAt
		if rec.FileRef != nil {
			out.FilledDocumentURL = t.FileURL(*rec.FileRef)
		}
	}
	return out
}

// StageDocuments lists the current stage's documents with completion state
func (t *Tracker) StageDocuments(ctx context.Context, applicationID uuid.UUID) (*StageDocuments, error) {
	c, err := t.readApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	out := &StageDocuments{
		Stage:     c.stage,
		Candidate: c.candidateInfo(),
		Documents: make([]StageDocument, 0, len(c.documents)),
	}
	for _, d := range c.documents {
		out.Documents = append(out.Documents, t.stageDocument(c, d))
	}
	return out, nil
}

// CompletionStatus counts completions against the current stage's documents
func (t *Tracker) CompletionStatus(ctx context.Context, applicationID uuid.UUID) (*CompletionStatus, error) {
	c, err := t.readApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return computeStatus(c.documents, c.completions), nil
}

func computeStatus(docs []db.StageDocument, completions map[uuid.UUID]db.CompletionRecord) *CompletionStatus {
	s := &CompletionStatus{Total: len(docs)}
	for _, d := range docs {
		done := completions[d.ID].IsCompleted
		if done {
			s.Completed++
		}
		if d.IsRequired {
			s.Required++
			if done {
				s.CompletedRequired++
			}
		}
	}
	s.IsStageComplete = s.CompletedRequired >= s.Required
	if s.Required > 0 {
		s.Percent = int(math.Round(float64(s.CompletedRequired) / float64(s.Required) * 100))
	}
	return s
}

// FilledDocuments lists every completed document with a stored file, newest
// first, across all stages of the application
func (t *Tracker) FilledDocuments(ctx context.Context, applicationID uuid.UUID) ([]FilledDocument, error) {
	var out []FilledDocument
	err := t.store.InTx(ctx, func(q db.Queries) error {
		app, err := q.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if app == nil {
			return pipelineerr.NotFound("application", applicationID)
		}
		records, err := q.ListCompletions(ctx, applicationID)
		if err != nil {
			return err
		}
		for _, r := range records {
			if !r.IsCompleted || r.FileRef == nil {
				continue
			}
			doc, err := q.GetDocument(ctx, r.DocumentID)
			if err != nil {
				return err
			}
			f := FilledDocument{DocumentID: r.DocumentID, CompletedAt: r.CompletedAt, FileURL: t.FileURL(*r.FileRef)}
			if doc != nil {
				f.Code, f.Name = doc.Code, doc.Name
			}
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CompletedAt, out[j].CompletedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	return out, nil
}

// SendLinks emails previously issued links to the candidate. Delivery
// failures are reported in the result, never as an error.
func (t *Tracker) SendLinks(ctx context.Context, applicationID uuid.UUID, links []Link, customMessage string) (*SendResult, error) {
	if len(links) == 0 {
		return nil, &pipelineerr.ValidationError{Field: "document_links", Message: "at least one link is required"}
	}
	if len(customMessage) > MaxCustomMessageLen {
		return nil, &pipelineerr.ValidationError{Field: "custom_message", Message: fmt.Sprintf("must be at most %d characters", MaxCustomMessageLen)}
	}

	var (
		c    *applicationContext
		docs = map[uuid.UUID]*db.Document{}
	)
	err := t.store.InTx(ctx, func(q db.Queries) error {
		var err error
		if c, err = loadApplication(ctx, q, applicationID); err != nil {
			return err
		}
		for _, l := range links {
			if l.Token == "" {
				return &pipelineerr.ValidationError{Field: "document_links.token", Message: "is required"}
			}
			doc, err := q.GetDocument(ctx, l.DocumentID)
			if err != nil {
				return err
			}
			if doc == nil {
				return pipelineerr.NotFound("document", l.DocumentID)
			}
			docs[doc.ID] = doc
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	info := c.candidateInfo()
	result := &SendResult{EmailStatus: EmailFailed, DocumentsSent: len(links), CandidateEmail: info.Email}
	msg := LinksEmail{
		To:            info.Email,
		CandidateName: info.Name,
		StageName:     c.stageName(),
		CustomMessage: customMessage,
	}
	for _, l := range links {
		doc := docs[l.DocumentID]
		item := LinkedDocument{Name: doc.Name, URL: l.URL}
		if item.URL == "" {
			item.URL = t.LinkURL(l.Token)
		}
		if doc.Description != nil {
			item.Description = *doc.Description
		}
		msg.Documents = append(msg.Documents, item)
	}

	if t.notifier == nil {
		log.Printf("[documents] no notifier configured, links for application %s not sent", applicationID)
		return result, nil
	}
	if err := t.notifier.SendDocumentLinks(ctx, msg); err != nil {
		log.Printf("[documents] failed to send document links to %s: %v", info.Email, err)
		return result, nil
	}
	result.EmailStatus = EmailSent
	log.Printf("[documents] document links sent to %s", info.Email)
	return result, nil
}
