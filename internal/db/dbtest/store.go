// Package dbtest provides an in-memory db.Store for service tests.
//
// Units of work are serialized behind one mutex, which gives the same
// observable ordering as the row locks taken by the PostgreSQL store. A unit
// of work that returns an error is rolled back by restoring a snapshot.
package dbtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

type completionKey struct {
	applicationID uuid.UUID
	documentID    uuid.UUID
}

type state struct {
	stages       map[uuid.UUID]db.Stage
	documents    map[uuid.UUID]db.Document
	requirements map[uuid.UUID][]db.DocumentRequirement
	candidates   map[uuid.UUID]db.Candidate
	accounts     map[uuid.UUID]db.Account
	jobs         map[uuid.UUID]db.Job
	applications map[uuid.UUID]db.Application
	logs         []db.TransitionLogEntry
	completions  map[completionKey]db.CompletionRecord
	segments     []db.TimeSegment
}

func newState() *state {
	return &state{
		stages:       map[uuid.UUID]db.Stage{},
		documents:    map[uuid.UUID]db.Document{},
		requirements: map[uuid.UUID][]db.DocumentRequirement{},
		candidates:   map[uuid.UUID]db.Candidate{},
		accounts:     map[uuid.UUID]db.Account{},
		jobs:         map[uuid.UUID]db.Job{},
		applications: map[uuid.UUID]db.Application{},
		completions:  map[completionKey]db.CompletionRecord{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every table. Pointer fields inside rows are never mutated in
// place, so a shallow row copy is enough.
func (s *state) clone() *state {
	reqs := make(map[uuid.UUID][]db.DocumentRequirement, len(s.requirements))
	for k, v := range s.requirements {
		reqs[k] = append([]db.DocumentRequirement(nil), v...)
	}
	return &state{
		stages:       cloneMap(s.stages),
		documents:    cloneMap(s.documents),
		requirements: reqs,
		candidates:   cloneMap(s.candidates),
		accounts:     cloneMap(s.accounts),
		jobs:         cloneMap(s.jobs),
		applications: cloneMap(s.applications),
		logs:         append([]db.TransitionLogEntry(nil), s.logs...),
		completions:  cloneMap(s.completions),
		segments:     append([]db.TimeSegment(nil), s.segments...),
	}
}

// Store is an in-memory db.Store
type Store struct {
	mu   sync.Mutex
	data *state

	// Now stamps created_at/updated_at columns.
	Now func() time.Time

	failures      map[string]error
	commitErr     error
	commitApplied bool
	txCount       int
	stageLocks    map[uuid.UUID]int
}

// New creates an empty store
func New() *Store {
	return &Store{
		data:     newState(),
		Now:      func() time.Time { return time.Now().UTC() },
		failures:   map[string]error{},
		stageLocks: map[uuid.UUID]int{},
	}
}

var _ db.Store = (*Store)(nil)

// InTx runs fn with exclusive access to the store
func (s *Store) InTx(ctx context.Context, fn func(q db.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.txCount++

	snapshot := s.data.clone()
	if err := fn(&queries{s: s}); err != nil {
		s.data = snapshot
		return err
	}
	if s.commitErr != nil {
		if !s.commitApplied {
			s.data = snapshot
		}
		return &pipelineerr.CommitUncertainError{Operation: "commit", Cause: s.commitErr}
	}
	return nil
}

// FailOn makes every call to the named query method return err until
// ClearFailures is called
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// FailCommit makes every commit report err. When applied is true the changes
// are kept, mimicking a commit that landed but whose acknowledgement was lost.
func (s *Store) FailCommit(err error, applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
	s.commitApplied = applied
}

// ClearFailures removes all injected failures
func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]error{}
	s.commitErr = nil
}

// TxCount reports how many units of work were started
func (s *Store) TxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// -----------------------------------------------------------------------------
// Seeding and inspection
// -----------------------------------------------------------------------------

// AddStage stores a stage as-is, assigning an ID when missing
func (s *Store) AddStage(stage db.Stage) db.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	stage.CreatedAt, stage.UpdatedAt = s.Now(), s.Now()
	s.data.stages[stage.ID] = stage
	return stage
}

// AddDocument stores a document
func (s *Store) AddDocument(doc db.Document) db.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	s.data.documents[doc.ID] = doc
	return doc
}

// RequireDocument attaches a document to a stage
func (s *Store) RequireDocument(stageID, documentID uuid.UUID, required bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := s.data.requirements[stageID]
	s.data.requirements[stageID] = append(reqs, db.DocumentRequirement{
		StageID: stageID, DocumentID: documentID, IsRequired: required, Order: len(reqs) + 1,
	})
}

// AddCandidate stores a candidate
func (s *Store) AddCandidate(c db.Candidate) db.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = s.Now()
	s.data.candidates[c.ID] = c
	return c
}

// AddAccount stores an account without uniqueness checks
func (s *Store) AddAccount(a db.Account) db.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt, a.UpdatedAt = s.Now(), s.Now()
	s.data.accounts[a.ID] = a
	return a
}

// AddJob stores a job
func (s *Store) AddJob(j db.Job) db.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	j.CreatedAt = s.Now()
	s.data.jobs[j.ID] = j
	return j
}

// AddApplication stores an application
func (s *Store) AddApplication(a db.Application) db.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = db.ApplicationStatusActive
	}
	a.CreatedAt, a.UpdatedAt = s.Now(), s.Now()
	s.data.applications[a.ID] = a
	return a
}

// AddSegment stores a time segment without the open-segment check
func (s *Store) AddSegment(seg db.TimeSegment) db.TimeSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seg.ID == uuid.Nil {
		seg.ID = uuid.New()
	}
	seg.CreatedAt, seg.UpdatedAt = s.Now(), s.Now()
	s.data.segments = append(s.data.segments, seg)
	return seg
}

// Application returns a copy of a stored application
func (s *Store) Application(id uuid.UUID) (db.Application, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.applications[id]
	return a, ok
}

// Account returns a copy of a stored account
func (s *Store) Account(id uuid.UUID) (db.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.accounts[id]
	return a, ok
}

// Accounts returns all accounts
func (s *Store) Accounts() []db.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Account, 0, len(s.data.accounts))
	for _, a := range s.data.accounts {
		out = append(out, a)
	}
	return out
}

// Logs returns the transition log of an application in append order
func (s *Store) Logs(applicationID uuid.UUID) []db.TransitionLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.TransitionLogEntry
	for _, e := range s.data.logs {
		if e.ApplicationID == applicationID {
			out = append(out, e)
		}
	}
	return out
}

// StageLocks reports how many units of work locked the company's stages
func (s *Store) StageLocks(companyID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stageLocks[companyID]
}

// Segments returns all time segments in insertion order
func (s *Store) Segments() []db.TimeSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.TimeSegment(nil), s.data.segments...)
}

// Completions returns all completion records of an application
func (s *Store) Completions(applicationID uuid.UUID) []db.CompletionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.CompletionRecord
	for k, r := range s.data.completions {
		if k.applicationID == applicationID {
			out = append(out, r)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// queries is only handed out inside InTx, so the store mutex is already held.
type queries struct {
	s *Store
}

func (q *queries) fail(method string) error {
	return q.s.failures[method]
}

func (q *queries) LockCompanyStages(ctx context.Context, companyID uuid.UUID) error {
	if err := q.fail("LockCompanyStages"); err != nil {
		return err
	}
	q.s.stageLocks[companyID]++
	return nil
}

func (q *queries) ListActiveStages(ctx context.Context, companyID uuid.UUID) ([]db.Stage, error) {
	if err := q.fail("ListActiveStages"); err != nil {
		return nil, err
	}
	return q.stagesWhere(func(st db.Stage) bool { return st.CompanyID == companyID && st.IsActive }), nil
}

func (q *queries) ListStages(ctx context.Context, companyID uuid.UUID) ([]db.Stage, error) {
	if err := q.fail("ListStages"); err != nil {
		return nil, err
	}
	return q.stagesWhere(func(st db.Stage) bool { return st.CompanyID == companyID }), nil
}

func (q *queries) stagesWhere(keep func(db.Stage) bool) []db.Stage {
	var out []db.Stage
	for _, st := range q.s.data.stages {
		if keep(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (q *queries) GetStage(ctx context.Context, id uuid.UUID) (*db.Stage, error) {
	if err := q.fail("GetStage"); err != nil {
		return nil, err
	}
	st, ok := q.s.data.stages[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (q *queries) CreateStage(ctx context.Context, stage *db.Stage) error {
	if err := q.fail("CreateStage"); err != nil {
		return err
	}
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	stage.CreatedAt, stage.UpdatedAt = q.s.Now(), q.s.Now()
	q.s.data.stages[stage.ID] = *stage
	return nil
}

func (q *queries) UpdateStage(ctx context.Context, stage *db.Stage) error {
	if err := q.fail("UpdateStage"); err != nil {
		return err
	}
	existing, ok := q.s.data.stages[stage.ID]
	if !ok {
		return fmt.Errorf("stage not found: %s", stage.ID)
	}
	existing.Name, existing.Type, existing.Order, existing.IsActive = stage.Name, stage.Type, stage.Order, stage.IsActive
	existing.UpdatedAt = q.s.Now()
	q.s.data.stages[stage.ID] = existing
	stage.UpdatedAt = existing.UpdatedAt
	return nil
}

func (q *queries) DeleteStage(ctx context.Context, id uuid.UUID) error {
	if err := q.fail("DeleteStage"); err != nil {
		return err
	}
	if _, ok := q.s.data.stages[id]; !ok {
		return fmt.Errorf("stage not found: %s", id)
	}
	refs := q.countRefs(id)
	if refs.Applications > 0 || refs.LogEntries > 0 {
		return fmt.Errorf("failed to delete stage: stage %s is still referenced", id)
	}
	delete(q.s.data.stages, id)
	delete(q.s.data.requirements, id)
	return nil
}

func (q *queries) countRefs(stageID uuid.UUID) db.StageReferences {
	var refs db.StageReferences
	for _, a := range q.s.data.applications {
		if a.CurrentStageID != nil && *a.CurrentStageID == stageID {
			refs.Applications++
			if a.Status == db.ApplicationStatusActive {
				refs.ActiveApplications++
			}
		}
	}
	for _, e := range q.s.data.logs {
		if e.ToStageID == stageID || (e.FromStageID != nil && *e.FromStageID == stageID) {
			refs.LogEntries++
		}
	}
	return refs
}

func (q *queries) CountStageReferences(ctx context.Context, stageID uuid.UUID) (*db.StageReferences, error) {
	if err := q.fail("CountStageReferences"); err != nil {
		return nil, err
	}
	refs := q.countRefs(stageID)
	return &refs, nil
}

func (q *queries) ListStageDocuments(ctx context.Context, stageID uuid.UUID) ([]db.StageDocument, error) {
	if err := q.fail("ListStageDocuments"); err != nil {
		return nil, err
	}
	var out []db.StageDocument
	for _, r := range q.s.data.requirements[stageID] {
		doc, ok := q.s.data.documents[r.DocumentID]
		if !ok {
			continue
		}
		out = append(out, db.StageDocument{Document: doc, IsRequired: r.IsRequired, Order: r.Order})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (q *queries) ReplaceStageDocuments(ctx context.Context, stageID uuid.UUID, reqs []db.DocumentRequirement) error {
	if err := q.fail("ReplaceStageDocuments"); err != nil {
		return err
	}
	for _, r := range reqs {
		if _, ok := q.s.data.documents[r.DocumentID]; !ok {
			return fmt.Errorf("failed to add document %s to stage: unknown document", r.DocumentID)
		}
	}
	out := make([]db.DocumentRequirement, len(reqs))
	for i, r := range reqs {
		r.StageID = stageID
		out[i] = r
	}
	q.s.data.requirements[stageID] = out
	return nil
}

func (q *queries) GetDocument(ctx context.Context, id uuid.UUID) (*db.Document, error) {
	if err := q.fail("GetDocument"); err != nil {
		return nil, err
	}
	d, ok := q.s.data.documents[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (q *queries) GetDocumentByCode(ctx context.Context, code string) (*db.Document, error) {
	if err := q.fail("GetDocumentByCode"); err != nil {
		return nil, err
	}
	for _, d := range q.s.data.documents {
		if d.Code == code {
			return &d, nil
		}
	}
	return nil, nil
}

func (q *queries) GetApplication(ctx context.Context, id uuid.UUID) (*db.Application, error) {
	if err := q.fail("GetApplication"); err != nil {
		return nil, err
	}
	a, ok := q.s.data.applications[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (q *queries) LockApplicationForUpdate(ctx context.Context, id uuid.UUID) (*db.Application, error) {
	if err := q.fail("LockApplicationForUpdate"); err != nil {
		return nil, err
	}
	a, ok := q.s.data.applications[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (q *queries) CreateApplication(ctx context.Context, app *db.Application) error {
	if err := q.fail("CreateApplication"); err != nil {
		return err
	}
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	if app.Status == "" {
		app.Status = db.ApplicationStatusActive
	}
	app.CreatedAt, app.UpdatedAt = q.s.Now(), q.s.Now()
	q.s.data.applications[app.ID] = *app
	return nil
}

func (q *queries) UpdateApplicationStage(ctx context.Context, id, stageID uuid.UUID) error {
	if err := q.fail("UpdateApplicationStage"); err != nil {
		return err
	}
	a, ok := q.s.data.applications[id]
	if !ok {
		return fmt.Errorf("application not found: %s", id)
	}
	sid := stageID
	a.CurrentStageID = &sid
	a.UpdatedAt = q.s.Now()
	q.s.data.applications[id] = a
	return nil
}

func (q *queries) AppendTransitionLog(ctx context.Context, entry *db.TransitionLogEntry) error {
	if err := q.fail("AppendTransitionLog"); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = q.s.Now()
	}
	q.s.data.logs = append(q.s.data.logs, *entry)
	return nil
}

func (q *queries) ListTransitionLogs(ctx context.Context, applicationID uuid.UUID) ([]db.TransitionLogEntry, error) {
	if err := q.fail("ListTransitionLogs"); err != nil {
		return nil, err
	}
	var out []db.TransitionLogEntry
	for _, e := range q.s.data.logs {
		if e.ApplicationID == applicationID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (q *queries) GetCandidate(ctx context.Context, id uuid.UUID) (*db.Candidate, error) {
	if err := q.fail("GetCandidate"); err != nil {
		return nil, err
	}
	c, ok := q.s.data.candidates[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (q *queries) GetAccount(ctx context.Context, id uuid.UUID) (*db.Account, error) {
	if err := q.fail("GetAccount"); err != nil {
		return nil, err
	}
	a, ok := q.s.data.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (q *queries) GetAccountByEmail(ctx context.Context, email string) (*db.Account, error) {
	if err := q.fail("GetAccountByEmail"); err != nil {
		return nil, err
	}
	want := db.NormalizeEmail(email)
	for _, a := range q.s.data.accounts {
		if db.NormalizeEmail(a.Email) == want {
			return &a, nil
		}
	}
	return nil, nil
}

func (q *queries) linkedAccounts(candidateID uuid.UUID) []db.Account {
	var out []db.Account
	for _, a := range q.s.data.accounts {
		if a.LinkedCandidateID != nil && *a.LinkedCandidateID == candidateID {
			out = append(out, a)
		}
	}
	// newest first, like ORDER BY created_at DESC, id DESC
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (q *queries) GetAccountByCandidate(ctx context.Context, candidateID uuid.UUID) (*db.Account, error) {
	if err := q.fail("GetAccountByCandidate"); err != nil {
		return nil, err
	}
	linked := q.linkedAccounts(candidateID)
	if len(linked) == 0 {
		return nil, nil
	}
	return &linked[0], nil
}

func (q *queries) DeactivateCandidateAccounts(ctx context.Context, candidateID uuid.UUID) ([]uuid.UUID, error) {
	if err := q.fail("DeactivateCandidateAccounts"); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, a := range q.linkedAccounts(candidateID) {
		if !a.IsActive {
			continue
		}
		a.IsActive = false
		a.UpdatedAt = q.s.Now()
		q.s.data.accounts[a.ID] = a
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (q *queries) CreateAccount(ctx context.Context, account *db.Account) error {
	if err := q.fail("CreateAccount"); err != nil {
		return err
	}
	want := db.NormalizeEmail(account.Email)
	for _, a := range q.s.data.accounts {
		if db.NormalizeEmail(a.Email) == want {
			return &pipelineerr.AccountConflictError{Email: account.Email, AccountID: a.ID}
		}
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.CreatedAt, account.UpdatedAt = q.s.Now(), q.s.Now()
	q.s.data.accounts[account.ID] = *account
	return nil
}

func (q *queries) LinkAccountToCandidate(ctx context.Context, accountID, candidateID uuid.UUID) error {
	if err := q.fail("LinkAccountToCandidate"); err != nil {
		return err
	}
	a, ok := q.s.data.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %s", accountID)
	}
	cid := candidateID
	a.LinkedCandidateID = &cid
	a.UpdatedAt = q.s.Now()
	q.s.data.accounts[accountID] = a
	return nil
}

func (q *queries) SetAccountActive(ctx context.Context, accountID uuid.UUID, active bool) error {
	if err := q.fail("SetAccountActive"); err != nil {
		return err
	}
	a, ok := q.s.data.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %s", accountID)
	}
	a.IsActive = active
	a.UpdatedAt = q.s.Now()
	q.s.data.accounts[accountID] = a
	return nil
}

func (q *queries) GetCompletion(ctx context.Context, applicationID, documentID uuid.UUID) (*db.CompletionRecord, error) {
	if err := q.fail("GetCompletion"); err != nil {
		return nil, err
	}
	r, ok := q.s.data.completions[completionKey{applicationID, documentID}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (q *queries) UpsertCompletion(ctx context.Context, rec *db.CompletionRecord) error {
	if err := q.fail("UpsertCompletion"); err != nil {
		return err
	}
	key := completionKey{rec.ApplicationID, rec.DocumentID}
	if existing, ok := q.s.data.completions[key]; ok {
		rec.ID = existing.ID
	} else if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.UpdatedAt = q.s.Now()
	q.s.data.completions[key] = *rec
	return nil
}

func (q *queries) ListCompletions(ctx context.Context, applicationID uuid.UUID) ([]db.CompletionRecord, error) {
	if err := q.fail("ListCompletions"); err != nil {
		return nil, err
	}
	var out []db.CompletionRecord
	for k, r := range q.s.data.completions {
		if k.applicationID == applicationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (q *queries) GetJob(ctx context.Context, id uuid.UUID) (*db.Job, error) {
	if err := q.fail("GetJob"); err != nil {
		return nil, err
	}
	j, ok := q.s.data.jobs[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (q *queries) LockOpenSegment(ctx context.Context, jobID, workerID uuid.UUID) (*db.TimeSegment, error) {
	if err := q.fail("LockOpenSegment"); err != nil {
		return nil, err
	}
	for _, seg := range q.s.data.segments {
		if seg.JobID == jobID && seg.WorkerID == workerID && seg.Status != db.SegmentCompleted {
			return &seg, nil
		}
	}
	return nil, nil
}

func (q *queries) InsertSegment(ctx context.Context, seg *db.TimeSegment) error {
	if err := q.fail("InsertSegment"); err != nil {
		return err
	}
	if seg.Status != db.SegmentCompleted {
		for _, existing := range q.s.data.segments {
			if existing.JobID == seg.JobID && existing.WorkerID == seg.WorkerID && existing.Status != db.SegmentCompleted {
				return &pipelineerr.TimerStateError{
					Reason: pipelineerr.ReasonAlreadyRunning, JobID: seg.JobID, WorkerID: seg.WorkerID,
				}
			}
		}
	}
	if seg.ID == uuid.Nil {
		seg.ID = uuid.New()
	}
	seg.CreatedAt, seg.UpdatedAt = q.s.Now(), q.s.Now()
	q.s.data.segments = append(q.s.data.segments, *seg)
	return nil
}

func (q *queries) UpdateSegment(ctx context.Context, seg *db.TimeSegment) error {
	if err := q.fail("UpdateSegment"); err != nil {
		return err
	}
	for i, existing := range q.s.data.segments {
		if existing.ID == seg.ID {
			seg.CreatedAt = existing.CreatedAt
			seg.UpdatedAt = q.s.Now()
			q.s.data.segments[i] = *seg
			return nil
		}
	}
	return fmt.Errorf("time segment not found: %s", seg.ID)
}

func (q *queries) ListSegmentsByJob(ctx context.Context, jobID uuid.UUID) ([]db.TimeSegment, error) {
	if err := q.fail("ListSegmentsByJob"); err != nil {
		return nil, err
	}
	var out []db.TimeSegment
	for i := len(q.s.data.segments) - 1; i >= 0; i-- {
		if q.s.data.segments[i].JobID == jobID {
			out = append(out, q.s.data.segments[i])
		}
	}
	return out, nil
}

func (q *queries) ListCompletedSegments(ctx context.Context, filter db.SegmentFilter) ([]db.TimeSegment, error) {
	if err := q.fail("ListCompletedSegments"); err != nil {
		return nil, err
	}
	var out []db.TimeSegment
	for _, seg := range q.s.data.segments {
		if seg.Status == db.SegmentCompleted && filter.Matches(&seg) {
			out = append(out, seg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
