package db

import (
	"context"

	"github.com/google/uuid"
)

// Store runs units of work. Every mutation of shared state goes through InTx.
type Store interface {
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// Queries is the repository contract used inside a unit of work. Getters
// return (nil, nil) when the row does not exist.
type Queries interface {
	StageQueries
	ApplicationQueries
	AccountQueries
	DocumentQueries
	TimeQueries
}

// StageQueries reads and writes company stage configuration.
type StageQueries interface {
	LockCompanyStages(ctx context.Context, companyID uuid.UUID) error
	ListActiveStages(ctx context.Context, companyID uuid.UUID) ([]Stage, error)
	ListStages(ctx context.Context, companyID uuid.UUID) ([]Stage, error)
	GetStage(ctx context.Context, id uuid.UUID) (*Stage, error)
	CreateStage(ctx context.Context, stage *Stage) error
	UpdateStage(ctx context.Context, stage *Stage) error
	DeleteStage(ctx context.Context, id uuid.UUID) error
	CountStageReferences(ctx context.Context, stageID uuid.UUID) (*StageReferences, error)
	ListStageDocuments(ctx context.Context, stageID uuid.UUID) ([]StageDocument, error)
	ReplaceStageDocuments(ctx context.Context, stageID uuid.UUID, reqs []DocumentRequirement) error
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	GetDocumentByCode(ctx context.Context, code string) (*Document, error)
}

// ApplicationQueries covers applications, their audit log and candidates.
type ApplicationQueries interface {
	GetApplication(ctx context.Context, id uuid.UUID) (*Application, error)
	// LockApplicationForUpdate reads the application and holds a row lock on it
	// until the surrounding transaction ends.
	LockApplicationForUpdate(ctx context.Context, id uuid.UUID) (*Application, error)
	CreateApplication(ctx context.Context, app *Application) error
	UpdateApplicationStage(ctx context.Context, id, stageID uuid.UUID) error
	AppendTransitionLog(ctx context.Context, entry *TransitionLogEntry) error
	ListTransitionLogs(ctx context.Context, applicationID uuid.UUID) ([]TransitionLogEntry, error)
	GetCandidate(ctx context.Context, id uuid.UUID) (*Candidate, error)
}

// AccountQueries covers login accounts.
type AccountQueries interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByCandidate(ctx context.Context, candidateID uuid.UUID) (*Account, error)
	DeactivateCandidateAccounts(ctx context.Context, candidateID uuid.UUID) ([]uuid.UUID, error)
	CreateAccount(ctx context.Context, account *Account) error
	LinkAccountToCandidate(ctx context.Context, accountID, candidateID uuid.UUID) error
	SetAccountActive(ctx context.Context, accountID uuid.UUID, active bool) error
}

// DocumentQueries covers per-application document completion.
type DocumentQueries interface {
	GetCompletion(ctx context.Context, applicationID, documentID uuid.UUID) (*CompletionRecord, error)
	UpsertCompletion(ctx context.Context, rec *CompletionRecord) error
	ListCompletions(ctx context.Context, applicationID uuid.UUID) ([]CompletionRecord, error)
}

// TimeQueries covers jobs and time segments.
type TimeQueries interface {
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	// LockOpenSegment returns the in_progress or paused segment for the pair,
	// locked for update.
	LockOpenSegment(ctx context.Context, jobID, workerID uuid.UUID) (*TimeSegment, error)
	InsertSegment(ctx context.Context, seg *TimeSegment) error
	UpdateSegment(ctx context.Context, seg *TimeSegment) error
	ListSegmentsByJob(ctx context.Context, jobID uuid.UUID) ([]TimeSegment, error)
	ListCompletedSegments(ctx context.Context, filter SegmentFilter) ([]TimeSegment, error)
}
