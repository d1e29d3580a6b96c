package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetProfileLoginTrackingSQL = `UPDATE "profiles" AS "prf"
SET
	"loggedin_at" = ?,
	"login_attempt_at" = NULL,
	"login_attempts" = 0
WHERE
	("prf".id = ?)
	AND "prf"."deleted_at" IS NULL;`

type Profiles interface {
	repository.Repository[*Profile]

	TrackAttemptedLogin(ctx context.Context, profile *Profile) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, profile *Profile) error
	TrackSuccessfulLogin(ctx context.Context, profile *Profile) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, profile *Profile) error

	Register(ctx context.Context, profile *Profile) (*Profile, error)
	RegisterTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error)
	Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)
	GetByIdentityID(ctx context.Context, identityID string, criteria ...repository.SelectCriteria) (*Profile, error)
	GetByIdentityIDTx(ctx context.Context, tx bun.IDB, identityID string, criteria ...repository.SelectCriteria) (*Profile, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error)
	Remove(ctx context.Context, id uuid.UUID) error
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	ListAccounts(ctx context.Context, criteria ListAccountsCriteria) ([]*Profile, int, error)
	Lock(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error)
	Unlock(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error)
	Verify(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error)
	Deactivate(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db                  *bun.DB
	stateMachine        AccountStateMachine
	stateMachineOptions []StateMachineOption
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

type ProfilesOption func(*profiles)

func NewProfilesRepository(db *bun.DB, opts ...ProfilesOption) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoProfiles := &profiles{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoProfiles)
		}
	}

	return repoProfiles
}

func WithProfilesStateMachineOptions(options ...StateMachineOption) ProfilesOption {
	return func(p *profiles) {
		if len(options) == 0 {
			return
		}
		p.stateMachineOptions = append(p.stateMachineOptions, options...)
		p.stateMachine = nil
	}
}

func WithProfilesStateMachine(sm AccountStateMachine) ProfilesOption {
	return func(p *profiles) {
		p.stateMachine = sm
	}
}

func (a *profiles) Register(ctx context.Context, profile *Profile) (*Profile, error) {
	return a.RegisterTx(ctx, a.db, profile)
}

func (a *profiles) RegisterTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error) {
	return a.CreateTx(ctx, tx, profile)
}

func (a *profiles) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Profile, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *profiles) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Profile, error) {
	options := resolveProfileIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &Profile{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *profiles) GetByIdentityID(ctx context.Context, identityID string, criteria ...repository.SelectCriteria) (*Profile, error) {
	return a.GetByIdentityIDTx(ctx, a.db, identityID, criteria...)
}

func (a *profiles) GetByIdentityIDTx(ctx context.Context, tx bun.IDB, identityID string, criteria ...repository.SelectCriteria) (*Profile, error) {
	record := &Profile{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.identity_id = ?", identityID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"identity_id": identityID,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *profiles) Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *profiles) CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	prepareProfileDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *profiles) TrackSuccessfulLogin(ctx context.Context, profile *Profile) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, profile)
}

func (a *profiles) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, profile *Profile) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(ResetProfileLoginTrackingSQL, loggedInAt, profile.ID).Exec(ctx)

	return err
}

func (a *profiles) TrackAttemptedLogin(ctx context.Context, profile *Profile) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, profile)
}

func (a *profiles) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, profile *Profile) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(profile.ID.String()),
	}

	record := &Profile{}
	record.ID = profile.ID
	record.LoginAttempts = profile.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *profiles) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *profiles) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error) {
	record := &Profile{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *profiles) Remove(ctx context.Context, id uuid.UUID) error {
	return a.RemoveTx(ctx, a.db, id)
}

func (a *profiles) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Profile)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	return err
}

// ListAccountsCriteria filters and pages the admin account listing. A zero
// Limit falls back to 50, the page size is capped at 200.
type ListAccountsCriteria struct {
	Status AccountStatus
	Role   Role
	Limit  int
	Offset int
}

func (c ListAccountsCriteria) limit() int {
	if c.Limit <= 0 || c.Limit > 200 {
		return 50
	}
	return c.Limit
}

func (a *profiles) ListAccounts(ctx context.Context, criteria ListAccountsCriteria) ([]*Profile, int, error) {
	records := []*Profile{}

	q := a.db.NewSelect().Model(&records)

	if criteria.Status != "" {
		q = q.Where("?TableAlias.status = ?", criteria.Status)
	}

	if criteria.Role != "" {
		q = q.Where("?TableAlias.role = ?", criteria.Role)
	}

	total, err := q.
		Order("created_at DESC").
		Limit(criteria.limit()).
		Offset(criteria.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (a *profiles) Lock(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error) {
	return a.lifecycleMachine().Transition(ctx, actor, profile, StatusLocked, opts...)
}

func (a *profiles) Unlock(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error) {
	return a.lifecycleMachine().Transition(ctx, actor, profile, StatusVerified, opts...)
}

func (a *profiles) Verify(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error) {
	return a.lifecycleMachine().Transition(ctx, actor, profile, StatusVerified, opts...)
}

func (a *profiles) Deactivate(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error) {
	return a.lifecycleMachine().Transition(ctx, actor, profile, StatusDeactivated, opts...)
}

// StatusUpdateOption allows callers to mutate the profile record before persisting status changes.
type StatusUpdateOption func(*Profile)

// WithEmailValidated flips the verification flag during a status transition.
func WithEmailValidated(validated bool) StatusUpdateOption {
	return func(p *Profile) {
		p.EmailValidated = validated
	}
}

func prepareProfileDefaults(record *Profile) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.Subscription.Plan == "" {
		record.Subscription.Plan = PlanFree
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveProfileIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		// emails are stored lowercased, so the lookup lowers too
		options = append(options, identifierOption{
			column: "email",
			value:  strings.ToLower(trimmed),
		})
	}

	options = append(options, identifierOption{
		column: "identity_id",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

func (a *profiles) lifecycleMachine() AccountStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewAccountStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}
