package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"vetor/api/internal/auth"
	"vetor/api/internal/authpw"
	"vetor/api/internal/board"
	"vetor/api/internal/config"
	"vetor/api/internal/email"
	"vetor/api/internal/rbac"
	"vetor/api/internal/search"
	"vetor/api/internal/store"
	"vetor/api/internal/uploads"
	"vetor/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

const (
	defaultProjectTitle     = "Meu Projeto"
	placeholderProjectTitle = "Projeto Demonstração"

	statusPlanning = "planning"
	statusAccepted = "accepted"
	statusDeclined = "declined"
)

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserDisplayName(context.Context, string, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	OldestProjectForUser(context.Context, string) (store.Project, error)
	InsertProject(context.Context, store.Project) error
	RenameProject(context.Context, string, string) error
	UpdateProjectStatus(context.Context, string, string, int) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjects(context.Context) ([]store.Project, error)
	EnsureColumns(context.Context, string, board.Template) error
	ListColumns(context.Context, string) ([]store.Column, error)
	CountColumns(context.Context, string) (int, error)
	InsertColumnAppend(context.Context, string, string) (store.Column, error)
	ColumnBelongsToProject(context.Context, string, string) (bool, error)
	GetColumn(context.Context, string) (store.Column, error)
	GetCard(context.Context, string) (store.Card, error)
	ListCardsForColumns(context.Context, string) ([]store.Card, error)
	InsertCardAppend(context.Context, string, string, string) (store.Card, error)
	MoveCard(context.Context, string, string, int) error
	DeleteCard(context.Context, string, string) error
	InsertAsset(context.Context, store.Asset) error
	GetAsset(context.Context, string) (store.Asset, error)
	DeleteAsset(context.Context, string) error
	ListAssets(context.Context, string) ([]store.Asset, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions. Postgres is the default; Redis
// takes over when configured so refresh lookups skip the database.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type pgSessions struct {
	store refreshStore
}

func (p *pgSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p *pgSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p *pgSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	template board.Template
	authpw   *authpw.Service
	search   *search.Service
	uploads  *uploads.Service
	email    *email.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, template board.Template) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: &pgSessions{store: dataStore},
		template: template,
		authpw:   authpw.NewService(dataStore),
	}
}

// NewWithSessionStore is New with refresh sessions held elsewhere
// (Redis in production when VETOR_REDIS_URL is set).
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, template board.Template) *Service {
	service := New(cfg, dataStore, template)
	service.sessions = sessions
	return service
}

func (s *Service) AttachSearch(svc *search.Service)   { s.search = svc }
func (s *Service) AttachUploads(svc *uploads.Service) { s.uploads = svc }
func (s *Service) AttachEmail(svc *email.Service)     { s.email = svc }

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// CreateSession issues tokens for an already-authenticated account.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ResolveProject returns the user's canonical project: the oldest one,
// created on first access when none exists. A leftover demo title from
// seed data is rewritten to the client-facing default.
func (s *Service) ResolveProject(ctx context.Context, userID string) (store.Project, error) {
	project, err := s.store.OldestProjectForUser(ctx, userID)
	if err != nil {
		if !errorIsNoRows(err) {
			return store.Project{}, err
		}
		project = store.Project{
			ID:       util.NewID("prj"),
			UserID:   userID,
			Title:    defaultProjectTitle,
			Status:   statusPlanning,
			Progress: 0,
		}
		if err := s.store.InsertProject(ctx, project); err != nil {
			return store.Project{}, err
		}
		return project, nil
	}

	if project.Title == placeholderProjectTitle {
		if err := s.store.RenameProject(ctx, project.ID, defaultProjectTitle); err != nil {
			return store.Project{}, err
		}
		project.Title = defaultProjectTitle
	}
	return project, nil
}

func (s *Service) resolveProvisioned(ctx context.Context, session Session) (store.Project, error) {
	project, err := s.ResolveProject(ctx, session.UserID)
	if err != nil {
		return store.Project{}, err
	}
	if err := s.store.EnsureColumns(ctx, project.ID, s.template); err != nil {
		return store.Project{}, err
	}
	return project, nil
}

func (s *Service) GetBoard(ctx context.Context, session Session) (map[string]any, error) {
	project, err := s.resolveProvisioned(ctx, session)
	if err != nil {
		return nil, err
	}

	columns, err := s.store.ListColumns(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.ListCardsForColumns(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	// Provisioning may have renamed columns; push fresh records so the
	// search index does not serve stale column titles.
	if s.search != nil {
		go s.search.ReindexProject(context.Background(), project.ID)
	}

	cardsByColumn := make(map[string][]map[string]any)
	for _, card := range cards {
		cardsByColumn[card.ColumnID] = append(cardsByColumn[card.ColumnID], cardPayload(card))
	}

	columnItems := make([]map[string]any, 0, len(columns))
	for _, column := range columns {
		columnCards := cardsByColumn[column.ID]
		if columnCards == nil {
			columnCards = []map[string]any{}
		}
		columnItems = append(columnItems, map[string]any{
			"id":       column.ID,
			"title":    column.Title,
			"position": column.Position,
			"cards":    columnCards,
		})
	}

	return map[string]any{
		"project": map[string]any{"id": project.ID, "title": project.Title},
		"columns": columnItems,
	}, nil
}

func (s *Service) CreateColumn(ctx context.Context, session Session, title string) (map[string]any, error) {
	columnTitle := strings.TrimSpace(title)
	if columnTitle == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}

	project, err := s.resolveProvisioned(ctx, session)
	if err != nil {
		return nil, err
	}

	count, err := s.store.CountColumns(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if count >= len(s.template) {
		return nil, domainError(http.StatusBadRequest, "LIMIT_EXCEEDED", "board already has the maximum number of columns", nil)
	}

	column, err := s.store.InsertColumnAppend(ctx, project.ID, columnTitle)
	if err != nil {
		return nil, err
	}
	return map[string]any{"column": map[string]any{
		"id":       column.ID,
		"title":    column.Title,
		"position": column.Position,
	}}, nil
}

func (s *Service) CreateCard(ctx context.Context, session Session, columnID, title, description string) (map[string]any, error) {
	cardTitle := strings.TrimSpace(title)
	if cardTitle == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(columnID) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "columnId is required", nil)
	}

	project, err := s.resolveProvisioned(ctx, session)
	if err != nil {
		return nil, err
	}

	column, err := s.store.GetColumn(ctx, columnID)
	if err != nil || column.ProjectID != project.ID {
		if err != nil && !errorIsNoRows(err) {
			return nil, err
		}
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid column", nil)
	}

	card, err := s.store.InsertCardAppend(ctx, column.ID, cardTitle, strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexCard(search.CardRecord{
			ID:          card.ID,
			Title:       card.Title,
			Description: descriptionOrEmpty(card.Description),
			ColumnID:    column.ID,
			ColumnTitle: column.Title,
			ProjectID:   project.ID,
		})
	}

	return map[string]any{"card": cardPayload(card)}, nil
}

func (s *Service) MoveCard(ctx context.Context, session Session, cardID, toColumnID string, toPosition int) error {
	if strings.TrimSpace(cardID) == "" || strings.TrimSpace(toColumnID) == "" || toPosition < 0 {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "cardId, toColumnId, and a non-negative toPosition are required", nil)
	}

	project, err := s.resolveProvisioned(ctx, session)
	if err != nil {
		return err
	}

	ok, err := s.store.ColumnBelongsToProject(ctx, toColumnID, project.ID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid destination column", nil)
	}

	if err := s.store.MoveCard(ctx, cardID, toColumnID, toPosition); err != nil {
		return err
	}

	s.reindexCard(ctx, cardID, project.ID)
	return nil
}

func (s *Service) DeleteCard(ctx context.Context, session Session, cardID string) error {
	if strings.TrimSpace(cardID) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "cardId is required", nil)
	}

	project, err := s.resolveProvisioned(ctx, session)
	if err != nil {
		return err
	}

	if err := s.store.DeleteCard(ctx, cardID, project.ID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteCard(cardID)
	}
	return nil
}

func (s *Service) reindexCard(ctx context.Context, cardID, projectID string) {
	if s.search == nil {
		return
	}
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		log.Printf("search: reload card %s: %v", cardID, err)
		return
	}
	column, err := s.store.GetColumn(ctx, card.ColumnID)
	if err != nil {
		log.Printf("search: reload column %s: %v", card.ColumnID, err)
		return
	}
	s.search.IndexCard(search.CardRecord{
		ID:          card.ID,
		Title:       card.Title,
		Description: descriptionOrEmpty(card.Description),
		ColumnID:    column.ID,
		ColumnTitle: column.Title,
		ProjectID:   projectID,
	})
}

func (s *Service) SearchCards(ctx context.Context, session Session, text string, limit int) (search.Response, error) {
	project, err := s.resolveProvisioned(ctx, session)
	if err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{Text: text, ProjectID: project.ID, Limit: limit}), nil
}

// ProjectSummary is the client's view of their engagement.
func (s *Service) ProjectSummary(ctx context.Context, session Session) (map[string]any, error) {
	project, err := s.ResolveProject(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"project": projectPayload(project)}, nil
}

// PlanningDecision records the client's accept/decline on their plan
// and notifies the studio inbox.
func (s *Service) PlanningDecision(ctx context.Context, session Session, accepted bool) (map[string]any, error) {
	project, err := s.ResolveProject(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	status := statusAccepted
	if !accepted {
		status = statusDeclined
	}
	if err := s.store.UpdateProjectStatus(ctx, project.ID, status, project.Progress); err != nil {
		return nil, err
	}

	if s.SMTPConfigured() && s.cfg.StudioInbox != "" {
		subject, body := email.PlanningDecisionBody(session.UserName, project.Title, accepted)
		go func() {
			if err := s.email.SendEmail([]string{s.cfg.StudioInbox}, subject, body); err != nil {
				log.Printf("email: planning decision notification: %v", err)
			}
		}()
	}

	return map[string]any{"ok": true, "status": status}, nil
}

func (s *Service) Profile(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"role":        user.Role,
		"createdAt":   user.CreatedAt,
	}, nil
}

func (s *Service) UpdateDisplayName(ctx context.Context, session Session, displayName string) (map[string]any, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "displayName is required", nil)
	}
	if err := s.store.UpdateUserDisplayName(ctx, session.UserID, name); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "displayName": name}, nil
}

func (s *Service) AdminListProjects(ctx context.Context) (map[string]any, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		clientName := ""
		if user, err := s.store.GetUserByID(ctx, project.UserID); err == nil {
			clientName = user.DisplayName
		}
		item := projectPayload(project)
		item["clientName"] = clientName
		items = append(items, item)
	}
	return map[string]any{"projects": items}, nil
}

func (s *Service) AdminUpdateProject(ctx context.Context, projectID, status string, progress *int) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	nextStatus := strings.TrimSpace(status)
	if nextStatus == "" {
		nextStatus = project.Status
	}
	nextProgress := project.Progress
	if progress != nil {
		if *progress < 0 || *progress > 100 {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "progress must be between 0 and 100", nil)
		}
		nextProgress = *progress
	}

	if err := s.store.UpdateProjectStatus(ctx, projectID, nextStatus, nextProgress); err != nil {
		return nil, err
	}
	project.Status = nextStatus
	project.Progress = nextProgress
	return map[string]any{"project": projectPayload(project)}, nil
}

func (s *Service) UploadAsset(ctx context.Context, session Session, filename, contentType string, r io.Reader, size int64) (map[string]any, error) {
	if s.uploads == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "File storage is not configured", nil)
	}
	name := strings.TrimSpace(filename)
	if name == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "filename is required", nil)
	}

	project, err := s.ResolveProject(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	assetID := util.NewID("ast")
	objectKey := project.ID + "/" + assetID
	stored, err := s.uploads.Put(ctx, objectKey, contentType, r, size)
	if err != nil {
		return nil, err
	}

	asset := store.Asset{
		ID:          assetID,
		ProjectID:   project.ID,
		ObjectKey:   objectKey,
		Filename:    name,
		ContentType: contentType,
		Size:        stored,
		UploadedBy:  session.UserID,
	}
	if err := s.store.InsertAsset(ctx, asset); err != nil {
		return nil, err
	}
	return map[string]any{"asset": assetPayload(asset, "")}, nil
}

func (s *Service) DeleteAsset(ctx context.Context, session Session, assetID string) error {
	if strings.TrimSpace(assetID) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "assetId is required", nil)
	}

	project, err := s.ResolveProject(ctx, session.UserID)
	if err != nil {
		return err
	}

	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.ProjectID != project.ID {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	if err := s.store.DeleteAsset(ctx, assetID); err != nil {
		return err
	}
	if s.uploads != nil {
		if err := s.uploads.Remove(ctx, asset.ObjectKey); err != nil {
			log.Printf("uploads: remove %s: %v", asset.ObjectKey, err)
		}
	}
	return nil
}

func (s *Service) ListProjectAssets(ctx context.Context, session Session) (map[string]any, error) {
	project, err := s.ResolveProject(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	assets, err := s.store.ListAssets(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(assets))
	for _, asset := range assets {
		url := ""
		if s.uploads != nil {
			signed, err := s.uploads.DownloadURL(ctx, asset.ObjectKey, asset.Filename, time.Hour)
			if err != nil {
				log.Printf("uploads: presign %s: %v", asset.ObjectKey, err)
			} else {
				url = signed
			}
		}
		items = append(items, assetPayload(asset, url))
	}
	return map[string]any{"assets": items}, nil
}

func errorIsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, store.ErrNotFound)
}

func cardPayload(card store.Card) map[string]any {
	return map[string]any{
		"id":          card.ID,
		"columnId":    card.ColumnID,
		"title":       card.Title,
		"description": card.Description,
		"position":    card.Position,
	}
}

func projectPayload(project store.Project) map[string]any {
	return map[string]any{
		"id":        project.ID,
		"userId":    project.UserID,
		"title":     project.Title,
		"status":    project.Status,
		"progress":  project.Progress,
		"createdAt": project.CreatedAt,
	}
}

func assetPayload(asset store.Asset, downloadURL string) map[string]any {
	item := map[string]any{
		"id":          asset.ID,
		"filename":    asset.Filename,
		"contentType": asset.ContentType,
		"size":        asset.Size,
		"createdAt":   asset.CreatedAt,
	}
	if downloadURL != "" {
		item["downloadUrl"] = downloadURL
	}
	return item
}

func descriptionOrEmpty(description *string) string {
	if description == nil {
		return ""
	}
	return *description
}
