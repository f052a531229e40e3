package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/boscod/trackwatch/internal/policy"
	"github.com/boscod/trackwatch/internal/storage"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// maxDurationAttempts bounds the compare-and-set loop of a duration update.
const maxDurationAttempts = 5

// IngestService accepts agent telemetry. Every call runs in one transaction
// and publishes policy events only after it commits.
type IngestService struct {
	db        *bun.DB
	settings  *SettingsService
	store     storage.Store
	encrypted bool
	publisher EventPublisher
}

func NewIngestService(db *bun.DB, settings *SettingsService, store storage.Store, encrypted bool, publisher EventPublisher) *IngestService {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	return &IngestService{
		db:        db,
		settings:  settings,
		store:     store,
		encrypted: encrypted,
		publisher: publisher,
	}
}

// agent is the resolved machine and user an event is attributed to.
type agent struct {
	MachineID  int64
	ExternalID string
	UserID     int64
	Username   string
}

func (a agent) actor() policy.Actor {
	return policy.Actor{UserID: a.UserID, MachineID: a.MachineID}
}

// resolveAgent loads a registered machine and resolves or creates the user.
func resolveAgent(ctx context.Context, db bun.IDB, machineExternalID, username string) (agent, error) {
	machine, err := findMachine(ctx, db, machineExternalID)
	if err != nil {
		return agent{}, err
	}
	user, err := ensureUser(ctx, db, username)
	if err != nil {
		return agent{}, err
	}
	return agent{
		MachineID:  machine.ID,
		ExternalID: machine.ExternalID,
		UserID:     user.ID,
		Username:   user.Username,
	}, nil
}

// ReportResult is the outcome of a report or update_duration call.
type ReportResult struct {
	Action          string
	CatalogID       int64
	IsBlocked       bool
	DurationUpdated int64
}

// HandleApplication dispatches an application report on its action.
func (s *IngestService) HandleApplication(ctx context.Context, req *ApplicationReport) (*ReportResult, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionReport:
		return s.reportApplication(ctx, req)
	case ActionUpdateDuration:
		return s.updateApplicationDuration(ctx, req)
	}
	return nil, validationError("unknown action %q", req.Action)
}

// HandleWebsite dispatches a website report on its action.
func (s *IngestService) HandleWebsite(ctx context.Context, req *WebsiteReport) (*ReportResult, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionReport:
		return s.reportWebsite(ctx, req)
	case ActionUpdateDuration:
		return s.updateWebsiteDuration(ctx, req)
	}
	return nil, validationError("unknown action %q", req.Action)
}

func (s *IngestService) reportApplication(ctx context.Context, req *ApplicationReport) (*ReportResult, error) {
	result := &ReportResult{Action: ActionReport}
	var events []PolicyEvent

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		who, err := resolveAgent(ctx, tx, req.MachineID, req.Username)
		if err != nil {
			return err
		}

		opened, err := openApplicationSession(ctx, tx, who, applicationSession{
			ProcessName:    req.ProcessName,
			Name:           optionalString(req.ApplicationName),
			WindowTitle:    optionalString(req.WindowTitle),
			ExecutablePath: optionalString(req.ExecutablePath),
			Start:          req.SessionStart.OrNow(),
			Productivity:   req.IsProductive,
		})
		if err != nil {
			return err
		}

		result.CatalogID = opened.CatalogID
		result.IsBlocked = opened.Blocked
		if opened.Event != nil {
			events = append(events, *opened.Event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, events...)
	return result, nil
}

func (s *IngestService) updateApplicationDuration(ctx context.Context, req *ApplicationReport) (*ReportResult, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		who, err := resolveAgent(ctx, tx, req.MachineID, req.Username)
		if err != nil {
			return err
		}
		_, err = applyApplicationDuration(ctx, tx, who, req.ProcessName, req.DurationSeconds, req.SessionEnd.OrNow())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ReportResult{Action: ActionUpdateDuration, DurationUpdated: req.DurationSeconds}, nil
}

func (s *IngestService) reportWebsite(ctx context.Context, req *WebsiteReport) (*ReportResult, error) {
	result := &ReportResult{Action: ActionReport}
	var events []PolicyEvent

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		who, err := resolveAgent(ctx, tx, req.MachineID, req.Username)
		if err != nil {
			return err
		}

		start := req.VisitStart.OrNow()
		title := optionalString(req.Title)
		entry, err := upsertWebsite(ctx, tx, websiteObservation{Domain: req.Domain, Title: title, SeenAt: start})
		if err != nil {
			return err
		}

		rules, err := activeWebsiteRules(ctx, tx, who.actor())
		if err != nil {
			return err
		}
		decision := policy.Evaluate(rules, policy.Target{
			CatalogID:  entry.ID,
			CategoryID: entry.CategoryID,
			Name:       req.Domain,
		}, who.actor())

		visit := &models.WebsiteVisit{
			UserID:      who.UserID,
			MachineID:   who.MachineID,
			WebsiteID:   entry.ID,
			Domain:      req.Domain,
			URL:         optionalString(req.URL),
			Title:       title,
			Browser:     optionalString(req.Browser),
			IsPrivate:   bool(req.IsPrivate),
			IsIncognito: bool(req.IsIncognito),
			VisitStart:  start,
			IsBlocked:   decision.Blocked,
		}
		if _, err := tx.NewInsert().Model(visit).Exec(ctx); err != nil {
			return fmt.Errorf("insert website visit: %w", err)
		}

		detail := visit.URL
		if detail == nil {
			detail = title
		}
		if err := insertTimeline(ctx, tx, &models.TimelineEntry{
			UserID:       who.UserID,
			MachineID:    who.MachineID,
			ActivityType: models.TimelineWebsite,
			SourceID:     &visit.ID,
			Title:        req.Domain,
			Detail:       detail,
			StartTime:    start,
		}); err != nil {
			return err
		}

		result.CatalogID = entry.ID
		result.IsBlocked = decision.Blocked
		if decision.Blocked {
			events = append(events, newPolicyEvent(EventWebsiteBlocked, who.ExternalID, who.Username,
				req.Domain, entry.ID, decision.Rule.ID, start))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, events...)
	return result, nil
}

func (s *IngestService) updateWebsiteDuration(ctx context.Context, req *WebsiteReport) (*ReportResult, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		who, err := resolveAgent(ctx, tx, req.MachineID, req.Username)
		if err != nil {
			return err
		}
		_, err = applyWebsiteDuration(ctx, tx, who, req.Domain, req.DurationSeconds, req.VisitEnd.OrNow())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ReportResult{Action: ActionUpdateDuration, DurationUpdated: req.DurationSeconds}, nil
}

type applicationSession struct {
	ProcessName    string
	Name           *string
	WindowTitle    *string
	ExecutablePath *string
	Start          time.Time
	Productivity   models.Productivity
}

type openedSession struct {
	CatalogID int64
	UsageID   int64
	Blocked   bool
	Event     *PolicyEvent
}

// openApplicationSession upserts the catalog entry, evaluates the block
// rules and appends the usage and timeline rows of a new session.
func openApplicationSession(ctx context.Context, tx bun.IDB, who agent, sess applicationSession) (*openedSession, error) {
	productivity := sess.Productivity
	if productivity == "" {
		productivity = models.ProductivityUnknown
	}

	entry, err := upsertApplication(ctx, tx, applicationObservation{
		ProcessName:    sess.ProcessName,
		Name:           sess.Name,
		ExecutablePath: sess.ExecutablePath,
		Productivity:   productivity,
		SeenAt:         sess.Start,
	})
	if err != nil {
		return nil, err
	}

	rules, err := activeApplicationRules(ctx, tx, who.actor())
	if err != nil {
		return nil, err
	}
	decision := policy.Evaluate(rules, policy.Target{
		CatalogID:  entry.ID,
		CategoryID: entry.CategoryID,
		Name:       sess.ProcessName,
	}, who.actor())

	usage := &models.ApplicationUsage{
		UserID:          who.UserID,
		MachineID:       who.MachineID,
		ApplicationID:   entry.ID,
		ProcessName:     sess.ProcessName,
		ApplicationName: sess.Name,
		WindowTitle:     sess.WindowTitle,
		ExecutablePath:  sess.ExecutablePath,
		SessionStart:    sess.Start,
		Productivity:    productivity,
		IsBlocked:       decision.Blocked,
	}
	if _, err := tx.NewInsert().Model(usage).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert application usage: %w", err)
	}

	title := sess.ProcessName
	if sess.Name != nil {
		title = *sess.Name
	}
	if err := insertTimeline(ctx, tx, &models.TimelineEntry{
		UserID:       who.UserID,
		MachineID:    who.MachineID,
		ActivityType: models.TimelineApplication,
		SourceID:     &usage.ID,
		Title:        title,
		Detail:       sess.WindowTitle,
		StartTime:    sess.Start,
		Productivity: productivity,
	}); err != nil {
		return nil, err
	}

	opened := &openedSession{CatalogID: entry.ID, UsageID: usage.ID, Blocked: decision.Blocked}
	if decision.Blocked {
		event := newPolicyEvent(EventApplicationBlocked, who.ExternalID, who.Username,
			sess.ProcessName, entry.ID, decision.Rule.ID, sess.Start)
		opened.Event = &event
	}
	return opened, nil
}

func insertTimeline(ctx context.Context, tx bun.IDB, entry *models.TimelineEntry) error {
	if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

// applyApplicationDuration reconciles a cumulative session duration onto
// the most recent session of processName. The row keeps the largest value
// seen so far and the catalog aggregate grows by the difference. It reports
// false when there is no session to update.
func applyApplicationDuration(ctx context.Context, tx bun.IDB, who agent, processName string, duration int64, end time.Time) (bool, error) {
	for attempt := 0; attempt < maxDurationAttempts; attempt++ {
		var rows []models.ApplicationUsage
		err := tx.NewSelect().
			Model(&rows).
			Where("user_id = ?", who.UserID).
			Where("machine_id = ?", who.MachineID).
			Where("process_name = ?", processName).
			Order("session_start DESC", "id DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			return false, fmt.Errorf("load application usage: %w", err)
		}
		if len(rows) == 0 {
			return false, nil
		}
		row := rows[0]

		applied := max(row.DurationSeconds, duration)
		res, err := tx.NewUpdate().
			Model((*models.ApplicationUsage)(nil)).
			Set("duration_seconds = ?", applied).
			Set("session_end = ?", end).
			Where("id = ?", row.ID).
			Where("duration_seconds = ?", row.DurationSeconds).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("update application usage: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		_, err = tx.NewUpdate().
			Model((*models.Application)(nil)).
			Set("total_usage_seconds = total_usage_seconds + ?", applied-row.DurationSeconds).
			Set("last_seen = CASE WHEN ? > last_seen THEN ? ELSE last_seen END", end, end).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", row.ApplicationID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("update application totals: %w", err)
		}

		return true, closeTimeline(ctx, tx, models.TimelineApplication, row.ID, applied, end)
	}
	return false, conflict("duration of %s changed concurrently", processName)
}

// applyWebsiteDuration is applyApplicationDuration for website visits.
func applyWebsiteDuration(ctx context.Context, tx bun.IDB, who agent, domain string, duration int64, end time.Time) (bool, error) {
	for attempt := 0; attempt < maxDurationAttempts; attempt++ {
		var rows []models.WebsiteVisit
		err := tx.NewSelect().
			Model(&rows).
			Where("user_id = ?", who.UserID).
			Where("machine_id = ?", who.MachineID).
			Where("domain = ?", domain).
			Order("visit_start DESC", "id DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			return false, fmt.Errorf("load website visit: %w", err)
		}
		if len(rows) == 0 {
			return false, nil
		}
		row := rows[0]

		applied := max(row.DurationSeconds, duration)
		res, err := tx.NewUpdate().
			Model((*models.WebsiteVisit)(nil)).
			Set("duration_seconds = ?", applied).
			Set("visit_end = ?", end).
			Where("id = ?", row.ID).
			Where("duration_seconds = ?", row.DurationSeconds).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("update website visit: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		_, err = tx.NewUpdate().
			Model((*models.Website)(nil)).
			Set("total_duration_seconds = total_duration_seconds + ?", applied-row.DurationSeconds).
			Set("last_seen = CASE WHEN ? > last_seen THEN ? ELSE last_seen END", end, end).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", row.WebsiteID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("update website totals: %w", err)
		}

		return true, closeTimeline(ctx, tx, models.TimelineWebsite, row.ID, applied, end)
	}
	return false, conflict("duration of %s changed concurrently", domain)
}

func closeTimeline(ctx context.Context, tx bun.IDB, activityType string, sourceID, duration int64, end time.Time) error {
	_, err := tx.NewUpdate().
		Model((*models.TimelineEntry)(nil)).
		Set("duration_seconds = ?", duration).
		Set("end_time = ?", end).
		Where("activity_type = ?", activityType).
		Where("source_id = ?", sourceID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update timeline entry: %w", err)
	}
	return nil
}

// Ingest stores a batch from an agent. The machine and user are created
// on first contact. Screenshots are written to the blob store before the
// transaction commits and removed again when it fails.
func (s *IngestService) Ingest(ctx context.Context, batch *IngestBatch) (*AgentSettings, error) {
	if err := batch.validate(); err != nil {
		return nil, err
	}

	shots := make([][]byte, len(batch.Screenshots))
	for i, shot := range batch.Screenshots {
		data, err := base64.StdEncoding.DecodeString(shot.DataBase64)
		if err != nil || len(data) == 0 {
			return nil, validationError("screenshots[%d].data_base64 is not valid base64", i)
		}
		shots[i] = data
	}

	var (
		settings *AgentSettings
		events   []PolicyEvent
		written  []string
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := ensureUser(ctx, tx, batch.Username)
		if err != nil {
			return err
		}
		now := models.NormalizeTime(time.Now())
		machineID, err := upsertMachine(ctx, tx, machineUpsert{
			ExternalID: batch.MachineID,
			UserID:     &user.ID,
			Hostname:   optionalString(batch.Hostname),
			SeenAt:     now,
		})
		if err != nil {
			return err
		}
		who := agent{MachineID: machineID, ExternalID: batch.MachineID, UserID: user.ID, Username: user.Username}

		if err := insertActivity(ctx, tx, who, batch.Activity); err != nil {
			return err
		}

		for i, shot := range batch.Screenshots {
			takenAt := shot.TakenAt.OrNow()
			key := storage.ScreenshotKey(who.ExternalID, takenAt, shot.Filename)
			if err := s.store.Put(ctx, key, shots[i], "image/jpeg"); err != nil {
				return fmt.Errorf("store screenshot: %w", err)
			}
			written = append(written, key)

			_, err := tx.NewInsert().Model(&models.Screenshot{
				UserID:    who.UserID,
				MachineID: who.MachineID,
				ObjectKey: key,
				SizeKB:    int64((len(shots[i]) + 1023) / 1024),
				Encrypted: s.encrypted,
				TakenAt:   takenAt,
			}).Exec(ctx)
			if err != nil {
				return fmt.Errorf("insert screenshot: %w", err)
			}
		}

		for _, item := range batch.ApplicationUsage {
			opened, err := openApplicationSession(ctx, tx, who, applicationSession{
				ProcessName:    item.ProcessName,
				Name:           optionalString(item.ApplicationName),
				WindowTitle:    optionalString(item.WindowTitle),
				ExecutablePath: optionalString(item.ExecutablePath),
				Start:          item.SessionStart.OrNow(),
				Productivity:   item.IsProductive,
			})
			if err != nil {
				return err
			}
			if opened.Event != nil {
				events = append(events, *opened.Event)
			}
			if item.DurationSeconds > 0 {
				end := item.SessionEnd.OrNow()
				if _, err := applyApplicationDuration(ctx, tx, who, item.ProcessName, item.DurationSeconds, end); err != nil {
					return err
				}
			}
		}

		settings, err = s.settings.AgentSettings(ctx, tx, machineID)
		return err
	})
	if err != nil {
		for _, key := range written {
			if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
				logctx.Warn(ctx, "failed to remove orphaned screenshot", zap.String("key", key), zap.Error(derr))
			}
		}
		return nil, err
	}

	logctx.Debug(ctx, "batch ingested",
		zap.String("machine_id", batch.MachineID),
		zap.Int("activity", len(batch.Activity)),
		zap.Int("screenshots", len(batch.Screenshots)),
		zap.Int("application_usage", len(batch.ApplicationUsage)))

	publish(ctx, s.publisher, events...)
	return settings, nil
}

func insertActivity(ctx context.Context, tx bun.IDB, who agent, ticks []ActivityTick) error {
	if len(ticks) == 0 {
		return nil
	}

	rows := make([]models.Activity, 0, len(ticks))
	var idle []models.TimelineEntry
	for _, tick := range ticks {
		start := tick.StartTime.OrNow()
		end := start
		if !tick.EndTime.IsZero() {
			end = tick.EndTime.Time
		}
		rows = append(rows, models.Activity{
			UserID:              who.UserID,
			MachineID:           who.MachineID,
			StartTime:           start,
			EndTime:             end,
			ProductiveSeconds:   tick.ProductiveSeconds,
			UnproductiveSeconds: tick.UnproductiveSeconds,
			IdleSeconds:         tick.IdleSeconds,
			MouseMoves:          tick.MouseMoves,
			KeyPresses:          tick.KeyPresses,
		})
		if tick.IdleSeconds > 0 {
			idleEnd := end
			idle = append(idle, models.TimelineEntry{
				UserID:          who.UserID,
				MachineID:       who.MachineID,
				ActivityType:    models.TimelineIdle,
				Title:           "Idle",
				StartTime:       start,
				EndTime:         &idleEnd,
				DurationSeconds: tick.IdleSeconds,
			})
		}
	}

	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	if len(idle) > 0 {
		if _, err := tx.NewInsert().Model(&idle).Exec(ctx); err != nil {
			return fmt.Errorf("insert idle timeline: %w", err)
		}
	}
	return nil
}

// RegistrationResult is returned from RegisterAgent.
type RegistrationResult struct {
	Created   bool
	ID        int64
	MachineID string
}

// RegisterAgent upserts a machine keyed on its external id. A username, when
// given, is resolved or created and assigned to the machine.
func (s *IngestService) RegisterAgent(ctx context.Context, reg *Registration) (*RegistrationResult, error) {
	reg.normalize()
	if reg.MachineID == "" {
		return nil, validationError("machine_id is required")
	}

	result := &RegistrationResult{MachineID: reg.MachineID}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*models.Machine)(nil)).
			Where("external_id = ?", reg.MachineID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("load machine: %w", err)
		}
		result.Created = !exists

		var userID *int64
		if reg.Username != "" {
			user, err := ensureUser(ctx, tx, reg.Username)
			if err != nil {
				return err
			}
			userID = &user.ID
		}

		result.ID, err = upsertMachine(ctx, tx, machineUpsert{
			ExternalID:  reg.MachineID,
			UserID:      userID,
			Hostname:    optionalString(reg.Hostname),
			DisplayName: optionalString(reg.DisplayName),
			Email:       optionalString(reg.Email),
			UPN:         optionalString(reg.UPN),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logctx.Info(ctx, "agent registered",
		zap.String("machine_id", reg.MachineID),
		zap.Bool("created", result.Created))
	return result, nil
}
