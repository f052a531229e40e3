package services

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AlertOptions lists the out-of-band recipients of policy alerts.
type AlertOptions struct {
	Emails        []string
	WhatsAppPhone string
}

// AlertService turns policy events into administrator notifications and
// optional email or WhatsApp messages.
type AlertService struct {
	db       bun.IDB
	email    *EmailService
	whatsapp *WhatsAppService
	opts     AlertOptions
}

func NewAlertService(db bun.IDB, email *EmailService, whatsapp *WhatsAppService, opts AlertOptions) *AlertService {
	return &AlertService{db: db, email: email, whatsapp: whatsapp, opts: opts}
}

// HandleEvent stores one notification per active administrator. External
// deliveries run in the background and only log their failures.
func (s *AlertService) HandleEvent(ctx context.Context, event PolicyEvent) error {
	notifType, title, message := alertContent(event)

	metadata, err := json.Marshal(models.NotificationMetadata{
		MachineID: event.MachineID,
		Username:  event.Username,
		Subject:   event.Subject,
		CatalogID: event.CatalogID,
		EventID:   event.ID,
	})
	if err != nil {
		return err
	}

	var admins []models.User
	err = s.db.NewSelect().
		Model(&admins).
		Where("role IN (?)", bun.In([]models.Role{models.RoleSuperadmin, models.RoleAdmin})).
		Where("is_active = ?", true).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("load alert recipients: %w", err)
	}

	if len(admins) > 0 {
		now := time.Now().UTC()
		notifications := make([]models.Notification, 0, len(admins))
		for _, admin := range admins {
			notifications = append(notifications, models.Notification{
				UserID:    admin.ID,
				Type:      notifType,
				Title:     title,
				Message:   message,
				Metadata:  metadata,
				CreatedAt: now,
			})
		}
		if _, err := s.db.NewInsert().Model(&notifications).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}
	}

	bg := logctx.WithLogger(context.Background(), logctx.Logger(ctx))
	if s.email.Enabled() && len(s.opts.Emails) > 0 {
		go s.sendEmail(bg, title, message)
	}
	if s.whatsapp.Enabled() && s.opts.WhatsAppPhone != "" {
		go s.sendWhatsApp(bg, title, message)
	}

	logctx.Info(ctx, "policy alert raised",
		zap.String("kind", event.Kind),
		zap.String("machine_id", event.MachineID),
		zap.String("subject", event.Subject),
		zap.Int("recipients", len(admins)))
	return nil
}

func alertContent(event PolicyEvent) (notifType models.NotificationType, title, message string) {
	who := event.Username
	if who == "" {
		who = "unknown user"
	}
	switch event.Kind {
	case EventApplicationBlocked:
		return models.NotificationTypeApplicationBlocked,
			"Blocked application used",
			fmt.Sprintf("%s ran blocked application %q on %s.", who, event.Subject, event.MachineID)
	case EventWebsiteBlocked:
		return models.NotificationTypeWebsiteBlocked,
			"Blocked website visited",
			fmt.Sprintf("%s visited blocked website %q on %s.", who, event.Subject, event.MachineID)
	default:
		return models.NotificationTypeDeviceBlocked,
			"Device blocked",
			fmt.Sprintf("Device %q was blocked on %s (user %s).", event.Subject, event.MachineID, who)
	}
}

func (s *AlertService) sendEmail(ctx context.Context, title, message string) {
	body := fmt.Sprintf(`<h2 style="color: #1f2937;">%s</h2><p style="color: #374151;">%s</p>`,
		html.EscapeString(title), html.EscapeString(message))

	if err := s.email.SendEmail(s.opts.Emails, "[TrackWatch] "+title, body); err != nil {
		logctx.Warn(ctx, "failed to send alert email", zap.Error(err))
		return
	}
	logctx.Debug(ctx, "alert email sent", zap.Strings("to", s.opts.Emails))
}

func (s *AlertService) sendWhatsApp(ctx context.Context, title, message string) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.whatsapp.SendMessage(ctx, s.opts.WhatsAppPhone, title+"\n"+message); err != nil {
		logctx.Warn(ctx, "failed to send alert whatsapp message", zap.Error(err))
	}
}

// List returns notifications for a user, newest first.
func (s *AlertService) List(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, int, error) {
	var notifications []models.Notification

	query := s.db.NewSelect().
		Model(&notifications).
		Where("user_id = ?", userID).
		Order("created_at DESC", "id DESC")

	total, err := query.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	if err := query.Limit(limit).Offset(offset).Scan(ctx); err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (s *AlertService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.db.NewSelect().
		Model((*models.Notification)(nil)).
		Where("user_id = ?", userID).
		Where("is_read = ?", false).
		Count(ctx)
}

func (s *AlertService) MarkAsRead(ctx context.Context, notificationID, userID int64) error {
	res, err := s.db.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("is_read = ?", true).
		Set("read_at = ?", time.Now().UTC()).
		Where("id = ?", notificationID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("notification")
	}
	return nil
}

func (s *AlertService) MarkAllAsRead(ctx context.Context, userID int64) error {
	_, err := s.db.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("is_read = ?", true).
		Set("read_at = ?", time.Now().UTC()).
		Where("user_id = ?", userID).
		Where("is_read = ?", false).
		Exec(ctx)
	return err
}
