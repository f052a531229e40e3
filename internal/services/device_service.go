package services

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/boscod/trackwatch/internal/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// DeviceIdentity identifies a device on one machine, either by the full
// vendor/product/serial triple or by its hash.
type DeviceIdentity struct {
	VendorID     string `json:"vendor_id"`
	ProductID    string `json:"product_id"`
	SerialNumber string `json:"serial_number"`
	DeviceHash   string `json:"device_hash"`
}

func (id *DeviceIdentity) normalize() {
	id.VendorID = strings.TrimSpace(id.VendorID)
	id.ProductID = strings.TrimSpace(id.ProductID)
	id.SerialNumber = strings.TrimSpace(id.SerialNumber)
	id.DeviceHash = strings.TrimSpace(id.DeviceHash)
}

func (id DeviceIdentity) hasTriple() bool {
	return id.VendorID != "" && id.ProductID != "" && id.SerialNumber != ""
}

// DeviceHash derives the identity hash agents compute when they send none:
// md5 over vendor, product, serial and name concatenated.
func DeviceHash(vendorID, productID, serialNumber, name string) string {
	sum := md5.Sum([]byte(vendorID + productID + serialNumber + name))
	return hex.EncodeToString(sum[:])
}

// DeviceReport is the body of POST /api/device.
type DeviceReport struct {
	DeviceIdentity
	MachineID  string           `json:"machine_id"`
	Username   string           `json:"-"`
	DeviceName string           `json:"device_name"`
	DeviceType string           `json:"device_type"`
	DevicePath string           `json:"device_path"`
	Action     string           `json:"action"`
	IsBlocked  models.FlexBool  `json:"is_blocked"`
	IsAllowed  models.FlexBool  `json:"is_allowed"`
	Timestamp  models.AgentTime `json:"timestamp"`
}

func (r *DeviceReport) UnmarshalJSON(data []byte) error {
	type plain DeviceReport
	return decodeWithUserAlias(data, (*plain)(r), &r.Username)
}

func (r *DeviceReport) normalize() {
	r.DeviceIdentity.normalize()
	r.MachineID = strings.TrimSpace(r.MachineID)
	r.Username = strings.TrimSpace(r.Username)
	r.DeviceName = strings.TrimSpace(r.DeviceName)
	r.DeviceType = strings.TrimSpace(r.DeviceType)
	if r.DeviceType == "" {
		r.DeviceType = "USB"
	}
	r.DevicePath = strings.TrimSpace(r.DevicePath)
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	if r.Action == "" {
		r.Action = models.DeviceActionConnected
	}
	if r.DeviceHash == "" {
		r.DeviceHash = DeviceHash(r.VendorID, r.ProductID, r.SerialNumber, r.DeviceName)
	}
}

func (r *DeviceReport) validate() error {
	if r.MachineID == "" {
		return validationError("machine_id is required")
	}
	if r.DeviceName == "" {
		return validationError("device_name is required")
	}
	switch r.Action {
	case models.DeviceActionConnected, models.DeviceActionDisconnected, models.DeviceActionBlocked:
	default:
		return validationError("unknown device action %q", r.Action)
	}
	return nil
}

// PermissionCheck is the body of POST /api/permissions?action=check.
type PermissionCheck struct {
	DeviceIdentity
	MachineID string `json:"machine_id"`
}

// DeviceResult is returned from ReportDevice.
type DeviceResult struct {
	DeviceID   int64
	Permission models.Permission
}

type DeviceService struct {
	db        *bun.DB
	publisher EventPublisher
}

func NewDeviceService(db *bun.DB, publisher EventPublisher) *DeviceService {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	return &DeviceService{db: db, publisher: publisher}
}

// ReportDevice records a device event from an agent. A new device on a
// machine with device monitoring on starts blocked unless the agent reports
// it allowed, in which case it waits for an administrator as pending. Agent
// reports never override an administrator decision on a known device.
func (s *DeviceService) ReportDevice(ctx context.Context, req *DeviceReport) (*DeviceResult, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		result = &DeviceResult{}
		events []PolicyEvent
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		machine, err := findMachine(ctx, tx, req.MachineID)
		if err != nil {
			return err
		}

		var userID *int64
		username := ""
		if req.Username != "" {
			user, err := userByName(ctx, tx, req.Username)
			switch {
			case err == nil:
				userID = &user.ID
				username = user.Username
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("load user %s: %w", req.Username, err)
			}
		}

		seen := req.Timestamp.OrNow()
		device, err := lookupDevice(ctx, tx, machine.ID, req.DeviceIdentity)
		if err != nil {
			return err
		}

		var previous models.Permission
		if device == nil {
			monitored, err := machineMonitoringEnabled(ctx, tx, machine.ID)
			if err != nil {
				return err
			}
			device, err = insertDevice(ctx, tx, &models.Device{
				MachineID:    machine.ID,
				DeviceHash:   req.DeviceHash,
				UserID:       userID,
				VendorID:     optionalString(req.VendorID),
				ProductID:    optionalString(req.ProductID),
				SerialNumber: optionalString(req.SerialNumber),
				Name:         req.DeviceName,
				DeviceType:   req.DeviceType,
				DevicePath:   optionalString(req.DevicePath),
				Permission:   initialPermission(monitored, bool(req.IsBlocked), bool(req.IsAllowed)),
				FirstSeen:    seen,
				LastSeen:     seen,
			})
			if err != nil {
				return err
			}
		} else {
			previous = device.Permission
			if device.Permission == models.PermissionPending && bool(req.IsBlocked) {
				device.Permission = models.PermissionBlocked
			}
			if seen.After(device.LastSeen) {
				device.LastSeen = seen
			}
			device.UserID = userID
			_, err := tx.NewUpdate().
				Model(device).
				Column("last_seen", "user_id", "permission", "updated_at").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("update device: %w", err)
			}
		}

		if err := insertDeviceLog(ctx, tx, device, userID, req.Action, models.DeviceLogDetails{
			DeviceHash:     req.DeviceHash,
			DevicePath:     req.DevicePath,
			ReportedAction: req.Action,
			Previous:       previous,
			Permission:     device.Permission,
		}, seen); err != nil {
			return err
		}

		result.DeviceID = device.ID
		result.Permission = device.Permission
		if device.Permission == models.PermissionBlocked && previous != models.PermissionBlocked {
			events = append(events, newPolicyEvent(EventDeviceBlocked, machine.ExternalID, username,
				device.Name, device.ID, 0, seen))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, events...)
	return result, nil
}

func initialPermission(monitored, reportedBlocked, reportedAllowed bool) models.Permission {
	if monitored {
		if reportedAllowed {
			return models.PermissionPending
		}
		return models.PermissionBlocked
	}
	if reportedBlocked {
		return models.PermissionBlocked
	}
	return models.PermissionPending
}

// lookupDevice finds a device on machineID by full triple or by hash. It
// returns nil when there is none.
func lookupDevice(ctx context.Context, db bun.IDB, machineID int64, id DeviceIdentity) (*models.Device, error) {
	if id.DeviceHash == "" && !id.hasTriple() {
		return nil, nil
	}

	var devices []models.Device
	err := db.NewSelect().
		Model(&devices).
		Where("machine_id = ?", machineID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if id.hasTriple() {
				q = q.WhereOr("vendor_id = ? AND product_id = ? AND serial_number = ?",
					id.VendorID, id.ProductID, id.SerialNumber)
			}
			if id.DeviceHash != "" {
				q = q.WhereOr("device_hash = ?", id.DeviceHash)
			}
			return q
		}).
		Order("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	if len(devices) == 0 {
		return nil, nil
	}
	return &devices[0], nil
}

// insertDevice inserts d unless a concurrent report already created the
// same device on the machine, by hash or by vendor/product/serial, and
// returns whichever row is stored.
func insertDevice(ctx context.Context, tx bun.IDB, d *models.Device) (*models.Device, error) {
	_, err := tx.NewInsert().
		Model(d).
		On("CONFLICT DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert device: %w", err)
	}

	stored, err := lookupDevice(ctx, tx, d.MachineID, DeviceIdentity{
		VendorID:     deref(d.VendorID),
		ProductID:    deref(d.ProductID),
		SerialNumber: deref(d.SerialNumber),
		DeviceHash:   d.DeviceHash,
	})
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("load device: %w", sql.ErrNoRows)
	}
	return stored, nil
}

func insertDeviceLog(ctx context.Context, tx bun.IDB, d *models.Device, userID *int64, action string, details models.DeviceLogDetails, at time.Time) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = tx.NewInsert().Model(&models.DeviceLog{
		DeviceID:  d.ID,
		UserID:    userID,
		MachineID: d.MachineID,
		Action:    action,
		Details:   raw,
		CreatedAt: at,
	}).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert device log: %w", err)
	}
	return nil
}

// CheckPermission looks up the permission of a device without changing
// anything. An unknown device, or a pending one, has no permission.
func (s *DeviceService) CheckPermission(ctx context.Context, req *PermissionCheck) (*models.Permission, error) {
	req.MachineID = strings.TrimSpace(req.MachineID)
	req.DeviceIdentity.normalize()
	if req.MachineID == "" {
		return nil, validationError("machine_id is required")
	}
	if req.DeviceHash == "" && !req.hasTriple() {
		return nil, validationError("device_hash or vendor_id, product_id and serial_number are required")
	}

	machine, err := findMachine(ctx, s.db, req.MachineID)
	if err != nil {
		return nil, err
	}
	device, err := lookupDevice(ctx, s.db, machine.ID, req.DeviceIdentity)
	if err != nil || device == nil || device.Permission == models.PermissionPending {
		return nil, err
	}
	p := device.Permission
	return &p, nil
}

// SetPermission applies an administrator decision to one device.
func (s *DeviceService) SetPermission(ctx context.Context, deviceID int64, action models.PermissionAction, actorID int64) (*models.Device, error) {
	devices, err := s.SetPermissions(ctx, []int64{deviceID}, action, actorID)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, notFound(fmt.Sprintf("device %d", deviceID))
	}
	return &devices[0], nil
}

// SetPermissions applies an administrator decision to every listed device
// in one transaction. Unknown ids are skipped.
func (s *DeviceService) SetPermissions(ctx context.Context, deviceIDs []int64, action models.PermissionAction, actorID int64) ([]models.Device, error) {
	if len(deviceIDs) == 0 {
		return nil, validationError("device_ids is required")
	}

	var updated []models.Device
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var devices []models.Device
		err := tx.NewSelect().
			Model(&devices).
			Where("id IN (?)", bun.In(deviceIDs)).
			Order("id ASC").
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("load devices: %w", err)
		}

		now := models.NormalizeTime(time.Now())
		for i := range devices {
			d := &devices[i]
			previous := d.Permission
			d.Permission = action.Apply(previous)

			_, err := tx.NewUpdate().
				Model(d).
				Column("permission", "updated_at").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("update device %d: %w", d.ID, err)
			}

			actor := actorID
			if err := insertDeviceLog(ctx, tx, d, d.UserID, permissionLogAction(action), models.DeviceLogDetails{
				DeviceHash:  d.DeviceHash,
				Previous:    previous,
				Permission:  d.Permission,
				ActorUserID: &actor,
			}, now); err != nil {
				return err
			}
		}
		updated = devices
		return nil
	})
	if err != nil {
		return nil, err
	}

	logctx.Info(ctx, "device permissions changed",
		zap.String("action", string(action)),
		zap.Int("devices", len(updated)),
		zap.Int64("actor_id", actorID))
	return updated, nil
}

func permissionLogAction(a models.PermissionAction) string {
	switch a {
	case models.ActionAllow:
		return models.DeviceActionAllowed
	case models.ActionBlock:
		return models.DeviceActionBlocked
	}
	return models.DeviceActionUnblocked
}

// DeleteDevices removes devices and their logs. It returns how many
// devices were removed.
func (s *DeviceService) DeleteDevices(ctx context.Context, deviceIDs []int64) (int, error) {
	if len(deviceIDs) == 0 {
		return 0, validationError("device_ids is required")
	}

	var removed int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.DeviceLog)(nil)).
			Where("device_id IN (?)", bun.In(deviceIDs)).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete device logs: %w", err)
		}

		res, err := tx.NewDelete().
			Model((*models.Device)(nil)).
			Where("id IN (?)", bun.In(deviceIDs)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete devices: %w", err)
		}
		n, _ := res.RowsAffected()
		removed = int(n)
		return nil
	})
	return removed, err
}

// DeviceFilter narrows ListDevices. Zero values match everything.
type DeviceFilter struct {
	MachineID  int64
	Permission models.Permission
	Search     string
	Limit      int
	Offset     int
}

func (s *DeviceService) ListDevices(ctx context.Context, f DeviceFilter) ([]models.Device, int, error) {
	var devices []models.Device
	query := s.db.NewSelect().
		Model(&devices).
		Relation("Machine").
		Order("d.last_seen DESC", "d.id DESC")

	if f.MachineID > 0 {
		query = query.Where("d.machine_id = ?", f.MachineID)
	}
	if f.Permission != "" {
		query = query.Where("d.permission = ?", f.Permission)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(d.name) LIKE ?", like)
	}

	total, err := query.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, 0, err
	}
	return devices, total, nil
}

// ListLogs returns device log rows, newest first. deviceID 0 lists all.
func (s *DeviceService) ListLogs(ctx context.Context, deviceID int64, limit, offset int) ([]models.DeviceLog, int, error) {
	var logs []models.DeviceLog
	query := s.db.NewSelect().
		Model(&logs).
		Order("created_at DESC", "id DESC")
	if deviceID > 0 {
		query = query.Where("device_id = ?", deviceID)
	}

	total, err := query.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if err := query.Limit(limit).Offset(offset).Scan(ctx); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
