package fall

import (
	"context"
	"fmt"

	"elderguard/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertMessage 组装告警文本
func AlertMessage(severity int, loc models.Location, hasLocation bool) string {
	if hasLocation {
		return fmt.Sprintf("FALL DETECTED! Severity: %d/10. Location: https://maps.google.com/?q=%.6f,%.6f",
			severity, loc.Latitude, loc.Longitude)
	}
	return fmt.Sprintf("FALL DETECTED! Severity: %d/10. Location unavailable", severity)
}

// buildAlert 同步组装告警记录，定位读取有时限
func (d *Detector) buildAlert(ctx context.Context, severity int, ts int64) models.FallAlertRecord {
	loc, ok := d.readLocation(ctx)
	return models.FallAlertRecord{
		AlertID:         uuid.New().String(),
		Message:         AlertMessage(severity, loc, ok),
		HasLocationHint: ok,
		Pending:         true,
		Severity:        severity,
		TimestampMs:     ts,
	}
}

type locationResult struct {
	loc models.Location
	err error
}

// readLocation 在 LocationReadTimeout 内读取定位，超时或无有效定位返回 false
func (d *Detector) readLocation(ctx context.Context) (models.Location, bool) {
	if d.location == nil {
		return models.Location{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.LocationReadTimeout)
	defer cancel()

	// 提供方可能不理会 ctx，用 goroutine 保证有界
	result := make(chan locationResult, 1)
	go func() {
		loc, err := d.location.ReadLocation(ctx)
		result <- locationResult{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		d.logger.Warn("Location read timed out", zap.Duration("timeout", d.cfg.LocationReadTimeout))
		return models.Location{}, false
	case r := <-result:
		if r.err != nil {
			d.logger.Warn("Location read failed", zap.Error(r.err))
			return models.Location{}, false
		}
		return r.loc, r.loc.Valid
	}
}
