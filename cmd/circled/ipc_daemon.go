package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"circled/internal/health"
	"circled/internal/healthdata"
	"circled/internal/ipc"
	"circled/internal/onboarding"
	"circled/internal/permissions"
	"circled/internal/proof"
	"circled/internal/theme"
)

// daemonState bundles the managers the IPC handlers operate on.
type daemonState struct {
	startTime time.Time
	checker   *health.Checker
	registry  *permissions.Registry
	poller    *permissions.Poller
	orch      *proof.Orchestrator
	gateway   *healthdata.Gateway
	themeReg  *theme.Registry
	flow      *onboarding.Flow
}

func registerIPCHandlers(srv *ipc.Server, d *daemonState) {
	srv.Handle(ipc.MsgStatus, d.handleStatus)
	srv.Handle(ipc.MsgCheckAll, d.handleCheckAll)
	srv.Handle(ipc.MsgExportConsent, d.handleExportConsent)
	srv.Handle(ipc.MsgClearConsent, d.handleClearConsent)
	srv.Handle(ipc.MsgForeground, d.handleForeground)
	srv.Handle(ipc.MsgBackground, d.handleBackground)
	srv.Handle(ipc.MsgCleanupProofs, d.handleCleanupProofs)
	srv.Handle(ipc.MsgThemeGet, d.handleThemeGet)
	srv.Handle(ipc.MsgThemeSet, d.handleThemeSet)
	srv.Handle(ipc.MsgHealthRefresh, d.handleHealthRefresh)
}

func (d *daemonState) permissionInfos() []ipc.PermissionInfo {
	records := d.registry.Records()
	out := make([]ipc.PermissionInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, ipc.PermissionInfo{
			Type:        string(rec.Type),
			Status:      string(rec.Status),
			LastChecked: time.Unix(0, rec.LastCheckedNs).Format(time.RFC3339),
		})
	}
	return out
}

func (d *daemonState) handleStatus(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	return ipc.MsgStatusResp, ipc.StatusResponse{
		Version:        version,
		Uptime:         time.Since(d.startTime).Round(time.Second).String(),
		Health:         string(d.checker.OverallStatus()),
		PollerRunning:  d.poller.Running(),
		InflightProofs: len(d.orch.InflightSessions()),
		Permissions:    d.permissionInfos(),
		Theme:          string(d.themeReg.Current()),
		Accent:         d.themeReg.Accent().Hex(),
		OnboardingDone: d.flow.Completed(),
	}, nil
}

func (d *daemonState) handleCheckAll(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d.registry.CheckAll(ctx)
	return ipc.MsgCheckAllResp, ipc.CheckAllResponse{Permissions: d.permissionInfos()}, nil
}

func (d *daemonState) handleExportConsent(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	data, err := d.registry.ExportLog()
	if err != nil {
		return 0, nil, err
	}
	return ipc.MsgExportConsentResp, ipc.ExportConsentResponse{Export: json.RawMessage(data)}, nil
}

func (d *daemonState) handleClearConsent(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	if err := d.registry.Clear(); err != nil {
		return 0, nil, err
	}
	return ipc.MsgClearConsentResp, ipc.ClearConsentResponse{Cleared: true}, nil
}

func (d *daemonState) handleForeground(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	d.poller.HandleForeground()
	return ipc.MsgForegroundResp, ipc.AckResponse{OK: true}, nil
}

func (d *daemonState) handleBackground(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	d.poller.HandleBackground()
	return ipc.MsgBackgroundResp, ipc.AckResponse{OK: true}, nil
}

func (d *daemonState) handleCleanupProofs(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	deleted, err := d.orch.CleanupExpired()
	if err != nil {
		return 0, nil, err
	}
	return ipc.MsgCleanupProofsResp, ipc.CleanupProofsResponse{Deleted: deleted}, nil
}

func (d *daemonState) handleThemeGet(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	return ipc.MsgThemeGetResp, ipc.ThemeResponse{
		Theme:  string(d.themeReg.Current()),
		Accent: d.themeReg.Accent().Hex(),
	}, nil
}

func (d *daemonState) handleThemeSet(_ ipc.MessageType, payload []byte) (ipc.MessageType, any, error) {
	var req ipc.ThemeSetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, nil, fmt.Errorf("parse theme request: %w", err)
	}
	if req.Theme != "" {
		if err := d.themeReg.SetTheme(theme.Theme(req.Theme)); err != nil {
			return 0, nil, err
		}
	}
	if req.Accent != "" {
		if err := d.themeReg.SetAccent(req.Accent); err != nil {
			return 0, nil, err
		}
	}
	return ipc.MsgThemeSetResp, ipc.ThemeResponse{
		Theme:  string(d.themeReg.Current()),
		Accent: d.themeReg.Accent().Hex(),
	}, nil
}

func (d *daemonState) handleHealthRefresh(_ ipc.MessageType, _ []byte) (ipc.MessageType, any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	snap, err := d.gateway.RefreshAll(ctx)
	if err != nil {
		return 0, nil, err
	}
	return ipc.MsgHealthRefreshResp, ipc.HealthRefreshResponse{
		Day:            snap.Day,
		Steps:          snap.Steps,
		DistanceMeters: snap.DistanceMeters,
		SleepHours:     snap.SleepHours,
		WeekSteps:      snap.WeekSteps,
		MonthSteps:     snap.MonthSteps,
	}, nil
}
