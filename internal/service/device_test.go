package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"elderguard/internal/config"
	"elderguard/internal/sensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Device.ID = "elderguard-001"
	cfg.Device.PatientID = "42"
	cfg.Device.Latitude = 31.2304
	cfg.Device.Longitude = 121.4737
	cfg.Sensors.SimulatedHeartRate = 72
	cfg.Sensors.SimulatedNoise = 0.01
	cfg.Cardiac = config.DefaultCardiacConfig()
	cfg.Fall = config.DefaultFallConfig()
	cfg.Fall.CalibrationSamples = 10
	cfg.Fall.CalibrationInterval = 0
	cfg.Publish.Interval = 20 * time.Millisecond
	cfg.Alert.HighHeartRateBpm = 120
	cfg.Alert.HeartRateAlertCooldown = time.Minute
	cfg.Audio.MaxVolume = 30
	return cfg
}

func repeat(s sensor.InertialSample, n int) []sensor.InertialSample {
	out := make([]sensor.InertialSample, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func runFor(t *testing.T, svc *DeviceService, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, svc.Start(ctx))
}

func TestDeviceService_RunsWithSimulatedSources(t *testing.T) {
	svc := NewDeviceServiceWithSources(testConfig(), zap.NewNop(), Sources{})
	runFor(t, svc, 500*time.Millisecond)

	st := svc.Store()
	assert.NotZero(t, st.Cardiac().Stats().Published)

	orientation, err := st.Orientation().ReadLatest()
	require.NoError(t, err)
	assert.True(t, orientation.Calibrated)

	loc, err := st.Location().ReadLatest()
	require.NoError(t, err)
	assert.True(t, loc.Valid)
	assert.InDelta(t, 31.2304, loc.Latitude, 1e-9)

	fault, err := st.Fault().ReadLatest()
	require.NoError(t, err)
	assert.False(t, fault.Active)
}

func TestDeviceService_CalibrationFailureKeepsCardiacRunning(t *testing.T) {
	imu := sensor.NewReplayInertial(repeat(sensor.InertialSample{AZ: 9.81}, 10))
	imu.InitErr = errors.New("accelerometer not found")

	svc := NewDeviceServiceWithSources(testConfig(), zap.NewNop(), Sources{Inertial: imu})
	runFor(t, svc, 300*time.Millisecond)

	st := svc.Store()
	fault, err := st.Fault().ReadLatest()
	require.NoError(t, err)
	assert.True(t, fault.Active)
	assert.Equal(t, "fall_detector", fault.Component)
	assert.NotZero(t, st.Cardiac().Stats().Published)
}

func TestDeviceService_FallIsDispatchedOnce(t *testing.T) {
	rest := sensor.InertialSample{AZ: 9.81}
	script := repeat(rest, 10+20)
	script = append(script, repeat(sensor.InertialSample{AX: 1, AZ: 1}, 8)...)
	script = append(script, repeat(sensor.InertialSample{AX: 30, AZ: 2}, 2)...)
	script = append(script, repeat(sensor.InertialSample{AX: 9.81, AZ: 0.5}, 20)...)

	svc := NewDeviceServiceWithSources(testConfig(), zap.NewNop(), Sources{Inertial: sensor.NewReplayInertial(script)})
	st := svc.Store()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	// 告警被分发器认领
	require.Eventually(t, func() bool {
		alert, err := st.Alert().ReadLatest()
		return err == nil && alert.AlertID != "" && !alert.Pending
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return st.Audio().Stats().Published == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	alert, err := st.Alert().ReadLatest()
	require.NoError(t, err)
	assert.True(t, alert.HasLocationHint)
	assert.Contains(t, alert.Message, "https://maps.google.com/?q=31.230400,121.473700")
	assert.Equal(t, uint64(1), st.Alert().Stats().Published)
}

func TestDeviceService_StopWithoutConnections(t *testing.T) {
	svc := NewDeviceServiceWithSources(testConfig(), zap.NewNop(), Sources{})
	assert.NoError(t, svc.Stop())
}
