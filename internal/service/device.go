package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"elderguard/common/database"
	"elderguard/common/mqtt"
	"elderguard/common/redis"
	"elderguard/internal/cardiac"
	"elderguard/internal/config"
	"elderguard/internal/consumer"
	"elderguard/internal/fall"
	"elderguard/internal/models"
	"elderguard/internal/repository"
	"elderguard/internal/sensor"
	"elderguard/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sources 传感器来源，为 nil 的字段使用模拟器
type Sources struct {
	ECG      sensor.AnalogSampleSource
	Leads    sensor.LeadContact
	Inertial sensor.InertialSampleSource
}

// DeviceService 设备服务（整合采集、检测与对外发布）
type DeviceService struct {
	config *config.Config
	logger *zap.Logger
	store  *store.Store

	// 外部连接（均可选）
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client

	// 各层组件
	cardiac    *cardiac.Pipeline
	fall       *fall.Detector
	publisher  *consumer.RealtimePublisher
	dispatcher *consumer.AlertDispatcher
	cache      *consumer.SnapshotCache
	heartRate  *consumer.HeartRateWatcher
	audio      *consumer.AudioSink
	location   *consumer.LocationListener
}

// NewDeviceService 连接外部依赖并创建设备服务
func NewDeviceService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DeviceService, error) {
	s := &DeviceService{
		config: cfg,
		logger: logger,
	}

	// 1. 设备监测配置（PostgreSQL，可选）
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		s.db = db

		repo := repository.NewDeviceConfigRepository(db, logger)
		raw, err := repo.GetMonitorConfig(ctx, cfg.Device.ID)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("failed to load monitor config: %w", err)
		}
		if err := cfg.ApplyMonitorConfig(raw); err != nil {
			s.Stop()
			return nil, err
		}
		logger.Info("Applied device monitor config",
			zap.String("device_id", cfg.Device.ID),
			zap.Bool("found", raw != nil),
		)
	}

	// 2. Redis（可选）
	if cfg.Redis.Enabled {
		client, err := redis.Connect(ctx, &cfg.Redis)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.redisClient = client
	}

	// 3. MQTT（可选），遗嘱为 retained 离线状态
	if cfg.MQTT.Enabled {
		will, err := consumer.OfflineStatus(cfg.Device.ID)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("failed to build will payload: %w", err)
		}
		cfg.MQTT.WillTopic = cfg.Publish.StatusTopic
		cfg.MQTT.WillPayload = will
		cfg.MQTT.WillRetained = true

		client, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.mqttClient = client
	}

	s.build(Sources{})
	return s, nil
}

// NewDeviceServiceWithSources 不连接外部依赖，使用给定的传感器来源（用于回放与测试）
func NewDeviceServiceWithSources(cfg *config.Config, logger *zap.Logger, sources Sources) *DeviceService {
	s := &DeviceService{
		config: cfg,
		logger: logger,
	}
	s.build(sources)
	return s
}

// build 创建存储、检测管线与消费者
func (s *DeviceService) build(sources Sources) {
	cfg := s.config
	s.store = store.NewWithTimeouts(cfg.Cardiac.PublishLockTimeout, cfg.Fall.PublishLockTimeout, store.DefaultLockTimeout)

	if sources.ECG == nil {
		sources.ECG = sensor.NewECGSimulator(
			float64(time.Second)/float64(cfg.Cardiac.SamplePeriod),
			cfg.Sensors.SimulatedHeartRate,
			cfg.Sensors.SimulatedNoise,
		)
	}
	if sources.Leads == nil {
		sources.Leads = sensor.StaticLeads{}
	}
	if sources.Inertial == nil {
		fallEvery := 0
		if cfg.Sensors.SimulatedFallEvery > 0 && cfg.Fall.SamplePeriod > 0 {
			fallEvery = int(cfg.Sensors.SimulatedFallEvery / cfg.Fall.SamplePeriod)
		}
		sources.Inertial = sensor.NewIMUSimulator(time.Now().UnixNano(), 0.05, fallEvery)
	}

	s.cardiac = cardiac.NewPipeline(cfg.Cardiac, sources.ECG, sources.Leads, s.store.Cardiac(), s.logger.Named("cardiac"))
	s.fall = fall.NewDetector(cfg.Fall, sources.Inertial, s.store, s.store, s.logger.Named("fall"))

	if s.mqttClient != nil {
		s.publisher = consumer.NewRealtimePublisher(cfg, s.store, s.mqttClient, s.logger)
	}
	if s.redisClient != nil {
		s.cache = consumer.NewSnapshotCache(cfg, s.store, consumer.NewRedisKVStore(s.redisClient), s.logger)
	}
	s.dispatcher = consumer.NewAlertDispatcher(cfg, s.store, s.redisClient, s.logger)
	s.heartRate = consumer.NewHeartRateWatcher(cfg, s.store, s.dispatcher, s.logger)
	s.audio = consumer.NewAudioSink(s.store, consumer.NewLogPlayer(s.logger), cfg.Audio.MaxVolume, s.logger)
	s.location = consumer.NewLocationListener(s.store, s.logger)
}

// Store 设备快照存储
func (s *DeviceService) Store() *store.Store {
	return s.store
}

// Start 启动所有组件，阻塞到 ctx 取消或某个组件出错
func (s *DeviceService) Start(ctx context.Context) error {
	s.logger.Info("Starting device service",
		zap.String("device_id", s.config.Device.ID),
		zap.String("patient_id", s.config.Device.PatientID),
		zap.Bool("mqtt_enabled", s.mqttClient != nil),
		zap.Bool("redis_enabled", s.redisClient != nil),
		zap.Bool("http_alerts_enabled", s.config.Alert.BaseURL != ""),
	)

	// 1. 位置来源：固定位置优先，否则订阅定位主题
	if err := s.startLocation(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// 2. 检测管线
	g.Go(func() error { return s.cardiac.Run(ctx) })
	g.Go(func() error {
		// 校准失败只停用跌倒检测，故障已写入存储
		if err := s.fall.Run(ctx); err != nil && !errors.Is(err, fall.ErrCalibrationFailed) {
			return fmt.Errorf("fall detector: %w", err)
		}
		return nil
	})

	// 3. 消费者
	g.Go(func() error { return s.dispatcher.Start(ctx) })
	g.Go(func() error { return s.heartRate.Start(ctx) })
	g.Go(func() error { return s.audio.Start(ctx) })
	if s.publisher != nil {
		g.Go(func() error { return s.publisher.Start(ctx) })
	}
	if s.cache != nil {
		g.Go(func() error { return s.cache.Start(ctx) })
	}

	return g.Wait()
}

func (s *DeviceService) startLocation() error {
	dev := s.config.Device
	if dev.Latitude != 0 || dev.Longitude != 0 {
		loc := models.Location{
			Latitude:    dev.Latitude,
			Longitude:   dev.Longitude,
			Valid:       true,
			TimestampMs: time.Now().UnixMilli(),
		}
		if err := s.location.Publish(loc); err != nil {
			return err
		}
		s.logger.Info("Using fixed device location",
			zap.Float64("latitude", dev.Latitude),
			zap.Float64("longitude", dev.Longitude),
		)
		return nil
	}

	if s.mqttClient != nil {
		if err := s.location.Subscribe(s.mqttClient, s.config.Publish.LocationTopic, s.config.MQTT.QoS); err != nil {
			return fmt.Errorf("failed to subscribe location topic: %w", err)
		}
	}
	return nil
}

// Stop 关闭外部连接
func (s *DeviceService) Stop() error {
	s.logger.Info("Stopping device service")

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis",
				zap.Error(err),
			)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database",
				zap.Error(err),
			)
		}
	}

	return nil
}
