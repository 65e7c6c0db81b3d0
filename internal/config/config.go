package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"elderguard/common/config"
)

// CardiacConfig 心电管线参数（采样、滤波、QRS 检测、心率平滑）
type CardiacConfig struct {
	SamplePeriod    time.Duration // 采样周期，默认 20ms（50Hz）
	PublishInterval time.Duration // 发布周期，默认 1s
	BufferSize      int           // 原始采样环形缓冲区长度

	MovingAverageWindow int     // 滑动平均点数
	BaselineWeight      float64 // 基线指数滤波权重（偏向历史）
	InitialAmplitude    float64 // 初始 R 波幅度估计（ADC 计数）
	MinThreshold        float64 // 检测阈值下限（ADC 计数）
	AmplitudeWeight     float64 // 幅度估计的历史权重

	MaxComplexWidth time.Duration // QRS 最长持续时间，超时强制退出
	MinQRSWidth     time.Duration
	MaxQRSWidth     time.Duration
	MinRR           time.Duration
	MaxRR           time.Duration
	HRSmoothing     float64 // 心率平滑的历史权重

	NoBeatTimeout   time.Duration // 信号有效但长时间无心跳，重置心率
	StalenessWindow time.Duration // 最后一次确认心跳后仍可上报旧心率的时长
	LeadOffGrace    time.Duration // 导联脱落持续该时长后清空心率

	SampleMin      int // ADC 有效范围下限
	SampleMax      int // ADC 有效范围上限
	VarianceWindow int
	MinStdDev      float64
	MaxStdDev      float64

	PublishLockTimeout time.Duration
}

// FallConfig 跌倒检测参数
type FallConfig struct {
	SamplePeriod time.Duration

	FreefallThreshold          float64 // m/s²
	ImpactThreshold            float64 // m/s²
	OrientationChangeThreshold float64 // 度
	MinFreefallDuration        time.Duration
	MaxFreefallWindow          time.Duration
	RequiredConsecutiveImpacts int
	FallResetTime              time.Duration
	RequireOrientationChange   bool
	OrientationAlpha           float64

	MinAverageAcceleration float64 // 窗口内平均加速度下限
	MinAccelerationSpread  float64 // 峰值-谷值下限
	SeverityCeiling        float64 // 严重度映射上限（m/s²）

	CalibrationSamples  int
	CalibrationInterval time.Duration

	OrientationPublishInterval time.Duration
	LocationReadTimeout        time.Duration
	PublishLockTimeout         time.Duration
}

// Config 设备服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Device struct {
		ID        string
		PatientID string

		// 固定位置（无 GPS 时使用），Latitude/Longitude 均为 0 表示未配置
		Latitude  float64
		Longitude float64
	}

	Sensors struct {
		SimulatedHeartRate float64       // 模拟心电的心率（BPM）
		SimulatedNoise     float64       // 模拟心电噪声幅度（0-1）
		SimulatedFallEvery time.Duration // 模拟跌倒间隔，0 表示不模拟
	}

	Cardiac CardiacConfig
	Fall    FallConfig

	Publish struct {
		Interval      time.Duration
		TopicPrefix   string // 如 "elderguard/patient/"
		RealtimeTopic string // 由 TopicPrefix + PatientID + "/realtime" 组成
		StatusTopic   string
		LocationTopic string // 外部定位模块上报的位置
	}

	Alert struct {
		BaseURL                string // 为空表示不推送 HTTP
		Timeout                time.Duration
		RetryCount             int
		RetryWait              time.Duration
		StreamKey              string
		HighHeartRateBpm       int
		HeartRateAlertCooldown time.Duration
	}

	Cache struct {
		KeyPrefix string // 如 "elderguard:device:"
		KeySuffix string // 如 ":snapshot"
		TTL       time.Duration
		Interval  time.Duration
	}

	Audio struct {
		MaxVolume int
	}

	Log struct {
		Level  string
		Format string
	}
}

// DefaultCardiacConfig 默认心电参数（50Hz，12 位 ADC）
func DefaultCardiacConfig() CardiacConfig {
	return CardiacConfig{
		SamplePeriod:        20 * time.Millisecond,
		PublishInterval:     time.Second,
		BufferSize:          250,
		MovingAverageWindow: 5,
		BaselineWeight:      0.99,
		InitialAmplitude:    400,
		MinThreshold:        60,
		AmplitudeWeight:     0.75,
		MaxComplexWidth:     200 * time.Millisecond,
		MinQRSWidth:         10 * time.Millisecond,
		MaxQRSWidth:         150 * time.Millisecond,
		MinRR:               300 * time.Millisecond,
		MaxRR:               1500 * time.Millisecond,
		HRSmoothing:         0.75,
		NoBeatTimeout:       8 * time.Second,
		StalenessWindow:     5 * time.Second,
		LeadOffGrace:        3 * time.Second,
		SampleMin:           10,
		SampleMax:           4085,
		VarianceWindow:      50,
		MinStdDev:           2,
		MaxStdDev:           1200,
		PublishLockTimeout:  10 * time.Millisecond,
	}
}

// DefaultFallConfig 默认跌倒检测参数
func DefaultFallConfig() FallConfig {
	return FallConfig{
		SamplePeriod:               20 * time.Millisecond,
		FreefallThreshold:          6.0,
		ImpactThreshold:            24.0,
		OrientationChangeThreshold: 45.0,
		MinFreefallDuration:        100 * time.Millisecond,
		MaxFreefallWindow:          time.Second,
		RequiredConsecutiveImpacts: 2,
		FallResetTime:              3 * time.Second,
		RequireOrientationChange:   true,
		OrientationAlpha:           0.8,
		MinAverageAcceleration:     2.0,
		MinAccelerationSpread:      15.0,
		SeverityCeiling:            40.0,
		CalibrationSamples:         100,
		CalibrationInterval:        20 * time.Millisecond,
		OrientationPublishInterval: time.Second,
		LocationReadTimeout:        100 * time.Millisecond,
		PublishLockTimeout:         10 * time.Millisecond,
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 1. 连接配置
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "elderguard",
		SSLMode:  "disable",
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:         "tcp://localhost:1883",
		ClientID:       "elderguard-device",
		QoS:            1,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	// 2. 设备信息
	cfg.Device.ID = getEnv("DEVICE_ID", "elderguard-001")
	cfg.Device.PatientID = getEnv("PATIENT_ID", "1")
	cfg.Device.Latitude = getEnvFloat("DEVICE_LATITUDE", 0)
	cfg.Device.Longitude = getEnvFloat("DEVICE_LONGITUDE", 0)

	cfg.Sensors.SimulatedHeartRate = getEnvFloat("SIM_HEART_RATE", 72)
	cfg.Sensors.SimulatedNoise = getEnvFloat("SIM_NOISE", 0.02)
	cfg.Sensors.SimulatedFallEvery = getEnvMillis("SIM_FALL_EVERY_MS", 0)

	// 3. 算法参数
	cfg.Cardiac = DefaultCardiacConfig()
	cfg.Cardiac.StalenessWindow = getEnvMillis("CARDIAC_STALENESS_MS", cfg.Cardiac.StalenessWindow)
	cfg.Cardiac.NoBeatTimeout = getEnvMillis("CARDIAC_NO_BEAT_TIMEOUT_MS", cfg.Cardiac.NoBeatTimeout)
	cfg.Cardiac.LeadOffGrace = getEnvMillis("CARDIAC_LEAD_OFF_GRACE_MS", cfg.Cardiac.LeadOffGrace)
	cfg.Cardiac.HRSmoothing = getEnvFloat("CARDIAC_HR_SMOOTHING", cfg.Cardiac.HRSmoothing)

	cfg.Fall = DefaultFallConfig()
	cfg.Fall.FreefallThreshold = getEnvFloat("FALL_FREEFALL_THRESHOLD", cfg.Fall.FreefallThreshold)
	cfg.Fall.ImpactThreshold = getEnvFloat("FALL_IMPACT_THRESHOLD", cfg.Fall.ImpactThreshold)
	cfg.Fall.OrientationChangeThreshold = getEnvFloat("FALL_ORIENTATION_THRESHOLD", cfg.Fall.OrientationChangeThreshold)
	cfg.Fall.MinFreefallDuration = getEnvMillis("FALL_MIN_FREEFALL_MS", cfg.Fall.MinFreefallDuration)
	cfg.Fall.MaxFreefallWindow = getEnvMillis("FALL_MAX_FREEFALL_WINDOW_MS", cfg.Fall.MaxFreefallWindow)
	cfg.Fall.RequiredConsecutiveImpacts = getEnvInt("FALL_REQUIRED_IMPACTS", cfg.Fall.RequiredConsecutiveImpacts)
	cfg.Fall.FallResetTime = getEnvMillis("FALL_RESET_TIME_MS", cfg.Fall.FallResetTime)
	cfg.Fall.RequireOrientationChange = getEnvBool("FALL_REQUIRE_ORIENTATION", cfg.Fall.RequireOrientationChange)

	// 4. 对外发布
	cfg.Publish.Interval = getEnvMillis("PUBLISH_INTERVAL_MS", time.Second)
	cfg.Publish.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "elderguard/patient/")
	cfg.Publish.RealtimeTopic = cfg.Publish.TopicPrefix + cfg.Device.PatientID + "/realtime"
	cfg.Publish.StatusTopic = cfg.Publish.TopicPrefix + cfg.Device.PatientID + "/status"
	cfg.Publish.LocationTopic = cfg.Publish.TopicPrefix + cfg.Device.PatientID + "/location"

	cfg.Alert.BaseURL = getEnv("ALERT_BASE_URL", "")
	cfg.Alert.Timeout = getEnvMillis("ALERT_TIMEOUT_MS", 10*time.Second)
	cfg.Alert.RetryCount = getEnvInt("ALERT_RETRY_COUNT", 3)
	cfg.Alert.RetryWait = getEnvMillis("ALERT_RETRY_WAIT_MS", 2*time.Second)
	cfg.Alert.StreamKey = getEnv("ALERT_STREAM_KEY", "elderguard:alerts")
	cfg.Alert.HighHeartRateBpm = getEnvInt("ALERT_HIGH_HEART_RATE", 120)
	cfg.Alert.HeartRateAlertCooldown = getEnvMillis("ALERT_HEART_RATE_COOLDOWN_MS", 60*time.Second)

	cfg.Cache.KeyPrefix = getEnv("CACHE_KEY_PREFIX", "elderguard:device:")
	cfg.Cache.KeySuffix = ":snapshot"
	cfg.Cache.TTL = getEnvMillis("CACHE_TTL_MS", 10*time.Second)
	cfg.Cache.Interval = getEnvMillis("CACHE_INTERVAL_MS", time.Second)

	cfg.Audio.MaxVolume = 30

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvMillis 读取毫秒数并转换为 time.Duration
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultValue
}
