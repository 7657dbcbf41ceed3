package config

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/wallfollower/internal/model"
)

// Config holds all application configuration values.
type Config struct {
	// Robot
	RobotDriver     string // sim, serial or mqtt
	RobotSerialPort string
	RobotBaudRate   int

	// MQTT
	MQTTBroker           string
	MQTTClientIDFollower string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicTelemetry string
	TopicIR        string
	TopicWheels    string

	// Model and training
	ModelDir    string
	Labels      []model.Label
	Sensors     []model.Sensor
	LabelColumn string
	BinEpsilon  float64

	// Control
	ControlSensor     model.Sensor
	WallSide          string
	SamplePeriod      time.Duration
	SensorReadTimeout time.Duration
	TargetDistance    float64
	PostDoorDistance  float64
	KP, KI, KD        float64
	BaseSpeed         float64
	MinSpeed          float64
	MaxSpeed          float64
	IRDistanceK       float64
	DistanceMin       float64
	DistanceMax       float64

	// Belief
	DoorPassedLabel     model.Label
	DoorPassedThreshold float64
	BeliefFloor         float64

	// Run log; empty disables it
	RunLogDB string

	// Web Server
	WebServerPort int

	// Display
	DisplayUpdateInterval time.Duration
}

// Default returns the values used when a key is not in the file.
func Default() *Config {
	return &Config{
		RobotDriver:     "sim",
		RobotSerialPort: "/dev/ttyUSB0",
		RobotBaudRate:   115200,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDFollower: "wallfollower-follower",
		MQTTClientIDConsole:  "wallfollower-console",
		MQTTClientIDWeb:      "wallfollower-web",
		MQTTClientIDDisplay:  "wallfollower-display",

		TopicTelemetry: "wallfollower/telemetry",
		TopicIR:        "robot/ir",
		TopicWheels:    "robot/wheels",

		ModelDir:    "CPTs",
		Labels:      append([]model.Label(nil), model.FourStateLabels...),
		Sensors:     model.AllSensors(),
		LabelColumn: "Location",
		BinEpsilon:  1,

		ControlSensor:     "IR7",
		WallSide:          "right",
		SamplePeriod:      100 * time.Millisecond,
		SensorReadTimeout: 50 * time.Millisecond,
		TargetDistance:    6,
		PostDoorDistance:  10,
		KP:                0.8,
		KI:                0.02,
		KD:                0.1,
		BaseSpeed:         25,
		MinSpeed:          0,
		MaxSpeed:          50,
		IRDistanceK:       200,
		DistanceMin:       1,
		DistanceMax:       30,

		DoorPassedLabel:     model.DoorPassed,
		DoorPassedThreshold: 0.8,

		WebServerPort:         8080,
		DisplayUpdateInterval: 200 * time.Millisecond,
	}
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file on top of Default().
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

// parseDuration accepts Go durations ("100ms") or a bare number of milliseconds.
func parseDuration(key, value string) (time.Duration, error) {
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Robot
	case "ROBOT_DRIVER":
		c.RobotDriver = strings.ToLower(value)
	case "ROBOT_SERIAL_PORT":
		c.RobotSerialPort = value
	case "ROBOT_BAUD_RATE":
		baud, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ROBOT_BAUD_RATE %q: %w", value, err)
		}
		c.RobotBaudRate = baud

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FOLLOWER":
		c.MQTTClientIDFollower = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_IR":
		c.TopicIR = value
	case "TOPIC_WHEELS":
		c.TopicWheels = value

	// Model and training
	case "MODEL_DIR":
		c.ModelDir = value
	case "LABELS":
		labels, err := model.ParseLabels(value)
		if err != nil {
			return fmt.Errorf("invalid LABELS %q: %w", value, err)
		}
		c.Labels = labels
	case "SENSORS":
		sensors, err := model.ParseSensors(value)
		if err != nil {
			return fmt.Errorf("invalid SENSORS %q: %w", value, err)
		}
		c.Sensors = sensors
	case "LABEL_COLUMN":
		c.LabelColumn = value
	case "BIN_EPSILON":
		c.BinEpsilon, err = parseFloat(key, value)

	// Control
	case "CONTROL_SENSOR":
		s, err := model.ParseSensor(value)
		if err != nil {
			return fmt.Errorf("invalid CONTROL_SENSOR %q: %w", value, err)
		}
		c.ControlSensor = s
	case "WALL_SIDE":
		c.WallSide = strings.ToLower(value)
	case "SAMPLE_PERIOD":
		c.SamplePeriod, err = parseDuration(key, value)
	case "SENSOR_READ_TIMEOUT":
		c.SensorReadTimeout, err = parseDuration(key, value)
	case "TARGET_DISTANCE":
		c.TargetDistance, err = parseFloat(key, value)
	case "POST_DOOR_DISTANCE":
		c.PostDoorDistance, err = parseFloat(key, value)
	case "KP":
		c.KP, err = parseFloat(key, value)
	case "KI":
		c.KI, err = parseFloat(key, value)
	case "KD":
		c.KD, err = parseFloat(key, value)
	case "BASE_SPEED":
		c.BaseSpeed, err = parseFloat(key, value)
	case "MIN_SPEED":
		c.MinSpeed, err = parseFloat(key, value)
	case "MAX_SPEED":
		c.MaxSpeed, err = parseFloat(key, value)
	case "IR_DISTANCE_K":
		c.IRDistanceK, err = parseFloat(key, value)
	case "DISTANCE_MIN":
		c.DistanceMin, err = parseFloat(key, value)
	case "DISTANCE_MAX":
		c.DistanceMax, err = parseFloat(key, value)

	// Belief
	case "DOOR_PASSED_LABEL":
		l, err := model.ParseLabel(value)
		if err != nil {
			return fmt.Errorf("invalid DOOR_PASSED_LABEL %q: %w", value, err)
		}
		c.DoorPassedLabel = l
	case "DOOR_PASSED_THRESHOLD":
		c.DoorPassedThreshold, err = parseFloat(key, value)
	case "BELIEF_FLOOR":
		c.BeliefFloor, err = parseFloat(key, value)

	// Run log
	case "RUNLOG_DB":
		c.RunLogDB = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseDuration(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	switch c.RobotDriver {
	case "sim", "serial", "mqtt":
	default:
		return fmt.Errorf("ROBOT_DRIVER must be sim, serial or mqtt, got %q", c.RobotDriver)
	}
	if c.RobotDriver == "serial" && (c.RobotSerialPort == "" || c.RobotBaudRate <= 0) {
		return fmt.Errorf("ROBOT_SERIAL_PORT and ROBOT_BAUD_RATE are required for the serial driver")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("MODEL_DIR is required")
	}
	if c.BinEpsilon <= 0 {
		return fmt.Errorf("BIN_EPSILON must be positive")
	}
	if c.WallSide != "right" && c.WallSide != "left" {
		return fmt.Errorf("WALL_SIDE must be right or left, got %q", c.WallSide)
	}
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("SAMPLE_PERIOD must be positive")
	}
	if c.SensorReadTimeout <= 0 || c.SensorReadTimeout > c.SamplePeriod {
		return fmt.Errorf("SENSOR_READ_TIMEOUT must be positive and at most SAMPLE_PERIOD")
	}
	if c.DoorPassedThreshold <= 0 || c.DoorPassedThreshold >= 1 {
		return fmt.Errorf("DOOR_PASSED_THRESHOLD must be in (0, 1)")
	}
	if c.BeliefFloor < 0 || c.BeliefFloor*float64(len(c.Labels)) >= 1 {
		return fmt.Errorf("BELIEF_FLOOR must be in [0, 1/%d)", len(c.Labels))
	}
	if !slices.Contains(c.Labels, c.DoorPassedLabel) {
		return fmt.Errorf("DOOR_PASSED_LABEL %s is not in LABELS", c.DoorPassedLabel)
	}
	if !slices.Contains(c.Sensors, c.ControlSensor) {
		return fmt.Errorf("CONTROL_SENSOR %s is not in SENSORS", c.ControlSensor)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// An empty path uses Default(). Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Default()
			return
		}
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
