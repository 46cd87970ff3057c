package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/usezoracle/usezoracle-tg-server/utils/logger"
)

type ServerConfig struct {
	ListenAddr     string
	RunMode        string
	VisitLogFile   string
	RecoverLogFile string
}

// one database one instance
type PostgresqlConfig struct {
	Host       string
	Port       int64
	Account    string
	Password   string
	DBName     string
	SchemaName string
}

type RedisConfig struct {
	Host         string `mapstructure:"Host"`
	DB           int64  `mapstructure:"DB"`
	Password     string `mapstructure:"Password"`
	MinIdleConns int64  `mapstructure:"MinIdleConns"`
	CacheTTLSec  int64  `mapstructure:"CacheTTLSec"`
}

type WebhookConfig struct {
	SharedSecret     string
	RequireSignature bool
	Network          string
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TrackedToken is one row of the tracked-token allow list. Tokens are
// added by editing the config file, not by code change.
type TrackedToken struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int
}

// struct decode must has tag
type Config struct {
	ServerConf    ServerConfig     `mapstructure:"ServerConfig"`
	PostgresConf  PostgresqlConfig `mapstructure:"PostgresqlConfig"`
	RedisConf     RedisConfig      `mapstructure:"RedisConfig"`
	WebhookConf   WebhookConfig    `mapstructure:"WebhookConfig"`
	TelegramConf  TelegramConfig   `mapstructure:"TelegramConfig"`
	TrackedTokens []TrackedToken   `mapstructure:"TrackedTokens"`
}

var (
	configMutex = sync.RWMutex{}
	config      Config

	configViper     *viper.Viper
	configFlyChange []chan bool
)

func RegistConfChange(c chan bool) {
	configFlyChange = append(configFlyChange, c)
}

func notifyConfChange() {
	for i := 0; i < len(configFlyChange); i++ {
		configFlyChange[i] <- true
	}
}

func watchConfig(c *viper.Viper) error {
	c.WatchConfig()
	cfn := func(e fsnotify.Event) {
		logger.Logrus.WithFields(logrus.Fields{"change": e.String()}).Info("config change and reload it")
		reloadConfig(c)
		notifyConfChange()
	}

	c.OnConfigChange(cfn)
	return nil
}

func LoadConf(configFilePath string) error {
	config = Config{}
	configMutex.Lock()
	defer configMutex.Unlock()

	configViper = viper.New()
	configViper.SetConfigName("config")
	configViper.AddConfigPath(configFilePath) //endwith "/"
	configViper.SetConfigType("yaml")

	if err := configViper.ReadInConfig(); err != nil {
		return err
	}
	if err := configViper.Unmarshal(&config); err != nil {
		return err
	}

	logger.Logrus.WithFields(logrus.Fields{"Config": config}).Info("Load config success")

	if err := watchConfig(configViper); err != nil {
		return err
	}
	return nil
}

func reloadConfig(c *viper.Viper) {
	configMutex.Lock()
	defer configMutex.Unlock()

	if err := c.ReadInConfig(); err != nil {
		logger.Logrus.WithFields(logrus.Fields{"ErrMsg": err.Error()}).Error("config ReLoad failed")
	}

	if err := configViper.Unmarshal(&config); err != nil {
		logger.Logrus.WithFields(logrus.Fields{"ErrMsg": err.Error()}).Error("unmarshal config failed")
	}

	logger.Logrus.WithFields(logrus.Fields{"config": config}).Info("Config ReLoad Success")
}

func GetServerConfig() ServerConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return config.ServerConf
}

func GetPostgresqlConfig() PostgresqlConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return config.PostgresConf
}

func GetRedisConfig() RedisConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return config.RedisConf
}

func GetWebhookConfig() WebhookConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return config.WebhookConf
}

func GetTelegramConfig() TelegramConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return config.TelegramConf
}

func GetTrackedTokens() []TrackedToken {
	configMutex.RLock()
	defer configMutex.RUnlock()

	res := make([]TrackedToken, len(config.TrackedTokens))
	copy(res, config.TrackedTokens)
	return res
}
