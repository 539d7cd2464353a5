package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// 牌堆总张数: 7A + 6Q + 5K + 2J
const DeckSize = 20

// Config 全局配置结构体
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
	Match       MatchConfig       `mapstructure:"match"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Score       ScoreConfig       `mapstructure:"score"`
	Security    SecurityConfig    `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
// driver: sqlite(内嵌) / mysql(MariaDB) / postgres
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MatchConfig 对局配置
type MatchConfig struct {
	MinPlayers         int    `mapstructure:"min_players"`
	MaxPlayers         int    `mapstructure:"max_players"`
	StartingLives      int    `mapstructure:"starting_lives"`
	HandSize           int    `mapstructure:"hand_size"`
	MinClaimCards      int    `mapstructure:"min_claim_cards"`
	MaxClaimCards      int    `mapstructure:"max_claim_cards"`
	Rule               string `mapstructure:"rule"`
	EventQueueCapacity int    `mapstructure:"event_queue_capacity"`
	// 以下时长仅下发给适配器，核心不计时
	ChallengeWindowSeconds int `mapstructure:"challenge_window_seconds"`
	ResolveSeconds         int `mapstructure:"resolve_seconds"`
}

// PersistenceConfig 结果落库重试配置
type PersistenceConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	ReplayInterval  time.Duration `mapstructure:"replay_interval"`
	BacklogCapacity int           `mapstructure:"backlog_capacity"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ScoreConfig 积分规则
type ScoreConfig struct {
	Initial      int        `mapstructure:"initial"`
	Floor        int        `mapstructure:"floor"`
	MinJoinScore int        `mapstructure:"min_join_score"`
	EntryCost    int        `mapstructure:"entry_cost"`
	Join         int        `mapstructure:"join"`
	SurviveShot  int        `mapstructure:"survive_shot"`
	Win          int        `mapstructure:"win"`
	Lose         int        `mapstructure:"lose"`
	Eliminated   int        `mapstructure:"eliminated"`
	RankTiers    []RankTier `mapstructure:"rank_tiers"`
}

// RankTier 段位
type RankTier struct {
	MinPoints int    `mapstructure:"min_points" json:"min_points"`
	Title     string `mapstructure:"title" json:"title"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT      JWTConfig           `mapstructure:"jwt"`
	Adapters []AdapterCredential `mapstructure:"adapters"`
}

// AdapterCredential 适配器凭据，密钥以 argon2id 哈希保存
type AdapterCredential struct {
	ID         string `mapstructure:"id"`
	SecretHash string `mapstructure:"secret_hash"`
	Role       string `mapstructure:"role"`
}

// JWTConfig 适配器令牌配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	Issuer      string `mapstructure:"issuer"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})
	return err
}

// Load 读取配置但不写入全局实例
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	vp.SetEnvPrefix("LIAR_BAR")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	return vp, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/liarbar.db")
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "liar-bar.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("match.min_players", 2)
	v.SetDefault("match.max_players", 4)
	v.SetDefault("match.starting_lives", 6)
	v.SetDefault("match.hand_size", 5)
	v.SetDefault("match.min_claim_cards", 1)
	v.SetDefault("match.max_claim_cards", 3)
	v.SetDefault("match.rule", "roulette")
	v.SetDefault("match.event_queue_capacity", 256)
	v.SetDefault("match.challenge_window_seconds", 30)
	v.SetDefault("match.resolve_seconds", 5)

	v.SetDefault("persistence.max_attempts", 5)
	v.SetDefault("persistence.initial_interval", "200ms")
	v.SetDefault("persistence.max_interval", "5s")
	v.SetDefault("persistence.multiplier", 2.0)
	v.SetDefault("persistence.replay_interval", "30s")
	v.SetDefault("persistence.backlog_capacity", 1024)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("score.initial", 200)
	v.SetDefault("score.floor", 50)
	v.SetDefault("score.min_join_score", 50)
	v.SetDefault("score.entry_cost", 50)
	v.SetDefault("score.join", 0)
	v.SetDefault("score.survive_shot", 0)
	v.SetDefault("score.win", 100)
	v.SetDefault("score.lose", 0)
	v.SetDefault("score.eliminated", 0)

	v.SetDefault("security.jwt.expire_hours", 24)
	v.SetDefault("security.jwt.issuer", "liar-bar")
}

// normalize 整理段位列表：按分数升序，空列表时给默认段位
func (c *Config) normalize() {
	tiers := c.Score.RankTiers[:0]
	for _, t := range c.Score.RankTiers {
		if t.Title != "" {
			tiers = append(tiers, t)
		}
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinPoints < tiers[j].MinPoints })
	if len(tiers) == 0 {
		tiers = []RankTier{{MinPoints: 0, Title: "Unranked"}}
	}
	c.Score.RankTiers = tiers
}

// Validate 校验对局相关配置
func (c *Config) Validate() error {
	m := c.Match
	switch {
	case m.MinPlayers < 2:
		return fmt.Errorf("match.min_players must be >= 2, got %d", m.MinPlayers)
	case m.MaxPlayers < m.MinPlayers:
		return fmt.Errorf("match.max_players (%d) < match.min_players (%d)", m.MaxPlayers, m.MinPlayers)
	case m.StartingLives < 1:
		return fmt.Errorf("match.starting_lives must be >= 1, got %d", m.StartingLives)
	case m.HandSize < 1 || m.HandSize*m.MaxPlayers > DeckSize:
		return fmt.Errorf("match.hand_size %d x max_players %d exceeds deck of %d", m.HandSize, m.MaxPlayers, DeckSize)
	case m.MinClaimCards < 1 || m.MaxClaimCards < m.MinClaimCards || m.MaxClaimCards > m.HandSize:
		return fmt.Errorf("invalid claim bounds [%d, %d]", m.MinClaimCards, m.MaxClaimCards)
	}

	if c.Persistence.MaxAttempts < 1 || c.Persistence.MaxAttempts > 5 {
		return fmt.Errorf("persistence.max_attempts must be in [1, 5]")
	}
	if c.Cache.Enabled && c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be >= 1")
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		newCfg.normalize()
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}
