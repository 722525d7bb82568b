package options

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/asnowfix/fermion/pkg/cloud"
	"github.com/asnowfix/fermion/pkg/cloud/oauth"
	"github.com/asnowfix/fermion/pkg/wm"
	"github.com/asnowfix/fermion/pkg/wm/config"
	"github.com/asnowfix/fermion/pkg/wm/wifi"
)

const (
	EnvPrefix  = "FERMION"
	ConfigName = "fermion"

	realm = "https://fermicloud.spdns.de/auth/realms/fermi-cloud/protocol/openid-connect"
)

type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Device  DeviceConfig  `mapstructure:"device"`
	Cloud   CloudConfig   `mapstructure:"cloud"`
	WM      WMConfig      `mapstructure:"wm"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Broker  BrokerConfig  `mapstructure:"broker"`
}

type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

type DeviceConfig struct {
	BoardType string `mapstructure:"board_type"`
	// ID is derived from the station MAC address when empty.
	ID string `mapstructure:"id"`
}

type CloudConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	Scope         string        `mapstructure:"scope"`
	DeviceAuthURL string        `mapstructure:"device_auth_url"`
	TokenURL      string        `mapstructure:"token_url"`
	UserInfoURL   string        `mapstructure:"userinfo_url"`
	CAFile        string        `mapstructure:"ca_file"`
	Broker        string        `mapstructure:"broker"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	MQTTTimeout   time.Duration `mapstructure:"mqtt_timeout"`
	Capacity      int           `mapstructure:"capacity"`
}

type WMConfig struct {
	// Interface is the WiFi device, the first one found when empty.
	Interface     string        `mapstructure:"interface"`
	ConfigTimeout time.Duration `mapstructure:"config_timeout"`
	MinQuality    int           `mapstructure:"min_quality"`
	MaxSSIDInList int           `mapstructure:"max_ssid_in_list"`
	Intervals     wm.Intervals  `mapstructure:"intervals"`
	Tick          time.Duration `mapstructure:"tick"`
}

type PortalConfig struct {
	Listen string `mapstructure:"listen"`
}

type BrokerConfig struct {
	Listen string `mapstructure:"listen"`
	MDNS   bool   `mapstructure:"mdns"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.dir", "/var/lib/fermion")
	v.SetDefault("device.board_type", config.DefaultBoardType)
	v.SetDefault("device.id", "")
	v.SetDefault("cloud.client_id", "fermi-device")
	v.SetDefault("cloud.scope", "openid")
	v.SetDefault("cloud.device_auth_url", realm+"/auth/device")
	v.SetDefault("cloud.token_url", realm+"/token")
	v.SetDefault("cloud.userinfo_url", realm+"/userinfo")
	v.SetDefault("cloud.ca_file", "")
	v.SetDefault("cloud.broker", "tls://fermicloud.spdns.de:8083")
	v.SetDefault("cloud.http_timeout", wm.DefaultHTTPTimeout)
	v.SetDefault("cloud.mqtt_timeout", 5*time.Second)
	v.SetDefault("cloud.capacity", cloud.DefaultCapacity)
	v.SetDefault("wm.interface", "")
	v.SetDefault("wm.config_timeout", wm.DefaultConfigTimeout)
	v.SetDefault("wm.min_quality", 0)
	v.SetDefault("wm.max_ssid_in_list", wifi.DefaultMaxSSIDInList)
	v.SetDefault("wm.intervals.wifi_config", wm.DefaultIntervals.WiFiConfig)
	v.SetDefault("wm.intervals.connecting", wm.DefaultIntervals.Connecting)
	v.SetDefault("wm.intervals.fetch_code", wm.DefaultIntervals.FetchCode)
	v.SetDefault("wm.intervals.fetch_token", wm.DefaultIntervals.FetchToken)
	v.SetDefault("wm.intervals.ready", wm.DefaultIntervals.Ready)
	v.SetDefault("wm.tick", 100*time.Millisecond)
	v.SetDefault("portal.listen", ":80")
	v.SetDefault("broker.listen", ":1883")
	v.SetDefault("broker.mdns", true)
}

// NewViper returns a viper reading FERMION_* variables and, if found, the
// configuration file.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fermion")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/fermion")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Storage.Dir == "" {
		errs = append(errs, errors.New("storage.dir is empty"))
	}
	if c.Device.BoardType == "" {
		errs = append(errs, errors.New("device.board_type is empty"))
	}
	if c.Cloud.ClientID == "" {
		errs = append(errs, errors.New("cloud.client_id is empty"))
	}
	for key, raw := range map[string]string{
		"cloud.device_auth_url": c.Cloud.DeviceAuthURL,
		"cloud.token_url":       c.Cloud.TokenURL,
		"cloud.userinfo_url":    c.Cloud.UserInfoURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: invalid URL %q", key, raw))
		}
	}
	if c.Cloud.Broker == "" {
		errs = append(errs, errors.New("cloud.broker is empty"))
	}
	if c.Cloud.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cloud.capacity: %d is not positive", c.Cloud.Capacity))
	}
	if c.WM.MinQuality < 0 || c.WM.MinQuality > 100 {
		errs = append(errs, fmt.Errorf("wm.min_quality: %d out of [0,100]", c.WM.MinQuality))
	}
	if c.WM.MaxSSIDInList <= 0 {
		errs = append(errs, fmt.Errorf("wm.max_ssid_in_list: %d is not positive", c.WM.MaxSSIDInList))
	}
	if c.WM.Tick <= 0 {
		errs = append(errs, fmt.Errorf("wm.tick: %v is not positive", c.WM.Tick))
	}
	return errors.Join(errs...)
}

func (c *Config) Endpoints() oauth.Endpoints {
	return oauth.Endpoints{
		DeviceAuthURL: c.Cloud.DeviceAuthURL,
		TokenURL:      c.Cloud.TokenURL,
		UserInfoURL:   c.Cloud.UserInfoURL,
	}
}

func (c *Config) Scopes() []string {
	return strings.Fields(c.Cloud.Scope)
}

// Flash returns the device filesystem rooted at storage.dir, creating it.
func (c *Config) Flash() (afero.Fs, error) {
	if err := os.MkdirAll(c.Storage.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return afero.NewBasePathFs(afero.NewOsFs(), c.Storage.Dir), nil
}

var current *viper.Viper

// Viper returns the process configuration source, read on first use from
// --config or the default search path.
func Viper() (*viper.Viper, error) {
	if current == nil {
		v, err := NewViper(Flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		current = v
	}
	return current, nil
}

// Configuration loads the process configuration.
func Configuration() (*Config, error) {
	v, err := Viper()
	if err != nil {
		return nil, err
	}
	return Load(v)
}
