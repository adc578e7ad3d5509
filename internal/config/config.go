package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"
)

var (
	cfgMux sync.RWMutex
	Wowsup *WowsupCfg
	Slots  map[string]*SlotCfg

	Version = "dev"
)

type WowsupCfg struct {
	Debug struct {
		Log         bool `yaml:"log"`
		Screenshots bool `yaml:"screenshots"`
	} `yaml:"debug"`
	FirstRun         bool   `yaml:"firstRun"`
	LogSaveDirectory string `yaml:"logSaveDirectory"`
	GamePath         string `yaml:"gamePath"`
	GameExe          string `yaml:"gameExe"`
	MacroToolPath    string `yaml:"macroToolPath"`
	MacroToolExe     string `yaml:"macroToolExe"`

	// OCR sensor. The skew correction is a deployment clock artifact
	// observed between the rendered log console and the host clock; it is
	// applied only when the parsed timestamp is more than an hour off.
	OCR struct {
		TesseractPath string        `yaml:"tesseractPath"`
		ClockSkew     time.Duration `yaml:"clockSkew"`
	} `yaml:"ocr"`

	// Panel is the DOM fallback: reading the macro tool's log console
	// through its embedded Chromium debug endpoint instead of OCR.
	Panel struct {
		Enabled  bool   `yaml:"enabled"`
		DebugURL string `yaml:"debugURL"`
	} `yaml:"panel"`

	MachineIDFile    string `yaml:"machineIDFile"`
	ReviveLogFile    string `yaml:"reviveLogFile"`
	ProfileErrorsDir string `yaml:"profileErrorsDir"`

	Discord struct {
		Enabled    bool     `yaml:"enabled"`
		Token      string   `yaml:"token"`
		ChannelID  string   `yaml:"channelId"`
		BotAdmins  []string `yaml:"botAdmins"`
		UseWebhook bool     `yaml:"useWebhook"`
		WebhookURL string   `yaml:"webhookUrl"`
	} `yaml:"discord"`
	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		Token   string `yaml:"token"`
		ChatID  int64  `yaml:"chatId"`
	} `yaml:"telegram"`
	Web struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"web"`
	Ngrok struct {
		Enabled       bool   `yaml:"enabled"`
		Authtoken     string `yaml:"authtoken"`
		Domain        string `yaml:"domain"`
		BasicAuthUser string `yaml:"basicAuthUser"`
		BasicAuthPass string `yaml:"basicAuthPass"`
		SendURL       bool   `yaml:"sendUrl"`
	} `yaml:"ngrok"`

	// AllowMachineShutdown gates the terminal reboot/shutdown escalations so
	// a dev box never gets power-cycled by a test config.
	AllowMachineShutdown bool `yaml:"allowMachineShutdown"`
}

type SlotCfg struct {
	ConfigFolderName string `yaml:"-"`

	CharacterName string `yaml:"characterName"`
	WindowTitle   string `yaml:"windowTitle"`

	// Active window of day for this slot, in hours. The effective window is
	// [LowerHour-1, UpperHour+jitter) with a per-day jitter in [-1,1).
	Schedule struct {
		LowerHour int `yaml:"lowerHour"`
		UpperHour int `yaml:"upperHour"`
	} `yaml:"schedule"`

	// Profiles is the rotation list; the engine advances through it on
	// profile completion and persists progress to the status file.
	Profiles        []string `yaml:"profiles"`
	PersonalProfile string   `yaml:"personalProfile"`
	MailProfile     string   `yaml:"mailProfile"`
	LevelingOrder   []string `yaml:"levelingOrder"`
	Gathering       bool     `yaml:"gathering"`

	// ShutdownMachine makes the slot hand-off power the box down instead of
	// only killing the client (the next slot is expected to start from boot).
	ShutdownMachine bool `yaml:"shutdownMachine"`
}

func Load() error {
	cfgMux.Lock()
	defer cfgMux.Unlock()
	Slots = make(map[string]*SlotCfg)

	wowsupPath := getAbsPath("config/wowsup.yaml")
	r, err := os.Open(wowsupPath)
	if err != nil {
		return fmt.Errorf("error loading wowsup.yaml: %w", err)
	}
	defer r.Close()

	d := yaml.NewDecoder(r)
	if err = d.Decode(&Wowsup); err != nil {
		return fmt.Errorf("error reading config %s: %w", wowsupPath, err)
	}
	if Wowsup.OCR.ClockSkew == 0 {
		Wowsup.OCR.ClockSkew = 6*time.Hour + 30*time.Minute
	}
	if Wowsup.Web.Port == 0 {
		Wowsup.Web.Port = 8087
	}

	configDir := getAbsPath("config")
	entries, err := os.ReadDir(configDir)
	if err != nil {
		return fmt.Errorf("error reading config directory %s: %w", configDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "template" {
			continue
		}

		slotCfg := SlotCfg{}

		slotConfigPath := getAbsPath(filepath.Join("config", entry.Name(), "slot.yaml"))
		r, err = os.Open(slotConfigPath)
		if err != nil {
			return fmt.Errorf("error loading slot.yaml: %w", err)
		}

		d := yaml.NewDecoder(r)
		if err = d.Decode(&slotCfg); err != nil {
			_ = r.Close()
			return fmt.Errorf("error reading %s slot config: %w", slotConfigPath, err)
		}
		_ = r.Close()

		slotCfg.ConfigFolderName = entry.Name()
		slotCfg.Validate()

		Slots[entry.Name()] = &slotCfg
	}

	return nil
}

func GetSlot(name string) (*SlotCfg, bool) {
	cfgMux.RLock()
	defer cfgMux.RUnlock()
	slot, ok := Slots[name]
	return slot, ok
}

func GetSlots() map[string]*SlotCfg {
	cfgMux.RLock()
	defer cfgMux.RUnlock()
	slots := make(map[string]*SlotCfg, len(Slots))
	for k, v := range Slots {
		slots[k] = v
	}
	return slots
}

func CreateFromTemplate(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}

	if _, err := os.Stat("config/" + name); !os.IsNotExist(err) {
		return errors.New("a slot with that name already exists")
	}

	err := cp.Copy("config/template", "config/"+name)
	if err != nil {
		return fmt.Errorf("error copying template: %w", err)
	}

	return Load()
}

func ValidateAndSaveConfig(config WowsupCfg) error {
	config.GamePath = strings.TrimRight(config.GamePath, "\\/")
	config.MacroToolPath = strings.TrimRight(config.MacroToolPath, "\\/")

	text, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error parsing wowsup config: %w", err)
	}

	err = os.WriteFile("config/wowsup.yaml", text, 0644)
	if err != nil {
		return fmt.Errorf("error writing wowsup config: %w", err)
	}

	return Load()
}

func SaveSlotConfig(slotName string, config *SlotCfg) error {
	filePath := filepath.Join("config", slotName, "slot.yaml")
	config.Validate()
	d, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	err = os.WriteFile(filePath, d, 0644)
	if err != nil {
		return fmt.Errorf("error writing slot config: %w", err)
	}

	return Load()
}

func (c *SlotCfg) Validate() {
	if c.Schedule.UpperHour == 0 {
		c.Schedule.UpperHour = 24
	}
	if c.WindowTitle == "" {
		c.WindowTitle = "World of Warcraft"
	}
}

// MachineID reads the single-line host identifier used to tag entries in the
// shared revive log. Falls back to the hostname when the file is absent.
func MachineID() string {
	cfgMux.RLock()
	idFile := ""
	if Wowsup != nil {
		idFile = Wowsup.MachineIDFile
	}
	cfgMux.RUnlock()

	if idFile != "" {
		raw, err := os.ReadFile(idFile)
		if err == nil {
			if id := strings.TrimSpace(string(raw)); id != "" {
				return id
			}
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// StageAddonSettings copies the slot's saved addon settings over the game
// client's account directory before a relaunch, so the macro tool addon comes
// up configured.
func StageAddonSettings(slotName string) error {
	src := getAbsPath(filepath.Join("config", slotName, "wtf"))
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	cfgMux.RLock()
	gamePath := Wowsup.GamePath
	cfgMux.RUnlock()

	dst := filepath.Join(gamePath, "WTF")
	if err := cp.Copy(src, dst); err != nil {
		return fmt.Errorf("error staging addon settings for %s: %w", slotName, err)
	}
	return nil
}

func getAbsPath(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	wd, err := os.Getwd()
	if err != nil {
		return relPath
	}
	return filepath.Join(wd, relPath)
}
