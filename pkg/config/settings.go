package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/bagbounty/bagbounty/pkg/reaper"
	"gopkg.in/yaml.v3"
)

// Settings are the tool settings loaded from the YAML file given with
// -config. Anything left out keeps its default.
type Settings struct {
	// Tools maps a logical tool name to the binary that implements it.
	Tools map[string]string `yaml:"tools"`

	Ports        []int    `yaml:"ports"`
	HTTPXThreads int      `yaml:"httpx-threads"`
	KatanaDepth  int      `yaml:"katana-depth"`
	BlacklistExt []string `yaml:"blacklist-ext"`

	// SensitiveExt selects URLs worth downloading.
	SensitiveExt string `yaml:"sensitive-ext"`

	// StaticExt and TrashPattern drop uninteresting URLs during filtering.
	StaticExt    string `yaml:"static-ext"`
	TrashPattern string `yaml:"trash-pattern"`

	// SecretPatterns are grepped for in downloaded files.
	SecretPatterns map[string]string `yaml:"secret-patterns"`

	// ReportFolders maps a report type to its folder under the reports dir.
	ReportFolders map[string]string `yaml:"report-folders"`

	DownloadTimeout Duration `yaml:"download-timeout"`

	// Signatures override the reaper's tool-derived signatures.
	Signatures reaper.Signatures `yaml:"signatures"`
}

// Duration is a time.Duration that reads "10m" style strings from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, n.Value, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Tools: map[string]string{
			"subfinder":   "subfinder",
			"httpx":       "httpx",
			"waybackurls": "waybackurls",
			"katana":      "katana",
			"nuclei":      "nuclei",
			"wget":        "wget",
			"grep":        "grep",
			"sed":         "sed",
			"sort":        "sort",
		},
		Ports:        append([]int(nil), defaults.Ports...),
		HTTPXThreads: defaults.HTTPXThreads,
		KatanaDepth:  defaults.KatanaDepth,
		BlacklistExt: []string{"woff", "css", "png", "svg", "jpg", "woff2", "jpeg", "gif"},
		SensitiveExt: `\.(xls|xml|xlsx|json|pdf|sql|doc|docx|pptx|txt|zip|tar\.gz|tgz|bak|7z|rar|log|cache|secret|db|backup|yml|gz|config|csv|yaml|md|md5)$`,
		StaticExt:    `\.(jpg|jpeg|png|gif|svg|css|woff2?|ttf|eot|ico|mp4|webm|avi|mov|mp3|ogg|wav|webp|bmp|swf|psd|exe|dmg|apk|bin|jar|m4a|m4v|map)$`,
		TrashPattern: `/(404|not[-_]?found|error|invalid|doesnotexist|missing|unavailable)/?$|[?&](error|msg|message|reason)=`,
		SecretPatterns: map[string]string{
			"aws_key":      `AKIA[0-9A-Z]{16}`,
			"github_token": `ghp_[a-zA-Z0-9]{36}`,
			"google_api":   `AIza[0-9A-Za-z_-]{35}`,
			"slack_token":  `xox[baprs]-[0-9a-zA-Z]{10,48}`,
			"private_key":  `-----BEGIN (RSA |OPENSSH )?PRIVATE KEY-----`,
			"database_url": `(mysql|postgresql|mongodb)://[^[:space:]]+`,
			"jwt_token":    `eyJ[A-Za-z0-9_=-]+\.[A-Za-z0-9_=-]+\.?[A-Za-z0-9_.+/=-]*`,
		},
		ReportFolders: map[string]string{
			"recon":     "recon_reports",
			"analysis":  "analysis_reports",
			"vuln_scan": "vuln_scan_reports",
			"filtered":  "filtered_reports",
			"logs":      "logs",
		},
		DownloadTimeout: Duration(duration.Download),
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks ranges and compiles every pattern once.
func (s *Settings) Validate() error {
	for name, bin := range s.Tools {
		if strings.TrimSpace(bin) == "" {
			return fmt.Errorf("%w: tools.%s", ErrMissingRequired, name)
		}
	}
	if len(s.Ports) == 0 {
		return fmt.Errorf("%w: ports", ErrMissingRequired)
	}
	for _, p := range s.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, p)
		}
	}
	if s.HTTPXThreads < 1 {
		return fmt.Errorf("%w: httpx-threads must be positive", ErrInvalidConfig)
	}
	if s.KatanaDepth < 1 {
		return fmt.Errorf("%w: katana-depth must be positive", ErrInvalidConfig)
	}
	if s.DownloadTimeout <= 0 {
		return fmt.Errorf("%w: download-timeout must be positive", ErrInvalidConfig)
	}

	patterns := map[string]string{
		"sensitive-ext": s.SensitiveExt,
		"static-ext":    s.StaticExt,
		"trash-pattern": s.TrashPattern,
	}
	for name, p := range s.SecretPatterns {
		patterns["secret-patterns."+name] = p
	}
	for name, p := range patterns {
		if p == "" {
			return fmt.Errorf("%w: %s", ErrMissingRequired, name)
		}
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}

	if len(s.Signatures) > 0 {
		if err := reaper.ValidateSignatures(s.Signatures, s.Binaries()); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Binary returns the configured binary for a tool, or name itself.
func (s *Settings) Binary(name string) string {
	if b, ok := s.Tools[name]; ok {
		return b
	}
	return name
}

// Binaries returns every configured binary, sorted.
func (s *Settings) Binaries() []string {
	out := make([]string, 0, len(s.Tools))
	for _, b := range s.Tools {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// ReapSignatures returns the configured signatures, or ones derived from
// the wrapped recon tools.
func (s *Settings) ReapSignatures() reaper.Signatures {
	if len(s.Signatures) > 0 {
		return s.Signatures
	}
	var bins []string
	for _, name := range []string{"subfinder", "httpx", "waybackurls", "katana", "nuclei", "wget"} {
		bins = append(bins, s.Binary(name))
	}
	return reaper.ToolSignatures(bins...)
}

// ReportFolder returns the folder for a report type, falling back to the
// type itself.
func (s *Settings) ReportFolder(kind string) string {
	if f, ok := s.ReportFolders[kind]; ok && f != "" {
		return f
	}
	return kind
}

// Vars returns the template variables the pipeline definitions reference.
func (s *Settings) Vars() map[string]string {
	ports := make([]string, len(s.Ports))
	for i, p := range s.Ports {
		ports[i] = strconv.Itoa(p)
	}

	names := make([]string, 0, len(s.SecretPatterns))
	for name := range s.SecretPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	secrets := make([]string, len(names))
	for i, name := range names {
		secrets[i] = "(" + s.SecretPatterns[name] + ")"
	}

	vars := map[string]string{
		"ports":            strings.Join(ports, ","),
		"httpx_threads":    strconv.Itoa(s.HTTPXThreads),
		"katana_depth":     strconv.Itoa(s.KatanaDepth),
		"blacklist_ext":    strings.Join(s.BlacklistExt, ","),
		"sensitive_ext":    s.SensitiveExt,
		"static_ext":       s.StaticExt,
		"trash_pattern":    s.TrashPattern,
		"secret_pattern":   strings.Join(secrets, "|"),
		"download_timeout": time.Duration(s.DownloadTimeout).String(),
	}
	for name, bin := range s.Tools {
		vars["tool."+name] = bin
	}
	return vars
}
