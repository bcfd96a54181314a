package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Config controls the scrubber.
type Config struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// Finding describes a detected secret. The secret value itself is
// never logged; callers get it only to perform replacement.
type Finding struct {
	RuleID      string
	Description string
	Line        int
	Secret      string
}

// Scrubber detects and redacts secrets. Safe for concurrent use.
type Scrubber struct {
	enabled  bool
	logger   *zap.Logger
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a scrubber with the default Gitleaks ruleset, extended by
// the allowlist at cfg.AllowlistPath when set. The detector is built
// once; construction parses the full ruleset and is not cheap.
func New(cfg Config, logger *zap.Logger) (*Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Scrubber{enabled: false, logger: logger}, nil
	}

	allowlist, err := LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("loading allowlist: %w", err)
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("building detector: %w", err)
	}
	if !allowlist.Empty() {
		applyAllowlist(&detector.Config, allowlist)
	}

	return &Scrubber{
		enabled:  true,
		logger:   logger,
		detector: detector,
	}, nil
}

// Enabled reports whether scrubbing is active.
func (s *Scrubber) Enabled() bool { return s.enabled }

// Scrub replaces every detected secret with a [REDACTED:<rule>] marker
// and returns the findings. Disabled scrubbers return content as-is.
func (s *Scrubber) Scrub(content string) (string, []Finding) {
	findings := s.Check(content)
	if len(findings) == 0 {
		return content, findings
	}

	// Replace by secret value, longest first, so one secret embedded in
	// another is not clobbered by a partial marker. Value replacement
	// also catches repeats of the same secret in one document.
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].Secret) > len(sorted[j].Secret)
	})

	replaced := make(map[string]struct{}, len(sorted))
	for _, f := range sorted {
		if f.Secret == "" {
			continue
		}
		if _, done := replaced[f.Secret]; done {
			continue
		}
		marker := "[REDACTED:" + f.RuleID + "]"
		content = strings.ReplaceAll(content, f.Secret, marker)
		replaced[f.Secret] = struct{}{}
	}

	return content, findings
}

// Check detects secrets without modifying the content.
func (s *Scrubber) Check(content string) []Finding {
	if !s.enabled || content == "" {
		return nil
	}

	// Gitleaks detectors are not documented as goroutine-safe.
	s.mu.Lock()
	raw := s.detector.DetectString(content)
	s.mu.Unlock()

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		findings = append(findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			Secret:      f.Secret,
		})
	}
	return findings
}

// ScrubText adapts Scrub to the single-string form the memory service
// consumes. Findings are logged by rule, never by value.
func (s *Scrubber) ScrubText(text string) string {
	scrubbed, findings := s.Scrub(text)
	if len(findings) > 0 {
		rules := make([]string, 0, len(findings))
		for _, f := range findings {
			rules = append(rules, f.RuleID)
		}
		s.logger.Warn("redacted secrets from content",
			zap.Int("count", len(findings)),
			zap.Strings("rules", rules),
		)
	}
	return scrubbed
}

// applyAllowlist merges user exemptions into the Gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	entry := &gitleaksConfig.Allowlist{
		Description: "memoryd allowlist",
		StopWords:   allowlist.StopWords,
	}

	// Patterns were validated in LoadAllowlist; failure here is a bug.
	for _, pattern := range allowlist.Regexes {
		re := regexp.MustCompile(pattern)
		entry.Regexes = append(entry.Regexes, (*gitleaksRegexp.Regexp)(re))
	}

	cfg.Allowlists = append(cfg.Allowlists, entry)
}
