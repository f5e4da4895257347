package importer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tdr0/connectors/internal/config"
	"github.com/tdr0/connectors/internal/otx"
	"github.com/tdr0/connectors/internal/stix"
	"log/slog"
)

const (
	authorName        = "AlienVault"
	authorDescription = "AlienVault Open Threat Exchange (OTX) pulse feed"
	pulseURLPrefix    = "https://otx.alienvault.com/pulse/"
)

var (
	attackIDPattern = regexp.MustCompile(`^T\d{4}(\.\d{3})?$`)
	cvePattern      = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)
)

// ConvertStats counts what one pulse conversion produced.
type ConvertStats struct {
	Indicators      int
	Observables     int
	Malware         int
	AttackPatterns  int
	Vulnerabilities int
	Relationships   int
	Skipped         int
}

// Converter turns OTX pulses into STIX bundles according to the connector's
// import policy.
type Converter struct {
	tlp          string
	confidence   int
	reportType   string
	reportStatus int
	guesser      *MalwareGuesser // nil when guess_malware is disabled
	logger       *slog.Logger
}

// NewConverter builds a converter from the feed configuration.
func NewConverter(connCfg config.ConnectorConfig, avCfg config.AlienVaultConfig, logger *slog.Logger) *Converter {
	c := &Converter{
		tlp:          avCfg.TLP,
		confidence:   connCfg.ConfidenceLevel,
		reportType:   avCfg.ReportType,
		reportStatus: avCfg.ReportStatusCode(),
		logger:       logger,
	}
	if avCfg.GuessMalware {
		c.guesser = NewMalwareGuesser()
	}
	return c
}

// Author returns the feed's author identity.
func (c *Converter) Author(now time.Time) stix.Identity {
	return stix.NewIdentity(authorName, "organization", authorDescription, now)
}

// Convert produces a STIX bundle for one pulse. A pulse with no convertible
// indicators still yields a report so the platform records the import.
func (c *Converter) Convert(pulse otx.Pulse, now time.Time) (*stix.Bundle, ConvertStats) {
	var stats ConvertStats

	author := c.Author(now)
	markingID := c.markingFor(pulse)
	markings := []string{markingID}
	labels := cleanLabels(pulse.Tags)

	pulseRef := stix.ExternalReference{
		SourceName:  authorName,
		URL:         pulseURLPrefix + pulse.ID,
		Description: fmt.Sprintf("Pulse by %s", pulse.AuthorName),
	}

	bundle := stix.NewBundle()
	bundle.Add(author)

	var objectRefs []string

	// Malware families, explicit plus guessed from tags.
	malwareNames := dedupeStrings(pulse.MalwareFamilies)
	if c.guesser != nil {
		exclude := make(map[string]bool, len(malwareNames))
		for _, name := range malwareNames {
			exclude[name] = true
		}
		guessed := c.guesser.Guess(labels, exclude)
		if len(guessed) > 0 {
			c.logger.Debug("guessed malware families from tags",
				"pulse_id", pulse.ID,
				"families", guessed,
			)
		}
		malwareNames = append(malwareNames, guessed...)
	}

	var malwareIDs []string
	for _, name := range malwareNames {
		m := stix.NewMalware(name, pulse.Created)
		m.CreatedByRef = author.ID
		m.ObjectMarkingRefs = markings
		bundle.Add(m)
		malwareIDs = append(malwareIDs, m.ID)
		objectRefs = append(objectRefs, m.ID)
		stats.Malware++

		if c.guesser != nil {
			c.guesser.Learn(name)
		}
	}

	// ATT&CK techniques referenced by the pulse.
	var attackIDs []string
	for _, technique := range dedupeStrings(pulse.AttackIDs) {
		if !attackIDPattern.MatchString(technique) {
			c.logger.Debug("skipping malformed attack id", "pulse_id", pulse.ID, "attack_id", technique)
			continue
		}
		ap := stix.NewAttackPattern(technique, pulse.Created)
		ap.CreatedByRef = author.ID
		ap.ObjectMarkingRefs = markings
		bundle.Add(ap)
		attackIDs = append(attackIDs, ap.ID)
		objectRefs = append(objectRefs, ap.ID)
		stats.AttackPatterns++
	}

	for _, ioc := range pulse.Indicators {
		if !ioc.Active() || strings.TrimSpace(ioc.Value) == "" {
			stats.Skipped++
			continue
		}

		// CVEs become vulnerabilities, not pattern indicators.
		if ioc.Type == "CVE" {
			if !cvePattern.MatchString(ioc.Value) {
				c.logger.Warn("skipping malformed CVE", "pulse_id", pulse.ID, "value", ioc.Value)
				stats.Skipped++
				continue
			}
			vuln := stix.NewVulnerability(ioc.Value, ioc.Created)
			vuln.CreatedByRef = author.ID
			vuln.ObjectMarkingRefs = markings
			bundle.Add(vuln)
			objectRefs = append(objectRefs, vuln.ID)
			stats.Vulnerabilities++

			for _, malwareID := range malwareIDs {
				rel := stix.NewRelationship("related-to", vuln.ID, malwareID, pulse.Created)
				rel.CreatedByRef = author.ID
				rel.ObjectMarkingRefs = markings
				bundle.Add(rel)
				objectRefs = append(objectRefs, rel.ID)
				stats.Relationships++
			}
			continue
		}

		// YARA indicators carry the rule in the content field.
		value := ioc.Value
		if ioc.Type == "YARA" && ioc.Content != "" {
			value = ioc.Content
		}

		info, ok := stix.BuildPattern(ioc.Type, value)
		if !ok {
			c.logger.Warn("skipping unsupported indicator type",
				"pulse_id", pulse.ID,
				"type", ioc.Type,
				"value", ioc.Value,
			)
			stats.Skipped++
			continue
		}

		indicator := stix.NewIndicator(indicatorName(ioc), info.Pattern, info.PatternType, ioc.Created)
		indicator.Description = ioc.Description
		indicator.CreatedByRef = author.ID
		indicator.Labels = labels
		indicator.Confidence = c.confidence
		indicator.Score = c.confidence
		indicator.MainObservableType = info.MainObservableType
		indicator.ObjectMarkingRefs = markings
		indicator.ExternalReferences = []stix.ExternalReference{pulseRef}
		if until := expirationTime(ioc); !until.IsZero() {
			indicator.ValidUntil = stix.FormatTime(until)
		}
		bundle.Add(indicator)
		objectRefs = append(objectRefs, indicator.ID)
		stats.Indicators++

		if info.Observable != nil {
			obs := *info.Observable
			obs.ObjectMarkingRefs = markings
			obs.CreatedByRef = author.ID
			obs.Score = c.confidence
			bundle.Add(obs)
			objectRefs = append(objectRefs, obs.ID)
			stats.Observables++

			rel := stix.NewRelationship("based-on", indicator.ID, obs.ID, pulse.Created)
			rel.CreatedByRef = author.ID
			rel.ObjectMarkingRefs = markings
			bundle.Add(rel)
			objectRefs = append(objectRefs, rel.ID)
			stats.Relationships++
		}

		for _, malwareID := range malwareIDs {
			rel := stix.NewRelationship("indicates", indicator.ID, malwareID, pulse.Created)
			rel.CreatedByRef = author.ID
			rel.Confidence = c.confidence
			rel.ObjectMarkingRefs = markings
			bundle.Add(rel)
			objectRefs = append(objectRefs, rel.ID)
			stats.Relationships++
		}

		for _, attackID := range attackIDs {
			rel := stix.NewRelationship("indicates", indicator.ID, attackID, pulse.Created)
			rel.CreatedByRef = author.ID
			rel.ObjectMarkingRefs = markings
			bundle.Add(rel)
			objectRefs = append(objectRefs, rel.ID)
			stats.Relationships++
		}
	}

	report := stix.NewReport(pulse.Name, pulse.Created)
	report.Description = pulse.Description
	report.CreatedByRef = author.ID
	report.ReportTypes = []string{c.reportType}
	report.ReportStatus = c.reportStatus
	report.Labels = labels
	report.Confidence = c.confidence
	report.ObjectMarkingRefs = markings
	report.ExternalReferences = []stix.ExternalReference{pulseRef}
	report.Modified = stix.FormatTime(pulse.Modified)

	// object_refs must not be empty; an empty pulse reports its author.
	if len(objectRefs) == 0 {
		objectRefs = []string{author.ID}
	}
	report.ObjectRefs = objectRefs
	bundle.Add(report)

	return bundle, stats
}

// markingFor picks the stricter of the configured default TLP and the TLP
// carried on the pulse itself.
func (c *Converter) markingFor(pulse otx.Pulse) string {
	tlp := c.tlp
	if pulse.TLP != "" && stix.MarkingRank(pulse.TLP) > stix.MarkingRank(tlp) {
		tlp = pulse.TLP
	}
	return stix.MarkingID(tlp)
}

// indicatorName prefers the indicator's own title, falling back to its value.
func indicatorName(ioc otx.Indicator) string {
	if strings.TrimSpace(ioc.Title) != "" {
		return ioc.Title
	}
	return ioc.Value
}

// expirationTime parses the feed's expiration field, which is empty for
// non-expiring indicators.
func expirationTime(ioc otx.Indicator) time.Time {
	if ioc.Expiration == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, ioc.Expiration); err == nil {
			return t
		}
	}
	return time.Time{}
}

func cleanLabels(tags []string) []string {
	var labels []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			labels = append(labels, tag)
		}
	}
	return labels
}

func dedupeStrings(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
