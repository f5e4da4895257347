package stix

import "time"

// SpecVersion is the STIX specification version emitted by this connector.
const SpecVersion = "2.1"

// Canonical TLP marking-definition identifiers from the STIX 2.1
// specification. TLP markings must never be re-minted with other IDs.
const (
	TLPWhiteID = "marking-definition--613f2e26-407d-48c7-9eca-b8e91df99dc9"
	TLPGreenID = "marking-definition--34098fce-860f-48ae-8e50-ebd3cc5e41da"
	TLPAmberID = "marking-definition--f88d31f6-486f-44da-b317-01333bde0b82"
	TLPRedID   = "marking-definition--5e57c739-391a-4eb3-b6be-7d15ca92d5ed"
)

// MarkingID resolves a TLP color name to its canonical marking-definition ID.
// Unknown names fall back to TLP:WHITE.
func MarkingID(tlp string) string {
	switch normalizeTLP(tlp) {
	case "green":
		return TLPGreenID
	case "amber":
		return TLPAmberID
	case "red":
		return TLPRedID
	default:
		return TLPWhiteID
	}
}

// MarkingRank orders TLP colors from least to most restrictive, for picking
// the stricter of two markings.
func MarkingRank(tlp string) int {
	switch normalizeTLP(tlp) {
	case "green":
		return 1
	case "amber":
		return 2
	case "red":
		return 3
	default:
		return 0
	}
}

func normalizeTLP(tlp string) string {
	switch tlp {
	case "green", "Green", "GREEN":
		return "green"
	case "amber", "Amber", "AMBER":
		return "amber"
	case "red", "Red", "RED":
		return "red"
	default:
		return "white"
	}
}

// ExternalReference points at a non-STIX source for an object.
type ExternalReference struct {
	SourceName  string `json:"source_name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
}

// Identity is a STIX identity SDO (the feed author organization).
type Identity struct {
	Type          string `json:"type"`
	SpecVersion   string `json:"spec_version"`
	ID            string `json:"id"`
	Created       string `json:"created"`
	Modified      string `json:"modified"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	IdentityClass string `json:"identity_class"`
}

// NewIdentity creates an identity with a deterministic ID derived from its
// name and class.
func NewIdentity(name, class, description string, now time.Time) Identity {
	ts := FormatTime(now)
	return Identity{
		Type:          "identity",
		SpecVersion:   SpecVersion,
		ID:            DeterministicID("identity", name, class),
		Created:       ts,
		Modified:      ts,
		Name:          name,
		Description:   description,
		IdentityClass: class,
	}
}

// Indicator is a STIX indicator SDO.
type Indicator struct {
	Type               string              `json:"type"`
	SpecVersion        string              `json:"spec_version"`
	ID                 string              `json:"id"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	CreatedByRef       string              `json:"created_by_ref,omitempty"`
	Name               string              `json:"name"`
	Description        string              `json:"description,omitempty"`
	Pattern            string              `json:"pattern"`
	PatternType        string              `json:"pattern_type"`
	ValidFrom          string              `json:"valid_from"`
	ValidUntil         string              `json:"valid_until,omitempty"`
	Labels             []string            `json:"labels,omitempty"`
	Confidence         int                 `json:"confidence,omitempty"`
	ObjectMarkingRefs  []string            `json:"object_marking_refs,omitempty"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`

	Score              int    `json:"x_opencti_score,omitempty"`
	MainObservableType string `json:"x_opencti_main_observable_type,omitempty"`
	DetectionFlag      bool   `json:"x_opencti_detection,omitempty"`
}

// NewIndicator creates an indicator whose ID is derived from its pattern.
func NewIndicator(name, pattern, patternType string, validFrom time.Time) Indicator {
	ts := FormatTime(validFrom)
	return Indicator{
		Type:        "indicator",
		SpecVersion: SpecVersion,
		ID:          DeterministicID("indicator", pattern),
		Created:     ts,
		Modified:    ts,
		Name:        name,
		Pattern:     pattern,
		PatternType: patternType,
		ValidFrom:   ts,
	}
}

// Malware is a STIX malware SDO.
type Malware struct {
	Type              string   `json:"type"`
	SpecVersion       string   `json:"spec_version"`
	ID                string   `json:"id"`
	Created           string   `json:"created"`
	Modified          string   `json:"modified"`
	CreatedByRef      string   `json:"created_by_ref,omitempty"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	IsFamily          bool     `json:"is_family"`
	Labels            []string `json:"labels,omitempty"`
	ObjectMarkingRefs []string `json:"object_marking_refs,omitempty"`
}

// NewMalware creates a malware family with a deterministic ID from its name.
func NewMalware(name string, now time.Time) Malware {
	ts := FormatTime(now)
	return Malware{
		Type:        "malware",
		SpecVersion: SpecVersion,
		ID:          DeterministicID("malware", name),
		Created:     ts,
		Modified:    ts,
		Name:        name,
		IsFamily:    true,
	}
}

// AttackPattern is a STIX attack-pattern SDO referencing a MITRE ATT&CK
// technique.
type AttackPattern struct {
	Type               string              `json:"type"`
	SpecVersion        string              `json:"spec_version"`
	ID                 string              `json:"id"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	CreatedByRef       string              `json:"created_by_ref,omitempty"`
	Name               string              `json:"name"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`
	ObjectMarkingRefs  []string            `json:"object_marking_refs,omitempty"`

	MitreID string `json:"x_mitre_id,omitempty"`
}

// NewAttackPattern creates an attack pattern for a MITRE technique ID such as
// T1059. The deterministic ID is derived from the technique ID so every
// connector run converges on the same object.
func NewAttackPattern(mitreID string, now time.Time) AttackPattern {
	ts := FormatTime(now)
	return AttackPattern{
		Type:        "attack-pattern",
		SpecVersion: SpecVersion,
		ID:          DeterministicID("attack-pattern", mitreID),
		Created:     ts,
		Modified:    ts,
		Name:        mitreID,
		MitreID:     mitreID,
		ExternalReferences: []ExternalReference{{
			SourceName: "mitre-attack",
			ExternalID: mitreID,
		}},
	}
}

// Vulnerability is a STIX vulnerability SDO (a CVE).
type Vulnerability struct {
	Type               string              `json:"type"`
	SpecVersion        string              `json:"spec_version"`
	ID                 string              `json:"id"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	CreatedByRef       string              `json:"created_by_ref,omitempty"`
	Name               string              `json:"name"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`
	ObjectMarkingRefs  []string            `json:"object_marking_refs,omitempty"`
}

// NewVulnerability creates a vulnerability for a CVE identifier.
func NewVulnerability(cve string, now time.Time) Vulnerability {
	ts := FormatTime(now)
	return Vulnerability{
		Type:        "vulnerability",
		SpecVersion: SpecVersion,
		ID:          DeterministicID("vulnerability", cve),
		Created:     ts,
		Modified:    ts,
		Name:        cve,
		ExternalReferences: []ExternalReference{{
			SourceName: "cve",
			ExternalID: cve,
		}},
	}
}

// Relationship is a STIX relationship SRO.
type Relationship struct {
	Type              string   `json:"type"`
	SpecVersion       string   `json:"spec_version"`
	ID                string   `json:"id"`
	Created           string   `json:"created"`
	Modified          string   `json:"modified"`
	CreatedByRef      string   `json:"created_by_ref,omitempty"`
	RelationshipType  string   `json:"relationship_type"`
	Description       string   `json:"description,omitempty"`
	SourceRef         string   `json:"source_ref"`
	TargetRef         string   `json:"target_ref"`
	StartTime         string   `json:"start_time,omitempty"`
	StopTime          string   `json:"stop_time,omitempty"`
	Confidence        int      `json:"confidence,omitempty"`
	ObjectMarkingRefs []string `json:"object_marking_refs,omitempty"`
}

// NewRelationship creates a relationship with a deterministic ID from its
// type and endpoints.
func NewRelationship(relType, sourceRef, targetRef string, now time.Time) Relationship {
	ts := FormatTime(now)
	return Relationship{
		Type:             "relationship",
		SpecVersion:      SpecVersion,
		ID:               DeterministicID("relationship", relType, sourceRef, targetRef),
		Created:          ts,
		Modified:         ts,
		RelationshipType: relType,
		SourceRef:        sourceRef,
		TargetRef:        targetRef,
	}
}

// Report is a STIX report SDO wrapping everything imported from one pulse.
type Report struct {
	Type               string              `json:"type"`
	SpecVersion        string              `json:"spec_version"`
	ID                 string              `json:"id"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	CreatedByRef       string              `json:"created_by_ref,omitempty"`
	Name               string              `json:"name"`
	Description        string              `json:"description,omitempty"`
	Published          string              `json:"published"`
	ReportTypes        []string            `json:"report_types,omitempty"`
	ObjectRefs         []string            `json:"object_refs"`
	Labels             []string            `json:"labels,omitempty"`
	Confidence         int                 `json:"confidence,omitempty"`
	ObjectMarkingRefs  []string            `json:"object_marking_refs,omitempty"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`

	ReportStatus int `json:"x_opencti_report_status"`
}

// NewReport creates a report whose ID is derived from its name and publish
// time, matching how the platform deduplicates reports.
func NewReport(name string, published time.Time) Report {
	ts := FormatTime(published)
	return Report{
		Type:        "report",
		SpecVersion: SpecVersion,
		ID:          DeterministicID("report", name, ts),
		Created:     ts,
		Modified:    ts,
		Name:        name,
		Published:   ts,
	}
}

// Observable is a STIX cyber-observable (SCO). Hashes is populated only for
// file observables.
type Observable struct {
	Type              string            `json:"type"`
	SpecVersion       string            `json:"spec_version"`
	ID                string            `json:"id"`
	Value             string            `json:"value,omitempty"`
	Name              string            `json:"name,omitempty"`
	Hashes            map[string]string `json:"hashes,omitempty"`
	ObjectMarkingRefs []string          `json:"object_marking_refs,omitempty"`

	Labels       []string `json:"labels,omitempty"`
	CreatedByRef string   `json:"x_opencti_created_by_ref,omitempty"`
	Score        int      `json:"x_opencti_score,omitempty"`
}

// NewValueObservable creates a value-carrying SCO (ipv4-addr, domain-name,
// url, email-addr, ...).
func NewValueObservable(scoType, value string) Observable {
	return Observable{
		Type:        scoType,
		SpecVersion: SpecVersion,
		ID:          DeterministicID(scoType, value),
		Value:       value,
	}
}

// NewFileObservable creates a file SCO keyed by a single hash.
func NewFileObservable(algorithm, digest string) Observable {
	return Observable{
		Type:        "file",
		SpecVersion: SpecVersion,
		ID:          DeterministicID("file", algorithm, digest),
		Hashes:      map[string]string{algorithm: digest},
	}
}
