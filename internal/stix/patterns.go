package stix

import (
	"fmt"
	"strings"
)

// PatternInfo describes the STIX pattern derived from one feed indicator.
type PatternInfo struct {
	Pattern            string
	PatternType        string
	MainObservableType string
	// Observable is the SCO backing the pattern. Nil for pattern types that
	// have no single observable (e.g. yara).
	Observable *Observable
}

// escapeValue escapes backslashes and single quotes for use inside a STIX
// pattern comparison expression.
func escapeValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return v
}

// BuildPattern maps an OTX indicator type and value to a STIX pattern and its
// backing observable. The second return value is false for indicator types
// this connector does not translate.
func BuildPattern(otxType, value string) (PatternInfo, bool) {
	escaped := escapeValue(value)

	switch otxType {
	case "IPv4", "CIDR":
		obs := NewValueObservable("ipv4-addr", value)
		return PatternInfo{
			Pattern:            fmt.Sprintf("[ipv4-addr:value = '%s']", escaped),
			PatternType:        "stix",
			MainObservableType: "IPv4-Addr",
			Observable:         &obs,
		}, true

	case "IPv6":
		obs := NewValueObservable("ipv6-addr", value)
		return PatternInfo{
			Pattern:            fmt.Sprintf("[ipv6-addr:value = '%s']", escaped),
			PatternType:        "stix",
			MainObservableType: "IPv6-Addr",
			Observable:         &obs,
		}, true

	case "domain", "hostname":
		obs := NewValueObservable("domain-name", value)
		return PatternInfo{
			Pattern:            fmt.Sprintf("[domain-name:value = '%s']", escaped),
			PatternType:        "stix",
			MainObservableType: "Domain-Name",
			Observable:         &obs,
		}, true

	case "URL", "URI":
		obs := NewValueObservable("url", value)
		return PatternInfo{
			Pattern:            fmt.Sprintf("[url:value = '%s']", escaped),
			PatternType:        "stix",
			MainObservableType: "Url",
			Observable:         &obs,
		}, true

	case "email":
		obs := NewValueObservable("email-addr", value)
		return PatternInfo{
			Pattern:            fmt.Sprintf("[email-addr:value = '%s']", escaped),
			PatternType:        "stix",
			MainObservableType: "Email-Addr",
			Observable:         &obs,
		}, true

	case "FileHash-MD5":
		return filePattern("MD5", value, escaped), true
	case "FileHash-SHA1":
		return filePattern("SHA-1", value, escaped), true
	case "FileHash-SHA256":
		return filePattern("SHA-256", value, escaped), true

	case "Mutex":
		obs := Observable{
			Type:        "mutex",
			SpecVersion: SpecVersion,
			ID:          DeterministicID("mutex", value),
			Name:        value,
		}
		return PatternInfo{
			Pattern:            fmt.Sprintf("[mutex:name = '%s']", escaped),
			PatternType:        "stix",
			MainObservableType: "Mutex",
			Observable:         &obs,
		}, true

	case "YARA":
		// The raw rule is the pattern; there is no backing observable.
		return PatternInfo{
			Pattern:            value,
			PatternType:        "yara",
			MainObservableType: "StixFile",
		}, true
	}

	return PatternInfo{}, false
}

func filePattern(algorithm, value, escaped string) PatternInfo {
	obs := NewFileObservable(algorithm, value)
	return PatternInfo{
		Pattern:            fmt.Sprintf("[file:hashes.'%s' = '%s']", algorithm, escaped),
		PatternType:        "stix",
		MainObservableType: "StixFile",
		Observable:         &obs,
	}
}
