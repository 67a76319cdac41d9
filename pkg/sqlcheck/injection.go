package sqlcheck

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding describes a detected injection pattern in a request field.
type InjectionFinding struct {
	Field       string `json:"field"`
	Fingerprint string `json:"fingerprint"`
}

// CheckFieldForInjection runs libinjection over a request field value.
// Returns nil when the value is clean.
func CheckFieldForInjection(field, value string) *InjectionFinding {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionFinding{Field: field, Fingerprint: string(fingerprint)}
}

// CheckRequestFields checks every named request field, returning a finding
// per dirty field. Run at the request boundary, before any completion call.
func CheckRequestFields(fields map[string]string) []*InjectionFinding {
	var findings []*InjectionFinding
	for name, value := range fields {
		if f := CheckFieldForInjection(name, value); f != nil {
			findings = append(findings, f)
		}
	}
	return findings
}
