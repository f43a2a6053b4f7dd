// Package policy holds the confidence table and thresholds that drive
// candidate scoring, suggestion and auto-linking.
//
// The table lives in one value so every caller applies the same rules.
// The exact-identifier gate on auto-linking is not part of the policy and
// cannot be tuned.
package policy

import (
	"fmt"
	"math"
)

// Policy is the linking policy table.
type Policy struct {
	PrimaryEmailConfidence int `json:"primary_email_confidence"`
	LinkedEmailConfidence  int `json:"linked_email_confidence"`
	PrimaryPhoneConfidence int `json:"primary_phone_confidence"`
	LinkedPhoneConfidence  int `json:"linked_phone_confidence"`
	// CombinedConfidence applies when a candidate matched on both email and
	// phone. It replaces the individual scores rather than adding to them.
	CombinedConfidence int `json:"combined_confidence"`

	NameCorroborationMin   int `json:"name_corroboration_min"`
	NameCorroborationBonus int `json:"name_corroboration_bonus"`
	NameOnlyMin            int `json:"name_only_min"`
	NameOnlyBase           int `json:"name_only_base"`
	NameOnlySlopePct       int `json:"name_only_slope_pct"`

	SuggestFloor      int `json:"suggest_floor"`
	AutoLinkThreshold int `json:"auto_link_threshold"`
	MaxCandidates     int `json:"max_candidates"`
	// NameScanLimit is the page size of the fuzzy name scan. Every
	// matching row is read; pages bound each query.
	NameScanLimit int `json:"name_scan_limit"`
}

// MaxConfidence is the ceiling for every confidence value.
const MaxConfidence = 100

// Default returns the canonical policy.
func Default() Policy {
	return Policy{
		PrimaryEmailConfidence: 100,
		LinkedEmailConfidence:  95,
		PrimaryPhoneConfidence: 95,
		LinkedPhoneConfidence:  90,
		CombinedConfidence:     100,
		NameCorroborationMin:   80,
		NameCorroborationBonus: 5,
		NameOnlyMin:            70,
		NameOnlyBase:           60,
		NameOnlySlopePct:       80,
		SuggestFloor:           80,
		AutoLinkThreshold:      95,
		MaxCandidates:          8,
		NameScanLimit:          50,
	}
}

// Validate checks the ranges the schema enforces for policies built in code.
func (p Policy) Validate() error {
	percent := map[string]int{
		"primary_email_confidence": p.PrimaryEmailConfidence,
		"linked_email_confidence":  p.LinkedEmailConfidence,
		"primary_phone_confidence": p.PrimaryPhoneConfidence,
		"linked_phone_confidence":  p.LinkedPhoneConfidence,
		"combined_confidence":      p.CombinedConfidence,
		"name_corroboration_min":   p.NameCorroborationMin,
		"name_corroboration_bonus": p.NameCorroborationBonus,
		"name_only_min":            p.NameOnlyMin,
		"name_only_base":           p.NameOnlyBase,
		"name_only_slope_pct":      p.NameOnlySlopePct,
		"suggest_floor":            p.SuggestFloor,
		"auto_link_threshold":      p.AutoLinkThreshold,
	}
	for _, name := range sortedKeys(percent) {
		if v := percent[name]; v < 0 || v > MaxConfidence {
			return fmt.Errorf("%s: %d out of range 0..100", name, v)
		}
	}
	if p.AutoLinkThreshold < p.SuggestFloor {
		return fmt.Errorf("auto_link_threshold %d is below suggest_floor %d", p.AutoLinkThreshold, p.SuggestFloor)
	}
	if p.MaxCandidates < 1 {
		return fmt.Errorf("max_candidates must be at least 1")
	}
	if p.NameScanLimit < 1 {
		return fmt.Errorf("name_scan_limit must be at least 1")
	}
	return nil
}

// NameOnlyConfidence returns the confidence of a candidate found by name
// similarity alone, or 0 when sim is below NameOnlyMin.
//
//	NameOnlyConfidence(75) // 60 + 0.8*5 = 64
func (p Policy) NameOnlyConfidence(sim int) int {
	if sim < p.NameOnlyMin {
		return 0
	}
	scaled := float64(p.NameOnlyBase*100+p.NameOnlySlopePct*(sim-p.NameOnlyMin)) / 100
	return min(int(math.Round(scaled)), MaxConfidence)
}

// Corroborate applies the name bonus to an identifier-based confidence.
func (p Policy) Corroborate(confidence, sim int) int {
	if sim < p.NameCorroborationMin {
		return confidence
	}
	return min(confidence+p.NameCorroborationBonus, MaxConfidence)
}

// Combine resolves the confidence of a candidate matched by email (emailConf
// > 0), by phone (phoneConf > 0), or both.
func (p Policy) Combine(emailConf, phoneConf int) int {
	if emailConf > 0 && phoneConf > 0 {
		return min(p.CombinedConfidence, MaxConfidence)
	}
	return max(emailConf, phoneConf)
}
