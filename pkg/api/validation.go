package api

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxNameLength  int
	MaxSchemaItems int
	MaxLanguages   int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxNameLength:  255,
		MaxSchemaItems: 5000,
		MaxLanguages:   64,
	}
}

var langPattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2})?$`)

// NormalizeLang returns lang in canonical case: a lower-case language
// subtag and an upper-case region, as in "de-CH".
func NormalizeLang(lang string) string {
	lang = strings.TrimSpace(lang)
	base, region, ok := strings.Cut(lang, "-")
	if !ok {
		return strings.ToLower(lang)
	}
	return strings.ToLower(base) + "-" + strings.ToUpper(region)
}

// ValidateLang checks that lang is a language code that fits the
// fixed-width lang column.
func ValidateLang(param, lang string) *APIError {
	if lang == "" {
		return NewInvalidRequestError(param, "language is required")
	}
	if len(lang) > 5 || !langPattern.MatchString(lang) {
		return NewInvalidRequestError(param, fmt.Sprintf("invalid language code %q", lang))
	}
	return nil
}

// ValidateSurvey checks a survey record before it is persisted. It returns
// an *APIError describing the first validation failure, or nil.
func ValidateSurvey(s *Survey, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(s.Name) == "" {
		return NewInvalidRequestError("name", "name is required")
	}
	if cfg.MaxNameLength > 0 && len(s.Name) > cfg.MaxNameLength {
		return NewInvalidRequestError("name",
			fmt.Sprintf("name exceeds maximum of %d characters", cfg.MaxNameLength))
	}

	if apiErr := ValidateLang("default_lang", s.DefaultLang); apiErr != nil {
		return apiErr
	}
	if cfg.MaxLanguages > 0 && len(s.AdditionalLangs) > cfg.MaxLanguages {
		return NewInvalidRequestError("additional_langs",
			fmt.Sprintf("additional_langs exceeds maximum of %d", cfg.MaxLanguages))
	}
	for _, l := range s.AdditionalLangs {
		if apiErr := ValidateLang("additional_langs", l); apiErr != nil {
			return apiErr
		}
		if l == s.DefaultLang {
			return NewInvalidRequestError("additional_langs",
				fmt.Sprintf("%q is already the default language", l))
		}
	}

	switch s.Status {
	case "", SurveyStatusDraft, SurveyStatusActive, SurveyStatusClosed:
	default:
		return NewInvalidRequestError("status", fmt.Sprintf("unknown status %q", s.Status))
	}

	switch s.NavigationMode {
	case "", NavigationAllInOne, NavigationGroupByGroup, NavigationQuestionByQuestion:
	default:
		return NewInvalidRequestError("navigation_mode",
			fmt.Sprintf("unknown navigation mode %q", s.NavigationMode))
	}

	return ValidateSchema(s.Schema, cfg)
}

// ValidateSchema checks a schema against the configured size limit and the
// field rules of Schema.Validate.
func ValidateSchema(schema Schema, cfg ValidationConfig) *APIError {
	if cfg.MaxSchemaItems > 0 && len(schema) > cfg.MaxSchemaItems {
		return NewInvalidRequestError("schema",
			fmt.Sprintf("schema exceeds maximum of %d fields", cfg.MaxSchemaItems))
	}
	if err := schema.Validate(); err != nil {
		return NewInvalidRequestError("schema", err.Error())
	}
	return nil
}

// ApplySurveyDefaults fills in the status and navigation mode of a new survey.
func ApplySurveyDefaults(s *Survey) {
	if s.Status == "" {
		s.Status = SurveyStatusDraft
	}
	if s.NavigationMode == "" {
		s.NavigationMode = NavigationGroupByGroup
	}
	if s.AdditionalLangs == nil {
		s.AdditionalLangs = []string{}
	}
	s.DefaultLang = NormalizeLang(s.DefaultLang)
	for i, l := range s.AdditionalLangs {
		s.AdditionalLangs[i] = NormalizeLang(l)
	}
}
