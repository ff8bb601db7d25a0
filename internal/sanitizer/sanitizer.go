// Package sanitizer strips protected health information from context payloads
// before they are allowed into the context cache.
package sanitizer

import (
	"encoding/json"
	"fmt"
	"phicontext/internal/models"
	"regexp"
	"sort"
	"strings"
	"time"
)

// RedactedValue replaces string content that matched a PHI pattern
const RedactedValue = "[REDACTED]"

// Result is the outcome of sanitizing a payload
type Result struct {
	Payload       models.Payload
	RemovedFields []string
	Level         models.SanitizationLevel
}

// ValidationResult reports whether a payload is safe to cache
type ValidationResult struct {
	Valid  bool
	Issues []string
}

// Sanitizer removes identifying fields from payloads and validates the result.
// Implementations must be safe for concurrent use.
type Sanitizer interface {
	Sanitize(payload models.Payload) Result
	Validate(payload models.Payload) ValidationResult
}

// Options configures a FieldSanitizer
type Options struct {
	// PatternScrubbing redacts SSNs, e-mail addresses, phone numbers and IP
	// addresses found inside string values.
	PatternScrubbing bool
	// ExtraIdentifiers adds field names to the default Safe Harbor set.
	ExtraIdentifiers []string
}

// DefaultIdentifierFields follows the HIPAA Safe Harbor identifier list.
// Names are compared after normalizeKey.
var DefaultIdentifierFields = []string{
	"patientname", "fullname", "firstname", "lastname", "middlename", "maidenname",
	"patientid", "mrn", "medicalrecordnumber",
	"ssn", "socialsecurity", "socialsecuritynumber",
	"dob", "dateofbirth", "birthdate", "birthday",
	"address", "streetaddress", "street", "city", "county", "zip", "zipcode", "postalcode",
	"phone", "phonenumber", "telephone", "mobile", "fax", "faxnumber",
	"email", "emailaddress",
	"healthplanid", "healthplannumber", "insuranceid", "insurancenumber", "memberid",
	"accountnumber", "licensenumber", "driverslicense", "certificatenumber",
	"deviceid", "deviceserial", "serialnumber", "vehicleid", "licenseplate", "vin",
	"ipaddress", "url", "website",
	"biometric", "fingerprint", "voiceprint", "photo", "photograph", "faceimage",
}

type phiPattern struct {
	name string
	re   *regexp.Regexp
}

var phiPatterns = []phiPattern{
	{name: "ssn", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{name: "email", re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{name: "phone", re: regexp.MustCompile(`\(?\b\d{3}\)?[\-.\s]\d{3}[\-.\s]\d{4}\b`)},
	{name: "ip_address", re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// FieldSanitizer removes identifier keys anywhere in a payload and optionally
// scrubs PHI patterns out of string values.
type FieldSanitizer struct {
	identifiers      map[string]struct{}
	patternScrubbing bool
}

// New creates a FieldSanitizer
func New(opts Options) *FieldSanitizer {
	identifiers := make(map[string]struct{}, len(DefaultIdentifierFields)+len(opts.ExtraIdentifiers))
	for _, f := range DefaultIdentifierFields {
		identifiers[normalizeKey(f)] = struct{}{}
	}
	for _, f := range opts.ExtraIdentifiers {
		if k := normalizeKey(f); k != "" {
			identifiers[k] = struct{}{}
		}
	}
	return &FieldSanitizer{
		identifiers:      identifiers,
		patternScrubbing: opts.PatternScrubbing,
	}
}

// Level returns the sanitization level this sanitizer produces
func (s *FieldSanitizer) Level() models.SanitizationLevel {
	if s.patternScrubbing {
		return models.SanitizationFull
	}
	return models.SanitizationPartial
}

// Sanitize returns a scrubbed copy of payload; the input is not modified.
func (s *FieldSanitizer) Sanitize(payload models.Payload) Result {
	var removed []string
	clean := s.sanitizeMap(payload, "", &removed)
	return Result{
		Payload:       clean,
		RemovedFields: removed,
		Level:         s.Level(),
	}
}

// Validate checks that no identifier keys or PHI patterns remain
func (s *FieldSanitizer) Validate(payload models.Payload) ValidationResult {
	if payload == nil {
		return ValidationResult{Valid: false, Issues: []string{"payload is nil"}}
	}
	var issues []string
	s.inspect(payload, "", &issues)
	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

func (s *FieldSanitizer) isIdentifier(key string) bool {
	_, ok := s.identifiers[normalizeKey(key)]
	return ok
}

func (s *FieldSanitizer) sanitizeMap(in map[string]interface{}, prefix string, removed *[]string) models.Payload {
	if in == nil {
		return nil
	}
	out := make(models.Payload, len(in))
	for _, key := range sortedKeys(in) {
		path := joinPath(prefix, key)
		if s.isIdentifier(key) {
			*removed = append(*removed, path)
			continue
		}
		out[key] = s.sanitizeValue(in[key], path, removed)
	}
	return out
}

func (s *FieldSanitizer) sanitizeValue(v interface{}, path string, removed *[]string) interface{} {
	switch val := v.(type) {
	case models.Payload:
		return s.sanitizeMap(val, path, removed)
	case map[string]interface{}:
		return map[string]interface{}(s.sanitizeMap(val, path, removed))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(item, fmt.Sprintf("%s[%d]", path, i), removed)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = s.scrubString(item, fmt.Sprintf("%s[%d]", path, i), removed)
		}
		return out
	case string:
		return s.scrubString(val, path, removed)
	default:
		if isScalar(val) {
			return val
		}
		normalized, err := normalizeValue(val)
		if err != nil {
			// values that cannot be inspected are dropped
			*removed = append(*removed, path)
			return nil
		}
		return s.sanitizeValue(normalized, path, removed)
	}
}

// isScalar reports whether v is a leaf value that cannot carry identifier keys
func isScalar(v interface{}) bool {
	switch v.(type) {
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number, time.Time:
		return true
	}
	return false
}

// normalizeValue converts any other container (typed maps and slices, structs,
// pointers) into map[string]interface{} / []interface{} through its JSON form
func normalizeValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FieldSanitizer) scrubString(val, path string, removed *[]string) string {
	if !s.patternScrubbing {
		return val
	}
	scrubbed := val
	for _, p := range phiPatterns {
		scrubbed = p.re.ReplaceAllString(scrubbed, RedactedValue)
	}
	if scrubbed != val {
		*removed = append(*removed, path)
	}
	return scrubbed
}

func (s *FieldSanitizer) inspect(v interface{}, path string, issues *[]string) {
	switch val := v.(type) {
	case models.Payload:
		s.inspectMap(val, path, issues)
	case map[string]interface{}:
		s.inspectMap(val, path, issues)
	case []interface{}:
		for i, item := range val {
			s.inspect(item, fmt.Sprintf("%s[%d]", path, i), issues)
		}
	case []string:
		for i, item := range val {
			s.inspect(item, fmt.Sprintf("%s[%d]", path, i), issues)
		}
	case string:
		for _, p := range phiPatterns {
			if p.re.MatchString(val) {
				*issues = append(*issues, fmt.Sprintf("%s pattern found in %s", p.name, path))
			}
		}
	default:
		if !isScalar(val) {
			*issues = append(*issues, fmt.Sprintf("unsupported value type %T at %s", val, path))
		}
	}
}

func (s *FieldSanitizer) inspectMap(m map[string]interface{}, prefix string, issues *[]string) {
	for _, key := range sortedKeys(m) {
		path := joinPath(prefix, key)
		if s.isIdentifier(key) {
			*issues = append(*issues, fmt.Sprintf("identifier field present: %s", path))
			continue
		}
		s.inspect(m[key], path, issues)
	}
}

// normalizeKey lowercases and drops separators so "Date_of-Birth" matches "dateofbirth"
func normalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToLower(key) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
