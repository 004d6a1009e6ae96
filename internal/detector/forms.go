package detector

import "regexp"

// FormType identifies how an application form is offered.
type FormType string

// Form kinds reported by FormDetector.
const (
	FormHTML FormType = "HTML"
	FormPDF  FormType = "PDF"
)

// Confidence values for each form rule.
const (
	confidenceFormRelevant = 0.95
	confidenceFormGeneric  = 0.7
	confidencePDFForm      = 0.85
	confidenceOnlineApply  = 0.8
)

// FormResult is the outcome of DetectForms.
type FormResult struct {
	Detected   bool
	Type       FormType
	Confidence float64
}

// FormDetector finds application forms in raw HTML using ordered rules; the
// first rule that matches wins.
type FormDetector struct {
	formTag       *regexp.Regexp
	inputTag      *regexp.Regexp
	submitButton  *regexp.Regexp
	submitInput   *regexp.Regexp
	relevantField *regexp.Regexp
	pdfLink       *regexp.Regexp
	pdfKeyword    *regexp.Regexp
	onlineText    *regexp.Regexp
	onlinePath    *regexp.Regexp
}

// NewFormDetector compiles the form rules.
func NewFormDetector() *FormDetector {
	return &FormDetector{
		formTag:      regexp.MustCompile(`(?i)<form\b[^>]*>`),
		inputTag:     regexp.MustCompile(`(?i)<input\b[^>]*>`),
		submitButton: regexp.MustCompile(`(?i)<button\b[^>]*\btype\s*=\s*["']?submit\b`),
		submitInput:  regexp.MustCompile(`(?i)<input\b[^>]*\btype\s*=\s*["']?submit\b`),
		relevantField: regexp.MustCompile(
			`(?i)<(?:input|textarea)\b[^>]*\b(?:name|id|type|placeholder|autocomplete)\s*=\s*["']?[^"'>\s]*(?:name|e-?mail|address|adresse|stra(?:ss|ß)e|street)`,
		),
		pdfLink:    regexp.MustCompile(`(?i)\.pdf(?:["'\s>?#]|$)`),
		pdfKeyword: regexp.MustCompile(`(?i)(?:antrag|formular|application|form)[^\n]{0,200}\.pdf`),
		onlineText: regexp.MustCompile(`(?i)online[\s-]*antrag|apply[\s-]+online|online[\s-]+(?:application|bewerbung)`),
		onlinePath: regexp.MustCompile(`(?i)/(?:antrag|application|bewerbung)\b`),
	}
}

// Detect applies the rules in order:
//  1. an HTML form with an input and a submit control (0.95 when it asks for
//     name, email or address, else 0.7)
//  2. a PDF link next to application wording (0.85)
//  3. an online-application phrase or URL path (0.8)
func (d *FormDetector) Detect(rawHTML string) FormResult {
	if d.formTag.MatchString(rawHTML) && d.inputTag.MatchString(rawHTML) &&
		(d.submitButton.MatchString(rawHTML) || d.submitInput.MatchString(rawHTML)) {
		if d.relevantField.MatchString(rawHTML) {
			return FormResult{Detected: true, Type: FormHTML, Confidence: confidenceFormRelevant}
		}
		return FormResult{Detected: true, Type: FormHTML, Confidence: confidenceFormGeneric}
	}
	if d.pdfLink.MatchString(rawHTML) && d.pdfKeyword.MatchString(rawHTML) {
		return FormResult{Detected: true, Type: FormPDF, Confidence: confidencePDFForm}
	}
	if d.onlineText.MatchString(rawHTML) || d.onlinePath.MatchString(rawHTML) {
		return FormResult{Detected: true, Type: FormHTML, Confidence: confidenceOnlineApply}
	}
	return FormResult{}
}
