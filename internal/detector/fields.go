package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

var ignoredInputTypes = map[string]struct{}{
	"hidden": {}, "submit": {}, "button": {}, "reset": {}, "image": {},
}

// ExtractFormFields lists the named, user-editable controls in rawHTML.
// Unparseable markup yields no fields.
func ExtractFormFields(rawHTML string) []monitor.FormField {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var fields []monitor.FormField
	doc.Find("input, textarea, select").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.AttrOr("name", ""))
		if name == "" {
			return
		}
		fieldType := goquery.NodeName(s)
		if fieldType == "input" {
			fieldType = strings.ToLower(strings.TrimSpace(s.AttrOr("type", "text")))
			if fieldType == "" {
				fieldType = "text"
			}
			if _, skip := ignoredInputTypes[fieldType]; skip {
				return
			}
		}
		_, required := s.Attr("required")
		fields = append(fields, monitor.FormField{
			Name:        name,
			Type:        fieldType,
			Required:    required,
			Placeholder: s.AttrOr("placeholder", ""),
		})
	})
	return fields
}
